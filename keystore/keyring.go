package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const DefaultServiceName = "crypto-provider"

type (
	KeyringOptions struct {
		ServiceName string `mapstructure:"service_name"`
		// Backends restricts which keyring implementations may be used, e.g.
		// "secret-service", "keychain", "wincred" or "file".
		Backends     []string `mapstructure:"backends"`
		FileDir      string   `mapstructure:"file_dir"`
		FilePassword string   `mapstructure:"file_password"`
	}

	// KeyringStore keeps records in the operating system keyring.
	KeyringStore struct {
		ring keyring.Keyring
	}
)

func NewKeyringStore(options KeyringOptions) (*KeyringStore, error) {
	if options.ServiceName == "" {
		options.ServiceName = DefaultServiceName
	}

	cfg := keyring.Config{
		ServiceName: options.ServiceName,
		FileDir:     options.FileDir,
	}
	for _, b := range options.Backends {
		cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.BackendType(b))
	}
	if options.FilePassword != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(options.FilePassword)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return NewKeyringStoreFrom(ring), nil
}

// NewKeyringStoreFrom uses an already opened keyring.
func NewKeyringStoreFrom(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (k *KeyringStore) Put(_ context.Context, record *Record) error {
	if err := validName("keystore.Put", record.Name); err != nil {
		return err
	}
	data, err := marshalRecord(record)
	if err != nil {
		return err
	}

	err = k.ring.Set(keyring.Item{
		Key:   record.Name,
		Data:  data,
		Label: record.Algorithm + " key " + record.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Get(_ context.Context, name string) (*Record, error) {
	item, err := k.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, notFound("keystore.Get", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}
	return unmarshalRecord(item.Data)
}

func (k *KeyringStore) Delete(_ context.Context, name string) error {
	// some backends remove missing items without complaint
	if _, err := k.ring.Get(name); errors.Is(err, keyring.ErrKeyNotFound) {
		return notFound("keystore.Delete", name)
	}

	if err := k.ring.Remove(name); err != nil {
		return fmt.Errorf("failed to remove key from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) List(_ context.Context) ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	return sortedNames(keys), nil
}

func (k *KeyringStore) Close() error {
	return nil
}
