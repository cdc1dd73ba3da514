package keystore

import (
	"context"
	"errors"
	"fmt"
	"temporal-sa/crypto-provider/envelope"
	"temporal-sa/crypto-provider/metrics"
	"time"

	"go.uber.org/zap"
)

const (
	// MetadataEncoding is "encoding"
	MetadataEncoding = "encoding"
	// MetadataEncodingEncrypted is "binary/encrypted"
	MetadataEncodingEncrypted = "binary/encrypted"
	// MetadataEncryptionKeyID is "encryption-key-id"
	MetadataEncryptionKeyID = "encryption-key-id"
	// MetadataEncryptedDataKey is "encrypted-data-key"
	MetadataEncryptedDataKey = "encrypted-data-key"
)

// SealedStore encrypts record data with envelope encryption before handing
// records to the backing store. The key name and algorithm are bound to the
// ciphertext, so a sealed record copied under another name will not open.
// Records without encrypted metadata pass through unchanged.
type SealedStore struct {
	backend        KeyStore
	sealer         *envelope.Sealer
	metricsHandler metrics.Handler
	logger         *zap.Logger
	onClose        []func() error
}

func NewSealedStore(backend KeyStore, sealer *envelope.Sealer, metricsHandler metrics.Handler, logger *zap.Logger) *SealedStore {
	if metricsHandler == nil {
		metricsHandler = metrics.NopHandler
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SealedStore{
		backend:        backend,
		sealer:         sealer,
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

func (s *SealedStore) keyContext(record *Record) envelope.Context {
	return envelope.Context{
		"key":             record.Name,
		"algorithm":       record.Algorithm,
		"encryptionKeyID": s.sealer.KeyID(),
	}
}

func (s *SealedStore) Put(ctx context.Context, record *Record) error {
	if err := validName("keystore.Put", record.Name); err != nil {
		return err
	}

	start := time.Now()
	env, err := s.sealer.Seal(ctx, record.Data, s.keyContext(record))
	s.metricsHandler.Timer(metrics.KeyStoreSealLatency).Record(time.Since(start))
	if err != nil {
		s.metricsHandler.Counter(metrics.KeyStoreSealErrors).Inc(1)
		return fmt.Errorf("failed to seal key %q: %w", record.Name, err)
	}

	sealed := record.Clone()
	sealed.Data = env.Ciphertext
	if sealed.Metadata == nil {
		sealed.Metadata = make(map[string][]byte)
	}
	sealed.Metadata[MetadataEncoding] = []byte(MetadataEncodingEncrypted)
	sealed.Metadata[MetadataEncryptionKeyID] = []byte(env.KeyID)
	sealed.Metadata[MetadataEncryptedDataKey] = env.WrappedKey

	s.metricsHandler.Counter(metrics.KeyStoreOperationCount).Inc(1)
	return s.backend.Put(ctx, sealed)
}

func (s *SealedStore) Get(ctx context.Context, name string) (*Record, error) {
	record, err := s.backend.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.metricsHandler.Counter(metrics.KeyStoreOperationCount).Inc(1)

	// Skip if not encrypted
	if string(record.Metadata[MetadataEncoding]) != MetadataEncodingEncrypted {
		s.logger.Warn("key record is not sealed", zap.String("key", name))
		return record, nil
	}

	env := &envelope.Envelope{
		KeyID:      string(record.Metadata[MetadataEncryptionKeyID]),
		WrappedKey: record.Metadata[MetadataEncryptedDataKey],
		Ciphertext: record.Data,
	}

	start := time.Now()
	plaintext, err := s.sealer.Open(ctx, env, s.keyContext(record))
	s.metricsHandler.Timer(metrics.KeyStoreUnsealLatency).Record(time.Since(start))
	if err != nil {
		s.metricsHandler.Counter(metrics.KeyStoreUnsealErrors).Inc(1)
		return nil, fmt.Errorf("failed to unseal key %q: %w", name, err)
	}

	record.Data = plaintext
	delete(record.Metadata, MetadataEncoding)
	delete(record.Metadata, MetadataEncryptionKeyID)
	delete(record.Metadata, MetadataEncryptedDataKey)
	return record, nil
}

func (s *SealedStore) Delete(ctx context.Context, name string) error {
	s.metricsHandler.Counter(metrics.KeyStoreOperationCount).Inc(1)
	return s.backend.Delete(ctx, name)
}

func (s *SealedStore) List(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx)
}

func (s *SealedStore) Close() error {
	errs := []error{s.backend.Close()}
	for _, fn := range s.onClose {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
