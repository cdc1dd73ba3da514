package keystore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"
	"temporal-sa/crypto-provider/config"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine"
	"temporal-sa/crypto-provider/envelope"
	"temporal-sa/crypto-provider/provider"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMasterKey = hex.EncodeToString(bytes.Repeat([]byte{0x5a}, 32))

func newManager(t *testing.T) *provider.Manager {
	t.Helper()
	registry, err := engine.NewDefaultRegistry()
	require.NoError(t, err)
	manager, err := provider.NewManager(registry, provider.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newSealedMemoryStore(t *testing.T) (*SealedStore, *MemoryStore) {
	t.Helper()
	p, err := envelope.NewStaticKeyProvider(newManager(t), envelope.StaticKeyOptions{
		KeyID:     "test-master",
		MasterKey: testMasterKey,
	})
	require.NoError(t, err)
	backend := NewMemoryStore()
	return NewSealedStore(backend, envelope.NewSealer(p), nil, nil), backend
}

func testRecord(name string) *Record {
	return &Record{
		Name:       name,
		Algorithm:  "ECDSA_P256",
		Format:     "ECCPRIVATEBLOB",
		Data:       []byte("secret blob for " + name),
		Properties: map[string][]byte{"Export Policy": {1, 0, 0, 0}},
	}
}

func TestBackends(t *testing.T) {
	backends := []struct {
		name  string
		store func(t *testing.T) KeyStore
	}{
		{
			name:  "memory",
			store: func(t *testing.T) KeyStore { return NewMemoryStore() },
		},
		{
			name: "leveldb",
			store: func(t *testing.T) KeyStore {
				s, err := NewLevelDBStore(LevelDBOptions{Path: filepath.Join(t.TempDir(), "db")})
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "keyring",
			store: func(t *testing.T) KeyStore {
				return NewKeyringStoreFrom(keyring.NewArrayKeyring(nil))
			},
		},
		{
			name: "sealed",
			store: func(t *testing.T) KeyStore {
				s, _ := newSealedMemoryStore(t)
				return s
			},
		},
	}

	for _, tt := range backends {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := tt.store(t)
			defer store.Close()

			names, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, names)

			require.NoError(t, store.Put(ctx, testRecord("beta")))
			require.NoError(t, store.Put(ctx, testRecord("alpha")))

			got, err := store.Get(ctx, "alpha")
			require.NoError(t, err)
			assert.Equal(t, "alpha", got.Name)
			assert.Equal(t, "ECDSA_P256", got.Algorithm)
			assert.Equal(t, []byte("secret blob for alpha"), got.Data)
			assert.Equal(t, []byte{1, 0, 0, 0}, got.Properties["Export Policy"])

			names, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "beta"}, names)

			replacement := testRecord("alpha")
			replacement.Data = []byte("rotated")
			require.NoError(t, store.Put(ctx, replacement))
			got, err = store.Get(ctx, "alpha")
			require.NoError(t, err)
			assert.Equal(t, []byte("rotated"), got.Data)

			require.NoError(t, store.Delete(ctx, "alpha"))
			_, err = store.Get(ctx, "alpha")
			assert.True(t, errors.Is(err, cryptoerr.ErrKeyNotFound))
			assert.True(t, cryptoerr.IsNotFound(err))

			err = store.Delete(ctx, "alpha")
			assert.True(t, errors.Is(err, cryptoerr.ErrKeyNotFound))

			err = store.Put(ctx, &Record{})
			assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	record := testRecord("k")
	require.NoError(t, store.Put(ctx, record))

	record.Data[0] = 'X'
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte('s'), got.Data[0])

	got.Data[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte('s'), again.Data[0])
}

func TestLevelDBStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	store, err := NewLevelDBStore(LevelDBOptions{Path: path, Sync: true})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testRecord("persisted")))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	store, err = NewLevelDBStore(LevelDBOptions{Path: path})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret blob for persisted"), got.Data)
}

func TestSealedStoreEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	sealed, backend := newSealedMemoryStore(t)

	require.NoError(t, sealed.Put(ctx, testRecord("signing")))

	raw, err := backend.Get(ctx, "signing")
	require.NoError(t, err)
	assert.NotContains(t, string(raw.Data), "secret blob")
	assert.Equal(t, MetadataEncodingEncrypted, string(raw.Metadata[MetadataEncoding]))
	assert.Equal(t, "test-master", string(raw.Metadata[MetadataEncryptionKeyID]))
	assert.NotEmpty(t, raw.Metadata[MetadataEncryptedDataKey])

	got, err := sealed.Get(ctx, "signing")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret blob for signing"), got.Data)
	assert.NotContains(t, got.Metadata, MetadataEncoding)

	// a sealed record moved under another name does not open
	raw.Name = "moved"
	require.NoError(t, backend.Put(ctx, raw))
	_, err = sealed.Get(ctx, "moved")
	assert.ErrorContains(t, err, "failed to unseal")

	// plaintext records pass through
	require.NoError(t, backend.Put(ctx, testRecord("legacy")))
	got, err = sealed.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret blob for legacy"), got.Data)
}

func TestFactory(t *testing.T) {
	manager := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		cfg    config.KeyStoreConfig
		sealed bool
		errMsg string
	}{
		{
			name: "default memory",
			cfg:  config.KeyStoreConfig{},
		},
		{
			name: "leveldb",
			cfg: config.KeyStoreConfig{
				Backend: config.BackendLevelDB,
				Options: map[string]interface{}{"path": filepath.Join(t.TempDir(), "db"), "sync": "true"},
			},
		},
		{
			name: "static protection",
			cfg: config.KeyStoreConfig{
				Backend: config.BackendMemory,
				Protection: &config.ProtectionConfig{
					Type:    config.ProtectionStatic,
					Options: map[string]interface{}{"key_id": "local", "master_key": testMasterKey},
					Caching: config.CachingConfig{MaxAge: "1m", MaxUsage: 10},
				},
			},
			sealed: true,
		},
		{
			name:   "unknown backend",
			cfg:    config.KeyStoreConfig{Backend: "floppy"},
			errMsg: "unknown key store backend",
		},
		{
			name: "unknown option",
			cfg: config.KeyStoreConfig{
				Backend: config.BackendLevelDB,
				Options: map[string]interface{}{"paht": "x"},
			},
			errMsg: "invalid key store options",
		},
		{
			name: "bad master key",
			cfg: config.KeyStoreConfig{
				Protection: &config.ProtectionConfig{
					Type:    config.ProtectionStatic,
					Options: map[string]interface{}{"key_id": "local", "master_key": "abcd"},
				},
			},
			errMsg: "must be 32 bytes",
		},
		{
			name: "bad max age",
			cfg: config.KeyStoreConfig{
				Protection: &config.ProtectionConfig{
					Type:    config.ProtectionStatic,
					Options: map[string]interface{}{"key_id": "local", "master_key": testMasterKey},
					Caching: config.CachingConfig{MaxAge: "soon"},
				},
			},
			errMsg: "invalid caching max_age",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(ctx, tt.cfg, FactoryOptions{Acquirer: manager})
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			defer store.Close()

			_, isSealed := store.(*SealedStore)
			assert.Equal(t, tt.sealed, isSealed)

			require.NoError(t, store.Put(ctx, testRecord("k")))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("secret blob for k"), got.Data)
		})
	}
}
