package key

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine"
	"temporal-sa/crypto-provider/keyblob"
	"temporal-sa/crypto-provider/keystore"
	"temporal-sa/crypto-provider/provider"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*StorageProvider, keystore.KeyStore) {
	t.Helper()
	registry, err := engine.NewDefaultRegistry()
	require.NoError(t, err)
	manager, err := provider.NewManager(registry, provider.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store := keystore.NewMemoryStore()
	return NewStorageProvider(manager, store, StorageOptions{}), store
}

func TestCreateEphemeral(t *testing.T) {
	storage, store := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmECDSAP256, "", nil)
	require.NoError(t, err)
	defer k.Close()

	ephemeral, err := k.IsEphemeral()
	require.NoError(t, err)
	assert.True(t, ephemeral)

	_, err = k.KeyName()
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
	_, err = k.UniqueName()
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))

	marker, err := k.Property(KeyEphemeralMarker)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, marker)

	bits, err := k.KeySize()
	require.NoError(t, err)
	assert.Equal(t, 256, bits)

	group, err := k.AlgorithmGroup()
	require.NoError(t, err)
	assert.Equal(t, GroupECDSA, group)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCreateNamedAndOpen(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmRSA, "signing", &CreationParameters{
		ExportPolicy: AllowExport,
		KeyUsage:     UsageSigning,
		KeySize:      1024,
		Properties:   map[string][]byte{"owner": []byte("payments")},
	})
	require.NoError(t, err)

	ephemeral, err := k.IsEphemeral()
	require.NoError(t, err)
	assert.False(t, ephemeral)

	name, err := k.KeyName()
	require.NoError(t, err)
	assert.Equal(t, "signing", name)

	uniqueName, err := k.UniqueName()
	require.NoError(t, err)
	_, err = uuid.Parse(uniqueName)
	assert.NoError(t, err)

	pub, err := k.Export(keyblob.FormatRSAPublic)
	require.NoError(t, err)
	require.NoError(t, k.Close())

	exists, err := storage.Exists(ctx, "signing")
	require.NoError(t, err)
	assert.True(t, exists)

	opened, err := storage.Open(ctx, "signing")
	require.NoError(t, err)
	defer opened.Close()

	bits, err := opened.KeySize()
	require.NoError(t, err)
	assert.Equal(t, 1024, bits)

	policy, err := opened.ExportPolicy()
	require.NoError(t, err)
	assert.Equal(t, AllowExport, policy)

	usage, err := opened.KeyUsage()
	require.NoError(t, err)
	assert.Equal(t, UsageSigning, usage)

	openedUnique, err := opened.UniqueName()
	require.NoError(t, err)
	assert.Equal(t, uniqueName, openedUnique)

	owner, err := opened.Property("owner")
	require.NoError(t, err)
	assert.Equal(t, []byte("payments"), owner)

	openedPub, err := opened.Export(keyblob.FormatRSAPublic)
	require.NoError(t, err)
	assert.Equal(t, pub, openedPub)

	names, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"signing"}, names)
}

func TestCreateErrors(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmAES, "dup", nil)
	require.NoError(t, err)
	k.Close()

	tests := []struct {
		name      string
		algorithm string
		keyName   string
		params    *CreationParameters
		check     func(t *testing.T, err error)
	}{
		{
			name:      "duplicate name",
			algorithm: provider.AlgorithmAES,
			keyName:   "dup",
			check: func(t *testing.T, err error) {
				code, ok := cryptoerr.CodeOf(err)
				require.True(t, ok)
				assert.Equal(t, cryptoerr.NteExists, code)
			},
		},
		{
			name:      "hash algorithm",
			algorithm: provider.AlgorithmSHA256,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedAlgorithm))
			},
		},
		{
			name:      "unknown algorithm",
			algorithm: "ROT13",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedAlgorithm))
			},
		},
		{
			name:      "reserved property",
			algorithm: provider.AlgorithmAES,
			params:    &CreationParameters{Properties: map[string][]byte{KeyEphemeralMarker: {0}}},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))
			},
		},
		{
			name: "empty algorithm",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.Create(ctx, tt.algorithm, tt.keyName, tt.params)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	k, err = storage.Create(ctx, provider.AlgorithmAES, "dup", &CreationParameters{Overwrite: true, KeySize: 128})
	require.NoError(t, err)
	defer k.Close()
	bits, err := k.KeySize()
	require.NoError(t, err)
	assert.Equal(t, 128, bits)
}

func TestOpenMissingKey(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	_, err := storage.Open(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, cryptoerr.ErrKeyNotFound))

	exists, err := storage.Exists(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExportPolicy(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		policy  ExportPolicy
		format  keyblob.Format
		allowed bool
	}{
		{"public with no policy", 0, keyblob.FormatECPublic, true},
		{"generic public with no policy", 0, keyblob.FormatPublic, true},
		{"private with no policy", 0, keyblob.FormatECPrivate, false},
		{"private with export", AllowExport, keyblob.FormatECPrivate, false},
		{"private with plaintext export", AllowPlaintextExport, keyblob.FormatECPrivate, true},
		{"pkcs8 with no policy", 0, keyblob.FormatPKCS8, false},
		{"pkcs8 with export", AllowExport, keyblob.FormatPKCS8, true},
		{"opaque with plaintext export", AllowPlaintextExport, keyblob.FormatOpaque, true},
		{"opaque with archiving only", AllowArchiving, keyblob.FormatOpaque, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := storage.Create(ctx, provider.AlgorithmECDHP384, "", &CreationParameters{ExportPolicy: tt.policy})
			require.NoError(t, err)
			defer k.Close()

			blob, err := k.Export(tt.format)
			if !tt.allowed {
				assert.True(t, errors.Is(err, cryptoerr.ErrExportDenied))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, blob)
		})
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	tests := []struct {
		algorithm string
		format    keyblob.Format
	}{
		{provider.AlgorithmRSA, keyblob.FormatRSAPublic},
		{provider.AlgorithmRSA, keyblob.FormatRSAFullPrivate},
		{provider.AlgorithmRSA, keyblob.FormatPKCS8},
		{provider.AlgorithmECDSAP521, keyblob.FormatECPrivate},
		{provider.AlgorithmECDSAP256, keyblob.FormatPublic},
		{provider.AlgorithmECDHP256, keyblob.FormatOpaque},
		{provider.AlgorithmAES, keyblob.FormatSymmetric},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm+"/"+string(tt.format), func(t *testing.T) {
			source, err := storage.Create(ctx, tt.algorithm, "", &CreationParameters{
				ExportPolicy: AllowExport | AllowPlaintextExport,
				KeySize:      keySizeFor(tt.algorithm),
			})
			require.NoError(t, err)
			defer source.Close()

			blob, err := source.Export(tt.format)
			require.NoError(t, err)

			imported, err := storage.Import(ctx, blob, tt.format, &ImportParameters{
				Algorithm:    tt.algorithm,
				ExportPolicy: AllowExport | AllowPlaintextExport,
			})
			require.NoError(t, err)
			defer imported.Close()

			again, err := imported.Export(tt.format)
			require.NoError(t, err)
			assert.Equal(t, blob, again)
		})
	}
}

func keySizeFor(algorithm string) int {
	if algorithm == provider.AlgorithmRSA {
		return 1024
	}
	return 0
}

func TestImportErrors(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	p384, err := storage.Create(ctx, provider.AlgorithmECDSAP384, "", &CreationParameters{ExportPolicy: AllowPlaintextExport})
	require.NoError(t, err)
	defer p384.Close()
	pub, err := p384.Export(keyblob.FormatECPublic)
	require.NoError(t, err)

	_, err = storage.Import(ctx, pub, keyblob.FormatECPublic, &ImportParameters{Algorithm: provider.AlgorithmECDSAP256})
	assert.True(t, errors.Is(err, cryptoerr.ErrCurveMismatch))

	_, err = storage.Import(ctx, keyblob.EncodeSymmetric(make([]byte, 16)), keyblob.FormatSymmetric, nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrMissingParameters))

	_, err = storage.Import(ctx, []byte{1, 2, 3}, keyblob.FormatECPublic, nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidKeyBlobFormat))

	_, err = storage.Import(ctx, pub, keyblob.FormatECPublic, &ImportParameters{Algorithm: provider.AlgorithmRSA})
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedAlgorithm))
}

func TestImportPublicOnlyNamed(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	source, err := storage.Create(ctx, provider.AlgorithmECDSAP256, "", nil)
	require.NoError(t, err)
	defer source.Close()
	blob, err := source.Export(keyblob.FormatECPublic)
	require.NoError(t, err)

	imported, err := storage.Import(ctx, blob, keyblob.FormatECPublic, &ImportParameters{Name: "peer"})
	require.NoError(t, err)
	assert.False(t, imported.HasPrivateKey())
	require.NoError(t, imported.Close())

	opened, err := storage.Open(ctx, "peer")
	require.NoError(t, err)
	defer opened.Close()
	assert.False(t, opened.HasPrivateKey())

	digest := sha256.Sum256([]byte("message"))
	sig, err := source.SignHash(digest[:], provider.SignOptions{})
	require.NoError(t, err)
	ok, err := opened.VerifyHash(digest[:], sig, provider.SignOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = opened.SignHash(digest[:], provider.SignOptions{})
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
}

func TestDeleteAndDisposedUse(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmECDHP256, "temp", nil)
	require.NoError(t, err)
	require.NoError(t, k.Delete())
	assert.Equal(t, StateDeleted, k.State())

	_, err = k.KeySize()
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
	_, err = k.Export(keyblob.FormatECPublic)
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
	assert.True(t, errors.Is(k.Delete(), cryptoerr.ErrInvalidState))
	assert.NoError(t, k.Close())

	_, err = storage.Open(ctx, "temp")
	assert.True(t, errors.Is(err, cryptoerr.ErrKeyNotFound))

	eph, err := storage.Create(ctx, provider.AlgorithmAES, "", nil)
	require.NoError(t, err)
	require.NoError(t, eph.Close())
	require.NoError(t, eph.Close())
	assert.Equal(t, StateDisposed, eph.State())
	_, err = eph.SymmetricKey()
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
}

func TestProperties(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmAES, "props", &CreationParameters{KeySize: 192})
	require.NoError(t, err)

	length, err := k.Property(PropertyLength)
	require.NoError(t, err)
	assert.Equal(t, []byte{192, 0, 0, 0}, length)

	group, err := k.Property(PropertyAlgorithmGroup)
	require.NoError(t, err)
	assert.Equal(t, GroupSymmetric, string(group))

	_, err = k.Property("missing")
	assert.True(t, cryptoerr.IsNotFound(err))

	assert.True(t, errors.Is(k.SetProperty(PropertyLength, []byte{1, 0, 0, 0}), cryptoerr.ErrArgumentRange))
	assert.True(t, errors.Is(k.SetProperty(PropertyExportPolicy, []byte{1}), cryptoerr.ErrArgumentRange))
	require.NoError(t, k.SetProperty(PropertyExportPolicy, []byte{2, 0, 0, 0}))
	require.NoError(t, k.SetProperty("label", []byte("db")))
	require.NoError(t, k.Close())

	opened, err := storage.Open(ctx, "props")
	require.NoError(t, err)
	defer opened.Close()

	policy, err := opened.ExportPolicy()
	require.NoError(t, err)
	assert.Equal(t, AllowPlaintextExport, policy)
	label, err := opened.Property("label")
	require.NoError(t, err)
	assert.Equal(t, []byte("db"), label)

	blob, err := opened.Export(keyblob.FormatSymmetric)
	require.NoError(t, err)
	raw, err := keyblob.DecodeSymmetric(blob)
	require.NoError(t, err)
	assert.Len(t, raw, 24)
}

func TestKeyUsageEnforced(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmECDSAP256, "", &CreationParameters{KeyUsage: UsageDecryption})
	require.NoError(t, err)
	defer k.Close()

	digest := sha256.Sum256(nil)
	_, err = k.SignHash(digest[:], provider.SignOptions{})
	code, ok := cryptoerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, cryptoerr.NteBadKeyState, code)
}

func TestSecretAgreementPeerGroup(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	ecdh, err := storage.Create(ctx, provider.AlgorithmECDHP256, "", nil)
	require.NoError(t, err)
	defer ecdh.Close()
	peer, err := storage.Create(ctx, provider.AlgorithmECDHP256, "", nil)
	require.NoError(t, err)
	defer peer.Close()
	signer, err := storage.Create(ctx, provider.AlgorithmECDSAP256, "", nil)
	require.NoError(t, err)
	defer signer.Close()

	secret, err := ecdh.SecretAgreement(peer)
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	_, err = ecdh.SecretAgreement(signer)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))
}

func TestOpenSymmetricKeyMaterial(t *testing.T) {
	storage, _ := newStorage(t)
	ctx := context.Background()

	k, err := storage.Create(ctx, provider.AlgorithmAES, "material", &CreationParameters{
		ExportPolicy: AllowPlaintextExport,
		KeySize:      256,
	})
	require.NoError(t, err)
	created, err := k.Export(keyblob.FormatSymmetric)
	require.NoError(t, err)
	require.NoError(t, k.Close())

	// opening twice reads the stored record each time; the decoded copy is
	// wiped once the key is bound
	for i := 0; i < 2; i++ {
		opened, err := storage.Open(ctx, "material")
		require.NoError(t, err)
		blob, err := opened.Export(keyblob.FormatSymmetric)
		require.NoError(t, err)
		assert.Equal(t, created, blob)

		raw, err := keyblob.DecodeSymmetric(blob)
		require.NoError(t, err)
		assert.NotEqual(t, make([]byte, 32), raw)
		require.NoError(t, opened.Close())
	}
}
