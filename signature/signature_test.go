package signature

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/keyblob"
	"temporal-sa/crypto-provider/keystore"
	"temporal-sa/crypto-provider/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*key.StorageProvider, *provider.Manager) {
	t.Helper()
	registry, err := engine.NewDefaultRegistry()
	require.NoError(t, err)
	manager, err := provider.NewManager(registry, provider.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return key.NewStorageProvider(manager, keystore.NewMemoryStore(), key.StorageOptions{}), manager
}

func TestECDSASignVerify(t *testing.T) {
	data := []byte("the quick brown fox")

	for _, size := range []int{256, 384, 521} {
		t.Run(fmt.Sprintf("P-%d", size), func(t *testing.T) {
			storage, manager := newStorage(t)
			e, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: size})
			require.NoError(t, err)
			defer e.Close()

			sig, err := e.SignData(data)
			require.NoError(t, err)
			assert.Len(t, sig, 2*((size+7)/8))

			ok, err := e.VerifyData(data, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = e.VerifyData([]byte("the quick brown cat"), sig)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = e.VerifyHash(make([]byte, 32), sig[:len(sig)-1])
			require.NoError(t, err)
			assert.False(t, ok)

			streamSig, err := e.SignDataStream(bytes.NewReader(data))
			require.NoError(t, err)
			ok, err = e.VerifyData(data, streamSig)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestECDSASignatureIsP1363(t *testing.T) {
	storage, manager := newStorage(t)
	e, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: 256})
	require.NoError(t, err)
	defer e.Close()

	data := []byte("interop")
	sig, err := e.SignData(data)
	require.NoError(t, err)

	k, err := e.Key()
	require.NoError(t, err)
	pub, err := k.PublicKey()
	require.NoError(t, err)

	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	assert.True(t, ecdsa.Verify(pub.(*ecdsa.PublicKey), digest[:], r, s))
}

func TestECDSAPublicOnlyKey(t *testing.T) {
	storage, manager := newStorage(t)
	ctx := context.Background()

	signer, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: 384, HashAlgorithm: provider.AlgorithmSHA384})
	require.NoError(t, err)
	defer signer.Close()
	sig, err := signer.SignData([]byte("payload"))
	require.NoError(t, err)

	k, err := signer.Key()
	require.NoError(t, err)
	blob, err := k.Export(keyblob.FormatECPublic)
	require.NoError(t, err)
	pub, err := storage.Import(ctx, blob, keyblob.FormatECPublic, nil)
	require.NoError(t, err)

	verifier, err := NewECDSAFromKey(storage, manager, pub)
	require.NoError(t, err)
	defer verifier.Close()
	verifier.HashAlgorithm = provider.AlgorithmSHA384
	assert.Equal(t, 384, verifier.KeySize())

	ok, err := verifier.VerifyData([]byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = verifier.SignData([]byte("payload"))
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
}

func TestECDSASuppliedKeyNotReplaced(t *testing.T) {
	storage, manager := newStorage(t)
	k, err := storage.Create(context.Background(), provider.AlgorithmECDSAP256, "", nil)
	require.NoError(t, err)

	e, err := NewECDSAFromKey(storage, manager, k)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.SignData([]byte("payload"))
	require.NoError(t, err)

	require.NoError(t, k.Close())
	_, err = e.SignData([]byte("payload"))
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
	_, err = e.Key()
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))

	// an explicit size change hands ownership back to the wrapper
	require.NoError(t, e.SetKeySize(384))
	_, err = e.SignData([]byte("payload"))
	require.NoError(t, err)
}

func TestECDSAXMLRoundTrip(t *testing.T) {
	storage, manager := newStorage(t)

	signer, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: 384, HashAlgorithm: provider.AlgorithmSHA384})
	require.NoError(t, err)
	defer signer.Close()
	sig, err := signer.SignData([]byte("payload"))
	require.NoError(t, err)

	document, err := signer.ToXML()
	require.NoError(t, err)
	assert.Contains(t, document, "ECDSAKeyValue")
	assert.Contains(t, document, "urn:oid:1.3.132.0.34")

	verifier, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: 256, HashAlgorithm: provider.AlgorithmSHA384})
	require.NoError(t, err)
	defer verifier.Close()
	require.NoError(t, verifier.FromXML(document))
	assert.Equal(t, 384, verifier.KeySize())

	ok, err := verifier.VerifyData([]byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = verifier.SignData([]byte("payload"))
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))

	agreementKey, err := storage.Create(context.Background(), provider.AlgorithmECDHP384, "", nil)
	require.NoError(t, err)
	defer agreementKey.Close()
	ecdhDocument, err := agreementKey.ExportXML()
	require.NoError(t, err)
	assert.True(t, errors.Is(verifier.FromXML(ecdhDocument), cryptoerr.ErrArgumentRange))

	ok, err = verifier.VerifyData([]byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, errors.Is(verifier.FromXML("<ECDSAKeyValue"), cryptoerr.ErrInvalidKeyBlobFormat))
}

func TestECDSAKeySizeRegeneration(t *testing.T) {
	storage, manager := newStorage(t)
	e, err := NewECDSA(storage, manager, ECDSAOptions{})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, DefaultECDSAKeySize, e.KeySize())

	first, err := e.Key()
	require.NoError(t, err)
	require.NoError(t, e.SetKeySize(256))
	assert.Equal(t, key.StateDisposed, first.State())

	next, err := e.Key()
	require.NoError(t, err)
	algorithm, err := next.Algorithm()
	require.NoError(t, err)
	assert.Equal(t, provider.AlgorithmECDSAP256, algorithm)

	err = e.SetKeySize(512)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))

	_, err = NewECDSA(storage, manager, ECDSAOptions{KeySize: 224})
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))
}

func TestECDSAErrors(t *testing.T) {
	storage, manager := newStorage(t)
	e, err := NewECDSA(storage, manager, ECDSAOptions{KeySize: 256})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.SignData(nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))
	_, err = e.SignHash(nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))
	_, err = e.VerifyHash([]byte{1}, nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))
	_, err = e.SignDataStream(nil)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentNull))

	rsaKey, err := storage.Create(context.Background(), provider.AlgorithmRSA, "", &key.CreationParameters{KeySize: 1024})
	require.NoError(t, err)
	defer rsaKey.Close()
	_, err = NewECDSAFromKey(storage, manager, rsaKey)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))
}

func newRSA(t *testing.T) (*RSA, *key.StorageProvider, *provider.Manager) {
	t.Helper()
	storage, manager := newStorage(t)
	r, err := NewRSA(storage, manager, RSAOptions{KeySize: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, storage, manager
}

func TestRSASignVerify(t *testing.T) {
	r, _, _ := newRSA(t)
	data := []byte("sign me")

	tests := []struct {
		name    string
		hash    string
		padding SignaturePadding
	}{
		{name: "pkcs1 sha256", hash: provider.AlgorithmSHA256, padding: SignaturePKCS1},
		{name: "pkcs1 sha1", hash: provider.AlgorithmSHA1, padding: SignaturePKCS1},
		{name: "pss sha256", hash: provider.AlgorithmSHA256, padding: SignaturePSS},
		{name: "pss sha384", hash: provider.AlgorithmSHA384, padding: SignaturePSS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := r.SignData(data, tt.hash, tt.padding)
			require.NoError(t, err)
			assert.Len(t, sig, 128)

			ok, err := r.VerifyData(data, sig, tt.hash, tt.padding)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = r.VerifyData([]byte("sign you"), sig, tt.hash, tt.padding)
			require.NoError(t, err)
			assert.False(t, ok)

			streamSig, err := r.SignDataStream(strings.NewReader(string(data)), tt.hash, tt.padding)
			require.NoError(t, err)
			ok, err = r.VerifyData(data, streamSig, tt.hash, tt.padding)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRSASignatureInterop(t *testing.T) {
	r, _, _ := newRSA(t)
	data := []byte("interop")

	k, err := r.Key()
	require.NoError(t, err)
	pub, err := k.PublicKey()
	require.NoError(t, err)

	sig, err := r.SignData(data, provider.AlgorithmSHA512, SignaturePKCS1)
	require.NoError(t, err)
	digest := sha512.Sum512(data)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub.(*rsa.PublicKey), crypto.SHA512, digest[:], sig))

	sig, err = r.SignData(data, provider.AlgorithmSHA256, SignaturePSS)
	require.NoError(t, err)
	pssDigest := sha256.Sum256(data)
	assert.NoError(t, rsa.VerifyPSS(pub.(*rsa.PublicKey), crypto.SHA256, pssDigest[:], sig, nil))
}

func TestRSAEncryptDecrypt(t *testing.T) {
	r, _, _ := newRSA(t)
	plaintext := []byte("attack at dawn")

	tests := []struct {
		name    string
		padding EncryptionPadding
		hash    string
	}{
		{name: "pkcs1", padding: EncryptionPKCS1},
		{name: "oaep default sha1", padding: EncryptionOAEP},
		{name: "oaep sha256", padding: EncryptionOAEP, hash: provider.AlgorithmSHA256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := r.Encrypt(plaintext, tt.padding, tt.hash)
			require.NoError(t, err)
			assert.Len(t, ct, 128)

			pt, err := r.Decrypt(ct, tt.padding, tt.hash)
			require.NoError(t, err)
			assert.Equal(t, plaintext, pt)
		})
	}

	ct, err := r.Encrypt(plaintext, EncryptionOAEP, provider.AlgorithmSHA256)
	require.NoError(t, err)
	_, err = r.Decrypt(ct, EncryptionOAEP, provider.AlgorithmSHA1)
	assert.True(t, errors.Is(err, cryptoerr.ErrCryptographicFailure))
}

func TestRSAUnsupportedPadding(t *testing.T) {
	r, _, _ := newRSA(t)

	_, err := r.SignData([]byte("x"), provider.AlgorithmSHA256, SignaturePadding(7))
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedPaddingMode))
	_, err = r.VerifyHash(make([]byte, 32), []byte{1}, provider.AlgorithmSHA256, SignaturePadding(-1))
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedPaddingMode))
	_, err = r.Encrypt([]byte("x"), EncryptionPadding(3), "")
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedPaddingMode))
	_, err = r.Decrypt([]byte("x"), EncryptionPadding(3), "")
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedPaddingMode))

	_, err = r.SignData([]byte("x"), provider.AlgorithmSM3, SignaturePKCS1)
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedAlgorithm))
}

func TestRSAKeySize(t *testing.T) {
	r, storage, manager := newRSA(t)
	assert.Equal(t, 1024, r.KeySize())
	assert.True(t, provider.ValidKeySize(4096, r.LegalKeySizes()))

	first, err := r.Key()
	require.NoError(t, err)
	require.NoError(t, r.SetKeySize(1024))
	again, err := r.Key()
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, r.SetKeySize(1088))
	assert.Equal(t, key.StateDisposed, first.State())
	next, err := r.Key()
	require.NoError(t, err)
	bits, err := next.KeySize()
	require.NoError(t, err)
	assert.Equal(t, 1088, bits)

	err = r.SetKeySize(1000)
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))

	_, err = NewRSA(storage, manager, RSAOptions{KeySize: 512})
	assert.True(t, errors.Is(err, cryptoerr.ErrArgumentRange))

	d, err := NewRSA(storage, manager, RSAOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRSAKeySize, d.KeySize())
	require.NoError(t, d.Close())
}

func TestRSAPublicOnlyKey(t *testing.T) {
	r, storage, manager := newRSA(t)
	ctx := context.Background()

	sig, err := r.SignData([]byte("payload"), provider.AlgorithmSHA256, SignaturePSS)
	require.NoError(t, err)

	k, err := r.Key()
	require.NoError(t, err)
	blob, err := k.Export(keyblob.FormatRSAPublic)
	require.NoError(t, err)
	pub, err := storage.Import(ctx, blob, keyblob.FormatRSAPublic, &key.ImportParameters{Algorithm: provider.AlgorithmRSA})
	require.NoError(t, err)

	verifier, err := NewRSAFromKey(storage, manager, pub)
	require.NoError(t, err)
	defer verifier.Close()

	ok, err := verifier.VerifyData([]byte("payload"), sig, provider.AlgorithmSHA256, SignaturePSS)
	require.NoError(t, err)
	assert.True(t, ok)

	ct, err := verifier.Encrypt([]byte("to the owner"), EncryptionOAEP, "")
	require.NoError(t, err)
	pt, err := r.Decrypt(ct, EncryptionOAEP, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("to the owner"), pt)

	_, err = verifier.Decrypt(ct, EncryptionOAEP, "")
	assert.True(t, errors.Is(err, cryptoerr.ErrInvalidState))
}

func TestHashFor(t *testing.T) {
	h, err := HashFor(provider.AlgorithmSHA384)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA384, h)

	_, err = HashFor("WHIRLPOOL")
	assert.True(t, errors.Is(err, cryptoerr.ErrUnsupportedAlgorithm))
}
