// Package agreement derives shared key material from ECDH key pairs held in
// key.Key objects.
package agreement

import (
	"context"
	"fmt"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/keyblob"
	"temporal-sa/crypto-provider/provider"
)

const (
	DefaultKeySize       = 521
	DefaultHashAlgorithm = provider.AlgorithmSHA256

	// TLSMasterSecretSize is the output length of the TLS-PRF derivation.
	TLSMasterSecretSize = 48
)

type KDF int

const (
	KDFHash KDF = iota
	KDFHMAC
	KDFTLSPRF
)

func (k KDF) String() string {
	switch k {
	case KDFHash:
		return "hash"
	case KDFHMAC:
		return "hmac"
	case KDFTLSPRF:
		return "tls_prf"
	}
	return fmt.Sprintf("KDF(%d)", int(k))
}

type (
	Options struct {
		// KeySize in bits. Zero uses DefaultKeySize.
		KeySize int
		KDF     KDF
		// HashAlgorithm drives every KDF. Empty uses DefaultHashAlgorithm.
		HashAlgorithm string
		// HMACKey keys the HMAC KDF. Nil keys it with the raw secret.
		HMACKey []byte
		// SecretPrepend and SecretAppend wrap the secret for the Hash and
		// HMAC KDFs.
		SecretPrepend []byte
		SecretAppend  []byte
		// Label and Seed are both required by the TLS-PRF KDF.
		Label []byte
		Seed  []byte
	}

	// ECDiffieHellman owns one ECDH key. The key is created lazily and
	// regenerated when the configured size no longer matches it.
	ECDiffieHellman struct {
		storage  *key.StorageProvider
		acquirer hashing.Acquirer
		key      *key.Key
		adopted  bool
		keySize  int

		KDF           KDF
		HashAlgorithm string
		HMACKey       []byte
		SecretPrepend []byte
		SecretAppend  []byte
		Label         []byte
		Seed          []byte
	}
)

func New(storage *key.StorageProvider, acquirer hashing.Acquirer, options Options) (*ECDiffieHellman, error) {
	if storage == nil || acquirer == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "agreement.New", "storage and acquirer are required")
	}
	size := options.KeySize
	if size == 0 {
		size = DefaultKeySize
	}
	if _, err := AlgorithmForSize(size); err != nil {
		return nil, err
	}

	return &ECDiffieHellman{
		storage:       storage,
		acquirer:      acquirer,
		keySize:       size,
		KDF:           options.KDF,
		HashAlgorithm: options.HashAlgorithm,
		HMACKey:       options.HMACKey,
		SecretPrepend: options.SecretPrepend,
		SecretAppend:  options.SecretAppend,
		Label:         options.Label,
		Seed:          options.Seed,
	}, nil
}

// NewFromKey wraps an existing ECDH key. The returned value owns k.
func NewFromKey(storage *key.StorageProvider, acquirer hashing.Acquirer, k *key.Key) (*ECDiffieHellman, error) {
	const op = "agreement.NewFromKey"
	if k == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}
	group, err := k.AlgorithmGroup()
	if err != nil {
		return nil, err
	}
	if group != key.GroupECDH {
		return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "key group %s is not %s", group, key.GroupECDH)
	}
	size, err := k.KeySize()
	if err != nil {
		return nil, err
	}

	e, err := New(storage, acquirer, Options{KeySize: size})
	if err != nil {
		return nil, err
	}
	e.key = k
	e.adopted = true
	return e, nil
}

// AlgorithmForSize maps a curve size in bits to its ECDH algorithm.
func AlgorithmForSize(bits int) (string, error) {
	switch bits {
	case 256:
		return provider.AlgorithmECDHP256, nil
	case 384:
		return provider.AlgorithmECDHP384, nil
	case 521:
		return provider.AlgorithmECDHP521, nil
	}
	return "", cryptoerr.New(cryptoerr.KindArgumentRange, "agreement.AlgorithmForSize", "unsupported key size %d", bits)
}

func (e *ECDiffieHellman) KeySize() int {
	return e.keySize
}

// SetKeySize changes the curve. A key of a different size is dropped and a
// new one is generated on next use.
func (e *ECDiffieHellman) SetKeySize(bits int) error {
	if _, err := AlgorithmForSize(bits); err != nil {
		return err
	}
	if bits != e.keySize && e.key != nil {
		e.key.Close()
		e.key = nil
		e.adopted = false
	}
	e.keySize = bits
	return nil
}

// Key returns the current key, generating an ephemeral one if needed. A key
// supplied by the caller that is no longer usable fails with InvalidState.
func (e *ECDiffieHellman) Key() (*key.Key, error) {
	if e.key != nil {
		state := e.key.State()
		if state == key.StateReady {
			return e.key, nil
		}
		if e.adopted {
			return nil, cryptoerr.New(cryptoerr.KindInvalidState, "agreement.Key", "supplied key is %s", state)
		}
	}
	algorithm, err := AlgorithmForSize(e.keySize)
	if err != nil {
		return nil, err
	}
	k, err := e.storage.Create(context.Background(), algorithm, "", &key.CreationParameters{
		ExportPolicy: key.AllowExport | key.AllowPlaintextExport,
		KeySize:      e.keySize,
	})
	if err != nil {
		return nil, err
	}
	e.key = k
	return k, nil
}

// PublicKey exports the public half of the current key as an EC public blob.
func (e *ECDiffieHellman) PublicKey() ([]byte, error) {
	k, err := e.Key()
	if err != nil {
		return nil, err
	}
	return k.Export(keyblob.FormatECPublic)
}

// ToXML renders the public key as an RFC 4050 ECDHKeyValue document.
func (e *ECDiffieHellman) ToXML() (string, error) {
	k, err := e.Key()
	if err != nil {
		return "", err
	}
	return k.ExportXML()
}

// FromXML returns the peer public key held in an ECDHKeyValue document,
// ready for DeriveKeyMaterial. The caller closes it.
func (e *ECDiffieHellman) FromXML(document string) (*key.Key, error) {
	const op = "agreement.FromXML"
	k, err := e.storage.ImportXML(context.Background(), document, nil)
	if err != nil {
		return nil, err
	}
	group, err := k.AlgorithmGroup()
	if err == nil && group != key.GroupECDH {
		err = cryptoerr.New(cryptoerr.KindArgumentRange, op, "key group %s is not %s", group, key.GroupECDH)
	}
	if err != nil {
		k.Close()
		return nil, err
	}
	return k, nil
}

// DeriveSecretAgreement returns the raw shared secret with other's public
// key, without any KDF applied.
func (e *ECDiffieHellman) DeriveSecretAgreement(other *key.Key) ([]byte, error) {
	const op = "agreement.DeriveSecretAgreement"
	if other == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil public key")
	}
	k, err := e.Key()
	if err != nil {
		return nil, err
	}

	otherSize, err := other.KeySize()
	if err != nil {
		return nil, err
	}
	if otherSize != e.keySize {
		return nil, cryptoerr.New(cryptoerr.KindCurveMismatch, op,
			"public key is %d bits, expected %d", otherSize, e.keySize)
	}
	return k.SecretAgreement(other)
}

// DeriveKeyMaterial agrees a secret with other and runs it through the
// configured KDF.
func (e *ECDiffieHellman) DeriveKeyMaterial(other *key.Key) ([]byte, error) {
	if e.KDF == KDFTLSPRF && (e.Label == nil || e.Seed == nil) {
		return nil, cryptoerr.New(cryptoerr.KindMissingParameters, "agreement.DeriveKeyMaterial",
			"tls prf requires a label and a seed")
	}

	secret, err := e.DeriveSecretAgreement(other)
	if err != nil {
		return nil, err
	}
	defer zeroize.Bytes(secret)

	switch e.KDF {
	case KDFHash:
		return e.deriveHash(secret)
	case KDFHMAC:
		return e.deriveHMAC(secret)
	case KDFTLSPRF:
		return e.deriveTLS(secret)
	}
	return nil, cryptoerr.New(cryptoerr.KindArgumentRange, "agreement.DeriveKeyMaterial", "unknown kdf %s", e.KDF)
}

func (e *ECDiffieHellman) hashAlgorithm() string {
	if e.HashAlgorithm == "" {
		return DefaultHashAlgorithm
	}
	return e.HashAlgorithm
}

func (e *ECDiffieHellman) deriveHash(secret []byte) ([]byte, error) {
	ctx, err := hashing.New(e.acquirer, e.hashAlgorithm(), "")
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return digestWrapped(ctx, e.SecretPrepend, secret, e.SecretAppend)
}

func (e *ECDiffieHellman) deriveHMAC(secret []byte) ([]byte, error) {
	macKey := e.HMACKey
	if macKey == nil {
		macKey = secret
	}
	ctx, err := hashing.NewHMAC(e.acquirer, e.hashAlgorithm(), "", macKey)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return digestWrapped(ctx, e.SecretPrepend, secret, e.SecretAppend)
}

func (e *ECDiffieHellman) deriveTLS(secret []byte) ([]byte, error) {
	return tlsPRF(e.acquirer, e.hashAlgorithm(), secret, e.Label, e.Seed, TLSMasterSecretSize)
}

// Close disposes the owned key.
func (e *ECDiffieHellman) Close() error {
	if e.key == nil {
		return nil
	}
	err := e.key.Close()
	e.key = nil
	e.adopted = false
	return err
}

func digestWrapped(ctx *hashing.Context, parts ...[]byte) ([]byte, error) {
	if err := ctx.Initialize(); err != nil {
		return nil, err
	}
	for _, p := range parts {
		if err := ctx.Update(p, 0, len(p)); err != nil {
			return nil, err
		}
	}
	return ctx.Final()
}
