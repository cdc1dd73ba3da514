package signature

import (
	"fmt"
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/provider"
)

const DefaultRSAKeySize = 2048

// SignaturePadding selects the RSA signature scheme. The zero value is
// PKCS#1 v1.5.
type SignaturePadding int

const (
	SignaturePKCS1 SignaturePadding = iota
	SignaturePSS
)

func (p SignaturePadding) String() string {
	switch p {
	case SignaturePKCS1:
		return "pkcs1"
	case SignaturePSS:
		return "pss"
	}
	return fmt.Sprintf("SignaturePadding(%d)", int(p))
}

// EncryptionPadding selects the RSA encryption scheme. The zero value is
// PKCS#1 v1.5.
type EncryptionPadding int

const (
	EncryptionPKCS1 EncryptionPadding = iota
	EncryptionOAEP
)

func (p EncryptionPadding) String() string {
	switch p {
	case EncryptionPKCS1:
		return "pkcs1"
	case EncryptionOAEP:
		return "oaep"
	}
	return fmt.Sprintf("EncryptionPadding(%d)", int(p))
}

type (
	RSAOptions struct {
		// KeySize in bits. Zero uses DefaultRSAKeySize.
		KeySize int
	}

	// RSA signs, verifies, encrypts and decrypts with one RSA key.
	RSA struct {
		holder keyHolder
		sizes  []provider.KeySizes
	}
)

func NewRSA(storage *key.StorageProvider, acquirer hashing.Acquirer, options RSAOptions) (*RSA, error) {
	if storage == nil || acquirer == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "signature.NewRSA", "storage and acquirer are required")
	}
	sizes, err := rsaKeySizes(acquirer)
	if err != nil {
		return nil, err
	}

	r := &RSA{sizes: sizes}
	r.holder = keyHolder{
		storage:   storage,
		acquirer:  acquirer,
		algorithm: r.algorithmForSize,
	}

	size := options.KeySize
	if size == 0 {
		size = DefaultRSAKeySize
	}
	if err := r.holder.setKeySize(size); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRSAFromKey wraps an existing RSA key, which may be public only. The
// returned value owns k.
func NewRSAFromKey(storage *key.StorageProvider, acquirer hashing.Acquirer, k *key.Key) (*RSA, error) {
	if err := checkGroup("signature.NewRSAFromKey", k, key.GroupRSA); err != nil {
		return nil, err
	}
	r, err := NewRSA(storage, acquirer, RSAOptions{})
	if err != nil {
		return nil, err
	}
	if err := r.holder.adopt(k); err != nil {
		return nil, err
	}
	return r, nil
}

func rsaKeySizes(acquirer hashing.Acquirer) ([]provider.KeySizes, error) {
	handle, err := acquirer.Acquire(provider.AlgorithmRSA, "", provider.FlagNone)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	generator, err := provider.As[provider.KeyGenerator](handle)
	if err != nil {
		return nil, err
	}
	return generator.LegalKeySizes(), nil
}

func (r *RSA) algorithmForSize(bits int) (string, error) {
	if !provider.ValidKeySize(bits, r.sizes) {
		return "", cryptoerr.New(cryptoerr.KindArgumentRange, "signature.RSA", "unsupported key size %d", bits)
	}
	return provider.AlgorithmRSA, nil
}

func (r *RSA) LegalKeySizes() []provider.KeySizes {
	return r.sizes
}

func (r *RSA) KeySize() int {
	return r.holder.keySize
}

func (r *RSA) SetKeySize(bits int) error {
	return r.holder.setKeySize(bits)
}

func (r *RSA) Key() (*key.Key, error) {
	return r.holder.current()
}

func (r *RSA) SignData(data []byte, hashAlgorithm string, padding SignaturePadding) ([]byte, error) {
	digest, err := r.holder.digest(hashAlgorithm, data)
	if err != nil {
		return nil, err
	}
	return r.SignHash(digest, hashAlgorithm, padding)
}

func (r *RSA) SignDataStream(rd io.Reader, hashAlgorithm string, padding SignaturePadding) ([]byte, error) {
	digest, err := r.holder.digestStream(hashAlgorithm, rd)
	if err != nil {
		return nil, err
	}
	return r.SignHash(digest, hashAlgorithm, padding)
}

func (r *RSA) VerifyData(data, signature []byte, hashAlgorithm string, padding SignaturePadding) (bool, error) {
	digest, err := r.holder.digest(hashAlgorithm, data)
	if err != nil {
		return false, err
	}
	return r.VerifyHash(digest, signature, hashAlgorithm, padding)
}

func (r *RSA) SignHash(digest []byte, hashAlgorithm string, padding SignaturePadding) ([]byte, error) {
	const op = "signature.SignHash"
	if digest == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil digest")
	}
	opts, err := signOptions(op, hashAlgorithm, padding)
	if err != nil {
		return nil, err
	}
	k, err := r.holder.current()
	if err != nil {
		return nil, err
	}
	return k.SignHash(digest, opts)
}

func (r *RSA) VerifyHash(digest, signature []byte, hashAlgorithm string, padding SignaturePadding) (bool, error) {
	const op = "signature.VerifyHash"
	if digest == nil || signature == nil {
		return false, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil digest or signature")
	}
	opts, err := signOptions(op, hashAlgorithm, padding)
	if err != nil {
		return false, err
	}
	k, err := r.holder.current()
	if err != nil {
		return false, err
	}
	return k.VerifyHash(digest, signature, opts)
}

// Encrypt encrypts data with the public key. hashAlgorithm only applies to
// OAEP and defaults to SHA1 there.
func (r *RSA) Encrypt(data []byte, padding EncryptionPadding, hashAlgorithm string) ([]byte, error) {
	const op = "signature.Encrypt"
	if data == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil data")
	}
	opts, err := encryptOptions(op, padding, hashAlgorithm)
	if err != nil {
		return nil, err
	}
	k, err := r.holder.current()
	if err != nil {
		return nil, err
	}
	return k.Encrypt(data, opts)
}

func (r *RSA) Decrypt(data []byte, padding EncryptionPadding, hashAlgorithm string) ([]byte, error) {
	const op = "signature.Decrypt"
	if data == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil data")
	}
	opts, err := encryptOptions(op, padding, hashAlgorithm)
	if err != nil {
		return nil, err
	}
	k, err := r.holder.current()
	if err != nil {
		return nil, err
	}
	return k.Decrypt(data, opts)
}

func (r *RSA) Close() error {
	return r.holder.close()
}

func signOptions(op, hashAlgorithm string, padding SignaturePadding) (provider.SignOptions, error) {
	if padding != SignaturePKCS1 && padding != SignaturePSS {
		return provider.SignOptions{}, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, op, "unknown signature padding %s", padding)
	}
	h, err := HashFor(hashAlgorithm)
	if err != nil {
		return provider.SignOptions{}, err
	}
	return provider.SignOptions{Hash: h, PSS: padding == SignaturePSS}, nil
}

func encryptOptions(op string, padding EncryptionPadding, hashAlgorithm string) (provider.EncryptOptions, error) {
	switch padding {
	case EncryptionPKCS1:
		return provider.EncryptOptions{}, nil
	case EncryptionOAEP:
		if hashAlgorithm == "" {
			hashAlgorithm = provider.AlgorithmSHA1
		}
		h, err := HashFor(hashAlgorithm)
		if err != nil {
			return provider.EncryptOptions{}, err
		}
		return provider.EncryptOptions{OAEP: true, Hash: h}, nil
	}
	return provider.EncryptOptions{}, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, op, "unknown encryption padding %s", padding)
}
