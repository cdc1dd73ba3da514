package signature

import (
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/key"
	"temporal-sa/crypto-provider/provider"
)

const DefaultECDSAKeySize = 521

type (
	ECDSAOptions struct {
		// KeySize in bits. Zero uses DefaultECDSAKeySize.
		KeySize int
		// HashAlgorithm digests data for SignData and VerifyData.
		HashAlgorithm string
	}

	// ECDSA signs with a P-256, P-384 or P-521 key. Signatures are the
	// fixed-width r||s encoding of IEEE P1363.
	ECDSA struct {
		holder        keyHolder
		HashAlgorithm string
	}
)

func NewECDSA(storage *key.StorageProvider, acquirer hashing.Acquirer, options ECDSAOptions) (*ECDSA, error) {
	if storage == nil || acquirer == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "signature.NewECDSA", "storage and acquirer are required")
	}
	size := options.KeySize
	if size == 0 {
		size = DefaultECDSAKeySize
	}
	if _, err := ECDSAAlgorithmForSize(size); err != nil {
		return nil, err
	}
	hash := options.HashAlgorithm
	if hash == "" {
		hash = DefaultHashAlgorithm
	}

	return &ECDSA{
		holder: keyHolder{
			storage:   storage,
			acquirer:  acquirer,
			keySize:   size,
			algorithm: ECDSAAlgorithmForSize,
		},
		HashAlgorithm: hash,
	}, nil
}

// NewECDSAFromKey wraps an existing ECDSA key, which may be public only. The
// returned value owns k.
func NewECDSAFromKey(storage *key.StorageProvider, acquirer hashing.Acquirer, k *key.Key) (*ECDSA, error) {
	if err := checkGroup("signature.NewECDSAFromKey", k, key.GroupECDSA); err != nil {
		return nil, err
	}
	e, err := NewECDSA(storage, acquirer, ECDSAOptions{})
	if err != nil {
		return nil, err
	}
	if err := e.holder.adopt(k); err != nil {
		return nil, err
	}
	return e, nil
}

func ECDSAAlgorithmForSize(bits int) (string, error) {
	switch bits {
	case 256:
		return provider.AlgorithmECDSAP256, nil
	case 384:
		return provider.AlgorithmECDSAP384, nil
	case 521:
		return provider.AlgorithmECDSAP521, nil
	}
	return "", cryptoerr.New(cryptoerr.KindArgumentRange, "signature.ECDSAAlgorithmForSize", "unsupported key size %d", bits)
}

func (e *ECDSA) KeySize() int {
	return e.holder.keySize
}

func (e *ECDSA) SetKeySize(bits int) error {
	return e.holder.setKeySize(bits)
}

func (e *ECDSA) Key() (*key.Key, error) {
	return e.holder.current()
}

func (e *ECDSA) SignData(data []byte) ([]byte, error) {
	digest, err := e.holder.digest(e.HashAlgorithm, data)
	if err != nil {
		return nil, err
	}
	return e.SignHash(digest)
}

func (e *ECDSA) SignDataStream(r io.Reader) ([]byte, error) {
	digest, err := e.holder.digestStream(e.HashAlgorithm, r)
	if err != nil {
		return nil, err
	}
	return e.SignHash(digest)
}

func (e *ECDSA) VerifyData(data, signature []byte) (bool, error) {
	digest, err := e.holder.digest(e.HashAlgorithm, data)
	if err != nil {
		return false, err
	}
	return e.VerifyHash(digest, signature)
}

func (e *ECDSA) SignHash(digest []byte) ([]byte, error) {
	if digest == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "signature.SignHash", "nil digest")
	}
	k, err := e.holder.current()
	if err != nil {
		return nil, err
	}
	return k.SignHash(digest, provider.SignOptions{})
}

// VerifyHash reports whether signature is valid for digest. A signature of
// the wrong length is invalid, not an error.
func (e *ECDSA) VerifyHash(digest, signature []byte) (bool, error) {
	if digest == nil || signature == nil {
		return false, cryptoerr.New(cryptoerr.KindArgumentNull, "signature.VerifyHash", "nil digest or signature")
	}
	k, err := e.holder.current()
	if err != nil {
		return false, err
	}
	return k.VerifyHash(digest, signature, provider.SignOptions{})
}

// ToXML renders the public key as an RFC 4050 ECDSAKeyValue document.
func (e *ECDSA) ToXML() (string, error) {
	k, err := e.holder.current()
	if err != nil {
		return "", err
	}
	return k.ExportXML()
}

// FromXML replaces the key with the public key in an ECDSAKeyValue
// document. The result verifies but cannot sign.
func (e *ECDSA) FromXML(document string) error {
	return e.holder.adoptXML("signature.FromXML", document, key.GroupECDSA)
}

func (e *ECDSA) Close() error {
	return e.holder.close()
}
