package provider

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"hash"
	"strings"
	"temporal-sa/crypto-provider/cryptoerr"
)

// Algorithm identifiers understood by the bundled engines. Engines forward
// these names; callers may use any name a registered engine declares.
const (
	AlgorithmMD5      = "MD5"
	AlgorithmSHA1     = "SHA1"
	AlgorithmSHA256   = "SHA256"
	AlgorithmSHA384   = "SHA384"
	AlgorithmSHA512   = "SHA512"
	AlgorithmSHA3_256 = "SHA3-256"
	AlgorithmSHA3_384 = "SHA3-384"
	AlgorithmSHA3_512 = "SHA3-512"
	AlgorithmSM3      = "SM3"

	AlgorithmAES       = "AES"
	AlgorithmDES       = "DES"
	AlgorithmTripleDES = "3DES"
	AlgorithmSM4       = "SM4"

	AlgorithmRSA       = "RSA"
	AlgorithmECDSAP256 = "ECDSA_P256"
	AlgorithmECDSAP384 = "ECDSA_P384"
	AlgorithmECDSAP521 = "ECDSA_P521"
	AlgorithmECDHP256  = "ECDH_P256"
	AlgorithmECDHP384  = "ECDH_P384"
	AlgorithmECDHP521  = "ECDH_P521"
)

// OpenFlags modify how an engine is opened.
type OpenFlags uint32

const (
	FlagNone OpenFlags = 0
	// FlagHMAC opens a hash engine able to compute keyed MACs.
	FlagHMAC OpenFlags = 0x00000008
)

// ChainingMode is the block chaining an engine applies across calls.
type ChainingMode int

const (
	ChainingCBC ChainingMode = iota + 1
	ChainingECB
	ChainingOFB
	ChainingCFB
)

func (m ChainingMode) String() string {
	switch m {
	case ChainingCBC:
		return "CBC"
	case ChainingECB:
		return "ECB"
	case ChainingOFB:
		return "OFB"
	case ChainingCFB:
		return "CFB"
	}
	return fmt.Sprintf("ChainingMode(%d)", int(m))
}

// ParseChainingMode accepts the names printed by String, in any case.
func ParseChainingMode(name string) (ChainingMode, error) {
	for _, m := range []ChainingMode{ChainingCBC, ChainingECB, ChainingOFB, ChainingCFB} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, cryptoerr.New(cryptoerr.KindArgumentRange, "provider.ParseChainingMode", "unknown chaining mode %q", name)
}

// KeySizes describes a legal key size range in bits.
type KeySizes struct {
	MinSize  int
	MaxSize  int
	SkipSize int
}

func (k KeySizes) Contains(bits int) bool {
	if bits < k.MinSize || bits > k.MaxSize {
		return false
	}
	if k.SkipSize == 0 {
		return bits == k.MinSize
	}
	return (bits-k.MinSize)%k.SkipSize == 0
}

// ValidKeySize reports whether bits falls in any of the ranges.
func ValidKeySize(bits int, sizes []KeySizes) bool {
	for _, s := range sizes {
		if s.Contains(bits) {
			return true
		}
	}
	return false
}

type (
	// Engine is the common surface of every algorithm engine.
	Engine interface {
		Algorithm() string
		Close() error
	}

	Hasher interface {
		Engine
		DigestSize() int
		BlockSize() int
		NewHash() (hash.Hash, error)
	}

	// MACHasher is implemented by hash engines opened with FlagHMAC.
	MACHasher interface {
		Hasher
		NewMAC(key []byte) (hash.Hash, error)
	}

	BlockCipher interface {
		Engine
		BlockSize() int
		LegalKeySizes() []KeySizes
		// SupportsChaining reports whether mode with the given feedback size
		// (in bytes, CFB only) can be set on keys of this engine.
		SupportsChaining(mode ChainingMode, feedbackBytes int) bool
		ImportKey(key []byte) (SymmetricKey, error)
		GenerateKey(bits int) (SymmetricKey, error)
	}

	// SymmetricKey is a native key handle. Encrypt and Decrypt transform buf in
	// place and keep chaining state between calls; a call with final set
	// returns the chaining state to the IV afterwards. Not safe for concurrent use.
	SymmetricKey interface {
		BlockSize() int
		KeySize() int
		SetChaining(mode ChainingMode, feedbackBytes int) error
		SetIV(iv []byte) error
		Encrypt(buf []byte, final bool) error
		Decrypt(buf []byte, final bool) error
		Duplicate() (SymmetricKey, error)
		// Export returns a copy of the raw key bytes.
		Export() ([]byte, error)
		Close() error
	}

	KeyGenerator interface {
		Engine
		LegalKeySizes() []KeySizes
		GenerateKeyPair(bits int) (crypto.PrivateKey, error)
	}

	// CurveEngine is implemented by engines bound to one named curve.
	CurveEngine interface {
		Curve() elliptic.Curve
	}

	SignOptions struct {
		Hash crypto.Hash
		// PSS selects RSASSA-PSS; RSA engines use PKCS#1 v1.5 otherwise.
		PSS        bool
		SaltLength int
	}

	SignatureEngine interface {
		Engine
		SignHash(priv crypto.PrivateKey, digest []byte, opts SignOptions) ([]byte, error)
		VerifyHash(pub crypto.PublicKey, digest, signature []byte, opts SignOptions) (bool, error)
	}

	AgreementEngine interface {
		Engine
		CurveEngine
		SecretAgreement(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error)
	}

	EncryptOptions struct {
		// OAEP selects RSAES-OAEP with Hash; PKCS#1 v1.5 otherwise.
		OAEP  bool
		Hash  crypto.Hash
		Label []byte
	}

	AsymmetricCipher interface {
		Engine
		Encrypt(pub *rsa.PublicKey, data []byte, opts EncryptOptions) ([]byte, error)
		Decrypt(priv *rsa.PrivateKey, data []byte, opts EncryptOptions) ([]byte, error)
	}
)
