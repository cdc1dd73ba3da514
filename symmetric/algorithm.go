// Package symmetric layers padding, chaining modes and block transforms on
// top of provider block cipher engines.
package symmetric

import (
	"crypto/rand"
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
)

const DefaultFeedbackSize = 8

// Acquirer is the part of provider.Manager an Algorithm needs.
type Acquirer interface {
	Acquire(algorithm, implementation string, flags provider.OpenFlags) (*provider.Handle, error)
}

// Algorithm holds a key, an IV and the mode settings for one block cipher.
// It creates transforms that each own a duplicate of the native key.
type Algorithm struct {
	Mode    provider.ChainingMode
	Padding PaddingMode
	// FeedbackSize in bits, used by CFB.
	FeedbackSize int

	handle *provider.Handle
	engine provider.BlockCipher
	key    provider.SymmetricKey
	iv     []byte
	closed bool
}

// New opens algorithm on implementation (empty for the default) with CBC
// and PKCS7. A key is generated lazily on first use.
func New(acquirer Acquirer, algorithm, implementation string) (*Algorithm, error) {
	handle, err := acquirer.Acquire(algorithm, implementation, provider.FlagNone)
	if err != nil {
		return nil, err
	}
	return newAlgorithm(handle)
}

// NewFromNativeKey wraps an existing native key, such as one opened from
// persistent storage. Both handle and key are duplicated.
func NewFromNativeKey(handle *provider.Handle, key provider.SymmetricKey) (*Algorithm, error) {
	if handle == nil || key == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "symmetric.NewFromNativeKey", "nil handle or key")
	}
	dup, err := handle.Duplicate()
	if err != nil {
		return nil, err
	}
	a, err := newAlgorithm(dup)
	if err != nil {
		return nil, err
	}
	if a.key, err = key.Duplicate(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newAlgorithm(handle *provider.Handle) (*Algorithm, error) {
	engine, err := provider.As[provider.BlockCipher](handle)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return &Algorithm{
		Mode:         ModeCBC,
		Padding:      PaddingPKCS7,
		FeedbackSize: DefaultFeedbackSize,
		handle:       handle,
		engine:       engine,
	}, nil
}

func (a *Algorithm) Name() string {
	return a.handle.Algorithm()
}

func (a *Algorithm) Implementation() string {
	return a.handle.Implementation()
}

func (a *Algorithm) BlockSize() int {
	return a.engine.BlockSize()
}

func (a *Algorithm) LegalKeySizes() []provider.KeySizes {
	return a.engine.LegalKeySizes()
}

func (a *Algorithm) ValidKeySize(bits int) bool {
	return provider.ValidKeySize(bits, a.engine.LegalKeySizes())
}

// KeySize returns the current key size in bits, generating a key if none is set.
func (a *Algorithm) KeySize() (int, error) {
	key, err := a.nativeKey()
	if err != nil {
		return 0, err
	}
	return key.KeySize(), nil
}

// Key returns a copy of the raw key, generating one if none is set.
func (a *Algorithm) Key() ([]byte, error) {
	key, err := a.nativeKey()
	if err != nil {
		return nil, err
	}
	return key.Export()
}

// SetKey imports raw key bytes, replacing and closing any previous key.
func (a *Algorithm) SetKey(raw []byte) error {
	const op = "symmetric.SetKey"
	if err := a.checkOpen(op); err != nil {
		return err
	}
	if raw == nil {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}
	if !a.ValidKeySize(len(raw) * 8) {
		return cryptoerr.New(cryptoerr.KindArgumentRange, op, "%d-bit key is not valid for %s", len(raw)*8, a.Name())
	}
	key, err := a.engine.ImportKey(raw)
	if err != nil {
		return err
	}
	a.replaceKey(key)
	return nil
}

// GenerateKey replaces the key with a random one. Zero bits selects the
// largest legal size.
func (a *Algorithm) GenerateKey(bits int) error {
	const op = "symmetric.GenerateKey"
	if err := a.checkOpen(op); err != nil {
		return err
	}
	if bits == 0 {
		for _, s := range a.engine.LegalKeySizes() {
			if s.MaxSize > bits {
				bits = s.MaxSize
			}
		}
	}
	if !a.ValidKeySize(bits) {
		return cryptoerr.New(cryptoerr.KindArgumentRange, op, "%d-bit key is not valid for %s", bits, a.Name())
	}
	key, err := a.engine.GenerateKey(bits)
	if err != nil {
		return err
	}
	a.replaceKey(key)
	return nil
}

// IV returns a copy of the IV, generating one if none is set.
func (a *Algorithm) IV() ([]byte, error) {
	if a.iv == nil {
		if err := a.GenerateIV(); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), a.iv...), nil
}

// SetIV stores a copy of the first block of iv. Shorter values are rejected.
func (a *Algorithm) SetIV(iv []byte) error {
	const op = "symmetric.SetIV"
	if iv == nil {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil iv")
	}
	if len(iv) < a.BlockSize() {
		return cryptoerr.New(cryptoerr.KindArgumentRange, op, "iv must be at least %d bytes", a.BlockSize())
	}
	zeroize.Bytes(a.iv)
	a.iv = append([]byte(nil), iv[:a.BlockSize()]...)
	return nil
}

func (a *Algorithm) GenerateIV() error {
	iv := make([]byte, a.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return cryptoerr.Wrap(cryptoerr.KindCryptographicFailure, "symmetric.GenerateIV", err)
	}
	zeroize.Bytes(a.iv)
	a.iv = iv
	return nil
}

// CreateEncryptor returns a transform over the current key and IV,
// generating whichever is missing.
func (a *Algorithm) CreateEncryptor() (*Transform, error) {
	key, err := a.nativeKey()
	if err != nil {
		return nil, err
	}
	if a.Mode != ModeECB && a.iv == nil {
		if err := a.GenerateIV(); err != nil {
			return nil, err
		}
	}
	return NewTransform(key, Encrypt, a.transformOptions())
}

// CreateDecryptor returns a transform over the current key and IV. A
// missing IV is an error outside ECB.
func (a *Algorithm) CreateDecryptor() (*Transform, error) {
	if err := a.checkOpen("symmetric.CreateDecryptor"); err != nil {
		return nil, err
	}
	if a.key == nil {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, "symmetric.CreateDecryptor", "no key set")
	}
	return NewTransform(a.key, Decrypt, a.transformOptions())
}

// Encrypt runs plaintext through a fresh encryptor in one call.
func (a *Algorithm) Encrypt(plaintext []byte) ([]byte, error) {
	t, err := a.CreateEncryptor()
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.TransformFinalBlock(plaintext, 0, len(plaintext))
}

// Decrypt runs ciphertext through a fresh decryptor in one call.
func (a *Algorithm) Decrypt(ciphertext []byte) ([]byte, error) {
	t, err := a.CreateDecryptor()
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.TransformFinalBlock(ciphertext, 0, len(ciphertext))
}

// NativeKey returns the current native key, generating one if none is set.
// The Algorithm keeps ownership.
func (a *Algorithm) NativeKey() (provider.SymmetricKey, error) {
	return a.nativeKey()
}

func (a *Algorithm) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.replaceKey(nil)
	zeroize.Bytes(a.iv)
	a.iv = nil
	return a.handle.Close()
}

func (a *Algorithm) nativeKey() (provider.SymmetricKey, error) {
	if err := a.checkOpen("symmetric.Key"); err != nil {
		return nil, err
	}
	if a.key == nil {
		if err := a.GenerateKey(0); err != nil {
			return nil, err
		}
	}
	return a.key, nil
}

func (a *Algorithm) replaceKey(key provider.SymmetricKey) {
	if a.key != nil {
		a.key.Close()
	}
	a.key = key
}

func (a *Algorithm) transformOptions() TransformOptions {
	options := TransformOptions{
		Mode:    a.Mode,
		IV:      a.iv,
		Padding: a.Padding,
	}
	if a.Mode == ModeCFB {
		options.FeedbackSize = a.FeedbackSize
	}
	return options
}

func (a *Algorithm) checkOpen(op string) error {
	if a.closed {
		return cryptoerr.New(cryptoerr.KindInvalidState, op, "algorithm is closed")
	}
	return nil
}
