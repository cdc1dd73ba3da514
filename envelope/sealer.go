package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	PurposeDataKey = "data-key"
	PurposeRecord  = "record"
)

// Envelope is sealed data plus what is needed to open it again.
type Envelope struct {
	KeyID      string
	WrappedKey []byte
	// Ciphertext is the GCM nonce followed by the sealed data.
	Ciphertext []byte
}

// Sealer encrypts data with AES-256-GCM under data keys from a KeyProvider.
type Sealer struct {
	provider KeyProvider
}

func NewSealer(provider KeyProvider) *Sealer {
	return &Sealer{provider: provider}
}

func (s *Sealer) KeyID() string {
	return s.provider.KeyID()
}

// Seal encrypts plaintext. keyCtx is bound to the data key and, tagged with
// a separate purpose, authenticated alongside the ciphertext.
func (s *Sealer) Seal(ctx context.Context, plaintext []byte, keyCtx Context) (*Envelope, error) {
	dataKey, err := s.provider.GenerateDataKey(ctx, keyCtx.With("purpose", PurposeDataKey))
	if err != nil {
		return nil, fmt.Errorf("failed to get data key: %w", err)
	}
	defer dataKey.Destroy()

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	aad := keyCtx.With("purpose", PurposeRecord).Bytes()
	return &Envelope{
		KeyID:      s.provider.KeyID(),
		WrappedKey: append([]byte(nil), dataKey.Wrapped...),
		Ciphertext: gcm.Seal(nonce, nonce, plaintext, aad),
	}, nil
}

// Open reverses Seal. It fails if keyCtx differs from the one used to seal.
func (s *Sealer) Open(ctx context.Context, env *Envelope, keyCtx Context) ([]byte, error) {
	if env.KeyID != s.provider.KeyID() {
		return nil, fmt.Errorf("sealed with key %q, provider holds %q", env.KeyID, s.provider.KeyID())
	}

	dataKey, err := s.provider.UnwrapDataKey(ctx, keyCtx.With("purpose", PurposeDataKey), env.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	defer dataKey.Destroy()

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(env.Ciphertext) < nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	aad := keyCtx.With("purpose", PurposeRecord).Bytes()
	nonce, sealed := env.Ciphertext[:nonceSize], env.Ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, sealed, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
