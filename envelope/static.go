package envelope

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"temporal-sa/crypto-provider/hashing"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
	"temporal-sa/crypto-provider/symmetric"
)

const staticMACSize = 32

type (
	StaticKeyOptions struct {
		KeyID string `mapstructure:"key_id"`
		// MasterKey is 32 bytes, hex encoded.
		MasterKey string `mapstructure:"master_key"`
	}

	// Acquirer is the part of provider.Manager the static provider needs.
	Acquirer interface {
		Acquire(algorithm, implementation string, flags provider.OpenFlags) (*provider.Handle, error)
	}

	// StaticKeyProvider wraps data keys locally under a master key using the
	// provider layer: AES-256-CBC with PKCS7, then HMAC-SHA256 over the key
	// id, the context and the ciphertext. Wrapped layout: iv || ct || mac.
	StaticKeyProvider struct {
		acquirer Acquirer
		keyID    string
		encKey   []byte
		macKey   []byte
	}
)

func NewStaticKeyProvider(acquirer Acquirer, options StaticKeyOptions) (*StaticKeyProvider, error) {
	master, err := hex.DecodeString(options.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not hex: %w", err)
	}
	defer zeroize.Bytes(master)
	if len(master) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(master))
	}
	if options.KeyID == "" {
		return nil, fmt.Errorf("key id is required")
	}

	s := &StaticKeyProvider{acquirer: acquirer, keyID: options.KeyID}
	if s.encKey, err = s.mac(master, []byte("wrap")); err != nil {
		return nil, err
	}
	if s.macKey, err = s.mac(master, []byte("auth")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StaticKeyProvider) KeyID() string {
	return s.keyID
}

func (s *StaticKeyProvider) GenerateDataKey(_ context.Context, keyCtx Context) (*DataKey, error) {
	plaintext := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, plaintext); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	alg, err := s.newCipher()
	if err != nil {
		return nil, err
	}
	defer alg.Close()
	if err := alg.GenerateIV(); err != nil {
		return nil, err
	}
	iv, err := alg.IV()
	if err != nil {
		return nil, err
	}

	ct, err := alg.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	wrapped := append(iv, ct...)
	tag, err := s.mac(s.macKey, s.authData(keyCtx, wrapped))
	if err != nil {
		return nil, err
	}

	return &DataKey{
		Plaintext: plaintext,
		Wrapped:   append(wrapped, tag...),
	}, nil
}

func (s *StaticKeyProvider) UnwrapDataKey(_ context.Context, keyCtx Context, wrapped []byte) (*DataKey, error) {
	alg, err := s.newCipher()
	if err != nil {
		return nil, err
	}
	defer alg.Close()

	ivSize := alg.BlockSize()
	if len(wrapped) < ivSize+alg.BlockSize()+staticMACSize {
		return nil, fmt.Errorf("wrapped data key too short")
	}

	body, tag := wrapped[:len(wrapped)-staticMACSize], wrapped[len(wrapped)-staticMACSize:]
	expected, err := s.mac(s.macKey, s.authData(keyCtx, body))
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(expected, tag) {
		return nil, fmt.Errorf("failed to decrypt data key: authentication failed")
	}

	if err := alg.SetIV(body[:ivSize]); err != nil {
		return nil, err
	}
	plaintext, err := alg.Decrypt(body[ivSize:])
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}

	return &DataKey{
		Plaintext: plaintext,
		Wrapped:   wrapped,
	}, nil
}

func (s *StaticKeyProvider) newCipher() (*symmetric.Algorithm, error) {
	alg, err := symmetric.New(s.acquirer, provider.AlgorithmAES, "")
	if err != nil {
		return nil, err
	}
	if err := alg.SetKey(s.encKey); err != nil {
		alg.Close()
		return nil, err
	}
	return alg, nil
}

func (s *StaticKeyProvider) mac(key, data []byte) ([]byte, error) {
	ctx, err := hashing.NewHMAC(s.acquirer, provider.AlgorithmSHA256, "", key)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()
	return ctx.HashData(data)
}

func (s *StaticKeyProvider) authData(keyCtx Context, wrapped []byte) []byte {
	var out []byte
	out = append(out, s.keyID...)
	out = append(out, 0)
	out = append(out, keyCtx.Bytes()...)
	out = append(out, 0)
	return append(out, wrapped...)
}
