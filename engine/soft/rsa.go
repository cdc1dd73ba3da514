package soft

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/provider"
)

// RSAKeySizes is the modulus range accepted for generation.
var RSAKeySizes = []provider.KeySizes{{MinSize: 1024, MaxSize: 16384, SkipSize: 64}}

type rsaEngine struct {
	closed atomic.Bool
}

// NewRSA returns an engine implementing provider.KeyGenerator,
// provider.SignatureEngine and provider.AsymmetricCipher.
func NewRSA() provider.Engine {
	return &rsaEngine{}
}

func (r *rsaEngine) Algorithm() string {
	return provider.AlgorithmRSA
}

func (r *rsaEngine) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *rsaEngine) LegalKeySizes() []provider.KeySizes {
	return RSAKeySizes
}

func (r *rsaEngine) GenerateKeyPair(bits int) (crypto.PrivateKey, error) {
	if r.closed.Load() {
		return nil, engineClosed(provider.AlgorithmRSA)
	}
	if !provider.ValidKeySize(bits, RSAKeySizes) {
		return nil, cryptoerr.Native("engine.GenerateKeyPair", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("%d-bit modulus is not supported", bits))
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, cryptoerr.Native("engine.GenerateKeyPair", cryptoerr.NteBadData, err)
	}
	return priv, nil
}

func (r *rsaEngine) SignHash(priv crypto.PrivateKey, digest []byte, opts provider.SignOptions) ([]byte, error) {
	if r.closed.Load() {
		return nil, engineClosed(provider.AlgorithmRSA)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, cryptoerr.Native("engine.SignHash", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("expected *rsa.PrivateKey, got %T", priv))
	}

	var (
		sig []byte
		err error
	)
	if opts.PSS {
		sig, err = rsa.SignPSS(rand.Reader, key, opts.Hash, digest, pssOptions(opts))
	} else {
		sig, err = rsa.SignPKCS1v15(rand.Reader, key, opts.Hash, digest)
	}
	if err != nil {
		return nil, cryptoerr.Native("engine.SignHash", cryptoerr.StatusInvalidParameter, err)
	}
	return sig, nil
}

func (r *rsaEngine) VerifyHash(pub crypto.PublicKey, digest, signature []byte, opts provider.SignOptions) (bool, error) {
	if r.closed.Load() {
		return false, engineClosed(provider.AlgorithmRSA)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false, cryptoerr.Native("engine.VerifyHash", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("expected *rsa.PublicKey, got %T", pub))
	}

	var err error
	if opts.PSS {
		err = rsa.VerifyPSS(key, opts.Hash, digest, signature, pssOptions(opts))
	} else {
		err = rsa.VerifyPKCS1v15(key, opts.Hash, digest, signature)
	}
	if errors.Is(err, rsa.ErrVerification) {
		return false, nil
	}
	if err != nil {
		return false, cryptoerr.Native("engine.VerifyHash", cryptoerr.StatusInvalidParameter, err)
	}
	return true, nil
}

func (r *rsaEngine) Encrypt(pub *rsa.PublicKey, data []byte, opts provider.EncryptOptions) ([]byte, error) {
	if r.closed.Load() {
		return nil, engineClosed(provider.AlgorithmRSA)
	}

	var (
		out []byte
		err error
	)
	if opts.OAEP {
		if !opts.Hash.Available() {
			return nil, cryptoerr.Native("engine.Encrypt", cryptoerr.StatusNotSupported,
				fmt.Errorf("oaep hash %v is not available", opts.Hash))
		}
		out, err = rsa.EncryptOAEP(opts.Hash.New(), rand.Reader, pub, data, opts.Label)
	} else {
		out, err = rsa.EncryptPKCS1v15(rand.Reader, pub, data)
	}
	if err != nil {
		return nil, cryptoerr.Native("engine.Encrypt", cryptoerr.StatusInvalidParameter, err)
	}
	return out, nil
}

func (r *rsaEngine) Decrypt(priv *rsa.PrivateKey, data []byte, opts provider.EncryptOptions) ([]byte, error) {
	if r.closed.Load() {
		return nil, engineClosed(provider.AlgorithmRSA)
	}

	var (
		out []byte
		err error
	)
	if opts.OAEP {
		if !opts.Hash.Available() {
			return nil, cryptoerr.Native("engine.Decrypt", cryptoerr.StatusNotSupported,
				fmt.Errorf("oaep hash %v is not available", opts.Hash))
		}
		out, err = rsa.DecryptOAEP(opts.Hash.New(), rand.Reader, priv, data, opts.Label)
	} else {
		out, err = rsa.DecryptPKCS1v15(rand.Reader, priv, data)
	}
	if err != nil {
		return nil, cryptoerr.Native("engine.Decrypt", cryptoerr.NteBadData, err)
	}
	return out, nil
}

func pssOptions(opts provider.SignOptions) *rsa.PSSOptions {
	salt := opts.SaltLength
	if salt == 0 {
		salt = rsa.PSSSaltLengthEqualsHash
	}
	return &rsa.PSSOptions{SaltLength: salt, Hash: opts.Hash}
}
