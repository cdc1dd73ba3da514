package soft

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/provider"
)

type (
	ecEngine struct {
		algorithm string
		curve     elliptic.Curve
		closed    atomic.Bool
	}

	ecdsaEngine struct {
		ecEngine
	}

	ecdhEngine struct {
		ecEngine
	}
)

// NewECDSA returns an engine implementing provider.KeyGenerator,
// provider.SignatureEngine and provider.CurveEngine. Signatures are the
// fixed-width r||s concatenation.
func NewECDSA(algorithm string, curve elliptic.Curve) provider.Engine {
	return &ecdsaEngine{ecEngine{algorithm: algorithm, curve: curve}}
}

// NewECDH returns an engine implementing provider.KeyGenerator and
// provider.AgreementEngine.
func NewECDH(algorithm string, curve elliptic.Curve) provider.Engine {
	return &ecdhEngine{ecEngine{algorithm: algorithm, curve: curve}}
}

func (e *ecEngine) Algorithm() string {
	return e.algorithm
}

func (e *ecEngine) Curve() elliptic.Curve {
	return e.curve
}

func (e *ecEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *ecEngine) LegalKeySizes() []provider.KeySizes {
	bits := e.curve.Params().BitSize
	return []provider.KeySizes{{MinSize: bits, MaxSize: bits}}
}

func (e *ecEngine) GenerateKeyPair(bits int) (crypto.PrivateKey, error) {
	if e.closed.Load() {
		return nil, engineClosed(e.algorithm)
	}
	if bits != 0 && bits != e.curve.Params().BitSize {
		return nil, cryptoerr.Native("engine.GenerateKeyPair", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("%s keys are %d bits, requested %d", e.algorithm, e.curve.Params().BitSize, bits))
	}
	priv, err := ecdsa.GenerateKey(e.curve, rand.Reader)
	if err != nil {
		return nil, cryptoerr.Native("engine.GenerateKeyPair", cryptoerr.NteBadData, err)
	}
	return priv, nil
}

func (e *ecEngine) checkCurve(op string, curve elliptic.Curve) error {
	if curve == nil || curve.Params().Name != e.curve.Params().Name {
		return cryptoerr.Native(op, cryptoerr.StatusInvalidParameter,
			fmt.Errorf("key is not on %s", e.curve.Params().Name))
	}
	return nil
}

func (e *ecdsaEngine) SignHash(priv crypto.PrivateKey, digest []byte, _ provider.SignOptions) ([]byte, error) {
	if e.closed.Load() {
		return nil, engineClosed(e.algorithm)
	}
	key, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, cryptoerr.Native("engine.SignHash", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("expected *ecdsa.PrivateKey, got %T", priv))
	}
	if err := e.checkCurve("engine.SignHash", key.Curve); err != nil {
		return nil, err
	}

	r, s, err := ecdsa.Sign(rand.Reader, key, digest)
	if err != nil {
		return nil, cryptoerr.Native("engine.SignHash", cryptoerr.StatusInvalidParameter, err)
	}

	size := fieldBytes(e.curve)
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}

func (e *ecdsaEngine) VerifyHash(pub crypto.PublicKey, digest, signature []byte, _ provider.SignOptions) (bool, error) {
	if e.closed.Load() {
		return false, engineClosed(e.algorithm)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false, cryptoerr.Native("engine.VerifyHash", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("expected *ecdsa.PublicKey, got %T", pub))
	}
	if err := e.checkCurve("engine.VerifyHash", key.Curve); err != nil {
		return false, err
	}

	size := fieldBytes(e.curve)
	if len(signature) != 2*size {
		return false, nil
	}
	r := new(big.Int).SetBytes(signature[:size])
	s := new(big.Int).SetBytes(signature[size:])
	return ecdsa.Verify(key, digest, r, s), nil
}

func (e *ecdhEngine) SecretAgreement(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if e.closed.Load() {
		return nil, engineClosed(e.algorithm)
	}
	if priv == nil || pub == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "engine.SecretAgreement", "both keys are required")
	}
	if err := e.checkCurve("engine.SecretAgreement", priv.Curve); err != nil {
		return nil, err
	}
	if err := e.checkCurve("engine.SecretAgreement", pub.Curve); err != nil {
		return nil, err
	}

	privECDH, err := priv.ECDH()
	if err != nil {
		return nil, cryptoerr.Native("engine.SecretAgreement", cryptoerr.StatusInvalidParameter, err)
	}
	pubECDH, err := pub.ECDH()
	if err != nil {
		return nil, cryptoerr.Native("engine.SecretAgreement", cryptoerr.StatusInvalidParameter, err)
	}

	secret, err := privECDH.ECDH(pubECDH)
	if err != nil {
		return nil, cryptoerr.Native("engine.SecretAgreement", cryptoerr.StatusInvalidParameter, err)
	}
	return secret, nil
}

func fieldBytes(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}
