// Package primitive is the general purpose provider: hashes including SHA-3,
// AES and 3DES without OFB, RSA and the NIST prime curves.
package primitive

import (
	"crypto/aes"
	"crypto/des"
	"crypto/elliptic"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine/soft"
	"temporal-sa/crypto-provider/provider"

	"golang.org/x/crypto/sha3"
)

const ProviderName = "Primitive Provider"

var (
	hashes = map[string]func() hash.Hash{
		provider.AlgorithmSHA1:     sha1.New,
		provider.AlgorithmSHA256:   sha256.New,
		provider.AlgorithmSHA384:   sha512.New384,
		provider.AlgorithmSHA512:   sha512.New,
		provider.AlgorithmSHA3_256: sha3.New256,
		provider.AlgorithmSHA3_384: sha3.New384,
		provider.AlgorithmSHA3_512: sha3.New512,
	}

	chaining = []provider.ChainingMode{
		provider.ChainingECB,
		provider.ChainingCBC,
		provider.ChainingCFB,
	}

	ciphers = map[string]soft.BlockSpec{
		provider.AlgorithmAES: {
			Algorithm:   provider.AlgorithmAES,
			BlockSize:   aes.BlockSize,
			KeySizes:    []provider.KeySizes{{MinSize: 128, MaxSize: 256, SkipSize: 64}},
			NewCipher:   aes.NewCipher,
			Modes:       chaining,
			CFBFeedback: []int{1, 0},
		},
		provider.AlgorithmTripleDES: {
			Algorithm:   provider.AlgorithmTripleDES,
			BlockSize:   des.BlockSize,
			KeySizes:    []provider.KeySizes{{MinSize: 192, MaxSize: 192}},
			NewCipher:   des.NewTripleDESCipher,
			Modes:       chaining,
			CFBFeedback: []int{1, 0},
		},
	}

	ecdsaCurves = map[string]elliptic.Curve{
		provider.AlgorithmECDSAP256: elliptic.P256(),
		provider.AlgorithmECDSAP384: elliptic.P384(),
		provider.AlgorithmECDSAP521: elliptic.P521(),
	}

	ecdhCurves = map[string]elliptic.Curve{
		provider.AlgorithmECDHP256: elliptic.P256(),
		provider.AlgorithmECDHP384: elliptic.P384(),
		provider.AlgorithmECDHP521: elliptic.P521(),
	}
)

func Algorithms() []string {
	algorithms := []string{provider.AlgorithmRSA}
	for _, m := range []map[string]elliptic.Curve{ecdsaCurves, ecdhCurves} {
		for name := range m {
			algorithms = append(algorithms, name)
		}
	}
	for name := range hashes {
		algorithms = append(algorithms, name)
	}
	for name := range ciphers {
		algorithms = append(algorithms, name)
	}
	return algorithms
}

func Open(algorithm string, flags provider.OpenFlags) (provider.Engine, error) {
	if newHash, ok := hashes[algorithm]; ok {
		return soft.NewHasher(algorithm, newHash, flags), nil
	}

	if flags&provider.FlagHMAC != 0 {
		return nil, cryptoerr.Native("primitive.Open", cryptoerr.StatusInvalidParameter, nil)
	}

	if spec, ok := ciphers[algorithm]; ok {
		return soft.NewBlockCipher(spec), nil
	}
	if curve, ok := ecdsaCurves[algorithm]; ok {
		return soft.NewECDSA(algorithm, curve), nil
	}
	if curve, ok := ecdhCurves[algorithm]; ok {
		return soft.NewECDH(algorithm, curve), nil
	}
	if algorithm == provider.AlgorithmRSA {
		return soft.NewRSA(), nil
	}

	return nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "primitive.Open", "%s is not available", algorithm)
}

func Register(registry *provider.Registry) error {
	return registry.Register(ProviderName, Algorithms(), Open)
}
