// Package legacy is the older block-cipher and hash provider. It offers
// OFB and 8-bit CFB chaining but no asymmetric algorithms.
package legacy

import (
	"crypto/aes"
	"crypto/des"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine/soft"
	"temporal-sa/crypto-provider/provider"
)

const ProviderName = "Legacy Provider"

var (
	hashes = map[string]func() hash.Hash{
		provider.AlgorithmMD5:    md5.New,
		provider.AlgorithmSHA1:   sha1.New,
		provider.AlgorithmSHA256: sha256.New,
		provider.AlgorithmSHA384: sha512.New384,
		provider.AlgorithmSHA512: sha512.New,
	}

	chaining = []provider.ChainingMode{
		provider.ChainingECB,
		provider.ChainingCBC,
		provider.ChainingCFB,
		provider.ChainingOFB,
	}

	ciphers = map[string]soft.BlockSpec{
		provider.AlgorithmAES: {
			Algorithm:   provider.AlgorithmAES,
			BlockSize:   aes.BlockSize,
			KeySizes:    []provider.KeySizes{{MinSize: 128, MaxSize: 256, SkipSize: 64}},
			NewCipher:   aes.NewCipher,
			Modes:       chaining,
			CFBFeedback: []int{1},
		},
		provider.AlgorithmDES: {
			Algorithm:   provider.AlgorithmDES,
			BlockSize:   des.BlockSize,
			KeySizes:    []provider.KeySizes{{MinSize: 64, MaxSize: 64}},
			NewCipher:   des.NewCipher,
			Modes:       chaining,
			CFBFeedback: []int{1},
		},
		provider.AlgorithmTripleDES: {
			Algorithm:   provider.AlgorithmTripleDES,
			BlockSize:   des.BlockSize,
			KeySizes:    []provider.KeySizes{{MinSize: 192, MaxSize: 192}},
			NewCipher:   des.NewTripleDESCipher,
			Modes:       chaining,
			CFBFeedback: []int{1},
		},
	}
)

func Algorithms() []string {
	algorithms := make([]string, 0, len(hashes)+len(ciphers))
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
	if spec, ok := ciphers[algorithm]; ok {
		if flags&provider.FlagHMAC != 0 {
			return nil, cryptoerr.Native("legacy.Open", cryptoerr.StatusInvalidParameter, nil)
		}
		return soft.NewBlockCipher(spec), nil
	}
	return nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "legacy.Open", "%s is not available", algorithm)
}

func Register(registry *provider.Registry) error {
	return registry.Register(ProviderName, Algorithms(), Open)
}
