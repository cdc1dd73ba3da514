// Package gm provides the SM3 hash and SM4 block cipher.
package gm

import (
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/engine/soft"
	"temporal-sa/crypto-provider/provider"

	"github.com/Hyperledger-TWGC/tjfoc-gm/sm3"
	"github.com/Hyperledger-TWGC/tjfoc-gm/sm4"
)

const ProviderName = "GM Provider"

var sm4Spec = soft.BlockSpec{
	Algorithm: provider.AlgorithmSM4,
	BlockSize: sm4.BlockSize,
	KeySizes:  []provider.KeySizes{{MinSize: 128, MaxSize: 128}},
	NewCipher: sm4.NewCipher,
	Modes: []provider.ChainingMode{
		provider.ChainingECB,
		provider.ChainingCBC,
		provider.ChainingCFB,
		provider.ChainingOFB,
	},
	CFBFeedback: []int{1, 0},
}

func Algorithms() []string {
	return []string{provider.AlgorithmSM3, provider.AlgorithmSM4}
}

func Open(algorithm string, flags provider.OpenFlags) (provider.Engine, error) {
	switch algorithm {
	case provider.AlgorithmSM3:
		return soft.NewHasher(algorithm, sm3.New, flags), nil
	case provider.AlgorithmSM4:
		if flags&provider.FlagHMAC != 0 {
			return nil, cryptoerr.Native("gm.Open", cryptoerr.StatusInvalidParameter, nil)
		}
		return soft.NewBlockCipher(sm4Spec), nil
	}
	return nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "gm.Open", "%s is not available", algorithm)
}

func Register(registry *provider.Registry) error {
	return registry.Register(ProviderName, Algorithms(), Open)
}
