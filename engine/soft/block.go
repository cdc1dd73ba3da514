package soft

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
)

type (
	// BlockSpec describes a block cipher and the chaining an engine offers for it.
	BlockSpec struct {
		Algorithm string
		BlockSize int
		KeySizes  []provider.KeySizes
		NewCipher func(key []byte) (cipher.Block, error)
		Modes     []provider.ChainingMode
		// CFBFeedback lists the CFB feedback sizes in bytes; zero means the block size.
		CFBFeedback []int
	}

	blockCipher struct {
		spec   BlockSpec
		closed atomic.Bool
	}
)

func NewBlockCipher(spec BlockSpec) provider.BlockCipher {
	return &blockCipher{spec: spec}
}

func (b *blockCipher) Algorithm() string {
	return b.spec.Algorithm
}

func (b *blockCipher) BlockSize() int {
	return b.spec.BlockSize
}

func (b *blockCipher) LegalKeySizes() []provider.KeySizes {
	sizes := make([]provider.KeySizes, len(b.spec.KeySizes))
	copy(sizes, b.spec.KeySizes)
	return sizes
}

func (b *blockCipher) SupportsChaining(mode provider.ChainingMode, feedbackBytes int) bool {
	return b.spec.supports(mode, feedbackBytes)
}

func (s *BlockSpec) supports(mode provider.ChainingMode, feedbackBytes int) bool {
	found := false
	for _, m := range s.Modes {
		if m == mode {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	switch mode {
	case provider.ChainingCFB:
		for _, fb := range s.CFBFeedback {
			if fb == 0 {
				fb = s.BlockSize
			}
			if fb == feedbackBytes {
				return true
			}
		}
		return false
	case provider.ChainingOFB:
		return feedbackBytes == 0 || feedbackBytes == s.BlockSize
	}
	return true
}

func (b *blockCipher) ImportKey(key []byte) (provider.SymmetricKey, error) {
	if b.closed.Load() {
		return nil, engineClosed(b.spec.Algorithm)
	}
	if !provider.ValidKeySize(len(key)*8, b.spec.KeySizes) {
		return nil, cryptoerr.Native("engine.ImportKey", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("%d-bit key is not valid for %s", len(key)*8, b.spec.Algorithm))
	}

	material := make([]byte, len(key))
	copy(material, key)

	block, err := b.spec.NewCipher(material)
	if err != nil {
		zeroize.Bytes(material)
		return nil, cryptoerr.Native("engine.ImportKey", cryptoerr.StatusInvalidParameter, err)
	}

	return newSoftKey(&b.spec, material, block), nil
}

func (b *blockCipher) GenerateKey(bits int) (provider.SymmetricKey, error) {
	if bits%8 != 0 || !provider.ValidKeySize(bits, b.spec.KeySizes) {
		return nil, cryptoerr.Native("engine.GenerateKey", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("%d-bit key is not valid for %s", bits, b.spec.Algorithm))
	}

	material := make([]byte, bits/8)
	defer zeroize.Bytes(material)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, cryptoerr.Native("engine.GenerateKey", cryptoerr.NteBadData, err)
	}

	return b.ImportKey(material)
}

func (b *blockCipher) Close() error {
	b.closed.Store(true)
	return nil
}
