package soft

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
)

// softKey keeps a cipher.Block plus the chaining register carried between
// calls. The register returns to the IV after every final call.
type softKey struct {
	spec     *BlockSpec
	key      []byte
	block    cipher.Block
	mode     provider.ChainingMode
	feedback int
	iv       []byte
	register []byte
	scratch  []byte
	closed   bool
}

func newSoftKey(spec *BlockSpec, key []byte, block cipher.Block) *softKey {
	bs := block.BlockSize()
	return &softKey{
		spec:     spec,
		key:      key,
		block:    block,
		mode:     provider.ChainingCBC,
		feedback: bs,
		iv:       make([]byte, bs),
		register: make([]byte, bs),
		scratch:  make([]byte, bs),
	}
}

func (k *softKey) BlockSize() int {
	return k.block.BlockSize()
}

func (k *softKey) KeySize() int {
	return len(k.key) * 8
}

func (k *softKey) SetChaining(mode provider.ChainingMode, feedbackBytes int) error {
	if k.closed {
		return keyClosed()
	}
	if feedbackBytes == 0 {
		feedbackBytes = k.block.BlockSize()
	}
	if !k.spec.supports(mode, feedbackBytes) {
		return cryptoerr.Native("engine.SetChaining", cryptoerr.StatusNotSupported,
			fmt.Errorf("%s with %d-byte feedback is not supported for %s", mode, feedbackBytes, k.spec.Algorithm))
	}
	k.mode = mode
	k.feedback = feedbackBytes
	k.resetRegister()
	return nil
}

func (k *softKey) SetIV(iv []byte) error {
	if k.closed {
		return keyClosed()
	}
	if len(iv) != k.block.BlockSize() {
		return cryptoerr.Native("engine.SetIV", cryptoerr.StatusInvalidParameter,
			fmt.Errorf("iv must be %d bytes, got %d", k.block.BlockSize(), len(iv)))
	}
	copy(k.iv, iv)
	k.resetRegister()
	return nil
}

func (k *softKey) Encrypt(buf []byte, final bool) error {
	return k.transform("engine.Encrypt", buf, final, true)
}

func (k *softKey) Decrypt(buf []byte, final bool) error {
	return k.transform("engine.Decrypt", buf, final, false)
}

func (k *softKey) transform(op string, buf []byte, final, encrypt bool) error {
	if k.closed {
		return keyClosed()
	}

	unit := k.block.BlockSize()
	if k.mode == provider.ChainingCFB {
		unit = k.feedback
	}
	if len(buf)%unit != 0 {
		return cryptoerr.Native(op, cryptoerr.StatusInvalidBufferSize,
			fmt.Errorf("%d bytes is not a multiple of %d", len(buf), unit))
	}

	for off := 0; off < len(buf); off += unit {
		chunk := buf[off : off+unit]
		switch k.mode {
		case provider.ChainingECB:
			if encrypt {
				k.block.Encrypt(chunk, chunk)
			} else {
				k.block.Decrypt(chunk, chunk)
			}
		case provider.ChainingCBC:
			if encrypt {
				subtle.XORBytes(chunk, chunk, k.register)
				k.block.Encrypt(chunk, chunk)
				copy(k.register, chunk)
			} else {
				copy(k.scratch, chunk)
				k.block.Decrypt(chunk, chunk)
				subtle.XORBytes(chunk, chunk, k.register)
				copy(k.register, k.scratch)
			}
		case provider.ChainingCFB:
			k.cfbSegment(chunk, encrypt)
		case provider.ChainingOFB:
			k.block.Encrypt(k.register, k.register)
			subtle.XORBytes(chunk, chunk, k.register)
		}
	}

	if final {
		k.resetRegister()
	}
	return nil
}

// cfbSegment processes one feedback-sized segment: the register is
// encrypted, the leading bytes mask the data and the ciphertext shifts in.
func (k *softKey) cfbSegment(segment []byte, encrypt bool) {
	n := len(segment)
	k.block.Encrypt(k.scratch, k.register)

	copy(k.register, k.register[n:])
	if encrypt {
		subtle.XORBytes(segment, segment, k.scratch[:n])
		copy(k.register[len(k.register)-n:], segment)
	} else {
		copy(k.register[len(k.register)-n:], segment)
		subtle.XORBytes(segment, segment, k.scratch[:n])
	}
}

func (k *softKey) resetRegister() {
	copy(k.register, k.iv)
	zeroize.Bytes(k.scratch)
}

func (k *softKey) Duplicate() (provider.SymmetricKey, error) {
	if k.closed {
		return nil, keyClosed()
	}

	material := make([]byte, len(k.key))
	copy(material, k.key)

	dup := newSoftKey(k.spec, material, k.block)
	dup.mode = k.mode
	dup.feedback = k.feedback
	copy(dup.iv, k.iv)
	copy(dup.register, k.register)
	return dup, nil
}

func (k *softKey) Export() ([]byte, error) {
	if k.closed {
		return nil, keyClosed()
	}
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out, nil
}

func (k *softKey) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	zeroize.All(k.key, k.iv, k.register, k.scratch)
	return nil
}

func keyClosed() error {
	return cryptoerr.New(cryptoerr.KindInvalidState, "engine", "key handle is closed")
}
