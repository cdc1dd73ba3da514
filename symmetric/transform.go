package symmetric

import (
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
)

const (
	ModeCBC = provider.ChainingCBC
	ModeECB = provider.ChainingECB
	ModeOFB = provider.ChainingOFB
	ModeCFB = provider.ChainingCFB
)

type Direction int

const (
	Encrypt Direction = iota
	Decrypt
)

type TransformOptions struct {
	Mode provider.ChainingMode
	// IV must be at least one block long; extra bytes are ignored. Not used in ECB.
	IV []byte
	// FeedbackSize in bits applies to CFB; zero selects the full block.
	FeedbackSize int
	Padding      PaddingMode
}

// Transform encrypts or decrypts a stream of blocks over a native key handle,
// applying padding itself and delegating raw block work to the engine.
//
// While decrypting with a removable padding mode the last block of every
// TransformBlock call is withheld in the depad buffer, so TransformFinalBlock
// can strip the padding from the true final block.
//
// A Transform has a single owner and must not be used concurrently.
type Transform struct {
	key         provider.SymmetricKey
	direction   Direction
	padding     PaddingMode
	blockSize   int
	engineBlock int
	depadBuffer []byte
	hasDepad    bool
	scratch     []byte
	closed      bool
}

// NewTransform prepares a transform over its own duplicate of key; the
// caller keeps ownership of key.
func NewTransform(key provider.SymmetricKey, direction Direction, options TransformOptions) (*Transform, error) {
	const op = "symmetric.NewTransform"
	if key == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}
	if !options.Padding.valid() {
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, op, "%s", options.Padding)
	}

	engineBlock := key.BlockSize()
	unit := engineBlock

	switch options.Mode {
	case ModeECB, ModeCBC:
	case ModeCFB:
		bits := options.FeedbackSize
		if bits == 0 {
			bits = engineBlock * 8
		}
		if bits <= 0 || bits%8 != 0 || bits > engineBlock*8 {
			return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "feedback size %d bits", options.FeedbackSize)
		}
		unit = bits / 8
	case ModeOFB:
		if options.FeedbackSize != 0 && options.FeedbackSize != engineBlock*8 {
			return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "OFB feedback must be the block size")
		}
	default:
		return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "unknown cipher mode %s", options.Mode)
	}

	var iv []byte
	if options.Mode != ModeECB {
		if options.IV == nil {
			return nil, cryptoerr.New(cryptoerr.KindMissingIV, op, "%s requires an iv", options.Mode)
		}
		if len(options.IV) < engineBlock {
			return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "iv must be at least %d bytes", engineBlock)
		}
		iv = options.IV[:engineBlock]
	}

	dup, err := key.Duplicate()
	if err != nil {
		return nil, err
	}
	if err := dup.SetChaining(options.Mode, unit); err != nil {
		dup.Close()
		return nil, err
	}
	if iv != nil {
		if err := dup.SetIV(iv); err != nil {
			dup.Close()
			return nil, err
		}
	}

	return &Transform{
		key:         dup,
		direction:   direction,
		padding:     options.Padding,
		blockSize:   unit,
		engineBlock: engineBlock,
		depadBuffer: make([]byte, unit),
		scratch:     make([]byte, unit),
	}, nil
}

func (t *Transform) InputBlockSize() int {
	return t.blockSize
}

func (t *Transform) OutputBlockSize() int {
	return t.blockSize
}

func (t *Transform) Direction() Direction {
	return t.direction
}

// TransformBlock processes whole blocks from input into output and returns
// the number of bytes written, which is never more than inCount.
func (t *Transform) TransformBlock(input []byte, inOff, inCount int, output []byte, outOff int) (int, error) {
	const op = "symmetric.TransformBlock"
	if t.closed {
		return 0, cryptoerr.New(cryptoerr.KindInvalidState, op, "transform is closed")
	}
	if err := checkRange(op, input, inOff, inCount); err != nil {
		return 0, err
	}
	if inCount <= 0 || inCount%t.blockSize != 0 {
		return 0, cryptoerr.New(cryptoerr.KindArgumentRange, op,
			"input count %d is not a positive multiple of %d", inCount, t.blockSize)
	}
	if err := checkRange(op, output, outOff, inCount); err != nil {
		return 0, err
	}

	if t.direction == Encrypt {
		out := output[outOff : outOff+inCount]
		copy(out, input[inOff:inOff+inCount])
		if err := t.key.Encrypt(out, false); err != nil {
			return 0, err
		}
		return inCount, nil
	}

	if !t.padding.removesPadding() {
		out := output[outOff : outOff+inCount]
		copy(out, input[inOff:inOff+inCount])
		if err := t.key.Decrypt(out, false); err != nil {
			return 0, err
		}
		return inCount, nil
	}

	// hold back the last block; release the one held from the previous call
	body := input[inOff : inOff+inCount-t.blockSize]
	copy(t.scratch, input[inOff+inCount-t.blockSize:inOff+inCount])

	held := 0
	if t.hasDepad {
		held = t.blockSize
	}
	out := output[outOff : outOff+held+len(body)]
	copy(out[held:], body)
	if t.hasDepad {
		copy(out[:held], t.depadBuffer)
	}
	copy(t.depadBuffer, t.scratch)
	zeroize.Bytes(t.scratch)
	t.hasDepad = true

	if len(out) > 0 {
		if err := t.key.Decrypt(out, false); err != nil {
			return 0, err
		}
	}
	return len(out), nil
}

// TransformFinalBlock processes the remaining input, applying or removing
// padding, and returns a new buffer. The transform is reset afterwards.
func (t *Transform) TransformFinalBlock(input []byte, inOff, inCount int) ([]byte, error) {
	const op = "symmetric.TransformFinalBlock"
	if t.closed {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, op, "transform is closed")
	}
	if err := checkRange(op, input, inOff, inCount); err != nil {
		return nil, err
	}

	var (
		out []byte
		err error
	)
	if t.direction == Encrypt {
		out, err = t.encryptFinal(input[inOff : inOff+inCount])
	} else {
		out, err = t.decryptFinal(input[inOff : inOff+inCount])
	}

	if resetErr := t.Reset(); err == nil {
		err = resetErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transform) encryptFinal(input []byte) ([]byte, error) {
	padded, err := PadBlock(input, 0, len(input), t.blockSize, t.padding)
	if err != nil {
		return nil, err
	}
	if len(padded) > 0 {
		if err := t.key.Encrypt(padded, true); err != nil {
			return nil, err
		}
	}
	return padded, nil
}

func (t *Transform) decryptFinal(input []byte) ([]byte, error) {
	if len(input)%t.blockSize != 0 {
		return nil, cryptoerr.New(cryptoerr.KindPartialBlock, "symmetric.TransformFinalBlock",
			"%d bytes is not a multiple of the %d-byte block", len(input), t.blockSize)
	}

	held := 0
	if t.hasDepad {
		held = t.blockSize
	}
	ciphertext := make([]byte, held+len(input))
	copy(ciphertext, t.depadBuffer[:held])
	copy(ciphertext[held:], input)

	if len(ciphertext) == 0 {
		return []byte{}, nil
	}
	if err := t.key.Decrypt(ciphertext, true); err != nil {
		return nil, err
	}

	if !t.padding.removesPadding() {
		return ciphertext, nil
	}

	defer zeroize.Bytes(ciphertext)
	return DepadBlock(ciphertext, 0, len(ciphertext), t.blockSize, t.padding)
}

// Reset returns the transform to its initial chaining state by issuing a
// native final call over one zeroed engine block, then clears the depad buffer.
func (t *Transform) Reset() error {
	if t.closed {
		return nil
	}

	zero := make([]byte, t.engineBlock)
	var err error
	if t.direction == Encrypt {
		err = t.key.Encrypt(zero, true)
	} else {
		err = t.key.Decrypt(zero, true)
	}

	zeroize.All(zero, t.depadBuffer, t.scratch)
	t.hasDepad = false
	return err
}

// Close zeroes internal buffers and releases the key handle. Idempotent.
func (t *Transform) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	zeroize.All(t.depadBuffer, t.scratch)
	t.hasDepad = false
	return t.key.Close()
}
