package symmetric

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
)

type PaddingMode int

const (
	PaddingNone PaddingMode = iota + 1
	PaddingPKCS7
	PaddingZeros
	PaddingANSIX923
	PaddingISO10126
)

func (p PaddingMode) String() string {
	switch p {
	case PaddingNone:
		return "None"
	case PaddingPKCS7:
		return "PKCS7"
	case PaddingZeros:
		return "Zeros"
	case PaddingANSIX923:
		return "ANSIX923"
	case PaddingISO10126:
		return "ISO10126"
	}
	return fmt.Sprintf("PaddingMode(%d)", int(p))
}

// ParsePaddingMode maps a name as printed by String back to its mode.
func ParsePaddingMode(name string) (PaddingMode, error) {
	for _, p := range []PaddingMode{PaddingNone, PaddingPKCS7, PaddingZeros, PaddingANSIX923, PaddingISO10126} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, "symmetric.ParsePaddingMode", "unknown padding %q", name)
}

// removesPadding reports whether decryption strips trailing bytes for p.
// None and Zeros leave the plaintext untouched.
func (p PaddingMode) removesPadding() bool {
	return p == PaddingPKCS7 || p == PaddingANSIX923 || p == PaddingISO10126
}

func (p PaddingMode) valid() bool {
	return p >= PaddingNone && p <= PaddingISO10126
}

func checkRange(op string, block []byte, offset, count int) error {
	if block == nil && count > 0 {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil buffer")
	}
	if offset < 0 || count < 0 || offset > len(block) || count > len(block)-offset {
		return cryptoerr.New(cryptoerr.KindArgumentRange, op,
			"offset %d and count %d exceed buffer of %d bytes", offset, count, len(block))
	}
	return nil
}

// PadBlock returns block[offset:offset+count] followed by padding up to a
// multiple of blockSize. PKCS7, ANSIX923 and ISO10126 always add at least
// one byte; Zeros adds nothing to aligned input; None requires aligned input.
func PadBlock(block []byte, offset, count, blockSize int, padding PaddingMode) ([]byte, error) {
	const op = "symmetric.PadBlock"
	if err := checkRange(op, block, offset, count); err != nil {
		return nil, err
	}
	if blockSize <= 0 || blockSize > 255 {
		return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "block size %d", blockSize)
	}

	padBytes := blockSize - count%blockSize

	switch padding {
	case PaddingNone:
		if count%blockSize != 0 {
			return nil, cryptoerr.New(cryptoerr.KindPartialBlock, op,
				"%d bytes is not a multiple of the %d-byte block", count, blockSize)
		}
		padBytes = 0
	case PaddingZeros:
		if padBytes == blockSize {
			padBytes = 0
		}
	case PaddingPKCS7, PaddingANSIX923, PaddingISO10126:
	default:
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, op, "%s", padding)
	}

	out := make([]byte, count+padBytes)
	copy(out, block[offset:offset+count])
	if padBytes == 0 {
		return out, nil
	}

	tail := out[count:]
	switch padding {
	case PaddingPKCS7:
		for i := range tail {
			tail[i] = byte(padBytes)
		}
	case PaddingANSIX923:
		// zero fill from make
		tail[padBytes-1] = byte(padBytes)
	case PaddingISO10126:
		if _, err := io.ReadFull(rand.Reader, tail[:padBytes-1]); err != nil {
			return nil, cryptoerr.Wrap(cryptoerr.KindCryptographicFailure, op, err)
		}
		tail[padBytes-1] = byte(padBytes)
	}

	return out, nil
}

// DepadBlock strips the padding from block[offset:offset+count]. Only PKCS7,
// ANSIX923 and ISO10126 are removable. The fill bytes are checked without an
// early exit, and every failure reports the same error.
func DepadBlock(block []byte, offset, count, blockSize int, padding PaddingMode) ([]byte, error) {
	const op = "symmetric.DepadBlock"
	if err := checkRange(op, block, offset, count); err != nil {
		return nil, err
	}
	if !padding.removesPadding() {
		return nil, cryptoerr.New(cryptoerr.KindUnsupportedPaddingMode, op, "%s padding cannot be removed", padding)
	}
	if blockSize <= 0 || blockSize > 255 {
		return nil, cryptoerr.New(cryptoerr.KindArgumentRange, op, "block size %d", blockSize)
	}

	data := block[offset : offset+count]
	if count == 0 {
		return nil, invalidPadding()
	}

	padBytes := int(data[count-1])
	if padBytes <= 0 || padBytes > blockSize || padBytes > count {
		return nil, invalidPadding()
	}

	fill := data[count-padBytes : count-1]
	var bad int
	switch padding {
	case PaddingPKCS7:
		for _, b := range fill {
			bad |= subtle.ConstantTimeByteEq(b, byte(padBytes)) ^ 1
		}
	case PaddingANSIX923:
		for _, b := range fill {
			bad |= subtle.ConstantTimeByteEq(b, 0) ^ 1
		}
	}
	if bad != 0 {
		return nil, invalidPadding()
	}

	out := make([]byte, count-padBytes)
	copy(out, data)
	return out, nil
}

func invalidPadding() error {
	return cryptoerr.New(cryptoerr.KindInvalidPadding, "symmetric.DepadBlock", "padding is invalid and cannot be removed")
}
