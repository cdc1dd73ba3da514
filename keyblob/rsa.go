package keyblob

import (
	"crypto/rsa"
	"math/big"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/provider"
)

const (
	rsaAlgorithm     = provider.AlgorithmRSA
	rsaHeaderSize    = 24
	maxPublicExpSize = 8
)

// EncodeRSAPublic writes an RSA1 blob: header, exponent, modulus.
func EncodeRSAPublic(pub *rsa.PublicKey) []byte {
	exp := big.NewInt(int64(pub.E)).Bytes()
	mod := pub.N.Bytes()

	out := make([]byte, 0, rsaHeaderSize+len(exp)+len(mod))
	out = putUint32s(out, uint32(magicRSAPublic), uint32(pub.N.BitLen()), uint32(len(exp)), uint32(len(mod)), 0, 0)
	out = append(out, exp...)
	return append(out, mod...)
}

// EncodeRSAPrivate writes an RSA2 blob, or an RSA3 blob carrying the CRT
// values and the private exponent when full is set. Only two-prime keys
// can be encoded.
func EncodeRSAPrivate(priv *rsa.PrivateKey, full bool) ([]byte, error) {
	if len(priv.Primes) != 2 {
		return nil, cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, "keyblob.EncodeRSAPrivate",
			"%d-prime keys cannot be encoded", len(priv.Primes))
	}
	priv.Precompute()

	exp := big.NewInt(int64(priv.E)).Bytes()
	modLen := (priv.N.BitLen() + 7) / 8
	p, q := priv.Primes[0], priv.Primes[1]
	pLen, qLen := (p.BitLen()+7)/8, (q.BitLen()+7)/8

	m := magicRSAPrivate
	size := rsaHeaderSize + len(exp) + modLen + pLen + qLen
	if full {
		m = magicRSAFullPrivate
		size += pLen + qLen + pLen + modLen
	}

	out := make([]byte, 0, size)
	out = putUint32s(out, uint32(m), uint32(priv.N.BitLen()), uint32(len(exp)), uint32(modLen), uint32(pLen), uint32(qLen))
	out = append(out, exp...)
	out = appendPadded(out, priv.N, modLen)
	out = appendPadded(out, p, pLen)
	out = appendPadded(out, q, qLen)
	if full {
		out = appendPadded(out, priv.Precomputed.Dp, pLen)
		out = appendPadded(out, priv.Precomputed.Dq, qLen)
		out = appendPadded(out, priv.Precomputed.Qinv, pLen)
		out = appendPadded(out, priv.D, modLen)
	}
	return out, nil
}

func DecodeRSAPublic(data []byte) (*rsa.PublicKey, error) {
	const op = "keyblob.DecodeRSAPublic"
	r := &reader{buf: data}
	h, err := readRSAHeader(op, r)
	if err != nil {
		return nil, err
	}
	if h.magic != magicRSAPublic {
		return nil, invalid(op, "blob is not an RSA public blob")
	}
	if h.prime1Len != 0 || h.prime2Len != 0 {
		return nil, invalid(op, "public blob declares primes")
	}

	pub, err := readRSAPublic(op, r, h)
	if err != nil {
		return nil, err
	}
	if !r.done() {
		return nil, invalid(op, "trailing bytes")
	}
	return pub, nil
}

// DecodeRSAPrivate accepts both RSA2 and RSA3 blobs.
func DecodeRSAPrivate(data []byte) (*rsa.PrivateKey, error) {
	m, err := peekMagic(data)
	if err != nil {
		return nil, err
	}
	return decodeRSAPrivate(data, m == magicRSAFullPrivate)
}

func decodeRSAPrivate(data []byte, full bool) (*rsa.PrivateKey, error) {
	const op = "keyblob.DecodeRSAPrivate"
	r := &reader{buf: data}
	h, err := readRSAHeader(op, r)
	if err != nil {
		return nil, err
	}

	expected := magicRSAPrivate
	if full {
		expected = magicRSAFullPrivate
	}
	if h.magic != expected {
		return nil, invalid(op, "unexpected magic for a private blob")
	}
	if h.prime1Len == 0 || h.prime2Len == 0 {
		return nil, invalid(op, "private blob without primes")
	}

	pub, err := readRSAPublic(op, r, h)
	if err != nil {
		return nil, err
	}
	p, ok1 := r.next(h.prime1Len)
	q, ok2 := r.next(h.prime2Len)
	if !ok1 || !ok2 {
		return nil, invalid(op, "component lengths exceed the blob")
	}

	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		Primes:    []*big.Int{new(big.Int).SetBytes(p), new(big.Int).SetBytes(q)},
	}

	if full {
		// dp, dq and qinv are recomputed by Precompute; only d is taken
		_, ok1 = r.next(h.prime1Len)
		_, ok2 = r.next(h.prime2Len)
		_, ok3 := r.next(h.prime1Len)
		d, ok4 := r.next(h.modulusLen)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, invalid(op, "component lengths exceed the blob")
		}
		priv.D = new(big.Int).SetBytes(d)
	} else {
		one := big.NewInt(1)
		phi := new(big.Int).Mul(new(big.Int).Sub(priv.Primes[0], one), new(big.Int).Sub(priv.Primes[1], one))
		priv.D = new(big.Int).ModInverse(big.NewInt(int64(pub.E)), phi)
		if priv.D == nil {
			return nil, invalid(op, "exponent is not invertible")
		}
	}
	if !r.done() {
		return nil, invalid(op, "trailing bytes")
	}

	if err := priv.Validate(); err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}
	priv.Precompute()
	return priv, nil
}

type rsaHeader struct {
	magic      magic
	bitLen     uint32
	expLen     uint32
	modulusLen uint32
	prime1Len  uint32
	prime2Len  uint32
}

func readRSAHeader(op string, r *reader) (rsaHeader, error) {
	var fields [6]uint32
	for i := range fields {
		v, ok := r.uint32()
		if !ok {
			return rsaHeader{}, invalid(op, "blob shorter than its header")
		}
		fields[i] = v
	}
	h := rsaHeader{magic(fields[0]), fields[1], fields[2], fields[3], fields[4], fields[5]}
	if h.expLen == 0 || h.expLen > maxPublicExpSize || h.modulusLen == 0 || h.bitLen == 0 {
		return rsaHeader{}, invalid(op, "bad component lengths")
	}
	if (h.bitLen+7)/8 != h.modulusLen {
		return rsaHeader{}, invalid(op, "bit length does not match modulus length")
	}
	return h, nil
}

func readRSAPublic(op string, r *reader, h rsaHeader) (*rsa.PublicKey, error) {
	exp, ok1 := r.next(h.expLen)
	mod, ok2 := r.next(h.modulusLen)
	if !ok1 || !ok2 {
		return nil, invalid(op, "component lengths exceed the blob")
	}

	e := new(big.Int).SetBytes(exp)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, invalid(op, "public exponent out of range")
	}
	n := new(big.Int).SetBytes(mod)
	if uint32(n.BitLen()) != h.bitLen {
		return nil, invalid(op, "modulus does not match declared bit length")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func appendPadded(dst []byte, v *big.Int, size int) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	v.FillBytes(dst[start:])
	return dst
}
