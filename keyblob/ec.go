package keyblob

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/provider"
)

type ecCurve struct {
	algorithm string
	curve     elliptic.Curve
	public    magic
	private   magic
	urn       string
	agreement bool
}

var ecCurves = []ecCurve{
	{provider.AlgorithmECDSAP256, elliptic.P256(), magicECDSAPublic256, magicECDSAPriv256, urnP256, false},
	{provider.AlgorithmECDSAP384, elliptic.P384(), magicECDSAPublic384, magicECDSAPriv384, urnP384, false},
	{provider.AlgorithmECDSAP521, elliptic.P521(), magicECDSAPublic521, magicECDSAPriv521, urnP521, false},
	{provider.AlgorithmECDHP256, elliptic.P256(), magicECDHPublic256, magicECDHPrivate256, urnP256, true},
	{provider.AlgorithmECDHP384, elliptic.P384(), magicECDHPublic384, magicECDHPrivate384, urnP384, true},
	{provider.AlgorithmECDHP521, elliptic.P521(), magicECDHPublic521, magicECDHPrivate521, urnP521, true},
}

func curveByAlgorithm(algorithm string) (ecCurve, bool) {
	for _, c := range ecCurves {
		if c.algorithm == algorithm {
			return c, true
		}
	}
	return ecCurve{}, false
}

func curveByMagic(m magic) (ecCurve, bool, bool) {
	for _, c := range ecCurves {
		switch m {
		case c.public:
			return c, false, true
		case c.private:
			return c, true, true
		}
	}
	return ecCurve{}, false, false
}

// AlgorithmForCurve returns the ECDSA or ECDH algorithm name for curve.
func AlgorithmForCurve(curve elliptic.Curve, agreement bool) (string, error) {
	for _, c := range ecCurves {
		if c.curve == curve && c.agreement == agreement {
			return c.algorithm, nil
		}
	}
	return "", cryptoerr.New(cryptoerr.KindUnknownCurve, "keyblob.AlgorithmForCurve", "unsupported curve")
}

func fieldLen(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

// EncodeECPublic writes an ECK/ECS public blob: magic, cbKey, X, Y.
func EncodeECPublic(algorithm string, pub *ecdsa.PublicKey) ([]byte, error) {
	c, err := checkCurve("keyblob.EncodeECPublic", algorithm, pub.Curve)
	if err != nil {
		return nil, err
	}
	size := fieldLen(c.curve)
	out := make([]byte, 0, 8+2*size)
	out = putUint32s(out, uint32(c.public), uint32(size))
	out = appendPadded(out, pub.X, size)
	return appendPadded(out, pub.Y, size), nil
}

// EncodeECPrivate writes an ECK/ECS private blob: magic, cbKey, X, Y, D.
func EncodeECPrivate(algorithm string, priv *ecdsa.PrivateKey) ([]byte, error) {
	c, err := checkCurve("keyblob.EncodeECPrivate", algorithm, priv.Curve)
	if err != nil {
		return nil, err
	}
	size := fieldLen(c.curve)
	out := make([]byte, 0, 8+3*size)
	out = putUint32s(out, uint32(c.private), uint32(size))
	out = appendPadded(out, priv.X, size)
	out = appendPadded(out, priv.Y, size)
	return appendPadded(out, priv.D, size), nil
}

func checkCurve(op, algorithm string, curve elliptic.Curve) (ecCurve, error) {
	c, ok := curveByAlgorithm(algorithm)
	if !ok {
		return ecCurve{}, cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "%q is not an EC algorithm", algorithm)
	}
	if c.curve != curve {
		return ecCurve{}, cryptoerr.New(cryptoerr.KindCurveMismatch, op, "key curve does not match %s", algorithm)
	}
	return c, nil
}

// DecodeECPublic parses a public EC blob and returns the algorithm its magic names.
func DecodeECPublic(data []byte) (string, *ecdsa.PublicKey, error) {
	const op = "keyblob.DecodeECPublic"
	c, private, r, err := readECHeader(op, data)
	if err != nil {
		return "", nil, err
	}
	if private {
		return "", nil, invalid(op, "blob is a private EC blob")
	}

	pub, err := readECPoint(op, r, c)
	if err != nil {
		return "", nil, err
	}
	if !r.done() {
		return "", nil, invalid(op, "trailing bytes")
	}
	return c.algorithm, pub, nil
}

// DecodeECPrivate parses a private EC blob; the public point must match D.
func DecodeECPrivate(data []byte) (string, *ecdsa.PrivateKey, error) {
	const op = "keyblob.DecodeECPrivate"
	c, private, r, err := readECHeader(op, data)
	if err != nil {
		return "", nil, err
	}
	if !private {
		return "", nil, invalid(op, "blob is a public EC blob")
	}

	pub, err := readECPoint(op, r, c)
	if err != nil {
		return "", nil, err
	}
	d, ok := r.next(uint32(fieldLen(c.curve)))
	if !ok {
		return "", nil, invalid(op, "component lengths exceed the blob")
	}
	if !r.done() {
		return "", nil, invalid(op, "trailing bytes")
	}

	priv := &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}
	ecdhPriv, err := priv.ECDH()
	if err != nil {
		return "", nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return "", nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}
	if !bytes.Equal(ecdhPriv.PublicKey().Bytes(), ecdhPub.Bytes()) {
		return "", nil, invalid(op, "public point does not match private scalar")
	}
	return c.algorithm, priv, nil
}

func readECHeader(op string, data []byte) (ecCurve, bool, *reader, error) {
	r := &reader{buf: data}
	m, ok1 := r.uint32()
	size, ok2 := r.uint32()
	if !ok1 || !ok2 {
		return ecCurve{}, false, nil, invalid(op, "blob shorter than its header")
	}
	c, private, ok := curveByMagic(magic(m))
	if !ok {
		return ecCurve{}, false, nil, invalid(op, "unknown EC magic")
	}
	if int(size) != fieldLen(c.curve) {
		return ecCurve{}, false, nil, invalid(op, "key length does not match the curve")
	}
	return c, private, r, nil
}

func readECPoint(op string, r *reader, c ecCurve) (*ecdsa.PublicKey, error) {
	size := uint32(fieldLen(c.curve))
	x, ok1 := r.next(size)
	y, ok2 := r.next(size)
	if !ok1 || !ok2 {
		return nil, invalid(op, "component lengths exceed the blob")
	}
	pub := &ecdsa.PublicKey{Curve: c.curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
	if _, err := pub.ECDH(); err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}
	return pub, nil
}
