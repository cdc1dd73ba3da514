// Package keyblob encodes and decodes the byte layouts used to move key
// material in and out of providers. All header fields are little-endian
// uint32 values; big integers are big-endian and left-padded to their
// declared lengths.
package keyblob

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/binary"
	"temporal-sa/crypto-provider/cryptoerr"
)

type Format string

const (
	FormatSymmetric      Format = "KeyDataBlob"
	FormatRSAPublic      Format = "RSAPUBLICBLOB"
	FormatRSAPrivate     Format = "RSAPRIVATEBLOB"
	FormatRSAFullPrivate Format = "RSAFULLPRIVATEBLOB"
	FormatECPublic       Format = "ECCPUBLICBLOB"
	FormatECPrivate      Format = "ECCPRIVATEBLOB"
	FormatPublic         Format = "PUBLICBLOB"
	FormatPrivate        Format = "PRIVATEBLOB"
	FormatOpaque         Format = "OpaqueTransport"
	FormatPKCS8          Format = "PKCS8_PRIVATEKEY"
)

// Formats lists every format in a stable order.
var Formats = []Format{
	FormatSymmetric,
	FormatRSAPublic,
	FormatRSAPrivate,
	FormatRSAFullPrivate,
	FormatECPublic,
	FormatECPrivate,
	FormatPublic,
	FormatPrivate,
	FormatOpaque,
	FormatPKCS8,
}

// RequiresElevatedTrust reports whether importing the format may bring in
// private material. Only formats that can hold nothing but a public key are
// exempt.
func (f Format) RequiresElevatedTrust() bool {
	return !f.IsPublic()
}

// IsPublic reports whether the format only ever carries public material.
func (f Format) IsPublic() bool {
	switch f {
	case FormatRSAPublic, FormatECPublic, FormatPublic:
		return true
	}
	return false
}

// ParseFormat accepts any of the names listed in Formats.
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, "keyblob.ParseFormat", "unknown format %q", name)
}

type magic uint32

const (
	magicKeyData        magic = 0x4d42444b // KDBM
	magicRSAPublic      magic = 0x31415352 // RSA1
	magicRSAPrivate     magic = 0x32415352 // RSA2
	magicRSAFullPrivate magic = 0x33415352 // RSA3
	magicECDHPublic256  magic = 0x314B4345 // ECK1
	magicECDHPrivate256 magic = 0x324B4345 // ECK2
	magicECDHPublic384  magic = 0x334B4345 // ECK3
	magicECDHPrivate384 magic = 0x344B4345 // ECK4
	magicECDHPublic521  magic = 0x354B4345 // ECK5
	magicECDHPrivate521 magic = 0x364B4345 // ECK6
	magicECDSAPublic256 magic = 0x31534345 // ECS1
	magicECDSAPriv256   magic = 0x32534345 // ECS2
	magicECDSAPublic384 magic = 0x33534345 // ECS3
	magicECDSAPriv384   magic = 0x34534345 // ECS4
	magicECDSAPublic521 magic = 0x35534345 // ECS5
	magicECDSAPriv521   magic = 0x36534345 // ECS6
	magicOpaque         magic = 0x5150504f // OPPQ
)

// Decoded is the result of decoding any blob. Exactly one of Symmetric,
// Private or Public is set; Public is also set alongside Private.
type Decoded struct {
	// Algorithm is set for EC and opaque blobs, which name it; RSA blobs
	// always decode to provider.AlgorithmRSA.
	Algorithm string
	Symmetric []byte
	Public    crypto.PublicKey
	Private   crypto.PrivateKey
}

// Encode serializes key in format. key is a raw []byte for FormatSymmetric,
// otherwise an *rsa.PublicKey, *rsa.PrivateKey, *ecdsa.PublicKey or
// *ecdsa.PrivateKey. algorithm selects the EC magic and is recorded in
// opaque blobs.
func Encode(format Format, algorithm string, key interface{}) ([]byte, error) {
	const op = "keyblob.Encode"
	if key == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil key")
	}

	switch format {
	case FormatSymmetric:
		raw, ok := key.([]byte)
		if !ok {
			return nil, wrongKey(op, format, key)
		}
		return EncodeSymmetric(raw), nil
	case FormatRSAPublic:
		pub, ok := publicOf(key).(*rsa.PublicKey)
		if !ok {
			return nil, wrongKey(op, format, key)
		}
		return EncodeRSAPublic(pub), nil
	case FormatRSAPrivate, FormatRSAFullPrivate:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, wrongKey(op, format, key)
		}
		return EncodeRSAPrivate(priv, format == FormatRSAFullPrivate)
	case FormatECPublic:
		pub, ok := publicOf(key).(*ecdsa.PublicKey)
		if !ok {
			return nil, wrongKey(op, format, key)
		}
		return EncodeECPublic(algorithm, pub)
	case FormatECPrivate:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, wrongKey(op, format, key)
		}
		return EncodeECPrivate(algorithm, priv)
	case FormatPublic:
		switch pub := publicOf(key).(type) {
		case *rsa.PublicKey:
			return EncodeRSAPublic(pub), nil
		case *ecdsa.PublicKey:
			return EncodeECPublic(algorithm, pub)
		}
		return nil, wrongKey(op, format, key)
	case FormatPrivate:
		switch priv := key.(type) {
		case *rsa.PrivateKey:
			return EncodeRSAPrivate(priv, false)
		case *ecdsa.PrivateKey:
			return EncodeECPrivate(algorithm, priv)
		}
		return nil, wrongKey(op, format, key)
	case FormatOpaque:
		inner, err := Encode(FormatPrivate, algorithm, key)
		if err != nil {
			return nil, err
		}
		return EncodeOpaque(algorithm, inner), nil
	case FormatPKCS8:
		return EncodePKCS8(key)
	}
	return nil, cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "unknown format %q", format)
}

// Decode parses data according to format.
func Decode(format Format, data []byte) (*Decoded, error) {
	const op = "keyblob.Decode"
	if data == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, op, "nil blob")
	}

	switch format {
	case FormatSymmetric:
		raw, err := DecodeSymmetric(data)
		if err != nil {
			return nil, err
		}
		return &Decoded{Symmetric: raw}, nil
	case FormatRSAPublic:
		pub, err := DecodeRSAPublic(data)
		if err != nil {
			return nil, err
		}
		return &Decoded{Algorithm: rsaAlgorithm, Public: pub}, nil
	case FormatRSAPrivate, FormatRSAFullPrivate:
		priv, err := decodeRSAPrivate(data, format == FormatRSAFullPrivate)
		if err != nil {
			return nil, err
		}
		return &Decoded{Algorithm: rsaAlgorithm, Private: priv, Public: &priv.PublicKey}, nil
	case FormatECPublic:
		algorithm, pub, err := DecodeECPublic(data)
		if err != nil {
			return nil, err
		}
		return &Decoded{Algorithm: algorithm, Public: pub}, nil
	case FormatECPrivate:
		algorithm, priv, err := DecodeECPrivate(data)
		if err != nil {
			return nil, err
		}
		return &Decoded{Algorithm: algorithm, Private: priv, Public: &priv.PublicKey}, nil
	case FormatPublic:
		m, err := peekMagic(data)
		if err != nil {
			return nil, err
		}
		if m == magicRSAPublic {
			return Decode(FormatRSAPublic, data)
		}
		return Decode(FormatECPublic, data)
	case FormatPrivate:
		m, err := peekMagic(data)
		if err != nil {
			return nil, err
		}
		if m == magicRSAPrivate {
			return Decode(FormatRSAPrivate, data)
		}
		return Decode(FormatECPrivate, data)
	case FormatOpaque:
		algorithm, inner, err := DecodeOpaque(data)
		if err != nil {
			return nil, err
		}
		decoded, err := Decode(FormatPrivate, inner)
		if err != nil {
			return nil, err
		}
		decoded.Algorithm = algorithm
		return decoded, nil
	case FormatPKCS8:
		priv, err := DecodePKCS8(data)
		if err != nil {
			return nil, err
		}
		decoded := &Decoded{Private: priv}
		switch k := priv.(type) {
		case *rsa.PrivateKey:
			decoded.Algorithm = rsaAlgorithm
			decoded.Public = &k.PublicKey
		case *ecdsa.PrivateKey:
			decoded.Public = &k.PublicKey
		}
		return decoded, nil
	}
	return nil, cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "unknown format %q", format)
}

func publicOf(key interface{}) interface{} {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &k.PublicKey
	case *ecdsa.PrivateKey:
		return &k.PublicKey
	}
	return key
}

func wrongKey(op string, format Format, key interface{}) error {
	return cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, "%s cannot hold a %T", format, key)
}

func invalid(op, format string, args ...interface{}) error {
	return cryptoerr.New(cryptoerr.KindInvalidKeyBlobFormat, op, format, args...)
}

func peekMagic(data []byte) (magic, error) {
	if len(data) < 4 {
		return 0, invalid("keyblob.Decode", "blob too short")
	}
	return magic(binary.LittleEndian.Uint32(data)), nil
}

// reader is a bounds-checked cursor over a blob.
type reader struct {
	buf []byte
	off int
}

func (r *reader) uint32() (uint32, bool) {
	if len(r.buf)-r.off < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, true
}

func (r *reader) next(n uint32) ([]byte, bool) {
	if uint64(n) > uint64(len(r.buf)-r.off) {
		return nil, false
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, true
}

func (r *reader) done() bool {
	return r.off == len(r.buf)
}

func putUint32s(dst []byte, values ...uint32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}
