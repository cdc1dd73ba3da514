package keyblob

import (
	"crypto/x509"
	"temporal-sa/crypto-provider/cryptoerr"
)

const keyDataVersion = 1

// EncodeSymmetric writes a KDBM blob: magic, version, key length, key.
func EncodeSymmetric(key []byte) []byte {
	out := make([]byte, 0, 12+len(key))
	out = putUint32s(out, uint32(magicKeyData), keyDataVersion, uint32(len(key)))
	return append(out, key...)
}

// DecodeSymmetric returns a copy of the key bytes in a KDBM blob.
func DecodeSymmetric(data []byte) ([]byte, error) {
	const op = "keyblob.DecodeSymmetric"
	r := &reader{buf: data}
	m, ok1 := r.uint32()
	version, ok2 := r.uint32()
	size, ok3 := r.uint32()
	if !ok1 || !ok2 || !ok3 {
		return nil, invalid(op, "blob shorter than its header")
	}
	if magic(m) != magicKeyData {
		return nil, invalid(op, "blob is not a key data blob")
	}
	if version != keyDataVersion {
		return nil, invalid(op, "unsupported version %d", version)
	}
	key, ok := r.next(size)
	if !ok || !r.done() {
		return nil, invalid(op, "declared key length does not match the blob")
	}
	return append([]byte(nil), key...), nil
}

// EncodeOpaque wraps an inner private blob with the algorithm that reads it:
// magic, name length, name, blob length, blob.
func EncodeOpaque(algorithm string, inner []byte) []byte {
	out := make([]byte, 0, 12+len(algorithm)+len(inner))
	out = putUint32s(out, uint32(magicOpaque), uint32(len(algorithm)))
	out = append(out, algorithm...)
	out = putUint32s(out, uint32(len(inner)))
	return append(out, inner...)
}

func DecodeOpaque(data []byte) (string, []byte, error) {
	const op = "keyblob.DecodeOpaque"
	r := &reader{buf: data}
	m, ok := r.uint32()
	if !ok || magic(m) != magicOpaque {
		return "", nil, invalid(op, "blob is not an opaque transport blob")
	}
	nameLen, ok := r.uint32()
	if !ok {
		return "", nil, invalid(op, "blob shorter than its header")
	}
	name, ok := r.next(nameLen)
	if !ok || nameLen == 0 {
		return "", nil, invalid(op, "bad algorithm name")
	}
	innerLen, ok := r.uint32()
	if !ok {
		return "", nil, invalid(op, "blob shorter than its header")
	}
	inner, ok := r.next(innerLen)
	if !ok || !r.done() {
		return "", nil, invalid(op, "declared length does not match the blob")
	}
	return string(name), inner, nil
}

func EncodePKCS8(key interface{}) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, "keyblob.EncodePKCS8", err)
	}
	return der, nil
}

func DecodePKCS8(data []byte) (interface{}, error) {
	key, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, "keyblob.DecodePKCS8", err)
	}
	return key, nil
}
