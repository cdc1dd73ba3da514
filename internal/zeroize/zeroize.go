package zeroize

import "runtime"

// Bytes overwrites b with zeros.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// All zeroes every slice given.
func All(bufs ...[]byte) {
	for _, b := range bufs {
		Bytes(b)
	}
}
