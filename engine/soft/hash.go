package soft

import (
	"crypto/hmac"
	"hash"
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/provider"
)

type (
	hasher struct {
		algorithm  string
		newHash    func() hash.Hash
		digestSize int
		blockSize  int
		closed     atomic.Bool
	}

	macHasher struct {
		*hasher
	}
)

// NewHasher wraps a hash constructor as an engine. Opening with
// provider.FlagHMAC yields an engine that also implements provider.MACHasher.
func NewHasher(algorithm string, newHash func() hash.Hash, flags provider.OpenFlags) provider.Hasher {
	sample := newHash()
	h := &hasher{
		algorithm:  algorithm,
		newHash:    newHash,
		digestSize: sample.Size(),
		blockSize:  sample.BlockSize(),
	}
	if flags&provider.FlagHMAC != 0 {
		return &macHasher{hasher: h}
	}
	return h
}

func (h *hasher) Algorithm() string {
	return h.algorithm
}

func (h *hasher) DigestSize() int {
	return h.digestSize
}

func (h *hasher) BlockSize() int {
	return h.blockSize
}

func (h *hasher) NewHash() (hash.Hash, error) {
	if h.closed.Load() {
		return nil, engineClosed(h.algorithm)
	}
	return h.newHash(), nil
}

func (h *hasher) Close() error {
	h.closed.Store(true)
	return nil
}

func (m *macHasher) NewMAC(key []byte) (hash.Hash, error) {
	if m.closed.Load() {
		return nil, engineClosed(m.algorithm)
	}
	return hmac.New(m.newHash, key), nil
}

func engineClosed(algorithm string) error {
	return cryptoerr.New(cryptoerr.KindInvalidState, "engine", "%s engine is closed", algorithm)
}
