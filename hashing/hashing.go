// Package hashing runs incremental digests and MACs over a provider engine.
//
// A Context moves Uninitialized -> Ready -> Accumulating -> Finalized.
// Initialize returns it to Ready from any state. A Context has a single
// owner; it is not safe for concurrent use.
package hashing

import (
	"errors"
	"hash"
	"io"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/internal/zeroize"
	"temporal-sa/crypto-provider/provider"
)

// StreamChunkSize is the read size used by HashStream.
const StreamChunkSize = 4096

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateAccumulating
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateAccumulating:
		return "accumulating"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Acquirer is the part of provider.Manager a Context needs.
type Acquirer interface {
	Acquire(algorithm, implementation string, flags provider.OpenFlags) (*provider.Handle, error)
}

type Context struct {
	handle *provider.Handle
	engine provider.Hasher
	macKey []byte
	state  State
	h      hash.Hash
}

// New opens a digest context for algorithm, ready for Update.
func New(acquirer Acquirer, algorithm, implementation string) (*Context, error) {
	handle, err := acquirer.Acquire(algorithm, implementation, provider.FlagNone)
	if err != nil {
		return nil, err
	}
	return newContext(handle, nil)
}

// NewHMAC opens a keyed MAC context. The key is copied.
func NewHMAC(acquirer Acquirer, algorithm, implementation string, key []byte) (*Context, error) {
	handle, err := acquirer.Acquire(algorithm, implementation, provider.FlagHMAC)
	if err != nil {
		return nil, err
	}
	macKey := make([]byte, len(key))
	copy(macKey, key)
	return newContext(handle, macKey)
}

// NewFromHandle builds a context over a handle the caller already owns. The
// context takes its own duplicate, so the caller keeps its handle.
func NewFromHandle(handle *provider.Handle) (*Context, error) {
	dup, err := handle.Duplicate()
	if err != nil {
		return nil, err
	}
	return newContext(dup, nil)
}

func newContext(handle *provider.Handle, macKey []byte) (*Context, error) {
	engine, err := provider.As[provider.Hasher](handle)
	if err != nil {
		handle.Close()
		return nil, err
	}
	if macKey != nil {
		if _, ok := engine.(provider.MACHasher); !ok {
			handle.Close()
			return nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "hashing.NewHMAC",
				"%s does not compute MACs", handle.Algorithm())
		}
	}

	c := &Context{handle: handle, engine: engine, macKey: macKey}
	if err := c.Initialize(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Context) Algorithm() string {
	return c.handle.Algorithm()
}

func (c *Context) DigestSize() int {
	return c.engine.DigestSize()
}

func (c *Context) State() State {
	return c.state
}

// Initialize discards accumulated input and starts a new digest.
func (c *Context) Initialize() error {
	if c.handle.IsClosed() {
		return cryptoerr.New(cryptoerr.KindInvalidState, "hashing.Initialize", "context is closed")
	}

	var (
		h   hash.Hash
		err error
	)
	if c.macKey != nil {
		h, err = c.engine.(provider.MACHasher).NewMAC(c.macKey)
	} else {
		h, err = c.engine.NewHash()
	}
	if err != nil {
		return err
	}

	c.h = h
	c.state = StateReady
	return nil
}

// Update feeds buf[offset:offset+length] into the digest.
func (c *Context) Update(buf []byte, offset, length int) error {
	switch c.state {
	case StateUninitialized:
		return cryptoerr.New(cryptoerr.KindInvalidState, "hashing.Update", "context is not initialized")
	case StateFinalized:
		return cryptoerr.New(cryptoerr.KindInvalidState, "hashing.Update", "digest already finalized")
	}
	if buf == nil && length > 0 {
		return cryptoerr.New(cryptoerr.KindArgumentNull, "hashing.Update", "nil buffer")
	}
	if offset < 0 || length < 0 || offset > len(buf) || length > len(buf)-offset {
		return cryptoerr.New(cryptoerr.KindArgumentRange, "hashing.Update",
			"offset %d and length %d exceed buffer of %d bytes", offset, length, len(buf))
	}

	if length > 0 {
		// hash.Hash.Write never returns an error
		c.h.Write(buf[offset : offset+length])
	}
	c.state = StateAccumulating
	return nil
}

// Write implements io.Writer over Update.
func (c *Context) Write(p []byte) (int, error) {
	if err := c.Update(p, 0, len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Final returns the digest in a freshly allocated buffer. Further Update or
// Final calls fail until Initialize.
func (c *Context) Final() ([]byte, error) {
	if c.state == StateUninitialized || c.state == StateFinalized {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, "hashing.Final", "context is %s", c.state)
	}
	sum := c.h.Sum(make([]byte, 0, c.engine.DigestSize()))
	c.state = StateFinalized
	return sum, nil
}

// HashData digests data in one call, starting from a fresh state.
func (c *Context) HashData(data []byte) ([]byte, error) {
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	if err := c.Update(data, 0, len(data)); err != nil {
		return nil, err
	}
	return c.Final()
}

// HashStream digests everything read from r in StreamChunkSize reads.
func (c *Context) HashStream(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "hashing.HashStream", "nil reader")
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}

	buf := make([]byte, StreamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if uerr := c.Update(buf, 0, n); uerr != nil {
				return nil, uerr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return c.Final()
}

// Close releases the engine handle and clears the MAC key.
func (c *Context) Close() error {
	zeroize.Bytes(c.macKey)
	c.h = nil
	c.state = StateUninitialized
	return c.handle.Close()
}
