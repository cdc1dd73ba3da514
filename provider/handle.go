package provider

import (
	"fmt"
	"sync"
	"sync/atomic"
	"temporal-sa/crypto-provider/cryptoerr"
)

// sharedEngine counts the handles referring to one opened engine and closes
// the engine when the last one goes away.
type sharedEngine struct {
	mu     sync.Mutex
	engine Engine
	refs   int
}

func (s *sharedEngine) retain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return false
	}
	s.refs++
	return true
}

func (s *sharedEngine) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 {
		return nil
	}
	return s.engine.Close()
}

// Handle is a reference to an opened engine. A handle is released exactly
// once; Close is idempotent and every other method fails afterwards.
type Handle struct {
	algorithm      string
	implementation string
	flags          OpenFlags
	shared         *sharedEngine
	closed         atomic.Bool
}

func newHandle(algorithm, implementation string, flags OpenFlags, engine Engine) *Handle {
	return &Handle{
		algorithm:      algorithm,
		implementation: implementation,
		flags:          flags,
		shared:         &sharedEngine{engine: engine, refs: 1},
	}
}

func (h *Handle) Algorithm() string {
	return h.algorithm
}

func (h *Handle) Implementation() string {
	return h.implementation
}

func (h *Handle) Flags() OpenFlags {
	return h.flags
}

func (h *Handle) IsClosed() bool {
	return h.closed.Load()
}

// Engine returns the underlying engine while the handle is open.
func (h *Handle) Engine() (Engine, error) {
	if h.closed.Load() {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, "provider.Handle", "handle for %s is closed", h.algorithm)
	}
	return h.shared.engine, nil
}

// Duplicate returns a new independently released handle to the same engine.
func (h *Handle) Duplicate() (*Handle, error) {
	if h.closed.Load() || !h.shared.retain() {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, "provider.Duplicate", "handle for %s is closed", h.algorithm)
	}
	return &Handle{
		algorithm:      h.algorithm,
		implementation: h.implementation,
		flags:          h.flags,
		shared:         h.shared,
	}, nil
}

func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := h.shared.release(); err != nil {
		return fmt.Errorf("failed to close %s engine from %s: %w", h.algorithm, h.implementation, err)
	}
	return nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s/%s", h.implementation, h.algorithm)
}

// As returns the handle's engine as capability T, failing with
// PlatformUnsupported when the engine does not provide it.
func As[T any](h *Handle) (T, error) {
	var zero T
	if h == nil {
		return zero, cryptoerr.New(cryptoerr.KindArgumentNull, "provider.As", "nil handle")
	}
	engine, err := h.Engine()
	if err != nil {
		return zero, err
	}
	capability, ok := engine.(T)
	if !ok {
		return zero, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "provider.As",
			"%s does not provide %T for %s", h.implementation, (*T)(nil), h.algorithm)
	}
	return capability, nil
}
