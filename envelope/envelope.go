// Package envelope protects key material at rest with per-record data keys
// that are themselves wrapped by a master key held in a KMS or locally.
package envelope

import (
	"context"
	"encoding/json"
	"time"

	"temporal-sa/crypto-provider/internal/zeroize"
)

type (
	// DataKey is a data encryption key in plaintext and wrapped form.
	DataKey struct {
		Plaintext []byte
		Wrapped   []byte
		CreatedAt time.Time
		Uses      int
	}

	// KeyProvider issues data keys wrapped under a master key and unwraps them again.
	KeyProvider interface {
		// KeyID names the master key; it is recorded next to sealed data.
		KeyID() string
		GenerateDataKey(ctx context.Context, keyCtx Context) (*DataKey, error)
		UnwrapDataKey(ctx context.Context, keyCtx Context, wrapped []byte) (*DataKey, error)
	}

	// Context is bound to a data key and to the data it seals; opening with a
	// different context fails.
	Context map[string]string
)

// Bytes returns a deterministic encoding of the context for use as
// additional authenticated data. encoding/json writes map keys sorted.
func (c Context) Bytes() []byte {
	if len(c) == 0 {
		return []byte("{}")
	}
	data, err := json.Marshal(map[string]string(c))
	if err != nil {
		return []byte("{}")
	}
	return data
}

// With returns a copy of the context with key set to value.
func (c Context) With(key, value string) Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

func (d *DataKey) clone() *DataKey {
	return &DataKey{
		Plaintext: append([]byte(nil), d.Plaintext...),
		Wrapped:   append([]byte(nil), d.Wrapped...),
		CreatedAt: d.CreatedAt,
		Uses:      d.Uses,
	}
}

// Destroy zeroes the plaintext key.
func (d *DataKey) Destroy() {
	if d != nil {
		zeroize.Bytes(d.Plaintext)
	}
}
