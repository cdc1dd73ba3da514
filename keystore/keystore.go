// Package keystore persists named key records for the key package. Records
// can be kept in memory, in a LevelDB directory or in the OS keyring, and are
// optionally sealed under a KMS or local master key before they are written.
package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"temporal-sa/crypto-provider/cryptoerr"
	"time"
)

type (
	// Record is one persisted key. Data holds the key blob in Format.
	Record struct {
		Name       string            `json:"name"`
		Algorithm  string            `json:"algorithm"`
		Format     string            `json:"format"`
		Data       []byte            `json:"data"`
		Properties map[string][]byte `json:"properties,omitempty"`
		Metadata   map[string][]byte `json:"metadata,omitempty"`
		CreatedAt  time.Time         `json:"created_at"`
	}

	// KeyStore is a flat namespace of key records. Put replaces an existing
	// record of the same name. Get and Delete report KeyNotFound for unknown names.
	KeyStore interface {
		Put(ctx context.Context, record *Record) error
		Get(ctx context.Context, name string) (*Record, error)
		Delete(ctx context.Context, name string) error
		List(ctx context.Context) ([]string, error)
		Close() error
	}
)

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.Data = append([]byte(nil), r.Data...)
	out.Properties = cloneBytesMap(r.Properties)
	out.Metadata = cloneBytesMap(r.Metadata)
	return &out
}

func cloneBytesMap(in map[string][]byte) map[string][]byte {
	if in == nil {
		return nil
	}
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func marshalRecord(record *Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %q: %w", record.Name, err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

func notFound(op, name string) error {
	return &cryptoerr.Error{
		Kind: cryptoerr.KindKeyNotFound,
		Op:   op,
		Code: cryptoerr.NteNotFound,
		Msg:  fmt.Sprintf("key %q does not exist", name),
	}
}

func validName(op, name string) error {
	if name == "" {
		return cryptoerr.New(cryptoerr.KindArgumentNull, op, "key name is empty")
	}
	return nil
}

func sortedNames(names []string) []string {
	sort.Strings(names)
	return names
}
