package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	DefaultLevelDBPath = "./keys"

	recordPrefix = "key/"
)

type (
	LevelDBOptions struct {
		Path string `mapstructure:"path"`
		// Sync flushes every write to disk before Put or Delete returns.
		Sync bool `mapstructure:"sync"`
	}

	// LevelDBStore keeps JSON encoded records in a LevelDB directory.
	LevelDBStore struct {
		mu        sync.RWMutex
		db        *leveldb.DB
		path      string
		readOpts  *opt.ReadOptions
		writeOpts *opt.WriteOptions
		closed    bool
	}
)

func NewLevelDBStore(options LevelDBOptions) (*LevelDBStore, error) {
	if options.Path == "" {
		options.Path = DefaultLevelDBPath
	}

	db, err := leveldb.OpenFile(options.Path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", options.Path, err)
	}

	return &LevelDBStore{
		db:        db,
		path:      options.Path,
		readOpts:  &opt.ReadOptions{},
		writeOpts: &opt.WriteOptions{Sync: options.Sync},
	}, nil
}

func (l *LevelDBStore) Put(_ context.Context, record *Record) error {
	if err := validName("keystore.Put", record.Name); err != nil {
		return err
	}
	data, err := marshalRecord(record)
	if err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.db.Put(recordKey(record.Name), data, l.writeOpts); err != nil {
		return fmt.Errorf("failed to write key %q: %w", record.Name, err)
	}
	return nil
}

func (l *LevelDBStore) Get(_ context.Context, name string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := l.db.Get(recordKey(name), l.readOpts)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, notFound("keystore.Get", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", name, err)
	}
	return unmarshalRecord(data)
}

func (l *LevelDBStore) Delete(_ context.Context, name string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// leveldb deletes of missing keys succeed silently
	if ok, err := l.db.Has(recordKey(name), l.readOpts); err != nil {
		return fmt.Errorf("failed to read key %q: %w", name, err)
	} else if !ok {
		return notFound("keystore.Delete", name)
	}

	if err := l.db.Delete(recordKey(name), l.writeOpts); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", name, err)
	}
	return nil
}

func (l *LevelDBStore) List(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	itr := l.db.NewIterator(util.BytesPrefix([]byte(recordPrefix)), l.readOpts)
	defer itr.Release()

	var names []string
	for itr.Next() {
		names = append(names, string(itr.Key()[len(recordPrefix):]))
	}
	if err := itr.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate leveldb at %s: %w", l.path, err)
	}
	return sortedNames(names), nil
}

func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func recordKey(name string) []byte {
	return []byte(recordPrefix + name)
}
