package bundle

import (
	"context"
	"errors"
	"fmt"
	"log"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps bundles in a BadgerDB database, one value per
// utterance id. Compared to one-file-per-utterance it avoids inode
// pressure for corpora with hundreds of thousands of short clips.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB bundle store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests.
	InMemory bool

	// Logger sets the badger logger. If nil, a quiet logger that only
	// reports warnings and errors is used.
	Logger badger.Logger
}

// NewBadgerStore opens (or creates) a BadgerDB-backed bundle store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("bundle: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("bundle: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads and decodes the bundle stored under id.
func (s *BadgerStore) Load(_ context.Context, id string) (*FeatureBundle, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: badger get %s: %w", id, err)
	}
	b, err := decodeBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("bundle: decode %s: %w", id, err)
	}
	return b, nil
}

// Save encodes and stores the bundle under id.
func (s *BadgerStore) Save(_ context.Context, id string, b *FeatureBundle) error {
	raw, err := encodeBundle(b)
	if err != nil {
		return fmt.Errorf("bundle: encode %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), raw)
	})
	if err != nil {
		return fmt.Errorf("bundle: badger set %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a bundle is stored under id.
func (s *BadgerStore) Exists(_ context.Context, id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bundle: badger head %s: %w", id, err)
	}
	return true, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// quietLogger suppresses badger's info and debug output.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
