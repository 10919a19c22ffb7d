package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/34j/so-vits-svc-go/pkg/storage"
)

// Store persists feature bundles keyed by utterance id. Implementations
// must be safe for concurrent use: training data loaders read from
// independent workers.
type Store interface {
	// Load reads the bundle for the given utterance id.
	// Returns an error wrapping ErrNotFound if no bundle exists.
	Load(ctx context.Context, id string) (*FeatureBundle, error)

	// Save writes (or overwrites) the bundle for the given utterance id.
	Save(ctx context.Context, id string, b *FeatureBundle) error

	// Exists reports whether a bundle exists for the given utterance id.
	Exists(ctx context.Context, id string) (bool, error)
}

// FileStore persists bundles as one msgpack file per utterance on a
// [storage.FileStore] (local disk, S3, ...). The file path is the
// utterance id with [Suffix] appended, matching the manifest convention.
type FileStore struct {
	files storage.FileStore
}

// NewFileStore creates a bundle store on top of files.
func NewFileStore(files storage.FileStore) *FileStore {
	return &FileStore{files: files}
}

func (s *FileStore) path(id string) string { return id + Suffix }

// Load reads and decodes the bundle file for id.
func (s *FileStore) Load(ctx context.Context, id string) (*FeatureBundle, error) {
	rc, err := s.files.Read(ctx, s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("bundle: read %s: %w", id, err)
	}
	defer rc.Close()
	var b FeatureBundle
	if err := msgpack.NewDecoder(rc).Decode(&b); err != nil {
		return nil, fmt.Errorf("bundle: decode %s: %w", id, err)
	}
	return &b, nil
}

// Save encodes and writes the bundle file for id.
func (s *FileStore) Save(ctx context.Context, id string, b *FeatureBundle) error {
	wc, err := s.files.Write(ctx, s.path(id))
	if err != nil {
		return fmt.Errorf("bundle: write %s: %w", id, err)
	}
	if err := msgpack.NewEncoder(wc).Encode(b); err != nil {
		wc.Close()
		return fmt.Errorf("bundle: encode %s: %w", id, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("bundle: close %s: %w", id, err)
	}
	return nil
}

// Exists reports whether the bundle file for id exists.
func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.files.Exists(ctx, s.path(id))
}

// encodeBundle is shared by the badger store; kept here next to the
// msgpack field tags it depends on.
func encodeBundle(b *FeatureBundle) ([]byte, error) {
	return msgpack.Marshal(b)
}

func decodeBundle(data []byte) (*FeatureBundle, error) {
	var b FeatureBundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
