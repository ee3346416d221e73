package objstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Store is a private object store for chat attachments. Objects are only
// reachable through signed URLs issued by a Signer.
type Store interface {
	Put(key string, r io.Reader) error
	Open(key string) (io.ReadCloser, error)
}

// LocalStore keeps objects as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// ObjectKey builds the storage key for an upload:
// {owner_id}/{unix_millis}_{original_filename}.
func ObjectKey(ownerID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d_%s", ownerID, now.UnixMilli(), filepath.Base(filename))
}

// Put stores an object under the given key.
func (s *LocalStore) Put(key string, r io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Open returns a reader for the stored object.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

// resolve rejects keys that escape the store root.
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}
