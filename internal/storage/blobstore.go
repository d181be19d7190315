// Package storage archives raw RFC 5322 messages as blobs, either on the
// local filesystem or in S3-compatible object storage (AWS S3, MinIO).
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// BlobStore reads and writes raw message blobs by key. Keys use forward
// slashes: "<accountID>/<canonicalID>.eml".
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// MessageKey returns the blob key for a message.
func MessageKey(accountID, canonicalID string) string {
	// Canonical IDs may contain slashes (rare, but legal in a message-id).
	safe := strings.ReplaceAll(canonicalID, "/", "_")
	return accountID + "/" + safe + ".eml"
}

// FSBlobStore stores blobs under a local directory.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates a filesystem-backed blob store rooted at root.
func NewFSBlobStore(root string) *FSBlobStore {
	return &FSBlobStore{root: filepath.Clean(root)}
}

func (f *FSBlobStore) Write(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "mkdir for %s", key)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", key)
	}
	return nil
}

func (f *FSBlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	path := filepath.Join(f.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "read %s", key)
	}
	return data, nil
}

// List walks recursively to match S3 List behavior.
func (f *FSBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(f.root, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

// NewBlobStore returns a BlobStore from env. If S3 env vars are set it
// returns an S3BlobStore, otherwise an FSBlobStore rooted at dataDir.
func NewBlobStore(dataDir string) (BlobStore, error) {
	cfg := ConfigFromEnv()
	if cfg != nil && cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return NewS3BlobStore(context.Background(), cfg, "raw")
	}
	return NewFSBlobStore(dataDir), nil
}
