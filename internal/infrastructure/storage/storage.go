package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// MediaStore holds chunk recordings and generated video summaries
type MediaStore interface {
	// Fetch makes the object available as a local file. The cleanup func must be called when done.
	Fetch(ctx context.Context, ref string) (string, func(), error)
	// Put stores a local file under ref
	Put(ctx context.Context, ref string, localPath string, contentType string) error
	// Remove deletes ref. Removing a missing object is not an error.
	Remove(ctx context.Context, ref string) error
}

// URLSigner is implemented by stores that can hand out time-limited download links
type URLSigner interface {
	GetFileURL(ctx context.Context, ref string, expiry time.Duration) (string, error)
}

// New builds the media store selected by configuration
func New(cfg *config.StorageConfig) (MediaStore, error) {
	switch cfg.Type {
	case "minio":
		client, err := NewMinIOClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "local", "":
		store, err := NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// LocalStore keeps media on the local filesystem under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	p := filepath.Join(s.root, filepath.FromSlash(ref))
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("reference %q escapes media root", ref)
	}
	return p, nil
}

// Fetch returns the file path directly; nothing to clean up
func (s *LocalStore) Fetch(_ context.Context, ref string) (string, func(), error) {
	p, err := s.path(ref)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(p); err != nil {
		return "", nil, fmt.Errorf("media %q unavailable: %w", ref, err)
	}
	return p, func() {}, nil
}

// Put copies a local file into the store
func (s *LocalStore) Put(_ context.Context, ref string, localPath string, _ string) error {
	dst, err := s.path(ref)
	if err != nil {
		return err
	}
	if dst == localPath {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy media: %w", err)
	}
	return out.Close()
}

// Remove deletes a stored file
func (s *LocalStore) Remove(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
