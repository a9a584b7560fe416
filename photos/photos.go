// Package photos stores punch photos and hands back opaque references.
package photos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/config"
)

var ErrNotFound = errors.New("photo not found")

// NewFromConfig picks the implementation named by cfg.Type.
func NewFromConfig(cfg config.PhotosConfig) (attendance.PhotoStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem photo store requires dir to be set")
		}
		return NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown photo store type: %s", cfg.Type)
	}
}

// reference builds <worker>/<yyyymmdd>/<hhmmss>-<sha12>.<ext>. The digest
// makes two photos taken in the same second distinct.
func reference(worker attendance.WorkerID, takenAt time.Time, data []byte) string {
	sum := sha256.Sum256(data)
	ts := takenAt.UTC()
	name := ts.Format("150405") + "-" + hex.EncodeToString(sum[:6]) + extension(data)
	return path.Join(sanitize(string(worker)), ts.Format("20060102"), name)
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// sanitize keeps worker ids from escaping the photo root.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

// =============================================================================
// FILESYSTEM
// =============================================================================

// FileStore writes photos under a root directory:
//
//	<root>/<worker>/<yyyymmdd>/<hhmmss>-<sha12>.jpg
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) SavePhoto(ctx context.Context, worker attendance.WorkerID, takenAt time.Time, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := reference(worker, takenAt, data)
	dest := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create photo directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial photo.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".photo-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return ref, nil
}

// Load returns the photo stored under ref.
func (s *FileStore) Load(ref string) ([]byte, error) {
	clean := path.Clean("/" + ref)
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}

// =============================================================================
// MEMORY
// =============================================================================

// MemoryStore keeps photos in memory. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	photos map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{photos: make(map[string][]byte)}
}

func (s *MemoryStore) SavePhoto(_ context.Context, worker attendance.WorkerID, takenAt time.Time, data []byte) (string, error) {
	ref := reference(worker, takenAt, data)
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[ref] = cp
	return ref, nil
}

func (s *MemoryStore) Load(ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.photos[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}
