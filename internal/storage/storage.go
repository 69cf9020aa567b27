package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when a key has no object behind it.
var ErrNotFound = errors.New("object not found")

type ObjectMeta struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// Storage is the persistence port shared by the tracker, the report builder and
// the dispatcher archive. Keys are slash-separated paths.
type Storage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (ObjectMeta, error)
}

// LocalStorage maps keys onto the filesystem under Root. An empty Root leaves
// keys untouched, so absolute paths and paths relative to the working
// directory both work.
type LocalStorage struct {
	Root string
}

func NewLocalStorage(root string) LocalStorage {
	return LocalStorage{Root: root}
}

func (s LocalStorage) path(key string) string {
	if s.Root == "" {
		return filepath.FromSlash(key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// PutObject fully replaces the object. The body is written to a temporary
// sibling and renamed into place, so readers never see a partial file.
func (s LocalStorage) PutObject(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s LocalStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return body, nil
}

// Head reads metadata only; content is never opened.
func (s LocalStorage) Head(ctx context.Context, key string) (ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return ObjectMeta{}, err
	}
	info, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ObjectMeta{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return ObjectMeta{}, fmt.Errorf("%s is a directory: %w", key, ErrNotFound)
	}
	return ObjectMeta{Key: key, Size: info.Size(), UpdatedAt: info.ModTime()}, nil
}

// InMemoryStorage is a lightweight stub for tests that should not touch disk.
type InMemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
	meta map[string]ObjectMeta
	now  func() time.Time
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		data: map[string][]byte{},
		meta: map[string]ObjectMeta{},
		now:  time.Now,
	}
}

// SetClock overrides the modification time source.
func (s *InMemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStorage) PutObject(ctx context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), body...)
	s.data[key] = cp
	s.meta[key] = ObjectMeta{
		Key:       key,
		Size:      int64(len(cp)),
		UpdatedAt: s.now().UTC(),
	}
	return ctx.Err()
}

func (s *InMemoryStorage) GetObject(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}

func (s *InMemoryStorage) Head(_ context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[key]
	if !ok {
		return ObjectMeta{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return meta, nil
}

// Delete removes a key. Missing keys are ignored.
func (s *InMemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.meta, key)
}

// Keys lists stored keys in no particular order.
func (s *InMemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
