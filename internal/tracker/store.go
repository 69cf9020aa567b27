package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yourorg/arca/internal/storage"
)

// Store persists tracker state between runs. Load must treat a missing or
// unreadable store as empty state rather than failing; Save replaces whatever
// was stored before.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// FileStore keeps state as a JSON object under a single storage key.
type FileStore struct {
	storage storage.Storage
	key     string
	logger  *slog.Logger
}

func NewFileStore(st storage.Storage, key string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{storage: st, key: key, logger: logger}
}

func (f *FileStore) Load(ctx context.Context) (State, error) {
	body, err := f.storage.GetObject(ctx, f.key)
	if errors.Is(err, storage.ErrNotFound) {
		return NewState(), nil
	}
	if err != nil {
		f.logger.Warn("tracker state unreadable, starting empty", "key", f.key, "error", err)
		return NewState(), nil
	}
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		f.logger.Warn("tracker state malformed, starting empty", "key", f.key, "error", err)
		return NewState(), nil
	}
	state := make(State, len(raw))
	for k, v := range raw {
		state[k] = Fingerprint(v)
	}
	return state, nil
}

func (f *FileStore) Save(ctx context.Context, state State) error {
	if state == nil {
		state = NewState()
	}
	body, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tracker state: %w", err)
	}
	if err := f.storage.PutObject(ctx, f.key, body, "application/json"); err != nil {
		return fmt.Errorf("save tracker state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store, used by tests and one-off runs that
// must not leave state behind.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saves int
}

func NewMemoryStore(initial State) *MemoryStore {
	if initial == nil {
		initial = NewState()
	}
	return &MemoryStore{state: initial.Clone()}
}

func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
