package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/arca/internal/storage"
)

// JournalEntry records one dispatched newsletter. Entries are hash-chained so
// edits to older logs are detectable.
type JournalEntry struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	SentAt         time.Time `json:"sent_at"`
	Updates        []string  `json:"updates"`
	Recommendation string    `json:"recommendation"`
	DryRun         bool      `json:"dry_run"`
	Attachment     string    `json:"attachment,omitempty"`
	Hash           string    `json:"hash"`
	PrevHash       string    `json:"prev_hash"`
}

var ErrJournalEmpty = errors.New("journal is empty")

type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	Last(ctx context.Context) (JournalEntry, error)
}

// HashChain links entry to the last recorded entry and appends it.
func HashChain(ctx context.Context, j Journal, entry JournalEntry) (JournalEntry, error) {
	prev, err := j.Last(ctx)
	if err != nil && !errors.Is(err, ErrJournalEmpty) {
		return JournalEntry{}, fmt.Errorf("journal head: %w", err)
	}
	entry.PrevHash = prev.Hash
	entry.Hash = hashEntry(entry)
	return entry, j.Append(ctx, entry)
}

// Verify reports whether entry's hash matches its content.
func Verify(entry JournalEntry) bool {
	return entry.Hash == hashEntry(entry)
}

func hashEntry(e JournalEntry) string {
	payload := strings.Join([]string{
		e.ID,
		e.RunID,
		e.SentAt.UTC().Format(time.RFC3339Nano),
		strings.Join(e.Updates, "\x1f"),
		e.Recommendation,
		strconv.FormatBool(e.DryRun),
		e.Attachment,
		e.PrevHash,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

const journalHead = "journal_head.json"

// StorageJournal writes log_<timestamp>.json files under Dir and tracks the
// newest entry in journal_head.json.
type StorageJournal struct {
	storage storage.Storage
	dir     string
}

func NewStorageJournal(st storage.Storage, dir string) *StorageJournal {
	return &StorageJournal{storage: st, dir: dir}
}

func (j *StorageJournal) Append(ctx context.Context, entry JournalEntry) error {
	body, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	key := path.Join(j.dir, "log_"+stamp(entry.SentAt)+".json")
	if err := j.storage.PutObject(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := j.storage.PutObject(ctx, path.Join(j.dir, journalHead), body, "application/json"); err != nil {
		return fmt.Errorf("write journal head: %w", err)
	}
	return nil
}

func (j *StorageJournal) Last(ctx context.Context) (JournalEntry, error) {
	body, err := j.storage.GetObject(ctx, path.Join(j.dir, journalHead))
	if errors.Is(err, storage.ErrNotFound) {
		return JournalEntry{}, ErrJournalEmpty
	}
	if err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return JournalEntry{}, fmt.Errorf("decode journal head: %w", err)
	}
	return entry, nil
}

// stamp formats t the way newsletter and log file names expect.
func stamp(t time.Time) string {
	return t.Format("2006_01_02_150405")
}
