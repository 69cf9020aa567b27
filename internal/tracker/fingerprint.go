package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/arca/internal/storage"
)

// Fingerprint is a cheap change proxy for an artifact: "{mtime}::{size}".
// Two artifacts with the same mtime second and byte size are treated as
// unchanged; that collision is accepted.
type Fingerprint string

// None is the fingerprint of an absent artifact.
const None Fingerprint = ""

const fingerprintSep = "::"

// NewFingerprint formats metadata into a fingerprint.
func NewFingerprint(meta storage.ObjectMeta) Fingerprint {
	return Fingerprint(fmt.Sprintf("%d%s%d", meta.UpdatedAt.Unix(), fingerprintSep, meta.Size))
}

// FingerprintOf reads metadata for key without opening its content. A missing
// object yields None and no error.
func FingerprintOf(ctx context.Context, st storage.Storage, key string) (Fingerprint, error) {
	meta, err := st.Head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return None, nil
	}
	if err != nil {
		return None, fmt.Errorf("fingerprint %s: %w", key, err)
	}
	return NewFingerprint(meta), nil
}

// FileFingerprint fingerprints a filesystem path. Any stat failure is treated
// as absence.
func FileFingerprint(path string) Fingerprint {
	fp, err := FingerprintOf(context.Background(), storage.LocalStorage{}, path)
	if err != nil {
		return None
	}
	return fp
}
