package ports

import (
	"context"
	"fmt"

	"github.com/montagehq/montage/internal/document"
	"github.com/montagehq/montage/internal/types"
)

type QueryConstraints struct {
	// MinDuration filters out footage shorter than the span it must cover.
	MinDuration float64
	Orientation string
	PerPage     int
}

// CandidateIndex is the external footage search boundary. Implementations
// return candidates ordered by descending relevance; failures are reported
// as *LookupError so callers can fall back per segment instead of aborting.
type CandidateIndex interface {
	Query(ctx context.Context, text string, c QueryConstraints) ([]types.FootageCandidate, error)
}

// SnapshotStore is the delegated persistence boundary. The engine defines the
// snapshot shape; the store writes and reads it verbatim.
type SnapshotStore interface {
	Save(ctx context.Context, snap document.Snapshot) error
	Load(ctx context.Context, sessionID string) (document.Snapshot, error)
}

type LookupErrorKind string

const (
	ProviderUnavailable LookupErrorKind = "provider_unavailable"
	QuotaExceeded       LookupErrorKind = "quota_exceeded"
	LookupTimeout       LookupErrorKind = "timeout"
)

type LookupError struct {
	Kind LookupErrorKind
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
