// Package document owns the mutable timeline aggregate. Every mutation goes
// through Apply, which validates the edit against the timeline invariants
// before committing, records the computed inverse for undo, and bumps the
// version. Readers take versioned snapshots via the Feed; they never observe
// a half-applied edit.
package document

import (
	"errors"
	"sync"
	"time"

	"github.com/montagehq/montage/internal/types"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Record pairs a committed edit with its computed inverse and the versions on
// either side of the commit. The history is serialized as part of a Snapshot.
type Record struct {
	Edit        Edit   `json:"edit"`
	Inverse     Edit   `json:"inverse"`
	PrevVersion uint64 `json:"prev_version"`
	NextVersion uint64 `json:"next_version"`
}

// Document is the single owner of a session's resolved timeline. Edits from
// all sources serialize through its mutex in arrival order.
type Document struct {
	mu sync.Mutex

	sessionID  string
	version    uint64
	duration   float64
	placements []types.ClipPlacement

	history []Record
	redo    []Record

	watchers []chan uint64
}

// New builds a version-0 document around a synthesized timeline. The
// placements slice is owned by the document from this point on.
func New(sessionID string, placements []types.ClipPlacement, duration float64) *Document {
	return &Document{
		sessionID:  sessionID,
		duration:   duration,
		placements: placements,
	}
}

func (d *Document) SessionID() string { return d.sessionID }

func (d *Document) CurrentVersion() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Apply validates and commits a forward edit. On success it returns the new
// version; on failure the document is unchanged and the error is an
// *EditError the originator can act on.
func (d *Document) Apply(e Edit) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.BaseVersion != d.version {
		return 0, editErrf(StaleBase,
			"edit built against version %d, document is at %d", e.BaseVersion, d.version)
	}

	placements, duration, inv, err := applyEdit(d.placements, d.duration, e)
	if err != nil {
		return 0, err
	}

	rec := Record{Edit: e, Inverse: inv, PrevVersion: d.version, NextVersion: d.version + 1}
	d.placements = placements
	d.duration = duration
	d.version = rec.NextVersion
	d.history = append(d.history, rec)
	d.redo = nil // a new forward edit forks away from anything undone
	d.notifyLocked()
	return d.version, nil
}

// Undo reverts the most recent forward edit and restores its pre-edit
// version, making a matching Redo possible until the next forward edit.
func (d *Document) Undo() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		return 0, ErrNothingToUndo
	}
	rec := d.history[len(d.history)-1]

	placements, duration, _, err := applyEdit(d.placements, d.duration, rec.Inverse)
	if err != nil {
		// The inverse was computed from the state it reverts; failure to
		// apply it means the history is corrupt.
		return 0, editErrf(InvariantViolation, "undo failed: %v", err)
	}

	d.placements = placements
	d.duration = duration
	d.version = rec.PrevVersion
	d.history = d.history[:len(d.history)-1]
	d.redo = append(d.redo, rec)
	d.notifyLocked()
	return d.version, nil
}

func (d *Document) Redo() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.redo) == 0 {
		return 0, ErrNothingToRedo
	}
	rec := d.redo[len(d.redo)-1]

	placements, duration, _, err := applyEdit(d.placements, d.duration, rec.Edit)
	if err != nil {
		return 0, editErrf(InvariantViolation, "redo failed: %v", err)
	}

	d.placements = placements
	d.duration = duration
	d.version = rec.NextVersion
	d.redo = d.redo[:len(d.redo)-1]
	d.history = append(d.history, rec)
	d.notifyLocked()
	return d.version, nil
}

// Snapshot captures the full serialization shape the persistence collaborator
// stores verbatim: placements with nested effects, version, and edit history.
type Snapshot struct {
	SessionID  string                `json:"session_id"`
	Version    uint64                `json:"version"`
	TakenAt    time.Time             `json:"taken_at"`
	Duration   float64               `json:"duration"`
	Placements []types.ClipPlacement `json:"placements"`
	History    []Record              `json:"history,omitempty"`
}

func (d *Document) Snapshot(now time.Time) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		SessionID:  d.sessionID,
		Version:    d.version,
		TakenAt:    now,
		Duration:   d.duration,
		Placements: clonePlacements(d.placements),
		History:    append([]Record(nil), d.history...),
	}
}

// FromSnapshot restores a document previously captured with Snapshot. The
// redo stack is not persisted; an undone-but-not-redone tail is gone after a
// restore, matching linear history semantics.
func FromSnapshot(s Snapshot) (*Document, error) {
	if err := verifyTimeline(s.Placements, s.Duration); err != nil {
		return nil, err
	}
	return &Document{
		sessionID:  s.SessionID,
		version:    s.Version,
		duration:   s.Duration,
		placements: clonePlacements(s.Placements),
		history:    append([]Record(nil), s.History...),
	}, nil
}

func (d *Document) notifyLocked() {
	for _, ch := range d.watchers {
		// Latest-wins: a slow reader sees only the newest version.
		select {
		case ch <- d.version:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- d.version:
			default:
			}
		}
	}
}
