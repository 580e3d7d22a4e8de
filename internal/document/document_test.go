package document

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montagehq/montage/internal/types"
)

func asset(id string) types.AssetRef {
	return types.AssetRef{ID: id, Provider: "pexels"}
}

// newTestDocument builds a three-clip timeline: footage at [0,2) and [2,4),
// background filler at [4,6).
func newTestDocument() *Document {
	placements := []types.ClipPlacement{
		{Seq: 0, Asset: asset("a"), SourceIn: 0, SourceOut: 2, Start: 0, End: 2},
		{Seq: 1, Asset: asset("b"), SourceIn: 1, SourceOut: 3, Start: 2, End: 4},
		{Seq: 2, Asset: types.Background, Start: 4, End: 6},
	}
	return New("session-1", placements, 6)
}

func editKind(t *testing.T, err error) EditErrorKind {
	t.Helper()
	var eerr *EditError
	require.ErrorAs(t, err, &eerr)
	return eerr.Kind
}

func TestApply_ReplaceClip(t *testing.T) {
	d := newTestDocument()

	v, err := d.Apply(Edit{
		Op:          OpReplaceClip,
		BaseVersion: 0,
		Target:      1,
		Asset:       asset("c"),
		SourceIn:    5,
		SourceOut:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	_, placements := d.Feed().Current()
	assert.Equal(t, asset("c"), placements[1].Asset)
	assert.Equal(t, 5.0, placements[1].SourceIn)
	assert.Equal(t, 7.0, placements[1].SourceOut)
}

func TestApply_StaleBaseRejected(t *testing.T) {
	d := newTestDocument()

	_, err := d.Apply(Edit{Op: OpReplaceClip, BaseVersion: 0, Target: 0, Asset: types.Background})
	require.NoError(t, err)

	// Built against version 0, but the document moved on.
	_, err = d.Apply(Edit{Op: OpReplaceClip, BaseVersion: 0, Target: 1, Asset: types.Background})
	assert.Equal(t, StaleBase, editKind(t, err))
	assert.Equal(t, uint64(1), d.CurrentVersion())
}

func TestApply_UnknownTarget(t *testing.T) {
	d := newTestDocument()
	_, err := d.Apply(Edit{Op: OpReplaceClip, BaseVersion: 0, Target: 99, Asset: types.Background})
	assert.Equal(t, UnknownTarget, editKind(t, err))
}

func TestApply_InvariantViolationLeavesStateUntouched(t *testing.T) {
	d := newTestDocument()
	before := d.Snapshot(time.Time{})

	// Source window does not match the 2s placement span.
	_, err := d.Apply(Edit{
		Op:          OpReplaceClip,
		BaseVersion: 0,
		Target:      0,
		Asset:       asset("c"),
		SourceIn:    0,
		SourceOut:   0.5,
	})
	assert.Equal(t, InvariantViolation, editKind(t, err))

	after := d.Snapshot(time.Time{})
	assert.Equal(t, before, after)
}

func TestApply_TrimMovesSharedBoundary(t *testing.T) {
	d := newTestDocument()

	_, err := d.Apply(Edit{
		Op:          OpTrimPlacement,
		BaseVersion: 0,
		Target:      1,
		NewStart:    1.5,
		NewEnd:      4,
	})
	require.NoError(t, err)

	_, placements := d.Feed().Current()
	assert.Equal(t, 1.5, placements[0].End)
	assert.Equal(t, 1.5, placements[0].SourceOut, "neighbor keeps matching footage at the new boundary")
	assert.Equal(t, 1.5, placements[1].Start)
	assert.Equal(t, 0.5, placements[1].SourceIn)
}

func TestApply_TrimCannotEmptyNeighbor(t *testing.T) {
	d := newTestDocument()
	_, err := d.Apply(Edit{
		Op:          OpTrimPlacement,
		BaseVersion: 0,
		Target:      1,
		NewStart:    0.01, // would leave placement 0 with nothing
		NewEnd:      4,
	})
	assert.Equal(t, InvariantViolation, editKind(t, err))
}

func TestApply_InsertGapSplitsPlacement(t *testing.T) {
	d := newTestDocument()

	_, err := d.Apply(Edit{Op: OpInsertGap, BaseVersion: 0, At: 1, GapDur: 0.5})
	require.NoError(t, err)

	_, placements := d.Feed().Current()
	require.Len(t, placements, 5)

	assert.Equal(t, asset("a"), placements[0].Asset)
	assert.Equal(t, 1.0, placements[0].End)
	assert.True(t, placements[1].Asset.IsBackground())
	assert.Equal(t, 1.0, placements[1].Start)
	assert.Equal(t, 1.5, placements[1].End)
	assert.Equal(t, asset("a"), placements[2].Asset)
	assert.Equal(t, 1.0, placements[2].SourceIn, "split continues the source footage")
	assert.Equal(t, 6.5, placements[4].End, "total duration grows by the gap")
}

func TestApply_AdjustEffectAppendReplaceRemove(t *testing.T) {
	d := newTestDocument()
	zoom := types.EffectInstruction{
		Kind:    types.EffectZoomIn,
		Trigger: types.TriggerEmphasis,
		Curve:   []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: 1.08}},
	}

	_, err := d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 0, Target: 0, EffectIndex: 0, Effect: zoom})
	require.NoError(t, err)

	stronger := zoom
	stronger.Curve = []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: 1.15}}
	_, err = d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 1, Target: 0, EffectIndex: 0, Effect: stronger})
	require.NoError(t, err)

	_, placements := d.Feed().Current()
	require.Len(t, placements[0].Effects, 1)
	assert.Equal(t, 1.15, placements[0].Effects[0].Curve[1].Value)

	_, err = d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 2, Target: 0, EffectIndex: 0, Remove: true})
	require.NoError(t, err)
	_, placements = d.Feed().Current()
	assert.Empty(t, placements[0].Effects)
}

func TestApply_RejectsCurveOutsideLocalTime(t *testing.T) {
	d := newTestDocument()
	_, err := d.Apply(Edit{
		Op: OpAdjustEffect, BaseVersion: 0, Target: 0, EffectIndex: 0,
		Effect: types.EffectInstruction{
			Kind:  types.EffectZoomIn,
			Curve: []types.CurvePoint{{T: 0, Value: 1}, {T: 1.4, Value: 1.1}},
		},
	})
	assert.Equal(t, InvariantViolation, editKind(t, err))
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	d := newTestDocument()
	original := d.Snapshot(time.Time{})

	edits := []Edit{
		{Op: OpReplaceClip, BaseVersion: 0, Target: 0, Asset: asset("z"), SourceIn: 0, SourceOut: 2},
		{Op: OpTrimPlacement, BaseVersion: 1, Target: 1, NewStart: 1.5, NewEnd: 4},
		{Op: OpInsertGap, BaseVersion: 2, At: 3, GapDur: 1},
		{Op: OpAdjustEffect, BaseVersion: 3, Target: 0, EffectIndex: 0, Effect: types.EffectInstruction{
			Kind: types.EffectDarkOverlay, Trigger: types.TriggerExplicit,
			Curve: []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: 1}},
		}},
	}
	for _, e := range edits {
		_, err := d.Apply(e)
		require.NoError(t, err)
	}
	edited := d.Snapshot(time.Time{})
	require.Equal(t, uint64(len(edits)), edited.Version)

	for range edits {
		_, err := d.Undo()
		require.NoError(t, err)
	}
	restored := d.Snapshot(time.Time{})
	assert.Equal(t, original.Version, restored.Version)
	assert.Equal(t, original.Placements, restored.Placements)
	assert.Equal(t, original.Duration, restored.Duration)

	for range edits {
		_, err := d.Redo()
		require.NoError(t, err)
	}
	redone := d.Snapshot(time.Time{})
	assert.Equal(t, edited.Version, redone.Version)
	assert.Equal(t, edited.Placements, redone.Placements)
	assert.Equal(t, edited.Duration, redone.Duration)
}

func TestUndo_RemovedEffectRestoredInPlace(t *testing.T) {
	d := newTestDocument()
	zoom := types.EffectInstruction{
		Kind:    types.EffectZoomIn,
		Trigger: types.TriggerEmphasis,
		Curve:   []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: 1.08}},
	}
	cut := types.EffectInstruction{Kind: types.EffectHardCut, Trigger: types.TriggerClipBoundary}

	_, err := d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 0, Target: 0, EffectIndex: 0, Effect: zoom})
	require.NoError(t, err)
	_, err = d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 1, Target: 0, EffectIndex: 1, Effect: cut})
	require.NoError(t, err)

	// Removing the first effect shifts the second into its slot; undo must
	// re-insert, not overwrite the shifted one.
	_, err = d.Apply(Edit{Op: OpAdjustEffect, BaseVersion: 2, Target: 0, EffectIndex: 0, Remove: true})
	require.NoError(t, err)
	_, err = d.Undo()
	require.NoError(t, err)

	_, placements := d.Feed().Current()
	require.Len(t, placements[0].Effects, 2)
	assert.Equal(t, zoom, placements[0].Effects[0])
	assert.Equal(t, cut, placements[0].Effects[1])
}

func TestUndo_GapOnSeamKeepsPlacementsSeparate(t *testing.T) {
	d := newTestDocument()

	// Make placements 0 and 1 the same asset with contiguous source windows,
	// the shape InsertGap's split would also leave behind.
	_, err := d.Apply(Edit{
		Op:          OpReplaceClip,
		BaseVersion: 0,
		Target:      1,
		Asset:       asset("a"),
		SourceIn:    2,
		SourceOut:   4,
	})
	require.NoError(t, err)
	before := d.Snapshot(time.Time{})

	_, err = d.Apply(Edit{Op: OpInsertGap, BaseVersion: 1, At: 2, GapDur: 0.5})
	require.NoError(t, err)
	_, err = d.Undo()
	require.NoError(t, err)

	restored := d.Snapshot(time.Time{})
	assert.Equal(t, before.Placements, restored.Placements, "undo must not merge placements the gap never split")
	assert.Equal(t, before.Duration, restored.Duration)
}

func TestUndoRedo_Bounds(t *testing.T) {
	d := newTestDocument()
	_, err := d.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
	_, err = d.Redo()
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestRedo_ClearedByForwardEdit(t *testing.T) {
	d := newTestDocument()

	_, err := d.Apply(Edit{Op: OpReplaceClip, BaseVersion: 0, Target: 0, Asset: asset("z"), SourceIn: 0, SourceOut: 2})
	require.NoError(t, err)
	_, err = d.Undo()
	require.NoError(t, err)

	_, err = d.Apply(Edit{Op: OpInsertGap, BaseVersion: 0, At: 2, GapDur: 1})
	require.NoError(t, err)

	_, err = d.Redo()
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestFeed_SnapshotIsolation(t *testing.T) {
	d := newTestDocument()
	f := d.Feed()

	v, placements := f.Current()
	assert.Equal(t, uint64(0), v)

	// Mutating the returned slice must not leak into the document.
	placements[0].Asset = asset("corrupted")
	placements[0].Effects = append(placements[0].Effects, types.EffectInstruction{Kind: types.EffectHardCut})

	_, fresh := f.Current()
	assert.Equal(t, asset("a"), fresh[0].Asset)
	assert.Empty(t, fresh[0].Effects)
}

func TestFeed_ChangeNotification(t *testing.T) {
	d := newTestDocument()
	ch := d.Feed().Changes()

	_, err := d.Apply(Edit{Op: OpInsertGap, BaseVersion: 0, At: 2, GapDur: 1})
	require.NoError(t, err)

	select {
	case v := <-ch:
		assert.Equal(t, uint64(1), v)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestFeed_SlowReaderSeesLatestVersion(t *testing.T) {
	d := newTestDocument()
	ch := d.Feed().Changes()

	_, err := d.Apply(Edit{Op: OpInsertGap, BaseVersion: 0, At: 2, GapDur: 1})
	require.NoError(t, err)
	_, err = d.Apply(Edit{Op: OpInsertGap, BaseVersion: 1, At: 2, GapDur: 1})
	require.NoError(t, err)

	v := <-ch
	assert.Equal(t, uint64(2), v, "buffered channel keeps only the newest version")
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	d := newTestDocument()
	f := d.Feed()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, placements := f.Current()
				// Coverage must hold in every observed state.
				for i := 1; i < len(placements); i++ {
					if placements[i-1].End != placements[i].Start {
						t.Error("reader observed a half-applied edit")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		base := d.CurrentVersion()
		_, err := d.Apply(Edit{Op: OpInsertGap, BaseVersion: base, At: 2, GapDur: 0.1})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestSnapshot_RoundTrip(t *testing.T) {
	d := newTestDocument()
	_, err := d.Apply(Edit{Op: OpInsertGap, BaseVersion: 0, At: 2, GapDur: 1})
	require.NoError(t, err)

	snap := d.Snapshot(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, d.CurrentVersion(), restored.CurrentVersion())
	_, want := d.Feed().Current()
	_, got := restored.Feed().Current()
	assert.Equal(t, want, got)

	// History survives, so the restored document can still undo.
	_, err = restored.Undo()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), restored.CurrentVersion())
}

func TestFromSnapshot_RejectsCorruptTimeline(t *testing.T) {
	snap := Snapshot{
		SessionID: "s",
		Duration:  4,
		Placements: []types.ClipPlacement{
			{Seq: 0, Asset: asset("a"), Start: 0, End: 2},
			{Seq: 1, Asset: asset("b"), Start: 3, End: 4}, // gap at [2,3)
		},
	}
	_, err := FromSnapshot(snap)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNothingToUndo))
}
