package document

import (
	"fmt"
	"math"

	"github.com/montagehq/montage/internal/types"
)

// EditOp enumerates the closed set of edit variants. Apply and inversion
// switch over every member; adding a variant means extending both.
type EditOp string

const (
	OpReplaceClip   EditOp = "replace_clip"
	OpAdjustEffect  EditOp = "adjust_effect"
	OpInsertGap     EditOp = "insert_gap"
	OpTrimPlacement EditOp = "trim_placement"

	// opRemoveGap and opInsertEffect only ever appear as computed inverses
	// (of OpInsertGap and of an effect removal, respectively).
	opRemoveGap    EditOp = "remove_gap"
	opInsertEffect EditOp = "insert_effect"
)

// Edit is a tagged variant: Op selects which of the remaining fields are
// meaningful. BaseVersion is the document version the edit was constructed
// against; a mismatch at apply time is rejected as stale.
type Edit struct {
	Op          EditOp `json:"op"`
	BaseVersion uint64 `json:"base_version"`

	// Target is the sequence index of the placement being edited.
	// Unused by OpInsertGap, which addresses a timeline position instead.
	Target int `json:"target,omitempty"`

	// OpReplaceClip
	Asset     types.AssetRef `json:"asset,omitempty"`
	SourceIn  float64        `json:"source_in,omitempty"`
	SourceOut float64        `json:"source_out,omitempty"`

	// OpAdjustEffect. EffectIndex == len(effects) appends; Remove deletes.
	EffectIndex int                     `json:"effect_index,omitempty"`
	Effect      types.EffectInstruction `json:"effect,omitempty"`
	Remove      bool                    `json:"remove,omitempty"`

	// OpInsertGap / opRemoveGap. Split records whether inserting the gap
	// split a placement, so removing it rejoins only what it cut apart.
	At     float64 `json:"at,omitempty"`
	GapDur float64 `json:"gap_dur,omitempty"`
	Split  bool    `json:"split,omitempty"`

	// OpTrimPlacement
	NewStart float64 `json:"new_start,omitempty"`
	NewEnd   float64 `json:"new_end,omitempty"`
}

type EditErrorKind string

const (
	StaleBase          EditErrorKind = "stale_base"
	InvariantViolation EditErrorKind = "invariant_violation"
	UnknownTarget      EditErrorKind = "unknown_target"
)

type EditError struct {
	Kind   EditErrorKind
	Detail string
}

func (e *EditError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func editErrf(kind EditErrorKind, format string, args ...any) *EditError {
	return &EditError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// timeEps absorbs float drift when comparing timeline boundaries.
const timeEps = 1e-6

// minSpan is the smallest placement span an edit may leave behind.
const minSpan = 0.05

// applyEdit applies e to a copy of placements and returns the new state plus
// the inverse edit that undoes it. The input slice is never mutated.
func applyEdit(placements []types.ClipPlacement, duration float64, e Edit) ([]types.ClipPlacement, float64, Edit, error) {
	out := clonePlacements(placements)
	var inv Edit
	var err error

	switch e.Op {
	case OpReplaceClip:
		inv, err = applyReplaceClip(out, e)
	case OpAdjustEffect:
		inv, err = applyAdjustEffect(out, e)
	case opInsertEffect:
		inv, err = applyInsertEffect(out, e)
	case OpInsertGap:
		out, duration, inv, err = applyInsertGap(out, duration, e)
	case opRemoveGap:
		out, duration, inv, err = applyRemoveGap(out, duration, e)
	case OpTrimPlacement:
		out, duration, inv, err = applyTrim(out, duration, e)
	default:
		err = editErrf(UnknownTarget, "unknown edit op %q", e.Op)
	}
	if err != nil {
		return nil, 0, Edit{}, err
	}

	if verr := verifyTimeline(out, duration); verr != nil {
		return nil, 0, Edit{}, editErrf(InvariantViolation, "%v", verr)
	}
	return out, duration, inv, nil
}

func findBySeq(placements []types.ClipPlacement, seq int) int {
	for i := range placements {
		if placements[i].Seq == seq {
			return i
		}
	}
	return -1
}

func applyReplaceClip(out []types.ClipPlacement, e Edit) (Edit, error) {
	i := findBySeq(out, e.Target)
	if i < 0 {
		return Edit{}, editErrf(UnknownTarget, "no placement with seq %d", e.Target)
	}
	p := &out[i]

	if !e.Asset.IsBackground() {
		srcLen := e.SourceOut - e.SourceIn
		if e.SourceIn < 0 || srcLen <= 0 {
			return Edit{}, editErrf(InvariantViolation, "bad source window [%g, %g)", e.SourceIn, e.SourceOut)
		}
		if math.Abs(srcLen-p.Duration()) > timeEps {
			return Edit{}, editErrf(InvariantViolation,
				"source window %.3fs does not match placement span %.3fs", srcLen, p.Duration())
		}
	}

	inv := Edit{
		Op:        OpReplaceClip,
		Target:    e.Target,
		Asset:     p.Asset,
		SourceIn:  p.SourceIn,
		SourceOut: p.SourceOut,
	}
	p.Asset = e.Asset
	if e.Asset.IsBackground() {
		p.SourceIn, p.SourceOut = 0, 0
	} else {
		p.SourceIn, p.SourceOut = e.SourceIn, e.SourceOut
	}
	return inv, nil
}

func applyAdjustEffect(out []types.ClipPlacement, e Edit) (Edit, error) {
	i := findBySeq(out, e.Target)
	if i < 0 {
		return Edit{}, editErrf(UnknownTarget, "no placement with seq %d", e.Target)
	}
	p := &out[i]

	switch {
	case e.Remove:
		if e.EffectIndex < 0 || e.EffectIndex >= len(p.Effects) {
			return Edit{}, editErrf(UnknownTarget, "no effect at index %d on seq %d", e.EffectIndex, e.Target)
		}
		// The inverse must re-insert at the original index, not overwrite
		// whatever shifted into it.
		inv := Edit{Op: opInsertEffect, Target: e.Target, EffectIndex: e.EffectIndex, Effect: p.Effects[e.EffectIndex]}
		p.Effects = append(p.Effects[:e.EffectIndex], p.Effects[e.EffectIndex+1:]...)
		if len(p.Effects) == 0 {
			p.Effects = nil
		}
		return inv, nil

	case e.EffectIndex == len(p.Effects):
		if err := checkCurve(e.Effect); err != nil {
			return Edit{}, err
		}
		inv := Edit{Op: OpAdjustEffect, Target: e.Target, EffectIndex: e.EffectIndex, Remove: true}
		p.Effects = append(p.Effects, e.Effect)
		return inv, nil

	default:
		if e.EffectIndex < 0 || e.EffectIndex > len(p.Effects) {
			return Edit{}, editErrf(UnknownTarget, "no effect at index %d on seq %d", e.EffectIndex, e.Target)
		}
		if err := checkCurve(e.Effect); err != nil {
			return Edit{}, err
		}
		inv := Edit{Op: OpAdjustEffect, Target: e.Target, EffectIndex: e.EffectIndex, Effect: p.Effects[e.EffectIndex]}
		p.Effects[e.EffectIndex] = e.Effect
		return inv, nil
	}
}

// applyInsertEffect splices an instruction back in at its original index.
func applyInsertEffect(out []types.ClipPlacement, e Edit) (Edit, error) {
	i := findBySeq(out, e.Target)
	if i < 0 {
		return Edit{}, editErrf(UnknownTarget, "no placement with seq %d", e.Target)
	}
	p := &out[i]
	if e.EffectIndex < 0 || e.EffectIndex > len(p.Effects) {
		return Edit{}, editErrf(UnknownTarget, "no slot at index %d on seq %d", e.EffectIndex, e.Target)
	}
	if err := checkCurve(e.Effect); err != nil {
		return Edit{}, err
	}
	inv := Edit{Op: OpAdjustEffect, Target: e.Target, EffectIndex: e.EffectIndex, Remove: true}
	p.Effects = append(p.Effects[:e.EffectIndex],
		append([]types.EffectInstruction{e.Effect}, p.Effects[e.EffectIndex:]...)...)
	return inv, nil
}

func checkCurve(ins types.EffectInstruction) error {
	for _, pt := range ins.Curve {
		if pt.T < -timeEps || pt.T > 1+timeEps {
			return editErrf(InvariantViolation, "curve point t=%g outside the clip's local time", pt.T)
		}
	}
	return nil
}

func applyInsertGap(out []types.ClipPlacement, duration float64, e Edit) ([]types.ClipPlacement, float64, Edit, error) {
	if e.GapDur < minSpan {
		return nil, 0, Edit{}, editErrf(InvariantViolation, "gap duration %.3fs below minimum %.2fs", e.GapDur, minSpan)
	}
	if e.At < -timeEps || e.At > duration+timeEps {
		return nil, 0, Edit{}, editErrf(UnknownTarget, "gap position %.3fs outside timeline [0, %.3fs]", e.At, duration)
	}

	// Split the placement containing At unless At already sits on a boundary.
	insertAt := len(out)
	split := false
	for i := range out {
		if math.Abs(out[i].Start-e.At) <= timeEps {
			insertAt = i
			break
		}
		if e.At > out[i].Start+timeEps && e.At < out[i].End-timeEps {
			left := out[i]
			right := out[i]
			offset := e.At - left.Start
			left.End = e.At
			right.Start = e.At
			if !left.Asset.IsBackground() {
				left.SourceOut = left.SourceIn + offset
				right.SourceIn = left.SourceOut
			}
			// Effects stay with the left half; splitting a curve across the
			// cut would leave an instruction spanning a boundary.
			right.Effects = nil
			out = append(out[:i], append([]types.ClipPlacement{left, right}, out[i+1:]...)...)
			insertAt = i + 1
			split = true
			break
		}
	}

	gap := types.ClipPlacement{
		Asset: types.Background,
		Start: e.At,
		End:   e.At + e.GapDur,
	}
	out = append(out[:insertAt], append([]types.ClipPlacement{gap}, out[insertAt:]...)...)
	for i := insertAt + 1; i < len(out); i++ {
		out[i].Start += e.GapDur
		out[i].End += e.GapDur
	}
	resequence(out)

	inv := Edit{Op: opRemoveGap, At: e.At, GapDur: e.GapDur, Split: split}
	return out, duration + e.GapDur, inv, nil
}

func applyRemoveGap(out []types.ClipPlacement, duration float64, e Edit) ([]types.ClipPlacement, float64, Edit, error) {
	idx := -1
	for i := range out {
		if out[i].Asset.IsBackground() &&
			math.Abs(out[i].Start-e.At) <= timeEps &&
			math.Abs(out[i].Duration()-e.GapDur) <= timeEps {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0, Edit{}, editErrf(UnknownTarget, "no background gap at %.3fs", e.At)
	}

	out = append(out[:idx], out[idx+1:]...)
	for i := idx; i < len(out); i++ {
		out[i].Start -= e.GapDur
		out[i].End -= e.GapDur
	}

	// Rejoin the two halves only when inserting this gap actually split a
	// placement. Placements that were already adjacent before the gap, even
	// with the same asset and contiguous source windows, stay separate.
	if e.Split {
		if idx == 0 || idx >= len(out) || out[idx-1].Asset != out[idx].Asset {
			return nil, 0, Edit{}, editErrf(InvariantViolation, "recorded split at %.3fs cannot be rejoined", e.At)
		}
		out[idx-1].End = out[idx].End
		if !out[idx-1].Asset.IsBackground() {
			out[idx-1].SourceOut = out[idx].SourceOut
		}
		out = append(out[:idx], out[idx+1:]...)
	}
	resequence(out)

	inv := Edit{Op: OpInsertGap, At: e.At, GapDur: e.GapDur}
	return out, duration - e.GapDur, inv, nil
}

func applyTrim(out []types.ClipPlacement, duration float64, e Edit) ([]types.ClipPlacement, float64, Edit, error) {
	i := findBySeq(out, e.Target)
	if i < 0 {
		return nil, 0, Edit{}, editErrf(UnknownTarget, "no placement with seq %d", e.Target)
	}
	p := &out[i]
	inv := Edit{Op: OpTrimPlacement, Target: e.Target, NewStart: p.Start, NewEnd: p.End}

	if e.NewEnd-e.NewStart < minSpan {
		return nil, 0, Edit{}, editErrf(InvariantViolation, "trim leaves span %.3fs below minimum %.2fs", e.NewEnd-e.NewStart, minSpan)
	}

	// Moving an edge moves the neighbor's matching edge with it; the trimmed
	// clip's source window follows the timeline delta.
	if startDelta := e.NewStart - p.Start; math.Abs(startDelta) > timeEps {
		if i == 0 {
			return nil, 0, Edit{}, editErrf(InvariantViolation, "first placement must start at 0")
		}
		prev := &out[i-1]
		if e.NewStart-prev.Start < minSpan {
			return nil, 0, Edit{}, editErrf(InvariantViolation, "trim leaves neighbor seq %d below minimum span", prev.Seq)
		}
		prev.End = e.NewStart
		if !prev.Asset.IsBackground() {
			prev.SourceOut += startDelta
		}
		p.Start = e.NewStart
		if !p.Asset.IsBackground() {
			p.SourceIn += startDelta
			if p.SourceIn < 0 {
				return nil, 0, Edit{}, editErrf(InvariantViolation, "trim pushes source in-point below 0")
			}
		}
	}

	if endDelta := e.NewEnd - p.End; math.Abs(endDelta) > timeEps {
		if i == len(out)-1 {
			duration = e.NewEnd
		} else {
			next := &out[i+1]
			if next.End-e.NewEnd < minSpan {
				return nil, 0, Edit{}, editErrf(InvariantViolation, "trim leaves neighbor seq %d below minimum span", next.Seq)
			}
			next.Start = e.NewEnd
			if !next.Asset.IsBackground() {
				next.SourceIn += endDelta
				if next.SourceIn < 0 {
					return nil, 0, Edit{}, editErrf(InvariantViolation, "trim pushes source in-point below 0")
				}
			}
		}
		p.End = e.NewEnd
		if !p.Asset.IsBackground() {
			p.SourceOut += endDelta
		}
	}

	return out, duration, inv, nil
}

func resequence(placements []types.ClipPlacement) {
	for i := range placements {
		placements[i].Seq = i
	}
}

// verifyTimeline checks the disjoint gap-free coverage invariant plus curve
// locality. It runs after every edit; a failure here means the edit logic is
// broken, not the caller.
func verifyTimeline(placements []types.ClipPlacement, duration float64) error {
	if len(placements) == 0 {
		return fmt.Errorf("timeline has no placements")
	}
	if math.Abs(placements[0].Start) > timeEps {
		return fmt.Errorf("timeline starts at %.6f, want 0", placements[0].Start)
	}
	for i := range placements {
		p := placements[i]
		if p.Seq != i {
			return fmt.Errorf("placement %d has seq %d", i, p.Seq)
		}
		if p.Duration() <= timeEps {
			return fmt.Errorf("placement seq %d has non-positive span [%.6f, %.6f)", p.Seq, p.Start, p.End)
		}
		if i > 0 && math.Abs(placements[i-1].End-p.Start) > timeEps {
			return fmt.Errorf("gap or overlap between seq %d and %d: %.6f != %.6f",
				placements[i-1].Seq, p.Seq, placements[i-1].End, p.Start)
		}
		for _, ins := range p.Effects {
			if err := checkCurve(ins); err != nil {
				return fmt.Errorf("seq %d: %v", p.Seq, err)
			}
		}
	}
	if last := placements[len(placements)-1]; math.Abs(last.End-duration) > timeEps {
		return fmt.Errorf("timeline ends at %.6f, want %.6f", last.End, duration)
	}
	return nil
}

func clonePlacements(in []types.ClipPlacement) []types.ClipPlacement {
	out := make([]types.ClipPlacement, len(in))
	copy(out, in)
	for i := range out {
		if len(in[i].Effects) > 0 {
			out[i].Effects = append([]types.EffectInstruction(nil), in[i].Effects...)
		}
	}
	return out
}
