// Package timeline resolves per-segment footage candidates into one ordered,
// gap-free timeline of clip placements.
package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/montagehq/montage/internal/types"
)

// ErrInvalidInput marks a malformed segment sequence. The whole pass fails;
// no partial timeline is returned.
var ErrInvalidInput = errors.New("invalid synthesis input")

type Options struct {
	// NoRepeatWindow blocks an asset from reappearing within this many
	// placements of its previous use. Background is exempt.
	NoRepeatWindow int

	// MinClipSec retires an asset once its remaining usable footage drops
	// below this floor.
	MinClipSec float64
}

func (o Options) withDefaults() Options {
	if o.NoRepeatWindow <= 0 {
		o.NoRepeatWindow = 3
	}
	if o.MinClipSec <= 0 {
		o.MinClipSec = 0.8
	}
	return o
}

const timeEps = 1e-6

// assetLedger tracks how much usable footage each asset has left and how far
// into the source the next placement should start, so a reused asset
// continues its footage instead of repeating it.
type assetLedger struct {
	remaining map[types.AssetRef]float64
	consumed  map[types.AssetRef]float64
}

func newAssetLedger() *assetLedger {
	return &assetLedger{
		remaining: make(map[types.AssetRef]float64),
		consumed:  make(map[types.AssetRef]float64),
	}
}

func (l *assetLedger) remainingFor(c types.FootageCandidate) float64 {
	if r, ok := l.remaining[c.Asset]; ok {
		return r
	}
	l.remaining[c.Asset] = c.Duration
	return c.Duration
}

func (l *assetLedger) take(asset types.AssetRef, span float64) (in, out float64) {
	in = l.consumed[asset]
	out = in + span
	l.consumed[asset] = out
	l.remaining[asset] -= span
	return in, out
}

// Synthesize resolves segments and their candidates into a full coverage of
// [0, total transcript duration). Deterministic: identical inputs produce an
// identical timeline.
func Synthesize(segments []types.TranscriptSegment, candidates map[string][]types.FootageCandidate, opts Options) ([]types.ClipPlacement, error) {
	opts = opts.withDefaults()
	if err := validateSegments(segments); err != nil {
		return nil, err
	}
	total := segments[len(segments)-1].End

	ledger := newAssetLedger()
	var placements []types.ClipPlacement
	var recent []types.AssetRef // last NoRepeatWindow assets, in placement order

	cursor := 0.0
	for _, seg := range segments {
		// Silence between segments gets a background filler so coverage
		// stays gap-free.
		if seg.Start-cursor > timeEps {
			placements = append(placements, backgroundSpan(cursor, seg.Start))
			recent = push(recent, types.Background, opts.NoRepeatWindow)
		}

		span := seg.End - seg.Start
		pick, ok := selectCandidate(candidates[seg.ID], span, recent, ledger, opts)
		if !ok {
			placements = append(placements, backgroundSpan(seg.Start, seg.End))
			recent = push(recent, types.Background, opts.NoRepeatWindow)
			cursor = seg.End
			continue
		}

		in, out := ledger.take(pick.Asset, span)
		placements = append(placements, types.ClipPlacement{
			Asset:     pick.Asset,
			SourceIn:  in,
			SourceOut: out,
			Start:     seg.Start,
			End:       seg.End,
		})
		recent = push(recent, pick.Asset, opts.NoRepeatWindow)
		cursor = seg.End
	}

	placements = mergeAdjacent(placements)
	for i := range placements {
		placements[i].Seq = i
	}

	if err := verifyCoverage(placements, total); err != nil {
		// A coverage failure here is a synthesis bug, not bad input.
		return nil, fmt.Errorf("synthesized timeline violates coverage: %w", err)
	}
	return placements, nil
}

func validateSegments(segments []types.TranscriptSegment) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidInput)
	}
	prevEnd := 0.0
	for i, s := range segments {
		if s.Start < 0 || s.End <= s.Start {
			return fmt.Errorf("%w: segment %d has span [%g, %g)", ErrInvalidInput, i, s.Start, s.End)
		}
		if s.Start < prevEnd-timeEps {
			return fmt.Errorf("%w: segment %d overlaps its predecessor", ErrInvalidInput, i)
		}
		prevEnd = s.End
	}
	if segments[len(segments)-1].End <= 0 {
		return fmt.Errorf("%w: zero total duration", ErrInvalidInput)
	}
	return nil
}

// selectCandidate picks the highest-scoring eligible candidate for a span.
// Ties break on remaining usable duration, then on asset ID, so repeated
// runs make identical choices.
func selectCandidate(cands []types.FootageCandidate, span float64, recent []types.AssetRef, ledger *assetLedger, opts Options) (types.FootageCandidate, bool) {
	var best types.FootageCandidate
	bestRemaining := 0.0
	found := false

	for _, c := range cands {
		if c.Asset.IsBackground() || usedRecently(recent, c.Asset) {
			continue
		}
		remaining := ledger.remainingFor(c)
		if remaining < opts.MinClipSec || remaining+timeEps < span {
			continue // retired, or not enough footage left to cover the span
		}
		if !found || better(c, remaining, best, bestRemaining) {
			best, bestRemaining, found = c, remaining, true
		}
	}
	return best, found
}

func better(c types.FootageCandidate, cRem float64, best types.FootageCandidate, bestRem float64) bool {
	if c.Score != best.Score {
		return c.Score > best.Score
	}
	if cRem != bestRem {
		return cRem > bestRem
	}
	return c.Asset.ID < best.Asset.ID
}

func usedRecently(recent []types.AssetRef, asset types.AssetRef) bool {
	for _, a := range recent {
		if a == asset {
			return true
		}
	}
	return false
}

func push(recent []types.AssetRef, asset types.AssetRef, window int) []types.AssetRef {
	// Adjacent background fillers merge into a single placement later, so a
	// run of them occupies one position in the window, not one per segment.
	if asset.IsBackground() && len(recent) > 0 && recent[len(recent)-1].IsBackground() {
		return recent
	}
	recent = append(recent, asset)
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	return recent
}

func backgroundSpan(start, end float64) types.ClipPlacement {
	return types.ClipPlacement{Asset: types.Background, Start: start, End: end}
}

// mergeAdjacent joins neighboring placements that reference the same asset
// and are contiguous both on the timeline and in source footage, dropping
// needless cuts. In practice this collapses runs of background filler.
func mergeAdjacent(in []types.ClipPlacement) []types.ClipPlacement {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, p := range in[1:] {
		last := &out[len(out)-1]
		sameSource := last.Asset == p.Asset &&
			(last.Asset.IsBackground() || math.Abs(last.SourceOut-p.SourceIn) <= timeEps)
		if sameSource && math.Abs(last.End-p.Start) <= timeEps {
			last.End = p.End
			if !last.Asset.IsBackground() {
				last.SourceOut = p.SourceOut
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func verifyCoverage(placements []types.ClipPlacement, total float64) error {
	if len(placements) == 0 {
		return fmt.Errorf("no placements for duration %.3fs", total)
	}
	if math.Abs(placements[0].Start) > timeEps {
		return fmt.Errorf("first placement starts at %.6f", placements[0].Start)
	}
	for i := 1; i < len(placements); i++ {
		if math.Abs(placements[i-1].End-placements[i].Start) > timeEps {
			return fmt.Errorf("gap or overlap at placement %d (%.6f != %.6f)",
				i, placements[i-1].End, placements[i].Start)
		}
	}
	if last := placements[len(placements)-1]; math.Abs(last.End-total) > timeEps {
		return fmt.Errorf("last placement ends at %.6f, want %.6f", last.End, total)
	}
	return nil
}
