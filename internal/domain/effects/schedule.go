// Package effects annotates a resolved timeline with transition and zoom
// instructions. Scheduling is deterministic and side-effect-free: the input
// placements are never mutated.
package effects

import (
	"github.com/montagehq/montage/internal/types"
)

type Options struct {
	// ZoomThreshold is the emphasis level above which a placement gets a
	// zoom-in.
	ZoomThreshold float64

	// ZoomPeakScale is the scale reached at the end of the zoom curve.
	ZoomPeakScale float64

	// DissolveSec is the wall-clock length of a cross-dissolve ramp. It is
	// re-normalized into each clip's local time, capped at half the clip.
	DissolveSec float64
}

func (o Options) withDefaults() Options {
	if o.ZoomThreshold <= 0 {
		o.ZoomThreshold = 0.6
	}
	if o.ZoomPeakScale <= 1 {
		o.ZoomPeakScale = 1.08
	}
	if o.DissolveSec <= 0 {
		o.DissolveSec = 0.4
	}
	return o
}

// Schedule returns a copy of placements with effects attached: paired
// boundary transitions on every adjacent pair, at most one zoom per
// placement, and a dark overlay on background filler.
func Schedule(placements []types.ClipPlacement, segments []types.TranscriptSegment, opts Options) []types.ClipPlacement {
	opts = opts.withDefaults()

	out := make([]types.ClipPlacement, len(placements))
	copy(out, placements)
	for i := range out {
		out[i].Effects = nil
	}

	for i := range out {
		p := &out[i]

		if p.Asset.IsBackground() {
			// The dark background reads as a deliberate beat; the overlay
			// instruction tells the compositor to render it as one.
			p.Effects = append(p.Effects, types.EffectInstruction{
				Kind:    types.EffectDarkOverlay,
				Trigger: types.TriggerExplicit,
				Curve:   []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: 1}},
			})
		} else if maxEmphasis(segments, p.Start, p.End) > opts.ZoomThreshold {
			p.Effects = append(p.Effects, types.EffectInstruction{
				Kind:    types.EffectZoomIn,
				Trigger: types.TriggerEmphasis,
				Curve:   []types.CurvePoint{{T: 0, Value: 1}, {T: 1, Value: opts.ZoomPeakScale}},
			})
		}

		if i+1 < len(out) {
			attachTransition(p, &out[i+1], opts)
		}
	}
	return out
}

// attachTransition adds the paired boundary instructions between a placement
// and its successor. Cross-dissolve applies only when both sides are distinct
// real footage; any boundary touching the background stays a hard cut.
func attachTransition(p, next *types.ClipPlacement, opts Options) {
	kind := types.EffectHardCut
	if p.Asset != next.Asset && !p.Asset.IsBackground() && !next.Asset.IsBackground() {
		kind = types.EffectCrossDissolve
	}

	outgoing := types.EffectInstruction{Kind: kind, Trigger: types.TriggerClipBoundary}
	incoming := types.EffectInstruction{Kind: kind, Trigger: types.TriggerClipBoundary}
	if kind == types.EffectCrossDissolve {
		outgoing.Curve = []types.CurvePoint{{T: 1 - rampFrac(p.Duration(), opts), Value: 1}, {T: 1, Value: 0}}
		incoming.Curve = []types.CurvePoint{{T: 0, Value: 0}, {T: rampFrac(next.Duration(), opts), Value: 1}}
	}
	p.Effects = append(p.Effects, outgoing)
	next.Effects = append(next.Effects, incoming)
}

func rampFrac(clipDur float64, opts Options) float64 {
	if clipDur <= 0 {
		return 0
	}
	frac := opts.DissolveSec / clipDur
	if frac > 0.5 {
		frac = 0.5
	}
	return frac
}

func maxEmphasis(segments []types.TranscriptSegment, start, end float64) float64 {
	max := 0.0
	for _, s := range segments {
		if s.End <= start || s.Start >= end {
			continue
		}
		if s.Emphasis > max {
			max = s.Emphasis
		}
	}
	return max
}
