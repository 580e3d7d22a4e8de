// Package usecase runs a full synthesis pass: parallel candidate matching,
// timeline resolution, effect scheduling, and construction of the version-0
// document. It performs no I/O of its own; collaborators arrive via Deps.
package usecase

import (
	"context"
	"log/slog"

	"github.com/montagehq/montage/internal/document"
	"github.com/montagehq/montage/internal/domain/effects"
	"github.com/montagehq/montage/internal/domain/match"
	"github.com/montagehq/montage/internal/domain/timeline"
	"github.com/montagehq/montage/internal/ports"
	"github.com/montagehq/montage/internal/types"
)

type Deps struct {
	Index ports.CandidateIndex
	Log   *slog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return Usecase{d: d}
}

type Input struct {
	SessionID  string
	Transcript types.Transcript

	Match    match.Options
	Timeline timeline.Options
	Effects  effects.Options
}

type Result struct {
	Document *document.Document
	Report   match.Report
}

// Run executes one synthesis pass. Matching runs in parallel but joins
// before synthesis; a cancelled context aborts between stages, so no partial
// document ever escapes.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	segs := in.Transcript.Segments

	matcher := match.New(u.d.Index, in.Match, u.d.Log)
	candidates, report := matcher.MatchAll(ctx, segs)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	placements, err := timeline.Synthesize(segs, candidates, in.Timeline)
	if err != nil {
		return Result{}, err
	}
	placements = effects.Schedule(placements, segs, in.Effects)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	total := placements[len(placements)-1].End
	doc := document.New(in.SessionID, placements, total)

	u.d.Log.Info("synthesis pass complete",
		"session", in.SessionID,
		"segments", len(segs),
		"placements", len(placements),
		"fallback_segments", FallbackSegments(segs, placements),
		"lookup_failures", report.Failed,
	)
	return Result{Document: doc, Report: report}, nil
}

// FallbackSegments counts transcript segments whose span is covered by the
// dark background, for the post-pass summary.
func FallbackSegments(segs []types.TranscriptSegment, placements []types.ClipPlacement) int {
	n := 0
	for _, s := range segs {
		for _, p := range placements {
			if p.Asset.IsBackground() && s.Start >= p.Start-1e-6 && s.End <= p.End+1e-6 {
				n++
				break
			}
		}
	}
	return n
}
