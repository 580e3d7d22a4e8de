// Package match turns transcript segments into scored footage candidates by
// querying the external candidate index. Lookups for a pass run in parallel
// but are always joined before synthesis starts.
package match

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/montagehq/montage/internal/ports"
	"github.com/montagehq/montage/internal/types"
)

type Options struct {
	// TopK bounds how many candidates a segment keeps.
	TopK int

	// LookupTimeout bounds a single index query. A timeout yields an empty
	// candidate list for that segment, never a whole-pass failure.
	LookupTimeout time.Duration

	// Workers bounds concurrent lookups in MatchAll.
	Workers int

	Orientation string
	PerPage     int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 5 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Orientation == "" {
		o.Orientation = "landscape"
	}
	if o.PerPage <= 0 {
		o.PerPage = o.TopK
	}
	return o
}

type Matcher struct {
	index ports.CandidateIndex
	opts  Options
	log   *slog.Logger

	mu       sync.Mutex
	cache    map[string][]types.FootageCandidate
	inflight map[string]chan struct{}
}

func New(index ports.CandidateIndex, opts Options, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{
		index:    index,
		opts:     opts.withDefaults(),
		log:      log,
		cache:    make(map[string][]types.FootageCandidate),
		inflight: make(map[string]chan struct{}),
	}
}

// Match returns candidates for one segment, ordered by descending relevance
// and bounded by TopK. Successful lookups are cached by normalized segment
// text for the session, so repeated phrases reuse prior results.
func (m *Matcher) Match(ctx context.Context, seg types.TranscriptSegment) ([]types.FootageCandidate, error) {
	key := normalize(seg.Text)

	// Identical phrases racing through MatchAll share one provider query:
	// the first caller does the lookup, the rest wait on its result.
	for {
		m.mu.Lock()
		if cached, ok := m.cache[key]; ok {
			m.mu.Unlock()
			return cached, nil
		}
		done, ok := m.inflight[key]
		if !ok {
			m.inflight[key] = make(chan struct{})
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, classify(ctx.Err(), ctx)
		}
	}

	qctx, cancel := context.WithTimeout(ctx, m.opts.LookupTimeout)
	defer cancel()

	cands, err := m.index.Query(qctx, SearchQuery(seg.Text), ports.QueryConstraints{
		MinDuration: seg.Duration(),
		Orientation: m.opts.Orientation,
		PerPage:     m.opts.PerPage,
	})

	m.mu.Lock()
	if err == nil {
		cands = rank(cands, m.opts.TopK)
		m.cache[key] = cands
	}
	done := m.inflight[key]
	delete(m.inflight, key)
	m.mu.Unlock()
	close(done)

	if err != nil {
		return nil, classify(err, qctx)
	}
	return cands, nil
}

// Report summarizes a MatchAll pass: how many segments resolved with no
// usable candidates and why.
type Report struct {
	Segments int
	Failed   int
	ByKind   map[ports.LookupErrorKind]int
}

// MatchAll resolves every segment, running up to Workers lookups in
// parallel, and returns only after all of them finished or definitively
// failed. A failed segment appears in the result with a nil candidate list.
func (m *Matcher) MatchAll(ctx context.Context, segments []types.TranscriptSegment) (map[string][]types.FootageCandidate, Report) {
	results := make(map[string][]types.FootageCandidate, len(segments))
	report := Report{Segments: len(segments), ByKind: make(map[ports.LookupErrorKind]int)}

	type outcome struct {
		id    string
		cands []types.FootageCandidate
		err   error
	}

	jobs := make(chan types.TranscriptSegment)
	outcomes := make(chan outcome)

	workers := m.opts.Workers
	if workers > len(segments) {
		workers = len(segments)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				cands, err := m.Match(ctx, seg)
				outcomes <- outcome{id: seg.ID, cands: cands, err: err}
			}
		}()
	}
	go func() {
		for _, seg := range segments {
			jobs <- seg
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			report.Failed++
			var lerr *ports.LookupError
			if errors.As(o.err, &lerr) {
				report.ByKind[lerr.Kind]++
			}
			m.log.Warn("candidate lookup failed, segment will use fallback",
				"segment", o.id, "err", o.err)
			results[o.id] = nil
			continue
		}
		results[o.id] = o.cands
	}
	return results, report
}

func classify(err error, ctx context.Context) error {
	var lerr *ports.LookupError
	if errors.As(err, &lerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ports.LookupError{Kind: ports.LookupTimeout, Err: err}
	}
	return &ports.LookupError{Kind: ports.ProviderUnavailable, Err: err}
}

// rank clamps scores into [0,1], orders by descending score with asset ID as
// the stable tie-break, and trims to topK.
func rank(cands []types.FootageCandidate, topK int) []types.FootageCandidate {
	out := append([]types.FootageCandidate(nil), cands...)
	for i := range out {
		if out[i].Score < 0 {
			out[i].Score = 0
		}
		if out[i].Score > 1 {
			out[i].Score = 1
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Asset.ID < out[j].Asset.ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// normalize collapses a segment's text into a cache key so near-duplicate
// phrasings share one lookup.
func normalize(text string) string {
	var b strings.Builder
	prevSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
