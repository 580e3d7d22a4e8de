package document

import "github.com/montagehq/montage/internal/types"

// Feed is the read-only projection of a document handed to the compositor.
// Current returns a deep copy, so a render in progress keeps a consistent
// timeline even while edits land.
type Feed struct {
	doc *Document
}

func (d *Document) Feed() *Feed { return &Feed{doc: d} }

func (f *Feed) Current() (uint64, []types.ClipPlacement) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.doc.version, clonePlacements(f.doc.placements)
}

func (f *Feed) Duration() float64 {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.doc.duration
}

// Changes returns a channel that carries the new version number after every
// commit. The channel is buffered with the latest version only; consumers
// that fall behind skip straight to the newest state via Current.
func (f *Feed) Changes() <-chan uint64 {
	ch := make(chan uint64, 1)
	f.doc.mu.Lock()
	f.doc.watchers = append(f.doc.watchers, ch)
	f.doc.mu.Unlock()
	return ch
}
