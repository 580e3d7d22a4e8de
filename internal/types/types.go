package types

type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
	Duration float64             `json:"duration"`
	Language string              `json:"language,omitempty"`
}

// TranscriptSegment is produced by the transcription collaborator and never
// mutated afterwards. Times are seconds from the start of the recording.
type TranscriptSegment struct {
	ID       string  `json:"id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Emphasis float64 `json:"emphasis,omitempty"`
}

func (s TranscriptSegment) Duration() float64 { return s.End - s.Start }

type AssetRef struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Background is the sentinel asset used to fill spans with no adequate
// footage match. It has unlimited usable duration and is exempt from the
// repeat rules.
var Background = AssetRef{ID: "dark-background", Provider: "builtin"}

func (a AssetRef) IsBackground() bool { return a == Background }

type FootageCandidate struct {
	Asset      AssetRef `json:"asset"`
	Score      float64  `json:"score"`
	Duration   float64  `json:"duration"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
	Creator    string   `json:"creator,omitempty"`
}

// ClipPlacement covers one contiguous span of transcript time with one asset.
// SourceIn/SourceOut are offsets within the asset; Start/End are timeline
// seconds. In a resolved timeline the spans are disjoint and their union is
// exactly [0, transcript duration).
type ClipPlacement struct {
	Seq       int                 `json:"seq"`
	Asset     AssetRef            `json:"asset"`
	SourceIn  float64             `json:"source_in"`
	SourceOut float64             `json:"source_out"`
	Start     float64             `json:"start"`
	End       float64             `json:"end"`
	Effects   []EffectInstruction `json:"effects,omitempty"`
}

func (p ClipPlacement) Duration() float64 { return p.End - p.Start }

type EffectKind string

const (
	EffectZoomIn        EffectKind = "zoom_in"
	EffectZoomOut       EffectKind = "zoom_out"
	EffectCrossDissolve EffectKind = "cross_dissolve"
	EffectHardCut       EffectKind = "hard_cut"
	EffectDarkOverlay   EffectKind = "dark_overlay"
)

type EffectTrigger string

const (
	TriggerEmphasis     EffectTrigger = "emphasis"
	TriggerClipBoundary EffectTrigger = "clip_boundary"
	TriggerExplicit     EffectTrigger = "explicit"
)

// CurvePoint maps time within the owning clip (normalized 0..1) to a
// parameter value. Curves never span clip boundaries; transitions are paired
// instructions on adjacent clips.
type CurvePoint struct {
	T     float64 `json:"t"`
	Value float64 `json:"value"`
}

type EffectInstruction struct {
	Kind    EffectKind    `json:"kind"`
	Trigger EffectTrigger `json:"trigger"`
	Curve   []CurvePoint  `json:"curve,omitempty"`
}
