// Package pexels adapts the Pexels video search API to the CandidateIndex
// port. Pexels returns results in relevance order without scores, so the
// adapter derives a rank-decayed relevance score; callers treat scoring as
// opaque.
package pexels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/montagehq/montage/internal/ports"
	"github.com/montagehq/montage/internal/types"
)

const (
	defaultBaseURL = "https://api.pexels.com"

	// rankDecay scales the derived relevance score per rank position.
	rankDecay = 0.85
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{key: apiKey, baseURL: baseURL, client: &http.Client{}}
}

type searchResponse struct {
	Videos []videoRaw `json:"videos"`
}

type videoRaw struct {
	ID       uint64 `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration int    `json:"duration"`
	URL      string `json:"url"`
	Image    string `json:"image"`
	User     struct {
		Name string `json:"name"`
	} `json:"user"`
	VideoFiles []videoFile `json:"video_files"`
}

type videoFile struct {
	Link    string `json:"link"`
	Quality string `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func (a *Adapter) Query(ctx context.Context, text string, c ports.QueryConstraints) ([]types.FootageCandidate, error) {
	q := url.Values{}
	q.Set("query", text)
	if c.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(c.PerPage))
	}
	if c.Orientation != "" {
		q.Set("orientation", c.Orientation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/videos/search?"+q.Encode(), nil)
	if err != nil {
		return nil, &ports.LookupError{Kind: ports.ProviderUnavailable, Err: err}
	}
	req.Header.Set("Authorization", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ports.LookupError{Kind: ports.LookupTimeout, Err: err}
		}
		return nil, &ports.LookupError{Kind: ports.ProviderUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		err := fmt.Errorf("pexels status %d: %s", resp.StatusCode, string(body))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &ports.LookupError{Kind: ports.QuotaExceeded, Err: err}
		default:
			return nil, &ports.LookupError{Kind: ports.ProviderUnavailable, Err: err}
		}
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &ports.LookupError{Kind: ports.ProviderUnavailable, Err: fmt.Errorf("decode pexels response: %w", err)}
	}

	score := 1.0
	out := make([]types.FootageCandidate, 0, len(raw.Videos))
	for _, v := range raw.Videos {
		if float64(v.Duration) < c.MinDuration {
			continue
		}
		link := bestFile(v.VideoFiles)
		if link == "" {
			continue
		}
		out = append(out, types.FootageCandidate{
			Asset:      types.AssetRef{ID: strconv.FormatUint(v.ID, 10), Provider: "pexels"},
			Score:      score,
			Duration:   float64(v.Duration),
			Width:      v.Width,
			Height:     v.Height,
			SourceURL:  link,
			PreviewURL: v.Image,
			Creator:    v.User.Name,
		})
		score *= rankDecay
	}
	return out, nil
}

// bestFile picks the largest hd/sd rendition, matching what the preview
// player can actually decode.
func bestFile(files []videoFile) string {
	best := ""
	bestArea := -1
	for _, f := range files {
		if f.Quality != "hd" && f.Quality != "sd" {
			continue
		}
		if area := f.Width * f.Height; area > bestArea {
			best, bestArea = f.Link, area
		}
	}
	return best
}
