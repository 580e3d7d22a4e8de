package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/montagehq/montage/internal/config"
	"github.com/montagehq/montage/internal/domain/effects"
	"github.com/montagehq/montage/internal/domain/match"
	"github.com/montagehq/montage/internal/domain/timeline"
	"github.com/montagehq/montage/internal/ports"
	"github.com/montagehq/montage/internal/ports/adapters/pexels"
	"github.com/montagehq/montage/internal/ports/adapters/sqlitestore"
	"github.com/montagehq/montage/internal/types"
	"github.com/montagehq/montage/internal/usecase"
)

type Config struct {
	TranscriptPath string
	OutPath        string

	// StorePath enables snapshot persistence when set.
	StorePath string

	// SessionID defaults to a fresh UUID per run.
	SessionID string

	PexelsAPIKey  string
	PexelsBaseURL string

	Engine config.Config
	Logger *slog.Logger
}

func (c Config) Validate() error {
	if c.TranscriptPath == "" {
		return errors.New("transcript path is empty")
	}
	if _, err := os.Stat(c.TranscriptPath); err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	if c.PexelsAPIKey == "" {
		return errors.New("pexels api key is required")
	}
	return c.Engine.Validate()
}

// Run wires the adapters, executes one synthesis pass, writes the resolved
// timeline snapshot to OutPath, and persists it when a store is configured.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	tr, err := loadTranscript(cfg.TranscriptPath)
	if err != nil {
		return err
	}
	log.Info("transcript loaded", "segments", len(tr.Segments), "duration", tr.Duration)

	index := pexels.New(cfg.PexelsAPIKey, cfg.PexelsBaseURL)
	uc := usecase.New(usecase.Deps{Index: index, Log: log})

	res, err := uc.Run(ctx, usecase.Input{
		SessionID:  sessionID,
		Transcript: tr,
		Match: match.Options{
			TopK:          cfg.Engine.Match.TopK,
			LookupTimeout: time.Duration(cfg.Engine.Match.LookupTimeoutSec * float64(time.Second)),
			Workers:       cfg.Engine.Match.Workers,
			Orientation:   cfg.Engine.Provider.Orientation,
			PerPage:       cfg.Engine.Provider.PerPage,
		},
		Timeline: timeline.Options{
			NoRepeatWindow: cfg.Engine.Timeline.NoRepeatWindow,
			MinClipSec:     cfg.Engine.Timeline.MinClipSec,
		},
		Effects: effects.Options{
			ZoomThreshold: cfg.Engine.Effects.ZoomThreshold,
			ZoomPeakScale: cfg.Engine.Effects.ZoomPeakScale,
			DissolveSec:   cfg.Engine.Effects.DissolveSec,
		},
	})
	if err != nil {
		return err
	}

	snap := res.Document.Snapshot(time.Now().UTC())

	if cfg.StorePath != "" {
		store, err := sqlitestore.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(ctx, snap); err != nil {
			return err
		}
		log.Info("snapshot persisted", "store", cfg.StorePath, "session", sessionID)
	}

	if cfg.OutPath != "" {
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal timeline: %w", err)
		}
		if err := os.WriteFile(cfg.OutPath, b, 0o644); err != nil {
			return err
		}
		log.Info("timeline written", "path", cfg.OutPath, "placements", len(snap.Placements))
	}
	return nil
}

// loadTranscript reads the transcription collaborator's JSON output and
// normalizes it: missing segment IDs get positional ones, missing total
// duration falls back to the last segment's end.
func loadTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	var tr types.Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("parse transcript: %w", err)
	}
	for i := range tr.Segments {
		if tr.Segments[i].ID == "" {
			tr.Segments[i].ID = fmt.Sprintf("seg-%03d", i)
		}
	}
	if tr.Duration == 0 && len(tr.Segments) > 0 {
		tr.Duration = tr.Segments[len(tr.Segments)-1].End
	}
	return tr, nil
}

// ensure adapters implement ports
var _ ports.CandidateIndex = (*pexels.Adapter)(nil)
var _ ports.SnapshotStore = (*sqlitestore.Store)(nil)
