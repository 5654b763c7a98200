// Package monitor computes decay-weighted activity scores from stored samples.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"hubwatch/internal/config"
	"hubwatch/internal/storage"
)

// Store is the persistence surface the engine needs. *storage.Store satisfies it.
type Store interface {
	UpsertSample(ctx context.Context, sample storage.Sample) error
	SamplesSince(ctx context.Context, username string, since time.Time) ([]storage.Sample, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteUser(ctx context.Context, username string) (int64, error)
	RenameUser(ctx context.Context, oldName, newName string) (int64, error)
	ListUsernames(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (samples int, users int, err error)
}

type Engine struct {
	cfg        config.MonitorConfig
	store      Store
	lambda     float64
	minSamples int
}

// ScoreResult is the outcome of scoring one user at a given instant.
type ScoreResult struct {
	Username string
	// RawScore is the decay-weighted active fraction, 0-100.
	RawScore float64
	// NormalizedScore rescales RawScore against the expected daily target.
	// May exceed 100 for users active beyond the target; never clamped here.
	NormalizedScore float64
	SampleCount     int
	// HasSufficientData is true once at least 24 hours of samples exist
	// at the configured cadence.
	HasSufficientData bool
	// LastActivity is the newest active sample's timestamp, nil if none.
	LastActivity *time.Time
}

type Status struct {
	TotalSamples int
	TotalUsers   int
}

func NewEngine(cfg config.MonitorConfig, store Store) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		lambda:     math.Ln2 / float64(cfg.HalfLifeHours),
		minSamples: (86400 + cfg.SampleIntervalSeconds - 1) / cfg.SampleIntervalSeconds,
	}, nil
}

// Record upserts one sample. Unknown usernames are accepted; they become
// tracked by having samples. Timestamps are truncated to whole seconds so
// re-sampling the same tick hits the same row.
func (e *Engine) Record(ctx context.Context, username string, timestamp time.Time, active bool) error {
	return e.store.UpsertSample(ctx, storage.Sample{
		Username:  username,
		Timestamp: timestamp.Truncate(time.Second),
		Active:    active,
	})
}

// Prune deletes samples older than the retention period. Safe to call
// repeatedly; returns the number of rows removed.
func (e *Engine) Prune(ctx context.Context, now time.Time) (int64, error) {
	return e.store.DeleteBefore(ctx, now.AddDate(0, 0, -e.cfg.RetentionDays))
}

// Score computes the current score for one user. A user with no samples is
// not an error: the result has zero scores and SampleCount 0.
func (e *Engine) Score(ctx context.Context, username string, now time.Time) (ScoreResult, error) {
	cutoff := now.AddDate(0, 0, -e.cfg.RetentionDays)
	samples, err := e.store.SamplesSince(ctx, username, cutoff)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("read samples for %s: %w", username, err)
	}

	result := ScoreResult{Username: username, SampleCount: len(samples)}

	var weightedActive, weightedTotal float64
	for _, sample := range samples {
		w := e.weight(now.Sub(sample.Timestamp).Hours())
		weightedTotal += w
		if sample.Active {
			weightedActive += w
			ts := sample.Timestamp
			if result.LastActivity == nil || ts.After(*result.LastActivity) {
				result.LastActivity = &ts
			}
		}
	}

	if weightedTotal > 0 {
		result.RawScore = weightedActive / weightedTotal * 100
	}
	result.NormalizedScore = result.RawScore * 24 / float64(e.cfg.TargetHoursPerDay)
	result.HasSufficientData = result.SampleCount >= e.minSamples
	return result, nil
}

// ScoreAll scores every user that has samples.
func (e *Engine) ScoreAll(ctx context.Context, now time.Time) ([]ScoreResult, error) {
	usernames, err := e.store.ListUsernames(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ScoreResult, 0, len(usernames))
	for _, username := range usernames {
		result, err := e.Score(ctx, username, now)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ResetAll deletes every sample for every user. Irreversible.
func (e *Engine) ResetAll(ctx context.Context) (int64, error) {
	return e.store.DeleteAll(ctx)
}

func (e *Engine) DeleteUser(ctx context.Context, username string) (int64, error) {
	return e.store.DeleteUser(ctx, username)
}

func (e *Engine) RenameUser(ctx context.Context, oldName, newName string) (int64, error) {
	return e.store.RenameUser(ctx, oldName, newName)
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	samples, users, err := e.store.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{TotalSamples: samples, TotalUsers: users}, nil
}

// weight returns exp(-ln2 * ageHours / halfLife): 1.0 at age zero, 0.5 at
// one half-life.
func (e *Engine) weight(ageHours float64) float64 {
	return math.Exp(-e.lambda * ageHours)
}

// Level buckets a result for status reporting.
func (r ScoreResult) Level() string {
	switch {
	case r.SampleCount == 0 || r.RawScore == 0:
		return "none"
	case r.RawScore >= 80:
		return "very-high"
	case r.RawScore >= 60:
		return "high"
	case r.RawScore >= 40:
		return "normal"
	case r.RawScore >= 20:
		return "low"
	default:
		return "very-low"
	}
}
