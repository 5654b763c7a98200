// Package sampler drives periodic activity snapshots for all tracked users.
package sampler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hubwatch/internal/metrics"
)

// Source supplies the tracked-user roster and each user's most recent
// activity instant (nil when the user has never been active).
type Source interface {
	Usernames(ctx context.Context) ([]string, error)
	LastActivity(ctx context.Context, username string) (*time.Time, error)
}

// Recorder receives one classified sample per user per tick.
type Recorder interface {
	Record(ctx context.Context, username string, timestamp time.Time, active bool) error
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Sampler struct {
	source        Source
	recorder      Recorder
	clock         Clock
	logger        *zap.Logger
	inactiveAfter time.Duration
}

// TickResult summarizes one sampling pass.
type TickResult struct {
	Sampled  int
	Active   int
	Inactive int
	Offline  int
	Failed   int
}

func New(source Source, recorder Recorder, inactiveAfter time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		source:        source,
		recorder:      recorder,
		clock:         realClock{},
		logger:        logger,
		inactiveAfter: inactiveAfter,
	}
}

func (s *Sampler) WithClock(clock Clock) {
	s.clock = clock
}

// Tick records one sample for every tracked user. A roster failure aborts
// the tick; per-user failures are counted and logged but never stop the
// loop, so one unreachable user cannot shadow the rest.
func (s *Sampler) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	now := s.clock.Now().UTC()

	usernames, err := s.source.Usernames(ctx)
	if err != nil {
		return TickResult{}, err
	}

	var result TickResult
	for _, username := range usernames {
		last, err := s.source.LastActivity(ctx, username)
		if err != nil {
			result.Failed++
			metrics.RecordSampleFailed()
			s.logger.Warn("activity lookup failed", zap.String("username", username), zap.Error(err))
			continue
		}

		active := last != nil && now.Sub(*last) <= s.inactiveAfter
		if err := s.recorder.Record(ctx, username, now, active); err != nil {
			result.Failed++
			metrics.RecordSampleFailed()
			s.logger.Warn("sample record failed", zap.String("username", username), zap.Error(err))
			continue
		}

		result.Sampled++
		metrics.RecordSampleRecorded()
		switch {
		case active:
			result.Active++
		case last != nil:
			result.Inactive++
		default:
			result.Offline++
		}
	}

	metrics.SetTrackedUsers(len(usernames))
	metrics.ObserveTickDuration(time.Since(start))
	return result, nil
}
