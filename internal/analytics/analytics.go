package analytics

import (
	"context"
	"time"

	"hubwatch/internal/monitor"
)

type Service struct {
	engine *monitor.Engine
}

func New(engine *monitor.Engine) *Service {
	return &Service{engine: engine}
}

type Report struct {
	TotalSamples int
	TotalUsers   int
	ByLevel      map[string]int
}

// Report breaks all tracked users down by activity level.
func (s *Service) Report(ctx context.Context, now time.Time) (Report, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return Report{}, err
	}

	results, err := s.engine.ScoreAll(ctx, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		TotalSamples: status.TotalSamples,
		TotalUsers:   status.TotalUsers,
		ByLevel:      make(map[string]int),
	}
	for _, result := range results {
		report.ByLevel[result.Level()]++
	}
	return report, nil
}
