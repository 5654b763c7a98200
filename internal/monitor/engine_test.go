package monitor

import (
	"context"
	"math"
	"testing"
	"time"

	"hubwatch/internal/config"
	"hubwatch/internal/storage"
)

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		SampleIntervalSeconds: 600,
		InactiveAfterMinutes:  60,
		RetentionDays:         7,
		HalfLifeHours:         72,
		TargetHoursPerDay:     8,
	}
}

func newTestEngine(t *testing.T, cfg config.MonitorConfig) *Engine {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	engine, err := NewEngine(cfg, store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestWeightHalfLife(t *testing.T) {
	engine := newTestEngine(t, testConfig())

	if got := engine.weight(0); got != 1.0 {
		t.Fatalf("weight(0) = %v, want 1.0", got)
	}
	if got := engine.weight(72); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("weight(half-life) = %v, want 0.5", got)
	}
	prev := engine.weight(0)
	for _, age := range []float64{1, 12, 36, 72, 100, 168} {
		w := engine.weight(age)
		if w >= prev {
			t.Fatalf("weight not strictly decreasing at age %v: %v >= %v", age, w, prev)
		}
		prev = w
	}
}

func TestRecordIdempotent(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := engine.Record(ctx, "alice", now, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := engine.Record(ctx, "alice", now, false); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}

	result, err := engine.Score(ctx, "alice", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.SampleCount != 1 {
		t.Fatalf("expected 1 sample after duplicate record, got %d", result.SampleCount)
	}
	// Last write wins: second record flipped the sample to inactive.
	if result.RawScore != 0 {
		t.Fatalf("expected raw score 0 after overwrite, got %v", result.RawScore)
	}
}

func TestZeroSampleScore(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := engine.Score(context.Background(), "unknown_user", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.SampleCount != 0 || result.RawScore != 0 || result.NormalizedScore != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if result.HasSufficientData {
		t.Fatal("expected has_sufficient_data=false for unknown user")
	}
	if result.LastActivity != nil {
		t.Fatalf("expected nil last activity, got %v", result.LastActivity)
	}
}

func TestSufficientDataGate(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 143 samples at the configured 600s cadence is just under 24h of data.
	for i := 1; i <= 143; i++ {
		ts := now.Add(-time.Duration(i) * 600 * time.Second)
		if err := engine.Record(ctx, "bob", ts, true); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	result, err := engine.Score(ctx, "bob", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.SampleCount != 143 {
		t.Fatalf("expected 143 samples, got %d", result.SampleCount)
	}
	if result.HasSufficientData {
		t.Fatal("expected has_sufficient_data=false at 143 samples")
	}

	if err := engine.Record(ctx, "bob", now.Add(-144*600*time.Second), true); err != nil {
		t.Fatalf("record 144: %v", err)
	}
	result, err = engine.Score(ctx, "bob", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !result.HasSufficientData {
		t.Fatal("expected has_sufficient_data=true at 144 samples")
	}
}

func TestPrune(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	if err := engine.Record(ctx, "carol", now.Add(-time.Hour), true); err != nil {
		t.Fatalf("record recent: %v", err)
	}
	if err := engine.Record(ctx, "carol", now.AddDate(0, 0, -10), true); err != nil {
		t.Fatalf("record stale: %v", err)
	}

	pruned, err := engine.Prune(ctx, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned sample, got %d", pruned)
	}

	status, err := engine.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TotalSamples != 1 {
		t.Fatalf("expected 1 remaining sample, got %d", status.TotalSamples)
	}

	// Repeat pruning is a no-op.
	pruned, err = engine.Prune(ctx, now)
	if err != nil {
		t.Fatalf("prune again: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("expected no-op prune, got %d", pruned)
	}
}

func TestNormalizationBoundary(t *testing.T) {
	record := func(t *testing.T, engine *Engine, now time.Time) {
		t.Helper()
		ctx := context.Background()
		for i := 0; i < 12; i++ {
			ts := now.Add(-time.Duration(i) * 600 * time.Second)
			if err := engine.Record(ctx, "dora", ts, true); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fullDay := testConfig()
	fullDay.TargetHoursPerDay = 24
	engine := newTestEngine(t, fullDay)
	record(t, engine, now)
	result, err := engine.Score(context.Background(), "dora", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if math.Abs(result.NormalizedScore-result.RawScore) > 1e-9 {
		t.Fatalf("target 24h should not amplify: raw %v normalized %v", result.RawScore, result.NormalizedScore)
	}

	engine = newTestEngine(t, testConfig())
	record(t, engine, now)
	result, err = engine.Score(context.Background(), "dora", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if math.Abs(result.NormalizedScore-result.RawScore*3) > 1e-9 {
		t.Fatalf("target 8h should triple: raw %v normalized %v", result.RawScore, result.NormalizedScore)
	}
	// A fully active user against an 8h target legitimately exceeds 100.
	if result.NormalizedScore <= 100 {
		t.Fatalf("expected overtime score above 100, got %v", result.NormalizedScore)
	}
}

// Three days of an 8h-on/16h-off pattern at a 10-minute cadence, scored right
// after the third session ends. Pinned against a reference computation of the
// decay formula: decay pulls the score well below the all-active single
// session peak (normalized 300), while the 72h half-life keeps it above 40%
// of that peak.
func TestThreeDayScenario(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 3; day++ {
		base := start.AddDate(0, 0, day)
		for m := 0; m < 480; m += 10 {
			ts := base.Add(time.Duration(m) * time.Minute)
			if err := engine.Record(ctx, "erin", ts, true); err != nil {
				t.Fatalf("record active: %v", err)
			}
		}
		if day < 2 {
			for m := 480; m < 1440; m += 10 {
				ts := base.Add(time.Duration(m) * time.Minute)
				if err := engine.Record(ctx, "erin", ts, false); err != nil {
					t.Fatalf("record inactive: %v", err)
				}
			}
		}
	}

	now := start.Add(56 * time.Hour)
	result, err := engine.Score(ctx, "erin", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.SampleCount != 336 {
		t.Fatalf("expected 336 samples, got %d", result.SampleCount)
	}
	if math.Abs(result.RawScore-43.10997773144254) > 1e-6 {
		t.Fatalf("raw score = %v, want 43.10997773144254", result.RawScore)
	}
	if math.Abs(result.NormalizedScore-129.32993319432762) > 1e-6 {
		t.Fatalf("normalized score = %v, want 129.32993319432762", result.NormalizedScore)
	}
	if result.NormalizedScore >= 300 {
		t.Fatalf("expected decay below the single-session peak of 300, got %v", result.NormalizedScore)
	}
	if result.NormalizedScore <= 120 {
		t.Fatalf("expected the 72h half-life to hold above 40%% of peak, got %v", result.NormalizedScore)
	}
}

func TestLastActivity(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	oldActive := now.Add(-3 * time.Hour)
	newActive := now.Add(-time.Hour)
	if err := engine.Record(ctx, "frank", oldActive, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := engine.Record(ctx, "frank", newActive, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := engine.Record(ctx, "frank", now.Add(-10*time.Minute), false); err != nil {
		t.Fatalf("record: %v", err)
	}

	result, err := engine.Score(ctx, "frank", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.LastActivity == nil || !result.LastActivity.Equal(newActive) {
		t.Fatalf("expected last activity %v, got %v", newActive, result.LastActivity)
	}
}

func TestResetAll(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, username := range []string{"alice", "bob"} {
		if err := engine.Record(ctx, username, now, true); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	deleted, err := engine.ResetAll(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted samples, got %d", deleted)
	}

	for _, username := range []string{"alice", "bob"} {
		result, err := engine.Score(ctx, username, now)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if result.SampleCount != 0 {
			t.Fatalf("expected 0 samples for %s after reset, got %d", username, result.SampleCount)
		}
	}
}

func TestScoreAll(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := engine.Record(ctx, "alice", now.Add(-10*time.Minute), true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := engine.Record(ctx, "bob", now.Add(-10*time.Minute), false); err != nil {
		t.Fatalf("record: %v", err)
	}

	results, err := engine.ScoreAll(ctx, now)
	if err != nil {
		t.Fatalf("score all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	byUser := make(map[string]ScoreResult)
	for _, result := range results {
		byUser[result.Username] = result
	}
	if byUser["alice"].RawScore != 100 {
		t.Fatalf("expected alice raw 100, got %v", byUser["alice"].RawScore)
	}
	if byUser["bob"].RawScore != 0 {
		t.Fatalf("expected bob raw 0, got %v", byUser["bob"].RawScore)
	}
}

func TestRenameAndDeleteUser(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := engine.Record(ctx, "old", now, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := engine.RenameUser(ctx, "old", "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	result, err := engine.Score(ctx, "new", now)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.SampleCount != 1 {
		t.Fatalf("expected renamed user to keep 1 sample, got %d", result.SampleCount)
	}
	result, err = engine.Score(ctx, "old", now)
	if err != nil {
		t.Fatalf("score old: %v", err)
	}
	if result.SampleCount != 0 {
		t.Fatalf("expected old user emptied, got %d samples", result.SampleCount)
	}

	if _, err := engine.DeleteUser(ctx, "new"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	result, err = engine.Score(ctx, "new", now)
	if err != nil {
		t.Fatalf("score deleted: %v", err)
	}
	if result.SampleCount != 0 {
		t.Fatalf("expected deleted user emptied, got %d samples", result.SampleCount)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	bad := testConfig()
	bad.HalfLifeHours = 0
	if _, err := NewEngine(bad, store); err == nil {
		t.Fatal("expected error for half_life_hours=0")
	}

	bad = testConfig()
	bad.TargetHoursPerDay = 0
	if _, err := NewEngine(bad, store); err == nil {
		t.Fatal("expected error for target_hours_per_day=0")
	}

	bad = testConfig()
	bad.SampleIntervalSeconds = 0
	if _, err := NewEngine(bad, store); err == nil {
		t.Fatal("expected error for sample_interval_seconds=0")
	}
}

func TestLevelBuckets(t *testing.T) {
	cases := []struct {
		raw   float64
		count int
		level string
	}{
		{0, 0, "none"},
		{0, 10, "none"},
		{5, 10, "very-low"},
		{25, 10, "low"},
		{45, 10, "normal"},
		{65, 10, "high"},
		{85, 10, "very-high"},
	}
	for _, tc := range cases {
		result := ScoreResult{RawScore: tc.raw, SampleCount: tc.count}
		if got := result.Level(); got != tc.level {
			t.Fatalf("Level(raw=%v, count=%d) = %q, want %q", tc.raw, tc.count, got, tc.level)
		}
	}
}
