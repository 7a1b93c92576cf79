package stats

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verte-zerg/vstask/internal/model"
)

func finished(start time.Time, success bool, duration float64) model.GameRecord {
	done := start.Add(time.Duration(duration * float64(time.Second)))
	score := -100
	if success {
		score = 100
	}
	return model.GameRecord{
		StartTime:      start,
		Choices:        []model.Choice{},
		FinalChoice:    &model.FinalChoice{Score: score, Correct: success},
		CompletionTime: &done,
		TotalDuration:  &duration,
		Success:        &success,
	}
}

func TestComputeEmpty(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sum := Compute(nil, now, 0)
	if sum.TotalGames != 0 || sum.SuccessRate != 0 || sum.AverageDuration != 0 {
		t.Fatalf("expected zero summary, got %+v", sum)
	}
	if len(sum.PerformanceDistribution.Counts) != 4 {
		t.Fatalf("expected 4 bins, got %v", sum.PerformanceDistribution.Counts)
	}
	if len(sum.LearningCurve.Rates) != 0 || sum.LearningCurve.WindowSize != DefaultWindow {
		t.Fatalf("unexpected learning curve: %+v", sum.LearningCurve)
	}
	if !sum.LastUpdated.Equal(now) {
		t.Fatalf("unexpected last updated: %v", sum.LastUpdated)
	}
}

func TestComputeSuccessRateSixtyPercent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]model.GameRecord, 0, 100)
	for i := 0; i < 100; i++ {
		records = append(records, finished(base.Add(time.Duration(i)*time.Second), i < 60, 10))
	}
	sum := Compute(records, base, DefaultWindow)
	if sum.TotalGames != 100 {
		t.Fatalf("expected 100 games, got %d", sum.TotalGames)
	}
	if sum.SuccessRate != 60.0 {
		t.Fatalf("expected 60.0, got %v", sum.SuccessRate)
	}
	if sum.AverageDuration != 10 {
		t.Fatalf("expected average 10, got %v", sum.AverageDuration)
	}
	want := []float64{100, 20}
	if len(sum.LearningCurve.Rates) != 2 || sum.LearningCurve.Rates[0] != want[0] || sum.LearningCurve.Rates[1] != want[1] {
		t.Fatalf("expected curve %v, got %v", want, sum.LearningCurve.Rates)
	}
	counts := sum.PerformanceDistribution.Counts
	if counts[0] != 40 || counts[3] != 60 {
		t.Fatalf("unexpected histogram counts: %v", counts)
	}
}

func TestComputeIgnoresUnfinishedGames(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.GameRecord{
		finished(base, true, 4),
		{StartTime: base.Add(time.Minute), Choices: []model.Choice{{CueName: "A"}}},
		finished(base.Add(2*time.Minute), false, 8),
	}
	sum := Compute(records, base, DefaultWindow)
	if sum.TotalGames != 2 || sum.SuccessRate != 50 || sum.AverageDuration != 6 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.GameRecord{
		finished(base.Add(time.Minute), true, 4),
		finished(base, false, 8),
		finished(base.Add(2*time.Minute), true, 1.5),
	}
	first := Compute(records, base, 2)
	second := Compute(records, base.Add(time.Hour), 2)
	second.LastUpdated = first.LastUpdated
	if first.TotalGames != second.TotalGames || first.SuccessRate != second.SuccessRate ||
		first.AverageDuration != second.AverageDuration {
		t.Fatalf("summaries differ: %+v vs %+v", first, second)
	}
	for i := range first.LearningCurve.Rates {
		if first.LearningCurve.Rates[i] != second.LearningCurve.Rates[i] {
			t.Fatalf("curves differ: %v vs %v", first.LearningCurve.Rates, second.LearningCurve.Rates)
		}
	}
}

func TestHistogramEdges(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   []int
	}{
		{name: "lower edge inclusive", values: []float64{-100}, want: []int{1, 0, 0, 0}},
		{name: "inner edge opens next bin", values: []float64{-50, 0, 50}, want: []int{0, 1, 1, 1}},
		{name: "upper edge closed", values: []float64{100}, want: []int{0, 0, 0, 1}},
		{name: "out of range dropped", values: []float64{-101, 101, math.NaN()}, want: []int{0, 0, 0, 0}},
		{name: "interior", values: []float64{-75, -1, 1, 99}, want: []int{1, 1, 1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Histogram(tc.values, ScoreBins)
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestLearningCurveSortsByStartAndKeepsPartialWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.GameRecord{
		finished(base.Add(3*time.Minute), false, 1),
		finished(base, true, 1),
		finished(base.Add(2*time.Minute), false, 1),
		finished(base.Add(time.Minute), true, 1),
		finished(base.Add(4*time.Minute), true, 1),
	}
	curve := LearningCurve(records, 2)
	want := []float64{100, 0, 100}
	if curve.WindowSize != 2 || len(curve.Rates) != len(want) {
		t.Fatalf("unexpected curve: %+v", curve)
	}
	for i := range want {
		if curve.Rates[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, curve.Rates)
		}
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{0, 100, 100, 0}, 2)
	want := []float64{0, 50, 100, 50}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

type memorySource struct {
	mu       sync.Mutex
	records  []model.GameRecord
	summary  *model.Summary
	listErr  error
	lists    atomic.Int32
	gate     chan struct{}
	entered  chan struct{}
	honorCtx bool // List fails once its context is done
}

func (s *memorySource) List(ctx context.Context) ([]model.GameRecord, error) {
	s.lists.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.honorCtx {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.GameRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memorySource) SaveSummary(_ context.Context, sum model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &sum
	return nil
}

func (s *memorySource) LoadSummary(context.Context) (*model.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, nil
}

func (s *memorySource) add(rec model.GameRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func TestAggregatorRefreshPersists(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{}
	src.add(finished(base, true, 2))
	var observed int
	agg := NewAggregator(src,
		WithAggregatorClock(func() time.Time { return base }),
		WithRefreshObserver(func(time.Duration, error) { observed++ }),
	)

	current, err := agg.Current(context.Background())
	if err != nil || current != nil {
		t.Fatalf("expected no summary yet, got %+v, %v", current, err)
	}
	sum, err := agg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sum.TotalGames != 1 || sum.SuccessRate != 100 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	current, err = agg.Current(context.Background())
	if err != nil || current == nil || current.TotalGames != 1 {
		t.Fatalf("expected persisted summary, got %+v, %v", current, err)
	}
	if observed != 1 {
		t.Fatalf("expected one observed refresh, got %d", observed)
	}
}

func TestAggregatorListFailureKeepsPreviousSummary(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{}
	src.add(finished(base, true, 2))
	agg := NewAggregator(src)
	if _, err := agg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	boom := errors.New("disk gone")
	src.mu.Lock()
	src.listErr = boom
	src.mu.Unlock()
	src.add(finished(base.Add(time.Minute), false, 2))

	if _, err := agg.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
	current, err := agg.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.TotalGames != 1 || current.SuccessRate != 100 {
		t.Fatalf("previous summary should be kept, got %+v", current)
	}
}

func TestAggregatorLateRequestSeesNewRecord(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	src.add(finished(base, true, 2))
	agg := NewAggregator(src)

	first := make(chan model.Summary, 1)
	go func() {
		sum, _ := agg.Refresh(context.Background())
		first <- sum
	}()
	<-src.entered

	// A game finishes while the first scan is in flight.
	src.add(finished(base.Add(time.Minute), false, 2))
	second := make(chan model.Summary, 1)
	go func() {
		sum, _ := agg.Refresh(context.Background())
		second <- sum
	}()

	close(src.gate)
	if got := (<-first).TotalGames; got < 1 {
		t.Fatalf("first refresh returned %d games", got)
	}
	if got := (<-second).TotalGames; got != 2 {
		t.Fatalf("late refresh must include the new game, got %d", got)
	}
	current, _ := agg.Current(context.Background())
	if current.TotalGames != 2 {
		t.Fatalf("persisted summary should include both games, got %d", current.TotalGames)
	}
}

func TestAggregatorScanSurvivesCallerCancel(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
		honorCtx: true,
	}
	src.add(finished(base, true, 2))
	agg := NewAggregator(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(ctx)
		done <- err
	}()
	<-src.entered
	cancel()
	close(src.gate)

	if err := <-done; err != nil {
		t.Fatalf("shared scan failed after caller cancel: %v", err)
	}
	current, err := agg.Current(context.Background())
	if err != nil || current == nil || current.TotalGames != 1 {
		t.Fatalf("expected persisted summary, got %+v, %v", current, err)
	}
}
