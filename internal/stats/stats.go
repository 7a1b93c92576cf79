// Package stats contains statistics calculations and reporting.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/vstask/internal/model"
)

const sparkChars = " .:-=+*#%@"

// DefaultWindow is the number of games per learning-curve point.
const DefaultWindow = 50

// ScoreBins are the fixed performance histogram edges.
var ScoreBins = []float64{-100, -50, 0, 50, 100}

// Compute derives the summary from the full record corpus. Unfinished games are ignored.
func Compute(records []model.GameRecord, now time.Time, window int) model.Summary {
	if window <= 0 {
		window = DefaultWindow
	}
	finished := make([]model.GameRecord, 0, len(records))
	for _, rec := range records {
		if rec.Finalized() {
			finished = append(finished, rec)
		}
	}

	scores := make([]float64, len(finished))
	for i, rec := range finished {
		if rec.FinalChoice != nil {
			scores[i] = float64(rec.FinalChoice.Score)
		}
	}
	bins := make([]float64, len(ScoreBins))
	copy(bins, ScoreBins)

	return model.Summary{
		TotalGames:      len(finished),
		SuccessRate:     SuccessRate(finished),
		AverageDuration: AverageDuration(finished),
		PerformanceDistribution: model.Histogram{
			Bins:   bins,
			Counts: Histogram(scores, bins),
		},
		LearningCurve: LearningCurve(finished, window),
		LastUpdated:   now.UTC(),
	}
}

// SuccessRate returns the percentage of successful games, 0 for none.
func SuccessRate(records []model.GameRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	successes := 0
	for _, rec := range records {
		if rec.Success != nil && *rec.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(records)) * 100
}

// AverageDuration returns the mean total duration in seconds, 0 for none.
func AverageDuration(records []model.GameRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range records {
		if rec.TotalDuration != nil {
			sum += *rec.TotalDuration
		}
	}
	return sum / float64(len(records))
}

// Histogram counts values per bin. Bins are half-open [lo, hi) except the
// last, which is closed. Values outside the edges are dropped.
func Histogram(values, edges []float64) []int {
	if len(edges) < 2 {
		return []int{}
	}
	counts := make([]int, len(edges)-1)
	first, last := edges[0], edges[len(edges)-1]
	for _, v := range values {
		if math.IsNaN(v) || v < first || v > last {
			continue
		}
		if v == last {
			counts[len(counts)-1]++
			continue
		}
		idx := sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
		counts[idx]++
	}
	return counts
}

// LearningCurve orders games by start time and reports the success rate of
// each consecutive window. A trailing partial window is included.
func LearningCurve(records []model.GameRecord, window int) model.LearningCurve {
	if window <= 0 {
		window = DefaultWindow
	}
	sorted := make([]model.GameRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	rates := make([]float64, 0, (len(sorted)+window-1)/window)
	for start := 0; start < len(sorted); start += window {
		end := start + window
		if end > len(sorted) {
			end = len(sorted)
		}
		rates = append(rates, SuccessRate(sorted[start:end]))
	}
	return model.LearningCurve{WindowSize: window, Rates: rates}
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
