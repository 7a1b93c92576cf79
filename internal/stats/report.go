package stats

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/verte-zerg/vstask/internal/model"
)

const barChar = "█"

// ReportConfig controls what BuildReport loads.
type ReportConfig struct {
	// Recent is the number of latest finished games to list.
	Recent int
	// Window is used when the summary has to be computed on the fly.
	Window int
	// Live ignores the persisted summary and always computes one.
	Live bool
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Summary model.Summary
	// Stored is false when no persisted summary existed and Summary was computed live.
	Stored bool
	Recent []model.GameRecord
}

// BuildReport loads the persisted summary and the latest finished games.
func BuildReport(ctx context.Context, src Source, cfg ReportConfig) (Report, error) {
	records, err := src.List(ctx)
	if err != nil {
		return Report{}, err
	}
	var stored *model.Summary
	if !cfg.Live {
		stored, err = src.LoadSummary(ctx)
		if err != nil {
			return Report{}, err
		}
	}

	report := Report{Recent: lastFinished(records, cfg.Recent)}
	if stored != nil {
		report.Summary = *stored
		report.Stored = true
	} else {
		report.Summary = Compute(records, time.Now(), cfg.Window)
	}
	return report, nil
}

func lastFinished(records []model.GameRecord, n int) []model.GameRecord {
	if n <= 0 {
		return nil
	}
	out := make([]model.GameRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		if records[i].Finalized() {
			out = append(out, records[i])
		}
	}
	return out
}

// RenderSummary prints the headline numbers.
func RenderSummary(w io.Writer, sum model.Summary) error {
	if sum.TotalGames == 0 {
		_, err := fmt.Fprintln(w, "No finished games found.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Games: %d", sum.TotalGames),
		fmt.Sprintf("Success rate: %.2f%%", sum.SuccessRate),
		fmt.Sprintf("Avg duration: %s", formatSeconds(sum.AverageDuration)),
		fmt.Sprintf("Trend: %s", Sparkline(sum.LearningCurve.Rates)),
		fmt.Sprintf("Last updated: %s", sum.LastUpdated.Format(time.RFC3339)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderDistribution prints the score histogram as a table with bars.
func RenderDistribution(w io.Writer, hist model.Histogram) error {
	if _, err := fmt.Fprintln(w, "Score Distribution"); err != nil {
		return err
	}
	for _, line := range DistributionLines(hist, 30) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// DistributionLines formats the histogram rows, scaling bars to barWidth.
func DistributionLines(hist model.Histogram, barWidth int) []string {
	maxCount := 0
	for _, c := range hist.Counts {
		if c > maxCount {
			maxCount = c
		}
	}
	headers := []string{"Score", "Games", ""}
	rows := make([][]string, 0, len(hist.Counts))
	for i, c := range hist.Counts {
		if i+1 >= len(hist.Bins) {
			break
		}
		closing := ")"
		if i == len(hist.Counts)-1 {
			closing = "]"
		}
		bar := ""
		if maxCount > 0 && barWidth > 0 {
			bar = strings.Repeat(barChar, c*barWidth/maxCount)
		}
		rows = append(rows, []string{
			fmt.Sprintf("[%.0f, %.0f%s", hist.Bins[i], hist.Bins[i+1], closing),
			fmt.Sprintf("%d", c),
			bar,
		})
	}
	return formatTable(headers, rows, 1)
}

// RenderRecent prints the latest finished games.
func RenderRecent(w io.Writer, records []model.GameRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Recent Games"); err != nil {
		return err
	}
	for _, line := range RecentLines(records) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RecentLines formats one table row per game.
func RecentLines(records []model.GameRecord) []string {
	headers, rows := RecentRows(records)
	return formatTable(headers, rows, 1, 4, 5)
}

// RecentRows returns the column headers and cell values for the recent games table.
func RecentRows(records []model.GameRecord) ([]string, [][]string) {
	headers := []string{"Started", "Choices", "Chosen", "Biased", "Score", "Duration"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		chosen, biased, score := "-", "-", "-"
		if fc := rec.FinalChoice; fc != nil {
			chosen = quadrantLabel(fc.ChosenQuadrant)
			biased = quadrantLabel(fc.BiasedQuadrant)
			score = fmt.Sprintf("%+d", fc.Score)
		}
		duration := "-"
		if rec.TotalDuration != nil {
			duration = formatSeconds(*rec.TotalDuration)
		}
		rows = append(rows, []string{
			rec.StartTime.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", len(rec.Choices)),
			chosen,
			biased,
			score,
			duration,
		})
	}
	return headers, rows
}

// trendWindow is the number of curve points averaged into the trend line.
const trendWindow = 3

// RenderCurve plots the learning curve on a 0-100 axis.
func RenderCurve(w io.Writer, curve model.LearningCurve, totalWidth, height int, useColor bool) error {
	if len(curve.Rates) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	title := fmt.Sprintf("Learning Curve (%d games per point)", curve.WindowSize)
	series := []Series{{Name: "Success rate", Values: curve.Rates}}
	if len(curve.Rates) > trendWindow {
		series = append(series, Series{Name: "Trend", Values: MovingAverage(curve.Rates, trendWindow)})
	}
	return PlotSeries(w, title, series, PercentAxis, width, height, useColor)
}

func quadrantLabel(q int) string {
	if q < 0 {
		return "invalid"
	}
	return fmt.Sprintf("Q%d", q+1)
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(100 * time.Millisecond).String()
}
