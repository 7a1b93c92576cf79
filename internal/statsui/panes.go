package statsui

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/vstask/internal/model"
	"github.com/verte-zerg/vstask/internal/stats"
)

const (
	curveHeight = 10
	emptyNotice = "No finished games found."
)

var (
	cardStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

func overview(sum model.Summary, width int) string {
	if sum.TotalGames == 0 {
		return emptyNotice
	}
	cards := []string{
		card("Games", fmt.Sprintf("%d", sum.TotalGames)),
		card("Success", fmt.Sprintf("%.1f%%", sum.SuccessRate)),
		card("Avg Duration", fmt.Sprintf("%.1fs", sum.AverageDuration)),
		card("Trend", stats.Sparkline(sum.LearningCurve.Rates)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1]),
		lipgloss.JoinHorizontal(lipgloss.Top, cards[2], cards[3]),
	)
}

func card(label, value string) string {
	return cardStyle.Render(cardTitleStyle.Render(label) + "\n" + cardValueStyle.Render(value))
}

func distribution(sum model.Summary, width int) string {
	if sum.TotalGames == 0 {
		return emptyNotice
	}
	bar := min(40, max(5, width-30))
	return strings.Join(stats.DistributionLines(sum.PerformanceDistribution, bar), "\n")
}

func curve(sum model.Summary, width int) string {
	if len(sum.LearningCurve.Rates) == 0 {
		return emptyNotice
	}
	var buf bytes.Buffer
	if err := stats.RenderCurve(&buf, sum.LearningCurve, width, curveHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curve: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// recentColumnWidths matches the columns of stats.RecentRows.
var recentColumnWidths = []int{16, 7, 7, 7, 6, 9}

// recentTable wraps the recent games table and keeps its rendered height
// equal to the body height.
type recentTable struct {
	table         table.Model
	width, height int
}

func newRecentTable() *recentTable {
	t := table.New(table.WithHeight(1))
	t.SetStyles(recentStyles())
	return &recentTable{table: t}
}

func (r *recentTable) setRecords(records []model.GameRecord) {
	headers, cells := stats.RecentRows(records)
	cols := make([]table.Column, len(headers))
	for i, h := range headers {
		cols[i] = table.Column{Title: h, Width: recentColumnWidths[i]}
	}
	rows := make([]table.Row, len(cells))
	for i, c := range cells {
		rows[i] = table.Row(c)
	}
	r.table.SetColumns(cols)
	r.table.SetRows(rows)
	r.width, r.height = 0, 0
}

func (r *recentTable) resize(width, body int) {
	if r.width == width && r.height == body {
		return
	}
	r.width, r.height = width, body
	r.table.SetWidth(width)
	r.table.SetHeight(max(1, body-1))
	// The header border makes the rendered height differ from SetHeight;
	// correct by the observed difference.
	for range 2 {
		diff := body - lipgloss.Height(r.table.View())
		if diff == 0 {
			return
		}
		r.table.SetHeight(max(1, r.table.Height()+diff))
	}
}

func (r *recentTable) view() string {
	return mutedStyle.Render(r.table.View())
}

func recentStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1, 0, 0)
	styles.Cell = styles.Cell.Padding(0, 1, 0, 0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
