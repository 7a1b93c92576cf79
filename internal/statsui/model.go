// Package statsui provides the Bubble Tea stats interface.
package statsui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/vstask/internal/model"
	"github.com/verte-zerg/vstask/internal/stats"
)

const (
	tabOverview = iota
	tabDistribution
	tabCurve
	tabRecent
)

var tabTitles = []string{"Overview", "Distribution", "Learning Curve", "Recent Games"}

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Refresher recomputes and persists the summary.
type Refresher interface {
	Refresh(ctx context.Context) (model.Summary, error)
}

// Model implements the Bubble Tea stats UI.
type Model struct {
	src       stats.Source
	refresher Refresher
	cfg       stats.ReportConfig

	report stats.Report
	errMsg string
	notice string

	active   int
	panes    []viewport.Model
	recent   *recentTable
	settings *settingsForm

	width  int
	height int
}

// NewModel loads the first report. refresher may be nil, which disables recompute.
func NewModel(src stats.Source, refresher Refresher, cfg stats.ReportConfig) *Model {
	if cfg.Window <= 0 {
		cfg.Window = stats.DefaultWindow
	}
	m := &Model{
		src:       src,
		refresher: refresher,
		cfg:       cfg,
		panes:     make([]viewport.Model, len(tabTitles)),
		recent:    newRecentTable(),
		settings:  newSettingsForm(),
	}
	for i := range m.panes {
		m.panes[i] = viewport.New(0, 0)
	}
	m.load()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.fillPanes()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.settings.open {
			return m, m.updateSettings(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "left", "h":
		m.switchTab(-1)
		return tea.ClearScreen
	case "right", "l":
		m.switchTab(1)
		return tea.ClearScreen
	case "=":
		m.setWindow(nextWindow(m.cfg.Window))
	case "-":
		m.setWindow(prevWindow(m.cfg.Window))
	case "r":
		m.recompute()
	case "/":
		return m.settings.show(m.cfg)
	case "g", "home":
		if m.active == tabRecent {
			m.recent.table.GotoTop()
		} else {
			m.panes[m.active].GotoTop()
		}
	case "G", "end":
		if m.active == tabRecent {
			m.recent.table.GotoBottom()
		} else {
			m.panes[m.active].GotoBottom()
		}
	default:
		var cmd tea.Cmd
		if m.active == tabRecent {
			m.recent.table, cmd = m.recent.table.Update(msg)
		} else {
			m.panes[m.active], cmd = m.panes[m.active].Update(msg)
		}
		return cmd
	}
	return nil
}

func (m *Model) updateSettings(msg tea.KeyMsg) tea.Cmd {
	cfg, done, cmd := m.settings.update(msg, m.cfg)
	if done {
		m.cfg = cfg
		m.load()
		m.resize()
	}
	return cmd
}

// setWindow changes the learning-curve window. The stored summary was built
// with another window, so the report switches to a live one.
func (m *Model) setWindow(window int) {
	m.cfg.Window = window
	m.cfg.Live = true
	m.load()
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.heights()
	return strings.Join([]string{
		fitLines(m.header(), m.width, headerHeight),
		fitLines(m.body(), m.width, bodyHeight),
		fitLines(m.footer(), m.width, footerHeight),
	}, "\n")
}

func (m *Model) heights() (header, body, footer int) {
	header = max(1, lipgloss.Height(activeNavStyle.Render("X"))) + 1
	footer = 1
	if !m.settings.open && (m.errMsg != "" || m.notice != "") {
		footer++
	}
	body = max(1, m.height-header-footer)
	return header, body, footer
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, body, _ := m.heights()
	for i := range m.panes {
		m.panes[i].Width = m.width
		m.panes[i].Height = body
	}
	m.recent.resize(m.width, body)
	m.settings.resize(m.width)
}

func (m *Model) switchTab(delta int) {
	m.active = (m.active + delta + len(tabTitles)) % len(tabTitles)
	if m.active == tabRecent {
		m.recent.table.Focus()
	} else {
		m.recent.table.Blur()
	}
}

func (m *Model) header() string {
	parts := make([]string, len(tabTitles))
	for i, title := range tabTitles {
		style := inactiveNavStyle
		if i == m.active {
			style = activeNavStyle
		}
		parts[i] = style.Render(title)
	}
	tabs := lipgloss.JoinHorizontal(lipgloss.Top, parts...)

	source := "stored"
	if !m.report.Stored {
		source = "live"
	}
	updated := "never"
	if ts := m.report.Summary.LastUpdated; !ts.IsZero() {
		updated = ts.Local().Format("2006-01-02 15:04")
	}
	line := fmt.Sprintf("Summary: %s  updated=%s  window=%d  recent=%d", source, updated, m.cfg.Window, m.cfg.Recent)
	return tabs + "\n" + headerStyle.Render(truncate(line, m.width))
}

func (m *Model) body() string {
	switch {
	case m.settings.open:
		return m.settings.view()
	case m.active == tabRecent:
		if len(m.report.Recent) == 0 {
			return emptyNotice
		}
		return m.recent.view()
	default:
		return m.panes[m.active].View()
	}
}

func (m *Model) footer() string {
	if m.settings.open {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.refresher != nil {
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Recompute: r  Settings: /  Quit: q"
	}
	lines := []string{headerStyle.Render(help)}
	switch {
	case m.errMsg != "":
		lines = append(lines, errorStyle.Render(m.errMsg))
	case m.notice != "":
		lines = append(lines, headerStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

// load rebuilds the report from the source with the current settings.
func (m *Model) load() {
	report, err := stats.BuildReport(context.Background(), m.src, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.fillPanes()
		return
	}
	m.errMsg = ""
	m.report = report
	m.recent.setRecords(report.Recent)
	m.resize()
	m.fillPanes()
}

func (m *Model) recompute() {
	if m.refresher == nil {
		return
	}
	start := time.Now()
	if _, err := m.refresher.Refresh(context.Background()); err != nil {
		m.errMsg = fmt.Sprintf("recompute failed: %v", err)
		return
	}
	m.cfg.Live = false
	m.load()
	m.notice = fmt.Sprintf("Recomputed in %s", time.Since(start).Round(time.Millisecond))
	m.resize()
}

func (m *Model) fillPanes() {
	if m.errMsg != "" {
		for i := range m.panes {
			m.panes[i].SetContent("Failed to load stats.")
		}
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	sum := m.report.Summary
	m.panes[tabOverview].SetContent(overview(sum, width))
	m.panes[tabDistribution].SetContent(distribution(sum, width))
	m.panes[tabCurve].SetContent(curve(sum, width))
}

func nextWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return n / 5 * 5
}
