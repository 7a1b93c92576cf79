// Package tui provides the Bubble Tea game interface.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/verte-zerg/vstask/internal/experiment"
	"github.com/verte-zerg/vstask/internal/model"
)

// Sessions runs experiment games.
type Sessions interface {
	StartSession(ctx context.Context, cfg model.SessionConfig) (string, model.Session, error)
	RecordChoice(ctx context.Context, gameID string, req experiment.ChoiceRequest) (model.Choice, error)
	FinalizeSession(ctx context.Context, gameID, rawChoice string) (experiment.Result, error)
}

// Summaries returns the persisted statistics summary.
type Summaries interface {
	Current(ctx context.Context) (*model.Summary, error)
}

type phase int

const (
	phaseIntro phase = iota
	phaseRounds
	phaseFinal
	phaseResult
	phaseFailed
)

// Model implements the Bubble Tea game UI.
type Model struct {
	sessions  Sessions
	summaries Summaries
	config    model.SessionConfig
	logger    *zap.Logger

	width  int
	height int

	phase   phase
	gameID  string
	session model.Session
	round   int
	picked  map[string]model.Color
	picks   int
	pending string
	result  experiment.Result

	status  string
	errMsg  string
	summary *model.Summary
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	markStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	redStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	greenStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	panelStyle    = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// NewModel constructs a game TUI model and starts the first game.
func NewModel(cfg model.SessionConfig, sessions Sessions, summaries Summaries, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Model{
		sessions:  sessions,
		summaries: summaries,
		config:    cfg,
		logger:    logger,
	}
	m.loadSummary()
	m.startGame()
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
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch m.phase {
		case phaseIntro:
			if msg.Type == tea.KeyEnter {
				m.phase = phaseRounds
			}
		case phaseRounds:
			m.handleRoundKey(msg)
		case phaseFinal:
			if msg.Type == tea.KeyRunes {
				m.handleAnswer(msg.Runes)
			}
		case phaseResult, phaseFailed:
			switch msg.String() {
			case "n":
				m.startGame()
			case "q":
				return m, tea.Quit
			}
		}
		return m, nil
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var content string
	switch m.phase {
	case phaseIntro:
		content = m.renderIntro()
	case phaseRounds:
		content = m.renderRound()
	case phaseFinal:
		content = m.renderFinal()
	case phaseResult:
		content = m.renderResult()
	case phaseFailed:
		content = errorStyle.Render(m.errMsg) + "\n\n" + footerStyle.Render("n: retry  q: quit")
	}
	if m.width == 0 || m.height == 0 {
		return content
	}
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) startGame() {
	m.round = 0
	m.picks = 0
	m.pending = ""
	m.status = ""
	m.errMsg = ""
	m.picked = map[string]model.Color{}
	m.result = experiment.Result{}

	gameID, sess, err := m.sessions.StartSession(context.Background(), m.config)
	if err != nil {
		m.logger.Warn("failed to start game", zap.Error(err))
		m.phase = phaseFailed
		m.errMsg = fmt.Sprintf("failed to start game: %v", err)
		return
	}
	m.gameID = gameID
	m.session = sess
	m.phase = phaseIntro
}

func (m *Model) handleRoundKey(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyEnter:
		if m.pending != "" {
			name := m.pending
			m.pending = ""
			if m.selectable(name) {
				m.pick(name)
				return
			}
		}
		m.advance()
	case tea.KeyBackspace, tea.KeyDelete:
		m.pending = ""
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			m.pending += string(unicode.ToUpper(r))
			m.resolvePending()
		}
	}
}

// resolvePending picks the cue named by the typed prefix once it is unambiguous.
func (m *Model) resolvePending() {
	exact := false
	longer := false
	for _, cue := range m.currentRound().Cues {
		switch {
		case cue.Name == m.pending:
			exact = true
		case strings.HasPrefix(cue.Name, m.pending):
			longer = true
		}
	}
	switch {
	case exact && !longer:
		name := m.pending
		m.pending = ""
		if m.selectable(name) {
			m.pick(name)
		}
	case !exact && !longer:
		m.status = fmt.Sprintf("no cue named %s", m.pending)
		m.pending = ""
	}
}

func (m *Model) selectable(name string) bool {
	for _, cue := range m.currentRound().Cues {
		if cue.Name != name {
			continue
		}
		if !cue.Active {
			m.status = fmt.Sprintf("cue %s is inactive", name)
			return false
		}
		if _, done := m.picked[name]; done {
			m.status = fmt.Sprintf("cue %s already revealed", name)
			return false
		}
		return true
	}
	return false
}

func (m *Model) pick(name string) {
	choice, err := m.sessions.RecordChoice(context.Background(), m.gameID, experiment.ChoiceRequest{Round: m.round, CueName: name})
	if err != nil {
		m.logger.Warn("failed to record choice", zap.String("game_id", m.gameID), zap.Error(err))
		m.status = fmt.Sprintf("failed to record choice: %v", err)
		return
	}
	m.picked[name] = choice.Color
	m.picks++
	m.status = ""
}

func (m *Model) advance() {
	m.status = ""
	m.picked = map[string]model.Color{}
	if m.round+1 < len(m.session.Rounds) {
		m.round++
		return
	}
	m.phase = phaseFinal
}

func (m *Model) handleAnswer(runes []rune) {
	if len(runes) != 1 {
		return
	}
	n, err := strconv.Atoi(string(runes[0]))
	if err != nil || n < 1 || n > m.config.Quadrants {
		m.status = fmt.Sprintf("press 1-%d", m.config.Quadrants)
		return
	}
	res, err := m.sessions.FinalizeSession(context.Background(), m.gameID, strconv.Itoa(n-1))
	if err != nil {
		m.logger.Warn("failed to finalize game", zap.String("game_id", m.gameID), zap.Error(err))
		m.status = fmt.Sprintf("failed to save answer: %v", err)
		return
	}
	m.result = res
	m.status = ""
	m.phase = phaseResult
	m.loadSummary()
}

func (m *Model) loadSummary() {
	if m.summaries == nil {
		return
	}
	sum, err := m.summaries.Current(context.Background())
	if err != nil {
		m.logger.Warn("failed to load statistics", zap.Error(err))
		return
	}
	m.summary = sum
}

func (m *Model) currentRound() model.Round {
	if m.round < 0 || m.round >= len(m.session.Rounds) {
		return model.Round{}
	}
	return m.session.Rounds[m.round]
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 60
	}
	w := int(float64(m.width) * 0.70)
	if w < 1 {
		w = 1
	}
	return w
}

func (m *Model) renderIntro() string {
	marked := map[string]bool{"quadrant": true, "quadrants": true, "biased": true}
	body := wrapText(m.session.Description, m.contentWidth(), textStyle, markStyle, marked)
	return titleStyle.Render("Visual Search Task") + "\n\n" + body + "\n\n" + footerStyle.Render("enter: start  esc: quit")
}

func (m *Model) renderRound() string {
	title := titleStyle.Render(fmt.Sprintf("Round %d of %d", m.round+1, len(m.session.Rounds)))
	grid := renderQuadrants(m.config, m.currentRound(), m.picked)
	hint := "type a cue letter to reveal it  enter: next round"
	if m.round+1 == len(m.session.Rounds) {
		hint = "type a cue letter to reveal it  enter: final answer"
	}
	lines := []string{title, "", grid, "", footerStyle.Render(hint)}
	if m.pending != "" {
		lines = append(lines, markStyle.Render("> "+m.pending))
	}
	if m.status != "" {
		lines = append(lines, errorStyle.Render(m.status))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFinal() string {
	lines := []string{
		titleStyle.Render("Which quadrant was biased?"),
		"",
		textStyle.Render(fmt.Sprintf("Press 1-%d.", m.config.Quadrants)),
	}
	if m.status != "" {
		lines = append(lines, errorStyle.Render(m.status))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderResult() string {
	verdict := redStyle.Render("Wrong")
	if m.result.Correct {
		verdict = greenStyle.Render("Correct")
	}
	lines := []string{
		verdict,
		"",
		textStyle.Render(fmt.Sprintf("Biased quadrant: Q%d", m.result.Biased+1)),
		textStyle.Render(fmt.Sprintf("Score: %+d", m.result.Score)),
		"",
		footerStyle.Render("n: new game  q: quit"),
	}
	return strings.Join(lines, "\n")
}

// renderQuadrants lays out one panel per quadrant, two panels per row.
func renderQuadrants(cfg model.SessionConfig, round model.Round, picked map[string]model.Color) string {
	panels := make([]string, 0, cfg.Quadrants)
	for q := 0; q < cfg.Quadrants; q++ {
		cells := []string{}
		for _, cue := range round.Cues {
			if cue.Quadrant != q {
				continue
			}
			cells = append(cells, renderCue(cue, picked))
		}
		content := titleStyle.Render(fmt.Sprintf("Q%d", q+1)) + "\n" + strings.Join(cells, " ")
		panels = append(panels, panelStyle.Render(content))
	}
	rows := []string{}
	for i := 0; i < len(panels); i += 2 {
		end := i + 2
		if end > len(panels) {
			end = len(panels)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, panels[i:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCue(cue model.Cue, picked map[string]model.Color) string {
	if !cue.Active {
		return inactiveStyle.Render(cue.Name)
	}
	color, ok := picked[cue.Name]
	if !ok {
		return activeStyle.Render(cue.Name)
	}
	if color == model.ColorRed {
		return redStyle.Render(cue.Name + "●")
	}
	return greenStyle.Render(cue.Name + "●")
}

func (m *Model) renderFooter() string {
	segments := []string{}
	switch m.phase {
	case phaseRounds:
		segments = append(segments, fmt.Sprintf("Round %d/%d", m.round+1, len(m.session.Rounds)))
		segments = append(segments, fmt.Sprintf("Reveals %d", m.picks))
	case phaseFinal, phaseResult:
		segments = append(segments, fmt.Sprintf("Reveals %d", m.picks))
	}
	if m.summary != nil && m.summary.TotalGames > 0 {
		segments = append(segments, fmt.Sprintf("Games %d · Success %.1f%%", m.summary.TotalGames, m.summary.SuccessRate))
	}
	if len(segments) == 0 {
		return ""
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}
