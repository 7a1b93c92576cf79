package statsui

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/vstask/internal/stats"
)

const (
	fieldWindow = iota
	fieldRecent
)

var (
	errBadWindow = errors.New("invalid curve window (use integer >= 1)")
	errBadRecent = errors.New("invalid recent value (use 0 or positive integer)")
)

// settingsForm edits the report window and recent count.
type settingsForm struct {
	open   bool
	inputs []textinput.Model
	focus  int
	err    string
}

func newSettingsForm() *settingsForm {
	f := &settingsForm{}
	for _, prompt := range []string{"Curve window: ", "Recent games: "} {
		in := textinput.New()
		in.Prompt = prompt
		in.Cursor.SetMode(cursor.CursorBlink)
		f.inputs = append(f.inputs, in)
	}
	return f
}

func (f *settingsForm) show(cfg stats.ReportConfig) tea.Cmd {
	f.open = true
	f.err = ""
	f.inputs[fieldWindow].SetValue(strconv.Itoa(cfg.Window))
	recent := ""
	if cfg.Recent > 0 {
		recent = strconv.Itoa(cfg.Recent)
	}
	f.inputs[fieldRecent].SetValue(recent)
	return f.focusField(fieldWindow)
}

// update handles one key while the form is open. done reports that the form
// was applied and cfg holds the new settings.
func (f *settingsForm) update(msg tea.KeyMsg, cur stats.ReportConfig) (cfg stats.ReportConfig, done bool, cmd tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		f.open = false
		f.err = ""
		return cur, false, nil
	case tea.KeyEnter:
		next, err := f.parse(cur)
		if err != nil {
			f.err = err.Error()
			return cur, false, nil
		}
		f.open = false
		f.err = ""
		return next, true, nil
	case tea.KeyTab:
		return cur, false, f.focusField(f.focus + 1)
	case tea.KeyShiftTab:
		return cur, false, f.focusField(f.focus - 1)
	}
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cur, false, cmd
}

// parse reads the form. A changed window makes the report live.
func (f *settingsForm) parse(cur stats.ReportConfig) (stats.ReportConfig, error) {
	window := cur.Window
	if v := strings.TrimSpace(f.inputs[fieldWindow].Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cur, errBadWindow
		}
		window = n
	}
	recent := 0
	if v := strings.TrimSpace(f.inputs[fieldRecent].Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cur, errBadRecent
		}
		recent = n
	}
	return stats.ReportConfig{
		Window: window,
		Recent: recent,
		Live:   cur.Live || window != cur.Window,
	}, nil
}

func (f *settingsForm) focusField(i int) tea.Cmd {
	n := len(f.inputs)
	f.focus = (i%n + n) % n
	var cmd tea.Cmd
	for j := range f.inputs {
		if j == f.focus {
			cmd = f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
	return cmd
}

func (f *settingsForm) resize(width int) {
	for i := range f.inputs {
		f.inputs[i].Width = max(10, width-lipgloss.Width(f.inputs[i].Prompt)-2)
	}
}

func (f *settingsForm) view() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, in := range f.inputs {
		lines = append(lines, in.View())
	}
	if f.err != "" {
		lines = append(lines, errorStyle.Render(f.err))
	}
	return strings.Join(lines, "\n")
}
