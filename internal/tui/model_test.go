package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/vstask/internal/experiment"
	"github.com/verte-zerg/vstask/internal/model"
)

type fakeSessions struct {
	session   model.Session
	startErr  error
	choices   []experiment.ChoiceRequest
	finalRaw  []string
	startCall int
}

func (f *fakeSessions) StartSession(context.Context, model.SessionConfig) (string, model.Session, error) {
	f.startCall++
	if f.startErr != nil {
		return "", model.Session{}, f.startErr
	}
	return "game-1", f.session, nil
}

func (f *fakeSessions) RecordChoice(_ context.Context, _ string, req experiment.ChoiceRequest) (model.Choice, error) {
	f.choices = append(f.choices, req)
	for _, cue := range f.session.Rounds[req.Round].Cues {
		if cue.Name == req.CueName {
			return model.Choice{Round: req.Round, Quadrant: cue.Quadrant, CueName: cue.Name, Color: cue.Color}, nil
		}
	}
	return model.Choice{}, experiment.ErrUnknownCue
}

func (f *fakeSessions) FinalizeSession(_ context.Context, _ string, raw string) (experiment.Result, error) {
	f.finalRaw = append(f.finalRaw, raw)
	return experiment.Score(int(raw[0]-'0'), f.session.BiasedQuadrant), nil
}

type fixedSummary struct {
	sum *model.Summary
}

func (f fixedSummary) Current(context.Context) (*model.Summary, error) {
	return f.sum, nil
}

func twoRoundSession() model.Session {
	cfg := model.SessionConfig{Rounds: 2, Quadrants: 2, Queues: 1}
	return model.Session{
		Config:         cfg,
		BiasedQuadrant: 1,
		Description:    "Find the biased quadrant.",
		Rounds: []model.Round{
			{Cues: []model.Cue{
				{Name: "A", Quadrant: 0, Color: model.ColorGreen, Active: true},
				{Name: "B", Quadrant: 1, Color: model.ColorRed, Active: false},
			}},
			{Cues: []model.Cue{
				{Name: "A", Quadrant: 0, Color: model.ColorRed, Active: true},
				{Name: "B", Quadrant: 1, Color: model.ColorRed, Active: true},
			}},
		},
	}
}

func press(m *Model, keys ...tea.KeyMsg) {
	for _, k := range keys {
		m.Update(k)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestPlayThroughGame(t *testing.T) {
	fake := &fakeSessions{session: twoRoundSession()}
	m := NewModel(fake.session.Config, fake, fixedSummary{sum: &model.Summary{TotalGames: 1, SuccessRate: 100}}, nil)
	if m.phase != phaseIntro {
		t.Fatalf("expected intro, got %v", m.phase)
	}

	press(m, enter, runes("a"))
	if len(fake.choices) != 1 || fake.choices[0] != (experiment.ChoiceRequest{Round: 0, CueName: "A"}) {
		t.Fatalf("unexpected choices: %+v", fake.choices)
	}
	if m.picked["A"] != model.ColorGreen {
		t.Fatalf("expected A revealed as green, got %q", m.picked["A"])
	}

	press(m, runes("a"))
	if len(fake.choices) != 1 {
		t.Fatalf("revealing a cue twice must not log again")
	}

	press(m, enter, runes("b"), enter)
	if len(fake.choices) != 2 || fake.choices[1].Round != 1 {
		t.Fatalf("unexpected choices: %+v", fake.choices)
	}
	if m.phase != phaseFinal {
		t.Fatalf("expected final phase, got %v", m.phase)
	}

	press(m, runes("7"))
	if len(fake.finalRaw) != 0 || m.phase != phaseFinal {
		t.Fatalf("out of range answer must be ignored")
	}

	press(m, runes("2"))
	if len(fake.finalRaw) != 1 || fake.finalRaw[0] != "1" {
		t.Fatalf("expected zero-based answer, got %v", fake.finalRaw)
	}
	if m.phase != phaseResult || !m.result.Correct || m.result.Score != 100 {
		t.Fatalf("unexpected result: %+v", m.result)
	}
	if !strings.Contains(m.View(), "Correct") {
		t.Fatalf("expected verdict in view")
	}

	press(m, runes("n"))
	if fake.startCall != 2 || m.phase != phaseIntro || m.picks != 0 {
		t.Fatalf("expected a fresh game, phase=%v picks=%d", m.phase, m.picks)
	}
}

func TestInactiveCueIsNotLogged(t *testing.T) {
	fake := &fakeSessions{session: twoRoundSession()}
	m := NewModel(fake.session.Config, fake, nil, nil)
	press(m, enter, runes("b"))
	if len(fake.choices) != 0 {
		t.Fatalf("inactive cue must not be logged")
	}
	if !strings.Contains(m.status, "inactive") {
		t.Fatalf("expected inactive notice, got %q", m.status)
	}
}

func TestMultiCharacterCueNames(t *testing.T) {
	cues := []model.Cue{
		{Name: "A", Quadrant: 0, Color: model.ColorRed, Active: true},
		{Name: "A1", Quadrant: 1, Color: model.ColorGreen, Active: true},
	}
	fake := &fakeSessions{session: model.Session{
		Config: model.SessionConfig{Rounds: 1, Quadrants: 2, Queues: 1},
		Rounds: []model.Round{{Cues: cues}},
	}}
	m := NewModel(fake.session.Config, fake, nil, nil)

	press(m, enter, runes("a"))
	if len(fake.choices) != 0 || m.pending != "A" {
		t.Fatalf("ambiguous prefix should wait, pending=%q", m.pending)
	}
	press(m, runes("1"))
	if len(fake.choices) != 1 || fake.choices[0].CueName != "A1" {
		t.Fatalf("expected A1, got %+v", fake.choices)
	}
	press(m, runes("a"), enter)
	if len(fake.choices) != 2 || fake.choices[1].CueName != "A" {
		t.Fatalf("enter should pick the exact name, got %+v", fake.choices)
	}
	if m.phase != phaseRounds {
		t.Fatalf("picking with enter must not advance the round")
	}
	press(m, runes("z"))
	if m.pending != "" || !strings.Contains(m.status, "no cue") {
		t.Fatalf("unknown name should reset, pending=%q status=%q", m.pending, m.status)
	}
}

func TestStartFailureAllowsRetry(t *testing.T) {
	fake := &fakeSessions{startErr: errors.New("boom")}
	m := NewModel(model.SessionConfig{Rounds: 1, Quadrants: 2, Queues: 1}, fake, nil, nil)
	if m.phase != phaseFailed || !strings.Contains(m.View(), "boom") {
		t.Fatalf("expected failure screen")
	}
	fake.startErr = nil
	fake.session = twoRoundSession()
	press(m, runes("n"))
	if m.phase != phaseIntro || m.gameID != "game-1" {
		t.Fatalf("expected retry to start a game")
	}
}

func TestRenderQuadrantsShowsRevealedColors(t *testing.T) {
	sess := twoRoundSession()
	out := renderQuadrants(sess.Config, sess.Rounds[1], map[string]model.Color{"B": model.ColorRed})
	if !containsAll(out, []string{"Q1", "Q2", "A", "B●"}) {
		t.Fatalf("unexpected grid:\n%s", out)
	}
	if strings.Contains(out, "A●") {
		t.Fatalf("unrevealed cue should not show its color")
	}
}
