package generator

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/verte-zerg/vstask/internal/model"
)

func TestGenerateShapeAndSlotMapping(t *testing.T) {
	for quadrants := model.MinQuadrants; quadrants <= model.MaxQuadrants; quadrants++ {
		for queues := 1; queues <= 3; queues++ {
			for _, partial := range []bool{false, true} {
				cfg := model.SessionConfig{Rounds: 8, Quadrants: quadrants, Queues: queues}
				g := NewSeeded(int64(quadrants*10+queues), WithPartialActivity(partial))
				sess, err := g.NewSession(cfg)
				if err != nil {
					t.Fatalf("cfg %+v partial=%v: %v", cfg, partial, err)
				}
				if len(sess.Rounds) != cfg.Rounds {
					t.Fatalf("expected %d rounds, got %d", cfg.Rounds, len(sess.Rounds))
				}
				for ri, r := range sess.Rounds {
					if len(r.Cues) != cfg.TotalSlots() {
						t.Fatalf("round %d: expected %d cues, got %d", ri, cfg.TotalSlots(), len(r.Cues))
					}
					for slot, cue := range r.Cues {
						if cue.Name != model.SlotName(slot) {
							t.Fatalf("round %d slot %d: name %q", ri, slot, cue.Name)
						}
						if cue.Quadrant != slot/queues {
							t.Fatalf("round %d slot %d: quadrant %d", ri, slot, cue.Quadrant)
						}
						if cue.Quadrant != sess.Rounds[0].Cues[slot].Quadrant {
							t.Fatalf("slot %d changed quadrant across rounds", slot)
						}
					}
					active := r.ActiveCount()
					if partial && (active < 2 || active > cfg.TotalSlots()) {
						t.Fatalf("round %d: active count %d out of range", ri, active)
					}
					if !partial && active != cfg.TotalSlots() {
						t.Fatalf("round %d: expected all cues active, got %d", ri, active)
					}
				}
				if !Validate(sess.Rounds, cfg.Quadrants, sess.BiasedQuadrant) {
					t.Fatalf("returned session fails validation")
				}
			}
		}
	}
}

func TestGenerateSeededScenario(t *testing.T) {
	cfg := model.SessionConfig{Rounds: 5, Quadrants: 4, Queues: 1}
	g := NewSeeded(42)
	rounds, err := g.Generate(cfg, 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, c := range Count(rounds, cfg.Quadrants) {
		ratio := c.RedRatio()
		if c.Quadrant == 2 {
			if ratio < 0.80 {
				t.Fatalf("biased quadrant ratio %.2f below 0.80", ratio)
			}
			continue
		}
		if ratio < 0.35 || ratio > 0.65 {
			t.Fatalf("quadrant %d ratio %.2f outside fairness band", c.Quadrant, ratio)
		}
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	cfg := model.SessionConfig{Rounds: 6, Quadrants: 3, Queues: 2}
	a, err := NewSeeded(7, WithPartialActivity(true)).NewSession(cfg)
	if err != nil {
		t.Fatalf("session a: %v", err)
	}
	b, err := NewSeeded(7, WithPartialActivity(true)).NewSession(cfg)
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical sessions for the same seed")
	}
}

func TestGenerateExhausted(t *testing.T) {
	// A single fair cue per session can only yield a ratio of 0 or 1.
	cfg := model.SessionConfig{Rounds: 1, Quadrants: 2, Queues: 1}
	attempts := 0
	g := NewSeeded(1, WithMaxAttempts(50), WithObserver(func(n int, accepted bool) {
		attempts = n
		if accepted {
			t.Fatalf("unexpected acceptance")
		}
	}))
	_, err := g.Generate(cfg, 0)
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got %v", err)
	}
	if attempts != 50 {
		t.Fatalf("expected 50 attempts, got %d", attempts)
	}
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	cases := []model.SessionConfig{
		{Rounds: 0, Quadrants: 4, Queues: 1},
		{Rounds: 5, Quadrants: 1, Queues: 1},
		{Rounds: 5, Quadrants: 5, Queues: 1},
		{Rounds: 5, Quadrants: 4, Queues: 0},
	}
	g := NewSeeded(1)
	for _, cfg := range cases {
		if _, err := g.NewSession(cfg); !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("cfg %+v: expected ErrConfiguration, got %v", cfg, err)
		}
	}
	if _, err := g.Generate(model.SessionConfig{Rounds: 5, Quadrants: 4, Queues: 1}, 4); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for biased quadrant out of range, got %v", err)
	}
}

func TestAssignColorFrequencies(t *testing.T) {
	g := NewSeeded(99)
	const draws = 20000
	biasedRed, fairRed := 0, 0
	for i := 0; i < draws; i++ {
		if g.AssignColor(1, 1) == model.ColorRed {
			biasedRed++
		}
		if g.AssignColor(0, 1) == model.ColorRed {
			fairRed++
		}
	}
	if got := float64(biasedRed) / draws; math.Abs(got-BiasProbability) > 0.02 {
		t.Fatalf("biased red share %.3f too far from %.2f", got, BiasProbability)
	}
	if got := float64(fairRed) / draws; math.Abs(got-0.5) > 0.02 {
		t.Fatalf("fair red share %.3f too far from 0.5", got)
	}
}

func TestDescribeMentionsActiveRange(t *testing.T) {
	cfg := model.SessionConfig{Rounds: 5, Quadrants: 4, Queues: 2}
	out := Describe(cfg, true)
	for _, want := range []string{"5 rounds", "2 to 8 queues", "+100", "-100"} {
		if !strings.Contains(out, want) {
			t.Fatalf("description missing %q:\n%s", want, out)
		}
	}
}
