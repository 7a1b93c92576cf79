// Package generator builds randomized experiment sessions.
package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/verte-zerg/vstask/internal/model"
)

// DefaultMaxAttempts bounds the generate-and-test loop.
const DefaultMaxAttempts = 10000

// ErrGenerationExhausted is returned when no batch passed validation within the attempt bound.
var ErrGenerationExhausted = errors.New("session generation exhausted")

// Generator produces randomized experiment sessions.
type Generator struct {
	rnd         *rand.Rand
	partial     bool
	maxAttempts int
	observe     func(attempts int, accepted bool)
}

// Option configures a Generator.
type Option func(*Generator)

// WithPartialActivity marks a random subset of cues active in each round.
func WithPartialActivity(enabled bool) Option {
	return func(g *Generator) {
		g.partial = enabled
	}
}

// WithMaxAttempts overrides the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithObserver registers a callback invoked once per Generate call.
func WithObserver(fn func(attempts int, accepted bool)) Option {
	return func(g *Generator) {
		g.observe = fn
	}
}

// New returns a Generator seeded with the current time.
func New(opts ...Option) *Generator {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()), opts...)
}

// NewSeeded returns a Generator with a deterministic seed.
func NewSeeded(seed int64, opts ...Option) *Generator {
	return NewWithSource(rand.NewSource(seed), opts...)
}

// NewWithSource returns a Generator drawing from src.
func NewWithSource(src rand.Source, opts ...Option) *Generator {
	g := &Generator{
		rnd:         rand.New(src),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PartialActivity reports whether rounds carry inactive cues.
func (g *Generator) PartialActivity() bool {
	return g.partial
}

// PickBiasedQuadrant selects the biased quadrant uniformly.
func (g *Generator) PickBiasedQuadrant(cfg model.SessionConfig) int {
	return g.rnd.Intn(cfg.Quadrants)
}

// NewSession picks a biased quadrant and generates a validated session.
func (g *Generator) NewSession(cfg model.SessionConfig) (model.Session, error) {
	if err := cfg.Validate(); err != nil {
		return model.Session{}, err
	}
	return g.SessionFor(cfg, g.PickBiasedQuadrant(cfg))
}

// SessionFor generates a validated session around a given biased quadrant.
func (g *Generator) SessionFor(cfg model.SessionConfig, biased int) (model.Session, error) {
	rounds, err := g.Generate(cfg, biased)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{
		Config:         cfg,
		BiasedQuadrant: biased,
		Rounds:         rounds,
		Description:    Describe(cfg, g.partial),
	}, nil
}

// Generate builds whole batches of rounds until one passes Validate.
// A rejected batch is discarded entirely.
func (g *Generator) Generate(cfg model.SessionConfig, biased int) ([]model.Round, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if biased < 0 || biased >= cfg.Quadrants {
		return nil, fmt.Errorf("%w: biased quadrant %d out of range", model.ErrConfiguration, biased)
	}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		rounds := g.buildBatch(cfg, biased)
		if Validate(rounds, cfg.Quadrants, biased) {
			g.report(attempt, true)
			return rounds, nil
		}
	}
	g.report(g.maxAttempts, false)
	return nil, fmt.Errorf("%w after %d attempts (rounds=%d quadrants=%d queues=%d)",
		ErrGenerationExhausted, g.maxAttempts, cfg.Rounds, cfg.Quadrants, cfg.Queues)
}

func (g *Generator) buildBatch(cfg model.SessionConfig, biased int) []model.Round {
	total := cfg.TotalSlots()
	rounds := make([]model.Round, 0, cfg.Rounds)
	for i := 0; i < cfg.Rounds; i++ {
		cues := make([]model.Cue, total)
		for slot := 0; slot < total; slot++ {
			q := cfg.SlotQuadrant(slot)
			cues[slot] = model.Cue{
				Name:     model.SlotName(slot),
				Quadrant: q,
				Color:    g.AssignColor(q, biased),
				Active:   !g.partial,
			}
		}
		if g.partial {
			g.activateSubset(cues)
		}
		rounds = append(rounds, model.Round{Cues: cues})
	}
	return rounds
}

// activateSubset marks between 2 and len(cues) cues active.
func (g *Generator) activateSubset(cues []model.Cue) {
	total := len(cues)
	if total < 2 {
		for i := range cues {
			cues[i].Active = true
		}
		return
	}
	n := 2 + g.rnd.Intn(total-1)
	for _, idx := range g.rnd.Perm(total)[:n] {
		cues[idx].Active = true
	}
}

func (g *Generator) report(attempts int, accepted bool) {
	if g.observe != nil {
		g.observe(attempts, accepted)
	}
}
