// Package model defines shared data structures.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Session configuration bounds.
const (
	MinQuadrants = 2
	MaxQuadrants = 4
)

// ErrConfiguration reports an invalid session configuration.
var ErrConfiguration = errors.New("invalid session configuration")

// SessionConfig defines the shape of one experiment session.
type SessionConfig struct {
	Rounds    int `json:"n_rounds" toml:"rounds"`
	Quadrants int `json:"n_quadrants" toml:"quadrants"`
	Queues    int `json:"n_queues" toml:"queues"`
}

// Validate checks the configuration bounds.
func (c SessionConfig) Validate() error {
	if c.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be at least 1", ErrConfiguration)
	}
	if c.Quadrants < MinQuadrants || c.Quadrants > MaxQuadrants {
		return fmt.Errorf("%w: quadrants must be between %d and %d", ErrConfiguration, MinQuadrants, MaxQuadrants)
	}
	if c.Queues < 1 {
		return fmt.Errorf("%w: queues per quadrant must be at least 1", ErrConfiguration)
	}
	return nil
}

// TotalSlots returns the number of cue slots per round.
func (c SessionConfig) TotalSlots() int {
	return c.Quadrants * c.Queues
}

// SlotName returns the label of a slot: A, B, C, ... then A1, B1, ... past Z.
func SlotName(slot int) string {
	letter := string(rune('A' + slot%26))
	if slot < 26 {
		return letter
	}
	return fmt.Sprintf("%s%d", letter, slot/26)
}

// SlotQuadrant returns the quadrant that owns a slot.
func (c SessionConfig) SlotQuadrant(slot int) int {
	return slot / c.Queues
}

// Color is a cue outcome.
type Color string

const (
	// ColorRed is the bias color.
	ColorRed Color = "RED"
	// ColorGreen is the complementary color.
	ColorGreen Color = "GREEN"
)

// Cue is one slot outcome within a round.
type Cue struct {
	Name     string `json:"name"`
	Quadrant int    `json:"quadrant"`
	Color    Color  `json:"color"`
	Active   bool   `json:"active"`
}

// Round holds one cue per slot.
type Round struct {
	Cues []Cue `json:"queues"`
}

// ActiveCount returns the number of selectable cues.
func (r Round) ActiveCount() int {
	n := 0
	for _, c := range r.Cues {
		if c.Active {
			n++
		}
	}
	return n
}

// Session is a fully generated experiment session.
type Session struct {
	Config         SessionConfig `json:"config"`
	BiasedQuadrant int           `json:"biased_quadrant"`
	Rounds         []Round       `json:"rounds"`
	Description    string        `json:"task_description"`
}

// Choice is an intermediate participant action within a game.
type Choice struct {
	Round        int       `json:"round"`
	Quadrant     int       `json:"quadrant"`
	CueName      string    `json:"cue_name"`
	Color        Color     `json:"color"`
	Timestamp    time.Time `json:"timestamp"`
	ChoiceNumber int       `json:"choice_number"`
}

// FinalChoice is the terminal answer of a game.
type FinalChoice struct {
	ChosenQuadrant int  `json:"chosen_quadrant"`
	Correct        bool `json:"correct"`
	Score          int  `json:"score"`
	BiasedQuadrant int  `json:"biased_quadrant"`
}

// RecordMetadata carries storage bookkeeping.
type RecordMetadata struct {
	FileCreated time.Time `json:"file_created"`
}

// GameRecord is the persisted log of a single game.
type GameRecord struct {
	GameID         string         `json:"game_id"`
	StartTime      time.Time      `json:"start_time"`
	Choices        []Choice       `json:"choices"`
	FinalChoice    *FinalChoice   `json:"final_choice"`
	CompletionTime *time.Time     `json:"completion_time"`
	TotalDuration  *float64       `json:"total_duration"`
	Success        *bool          `json:"success"`
	Metadata       RecordMetadata `json:"metadata"`
}

// Finalized reports whether the game has a completion marker.
func (r GameRecord) Finalized() bool {
	return r.CompletionTime != nil
}

// Histogram is a per-bin count over fixed edges.
type Histogram struct {
	Bins   []float64 `json:"bins"`
	Counts []int     `json:"counts"`
}

// LearningCurve is the success rate per window of games ordered by start time.
type LearningCurve struct {
	WindowSize int       `json:"window_size"`
	Rates      []float64 `json:"rates"`
}

// Summary is the derived population statistics.
type Summary struct {
	TotalGames              int           `json:"total_games"`
	SuccessRate             float64       `json:"success_rate"`
	AverageDuration         float64       `json:"average_duration"`
	PerformanceDistribution Histogram     `json:"performance_distribution"`
	LearningCurve           LearningCurve `json:"learning_curve"`
	LastUpdated             time.Time     `json:"last_updated"`
}
