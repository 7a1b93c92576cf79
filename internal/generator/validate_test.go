package generator

import (
	"testing"

	"github.com/verte-zerg/vstask/internal/model"
)

// quadrantRound builds a single round with the given red/green counts per quadrant.
func quadrantRound(counts [][2]int) []model.Round {
	var cues []model.Cue
	for q, c := range counts {
		for i := 0; i < c[0]; i++ {
			cues = append(cues, model.Cue{Quadrant: q, Color: model.ColorRed, Active: true})
		}
		for i := 0; i < c[1]; i++ {
			cues = append(cues, model.Cue{Quadrant: q, Color: model.ColorGreen, Active: true})
		}
	}
	return []model.Round{{Cues: cues}}
}

func TestValidateBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		counts [][2]int
		biased int
		want   bool
	}{
		{"biased exactly 0.80", [][2]int{{4, 1}, {1, 1}}, 0, true},
		{"biased below 0.80", [][2]int{{3, 1}, {1, 1}}, 0, false},
		{"fair exactly 0.35", [][2]int{{9, 0}, {7, 13}}, 0, true},
		{"fair exactly 0.65", [][2]int{{9, 0}, {13, 7}}, 0, true},
		{"fair just below 0.35", [][2]int{{9, 0}, {17, 33}}, 0, false},
		{"fair just above 0.65", [][2]int{{9, 0}, {33, 17}}, 0, false},
		{"fair quadrant empty", [][2]int{{9, 0}, {0, 0}}, 0, false},
		{"biased quadrant empty", [][2]int{{0, 0}, {1, 1}}, 0, false},
		{"all quadrants pass", [][2]int{{1, 1}, {1, 1}, {5, 0}, {2, 2}}, 2, true},
		{"one fair quadrant fails", [][2]int{{1, 1}, {2, 0}, {5, 0}, {2, 2}}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(quadrantRound(tt.counts), len(tt.counts), tt.biased)
			if got != tt.want {
				t.Fatalf("Validate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateIgnoresInactiveCues(t *testing.T) {
	rounds := quadrantRound([][2]int{{4, 1}, {1, 1}})
	rounds[0].Cues = append(rounds[0].Cues,
		model.Cue{Quadrant: 0, Color: model.ColorGreen, Active: false},
		model.Cue{Quadrant: 0, Color: model.ColorGreen, Active: false},
	)
	if !Validate(rounds, 2, 0) {
		t.Fatalf("inactive cues must not count toward ratios")
	}
	counts := Count(rounds, 2)
	if counts[0].Total() != 5 {
		t.Fatalf("expected 5 active observations, got %d", counts[0].Total())
	}
}
