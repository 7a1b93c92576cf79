package generator

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/vstask/internal/model"
)

// Describe returns the participant-facing task description.
func Describe(cfg model.SessionConfig, partial bool) string {
	lines := []string{
		fmt.Sprintf("You will play a game with %d rounds.", cfg.Rounds),
	}
	if partial {
		lines = append(lines, "In each round you'll see both active and inactive queues:")
	} else {
		lines = append(lines, "In each round you'll see one cue per queue:")
	}
	lines = append(lines,
		fmt.Sprintf("One quadrant has %.0f%% one color / %.0f%% the other.", BiasProbability*100, (1-BiasProbability)*100),
		"Other quadrants have a 50/50 color distribution.",
	)
	if partial {
		lines = append(lines,
			fmt.Sprintf("2 to %d queues will be active per round.", cfg.TotalSlots()),
			"Inactive queues appear greyed out and cannot be selected.",
		)
	}
	lines = append(lines,
		"",
		fmt.Sprintf("After %d rounds, identify the biased quadrant.", cfg.Rounds),
		fmt.Sprintf("Correct: +%d points, Wrong: -%d points.", ScoreMagnitude, ScoreMagnitude),
	)
	return strings.Join(lines, "\n")
}

// ScoreMagnitude is the fixed reward for a final answer.
const ScoreMagnitude = 100

// Score returns the fixed-magnitude score for an answer.
func Score(correct bool) int {
	if correct {
		return ScoreMagnitude
	}
	return -ScoreMagnitude
}
