package generator

import "github.com/verte-zerg/vstask/internal/model"

// BiasProbability is the chance the biased quadrant shows the bias color.
const BiasProbability = 0.9

// AssignColor draws a cue color for a quadrant.
func (g *Generator) AssignColor(quadrant, biased int) model.Color {
	if quadrant == biased {
		if g.rnd.Float64() < BiasProbability {
			return model.ColorRed
		}
		return model.ColorGreen
	}
	if g.rnd.Intn(2) == 0 {
		return model.ColorRed
	}
	return model.ColorGreen
}
