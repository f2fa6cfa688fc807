package progress

import "github.com/goalmate/backend/backend/models"

// metric is one category-specific target candidate.
type metric struct {
	name  string
	value func(*models.Goal) float64
}

// targetChains maps a goal category to its metric priority chain. The first
// metric with a positive value is the target the raw contributions are
// normalized against.
var targetChains = map[string][]metric{
	models.CategoryFitness: {
		{"distance", func(g *models.Goal) float64 { return g.Distance }},
		{"duration", func(g *models.Goal) float64 { return g.Duration }},
		{"sets", func(g *models.Goal) float64 { return g.Sets }},
	},
	models.CategoryEducation: {
		{"pages", func(g *models.Goal) float64 { return g.Pages }},
		{"modules", func(g *models.Goal) float64 { return g.Modules }},
		{"studyHours", func(g *models.Goal) float64 { return g.StudyHours }},
	},
}

// TargetValue resolves the goal's target value from its category metric
// chain. The second return is false when no metric resolves — custom
// categories, or category goals with no metric set — in which case no
// percentage is derivable from a raw total.
func TargetValue(g *models.Goal) (float64, bool) {
	for _, m := range targetChains[g.GoalCategory] {
		if v := m.value(g); v > 0 {
			return v, true
		}
	}
	return 0, false
}
