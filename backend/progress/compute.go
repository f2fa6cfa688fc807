// Package progress owns the goal aggregate's completion model: how raw
// numeric contributions become per-contributor or per-sub-task percentages,
// how those roll up into the goal's overall completion, and how the goal
// status follows from it. The functions in this file are pure — they mutate
// only the snapshot they are handed and perform no I/O — so the mode
// dispatch stays independently testable.
package progress

import (
	"math"
	"time"

	"github.com/goalmate/backend/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// subTaskPercentage converts a submitted value into the sub-task's effective
// completion percentage. Unit values map linearly onto the sub-task's range;
// values in [0,100] are taken as direct percentages; a value above 100 that
// still fits the range is treated as a range-relative raw value submitted by
// a client that forgot the unit flag. Everything else is clamped.
func subTaskPercentage(st *models.SubTask, value float64, isUnitValue bool) float64 {
	r := st.Range()
	switch {
	case r > 0 && isUnitValue:
		progressed := math.Min(math.Max(value-st.StartValue, 0), r)
		return clampPercent(progressed / r * 100)
	case value >= 0 && value <= 100:
		return value
	case r > 0 && value > 100 && value <= st.EndValue:
		progressed := math.Min(math.Max(value-st.StartValue, 0), r)
		return clampPercent(progressed / r * 100)
	default:
		return clampPercent(value)
	}
}

// subTaskWeight is the sub-task's share of the goal rollup: its range size,
// floored at 1 so rangeless sub-tasks still count.
func subTaskWeight(st *models.SubTask) float64 {
	if r := st.Range(); r > 1 {
		return r
	}
	return 1
}

// weightedSubTaskCompletion recomputes the goal-level percentage as the
// range-size-weighted average over all sub-tasks. A sub-task spanning 50
// units moves the goal proportionally more than one spanning 5.
func weightedSubTaskCompletion(subTasks []models.SubTask) float64 {
	if len(subTasks) == 0 {
		return 0
	}
	var weighted, total float64
	for i := range subTasks {
		w := subTaskWeight(&subTasks[i])
		weighted += subTasks[i].CompletionPercentage * w
		total += w
	}
	return weighted / total
}

// meanIndividualCompletion is the compete-mode rollup: the arithmetic mean
// of every contributor's percentage.
func meanIndividualCompletion(entries []models.IndividualProgress) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for i := range entries {
		sum += entries[i].CompletionPercentage
	}
	return sum / float64(len(entries))
}

// applyCompete adds the contribution to the contributor's running total,
// renormalizes it against the category target, and rolls the goal percentage
// up as the mean over all contributors. When no target resolves the
// contributor's percentage is left unchanged — the raw total keeps
// accumulating until a target exists.
func applyCompete(g *models.Goal, userID primitive.ObjectID, value float64, now time.Time) {
	ip := g.IndividualProgressFor(userID, now)
	ip.TotalProgress += value
	ip.LastUpdated = now
	if target, ok := TargetValue(g); ok {
		ip.CompletionPercentage = clampPercent(ip.TotalProgress / target * 100)
	}
	g.CompletionPercentage = meanIndividualCompletion(g.IndividualProgress)
}

// applySubTask sets the sub-task's percentage from the submitted value and
// recomputes the goal rollup. The sub-task status follows its percentage;
// Not Started persists at zero.
func applySubTask(g *models.Goal, st *models.SubTask, value float64, isUnitValue bool) {
	st.CompletionPercentage = subTaskPercentage(st, value, isUnitValue)
	if st.CompletionPercentage >= 100 {
		st.Status = models.StatusCompleted
	} else if st.CompletionPercentage > 0 {
		st.Status = models.StatusInProgress
	}
	g.CompletionPercentage = weightedSubTaskCompletion(g.SubTasks)
}

// applySingleTrack handles individual goals and collaborative updates that
// name no sub-task: the sum of every historical contribution plus the new
// value is normalized against the category target, or treated as an already
// percentage-like scalar when no target is derivable.
func applySingleTrack(g *models.Goal, value float64) {
	total := value
	for i := range g.ProgressHistory {
		total += g.ProgressHistory[i].Value
	}
	if target, ok := TargetValue(g); ok {
		g.CompletionPercentage = clampPercent(total / target * 100)
	} else {
		g.CompletionPercentage = clampPercent(total)
	}
}

// deriveStatus re-derives the goal status from its completion percentage.
// Archived is terminal and never overwritten; a zero percentage leaves the
// prior status in place.
func deriveStatus(g *models.Goal) {
	if g.Status == models.StatusArchived {
		return
	}
	if g.CompletionPercentage >= 100 {
		g.Status = models.StatusCompleted
	} else if g.CompletionPercentage > 0 {
		g.Status = models.StatusInProgress
	}
}
