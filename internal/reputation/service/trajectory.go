package service

import (
	"zkattend/internal/reputation/models"
)

// transitionMatrix is the fixed forward-simulation matrix used only by the
// trajectory forecast. It is hand-authored and intentionally independent of
// the learned behavior model that drives the authoritative state updates;
// the two mechanisms do not interact.
var transitionMatrix = [models.NumStates][models.NumStates]float64{
	{0.70, 0.20, 0.08, 0.02, 0.00}, // Novice
	{0.15, 0.65, 0.15, 0.05, 0.00}, // Occasional
	{0.05, 0.10, 0.70, 0.15, 0.00}, // Active
	{0.02, 0.05, 0.13, 0.80, 0.00}, // CoreContributor
	{0.00, 0.02, 0.05, 0.13, 0.80}, // Ambassador
}

// daysPerTransition is the reporting assumption for forecast timing.
const daysPerTransition = 30

// walkTrajectory greedily follows the highest-probability successor from
// the given state for up to steps hops. Read-only; reporting display only.
func walkTrajectory(from models.State, steps int) []models.TrajectoryStep {
	path := make([]models.TrajectoryStep, 0, steps)
	current := from
	for step := 1; step <= steps; step++ {
		row := transitionMatrix[current]
		next := models.StateNovice
		best := row[0]
		for i := 1; i < models.NumStates; i++ {
			if row[i] > best {
				best = row[i]
				next = models.State(i)
			}
		}
		path = append(path, models.TrajectoryStep{
			Step:          step,
			FromState:     current.String(),
			ToState:       next.String(),
			Probability:   best,
			EstimatedDays: step * daysPerTransition,
		})
		current = next
	}
	return path
}

// matrixByStateName exposes the fixed matrix keyed by state name, the shape
// the privatized release uses.
func matrixByStateName() map[string][]float64 {
	out := make(map[string][]float64, models.NumStates)
	for i := range models.NumStates {
		row := make([]float64, models.NumStates)
		copy(row, transitionMatrix[i][:])
		out[models.State(i).String()] = row
	}
	return out
}
