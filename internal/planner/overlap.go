package planner

import "github.com/scholary/streamscribe/internal/model"

// OverlapPlanner cuts the file into fixed-interval chunks, each extended
// by overlapSeconds at its tail (except the last), so OverlapMerger has
// text to align adjacent chunks against. Grounded on
// OverlapChunkingStrategy.java: chunkEnd advances by chunkDuration each
// step, not by the overlap-extended actualEnd.
type OverlapPlanner struct {
	chunkDurationSeconds float64
	overlapSeconds       float64
}

func NewOverlapPlanner(chunkDurationSeconds, overlapSeconds float64) *OverlapPlanner {
	return &OverlapPlanner{chunkDurationSeconds: chunkDurationSeconds, overlapSeconds: overlapSeconds}
}

func (p *OverlapPlanner) PlanChunks(totalDuration float64) []model.ChunkPlan {
	var plans []model.ChunkPlan
	currentStart := 0.0
	index := 0

	for currentStart < totalDuration {
		chunkEnd := min(currentStart+p.chunkDurationSeconds, totalDuration)
		actualEnd := chunkEnd
		plan := model.ChunkPlan{
			Index:        index,
			StartSeconds: currentStart,
			EndSeconds:   chunkEnd,
		}
		if chunkEnd < totalDuration {
			actualEnd = min(chunkEnd+p.overlapSeconds, totalDuration)
			plan.EndSeconds = actualEnd
		}
		if index > 0 {
			plan.HasOverlap = true
			plan.OverlapStart = currentStart
			plan.OverlapEnd = min(currentStart+p.overlapSeconds, actualEnd)
		}
		plans = append(plans, plan)
		currentStart = chunkEnd
		index++
	}
	return plans
}
