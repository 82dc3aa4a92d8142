package calculator

import (
	"sort"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// DefaultVelocityWindow 默认统计的已完成迭代数
const DefaultVelocityWindow = 10

// CompletedSprints 返回按结束时间升序排列的最近 window 个已完成迭代
func CompletedSprints(sprints []models.Sprint, window int) []models.Sprint {
	if window <= 0 {
		window = DefaultVelocityWindow
	}

	completed := make([]models.Sprint, 0, len(sprints))
	for _, s := range sprints {
		if s.Status == models.SprintStatusCompleted {
			completed = append(completed, s)
		}
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].EndDate.Before(completed[j].EndDate)
	})

	if len(completed) > window {
		completed = completed[len(completed)-window:]
	}
	return completed
}

// Velocity 计算速度、波动率与趋势
//
// 趋势为 (最早 - 最新) / 迭代数：正值表示速度下降，负值表示速度上升。
func Velocity(sprints []models.Sprint, window int) models.VelocityMetrics {
	completed := CompletedSprints(sprints, window)

	velocities := make([]float64, 0, len(completed))
	for _, s := range completed {
		velocities = append(velocities, float64(s.CompletedPoints))
	}

	result := models.VelocityMetrics{
		SprintVelocities: velocities,
		SprintCount:      len(velocities),
	}
	if len(velocities) == 0 {
		return result
	}

	result.Average = Mean(velocities)
	result.Variability = CoefficientOfVariation(velocities)
	result.Trend = (velocities[0] - velocities[len(velocities)-1]) / float64(len(velocities))
	return result
}

// CompletionRate 完成率百分比，允许超过100表示超额完成
func CompletionRate(plannedPoints, completedPoints int) float64 {
	if plannedPoints <= 0 || completedPoints <= 0 {
		return 0
	}
	return float64(completedPoints) / float64(plannedPoints) * 100
}
