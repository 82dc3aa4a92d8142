package calculator

import (
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

const (
	completionWeight = 0.7
	stabilityWeight  = 0.3
)

// Stability 当前成员数 / 历史成员数，无成员记录时为1
func Stability(members []models.TeamMember) (stability float64, active, historical int) {
	historical = len(members)
	for _, m := range members {
		if m.IsActive() {
			active++
		}
	}
	if historical == 0 {
		return 1, 0, 0
	}
	return float64(active) / float64(historical), active, historical
}

// Satisfaction 满意度 = 完成率×0.7 + 稳定性×0.3，以百分比表示并截断到 [0,100]
func Satisfaction(completionRate, stability float64) float64 {
	return ClampPercent(completionRate*completionWeight + stability*100*stabilityWeight)
}

// TeamHealth 团队健康度，完成率取已完成迭代完成率的平均值
func TeamHealth(sprints []models.Sprint, members []models.TeamMember) models.HealthMetrics {
	rates := make([]float64, 0, len(sprints))
	for _, s := range sprints {
		if s.Status == models.SprintStatusCompleted {
			rates = append(rates, CompletionRate(s.PlannedPoints, s.CompletedPoints))
		}
	}

	stability, active, historical := Stability(members)
	completion := Mean(rates)

	return models.HealthMetrics{
		CompletionRate:    completion,
		Stability:         stability,
		Satisfaction:      Satisfaction(completion, stability),
		ActiveMembers:     active,
		HistoricalMembers: historical,
	}
}
