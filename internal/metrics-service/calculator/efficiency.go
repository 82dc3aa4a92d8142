package calculator

import (
	"math"
	"time"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// efficiencyCeilingHours 周期时间达到该值时效率分为0
const efficiencyCeilingHours = 7 * 24.0

// Efficiency 平均周期时间、每周吞吐量、在制品数
func Efficiency(tasks []models.Task) models.EfficiencyMetrics {
	var (
		result       models.EfficiencyMetrics
		cycleSum     float64
		earliest     time.Time
		latest       time.Time
		haveInterval bool
	)

	for _, t := range tasks {
		if t.Status == models.TaskStatusInProgress {
			result.WorkInProgress++
		}
		if !t.IsDone() {
			continue
		}

		result.CompletedTasks++
		cycleSum += CycleTimeHours(t)

		if !haveInterval || t.CreatedAt.Before(earliest) {
			earliest = t.CreatedAt
		}
		if !haveInterval || t.UpdatedAt.After(latest) {
			latest = t.UpdatedAt
		}
		haveInterval = true
	}

	if result.CompletedTasks == 0 {
		return result
	}

	result.AvgCycleTimeHours = cycleSum / float64(result.CompletedTasks)

	days := math.Max(1, latest.Sub(earliest).Hours()/24)
	weeks := days / 7
	result.Throughput = float64(result.CompletedTasks) / weeks
	return result
}

// EfficiencyScore 将周期时间反转为 0–100 的效率分
func EfficiencyScore(cycleTimeHours float64) float64 {
	return ClampPercent(100 - cycleTimeHours/efficiencyCeilingHours*100)
}
