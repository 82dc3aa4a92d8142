package calculator

import (
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

const (
	bugPenalty         = 10.0
	reviewTimePenalty  = 0.1
	coverageBonus      = 0.2
	highReworkMinCount = 2
)

// QualityScore 100 − bugs×10 − review_time×0.1 + coverage×0.2，截断到 [0,100]
func QualityScore(bugsCompleted int, avgReviewTimeHours, testCoverage float64) float64 {
	score := 100 - float64(bugsCompleted)*bugPenalty - avgReviewTimeHours*reviewTimePenalty + testCoverage*coverageBonus
	return ClampPercent(score)
}

// TaskQualityScore 单个任务的质量分，bug 数取任务上记录的 bug_count
func TaskQualityScore(task models.Task) float64 {
	return QualityScore(task.Metrics.BugCount, task.Metrics.ReviewTimeHours, task.Metrics.TestCoverage)
}

// Quality 基于一组任务计算质量指标
//
// 质量分只统计已完成任务：已完成的 bug 类任务数、平均评审时长、平均测试覆盖率。
// 返工率统计所有任务中发生过返工的比例。
func Quality(tasks []models.Task) models.QualityMetrics {
	var (
		result     models.QualityMetrics
		reviewSum  float64
		coverSum   float64
		reworkSum  int
		reworkHits int
	)

	for _, t := range tasks {
		rework := ReworkCount(t.History)
		reworkSum += rework
		if rework > 0 {
			reworkHits++
		}
		if rework >= highReworkMinCount {
			result.HighReworkTasks++
		}

		if !t.IsDone() {
			continue
		}
		result.CompletedTasks++
		if t.Type == models.TaskTypeBug {
			result.BugsCompleted++
		}
		reviewSum += t.Metrics.ReviewTimeHours
		coverSum += t.Metrics.TestCoverage
	}

	if len(tasks) > 0 {
		result.ReworkRate = ClampPercent(float64(reworkHits) / float64(len(tasks)) * 100)
		result.AvgReworkCount = float64(reworkSum) / float64(len(tasks))
	}

	if result.CompletedTasks == 0 {
		return result
	}

	result.AvgReviewTimeHours = reviewSum / float64(result.CompletedTasks)
	result.TestCoverage = ClampPercent(coverSum / float64(result.CompletedTasks))
	result.QualityScore = QualityScore(result.BugsCompleted, result.AvgReviewTimeHours, result.TestCoverage)
	return result
}
