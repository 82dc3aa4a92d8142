package calculator

import (
	"time"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// DateLayout 序列中日期的格式
const DateLayout = "2006-01-02"

// Day 截断到UTC日期
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SprintDays 迭代跨越的日历天数，按UTC日期相减，不看时分；结束早于开始时为负
func SprintDays(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours() / 24)
}

// Burndown 生成理想与实际燃尽序列，长度为天数+1
//
// 实际剩余 = 计划点数 − 截至当天（含）已完成任务的故事点之和，完成日期取 updated_at。
func Burndown(sprint models.Sprint, tasks []models.Task) models.BurndownSeries {
	days := SprintDays(sprint.StartDate, sprint.EndDate)
	if days < 0 {
		return models.BurndownSeries{Dates: []string{}, Ideal: []float64{}, Actual: []float64{}}
	}

	planned := float64(sprint.PlannedPoints)
	start := Day(sprint.StartDate)

	series := models.BurndownSeries{
		Dates:  make([]string, 0, days+1),
		Ideal:  make([]float64, 0, days+1),
		Actual: make([]float64, 0, days+1),
	}

	for i := 0; i <= days; i++ {
		day := start.AddDate(0, 0, i)
		dayEnd := day.AddDate(0, 0, 1)

		ideal := planned
		if days > 0 {
			ideal = planned * (1 - float64(i)/float64(days))
		}

		var burned float64
		for _, t := range tasks {
			if t.IsDone() && t.UpdatedAt.Before(dayEnd) {
				burned += float64(t.StoryPoints)
			}
		}

		series.Dates = append(series.Dates, day.Format(DateLayout))
		series.Ideal = append(series.Ideal, ideal)
		series.Actual = append(series.Actual, planned-burned)
	}
	return series
}
