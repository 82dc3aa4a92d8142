package calculator

import (
	"sort"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

const (
	bottleneckMediumHours = 24.0
	bottleneckHighHours   = 72.0
)

// Bottlenecks 统计已完成任务在各状态的平均停留时间，
// 超过24小时为medium，超过72小时为high，按平均时间降序
func Bottlenecks(tasks []models.Task) []models.Bottleneck {
	type acc struct {
		total float64
		count int
	}
	perStatus := make(map[string]*acc)

	for _, t := range tasks {
		if !t.IsDone() {
			continue
		}
		for status, hours := range TimeInStatus(t.History) {
			a, ok := perStatus[status]
			if !ok {
				a = &acc{}
				perStatus[status] = a
			}
			a.total += hours
			a.count++
		}
	}

	result := make([]models.Bottleneck, 0)
	for status, a := range perStatus {
		avg := a.total / float64(a.count)

		var severity models.Severity
		switch {
		case avg > bottleneckHighHours:
			severity = models.SeverityHigh
		case avg > bottleneckMediumHours:
			severity = models.SeverityMedium
		default:
			continue
		}

		result = append(result, models.Bottleneck{
			Status:       status,
			AverageHours: avg,
			TaskCount:    a.count,
			Severity:     severity,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AverageHours != result[j].AverageHours {
			return result[i].AverageHours > result[j].AverageHours
		}
		return result[i].Status < result[j].Status
	})
	return result
}
