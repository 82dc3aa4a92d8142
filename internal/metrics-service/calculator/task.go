package calculator

import (
	"sort"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

const (
	complexityPointsCeiling   = 13.0
	complexityDepsCeiling     = 5.0
	complexityCommentsCeiling = 10.0
)

// CycleTimeHours 已完成任务从创建到最后更新的小时数，未完成为0
func CycleTimeHours(task models.Task) float64 {
	if !task.IsDone() {
		return 0
	}
	hours := task.UpdatedAt.Sub(task.CreatedAt).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// Complexity 任务复杂度，截断到 [0,100]
func Complexity(storyPoints, dependencyCount, reviewComments int) float64 {
	score := float64(storyPoints)/complexityPointsCeiling*50 +
		float64(dependencyCount)/complexityDepsCeiling*25 +
		float64(reviewComments)/complexityCommentsCeiling*25
	return ClampPercent(score)
}

// TaskComplexity 根据任务字段计算复杂度
func TaskComplexity(task models.Task) float64 {
	return Complexity(task.StoryPoints, task.DependencyCount(), task.Metrics.ReviewComments)
}

// StatusEvents 按序号排列的状态变更事件
func StatusEvents(history []models.TaskEvent) []models.TaskEvent {
	events := make([]models.TaskEvent, 0, len(history))
	for _, e := range history {
		if e.IsStatusChange() {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Sequence != events[j].Sequence {
			return events[i].Sequence < events[j].Sequence
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// ReworkCount 返工次数：max(0, 进入 in_progress 的次数 − 1)
func ReworkCount(history []models.TaskEvent) int {
	entries := 0
	for _, e := range StatusEvents(history) {
		if models.TaskStatus(e.NewValue) == models.TaskStatusInProgress {
			entries++
		}
	}
	if entries <= 1 {
		return 0
	}
	return entries - 1
}

// TimeInStatus 各状态停留小时数，由相邻状态事件的时间差累加得到；
// 最后一个状态没有后继事件，不计入
func TimeInStatus(history []models.TaskEvent) map[string]float64 {
	events := StatusEvents(history)
	result := make(map[string]float64)

	for i := 0; i+1 < len(events); i++ {
		hours := events[i+1].Timestamp.Sub(events[i].Timestamp).Hours()
		if hours < 0 {
			hours = 0
		}
		result[events[i].NewValue] += hours
	}
	return result
}

// TaskMetrics 计算单个任务的指标包（不含LastUpdated）
func TaskMetrics(task models.Task) models.TaskMetrics {
	return models.TaskMetrics{
		Kind:           models.BundleKindTask,
		TaskID:         task.ID,
		TeamID:         task.TeamID,
		Status:         task.Status,
		CycleTimeHours: CycleTimeHours(task),
		QualityScore:   TaskQualityScore(task),
		Complexity:     TaskComplexity(task),
		ReworkCount:    ReworkCount(task.History),
		TimeInStatus:   TimeInStatus(task.History),
	}
}
