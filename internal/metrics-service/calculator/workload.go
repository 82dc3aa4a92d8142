package calculator

import (
	"sort"

	"github.com/google/uuid"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// Workload 统计未完成任务的分配情况
func Workload(tasks []models.Task) models.TeamWorkload {
	workload := models.TeamWorkload{
		Assignees: make([]models.AssigneeLoad, 0),
		ByStatus:  make(map[string]int),
		ByType:    make(map[string]int),
	}

	loads := make(map[uuid.UUID]*models.AssigneeLoad)
	for _, t := range tasks {
		if t.IsDone() {
			continue
		}

		workload.ByStatus[string(t.Status)]++
		workload.ByType[string(t.Type)]++
		workload.OpenStoryPoints += t.StoryPoints

		if t.AssigneeID == nil {
			workload.Unassigned++
			continue
		}

		load, ok := loads[*t.AssigneeID]
		if !ok {
			load = &models.AssigneeLoad{AssigneeID: *t.AssigneeID}
			loads[*t.AssigneeID] = load
		}
		load.OpenTasks++
		load.StoryPoints += t.StoryPoints
		switch t.Status {
		case models.TaskStatusInProgress:
			load.InProgress++
		case models.TaskStatusBlocked:
			load.Blocked++
		}
	}

	for _, load := range loads {
		workload.Assignees = append(workload.Assignees, *load)
	}
	// 负载高的排在前面
	sort.Slice(workload.Assignees, func(i, j int) bool {
		a, b := workload.Assignees[i], workload.Assignees[j]
		if a.StoryPoints != b.StoryPoints {
			return a.StoryPoints > b.StoryPoints
		}
		return a.AssigneeID.String() < b.AssigneeID.String()
	})
	return workload
}
