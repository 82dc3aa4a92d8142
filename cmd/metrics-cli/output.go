package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

var (
	highColor   = color.New(color.FgRed, color.Bold)
	mediumColor = color.New(color.FgYellow)
	lowColor    = color.New(color.FgGreen)
	headColor   = color.New(color.FgCyan, color.Bold)
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func severityLabel(s models.Severity) string {
	switch s {
	case models.SeverityHigh:
		return highColor.Sprint(string(s))
	case models.SeverityMedium:
		return mediumColor.Sprint(string(s))
	default:
		return lowColor.Sprint(string(s))
	}
}

func f1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// renderTable 以右对齐数字列输出表格
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	defer table.Close()

	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func printTeamMetrics(w io.Writer, m *models.TeamMetrics) error {
	fmt.Fprintf(w, "%s %s\n", headColor.Sprint("Team"), m.TeamID)

	rows := [][]string{
		{"Velocity", "average", f1(m.Velocity.Average)},
		{"Velocity", "variability %", f1(m.Velocity.Variability)},
		{"Velocity", "trend", f1(m.Velocity.Trend)},
		{"Velocity", "sprints", strconv.Itoa(m.Velocity.SprintCount)},
		{"Quality", "score", f1(m.Quality.QualityScore)},
		{"Quality", "rework rate %", f1(m.Quality.ReworkRate)},
		{"Quality", "test coverage %", f1(m.Quality.TestCoverage)},
		{"Quality", "review time h", f1(m.Quality.AvgReviewTimeHours)},
		{"Efficiency", "cycle time h", f1(m.Efficiency.AvgCycleTimeHours)},
		{"Efficiency", "throughput / week", f1(m.Efficiency.Throughput)},
		{"Efficiency", "work in progress", strconv.Itoa(m.Efficiency.WorkInProgress)},
		{"Health", "completion %", f1(m.Health.CompletionRate)},
		{"Health", "stability", f1(m.Health.Stability)},
		{"Health", "satisfaction", f1(m.Health.Satisfaction)},
		{"Health", "active members", strconv.Itoa(m.Health.ActiveMembers)},
	}
	return renderTable(w, []string{"Area", "Metric", "Value"}, rows)
}

func printSprintMetrics(w io.Writer, m *models.SprintMetrics) error {
	fmt.Fprintf(w, "%s %s (%s)\n", headColor.Sprint("Sprint"), m.Name, m.Status)

	rows := [][]string{
		{"planned points", strconv.Itoa(m.PlannedPoints)},
		{"completed points", strconv.Itoa(m.CompletedPoints)},
		{"completion %", f1(m.CompletionRate)},
		{"velocity", f1(m.Velocity)},
		{"quality score", f1(m.QualityScore)},
		{"satisfaction", f1(m.TeamSatisfaction)},
	}
	if err := renderTable(w, []string{"Metric", "Value"}, rows); err != nil {
		return err
	}

	if len(m.Burndown.Dates) == 0 {
		return nil
	}
	burndown := make([][]string, 0, len(m.Burndown.Dates))
	for i, date := range m.Burndown.Dates {
		burndown = append(burndown, []string{date, f1(m.Burndown.Ideal[i]), f1(m.Burndown.Actual[i])})
	}
	fmt.Fprintln(w, headColor.Sprint("Burndown"))
	return renderTable(w, []string{"Date", "Ideal", "Actual"}, burndown)
}

func printTaskMetrics(w io.Writer, m *models.TaskMetrics) error {
	fmt.Fprintf(w, "%s %s (%s)\n", headColor.Sprint("Task"), m.TaskID, m.Status)

	rows := [][]string{
		{"cycle time h", f1(m.CycleTimeHours)},
		{"quality score", f1(m.QualityScore)},
		{"complexity", f1(m.Complexity)},
		{"rework count", strconv.Itoa(m.ReworkCount)},
	}

	statuses := make([]string, 0, len(m.TimeInStatus))
	for status := range m.TimeInStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		rows = append(rows, []string{"hours in " + status, f1(m.TimeInStatus[status])})
	}
	return renderTable(w, []string{"Metric", "Value"}, rows)
}

func printWorkload(w io.Writer, wl *models.TeamWorkload) error {
	fmt.Fprintf(w, "%s %s: %d open points, %d unassigned\n",
		headColor.Sprint("Workload"), wl.TeamID, wl.OpenStoryPoints, wl.Unassigned)

	rows := make([][]string, 0, len(wl.Assignees))
	for _, a := range wl.Assignees {
		rows = append(rows, []string{
			a.AssigneeID.String(),
			strconv.Itoa(a.OpenTasks),
			strconv.Itoa(a.StoryPoints),
			strconv.Itoa(a.InProgress),
			strconv.Itoa(a.Blocked),
		})
	}
	return renderTable(w, []string{"Assignee", "Open", "Points", "In progress", "Blocked"}, rows)
}

func printReport(w io.Writer, r *models.Report) error {
	fmt.Fprintf(w, "%s %s, %s\n", headColor.Sprint("Report"), r.TeamID, r.Period)

	summary := [][]string{
		{"average velocity", f1(r.Summary.AverageVelocity)},
		{"completion %", f1(r.Summary.CompletionRate)},
		{"quality score", f1(r.Summary.QualityScore)},
		{"tasks completed", strconv.Itoa(r.Summary.TasksCompleted)},
		{"points completed", strconv.Itoa(r.Summary.StoryPointsCompleted)},
		{"cycle time h", f1(r.Summary.AvgCycleTimeHours)},
		{"satisfaction", f1(r.Summary.TeamSatisfaction)},
	}
	if err := renderTable(w, []string{"Summary", "Value"}, summary); err != nil {
		return err
	}

	if len(r.Bottlenecks) > 0 {
		rows := make([][]string, 0, len(r.Bottlenecks))
		for _, b := range r.Bottlenecks {
			rows = append(rows, []string{b.Status, f1(b.AverageHours), strconv.Itoa(b.TaskCount), severityLabel(b.Severity)})
		}
		fmt.Fprintln(w, headColor.Sprint("Bottlenecks"))
		if err := renderTable(w, []string{"Status", "Avg hours", "Tasks", "Severity"}, rows); err != nil {
			return err
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, headColor.Sprint("Recommendations"))
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  [%s] %s: %s\n", severityLabel(rec.Severity), rec.Type, rec.Message)
		}
	}
	return nil
}

func printAlertRecords(w io.Writer, records []models.AlertRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, lowColor.Sprint("✅ No alerts"))
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID.String(),
			r.CreatedAt.Format("2006-01-02 15:04"),
			severityLabel(r.Severity),
			string(r.Type),
			string(r.Status),
			r.Message,
		})
	}
	return renderTable(w, []string{"ID", "Created", "Severity", "Type", "Status", "Message"}, rows)
}
