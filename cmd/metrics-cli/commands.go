package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/mcpserver"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
)

var (
	windowStart string
	windowEnd   string
	period      string

	alertTeam   string
	alertStatus string
	alertLimit  int
	actor       string
	comment     string
)

var teamCmd = &cobra.Command{
	Use:   "team <team-id>",
	Short: "Show velocity, quality, efficiency and health for a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		teamID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		start, err := parseDate(windowStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		end, err := parseDate(windowEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}

		metrics, err := components.Metrics.GetTeamMetrics(rootCtx, teamID, start, end)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, metrics)
		}
		return printTeamMetrics(os.Stdout, metrics)
	},
}

var sprintCmd = &cobra.Command{
	Use:   "sprint <sprint-id>",
	Short: "Show completion, velocity and burndown for a sprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		sprintID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		metrics, err := components.Metrics.GetSprintMetrics(rootCtx, sprintID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, metrics)
		}
		return printSprintMetrics(os.Stdout, metrics)
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Show cycle time, rework and time in status for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		taskID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		metrics, err := components.Metrics.GetTaskMetrics(rootCtx, taskID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, metrics)
		}
		return printTaskMetrics(os.Stdout, metrics)
	},
}

var workloadCmd = &cobra.Command{
	Use:   "workload <team-id>",
	Short: "Show open work per assignee",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		teamID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		workload, err := components.Metrics.GetTeamWorkload(rootCtx, teamID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, workload)
		}
		return printWorkload(os.Stdout, workload)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <team-id>",
	Short: "Generate a team report for the last week, month or quarter",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		teamID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		report, err := components.Metrics.GenerateReport(rootCtx, teamID, models.ReportPeriod(period))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, report)
		}
		return printReport(os.Stdout, report)
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List, evaluate and manage alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored alerts",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		filter := repository.AlertFilter{Limit: alertLimit}
		if alertTeam != "" {
			teamID, err := parseUUID(alertTeam)
			if err != nil {
				return err
			}
			filter.TeamID = &teamID
		}
		if alertStatus != "" {
			status := models.AlertStatus(alertStatus)
			filter.Status = &status
		}

		records, err := components.Alerts.ListAlerts(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, records)
		}
		return printAlertRecords(os.Stdout, records)
	},
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check <team-id>",
	Short: "Evaluate thresholds for a team, store and dispatch new alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		teamID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		records, err := components.Alerts.CheckTeam(rootCtx, teamID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, records)
		}
		return printAlertRecords(os.Stdout, records)
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an open alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		alertID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		record, err := components.Alerts.Acknowledge(rootCtx, alertID, actor)
		if err != nil {
			return err
		}
		return printAlertRecords(os.Stdout, []models.AlertRecord{*record})
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert with an optional comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		alertID, err := parseUUID(args[0])
		if err != nil {
			return err
		}
		record, err := components.Alerts.Resolve(rootCtx, alertID, actor, comment)
		if err != nil {
			return err
		}
		return printAlertRecords(os.Stdout, []models.AlertRecord{*record})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the team metrics MCP server on stdio",
	Long:  `Launch an MCP server that lets AI agents query team metrics, reports and alerts through standard tools.`,
	RunE: func(*cobra.Command, []string) error {
		return mcpserver.Serve(rootCtx, components.Metrics)
	},
}

func init() {
	teamCmd.Flags().StringVar(&windowStart, "start", "", "window start (YYYY-MM-DD or RFC3339)")
	teamCmd.Flags().StringVar(&windowEnd, "end", "", "window end (YYYY-MM-DD or RFC3339)")

	reportCmd.Flags().StringVar(&period, "period", string(models.PeriodWeek), "report period: week, month or quarter")

	alertsListCmd.Flags().StringVar(&alertTeam, "team", "", "filter by team ID")
	alertsListCmd.Flags().StringVar(&alertStatus, "status", "", "filter by status: open, acknowledged or resolved")
	alertsListCmd.Flags().IntVar(&alertLimit, "limit", 50, "maximum number of alerts")

	for _, c := range []*cobra.Command{alertsAckCmd, alertsResolveCmd} {
		c.Flags().StringVar(&actor, "by", os.Getenv("USER"), "who handles the alert")
	}
	alertsResolveCmd.Flags().StringVar(&comment, "comment", "", "resolution comment")

	alertsCmd.AddCommand(alertsListCmd, alertsCheckCmd, alertsAckCmd, alertsResolveCmd)
	rootCmd.AddCommand(teamCmd, sprintCmd, taskCmd, workloadCmd, reportCmd, alertsCmd, mcpCmd)
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
