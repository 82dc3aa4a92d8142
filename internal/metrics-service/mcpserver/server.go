// Package mcpserver 通过 Model Context Protocol 暴露团队指标查询工具
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/service"
)

const (
	serverName    = "Team Metrics Server"
	serverVersion = "1.0.0"
)

// NewMCPServer 创建并注册指标工具，不启动传输
func NewMCPServer(metrics service.MetricsService) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithLogging())

	h := &toolHandler{metrics: metrics}

	s.AddTool(mcp.NewTool("get_team_metrics",
		mcp.WithDescription("Velocity, quality, efficiency and health metrics for a team."),
		mcp.WithString("team_id", mcp.Description("Team UUID."), mcp.Required()),
		mcp.WithString("start", mcp.Description("Window start, RFC3339 or YYYY-MM-DD.")),
		mcp.WithString("end", mcp.Description("Window end, RFC3339 or YYYY-MM-DD.")),
	), h.handleTeamMetrics)

	s.AddTool(mcp.NewTool("get_sprint_metrics",
		mcp.WithDescription("Completion, velocity, quality and burndown for a sprint."),
		mcp.WithString("sprint_id", mcp.Description("Sprint UUID."), mcp.Required()),
	), h.handleSprintMetrics)

	s.AddTool(mcp.NewTool("get_task_metrics",
		mcp.WithDescription("Cycle time, rework and time in status for a task."),
		mcp.WithString("task_id", mcp.Description("Task UUID."), mcp.Required()),
	), h.handleTaskMetrics)

	s.AddTool(mcp.NewTool("get_team_workload",
		mcp.WithDescription("Open work per assignee, status and task type."),
		mcp.WithString("team_id", mcp.Description("Team UUID."), mcp.Required()),
	), h.handleWorkload)

	s.AddTool(mcp.NewTool("generate_report",
		mcp.WithDescription("Team report with summary, trends, bottlenecks and recommendations."),
		mcp.WithString("team_id", mcp.Description("Team UUID."), mcp.Required()),
		mcp.WithString("period", mcp.Description("Report period. Defaults to 'week'."), mcp.Enum("week", "month", "quarter")),
	), h.handleReport)

	s.AddTool(mcp.NewTool("evaluate_alerts",
		mcp.WithDescription("Evaluate alert thresholds for a team without persisting the result."),
		mcp.WithString("team_id", mcp.Description("Team UUID."), mcp.Required()),
	), h.handleEvaluateAlerts)

	return s
}

// Serve 通过标准输入输出提供服务
func Serve(_ context.Context, metrics service.MetricsService) error {
	return server.ServeStdio(NewMCPServer(metrics))
}

type toolHandler struct {
	metrics service.MetricsService
}

func (h *toolHandler) handleTeamMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamID, errResult := requireID(request, "team_id")
	if errResult != nil {
		return errResult, nil
	}
	start, err := optionalTime(request.GetString("start", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start: %v", err)), nil
	}
	end, err := optionalTime(request.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end: %v", err)), nil
	}

	metrics, err := h.metrics.GetTeamMetrics(ctx, teamID, start, end)
	return result(metrics, err)
}

func (h *toolHandler) handleSprintMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sprintID, errResult := requireID(request, "sprint_id")
	if errResult != nil {
		return errResult, nil
	}
	metrics, err := h.metrics.GetSprintMetrics(ctx, sprintID)
	return result(metrics, err)
}

func (h *toolHandler) handleTaskMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, errResult := requireID(request, "task_id")
	if errResult != nil {
		return errResult, nil
	}
	metrics, err := h.metrics.GetTaskMetrics(ctx, taskID)
	return result(metrics, err)
}

func (h *toolHandler) handleWorkload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamID, errResult := requireID(request, "team_id")
	if errResult != nil {
		return errResult, nil
	}
	workload, err := h.metrics.GetTeamWorkload(ctx, teamID)
	return result(workload, err)
}

func (h *toolHandler) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamID, errResult := requireID(request, "team_id")
	if errResult != nil {
		return errResult, nil
	}
	period := models.ReportPeriod(request.GetString("period", string(models.PeriodWeek)))

	report, err := h.metrics.GenerateReport(ctx, teamID, period)
	return result(report, err)
}

func (h *toolHandler) handleEvaluateAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamID, errResult := requireID(request, "team_id")
	if errResult != nil {
		return errResult, nil
	}
	alerts, err := h.metrics.EvaluateTeamAlerts(ctx, teamID)
	return result(alerts, err)
}

func requireID(request mcp.CallToolRequest, key string) (uuid.UUID, *mcp.CallToolResult) {
	raw := request.GetString(key, "")
	if raw == "" {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("%s is required", key))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("invalid %s: %v", key, err))
	}
	return id, nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// result 业务错误以工具错误返回，调用方据此调整参数
func result(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err)), nil
		case errors.Is(err, service.ErrInvalidWindow), errors.Is(err, service.ErrInvalidPeriod):
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("metrics query failed: %v", err)), nil
		}
	}

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
