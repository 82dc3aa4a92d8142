package handler

import (
	"context"
	"errors"
	"strings"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/scheduler"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/service"
	"github.com/cloud-platform/team-metrics/shared/response"
)

// MetricsHandler 团队指标处理器
type MetricsHandler struct {
	metricsService service.MetricsService
	alertService   service.AlertService
	scheduler      scheduler.Scheduler
	alertStream    http.HandlerFunc
	logger         *zap.Logger
}

// NewMetricsHandler 创建指标处理器，scheduler 与 alertStream 可以为空
func NewMetricsHandler(
	metricsService service.MetricsService,
	alertService service.AlertService,
	sched scheduler.Scheduler,
	alertStream http.HandlerFunc,
	logger *zap.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		metricsService: metricsService,
		alertService:   alertService,
		scheduler:      sched,
		alertStream:    alertStream,
		logger:         logger,
	}
}

// RegisterRoutes 注册路由
func (h *MetricsHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	teams := v1.Group("/teams/:id")
	{
		teams.GET("/metrics", h.GetTeamMetrics)
		teams.DELETE("/metrics/cache", h.InvalidateTeam)
		teams.GET("/workload", h.GetTeamWorkload)
		teams.GET("/reports", h.GenerateReport)
		teams.GET("/sprints/:sprintId/report", h.GenerateSprintReport)
		teams.GET("/alerts", h.ListTeamAlerts)
		teams.POST("/alerts/check", h.CheckTeamAlerts)
	}

	sprints := v1.Group("/sprints/:id")
	{
		sprints.GET("/metrics", h.GetSprintMetrics)
		sprints.GET("/burndown", h.GetSprintBurndown)
		sprints.DELETE("/metrics/cache", h.InvalidateSprint)
	}

	tasks := v1.Group("/tasks/:id")
	{
		tasks.GET("/metrics", h.GetTaskMetrics)
		tasks.DELETE("/metrics/cache", h.InvalidateTask)
	}

	alerts := v1.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.GET("/:id", h.GetAlert)
		alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
		alerts.POST("/:id/resolve", h.ResolveAlert)
	}

	v1.GET("/pipelines", h.ListPipelines)
	v1.POST("/pipelines/:name/run", h.RunPipeline)

	if h.alertStream != nil {
		v1.GET("/ws/alerts", gin.WrapF(h.alertStream))
	}
}

// 指标接口

// GetTeamMetrics 获取团队指标
func (h *MetricsHandler) GetTeamMetrics(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}

	start, err := parseTime(c.Query("start"))
	if err != nil {
		response.BadRequest(c, "Invalid start time", err.Error())
		return
	}
	end, err := parseTime(c.Query("end"))
	if err != nil {
		response.BadRequest(c, "Invalid end time", err.Error())
		return
	}

	metrics, err := h.metricsService.GetTeamMetrics(c.Request.Context(), teamID, start, end)
	if err != nil {
		h.respondError(c, "获取团队指标失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Team metrics retrieved successfully", metrics)
}

// GetTeamWorkload 获取团队工作负载
func (h *MetricsHandler) GetTeamWorkload(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}

	workload, err := h.metricsService.GetTeamWorkload(c.Request.Context(), teamID)
	if err != nil {
		h.respondError(c, "获取团队工作负载失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Team workload retrieved successfully", workload)
}

// GetSprintMetrics 获取迭代指标
func (h *MetricsHandler) GetSprintMetrics(c *gin.Context) {
	sprintID, ok := parseID(c, "id", "Invalid sprint ID")
	if !ok {
		return
	}

	metrics, err := h.metricsService.GetSprintMetrics(c.Request.Context(), sprintID)
	if err != nil {
		h.respondError(c, "获取迭代指标失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Sprint metrics retrieved successfully", metrics)
}

// GetSprintBurndown 获取迭代燃尽图数据
func (h *MetricsHandler) GetSprintBurndown(c *gin.Context) {
	sprintID, ok := parseID(c, "id", "Invalid sprint ID")
	if !ok {
		return
	}

	metrics, err := h.metricsService.GetSprintMetrics(c.Request.Context(), sprintID)
	if err != nil {
		h.respondError(c, "获取燃尽图失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Sprint burndown retrieved successfully", metrics.Burndown)
}

// GetTaskMetrics 获取任务指标
func (h *MetricsHandler) GetTaskMetrics(c *gin.Context) {
	taskID, ok := parseID(c, "id", "Invalid task ID")
	if !ok {
		return
	}

	metrics, err := h.metricsService.GetTaskMetrics(c.Request.Context(), taskID)
	if err != nil {
		h.respondError(c, "获取任务指标失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Task metrics retrieved successfully", metrics)
}

// 报告接口

// GenerateReport 生成团队报告
func (h *MetricsHandler) GenerateReport(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}
	period := models.ReportPeriod(c.DefaultQuery("period", string(models.PeriodWeek)))

	report, err := h.metricsService.GenerateReport(c.Request.Context(), teamID, period)
	if err != nil {
		h.respondError(c, "生成团队报告失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Report generated successfully", report)
}

// GenerateSprintReport 生成迭代报告
func (h *MetricsHandler) GenerateSprintReport(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}
	sprintID, ok := parseID(c, "sprintId", "Invalid sprint ID")
	if !ok {
		return
	}

	report, err := h.metricsService.GenerateSprintReport(c.Request.Context(), teamID, sprintID)
	if err != nil {
		h.respondError(c, "生成迭代报告失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Sprint report generated successfully", report)
}

// 缓存接口

// InvalidateTeam 清除团队相关缓存
func (h *MetricsHandler) InvalidateTeam(c *gin.Context) {
	h.invalidate(c, "Invalid team ID", h.metricsService.InvalidateTeam)
}

// InvalidateSprint 清除迭代相关缓存
func (h *MetricsHandler) InvalidateSprint(c *gin.Context) {
	h.invalidate(c, "Invalid sprint ID", h.metricsService.InvalidateSprint)
}

// InvalidateTask 清除任务相关缓存
func (h *MetricsHandler) InvalidateTask(c *gin.Context) {
	h.invalidate(c, "Invalid task ID", h.metricsService.InvalidateTask)
}

func (h *MetricsHandler) invalidate(c *gin.Context, invalidMsg string, fn func(context.Context, uuid.UUID) (int64, error)) {
	id, ok := parseID(c, "id", invalidMsg)
	if !ok {
		return
	}

	deleted, err := fn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "清除缓存失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Cache invalidated successfully", gin.H{"deleted": deleted})
}

// 告警接口

type listAlertsQuery struct {
	TeamID string `form:"team_id" binding:"omitempty,uuid"`
	Status string `form:"status" binding:"omitempty,oneof=open acknowledged resolved"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AcknowledgeAlertRequest 确认告警请求
type AcknowledgeAlertRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" binding:"required,max=100"`
}

// ResolveAlertRequest 解决告警请求
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required,max=100"`
	Comment    string `json:"comment" binding:"max=1000"`
}

// ListAlerts 获取告警列表
func (h *MetricsHandler) ListAlerts(c *gin.Context) {
	var query listAlertsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	filter := repository.AlertFilter{Limit: query.Limit}
	if query.TeamID != "" {
		teamID := uuid.MustParse(query.TeamID)
		filter.TeamID = &teamID
	}
	if query.Status != "" {
		status := models.AlertStatus(query.Status)
		filter.Status = &status
	}

	h.listAlerts(c, filter)
}

// ListTeamAlerts 获取团队告警列表
func (h *MetricsHandler) ListTeamAlerts(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}

	var query listAlertsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters", err.Error())
		return
	}

	filter := repository.AlertFilter{TeamID: &teamID, Limit: query.Limit}
	if query.Status != "" {
		status := models.AlertStatus(query.Status)
		filter.Status = &status
	}

	h.listAlerts(c, filter)
}

func (h *MetricsHandler) listAlerts(c *gin.Context, filter repository.AlertFilter) {
	alerts, err := h.alertService.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "获取告警列表失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Alerts retrieved successfully", alerts)
}

// CheckTeamAlerts 立即评估团队告警
func (h *MetricsHandler) CheckTeamAlerts(c *gin.Context) {
	teamID, ok := parseID(c, "id", "Invalid team ID")
	if !ok {
		return
	}

	records, err := h.alertService.CheckTeam(c.Request.Context(), teamID)
	if err != nil {
		h.respondError(c, "评估团队告警失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Alerts evaluated successfully", records)
}

// GetAlert 获取告警详情
func (h *MetricsHandler) GetAlert(c *gin.Context) {
	alertID, ok := parseID(c, "id", "Invalid alert ID")
	if !ok {
		return
	}

	record, err := h.alertService.GetAlert(c.Request.Context(), alertID)
	if err != nil {
		h.respondError(c, "获取告警失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Alert retrieved successfully", record)
}

// AcknowledgeAlert 确认告警
func (h *MetricsHandler) AcknowledgeAlert(c *gin.Context) {
	alertID, ok := parseID(c, "id", "Invalid alert ID")
	if !ok {
		return
	}

	var req AcknowledgeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	record, err := h.alertService.Acknowledge(c.Request.Context(), alertID, req.AcknowledgedBy)
	if err != nil {
		h.respondError(c, "确认告警失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Alert acknowledged successfully", record)
}

// ResolveAlert 解决告警
func (h *MetricsHandler) ResolveAlert(c *gin.Context) {
	alertID, ok := parseID(c, "id", "Invalid alert ID")
	if !ok {
		return
	}

	var req ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	record, err := h.alertService.Resolve(c.Request.Context(), alertID, req.ResolvedBy, req.Comment)
	if err != nil {
		h.respondError(c, "解决告警失败", err)
		return
	}

	response.Success(c, http.StatusOK, "Alert resolved successfully", record)
}

// 流水线接口

// ListPipelines 获取定时流水线状态
func (h *MetricsHandler) ListPipelines(c *gin.Context) {
	states := []scheduler.PipelineState{}
	if h.scheduler != nil {
		states = h.scheduler.GetStatus()
	}
	response.Success(c, http.StatusOK, "Pipelines retrieved successfully", states)
}

// RunPipeline 立即执行一次流水线
func (h *MetricsHandler) RunPipeline(c *gin.Context) {
	if h.scheduler == nil {
		response.NotFound(c, "Scheduler is disabled")
		return
	}

	name := c.Param("name")
	err := h.scheduler.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrPipelineNotFound):
		response.NotFound(c, "Pipeline not found")
		return
	case errors.Is(err, scheduler.ErrPipelineRunning):
		response.Conflict(c, "Pipeline is already running", nil)
		return
	case err != nil:
		// 部分团队失败时仍返回状态，错误记录在 last_error 中
		h.logger.Warn("流水线执行失败", zap.String("pipeline", name), zap.Error(err))
	}

	for _, state := range h.scheduler.GetStatus() {
		if state.Name == name {
			response.Success(c, http.StatusOK, "Pipeline executed", state)
			return
		}
	}
	response.NotFound(c, "Pipeline not found")
}

// respondError 将服务层错误映射为HTTP状态码
func (h *MetricsHandler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidWindow), errors.Is(err, service.ErrInvalidPeriod):
		response.BadRequest(c, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, err.Error(), nil)
	case errors.Is(err, service.ErrDataUnavailable), errors.Is(err, service.ErrCacheUnavailable):
		h.logger.Warn(msg, zap.Error(err))
		response.ServiceUnavailable(c, "Metrics backend unavailable", err.Error())
	default:
		response.InternalError(c, h.logger, msg, err)
	}
}

func parseID(c *gin.Context, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, msg, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// parseTime 接受RFC3339时间或日期，空值表示不限
func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
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
