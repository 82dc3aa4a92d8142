package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/alert"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/calculator"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
	"github.com/cloud-platform/team-metrics/shared/cache"
	"github.com/cloud-platform/team-metrics/shared/config"
)

// MetricsService 指标聚合服务接口
type MetricsService interface {
	// 指标包
	GetTeamMetrics(ctx context.Context, teamID uuid.UUID, start, end *time.Time) (*models.TeamMetrics, error)
	GetSprintMetrics(ctx context.Context, sprintID uuid.UUID) (*models.SprintMetrics, error)
	GetTaskMetrics(ctx context.Context, taskID uuid.UUID) (*models.TaskMetrics, error)
	GetTeamWorkload(ctx context.Context, teamID uuid.UUID) (*models.TeamWorkload, error)

	// 报告
	GenerateReport(ctx context.Context, teamID uuid.UUID, period models.ReportPeriod) (*models.Report, error)
	GenerateSprintReport(ctx context.Context, teamID, sprintID uuid.UUID) (*models.SprintReport, error)

	// 告警
	EvaluateTeamAlerts(ctx context.Context, teamID uuid.UUID) ([]models.Alert, error)

	// 缓存失效
	InvalidateTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
	InvalidateSprint(ctx context.Context, sprintID uuid.UUID) (int64, error)
	InvalidateTask(ctx context.Context, taskID uuid.UUID) (int64, error)
}

// Options 聚合与缓存策略
type Options struct {
	VelocityWindow  int
	CachePrefix     string
	TeamTTL         time.Duration // 团队指标与工作负载
	AnalysisTTL     time.Duration // 迭代与任务分析
	ReportTTL       time.Duration // 周期报告
	SprintReportTTL time.Duration
	Recommendations RecommendationPolicy
	Recorder        CacheRecorder // 可选，统计缓存命中
}

// CacheRecorder 缓存命中统计
type CacheRecorder interface {
	RecordCacheHit(kind string, hit bool)
}

// DefaultOptions 默认策略
func DefaultOptions() Options {
	return Options{
		VelocityWindow:  calculator.DefaultVelocityWindow,
		CachePrefix:     "metrics",
		TeamTTL:         15 * time.Minute,
		AnalysisTTL:     time.Hour,
		ReportTTL:       24 * time.Hour,
		SprintReportTTL: 7 * 24 * time.Hour,
		Recommendations: DefaultRecommendationPolicy(),
	}
}

// OptionsFromConfig 从配置构建策略
func OptionsFromConfig(cfg config.MetricsConfig) Options {
	opts := DefaultOptions()
	opts.VelocityWindow = cfg.VelocityWindow
	opts.CachePrefix = cfg.CachePrefix
	opts.TeamTTL = cfg.TeamWorkloadTTL
	opts.AnalysisTTL = cfg.AnalysisTTL
	opts.ReportTTL = cfg.HistoricalReportTTL
	opts.SprintReportTTL = cfg.SprintReportTTL
	opts.Recommendations.VelocityVariability = cfg.RecommendationVariability
	return opts
}

// metricsService 指标聚合服务实现
type metricsService struct {
	reader    repository.DataReader
	store     cache.Store
	evaluator *alert.Evaluator
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewMetricsService 创建指标聚合服务
func NewMetricsService(reader repository.DataReader, store cache.Store, evaluator *alert.Evaluator, opts Options, logger *zap.Logger) MetricsService {
	return &metricsService{
		reader:    reader,
		store:     store,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// cached 读取缓存，未命中、过期或缓存失败时计算并回写
//
// 缓存错误只记录日志，不影响结果；计算失败时不写缓存。
func cached[T any](ctx context.Context, s *metricsService, key string, ttl time.Duration, stale func(*T) bool, compute func() (*T, error)) (*T, error) {
	var hit T
	err := s.store.Get(ctx, key, &hit)
	switch {
	case err == nil:
		if stale == nil || !stale(&hit) {
			s.recordCache(key, true)
			return &hit, nil
		}
		s.logger.Debug("缓存数据已过期", zap.String("key", key))
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		s.logger.Warn("读取缓存失败，直接计算", zap.String("key", key), zap.Error(cacheError(err)))
	}

	s.recordCache(key, false)
	result, err := compute()
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, key, result, ttl); err != nil {
		s.logger.Warn("写入缓存失败", zap.String("key", key), zap.Error(cacheError(err)))
	}
	return result, nil
}

func (s *metricsService) recordCache(key string, hit bool) {
	if s.opts.Recorder == nil {
		return
	}
	kind := strings.TrimPrefix(key, s.opts.CachePrefix+":")
	kind, _, _ = strings.Cut(kind, ":")
	s.opts.Recorder.RecordCacheHit(kind, hit)
}

// teamData 一次团队计算所需的数据快照
type teamData struct {
	team    *models.Team
	sprints []models.Sprint
	tasks   []models.Task
}

// loadTeamData 并发加载团队、迭代与任务
func (s *metricsService) loadTeamData(ctx context.Context, teamID uuid.UUID, window models.Window) (*teamData, error) {
	data := &teamData{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		team, err := s.reader.GetTeam(gctx, teamID)
		if err != nil {
			return dataError("load team", err)
		}
		data.team = team
		return nil
	})
	g.Go(func() error {
		sprints, err := s.reader.ListSprints(gctx, repository.SprintFilter{
			TeamID:  teamID,
			EndFrom: window.Start,
			EndTo:   window.End,
		})
		if err != nil {
			return dataError("load sprints", err)
		}
		data.sprints = sprints
		return nil
	})
	g.Go(func() error {
		tasks, err := s.reader.ListTasks(gctx, repository.TaskFilter{
			TeamID:      teamID,
			UpdatedFrom: window.Start,
			UpdatedTo:   window.End,
			WithHistory: true,
		})
		if err != nil {
			return dataError("load tasks", err)
		}
		data.tasks = tasks
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// buildTeamMetrics 由数据快照计算团队指标包
func (s *metricsService) buildTeamMetrics(data *teamData, window models.Window, computedAt time.Time) *models.TeamMetrics {
	completed := calculator.CompletedSprints(data.sprints, s.opts.VelocityWindow)

	return &models.TeamMetrics{
		Kind:        models.BundleKindTeam,
		TeamID:      data.team.ID,
		Window:      window,
		Velocity:    calculator.Velocity(data.sprints, s.opts.VelocityWindow),
		Quality:     calculator.Quality(data.tasks),
		Efficiency:  calculator.Efficiency(data.tasks),
		Health:      calculator.TeamHealth(completed, data.team.Members),
		Trends:      calculator.SprintTrends(data.sprints, data.tasks, s.opts.VelocityWindow),
		LastUpdated: computedAt,
	}
}

func validateWindow(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// GetTeamMetrics 获取团队指标包，start/end 为空表示不限
func (s *metricsService) GetTeamMetrics(ctx context.Context, teamID uuid.UUID, start, end *time.Time) (*models.TeamMetrics, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}

	key := CacheKey(s.opts.CachePrefix, fnTeamMetrics, map[string]string{
		"team_id": teamID.String(),
		"start":   timeParam(start),
		"end":     timeParam(end),
	})

	return cached(ctx, s, key, s.opts.TeamTTL, nil, func() (*models.TeamMetrics, error) {
		loadedAt := s.now().UTC()
		window := models.Window{Start: start, End: end}

		data, err := s.loadTeamData(ctx, teamID, window)
		if err != nil {
			return nil, err
		}

		s.logger.Debug("计算团队指标", zap.String("team_id", teamID.String()),
			zap.Int("sprints", len(data.sprints)), zap.Int("tasks", len(data.tasks)))
		return s.buildTeamMetrics(data, window, loadedAt), nil
	})
}

// GetSprintMetrics 获取迭代指标包，迭代更新时间晚于缓存时视为过期
func (s *metricsService) GetSprintMetrics(ctx context.Context, sprintID uuid.UUID) (*models.SprintMetrics, error) {
	loadedAt := s.now().UTC()

	sprint, err := s.reader.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, dataError("load sprint", err)
	}
	if !sprint.EndDate.After(sprint.StartDate) {
		return nil, fmt.Errorf("%w: sprint %s ends before it starts", ErrInvalidWindow, sprintID)
	}

	key := CacheKey(s.opts.CachePrefix, fnSprintMetrics, map[string]string{
		"sprint_id": sprintID.String(),
		"team_id":   sprint.TeamID.String(),
	})
	stale := func(m *models.SprintMetrics) bool {
		return sprint.UpdatedAt.After(m.LastUpdated)
	}

	return cached(ctx, s, key, s.opts.AnalysisTTL, stale, func() (*models.SprintMetrics, error) {
		var (
			tasks []models.Task
			team  *models.Team
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			tasks, err = s.reader.ListTasks(gctx, repository.TaskFilter{
				TeamID:      sprint.TeamID,
				SprintID:    &sprint.ID,
				WithHistory: true,
			})
			if err != nil {
				return dataError("load sprint tasks", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			team, err = s.reader.GetTeam(gctx, sprint.TeamID)
			if err != nil {
				return dataError("load team", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		return s.buildSprintMetrics(sprint, tasks, team, loadedAt), nil
	})
}

func (s *metricsService) buildSprintMetrics(sprint *models.Sprint, tasks []models.Task, team *models.Team, computedAt time.Time) *models.SprintMetrics {
	quality := calculator.Quality(tasks)
	completion := calculator.CompletionRate(sprint.PlannedPoints, sprint.CompletedPoints)
	stability, _, _ := calculator.Stability(team.Members)
	start, end := sprint.StartDate, sprint.EndDate

	return &models.SprintMetrics{
		Kind:             models.BundleKindSprint,
		SprintID:         sprint.ID,
		TeamID:           sprint.TeamID,
		Name:             sprint.Name,
		Status:           sprint.Status,
		Window:           models.Window{Start: &start, End: &end},
		PlannedPoints:    sprint.PlannedPoints,
		CompletedPoints:  sprint.CompletedPoints,
		CompletionRate:   completion,
		Velocity:         float64(sprint.CompletedPoints),
		QualityScore:     quality.QualityScore,
		TeamSatisfaction: calculator.Satisfaction(completion, stability),
		Quality:          quality,
		Efficiency:       calculator.Efficiency(tasks),
		Burndown:         calculator.Burndown(*sprint, tasks),
		LastUpdated:      computedAt,
	}
}

// GetTaskMetrics 获取任务指标包，任务更新时间晚于缓存时视为过期
func (s *metricsService) GetTaskMetrics(ctx context.Context, taskID uuid.UUID) (*models.TaskMetrics, error) {
	loadedAt := s.now().UTC()

	task, err := s.reader.GetTask(ctx, taskID)
	if err != nil {
		return nil, dataError("load task", err)
	}

	key := CacheKey(s.opts.CachePrefix, fnTaskMetrics, map[string]string{
		"task_id": taskID.String(),
		"team_id": task.TeamID.String(),
	})
	stale := func(m *models.TaskMetrics) bool {
		return task.UpdatedAt.After(m.LastUpdated)
	}

	return cached(ctx, s, key, s.opts.AnalysisTTL, stale, func() (*models.TaskMetrics, error) {
		metrics := calculator.TaskMetrics(*task)
		metrics.LastUpdated = loadedAt
		return &metrics, nil
	})
}

// GetTeamWorkload 获取团队未完成任务的分配情况
func (s *metricsService) GetTeamWorkload(ctx context.Context, teamID uuid.UUID) (*models.TeamWorkload, error) {
	key := CacheKey(s.opts.CachePrefix, fnTeamWorkload, map[string]string{"team_id": teamID.String()})

	return cached(ctx, s, key, s.opts.TeamTTL, nil, func() (*models.TeamWorkload, error) {
		loadedAt := s.now().UTC()

		if _, err := s.reader.GetTeam(ctx, teamID); err != nil {
			return nil, dataError("load team", err)
		}
		tasks, err := s.reader.ListTasks(ctx, repository.TaskFilter{
			TeamID: teamID,
			Statuses: []models.TaskStatus{
				models.TaskStatusBacklog,
				models.TaskStatusTodo,
				models.TaskStatusInProgress,
				models.TaskStatusInReview,
				models.TaskStatusBlocked,
			},
		})
		if err != nil {
			return nil, dataError("load open tasks", err)
		}

		workload := calculator.Workload(tasks)
		workload.TeamID = teamID
		workload.LastUpdated = loadedAt
		return &workload, nil
	})
}

// GenerateReport 生成周期报告，窗口为截至当前的一周、一月或一季度
func (s *metricsService) GenerateReport(ctx context.Context, teamID uuid.UUID, period models.ReportPeriod) (*models.Report, error) {
	span, ok := period.Duration()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	key := CacheKey(s.opts.CachePrefix, fnReport, map[string]string{
		"team_id": teamID.String(),
		"period":  string(period),
	})

	return cached(ctx, s, key, s.opts.ReportTTL, nil, func() (*models.Report, error) {
		end := s.now().UTC()
		start := end.Add(-span)
		window := models.Window{Start: &start, End: &end}

		data, err := s.loadTeamData(ctx, teamID, window)
		if err != nil {
			return nil, err
		}

		details := s.buildTeamMetrics(data, window, end)
		bottlenecks := calculator.Bottlenecks(data.tasks)

		points := 0
		for _, t := range data.tasks {
			if t.IsDone() {
				points += t.StoryPoints
			}
		}

		s.logger.Info("生成周期报告",
			zap.String("team_id", teamID.String()),
			zap.String("period", string(period)),
			zap.Int("bottlenecks", len(bottlenecks)))

		return &models.Report{
			TeamID: teamID,
			Period: period,
			Window: window,
			Summary: models.ReportSummary{
				AverageVelocity:      details.Velocity.Average,
				CompletionRate:       details.Health.CompletionRate,
				QualityScore:         details.Quality.QualityScore,
				TasksCompleted:       details.Quality.CompletedTasks,
				StoryPointsCompleted: points,
				AvgCycleTimeHours:    details.Efficiency.AvgCycleTimeHours,
				TeamSatisfaction:     details.Health.Satisfaction,
			},
			Details:         *details,
			Recommendations: GenerateRecommendations(*details, bottlenecks, s.opts.Recommendations),
			Trends:          calculator.ResampleTrends(data.tasks, calculator.GranularityFor(period)),
			Bottlenecks:     bottlenecks,
			GeneratedAt:     end,
		}, nil
	})
}

// GenerateSprintReport 生成迭代报告，包含该迭代的告警与改进建议
func (s *metricsService) GenerateSprintReport(ctx context.Context, teamID, sprintID uuid.UUID) (*models.SprintReport, error) {
	key := CacheKey(s.opts.CachePrefix, fnSprintReport, map[string]string{
		"team_id":   teamID.String(),
		"sprint_id": sprintID.String(),
	})

	return cached(ctx, s, key, s.opts.SprintReportTTL, nil, func() (*models.SprintReport, error) {
		sprint, err := s.GetSprintMetrics(ctx, sprintID)
		if err != nil {
			return nil, err
		}
		if sprint.TeamID != teamID {
			return nil, fmt.Errorf("sprint %s does not belong to team %s: %w", sprintID, teamID, ErrNotFound)
		}

		team, err := s.GetTeamMetrics(ctx, teamID, nil, nil)
		if err != nil {
			return nil, err
		}

		tasks, err := s.reader.ListTasks(ctx, repository.TaskFilter{
			TeamID:      teamID,
			SprintID:    &sprintID,
			WithHistory: true,
		})
		if err != nil {
			return nil, dataError("load sprint tasks", err)
		}
		bottlenecks := calculator.Bottlenecks(tasks)

		baseline := alert.SnapshotFromTeam(*team)
		alerts := s.evaluator.Evaluate(alert.SnapshotFromSprint(*sprint), &baseline)

		return &models.SprintReport{
			TeamID:          teamID,
			Sprint:          *sprint,
			Team:            *team,
			Alerts:          alerts,
			Recommendations: GenerateRecommendations(*team, bottlenecks, s.opts.Recommendations),
			Bottlenecks:     bottlenecks,
			GeneratedAt:     s.now().UTC(),
		}, nil
	})
}

// EvaluateTeamAlerts 以最近一个进行中或已完成迭代为当前值、团队平均速度为基线评估告警
//
// 质量与健康类规则使用团队整体指标；团队没有迭代时仅评估这些规则。
func (s *metricsService) EvaluateTeamAlerts(ctx context.Context, teamID uuid.UUID) ([]models.Alert, error) {
	team, err := s.GetTeamMetrics(ctx, teamID, nil, nil)
	if err != nil {
		return nil, err
	}

	current := alert.SnapshotFromTeam(*team)
	current.Velocity = nil

	latest, err := s.reader.ListSprints(ctx, repository.SprintFilter{
		TeamID: teamID,
		Statuses: []models.SprintStatus{
			models.SprintStatusActive,
			models.SprintStatusInProgress,
			models.SprintStatusCompleted,
		},
		Limit: 1,
	})
	if err != nil {
		return nil, dataError("load latest sprint", err)
	}
	if len(latest) > 0 {
		sprintID := latest[0].ID
		current.SprintID = &sprintID
		current.Velocity = alert.Float(float64(latest[0].CompletedPoints))
	}

	var baseline *alert.Snapshot
	if team.Velocity.SprintCount > 0 {
		baseline = &alert.Snapshot{TeamID: teamID, Velocity: alert.Float(team.Velocity.Average)}
	}

	alerts := s.evaluator.Evaluate(current, baseline)
	if len(alerts) > 0 {
		s.logger.Info("团队告警评估完成", zap.String("team_id", teamID.String()), zap.Int("alerts", len(alerts)))
	}
	return alerts, nil
}

func (s *metricsService) invalidate(ctx context.Context, param string, id uuid.UUID) (int64, error) {
	pattern := invalidationPattern(s.opts.CachePrefix, param, id.String())
	deleted, err := s.store.DeletePattern(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate %s: %w", pattern, cacheError(err))
	}
	s.logger.Debug("缓存已失效", zap.String("pattern", pattern), zap.Int64("deleted", deleted))
	return deleted, nil
}

// InvalidateTeam 删除团队相关的全部缓存
func (s *metricsService) InvalidateTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	return s.invalidate(ctx, "team_id", teamID)
}

// InvalidateSprint 删除迭代相关缓存
func (s *metricsService) InvalidateSprint(ctx context.Context, sprintID uuid.UUID) (int64, error) {
	return s.invalidate(ctx, "sprint_id", sprintID)
}

// InvalidateTask 删除任务相关缓存
func (s *metricsService) InvalidateTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	return s.invalidate(ctx, "task_id", taskID)
}
