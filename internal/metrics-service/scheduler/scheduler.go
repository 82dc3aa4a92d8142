// Package scheduler 周期性执行报告生成与告警检查流水线
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/shared/config"
)

const (
	PipelineWeeklyReport = "weekly_report"
	PipelineAlertCheck   = "alert_check"

	teamConcurrency = 4
)

var (
	ErrPipelineNotFound = errors.New("pipeline not found")
	ErrPipelineRunning  = errors.New("pipeline is already running")
)

// PipelineStatus 流水线状态
type PipelineStatus string

const (
	PipelineIdle    PipelineStatus = "idle"
	PipelineRunning PipelineStatus = "running"
	PipelineFailed  PipelineStatus = "failed"
)

// TeamFunc 针对单个团队执行的流水线步骤
type TeamFunc func(ctx context.Context, teamID uuid.UUID) error

// Pipeline 定时流水线定义
type Pipeline struct {
	Name     string
	Interval time.Duration
	Run      TeamFunc
}

// PipelineState 流水线运行状态
type PipelineState struct {
	Name       string         `json:"name"`
	Interval   string         `json:"interval"`
	Status     PipelineStatus `json:"status"`
	LastRun    *time.Time     `json:"last_run,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	RunCount   int64          `json:"run_count"`
	ErrorCount int64          `json:"error_count"`
}

// TeamSource 提供需要处理的团队列表
type TeamSource interface {
	ListTeamIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Scheduler 流水线调度器
type Scheduler interface {
	Register(pipeline Pipeline) error
	Start(ctx context.Context) error
	Stop() error
	RunNow(ctx context.Context, name string) error
	GetStatus() []PipelineState
}

type registered struct {
	pipeline Pipeline
	state    PipelineState
}

type pipelineScheduler struct {
	teams    TeamSource
	teamIDs  []uuid.UUID
	deadline time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	pipelines map[string]*registered
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler 创建调度器，配置了团队列表时不再查询数据源
func NewScheduler(cfg config.SchedulerConfig, teams TeamSource, logger *zap.Logger) (Scheduler, error) {
	teamIDs := make([]uuid.UUID, 0, len(cfg.TeamIDs))
	for _, raw := range cfg.TeamIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid team id %q: %w", raw, err)
		}
		teamIDs = append(teamIDs, id)
	}

	return &pipelineScheduler{
		teams:     teams,
		teamIDs:   teamIDs,
		deadline:  cfg.PipelineRunDeadline,
		logger:    logger,
		pipelines: make(map[string]*registered),
	}, nil
}

func (s *pipelineScheduler) Register(pipeline Pipeline) error {
	if pipeline.Name == "" || pipeline.Run == nil {
		return fmt.Errorf("pipeline requires a name and a run function")
	}
	if pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline %s: interval must be positive", pipeline.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot register pipeline %s while scheduler is running", pipeline.Name)
	}
	if _, exists := s.pipelines[pipeline.Name]; exists {
		return fmt.Errorf("pipeline %s already registered", pipeline.Name)
	}

	s.pipelines[pipeline.Name] = &registered{
		pipeline: pipeline,
		state: PipelineState{
			Name:     pipeline.Name,
			Interval: pipeline.Interval.String(),
			Status:   PipelineIdle,
		},
	}
	return nil
}

func (s *pipelineScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}

	s.logger.Info("启动流水线调度器", zap.Int("pipelines", len(s.pipelines)))

	s.isRunning = true
	s.stopCh = make(chan struct{})
	for name, entry := range s.pipelines {
		s.wg.Add(1)
		go s.loop(ctx, name, entry.pipeline.Interval)
	}
	return nil
}

func (s *pipelineScheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	close(s.stopCh)
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("流水线调度器已停止")
	return nil
}

func (s *pipelineScheduler) loop(ctx context.Context, name string, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.RunNow(ctx, name); err != nil && !errors.Is(err, ErrPipelineRunning) {
				s.logger.Warn("流水线执行失败", zap.String("pipeline", name), zap.Error(err))
			}
		}
	}
}

// RunNow 立即执行一次流水线，单个团队失败不影响其他团队
func (s *pipelineScheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.pipelines[name]
	if !ok {
		s.mu.Unlock()
		return ErrPipelineNotFound
	}
	if entry.state.Status == PipelineRunning {
		s.mu.Unlock()
		return ErrPipelineRunning
	}
	entry.state.Status = PipelineRunning
	s.mu.Unlock()

	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	started := time.Now()
	err := s.execute(ctx, entry.pipeline)

	s.mu.Lock()
	entry.state.LastRun = &started
	entry.state.RunCount++
	if err != nil {
		entry.state.Status = PipelineFailed
		entry.state.ErrorCount++
		entry.state.LastError = err.Error()
	} else {
		entry.state.Status = PipelineIdle
		entry.state.LastError = ""
	}
	s.mu.Unlock()

	s.logger.Info("流水线执行完成",
		zap.String("pipeline", name),
		zap.Duration("duration", time.Since(started)),
		zap.Bool("success", err == nil))

	return err
}

func (s *pipelineScheduler) execute(ctx context.Context, pipeline Pipeline) error {
	teamIDs, err := s.resolveTeams(ctx)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(teamConcurrency)
	for _, teamID := range teamIDs {
		g.Go(func() error {
			if err := pipeline.Run(ctx, teamID); err != nil {
				s.logger.Warn("团队流水线步骤失败",
					zap.String("pipeline", pipeline.Name),
					zap.String("team_id", teamID.String()),
					zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("team %s: %w", teamID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *pipelineScheduler) resolveTeams(ctx context.Context) ([]uuid.UUID, error) {
	if len(s.teamIDs) > 0 {
		return s.teamIDs, nil
	}
	if s.teams == nil {
		return nil, nil
	}
	return s.teams.ListTeamIDs(ctx)
}

func (s *pipelineScheduler) GetStatus() []PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]PipelineState, 0, len(s.pipelines))
	for _, entry := range s.pipelines {
		state := entry.state
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// ReportGenerator 报告生成接口
type ReportGenerator interface {
	GenerateReport(ctx context.Context, teamID uuid.UUID, period models.ReportPeriod) (*models.Report, error)
}

// ReportPublisher 报告发布接口
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *models.Report) error
}

// AlertChecker 告警检查接口
type AlertChecker interface {
	CheckTeam(ctx context.Context, teamID uuid.UUID) ([]models.AlertRecord, error)
}

// WeeklyReportPipeline 生成周报并发布到报告频道
func WeeklyReportPipeline(generator ReportGenerator, publisher ReportPublisher, every time.Duration) Pipeline {
	return Pipeline{
		Name:     PipelineWeeklyReport,
		Interval: every,
		Run: func(ctx context.Context, teamID uuid.UUID) error {
			report, err := generator.GenerateReport(ctx, teamID, models.PeriodWeek)
			if err != nil {
				return err
			}
			return publisher.PublishReport(ctx, report)
		},
	}
}

// AlertCheckPipeline 评估并持久化团队告警
func AlertCheckPipeline(checker AlertChecker, every time.Duration) Pipeline {
	return Pipeline{
		Name:     PipelineAlertCheck,
		Interval: every,
		Run: func(ctx context.Context, teamID uuid.UUID) error {
			_, err := checker.CheckTeam(ctx, teamID)
			return err
		},
	}
}
