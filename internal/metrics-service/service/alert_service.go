package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/alert"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
)

// AlertService 告警检查与处理
type AlertService interface {
	CheckTeam(ctx context.Context, teamID uuid.UUID) ([]models.AlertRecord, error)
	ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]models.AlertRecord, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error)
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*models.AlertRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, by, comment string) (*models.AlertRecord, error)
}

type alertService struct {
	metrics MetricsService
	repo    repository.AlertRepository
	sink    alert.Sink
	router  alert.Router
	logger  *zap.Logger
	now     func() time.Time
}

// NewAlertService 创建告警服务，sink 为 nil 时只持久化不投递
func NewAlertService(metrics MetricsService, repo repository.AlertRepository, sink alert.Sink, router alert.Router, logger *zap.Logger) AlertService {
	return &alertService{
		metrics: metrics,
		repo:    repo,
		sink:    sink,
		router:  router,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckTeam 评估团队告警，持久化后投递
//
// 投递失败只记录日志，已保存的告警仍然返回。
func (s *alertService) CheckTeam(ctx context.Context, teamID uuid.UUID) ([]models.AlertRecord, error) {
	alerts, err := s.metrics.EvaluateTeamAlerts(ctx, teamID)
	if err != nil {
		return nil, err
	}

	records := make([]models.AlertRecord, 0, len(alerts))
	for _, a := range alerts {
		record, err := toRecord(a)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, &record); err != nil {
			return nil, fmt.Errorf("save alert: %w: %v", ErrDataUnavailable, err)
		}
		records = append(records, record)
	}

	if s.sink != nil && len(alerts) > 0 {
		if err := alert.Dispatch(ctx, s.sink, s.router, alerts); err != nil {
			s.logger.Warn("告警投递失败", zap.String("team_id", teamID.String()), zap.Error(err))
		}
	}
	return records, nil
}

func toRecord(a models.Alert) (models.AlertRecord, error) {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("encode alert metrics: %w", err)
	}
	return models.AlertRecord{
		TeamID:    a.TeamID,
		SprintID:  a.SprintID,
		Type:      a.Type,
		Severity:  a.Severity,
		Message:   a.Message,
		Metrics:   string(metrics),
		Status:    models.AlertStatusOpen,
		CreatedAt: a.Timestamp,
	}, nil
}

// ListAlerts 列出告警
func (s *alertService) ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]models.AlertRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, alertError("list alerts", err)
	}
	return records, nil
}

// GetAlert 获取告警
func (s *alertService) GetAlert(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, alertError("get alert", err)
	}
	return record, nil
}

// Acknowledge 确认告警
func (s *alertService) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*models.AlertRecord, error) {
	if err := s.repo.Acknowledge(ctx, id, by, s.now().UTC()); err != nil {
		return nil, alertError("acknowledge alert", err)
	}
	return s.GetAlert(ctx, id)
}

// Resolve 解决告警
func (s *alertService) Resolve(ctx context.Context, id uuid.UUID, by, comment string) (*models.AlertRecord, error) {
	if err := s.repo.Resolve(ctx, id, by, comment, s.now().UTC()); err != nil {
		return nil, alertError("resolve alert", err)
	}
	return s.GetAlert(ctx, id)
}

func alertError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrInvalidTransition):
		return fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrDataUnavailable, err)
	}
}
