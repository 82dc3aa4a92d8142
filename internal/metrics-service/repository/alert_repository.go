package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

const alertColumns = `id, team_id, sprint_id, type, severity, message, metrics, status, created_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_comment`

const alertSchema = `CREATE TABLE IF NOT EXISTS metrics_alerts (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	sprint_id TEXT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	metrics TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP NULL,
	acknowledged_by TEXT NULL,
	resolved_at TIMESTAMP NULL,
	resolved_by TEXT NULL,
	resolution_comment TEXT NULL
)`

const alertIndex = `CREATE INDEX IF NOT EXISTS idx_metrics_alerts_team_status ON metrics_alerts (team_id, status)`

// AlertFilter 告警查询条件
type AlertFilter struct {
	TeamID *uuid.UUID
	Status *models.AlertStatus
	Limit  int
}

// AlertRepository 告警持久化
type AlertRepository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, record *models.AlertRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error)
	List(ctx context.Context, filter AlertFilter) ([]models.AlertRecord, error)
	Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) error
	Resolve(ctx context.Context, id uuid.UUID, by, comment string, at time.Time) error
}

type sqlxAlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository 创建告警仓库
func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &sqlxAlertRepository{db: db}
}

// EnsureSchema 创建告警表（PostgreSQL与SQLite通用）
func (r *sqlxAlertRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, alertSchema); err != nil {
		return fmt.Errorf("failed to create metrics_alerts: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, alertIndex); err != nil {
		return fmt.Errorf("failed to create metrics_alerts index: %w", err)
	}
	return nil
}

// Create 写入告警，未设置的ID/状态/时间会被补全
func (r *sqlxAlertRepository) Create(ctx context.Context, record *models.AlertRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = models.AlertStatusOpen
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Metrics == "" {
		record.Metrics = "{}"
	}

	query := r.db.Rebind(`INSERT INTO metrics_alerts (id, team_id, sprint_id, type, severity, message, metrics, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.TeamID, record.SprintID, record.Type, record.Severity,
		record.Message, record.Metrics, record.Status, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Get 获取单个告警
func (r *sqlxAlertRepository) Get(ctx context.Context, id uuid.UUID) (*models.AlertRecord, error) {
	query := r.db.Rebind(`SELECT ` + alertColumns + ` FROM metrics_alerts WHERE id = ?`)

	var record models.AlertRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get alert %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &record, nil
}

// List 按条件列出告警，最新的在前
func (r *sqlxAlertRepository) List(ctx context.Context, filter AlertFilter) ([]models.AlertRecord, error) {
	query := `SELECT ` + alertColumns + ` FROM metrics_alerts WHERE 1=1`
	args := make([]interface{}, 0, 3)

	if filter.TeamID != nil {
		query += ` AND team_id = ?`
		args = append(args, *filter.TeamID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	records := make([]models.AlertRecord, 0)
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return records, nil
}

// Acknowledge 确认告警，仅open状态可确认
func (r *sqlxAlertRepository) Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	query := r.db.Rebind(`UPDATE metrics_alerts SET status = ?, acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ? AND status = ?`)

	result, err := r.db.ExecContext(ctx, query,
		models.AlertStatusAcknowledged, at, by, id, models.AlertStatusOpen)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return r.checkTransition(ctx, result, id)
}

// Resolve 解决告警，open与acknowledged状态均可解决
func (r *sqlxAlertRepository) Resolve(ctx context.Context, id uuid.UUID, by, comment string, at time.Time) error {
	query := r.db.Rebind(`UPDATE metrics_alerts SET status = ?, resolved_at = ?, resolved_by = ?, resolution_comment = ?
		WHERE id = ? AND status IN (?, ?)`)

	result, err := r.db.ExecContext(ctx, query,
		models.AlertStatusResolved, at, by, comment, id,
		models.AlertStatusOpen, models.AlertStatusAcknowledged)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return r.checkTransition(ctx, result, id)
}

// checkTransition 未更新任何行时区分告警不存在与状态不允许
func (r *sqlxAlertRepository) checkTransition(ctx context.Context, result sql.Result, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("alert %s: %w", id, ErrInvalidTransition)
}
