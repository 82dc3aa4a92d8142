package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// DefaultQueryTimeout 未指定时的单次查询超时
const DefaultQueryTimeout = 10 * time.Second

// TaskFilter 任务查询条件
type TaskFilter struct {
	TeamID      uuid.UUID
	SprintID    *uuid.UUID
	Statuses    []models.TaskStatus
	UpdatedFrom *time.Time
	UpdatedTo   *time.Time
	WithHistory bool
}

// SprintFilter 迭代查询条件，EndFrom/EndTo 作用于结束日期
type SprintFilter struct {
	TeamID   uuid.UUID
	Statuses []models.SprintStatus
	EndFrom  *time.Time
	EndTo    *time.Time
	Limit    int
}

// DataReader 只读数据访问接口
type DataReader interface {
	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	GetSprint(ctx context.Context, sprintID uuid.UUID) (*models.Sprint, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	ListSprints(ctx context.Context, filter SprintFilter) ([]models.Sprint, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	ListTeamIDs(ctx context.Context) ([]uuid.UUID, error)
}

// gormDataReader 基于GORM的只读实现
type gormDataReader struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewDataReader 创建数据读取器，每次查询受 timeout 限制
func NewDataReader(db *gorm.DB, timeout time.Duration) DataReader {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &gormDataReader{db: db, timeout: timeout}
}

func (r *gormDataReader) query(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(ctx), cancel
}

func orderedHistory(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

// GetTeam 获取团队及全部成员记录
func (r *gormDataReader) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	var team models.Team
	if err := db.Preload("Members").First(&team, "id = ?", teamID).Error; err != nil {
		return nil, translateError("get team", err)
	}
	return &team, nil
}

// GetSprint 获取迭代
func (r *gormDataReader) GetSprint(ctx context.Context, sprintID uuid.UUID) (*models.Sprint, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	var sprint models.Sprint
	if err := db.First(&sprint, "id = ?", sprintID).Error; err != nil {
		return nil, translateError("get sprint", err)
	}
	return &sprint, nil
}

// GetTask 获取任务及其有序历史
func (r *gormDataReader) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	var task models.Task
	if err := db.Preload("History", orderedHistory).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, translateError("get task", err)
	}
	return &task, nil
}

// ListSprints 按条件列出迭代，按结束日期升序
func (r *gormDataReader) ListSprints(ctx context.Context, filter SprintFilter) ([]models.Sprint, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	query := db.Model(&models.Sprint{}).Where("team_id = ?", filter.TeamID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.EndFrom != nil {
		query = query.Where("end_date >= ?", *filter.EndFrom)
	}
	if filter.EndTo != nil {
		query = query.Where("end_date <= ?", *filter.EndTo)
	}
	if filter.Limit > 0 {
		// 取最近的N个，再在内存中恢复升序
		query = query.Order("end_date DESC").Limit(filter.Limit)
	} else {
		query = query.Order("end_date ASC")
	}

	var sprints []models.Sprint
	if err := query.Find(&sprints).Error; err != nil {
		return nil, translateError("list sprints", err)
	}

	if filter.Limit > 0 {
		for i, j := 0, len(sprints)-1; i < j; i, j = i+1, j-1 {
			sprints[i], sprints[j] = sprints[j], sprints[i]
		}
	}
	return sprints, nil
}

// ListTasks 按条件列出任务
func (r *gormDataReader) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	query := db.Model(&models.Task{}).Where("team_id = ?", filter.TeamID)
	if filter.SprintID != nil {
		query = query.Where("sprint_id = ?", *filter.SprintID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.UpdatedFrom != nil {
		query = query.Where("updated_at >= ?", *filter.UpdatedFrom)
	}
	if filter.UpdatedTo != nil {
		query = query.Where("updated_at <= ?", *filter.UpdatedTo)
	}
	if filter.WithHistory {
		query = query.Preload("History", orderedHistory)
	}

	var tasks []models.Task
	if err := query.Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, translateError("list tasks", err)
	}
	return tasks, nil
}

// ListTeamIDs 列出所有团队ID，供定时任务遍历
func (r *gormDataReader) ListTeamIDs(ctx context.Context) ([]uuid.UUID, error) {
	db, cancel := r.query(ctx)
	defer cancel()

	var ids []uuid.UUID
	if err := db.Model(&models.Team{}).Order("name ASC").Pluck("id", &ids).Error; err != nil {
		return nil, translateError("list team ids", err)
	}
	return ids, nil
}

// MigrateSourceSchema 创建源数据表，仅用于本地SQLite与测试
func MigrateSourceSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Team{},
		&models.TeamMember{},
		&models.Sprint{},
		&models.Task{},
		&models.TaskEvent{},
	)
}
