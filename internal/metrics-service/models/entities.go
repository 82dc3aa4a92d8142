package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "backlog"     // 待规划
	TaskStatusTodo       TaskStatus = "todo"        // 待处理
	TaskStatusInProgress TaskStatus = "in_progress" // 进行中
	TaskStatusInReview   TaskStatus = "in_review"   // 评审中
	TaskStatusBlocked    TaskStatus = "blocked"     // 阻塞
	TaskStatusDone       TaskStatus = "done"        // 已完成
)

// TaskType 任务类型
type TaskType string

const (
	TaskTypeFeature       TaskType = "feature"
	TaskTypeBug           TaskType = "bug"
	TaskTypeTechDebt      TaskType = "tech_debt"
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeResearch      TaskType = "research"
	TaskTypeMaintenance   TaskType = "maintenance"
)

// SprintStatus 迭代状态
type SprintStatus string

const (
	SprintStatusPlanning   SprintStatus = "planning"    // 规划中
	SprintStatusActive     SprintStatus = "active"      // 进行中
	SprintStatusInProgress SprintStatus = "in_progress" // 进行中（看板同步值）
	SprintStatusCompleted  SprintStatus = "completed"   // 已完成
	SprintStatusCancelled  SprintStatus = "cancelled"   // 已取消
)

// IsRunning 迭代是否正在进行
func (s SprintStatus) IsRunning() bool {
	return s == SprintStatusActive || s == SprintStatusInProgress
}

// HistoryFieldStatus 状态变更事件的字段名
const HistoryFieldStatus = "status"

// Team 团队
type Team struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name           string    `json:"name" gorm:"size:255;not null"`
	SlackChannelID *string   `json:"slack_channel_id" gorm:"size:100"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Members []TeamMember `json:"members,omitempty" gorm:"foreignKey:TeamID"`
}

// TableName 指定表名
func (Team) TableName() string {
	return "teams"
}

// BeforeCreate 创建前钩子
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TeamMember 团队成员关系，LeftAt 非空表示已离开团队
type TeamMember struct {
	ID       uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TeamID   uuid.UUID  `json:"team_id" gorm:"type:uuid;not null;index"`
	UserID   uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Role     string     `json:"role" gorm:"size:50;default:'member'"`
	JoinedAt time.Time  `json:"joined_at" gorm:"not null"`
	LeftAt   *time.Time `json:"left_at"`
}

// TableName 指定表名
func (TeamMember) TableName() string {
	return "team_members"
}

// BeforeCreate 创建前钩子
func (m *TeamMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsActive 成员当前是否在团队中
func (m TeamMember) IsActive() bool {
	return m.LeftAt == nil
}

// Sprint 迭代
type Sprint struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	TeamID          uuid.UUID      `json:"team_id" gorm:"type:uuid;not null;index"`
	Name            string         `json:"name" gorm:"size:255;not null"`
	Status          SprintStatus   `json:"status" gorm:"size:20;not null;default:'planning';index"`
	StartDate       time.Time      `json:"start_date" gorm:"not null"`
	EndDate         time.Time      `json:"end_date" gorm:"not null;index"`
	PlannedPoints   int            `json:"planned_points" gorm:"default:0"`
	CompletedPoints int            `json:"completed_points" gorm:"default:0"`
	Goals           datatypes.JSON `json:"goals"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Sprint) TableName() string {
	return "sprints"
}

// BeforeCreate 创建前钩子
func (s *Sprint) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Task 任务
type Task struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	TeamID      uuid.UUID      `json:"team_id" gorm:"type:uuid;not null;index"`
	SprintID    *uuid.UUID     `json:"sprint_id" gorm:"type:uuid;index"`
	AssigneeID  *uuid.UUID     `json:"assignee_id" gorm:"type:uuid;index"`
	Title       string         `json:"title" gorm:"size:500;not null"`
	Status      TaskStatus     `json:"status" gorm:"size:50;not null;default:'todo';index"`
	Type        TaskType       `json:"type" gorm:"size:50;not null;default:'feature'"`
	Priority    string         `json:"priority" gorm:"size:20;not null;default:'medium'"`
	StoryPoints int            `json:"story_points" gorm:"default:0"`
	DueDate     *time.Time     `json:"due_date"`
	Metrics     TaskMetricData `json:"metrics" gorm:"embedded;embeddedPrefix:metric_"`
	// 依赖的任务ID列表
	Dependencies datatypes.JSON `json:"dependencies"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	History []TaskEvent `json:"history,omitempty" gorm:"foreignKey:TaskID"`
}

// TaskMetricData 任务上采集的质量数据
type TaskMetricData struct {
	ReviewTimeHours  float64 `json:"review_time" gorm:"default:0"`
	BugCount         int     `json:"bug_count" gorm:"default:0"`
	TestCoverage     float64 `json:"test_coverage" gorm:"default:0"`
	ReviewComments   int     `json:"review_comments" gorm:"default:0"`
	TimeEstimate     float64 `json:"time_estimate" gorm:"default:0"`
	TimeSpent        float64 `json:"time_spent" gorm:"default:0"`
	CodeQualityScore float64 `json:"code_quality_score" gorm:"default:0"`
}

// TableName 指定表名
func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate 创建前钩子
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsDone 任务是否已完成
func (t Task) IsDone() bool {
	return t.Status == TaskStatusDone
}

// DependencyCount 依赖数量，无法解析时视为0
func (t Task) DependencyCount() int {
	if len(t.Dependencies) == 0 {
		return 0
	}
	var ids []string
	if err := json.Unmarshal(t.Dependencies, &ids); err != nil {
		return 0
	}
	return len(ids)
}

// TaskEvent 任务变更审计记录，只追加，按Sequence排序
type TaskEvent struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index:idx_task_event_seq,priority:1"`
	Sequence  int       `json:"sequence" gorm:"not null;index:idx_task_event_seq,priority:2"`
	Field     string    `json:"field" gorm:"size:100;not null"`
	OldValue  string    `json:"old_value" gorm:"size:255"`
	NewValue  string    `json:"new_value" gorm:"size:255"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
}

// TableName 指定表名
func (TaskEvent) TableName() string {
	return "task_events"
}

// BeforeCreate 创建前钩子
func (e *TaskEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsStatusChange 是否为状态变更事件
func (e TaskEvent) IsStatusChange() bool {
	return e.Field == HistoryFieldStatus
}
