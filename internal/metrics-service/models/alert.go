package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity 严重程度
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank 用于排序，数值越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Emoji 通知消息中使用的标识
func (s Severity) Emoji() string {
	switch s {
	case SeverityHigh:
		return "🚨"
	case SeverityMedium:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// AlertType 告警类型
type AlertType string

const (
	AlertVelocityDrop       AlertType = "velocity_drop"
	AlertHighReworkRate     AlertType = "high_rework_rate"
	AlertLowTestCoverage    AlertType = "low_test_coverage"
	AlertReviewTimeExceeded AlertType = "review_time_exceeded"
	AlertTeamHealthCritical AlertType = "team_health_critical"
)

// Alert 告警，评估产生后不再修改
type Alert struct {
	Type      AlertType          `json:"type"`
	Severity  Severity           `json:"severity"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics"`
	TeamID    uuid.UUID          `json:"team_id"`
	SprintID  *uuid.UUID         `json:"sprint_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// AlertStatus 告警处理状态
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// AlertRecord 持久化的告警
type AlertRecord struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	TeamID            uuid.UUID   `db:"team_id" json:"team_id"`
	SprintID          *uuid.UUID  `db:"sprint_id" json:"sprint_id,omitempty"`
	Type              AlertType   `db:"type" json:"type"`
	Severity          Severity    `db:"severity" json:"severity"`
	Message           string      `db:"message" json:"message"`
	Metrics           string      `db:"metrics" json:"metrics"`
	Status            AlertStatus `db:"status" json:"status"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	AcknowledgedAt    *time.Time  `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy    *string     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy        *string     `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionComment *string     `db:"resolution_comment" json:"resolution_comment,omitempty"`
}
