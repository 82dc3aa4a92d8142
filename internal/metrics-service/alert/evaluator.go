// Package alert 根据阈值规则评估指标并生成告警
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/shared/config"
)

// Thresholds 告警阈值
type Thresholds struct {
	VelocityDrop    float64 // 相对历史平均的下降百分比
	ReworkRate      float64
	TestCoverage    float64
	ReviewTimeHours float64
	TeamHealth      float64
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		VelocityDrop:    20,
		ReworkRate:      30,
		TestCoverage:    80,
		ReviewTimeHours: 48,
		TeamHealth:      60,
	}
}

// ThresholdsFromConfig 从配置构建阈值
func ThresholdsFromConfig(cfg config.AlertsConfig) Thresholds {
	return Thresholds{
		VelocityDrop:    cfg.VelocityDrop,
		ReworkRate:      cfg.ReworkRate,
		TestCoverage:    cfg.TestCoverage,
		ReviewTimeHours: cfg.ReviewTimeHours,
		TeamHealth:      cfg.TeamHealth,
	}
}

// Snapshot 参与评估的指标，nil 字段表示数据缺失，相关规则跳过
type Snapshot struct {
	TeamID          uuid.UUID
	SprintID        *uuid.UUID
	Velocity        *float64
	ReworkRate      *float64
	TestCoverage    *float64
	ReviewTimeHours *float64
	TeamHealth      *float64
}

// Float 取地址的便捷函数
func Float(v float64) *float64 {
	return &v
}

// SnapshotFromTeam 由团队指标包构建快照
//
// 没有已完成任务时质量类指标视为缺失，没有已完成迭代时速度与健康度视为缺失。
func SnapshotFromTeam(m models.TeamMetrics) Snapshot {
	snap := Snapshot{TeamID: m.TeamID}
	if m.Velocity.SprintCount > 0 {
		snap.Velocity = Float(m.Velocity.Average)
		snap.TeamHealth = Float(m.Health.Satisfaction)
	}
	if m.Quality.CompletedTasks > 0 {
		snap.ReworkRate = Float(m.Quality.ReworkRate)
		snap.TestCoverage = Float(m.Quality.TestCoverage)
		snap.ReviewTimeHours = Float(m.Quality.AvgReviewTimeHours)
	}
	return snap
}

// SnapshotFromSprint 由迭代指标包构建快照
func SnapshotFromSprint(m models.SprintMetrics) Snapshot {
	sprintID := m.SprintID
	snap := Snapshot{
		TeamID:     m.TeamID,
		SprintID:   &sprintID,
		Velocity:   Float(m.Velocity),
		TeamHealth: Float(m.TeamSatisfaction),
	}
	if m.Quality.CompletedTasks > 0 {
		snap.ReworkRate = Float(m.Quality.ReworkRate)
		snap.TestCoverage = Float(m.Quality.TestCoverage)
		snap.ReviewTimeHours = Float(m.Quality.AvgReviewTimeHours)
	}
	return snap
}

// Evaluator 告警评估器，无状态，可并发使用
type Evaluator struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewEvaluator 创建评估器
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds, now: time.Now}
}

// Thresholds 当前使用的阈值
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate 依次检查速度、返工率、测试覆盖率、评审时长、团队健康度
//
// baseline 提供历史平均速度，为 nil 或其速度不大于0时跳过速度下降规则。
func (e *Evaluator) Evaluate(current Snapshot, baseline *Snapshot) []models.Alert {
	alerts := make([]models.Alert, 0)
	now := e.now().UTC()

	emit := func(alertType models.AlertType, severity models.Severity, message string, metrics map[string]float64) {
		alerts = append(alerts, models.Alert{
			Type:      alertType,
			Severity:  severity,
			Message:   message,
			Metrics:   metrics,
			TeamID:    current.TeamID,
			SprintID:  current.SprintID,
			Timestamp: now,
		})
	}

	if current.Velocity != nil && baseline != nil && baseline.Velocity != nil && *baseline.Velocity > 0 {
		historical := *baseline.Velocity
		drop := (historical - *current.Velocity) / historical * 100
		if drop > e.thresholds.VelocityDrop {
			emit(models.AlertVelocityDrop, models.SeverityHigh,
				fmt.Sprintf("Velocity dropped by %.1f%%", drop),
				map[string]float64{
					"current_velocity":    *current.Velocity,
					"historical_velocity": historical,
					"drop_percent":        drop,
				})
		}
	}

	if current.ReworkRate != nil && *current.ReworkRate > e.thresholds.ReworkRate {
		emit(models.AlertHighReworkRate, models.SeverityHigh,
			fmt.Sprintf("High rework rate detected: %.1f%%", *current.ReworkRate),
			map[string]float64{"rework_rate": *current.ReworkRate, "threshold": e.thresholds.ReworkRate})
	}

	if current.TestCoverage != nil && *current.TestCoverage < e.thresholds.TestCoverage {
		emit(models.AlertLowTestCoverage, models.SeverityMedium,
			fmt.Sprintf("Test coverage below threshold: %.1f%%", *current.TestCoverage),
			map[string]float64{"test_coverage": *current.TestCoverage, "threshold": e.thresholds.TestCoverage})
	}

	if current.ReviewTimeHours != nil && *current.ReviewTimeHours > e.thresholds.ReviewTimeHours {
		emit(models.AlertReviewTimeExceeded, models.SeverityMedium,
			fmt.Sprintf("Code review time exceeded: %.1fh", *current.ReviewTimeHours),
			map[string]float64{"review_time_hours": *current.ReviewTimeHours, "threshold": e.thresholds.ReviewTimeHours})
	}

	if current.TeamHealth != nil && *current.TeamHealth < e.thresholds.TeamHealth {
		emit(models.AlertTeamHealthCritical, models.SeverityMedium,
			fmt.Sprintf("Team health below threshold: %.1f%%", *current.TeamHealth),
			map[string]float64{"team_health": *current.TeamHealth, "threshold": e.thresholds.TeamHealth})
	}

	return alerts
}
