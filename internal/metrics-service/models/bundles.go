package models

import (
	"time"

	"github.com/google/uuid"
)

// BundleKind 指标包类型
type BundleKind string

const (
	BundleKindTeam   BundleKind = "team"
	BundleKindSprint BundleKind = "sprint"
	BundleKindTask   BundleKind = "task"
)

// Window 指标计算的时间窗口，nil 表示不限
type Window struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// VelocityMetrics 速度指标
//
// Trend = (最早速度 - 最新速度) / 迭代数，正值表示速度在下降。
type VelocityMetrics struct {
	Average          float64   `json:"average_velocity"`
	Variability      float64   `json:"velocity_variability"`
	Trend            float64   `json:"velocity_trend"`
	SprintVelocities []float64 `json:"sprint_velocities"`
	SprintCount      int       `json:"sprint_count"`
}

// QualityMetrics 质量指标，百分比字段取值 [0,100]
type QualityMetrics struct {
	QualityScore       float64 `json:"quality_score"`
	BugsCompleted      int     `json:"bugs_completed"`
	AvgReviewTimeHours float64 `json:"avg_review_time_hours"`
	TestCoverage       float64 `json:"test_coverage"`
	ReworkRate         float64 `json:"rework_rate"`
	AvgReworkCount     float64 `json:"avg_rework_count"`
	HighReworkTasks    int     `json:"high_rework_tasks"`
	CompletedTasks     int     `json:"completed_tasks"`
}

// EfficiencyMetrics 效率指标
type EfficiencyMetrics struct {
	AvgCycleTimeHours float64 `json:"avg_cycle_time_hours"`
	Throughput        float64 `json:"throughput_per_week"`
	WorkInProgress    int     `json:"work_in_progress"`
	CompletedTasks    int     `json:"completed_tasks"`
}

// HealthMetrics 团队健康度
type HealthMetrics struct {
	CompletionRate    float64 `json:"completion_rate"`
	Stability         float64 `json:"stability"`
	Satisfaction      float64 `json:"satisfaction"`
	ActiveMembers     int     `json:"active_members"`
	HistoricalMembers int     `json:"historical_members"`
}

// SprintTrends 按迭代排列的趋势序列，长度等于窗口内已完成迭代数
type SprintTrends struct {
	Velocity       []float64 `json:"velocity_trend"`
	CompletionRate []float64 `json:"completion_trend"`
	Quality        []float64 `json:"quality_trend"`
	Sprints        []string  `json:"sprints"`
}

// TeamMetrics 团队指标包
type TeamMetrics struct {
	Kind        BundleKind        `json:"kind"`
	TeamID      uuid.UUID         `json:"team_id"`
	Window      Window            `json:"window"`
	Velocity    VelocityMetrics   `json:"velocity"`
	Quality     QualityMetrics    `json:"quality"`
	Efficiency  EfficiencyMetrics `json:"efficiency"`
	Health      HealthMetrics     `json:"health"`
	Trends      SprintTrends      `json:"trends"`
	LastUpdated time.Time         `json:"last_updated"`
}

// BurndownSeries 燃尽图数据，三个数组长度一致
type BurndownSeries struct {
	Dates  []string  `json:"dates"`
	Ideal  []float64 `json:"ideal"`
	Actual []float64 `json:"actual"`
}

// SprintMetrics 迭代指标包
type SprintMetrics struct {
	Kind             BundleKind        `json:"kind"`
	SprintID         uuid.UUID         `json:"sprint_id"`
	TeamID           uuid.UUID         `json:"team_id"`
	Name             string            `json:"name"`
	Status           SprintStatus      `json:"status"`
	Window           Window            `json:"window"`
	PlannedPoints    int               `json:"planned_points"`
	CompletedPoints  int               `json:"completed_points"`
	CompletionRate   float64           `json:"completion_rate"`
	Velocity         float64           `json:"velocity"`
	QualityScore     float64           `json:"quality_score"`
	TeamSatisfaction float64           `json:"team_satisfaction"`
	Quality          QualityMetrics    `json:"quality"`
	Efficiency       EfficiencyMetrics `json:"efficiency"`
	Burndown         BurndownSeries    `json:"burndown"`
	LastUpdated      time.Time         `json:"last_updated"`
}

// TaskMetrics 任务指标包
type TaskMetrics struct {
	Kind           BundleKind         `json:"kind"`
	TaskID         uuid.UUID          `json:"task_id"`
	TeamID         uuid.UUID          `json:"team_id"`
	Status         TaskStatus         `json:"status"`
	CycleTimeHours float64            `json:"cycle_time_hours"`
	QualityScore   float64            `json:"quality_score"`
	Complexity     float64            `json:"complexity"`
	ReworkCount    int                `json:"rework_count"`
	TimeInStatus   map[string]float64 `json:"time_in_status"`
	LastUpdated    time.Time          `json:"last_updated"`
}

// AssigneeLoad 成员工作负载
type AssigneeLoad struct {
	AssigneeID  uuid.UUID `json:"assignee_id"`
	OpenTasks   int       `json:"open_tasks"`
	StoryPoints int       `json:"story_points"`
	InProgress  int       `json:"in_progress"`
	Blocked     int       `json:"blocked"`
}

// TeamWorkload 团队工作负载
type TeamWorkload struct {
	TeamID          uuid.UUID      `json:"team_id"`
	Assignees       []AssigneeLoad `json:"assignees"`
	Unassigned      int            `json:"unassigned"`
	ByStatus        map[string]int `json:"by_status"`
	ByType          map[string]int `json:"by_type"`
	OpenStoryPoints int            `json:"open_story_points"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// TrendSeries 按日期分桶的趋势，四个数组长度一致
type TrendSeries struct {
	VelocityTrend   []float64 `json:"velocity_trend"`
	QualityTrend    []float64 `json:"quality_trend"`
	EfficiencyTrend []float64 `json:"efficiency_trend"`
	Dates           []string  `json:"dates"`
}

// Bottleneck 流程瓶颈
type Bottleneck struct {
	Status       string   `json:"status"`
	AverageHours float64  `json:"average_hours"`
	TaskCount    int      `json:"task_count"`
	Severity     Severity `json:"severity"`
}

// RecommendationType 改进建议类型
type RecommendationType string

const (
	RecommendationVelocity   RecommendationType = "velocity"
	RecommendationQuality    RecommendationType = "quality"
	RecommendationEfficiency RecommendationType = "efficiency"
	RecommendationTeamHealth RecommendationType = "team_health"
	RecommendationProcess    RecommendationType = "process"
)

// Recommendation 改进建议
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Severity Severity           `json:"severity"`
	Message  string             `json:"message"`
}

// ReportPeriod 报告周期
type ReportPeriod string

const (
	PeriodWeek    ReportPeriod = "week"
	PeriodMonth   ReportPeriod = "month"
	PeriodQuarter ReportPeriod = "quarter"
)

// Duration 周期对应的时长
func (p ReportPeriod) Duration() (time.Duration, bool) {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour, true
	case PeriodMonth:
		return 30 * 24 * time.Hour, true
	case PeriodQuarter:
		return 90 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ReportSummary 报告摘要
type ReportSummary struct {
	AverageVelocity      float64 `json:"average_velocity"`
	CompletionRate       float64 `json:"completion_rate"`
	QualityScore         float64 `json:"quality_score"`
	TasksCompleted       int     `json:"tasks_completed"`
	StoryPointsCompleted int     `json:"story_points_completed"`
	AvgCycleTimeHours    float64 `json:"avg_cycle_time_hours"`
	TeamSatisfaction     float64 `json:"team_satisfaction"`
}

// Report 周期报告
type Report struct {
	TeamID          uuid.UUID        `json:"team_id"`
	Period          ReportPeriod     `json:"period"`
	Window          Window           `json:"window"`
	Summary         ReportSummary    `json:"summary"`
	Details         TeamMetrics      `json:"details"`
	Recommendations []Recommendation `json:"recommendations"`
	Trends          TrendSeries      `json:"trends"`
	Bottlenecks     []Bottleneck     `json:"bottlenecks"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// SprintReport 迭代报告
type SprintReport struct {
	TeamID          uuid.UUID        `json:"team_id"`
	Sprint          SprintMetrics    `json:"sprint"`
	Team            TeamMetrics      `json:"team"`
	Alerts          []Alert          `json:"alerts"`
	Recommendations []Recommendation `json:"recommendations"`
	Bottlenecks     []Bottleneck     `json:"bottlenecks"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
