package service

import (
	"fmt"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// RecommendationPolicy 生成改进建议的阈值
type RecommendationPolicy struct {
	VelocityVariability float64 // 速度波动率上限（%）
	QualityScore        float64 // 质量分下限
	ReworkRate          float64 // 返工率上限（%）
	WIPPerMember        float64 // 人均在制品上限
	Satisfaction        float64 // 团队满意度下限
}

// DefaultRecommendationPolicy 默认建议阈值
func DefaultRecommendationPolicy() RecommendationPolicy {
	return RecommendationPolicy{
		VelocityVariability: 25,
		QualityScore:        70,
		ReworkRate:          30,
		WIPPerMember:        2,
		Satisfaction:        60,
	}
}

// GenerateRecommendations 根据团队指标与流程瓶颈生成改进建议
func GenerateRecommendations(m models.TeamMetrics, bottlenecks []models.Bottleneck, policy RecommendationPolicy) []models.Recommendation {
	recs := make([]models.Recommendation, 0)

	if m.Velocity.Variability > policy.VelocityVariability {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationVelocity,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("Velocity variability is %.1f%%. Stabilize sprint commitments and review estimation practice.",
				m.Velocity.Variability),
		})
	}

	if m.Quality.CompletedTasks > 0 && m.Quality.QualityScore < policy.QualityScore {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationQuality,
			Severity: models.SeverityMedium,
			Message: fmt.Sprintf("Quality score is %.1f. Increase test coverage and shorten review cycles.",
				m.Quality.QualityScore),
		})
	}

	if m.Quality.ReworkRate > policy.ReworkRate {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationQuality,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("%.1f%% of tasks were reworked. Clarify acceptance criteria before work starts.",
				m.Quality.ReworkRate),
		})
	}

	active := m.Health.ActiveMembers
	if active > 0 && float64(m.Efficiency.WorkInProgress) > policy.WIPPerMember*float64(active) {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationEfficiency,
			Severity: models.SeverityMedium,
			Message: fmt.Sprintf("%d tasks in progress for %d active members. Limit work in progress.",
				m.Efficiency.WorkInProgress, active),
		})
	}

	// 没有已完成迭代时满意度没有意义
	if m.Velocity.SprintCount > 0 && m.Health.Satisfaction < policy.Satisfaction {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationTeamHealth,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("Team satisfaction is %.1f%%. Review sprint scope and team stability.",
				m.Health.Satisfaction),
		})
	}

	for _, b := range bottlenecks {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationProcess,
			Severity: b.Severity,
			Message: fmt.Sprintf("Tasks spend %.1fh on average in %s. Investigate this stage.",
				b.AverageHours, b.Status),
		})
	}

	return recs
}
