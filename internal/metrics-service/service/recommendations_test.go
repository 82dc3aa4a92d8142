package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

func healthyTeam() models.TeamMetrics {
	return models.TeamMetrics{
		Velocity:   models.VelocityMetrics{Average: 40, Variability: 10, SprintCount: 4},
		Quality:    models.QualityMetrics{QualityScore: 90, ReworkRate: 5, CompletedTasks: 20},
		Efficiency: models.EfficiencyMetrics{WorkInProgress: 3},
		Health:     models.HealthMetrics{Satisfaction: 85, ActiveMembers: 4},
	}
}

func TestGenerateRecommendations(t *testing.T) {
	policy := DefaultRecommendationPolicy()

	tests := []struct {
		name     string
		mutate   func(m *models.TeamMetrics)
		wantType models.RecommendationType
		wantSev  models.Severity
	}{
		{"质量分偏低", func(m *models.TeamMetrics) { m.Quality.QualityScore = 55 }, models.RecommendationQuality, models.SeverityMedium},
		{"返工率过高", func(m *models.TeamMetrics) { m.Quality.ReworkRate = 40 }, models.RecommendationQuality, models.SeverityHigh},
		{"在制品过多", func(m *models.TeamMetrics) { m.Efficiency.WorkInProgress = 9 }, models.RecommendationEfficiency, models.SeverityMedium},
		{"满意度偏低", func(m *models.TeamMetrics) { m.Health.Satisfaction = 45 }, models.RecommendationTeamHealth, models.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := healthyTeam()
			tt.mutate(&m)

			recs := GenerateRecommendations(m, nil, policy)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantType, recs[0].Type)
			assert.Equal(t, tt.wantSev, recs[0].Severity)
		})
	}

	t.Run("健康团队没有建议", func(t *testing.T) {
		assert.Empty(t, GenerateRecommendations(healthyTeam(), nil, policy))
	})

	t.Run("没有数据时不给出质量与满意度建议", func(t *testing.T) {
		assert.Empty(t, GenerateRecommendations(models.TeamMetrics{}, nil, policy))
	})

	t.Run("瓶颈沿用其严重程度", func(t *testing.T) {
		bottlenecks := []models.Bottleneck{
			{Status: "review", AverageHours: 80, Severity: models.SeverityHigh},
			{Status: "testing", AverageHours: 30, Severity: models.SeverityMedium},
		}
		recs := GenerateRecommendations(healthyTeam(), bottlenecks, policy)
		require.Len(t, recs, 2)
		assert.Equal(t, models.RecommendationProcess, recs[0].Type)
		assert.Equal(t, models.SeverityHigh, recs[0].Severity)
		assert.Contains(t, recs[0].Message, "review")
		assert.Equal(t, models.SeverityMedium, recs[1].Severity)
	})
}
