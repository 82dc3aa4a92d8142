package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/shared/config"
)

func fixedEvaluator() *Evaluator {
	e := NewEvaluator(DefaultThresholds())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestEvaluate_VelocityDrop(t *testing.T) {
	e := fixedEvaluator()
	teamID := uuid.New()

	t.Run("下降50%产生高危告警", func(t *testing.T) {
		alerts := e.Evaluate(Snapshot{TeamID: teamID, Velocity: Float(50)}, &Snapshot{Velocity: Float(100)})
		require.Len(t, alerts, 1)
		assert.Equal(t, models.AlertVelocityDrop, alerts[0].Type)
		assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
		assert.Equal(t, "Velocity dropped by 50.0%", alerts[0].Message)
		assert.InDelta(t, 50.0, alerts[0].Metrics["drop_percent"], 1e-9)
		assert.Equal(t, teamID, alerts[0].TeamID)
	})

	t.Run("下降5%不告警", func(t *testing.T) {
		alerts := e.Evaluate(Snapshot{Velocity: Float(95)}, &Snapshot{Velocity: Float(100)})
		assert.Empty(t, alerts)
		assert.NotNil(t, alerts)
	})

	t.Run("历史速度为0或缺失时跳过", func(t *testing.T) {
		assert.Empty(t, e.Evaluate(Snapshot{Velocity: Float(10)}, &Snapshot{Velocity: Float(0)}))
		assert.Empty(t, e.Evaluate(Snapshot{Velocity: Float(10)}, nil))
		assert.Empty(t, e.Evaluate(Snapshot{}, &Snapshot{Velocity: Float(100)}))
	})
}

func TestEvaluate_RuleOrder(t *testing.T) {
	e := fixedEvaluator()
	sprintID := uuid.New()

	current := Snapshot{
		SprintID:        &sprintID,
		Velocity:        Float(30),
		ReworkRate:      Float(45),
		TestCoverage:    Float(55),
		ReviewTimeHours: Float(72),
		TeamHealth:      Float(40),
	}
	alerts := e.Evaluate(current, &Snapshot{Velocity: Float(60)})

	require.Len(t, alerts, 5)
	types := make([]models.AlertType, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.Type)
		assert.Equal(t, &sprintID, a.SprintID)
	}
	assert.Equal(t, []models.AlertType{
		models.AlertVelocityDrop,
		models.AlertHighReworkRate,
		models.AlertLowTestCoverage,
		models.AlertReviewTimeExceeded,
		models.AlertTeamHealthCritical,
	}, types)
	assert.Equal(t, models.SeverityMedium, alerts[3].Severity)
	assert.Equal(t, models.SeverityMedium, alerts[4].Severity)
	assert.Equal(t, "Test coverage below threshold: 55.0%", alerts[2].Message)
}

func TestEvaluate_ConfiguredThresholds(t *testing.T) {
	e := NewEvaluator(ThresholdsFromConfig(config.AlertsConfig{
		VelocityDrop:    50,
		ReworkRate:      10,
		TestCoverage:    90,
		ReviewTimeHours: 24,
		TeamHealth:      70,
	}))

	alerts := e.Evaluate(Snapshot{Velocity: Float(60), ReworkRate: Float(15)}, &Snapshot{Velocity: Float(100)})
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertHighReworkRate, alerts[0].Type)
}

func TestSnapshotFromTeam(t *testing.T) {
	t.Run("无数据时全部缺失", func(t *testing.T) {
		snap := SnapshotFromTeam(models.TeamMetrics{})
		assert.Nil(t, snap.Velocity)
		assert.Nil(t, snap.TestCoverage)
		assert.Nil(t, snap.TeamHealth)
		assert.Empty(t, fixedEvaluator().Evaluate(snap, nil))
	})

	t.Run("有已完成任务", func(t *testing.T) {
		snap := SnapshotFromTeam(models.TeamMetrics{
			Velocity: models.VelocityMetrics{Average: 42, SprintCount: 3},
			Quality:  models.QualityMetrics{CompletedTasks: 4, TestCoverage: 85, ReworkRate: 12},
			Health:   models.HealthMetrics{Satisfaction: 75},
		})
		require.NotNil(t, snap.Velocity)
		assert.Equal(t, 42.0, *snap.Velocity)
		assert.Equal(t, 85.0, *snap.TestCoverage)
		assert.Empty(t, fixedEvaluator().Evaluate(snap, nil))
	})
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Notify(ctx context.Context, channel string, alerts []models.Alert) error {
	args := m.Called(ctx, channel, alerts)
	return args.Error(0)
}

func TestDispatch(t *testing.T) {
	router := Router{AlertsChannel: "#alerts", TeamLeadsChannel: "#team-leads"}
	alerts := []models.Alert{
		{Type: models.AlertLowTestCoverage, Severity: models.SeverityMedium},
		{Type: models.AlertVelocityDrop, Severity: models.SeverityHigh},
		{Type: models.AlertTeamHealthCritical, Severity: models.SeverityMedium},
	}

	t.Run("按严重程度分组", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Notify", mock.Anything, "#team-leads", []models.Alert{alerts[0], alerts[2]}).Return(nil).Once()
		sink.On("Notify", mock.Anything, "#alerts", []models.Alert{alerts[1]}).Return(nil).Once()

		require.NoError(t, Dispatch(context.Background(), sink, router, alerts))
		sink.AssertExpectations(t)
	})

	t.Run("空列表不投递", func(t *testing.T) {
		sink := new(MockSink)
		require.NoError(t, Dispatch(context.Background(), sink, router, nil))
		sink.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("投递失败返回错误", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("webhook down"))

		err := Dispatch(context.Background(), sink, router, alerts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "#team-leads")
	})
}
