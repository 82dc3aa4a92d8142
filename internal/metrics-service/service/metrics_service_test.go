package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/alert"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
	"github.com/cloud-platform/team-metrics/shared/cache"
)

// MockDataReader 数据读取器模拟
type MockDataReader struct {
	mock.Mock
}

func (m *MockDataReader) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Team), args.Error(1)
}

func (m *MockDataReader) GetSprint(ctx context.Context, sprintID uuid.UUID) (*models.Sprint, error) {
	args := m.Called(ctx, sprintID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Sprint), args.Error(1)
}

func (m *MockDataReader) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockDataReader) ListSprints(ctx context.Context, filter repository.SprintFilter) ([]models.Sprint, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Sprint), args.Error(1)
}

func (m *MockDataReader) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]models.Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *MockDataReader) ListTeamIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// brokenStore 始终失败的缓存
type brokenStore struct{}

func (brokenStore) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenStore) Delete(context.Context, ...string) error {
	return errors.New("connection refused")
}

func (brokenStore) DeletePattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(reader repository.DataReader, store cache.Store) *metricsService {
	svc := NewMetricsService(reader, store, alert.NewEvaluator(alert.DefaultThresholds()), DefaultOptions(), zap.NewNop()).(*metricsService)
	svc.now = func() time.Time { return now }
	return svc
}

func testTeam(id uuid.UUID, activeMembers int) *models.Team {
	team := &models.Team{ID: id, Name: "Platform"}
	for i := 0; i < activeMembers; i++ {
		team.Members = append(team.Members, models.TeamMember{TeamID: id, UserID: uuid.New(), JoinedAt: now.AddDate(-1, 0, 0)})
	}
	return team
}

func velocitySprints(teamID uuid.UUID, points ...int) []models.Sprint {
	sprints := make([]models.Sprint, 0, len(points))
	for i, p := range points {
		end := now.AddDate(0, 0, -14*(len(points)-i))
		sprints = append(sprints, models.Sprint{
			ID:              uuid.New(),
			TeamID:          teamID,
			Name:            fmt.Sprintf("Sprint %d", i+1),
			Status:          models.SprintStatusCompleted,
			StartDate:       end.AddDate(0, 0, -14),
			EndDate:         end,
			PlannedPoints:   80,
			CompletedPoints: p,
		})
	}
	return sprints
}

func TestGetTeamMetrics_VelocityScenario(t *testing.T) {
	reader := new(MockDataReader)
	store := cache.NewMemoryStore()
	svc := newTestService(reader, store)
	teamID := uuid.New()

	reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 3), nil).Once()
	reader.On("ListSprints", mock.Anything, repository.SprintFilter{TeamID: teamID}).
		Return(velocitySprints(teamID, 80, 40, 60), nil).Once()
	reader.On("ListTasks", mock.Anything, mock.MatchedBy(func(f repository.TaskFilter) bool {
		return f.TeamID == teamID && f.WithHistory
	})).Return([]models.Task{}, nil).Once()

	metrics, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.BundleKindTeam, metrics.Kind)
	assert.InDelta(t, 60.0, metrics.Velocity.Average, 1e-9)
	assert.InDelta(t, 27.2166, metrics.Velocity.Variability, 1e-3)
	assert.InDelta(t, 20.0/3, metrics.Velocity.Trend, 1e-9)
	assert.Len(t, metrics.Trends.Velocity, 3)
	assert.Equal(t, now, metrics.LastUpdated)

	recs := GenerateRecommendations(*metrics, nil, DefaultRecommendationPolicy())
	require.NotEmpty(t, recs)
	assert.Equal(t, models.RecommendationVelocity, recs[0].Type)
	assert.Equal(t, models.SeverityHigh, recs[0].Severity)

	// 第二次读取命中缓存，不再访问数据层
	again, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, metrics.Velocity, again.Velocity)
	assert.Equal(t, 1, store.Len())
	reader.AssertExpectations(t)
}

func TestGetTeamMetrics_Errors(t *testing.T) {
	teamID := uuid.New()

	t.Run("结束早于开始", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		start := now
		end := now.Add(-time.Hour)
		_, err := svc.GetTeamMetrics(context.Background(), teamID, &start, &end)
		assert.True(t, errors.Is(err, ErrInvalidWindow))
		reader.AssertNotCalled(t, "GetTeam", mock.Anything, mock.Anything)
	})

	t.Run("数据层超时不写缓存", func(t *testing.T) {
		reader := new(MockDataReader)
		store := cache.NewMemoryStore()
		svc := newTestService(reader, store)

		reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 1), nil).Maybe()
		reader.On("ListSprints", mock.Anything, mock.Anything).Return([]models.Sprint{}, nil).Maybe()
		reader.On("ListTasks", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("list tasks: %w", repository.ErrTimeout))

		_, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDataUnavailable))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("团队不存在", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		reader.On("GetTeam", mock.Anything, teamID).Return(nil, fmt.Errorf("get team: %w", repository.ErrNotFound))
		reader.On("ListSprints", mock.Anything, mock.Anything).Return([]models.Sprint{}, nil).Maybe()
		reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil).Maybe()

		_, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestGetTeamMetrics_CacheUnavailable(t *testing.T) {
	reader := new(MockDataReader)
	svc := newTestService(reader, brokenStore{})
	teamID := uuid.New()

	reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 2), nil).Twice()
	reader.On("ListSprints", mock.Anything, mock.Anything).Return(velocitySprints(teamID, 50, 50), nil).Twice()
	reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil).Twice()

	for i := 0; i < 2; i++ {
		metrics, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 50.0, metrics.Velocity.Average)
		assert.Zero(t, metrics.Velocity.Variability)
	}
	reader.AssertExpectations(t)
}

func TestGetTaskMetrics_Staleness(t *testing.T) {
	reader := new(MockDataReader)
	store := cache.NewMemoryStore()
	svc := newTestService(reader, store)

	t0 := now.Add(-48 * time.Hour)
	task := &models.Task{
		ID:          uuid.New(),
		TeamID:      uuid.New(),
		Status:      models.TaskStatusDone,
		StoryPoints: 5,
		CreatedAt:   t0,
		UpdatedAt:   t0.Add(24 * time.Hour),
	}
	reader.On("GetTask", mock.Anything, task.ID).Return(task, nil)

	first, err := svc.GetTaskMetrics(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 24.0, first.CycleTimeHours)
	assert.Equal(t, now, first.LastUpdated)

	// 任务未变化：命中缓存
	svc.now = func() time.Time { return now.Add(time.Minute) }
	second, err := svc.GetTaskMetrics(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, now, second.LastUpdated)

	// 任务在缓存之后被更新：视为未命中
	task.UpdatedAt = now.Add(30 * time.Second)
	third, err := svc.GetTaskMetrics(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), third.LastUpdated)
	assert.InDelta(t, 48.0+0.5/60, third.CycleTimeHours, 1e-9)
}

func TestGetSprintMetrics(t *testing.T) {
	teamID := uuid.New()

	t.Run("燃尽与满意度", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		sprint := &models.Sprint{
			ID:              uuid.New(),
			TeamID:          teamID,
			Name:            "Sprint 9",
			Status:          models.SprintStatusCompleted,
			StartDate:       start,
			EndDate:         start.AddDate(0, 0, 9),
			PlannedPoints:   20,
			CompletedPoints: 20,
			UpdatedAt:       start,
		}
		tasks := []models.Task{
			{ID: uuid.New(), TeamID: teamID, SprintID: &sprint.ID, Status: models.TaskStatusDone, StoryPoints: 8,
				CreatedAt: start, UpdatedAt: start.AddDate(0, 0, 3)},
			{ID: uuid.New(), TeamID: teamID, SprintID: &sprint.ID, Status: models.TaskStatusDone, StoryPoints: 12,
				CreatedAt: start, UpdatedAt: start.AddDate(0, 0, 8)},
		}

		reader.On("GetSprint", mock.Anything, sprint.ID).Return(sprint, nil)
		reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 4), nil).Once()
		reader.On("ListTasks", mock.Anything, repository.TaskFilter{TeamID: teamID, SprintID: &sprint.ID, WithHistory: true}).
			Return(tasks, nil).Once()

		metrics, err := svc.GetSprintMetrics(context.Background(), sprint.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, metrics.CompletionRate)
		assert.Equal(t, 20.0, metrics.Velocity)
		assert.Equal(t, 100.0, metrics.TeamSatisfaction)
		assert.Len(t, metrics.Burndown.Dates, 10)
		assert.Len(t, metrics.Burndown.Actual, 10)
		assert.Equal(t, 12.0, metrics.Burndown.Actual[3])
		assert.Equal(t, 0.0, metrics.Burndown.Actual[9])

		_, err = svc.GetSprintMetrics(context.Background(), sprint.ID)
		require.NoError(t, err)
		reader.AssertExpectations(t)
	})

	t.Run("迭代在缓存之后被更新时重新计算", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		start := now.AddDate(0, 0, -14)
		sprint := &models.Sprint{
			ID:              uuid.New(),
			TeamID:          teamID,
			Status:          models.SprintStatusActive,
			StartDate:       start,
			EndDate:         now,
			PlannedPoints:   40,
			CompletedPoints: 10,
			UpdatedAt:       now.Add(-time.Hour),
		}
		reader.On("GetSprint", mock.Anything, sprint.ID).Return(sprint, nil)
		reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 3), nil).Twice()
		reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil).Twice()

		first, err := svc.GetSprintMetrics(context.Background(), sprint.ID)
		require.NoError(t, err)
		assert.Equal(t, 25.0, first.CompletionRate)
		assert.Equal(t, now, first.LastUpdated)

		// 迭代未变化：命中缓存
		svc.now = func() time.Time { return now.Add(time.Minute) }
		second, err := svc.GetSprintMetrics(context.Background(), sprint.ID)
		require.NoError(t, err)
		assert.Equal(t, now, second.LastUpdated)

		sprint.CompletedPoints = 30
		sprint.UpdatedAt = now.Add(30 * time.Second)
		third, err := svc.GetSprintMetrics(context.Background(), sprint.ID)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Minute), third.LastUpdated)
		assert.Equal(t, 75.0, third.CompletionRate)
		reader.AssertExpectations(t)
	})

	t.Run("迭代时长非正", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		sprint := &models.Sprint{ID: uuid.New(), TeamID: teamID, StartDate: now, EndDate: now}
		reader.On("GetSprint", mock.Anything, sprint.ID).Return(sprint, nil)

		_, err := svc.GetSprintMetrics(context.Background(), sprint.ID)
		assert.True(t, errors.Is(err, ErrInvalidWindow))
	})
}

func TestGetTeamWorkload(t *testing.T) {
	reader := new(MockDataReader)
	svc := newTestService(reader, cache.NewMemoryStore())
	teamID := uuid.New()
	assignee := uuid.New()

	reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 1), nil).Once()
	reader.On("ListTasks", mock.Anything, mock.MatchedBy(func(f repository.TaskFilter) bool {
		return len(f.Statuses) == 5 && !f.WithHistory
	})).Return([]models.Task{
		{AssigneeID: &assignee, Status: models.TaskStatusInProgress, Type: models.TaskTypeFeature, StoryPoints: 3},
		{Status: models.TaskStatusTodo, Type: models.TaskTypeBug, StoryPoints: 2},
	}, nil).Once()

	workload, err := svc.GetTeamWorkload(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, teamID, workload.TeamID)
	assert.Equal(t, 5, workload.OpenStoryPoints)
	assert.Equal(t, 1, workload.Unassigned)
	require.Len(t, workload.Assignees, 1)
	assert.Equal(t, assignee, workload.Assignees[0].AssigneeID)
	reader.AssertExpectations(t)
}

func TestGenerateReport(t *testing.T) {
	teamID := uuid.New()

	t.Run("无效周期", func(t *testing.T) {
		svc := newTestService(new(MockDataReader), cache.NewMemoryStore())
		_, err := svc.GenerateReport(context.Background(), teamID, "fortnight")
		assert.True(t, errors.Is(err, ErrInvalidPeriod))
	})

	t.Run("周报按天分桶", func(t *testing.T) {
		reader := new(MockDataReader)
		svc := newTestService(reader, cache.NewMemoryStore())

		created := now.AddDate(0, 0, -6)
		tasks := []models.Task{
			{ID: uuid.New(), TeamID: teamID, Status: models.TaskStatusDone, Type: models.TaskTypeFeature, StoryPoints: 5,
				CreatedAt: created, UpdatedAt: now.AddDate(0, 0, -4),
				Metrics: models.TaskMetricData{TestCoverage: 90}},
			{ID: uuid.New(), TeamID: teamID, Status: models.TaskStatusDone, Type: models.TaskTypeFeature, StoryPoints: 3,
				CreatedAt: created, UpdatedAt: now.AddDate(0, 0, -2),
				Metrics: models.TaskMetricData{TestCoverage: 90}},
			{ID: uuid.New(), TeamID: teamID, Status: models.TaskStatusInProgress, StoryPoints: 8,
				CreatedAt: created, UpdatedAt: now.AddDate(0, 0, -1)},
		}

		reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 2), nil).Once()
		reader.On("ListSprints", mock.Anything, mock.MatchedBy(func(f repository.SprintFilter) bool {
			return f.EndFrom != nil && f.EndTo != nil && f.EndTo.Sub(*f.EndFrom) == 7*24*time.Hour
		})).Return([]models.Sprint{}, nil).Once()
		reader.On("ListTasks", mock.Anything, mock.Anything).Return(tasks, nil).Once()

		report, err := svc.GenerateReport(context.Background(), teamID, models.PeriodWeek)
		require.NoError(t, err)

		assert.Equal(t, 2, report.Summary.TasksCompleted)
		assert.Equal(t, 8, report.Summary.StoryPointsCompleted)
		assert.Equal(t, now, report.GeneratedAt)
		assert.Len(t, report.Trends.Dates, 3)
		assert.Equal(t, []float64{5, 0, 3}, report.Trends.VelocityTrend)
		assert.Len(t, report.Trends.QualityTrend, 3)
		assert.Len(t, report.Trends.EfficiencyTrend, 3)
		assert.NotNil(t, report.Bottlenecks)
		assert.NotNil(t, report.Recommendations)

		// 24小时内再次生成命中缓存
		_, err = svc.GenerateReport(context.Background(), teamID, models.PeriodWeek)
		require.NoError(t, err)
		reader.AssertExpectations(t)
	})
}

func TestEvaluateTeamAlerts(t *testing.T) {
	reader := new(MockDataReader)
	svc := newTestService(reader, cache.NewMemoryStore())
	teamID := uuid.New()

	sprints := velocitySprints(teamID, 100, 100, 40)
	reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 3), nil)
	reader.On("ListSprints", mock.Anything, repository.SprintFilter{TeamID: teamID}).Return(sprints, nil)
	reader.On("ListSprints", mock.Anything, mock.MatchedBy(func(f repository.SprintFilter) bool {
		return f.Limit == 1 && len(f.Statuses) == 3
	})).Return(sprints[2:], nil)
	reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil)

	alerts, err := svc.EvaluateTeamAlerts(context.Background(), teamID)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)

	assert.Equal(t, models.AlertVelocityDrop, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Velocity dropped by 50.0%", alerts[0].Message)
	require.NotNil(t, alerts[0].SprintID)
	assert.Equal(t, sprints[2].ID, *alerts[0].SprintID)
}

func TestGenerateSprintReport_WrongTeam(t *testing.T) {
	reader := new(MockDataReader)
	svc := newTestService(reader, cache.NewMemoryStore())

	owner := uuid.New()
	sprint := &models.Sprint{ID: uuid.New(), TeamID: owner, StartDate: now.AddDate(0, 0, -14), EndDate: now}
	reader.On("GetSprint", mock.Anything, sprint.ID).Return(sprint, nil)
	reader.On("GetTeam", mock.Anything, owner).Return(testTeam(owner, 1), nil)
	reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil)

	_, err := svc.GenerateSprintReport(context.Background(), uuid.New(), sprint.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidateTeam(t *testing.T) {
	reader := new(MockDataReader)
	store := cache.NewMemoryStore()
	svc := newTestService(reader, store)
	teamID, otherID := uuid.New(), uuid.New()

	for _, id := range []uuid.UUID{teamID, otherID} {
		reader.On("GetTeam", mock.Anything, id).Return(testTeam(id, 1), nil)
		reader.On("ListSprints", mock.Anything, repository.SprintFilter{TeamID: id}).Return([]models.Sprint{}, nil)
		reader.On("ListTasks", mock.Anything, mock.MatchedBy(func(f repository.TaskFilter) bool { return f.TeamID == id })).
			Return([]models.Task{}, nil)

		_, err := svc.GetTeamMetrics(context.Background(), id, nil, nil)
		require.NoError(t, err)
		_, err = svc.GetTeamWorkload(context.Background(), id)
		require.NoError(t, err)
	}
	require.Equal(t, 4, store.Len())

	deleted, err := svc.InvalidateTeam(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 2, store.Len())

	t.Run("缓存不可用时返回错误", func(t *testing.T) {
		broken := newTestService(reader, brokenStore{})
		_, err := broken.InvalidateTeam(context.Background(), teamID)
		assert.True(t, errors.Is(err, ErrCacheUnavailable))
	})
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("metrics", "team_metrics", map[string]string{"team_id": "t1", "start": "", "end": "2024"})
	b := CacheKey("metrics", "team_metrics", map[string]string{"end": "2024", "team_id": "t1"})
	assert.Equal(t, a, b)
	assert.Equal(t, "metrics:team_metrics:end=2024:team_id=t1", a)
}

type recordedHit struct {
	kind string
	hit  bool
}

type fakeRecorder struct{ hits []recordedHit }

func (r *fakeRecorder) RecordCacheHit(kind string, hit bool) {
	r.hits = append(r.hits, recordedHit{kind, hit})
}

func TestCachedRecordsHits(t *testing.T) {
	reader := new(MockDataReader)
	svc := newTestService(reader, cache.NewMemoryStore())
	recorder := &fakeRecorder{}
	svc.opts.Recorder = recorder
	teamID := uuid.New()

	reader.On("GetTeam", mock.Anything, teamID).Return(testTeam(teamID, 2), nil).Once()
	reader.On("ListSprints", mock.Anything, repository.SprintFilter{TeamID: teamID}).
		Return(velocitySprints(teamID, 50), nil).Once()
	reader.On("ListTasks", mock.Anything, mock.Anything).Return([]models.Task{}, nil).Once()

	for i := 0; i < 2; i++ {
		_, err := svc.GetTeamMetrics(context.Background(), teamID, nil, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []recordedHit{{fnTeamMetrics, false}, {fnTeamMetrics, true}}, recorder.hits)
}
