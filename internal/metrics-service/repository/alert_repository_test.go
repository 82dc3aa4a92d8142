package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var alertRowColumns = []string{
	"id", "team_id", "sprint_id", "type", "severity", "message", "metrics", "status", "created_at",
	"acknowledged_at", "acknowledged_by", "resolved_at", "resolved_by", "resolution_comment",
}

func alertRow(id, teamID uuid.UUID, status models.AlertStatus, createdAt time.Time) []driver.Value {
	return []driver.Value{
		id.String(), teamID.String(), nil, string(models.AlertVelocityDrop), string(models.SeverityHigh),
		"Velocity dropped by 50.0%", `{"current_velocity":50}`, string(status), createdAt,
		nil, nil, nil, nil, nil,
	}
}

func TestAlertRepository_EnsureSchema(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAlertRepository(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS metrics_alerts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_metrics_alerts_team_status").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestAlertRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAlertRepository(db)

	record := &models.AlertRecord{
		TeamID:   uuid.New(),
		Type:     models.AlertLowTestCoverage,
		Severity: models.SeverityMedium,
		Message:  "Test coverage below threshold: 42.0%",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metrics_alerts")).
		WithArgs(sqlmock.AnyArg(), record.TeamID.String(), nil, "low_test_coverage", "medium",
			record.Message, "{}", "open", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, models.AlertStatusOpen, record.Status)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestAlertRepository_Get(t *testing.T) {
	t.Run("找到告警", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAlertRepository(db)

		id, teamID := uuid.New(), uuid.New()
		createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_alerts WHERE id = $1")).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(alertRowColumns).AddRow(alertRow(id, teamID, models.AlertStatusOpen, createdAt)...))

		record, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
		assert.Equal(t, teamID, record.TeamID)
		assert.Nil(t, record.SprintID)
		assert.Equal(t, models.SeverityHigh, record.Severity)
		assert.Equal(t, createdAt, record.CreatedAt)
	})

	t.Run("告警不存在", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAlertRepository(db)

		mock.ExpectQuery("FROM metrics_alerts").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestAlertRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAlertRepository(db)

	teamID := uuid.New()
	status := models.AlertStatusOpen
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND team_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs(teamID.String(), "open", 5).
		WillReturnRows(sqlmock.NewRows(alertRowColumns).
			AddRow(alertRow(uuid.New(), teamID, status, now)...).
			AddRow(alertRow(uuid.New(), teamID, status, now.Add(-time.Hour))...))

	records, err := repo.List(context.Background(), AlertFilter{TeamID: &teamID, Status: &status, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAlertRepository_Transitions(t *testing.T) {
	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("确认open告警", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAlertRepository(db)
		id := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE metrics_alerts SET status = $1")).
			WithArgs("acknowledged", at, "lead@example.com", id.String(), "open").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Acknowledge(context.Background(), id, "lead@example.com", at))
	})

	t.Run("已解决的告警不能再确认", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAlertRepository(db)
		id := uuid.New()

		mock.ExpectExec("UPDATE metrics_alerts").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM metrics_alerts WHERE id").
			WillReturnRows(sqlmock.NewRows(alertRowColumns).AddRow(alertRow(id, uuid.New(), models.AlertStatusResolved, at)...))

		err := repo.Acknowledge(context.Background(), id, "lead@example.com", at)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("解决不存在的告警", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAlertRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $5 AND status IN ($6, $7)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM metrics_alerts WHERE id").WillReturnError(sql.ErrNoRows)

		err := repo.Resolve(context.Background(), uuid.New(), "lead@example.com", "fixed", at)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
