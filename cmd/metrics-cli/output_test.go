package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

func init() {
	color.NoColor = true
}

func TestPrintTeamMetrics(t *testing.T) {
	var buf bytes.Buffer
	m := &models.TeamMetrics{
		TeamID:   uuid.New(),
		Velocity: models.VelocityMetrics{Average: 60, Variability: 27.2166, SprintCount: 3},
	}
	require.NoError(t, printTeamMetrics(&buf, m))

	out := buf.String()
	assert.Contains(t, out, m.TeamID.String())
	assert.Contains(t, out, "60.0")
	assert.Contains(t, out, "27.2")
}

func TestPrintSprintMetrics_Burndown(t *testing.T) {
	var buf bytes.Buffer
	m := &models.SprintMetrics{
		Name:   "Sprint 7",
		Status: models.SprintStatusActive,
		Burndown: models.BurndownSeries{
			Dates:  []string{"2024-03-01", "2024-03-02"},
			Ideal:  []float64{10, 0},
			Actual: []float64{10, 4},
		},
	}
	require.NoError(t, printSprintMetrics(&buf, m))
	assert.Contains(t, buf.String(), "Burndown")
	assert.Contains(t, buf.String(), "2024-03-02")
}

func TestPrintAlertRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAlertRecords(&buf, nil))
	assert.Contains(t, buf.String(), "No alerts")

	buf.Reset()
	require.NoError(t, printAlertRecords(&buf, []models.AlertRecord{{
		ID:        uuid.New(),
		Type:      models.AlertVelocityDrop,
		Severity:  models.SeverityHigh,
		Message:   "Velocity dropped by 50.0%",
		Status:    models.AlertStatusOpen,
		CreatedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}}))
	assert.Contains(t, buf.String(), "Velocity dropped by 50.0%")
	assert.Contains(t, buf.String(), "high")
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("March")
	assert.Error(t, err)
}
