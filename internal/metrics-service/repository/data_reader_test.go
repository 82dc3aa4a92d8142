package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// DataReaderTestSuite 数据读取器测试套件
type DataReaderTestSuite struct {
	suite.Suite
	db      *gorm.DB
	reader  DataReader
	ctx     context.Context
	teamID  uuid.UUID
	otherID uuid.UUID
	sprints []models.Sprint
	taskID  uuid.UUID
	base    time.Time
}

func (suite *DataReaderTestSuite) SetupSuite() {
	// 使用内存SQLite数据库进行测试
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)

	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	suite.Require().NoError(MigrateSourceSchema(db))

	suite.db = db
	suite.reader = NewDataReader(db, time.Second)
	suite.ctx = context.Background()
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.seed()
}

func (suite *DataReaderTestSuite) TearDownSuite() {
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *DataReaderTestSuite) seed() {
	team := models.Team{Name: "Platform"}
	suite.Require().NoError(suite.db.Create(&team).Error)
	suite.teamID = team.ID

	other := models.Team{Name: "Growth"}
	suite.Require().NoError(suite.db.Create(&other).Error)
	suite.otherID = other.ID

	left := suite.base.AddDate(0, 1, 0)
	members := []models.TeamMember{
		{TeamID: team.ID, UserID: uuid.New(), JoinedAt: suite.base},
		{TeamID: team.ID, UserID: uuid.New(), JoinedAt: suite.base, LeftAt: &left},
	}
	suite.Require().NoError(suite.db.Create(&members).Error)

	for i := 0; i < 4; i++ {
		start := suite.base.AddDate(0, 0, 14*i)
		sprint := models.Sprint{
			TeamID:          team.ID,
			Name:            "Sprint",
			Status:          models.SprintStatusCompleted,
			StartDate:       start,
			EndDate:         start.AddDate(0, 0, 13),
			PlannedPoints:   40,
			CompletedPoints: 30 + i,
		}
		if i == 3 {
			sprint.Status = models.SprintStatusActive
		}
		suite.Require().NoError(suite.db.Create(&sprint).Error)
		suite.sprints = append(suite.sprints, sprint)
	}

	sprintID := suite.sprints[0].ID
	task := models.Task{
		TeamID:      team.ID,
		SprintID:    &sprintID,
		Title:       "Implement burndown",
		Status:      models.TaskStatusDone,
		StoryPoints: 5,
	}
	suite.Require().NoError(suite.db.Create(&task).Error)
	suite.taskID = task.ID

	// 乱序写入，读取时按序号排列
	events := []models.TaskEvent{
		{TaskID: task.ID, Sequence: 2, Field: "status", OldValue: "in_progress", NewValue: "done", Timestamp: suite.base.Add(48 * time.Hour)},
		{TaskID: task.ID, Sequence: 0, Field: "status", OldValue: "", NewValue: "todo", Timestamp: suite.base},
		{TaskID: task.ID, Sequence: 1, Field: "status", OldValue: "todo", NewValue: "in_progress", Timestamp: suite.base.Add(2 * time.Hour)},
	}
	suite.Require().NoError(suite.db.Create(&events).Error)

	open := models.Task{TeamID: team.ID, Title: "Open item", Status: models.TaskStatusInProgress, StoryPoints: 3}
	suite.Require().NoError(suite.db.Create(&open).Error)

	foreign := models.Task{TeamID: other.ID, Title: "Other team", Status: models.TaskStatusDone}
	suite.Require().NoError(suite.db.Create(&foreign).Error)
}

func (suite *DataReaderTestSuite) TestGetTeam() {
	suite.Run("加载成员", func() {
		team, err := suite.reader.GetTeam(suite.ctx, suite.teamID)
		suite.Require().NoError(err)
		assert.Equal(suite.T(), "Platform", team.Name)
		assert.Len(suite.T(), team.Members, 2)
	})

	suite.Run("团队不存在", func() {
		_, err := suite.reader.GetTeam(suite.ctx, uuid.New())
		assert.True(suite.T(), errors.Is(err, ErrNotFound))
	})
}

func (suite *DataReaderTestSuite) TestGetTask() {
	task, err := suite.reader.GetTask(suite.ctx, suite.taskID)
	suite.Require().NoError(err)
	suite.Require().Len(task.History, 3)
	assert.Equal(suite.T(), "todo", task.History[0].NewValue)
	assert.Equal(suite.T(), "done", task.History[2].NewValue)

	_, err = suite.reader.GetSprint(suite.ctx, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DataReaderTestSuite) TestListSprints() {
	suite.Run("按状态过滤", func() {
		sprints, err := suite.reader.ListSprints(suite.ctx, SprintFilter{
			TeamID:   suite.teamID,
			Statuses: []models.SprintStatus{models.SprintStatusCompleted},
		})
		suite.Require().NoError(err)
		assert.Len(suite.T(), sprints, 3)
		assert.True(suite.T(), sprints[0].EndDate.Before(sprints[2].EndDate))
	})

	suite.Run("取最近N个仍按升序返回", func() {
		sprints, err := suite.reader.ListSprints(suite.ctx, SprintFilter{TeamID: suite.teamID, Limit: 2})
		suite.Require().NoError(err)
		suite.Require().Len(sprints, 2)
		assert.Equal(suite.T(), suite.sprints[2].ID, sprints[0].ID)
		assert.Equal(suite.T(), suite.sprints[3].ID, sprints[1].ID)
	})

	suite.Run("按结束日期窗口", func() {
		from := suite.base.AddDate(0, 0, 20)
		to := suite.base.AddDate(0, 0, 30)
		sprints, err := suite.reader.ListSprints(suite.ctx, SprintFilter{TeamID: suite.teamID, EndFrom: &from, EndTo: &to})
		suite.Require().NoError(err)
		suite.Require().Len(sprints, 1)
		assert.Equal(suite.T(), suite.sprints[1].ID, sprints[0].ID)
	})
}

func (suite *DataReaderTestSuite) TestListTasks() {
	suite.Run("按团队与状态", func() {
		tasks, err := suite.reader.ListTasks(suite.ctx, TaskFilter{
			TeamID:      suite.teamID,
			Statuses:    []models.TaskStatus{models.TaskStatusDone},
			WithHistory: true,
		})
		suite.Require().NoError(err)
		suite.Require().Len(tasks, 1)
		assert.Len(suite.T(), tasks[0].History, 3)
	})

	suite.Run("按迭代", func() {
		sprintID := suite.sprints[0].ID
		tasks, err := suite.reader.ListTasks(suite.ctx, TaskFilter{TeamID: suite.teamID, SprintID: &sprintID})
		suite.Require().NoError(err)
		assert.Len(suite.T(), tasks, 1)
		assert.Empty(suite.T(), tasks[0].History)
	})

	suite.Run("全部任务", func() {
		tasks, err := suite.reader.ListTasks(suite.ctx, TaskFilter{TeamID: suite.teamID})
		suite.Require().NoError(err)
		assert.Len(suite.T(), tasks, 2)
	})
}

func (suite *DataReaderTestSuite) TestListTeamIDs() {
	ids, err := suite.reader.ListTeamIDs(suite.ctx)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), []uuid.UUID{suite.otherID, suite.teamID}, ids)
}

func (suite *DataReaderTestSuite) TestTimeout() {
	ctx, cancel := context.WithDeadline(suite.ctx, time.Now().Add(-time.Second))
	defer cancel()

	_, err := suite.reader.ListTasks(ctx, TaskFilter{TeamID: suite.teamID})
	suite.Require().Error(err)
	assert.True(suite.T(), errors.Is(err, ErrTimeout))
}

func TestDataReaderTestSuite(t *testing.T) {
	suite.Run(t, new(DataReaderTestSuite))
}
