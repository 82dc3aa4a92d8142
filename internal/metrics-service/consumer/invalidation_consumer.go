package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/cloud-platform/team-metrics/shared/config"
	"github.com/cloud-platform/team-metrics/shared/logger"
)

// ChangeEvent 源数据变更事件，类型形如 task.updated、sprint.completed、team.member_removed
type ChangeEvent struct {
	Type       string    `json:"type"`
	TeamID     string    `json:"team_id"`
	SprintID   string    `json:"sprint_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Invalidator 缓存失效接口
type Invalidator interface {
	InvalidateTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
	InvalidateSprint(ctx context.Context, sprintID uuid.UUID) (int64, error)
	InvalidateTask(ctx context.Context, taskID uuid.UUID) (int64, error)
}

// readRetryDelay 读取失败后的等待时间
const readRetryDelay = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// InvalidationConsumer 消费实体变更事件并删除相关指标缓存
type InvalidationConsumer struct {
	reader      messageReader
	invalidator Invalidator
	logger      logger.Logger
	retryDelay  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewInvalidationConsumer 创建缓存失效消费者
func NewInvalidationConsumer(cfg config.KafkaConfig, invalidator Invalidator, appLogger logger.Logger) *InvalidationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.EventsTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	return newInvalidationConsumer(reader, invalidator, appLogger)
}

func newInvalidationConsumer(reader messageReader, invalidator Invalidator, appLogger logger.Logger) *InvalidationConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &InvalidationConsumer{
		reader:      reader,
		invalidator: invalidator,
		logger:      appLogger,
		retryDelay:  readRetryDelay,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start 启动消费循环
func (c *InvalidationConsumer) Start() error {
	c.logger.Info("Starting cache invalidation consumer...")

	go func() {
		defer close(c.done)
		for {
			message, err := c.reader.ReadMessage(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil {
					c.logger.Info("Cache invalidation consumer stopped")
					return
				}
				c.logger.Errorf("Error reading message from Kafka: %v", err)
				if !c.wait() {
					c.logger.Info("Cache invalidation consumer stopped")
					return
				}
				continue
			}

			if err := c.processMessage(c.ctx, message); err != nil {
				c.logger.WithFields(map[string]interface{}{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Errorf("Error processing message: %v", err)
			}
		}
	}()

	return nil
}

// wait 读取失败后退避，消费者停止时返回false
func (c *InvalidationConsumer) wait() bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stop 停止消费并关闭Reader
func (c *InvalidationConsumer) Stop() error {
	c.logger.Info("Stopping cache invalidation consumer...")
	c.cancel()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	<-c.done
	return nil
}

// processMessage 按事件作用域失效缓存，任务与迭代变更同时失效所属团队
func (c *InvalidationConsumer) processMessage(ctx context.Context, message kafka.Message) error {
	var event ChangeEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	scope, _, _ := strings.Cut(event.Type, ".")

	var errs []error
	var deleted int64
	invalidate := func(raw string, fn func(context.Context, uuid.UUID) (int64, error)) {
		if raw == "" {
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid id %q: %w", raw, err))
			return
		}
		n, err := fn(ctx, id)
		if err != nil {
			errs = append(errs, err)
			return
		}
		deleted += n
	}

	switch scope {
	case "task":
		invalidate(event.TaskID, c.invalidator.InvalidateTask)
		invalidate(event.SprintID, c.invalidator.InvalidateSprint)
		invalidate(event.TeamID, c.invalidator.InvalidateTeam)
	case "sprint":
		invalidate(event.SprintID, c.invalidator.InvalidateSprint)
		invalidate(event.TeamID, c.invalidator.InvalidateTeam)
	case "team":
		invalidate(event.TeamID, c.invalidator.InvalidateTeam)
	default:
		c.logger.Debugf("Ignoring event type %s", event.Type)
		return nil
	}

	c.logger.WithFields(map[string]interface{}{
		"type":    event.Type,
		"team_id": event.TeamID,
		"deleted": deleted,
	}).Debug("Cache invalidated")

	return errors.Join(errs...)
}
