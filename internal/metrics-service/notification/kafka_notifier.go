package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier 将通知写入Kafka主题，供下游系统消费
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaNotifier 创建Kafka通知器
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaNotifier(writer, topic, logger)
}

func newKafkaNotifier(writer messageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, topic: topic, logger: logger}
}

// GetType 获取通知器类型
func (k *KafkaNotifier) GetType() NotificationType {
	return NotificationTypeKafka
}

// IsAvailable 检查通知器是否可用
func (k *KafkaNotifier) IsAvailable() bool {
	return k.writer != nil
}

// Send 以团队ID为键写入消息，同一团队的通知保持顺序
func (k *KafkaNotifier) Send(ctx context.Context, notification *Notification) (*NotificationResult, error) {
	value, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	messageID := uuid.New().String()
	msg := kafka.Message{
		Key:   []byte(notification.TeamID),
		Value: value,
		Time:  notification.Timestamp,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(messageID)},
			{Key: "kind", Value: []byte(notification.Kind)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to write to %s: %w", k.topic, err)
	}

	k.logger.Debug("Notification published",
		zap.String("topic", k.topic),
		zap.String("team_id", notification.TeamID))

	return &NotificationResult{Success: true, MessageID: messageID, Timestamp: time.Now()}, nil
}

// Close 关闭写入器
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
