package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// NotificationType 通知渠道类型
type NotificationType string

const (
	NotificationTypeSlack     NotificationType = "slack"
	NotificationTypeWebSocket NotificationType = "websocket"
	NotificationTypeKafka     NotificationType = "kafka"
)

// Kind 通知内容类别
type Kind string

const (
	KindAlert  Kind = "alert"
	KindReport Kind = "report"
)

// Notification 通知内容
type Notification struct {
	Kind      Kind                   `json:"kind"`
	Channel   string                 `json:"channel"`
	TeamID    string                 `json:"team_id"`
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Priority  string                 `json:"priority"` // low, medium, high
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Payload   interface{}            `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationResult 通知结果
type NotificationResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier 通知器接口
type Notifier interface {
	// Send 发送通知
	Send(ctx context.Context, notification *Notification) (*NotificationResult, error)
	// GetType 获取通知器类型
	GetType() NotificationType
	// IsAvailable 检查通知器是否可用
	IsAvailable() bool
}

// NotificationManager 通知管理器
type NotificationManager struct {
	notifiers map[NotificationType]Notifier
	logger    *zap.Logger
}

// NewNotificationManager 创建通知管理器
func NewNotificationManager(logger *zap.Logger) *NotificationManager {
	return &NotificationManager{
		notifiers: make(map[NotificationType]Notifier),
		logger:    logger,
	}
}

// RegisterNotifier 注册通知器
func (m *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}

	notifierType := notifier.GetType()
	if _, exists := m.notifiers[notifierType]; exists {
		return fmt.Errorf("notifier type %s already registered", notifierType)
	}

	m.notifiers[notifierType] = notifier
	m.logger.Info("Notifier registered", zap.String("type", string(notifierType)))

	return nil
}

// Broadcast 通过所有可用通知器发送，返回每个通知器的结果
//
// 任一通知器失败时返回合并后的错误，其余通知器仍会发送。
func (m *NotificationManager) Broadcast(ctx context.Context, notification *Notification) (map[NotificationType]*NotificationResult, error) {
	results := make(map[NotificationType]*NotificationResult)
	var errs []error

	for _, notifyType := range m.GetAvailableNotifiers() {
		notifier := m.notifiers[notifyType]

		m.logger.Debug("Sending notification",
			zap.String("type", string(notifyType)),
			zap.String("channel", notification.Channel),
			zap.String("subject", notification.Subject))

		result, err := notifier.Send(ctx, notification)
		if err != nil {
			m.logger.Error("Failed to send notification",
				zap.String("type", string(notifyType)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", notifyType, err))
			result = &NotificationResult{Success: false, Error: err.Error(), Timestamp: time.Now()}
		}
		results[notifyType] = result
	}

	return results, errors.Join(errs...)
}

// GetAvailableNotifiers 获取可用的通知器列表
func (m *NotificationManager) GetAvailableNotifiers() []NotificationType {
	var available []NotificationType

	for notifyType, notifier := range m.notifiers {
		if notifier.IsAvailable() {
			available = append(available, notifyType)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i] < available[j] })

	return available
}
