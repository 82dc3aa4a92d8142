package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/shared/config"
)

// SlackNotifier 通过Incoming Webhook发送Slack消息
type SlackNotifier struct {
	config     config.SlackConfig
	logger     *zap.Logger
	httpClient *http.Client
}

// SlackMessage Slack消息结构
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment Slack附件
type SlackAttachment struct {
	Fallback   string       `json:"fallback"`
	Color      string       `json:"color"`
	Text       string       `json:"text"`
	Fields     []SlackField `json:"fields,omitempty"`
	Footer     string       `json:"footer,omitempty"`
	Timestamp  int64        `json:"ts,omitempty"`
	MarkdownIn []string     `json:"mrkdwn_in,omitempty"`
}

// SlackField Slack字段
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier 创建Slack通知器
func NewSlackNotifier(cfg config.SlackConfig, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetType 获取通知器类型
func (s *SlackNotifier) GetType() NotificationType {
	return NotificationTypeSlack
}

// IsAvailable 未配置Webhook时不可用
func (s *SlackNotifier) IsAvailable() bool {
	return s.config.WebhookURL != ""
}

// Send 发送Slack通知，失败时按配置重试
func (s *SlackNotifier) Send(ctx context.Context, notification *Notification) (*NotificationResult, error) {
	message := s.buildSlackMessage(notification)

	var lastErr error
	maxRetries := s.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}

		err := s.sendToSlack(ctx, message)
		if err == nil {
			return &NotificationResult{
				Success:   true,
				MessageID: uuid.New().String(),
				Timestamp: time.Now(),
			}, nil
		}

		lastErr = err
		s.logger.Warn("Failed to send Slack message, retrying",
			zap.Int("attempt", attempt+1),
			zap.String("channel", message.Channel),
			zap.Error(err))
	}

	return &NotificationResult{
		Success:   false,
		Error:     lastErr.Error(),
		Timestamp: time.Now(),
	}, lastErr
}

// buildSlackMessage 构建Slack消息，颜色随优先级变化
func (s *SlackNotifier) buildSlackMessage(notification *Notification) *SlackMessage {
	message := &SlackMessage{
		Channel:  notification.Channel,
		Username: s.config.Username,
		Text:     notification.Subject,
	}

	attachment := SlackAttachment{
		Fallback:   notification.Body,
		Text:       notification.Body,
		Timestamp:  notification.Timestamp.Unix(),
		MarkdownIn: []string{"text"},
		Footer:     "Team Metrics",
	}

	switch notification.Priority {
	case "high":
		attachment.Color = "danger"
	case "low":
		attachment.Color = "good"
	default:
		attachment.Color = "warning"
	}

	if len(notification.Metadata) > 0 {
		keys := make([]string, 0, len(notification.Metadata))
		for key := range notification.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		attachment.Fields = make([]SlackField, 0, len(keys))
		for _, key := range keys {
			value := notification.Metadata[key]
			if f, ok := value.(float64); ok {
				value = fmt.Sprintf("%.1f", f)
			}
			attachment.Fields = append(attachment.Fields, SlackField{
				Title: key,
				Value: fmt.Sprintf("%v", value),
				Short: true,
			})
		}
	}

	message.Attachments = []SlackAttachment{attachment}
	return message
}

// sendToSlack 发送消息到Slack
func (s *SlackNotifier) sendToSlack(ctx context.Context, message *SlackMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, string(body))
	}

	// Webhook成功时响应体为 "ok"
	if string(body) != "ok" {
		return fmt.Errorf("slack returned error: %s", string(body))
	}

	return nil
}
