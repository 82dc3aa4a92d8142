package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// Dispatcher 将告警与报告转换为通知并投递到所有可用渠道
type Dispatcher struct {
	manager        *NotificationManager
	reportsChannel string
	logger         *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(manager *NotificationManager, reportsChannel string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		manager:        manager,
		reportsChannel: reportsChannel,
		logger:         logger,
	}
}

// Notify 逐条投递告警，单条失败不影响其余告警
func (d *Dispatcher) Notify(ctx context.Context, channel string, alerts []models.Alert) error {
	var errs []error
	for _, a := range alerts {
		if _, err := d.manager.Broadcast(ctx, AlertNotification(channel, a)); err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", a.Type, err))
		}
	}

	d.logger.Info("Alerts dispatched",
		zap.String("channel", channel),
		zap.Int("alerts", len(alerts)),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// PublishReport 发送周期报告到报告频道
func (d *Dispatcher) PublishReport(ctx context.Context, report *models.Report) error {
	_, err := d.manager.Broadcast(ctx, ReportNotification(d.reportsChannel, report))
	return err
}

// AlertNotification 构建告警通知，标题带严重程度标识
func AlertNotification(channel string, a models.Alert) *Notification {
	body := fmt.Sprintf("*Type:* %s\n*Severity:* %s\n*Team:* %s", a.Type, a.Severity, a.TeamID)
	if a.SprintID != nil {
		body += fmt.Sprintf("\n*Sprint:* %s", a.SprintID)
	}

	metadata := make(map[string]interface{}, len(a.Metrics))
	for k, v := range a.Metrics {
		metadata[k] = v
	}

	return &Notification{
		Kind:      KindAlert,
		Channel:   channel,
		TeamID:    a.TeamID.String(),
		Subject:   fmt.Sprintf("%s %s", a.Severity.Emoji(), a.Message),
		Body:      body,
		Priority:  string(a.Severity),
		Metadata:  metadata,
		Payload:   a,
		Timestamp: a.Timestamp,
	}
}

// ReportNotification 构建报告通知
func ReportNotification(channel string, r *models.Report) *Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "*Average velocity:* %.1f\n", r.Summary.AverageVelocity)
	fmt.Fprintf(&b, "*Completion rate:* %.1f%%\n", r.Summary.CompletionRate)
	fmt.Fprintf(&b, "*Quality score:* %.1f\n", r.Summary.QualityScore)
	fmt.Fprintf(&b, "*Tasks completed:* %d (%d points)\n", r.Summary.TasksCompleted, r.Summary.StoryPointsCompleted)
	fmt.Fprintf(&b, "*Team satisfaction:* %.1f%%", r.Summary.TeamSatisfaction)
	if len(r.Recommendations) > 0 {
		b.WriteString("\n\n*Recommendations:*")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "\n%s %s", rec.Severity.Emoji(), rec.Message)
		}
	}

	priority := "low"
	for _, rec := range r.Recommendations {
		if rec.Severity == models.SeverityHigh {
			priority = "high"
			break
		}
	}

	return &Notification{
		Kind:      KindReport,
		Channel:   channel,
		TeamID:    r.TeamID.String(),
		Subject:   fmt.Sprintf("📊 Team metrics report (%s)", r.Period),
		Body:      b.String(),
		Priority:  priority,
		Payload:   r.Summary,
		Timestamp: r.GeneratedAt,
	}
}
