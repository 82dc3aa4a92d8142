package alert

import (
	"context"
	"fmt"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// Sink 告警投递目标
type Sink interface {
	Notify(ctx context.Context, channel string, alerts []models.Alert) error
}

// Router 按严重程度选择频道，高危告警进入告警频道，其余发给团队负责人
type Router struct {
	AlertsChannel    string
	TeamLeadsChannel string
}

// ChannelFor 返回严重程度对应的频道
func (r Router) ChannelFor(severity models.Severity) string {
	if severity == models.SeverityHigh {
		return r.AlertsChannel
	}
	return r.TeamLeadsChannel
}

// Dispatch 按频道分组投递，频道内保持评估顺序
func Dispatch(ctx context.Context, sink Sink, router Router, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	order := make([]string, 0, 2)
	grouped := make(map[string][]models.Alert)
	for _, a := range alerts {
		channel := router.ChannelFor(a.Severity)
		if _, ok := grouped[channel]; !ok {
			order = append(order, channel)
		}
		grouped[channel] = append(grouped[channel], a)
	}

	for _, channel := range order {
		if err := sink.Notify(ctx, channel, grouped[channel]); err != nil {
			return fmt.Errorf("dispatch alerts to %s: %w", channel, err)
		}
	}
	return nil
}
