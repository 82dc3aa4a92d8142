package service

import (
	"sort"
	"strings"
	"time"
)

const (
	fnTeamMetrics   = "team_metrics"
	fnSprintMetrics = "sprint_metrics"
	fnTaskMetrics   = "task_metrics"
	fnTeamWorkload  = "team_workload"
	fnReport        = "report"
	fnSprintReport  = "sprint_report"
)

// CacheKey 构建确定性缓存键：前缀、函数名以及按参数名排序的非空参数
//
// 例如 metrics:team_metrics:end=...:team_id=...
func CacheKey(prefix, function string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(function)
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

// invalidationPattern 匹配包含某个参数值的所有键
func invalidationPattern(prefix, param, value string) string {
	return prefix + ":*" + param + "=" + value + "*"
}

func timeParam(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
