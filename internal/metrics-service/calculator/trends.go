package calculator

import (
	"time"

	"github.com/google/uuid"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/models"
)

// Granularity 趋势分桶粒度
type Granularity int

const (
	Daily Granularity = iota
	Weekly
)

// GranularityFor 周报按天分桶，其余按周
func GranularityFor(period models.ReportPeriod) Granularity {
	if period == models.PeriodWeek {
		return Daily
	}
	return Weekly
}

// bucketStart 返回时间所在桶的起始日期，周桶从周一开始
func bucketStart(t time.Time, g Granularity) time.Time {
	day := Day(t)
	if g == Weekly {
		offset := (int(day.Weekday()) + 6) % 7
		day = day.AddDate(0, 0, -offset)
	}
	return day
}

func nextBucket(t time.Time, g Granularity) time.Time {
	if g == Weekly {
		return t.AddDate(0, 0, 7)
	}
	return t.AddDate(0, 0, 1)
}

type trendBucket struct {
	points     float64
	quality    []float64
	efficiency []float64
}

// ResampleTrends 将已完成任务按完成日期分桶
//
// 速度为每桶故事点之和，质量为每桶任务质量分均值，效率为每桶周期时间反转后的均值。
// 桶从第一个有数据的桶连续排到最后一个，中间空桶取0。
func ResampleTrends(tasks []models.Task, g Granularity) models.TrendSeries {
	series := models.TrendSeries{
		VelocityTrend:   []float64{},
		QualityTrend:    []float64{},
		EfficiencyTrend: []float64{},
		Dates:           []string{},
	}

	buckets := make(map[time.Time]*trendBucket)
	var first, last time.Time
	for _, t := range tasks {
		if !t.IsDone() {
			continue
		}
		key := bucketStart(t.UpdatedAt, g)
		b, ok := buckets[key]
		if !ok {
			b = &trendBucket{}
			buckets[key] = b
		}
		b.points += float64(t.StoryPoints)
		b.quality = append(b.quality, TaskQualityScore(t))
		b.efficiency = append(b.efficiency, EfficiencyScore(CycleTimeHours(t)))

		if first.IsZero() || key.Before(first) {
			first = key
		}
		if last.IsZero() || key.After(last) {
			last = key
		}
	}

	if len(buckets) == 0 {
		return series
	}

	for cur := first; !cur.After(last); cur = nextBucket(cur, g) {
		series.Dates = append(series.Dates, cur.Format(DateLayout))
		b, ok := buckets[cur]
		if !ok {
			series.VelocityTrend = append(series.VelocityTrend, 0)
			series.QualityTrend = append(series.QualityTrend, 0)
			series.EfficiencyTrend = append(series.EfficiencyTrend, 0)
			continue
		}
		series.VelocityTrend = append(series.VelocityTrend, b.points)
		series.QualityTrend = append(series.QualityTrend, Mean(b.quality))
		series.EfficiencyTrend = append(series.EfficiencyTrend, Mean(b.efficiency))
	}
	return series
}

// SprintTrends 按已完成迭代排列的速度、完成率、质量分序列
func SprintTrends(sprints []models.Sprint, tasks []models.Task, window int) models.SprintTrends {
	completed := CompletedSprints(sprints, window)

	bySprint := make(map[uuid.UUID][]models.Task)
	for _, t := range tasks {
		if t.SprintID != nil {
			bySprint[*t.SprintID] = append(bySprint[*t.SprintID], t)
		}
	}

	trends := models.SprintTrends{
		Velocity:       make([]float64, 0, len(completed)),
		CompletionRate: make([]float64, 0, len(completed)),
		Quality:        make([]float64, 0, len(completed)),
		Sprints:        make([]string, 0, len(completed)),
	}
	for _, s := range completed {
		trends.Velocity = append(trends.Velocity, float64(s.CompletedPoints))
		trends.CompletionRate = append(trends.CompletionRate, CompletionRate(s.PlannedPoints, s.CompletedPoints))
		trends.Quality = append(trends.Quality, Quality(bySprint[s.ID]).QualityScore)
		trends.Sprints = append(trends.Sprints, s.Name)
	}
	return trends
}
