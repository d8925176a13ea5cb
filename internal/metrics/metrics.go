// Package metrics 记录单次运行的指标，运行结束时写成 node_exporter textfile 格式
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 每次运行新建，使用独立 Registry，不污染默认注册表
type Metrics struct {
	registry *prometheus.Registry

	Checks          *prometheus.CounterVec
	Updates         prometheus.Counter
	Extractions     *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	StandardsTotal  prometheus.Gauge
	LastRunStatus   *prometheus.GaugeVec
	LastRunTime     prometheus.Gauge
	LastRunDuration prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regmon_checks_total",
			Help: "Standards checked in the last run by outcome",
		}, []string{"source_type", "outcome"}),
		Updates: f.NewCounter(prometheus.CounterOpts{
			Name: "regmon_updates_detected_total",
			Help: "Version changes detected in the last run",
		}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regmon_extractions_total",
			Help: "Successful extractions by source type and fallback rung",
		}, []string{"source_type", "rung"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regmon_notifications_total",
			Help: "Notification deliveries by kind and result",
		}, []string{"kind", "result"}),
		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regmon_check_duration_seconds",
			Help:    "Duration of a single standard check including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		StandardsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "regmon_standards",
			Help: "Standards configured in the state file",
		}),
		LastRunStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regmon_last_run_status",
			Help: "1 for the status of the last run, 0 for the others",
		}, []string{"status"}),
		LastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "regmon_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		LastRunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "regmon_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

// ObserveCheck 记录一个标准的检查结果
func (m *Metrics) ObserveCheck(sourceType, outcome string, start time.Time) {
	m.Checks.WithLabelValues(sourceType, outcome).Inc()
	m.CheckDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveExtraction(sourceType, rung string) {
	m.Extractions.WithLabelValues(sourceType, rung).Inc()
}

func (m *Metrics) ObserveNotification(kind, result string, n int) {
	m.Notifications.WithLabelValues(kind, result).Add(float64(n))
}

// SetRun 记录运行结果；statuses 列出全部状态，以便未命中的状态输出 0
func (m *Metrics) SetRun(status string, statuses []string, finished time.Time, took time.Duration) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.LastRunStatus.WithLabelValues(s).Set(v)
	}
	m.LastRunTime.Set(float64(finished.Unix()))
	m.LastRunDuration.Set(took.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile 写入 path；path 为空时不做任何事
// WriteToTextfile 内部先写临时文件再 rename
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
