// 包 metrics：各运维工具的 Prometheus 指标
// 背景：本仓全部为批处理进程，没有常驻监听端口；运行结束后按需推送到 Pushgateway
package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	AggRowsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pl_agg_rows_deleted_total",
		Help: "Aggregate rows deleted per geography level",
	}, []string{"level"})
	AggRowsInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pl_agg_rows_inserted_total",
		Help: "Aggregate rows inserted per geography level",
	}, []string{"level"})
	AggSkippedNullTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pl_agg_skipped_null_total",
		Help: "Parcel forecast rows skipped for NULL estimate fields",
	})
	AggUnitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pl_agg_unit_errors_total",
		Help: "Per-unit rebuild failures by level and stage",
	}, []string{"level", "stage"})
	RebuildDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pl_rebuild_duration_ms",
		Help:    "Full rebuild duration in milliseconds",
		Buckets: []float64{500, 1000, 5000, 15000, 60000, 300000, 900000},
	})
	FetchDownloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pl_fetch_downloads_total",
		Help: "Portal export files downloaded",
	})
	FetchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pl_fetch_failures_total",
		Help: "Portal export downloads failed",
	})
	CSVRowsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pl_csv_rows_upserted_total",
		Help: "CSV rows upserted into the database",
	})
	CSVRowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pl_csv_rows_skipped_total",
		Help: "Malformed CSV rows skipped",
	})
	TrainingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pl_training_runs_total",
		Help: "Training launcher outcomes by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(AggRowsDeleted)
	prometheus.MustRegister(AggRowsInserted)
	prometheus.MustRegister(AggSkippedNullTotal)
	prometheus.MustRegister(AggUnitErrors)
	prometheus.MustRegister(RebuildDurationMs)
	prometheus.MustRegister(FetchDownloadsTotal)
	prometheus.MustRegister(FetchFailuresTotal)
	prometheus.MustRegister(CSVRowsUpserted)
	prometheus.MustRegister(CSVRowsSkipped)
	prometheus.MustRegister(TrainingRunsTotal)
}

// Push：把默认注册表推送到 Pushgateway
// 约束：METRICS_PUSH_URL 未配置时直接返回 nil，指标仅在进程内计数，不算错误
func Push(job string) error {
	url := os.Getenv("METRICS_PUSH_URL")
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}
