// 包 rebuild：聚合重建编排
// 背景：按层级、按期限把 parcel 级预测整体置换为各级地理聚合；每个
// (层级, 期限) 是独立的工作单元，单元失败记录后继续，整次运行重跑即可补齐
package rebuild

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/aggregate"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

const (
	// SeriesForecast：模型产出的预测序列（区别于历史实际值）
	SeriesForecast = "forecast"
	// VariantCanonical：正式口径的预测配置（区别于实验性 variant）
	VariantCanonical = "canonical"
)

// DefaultHorizons：事实表已知包含的期限（月）；不在此列表的期限不参与重建，不做自动发现
var DefaultHorizons = []int{12, 24, 36, 48, 60}

// Store：重建所需的数据访问能力，测试注入内存实现
type Store interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
	DeleteAggregates(ctx context.Context, l geo.Level, seriesKind, variantID string) (int64, error)
	ForecastRows(ctx context.Context, l geo.Level, q store.ForecastQuery) ([]aggregate.ParcelRow, error)
	InsertAggregates(ctx context.Context, l geo.Level, seriesKind, variantID string, rows []aggregate.Row) (int64, error)
	CountAggregates(ctx context.Context, l geo.Level, seriesKind string) (int64, error)
}

// Config：一次重建的全部输入，构造时显式传入，不读环境
type Config struct {
	Levels     []geo.Level
	Horizons   []int
	SeriesKind string
	VariantID  string
	RunID      string
	Now        func() time.Time
}

// UnitError：一个工作单元的失败记录；Horizon 为 0 表示层级级别（删除阶段）的失败
type UnitError struct {
	Level   string
	Stage   string // delete / fetch / insert / verify
	Horizon int
	Err     error
}

// LevelResult：一个层级的处理结果
type LevelResult struct {
	Level    string
	Deleted  int64
	Inserted map[int]int64 // 期限 -> 写入行数
	Skipped  int           // NULL 估计字段被剔除的行数
	Verified int64         // 收尾核对计数；核对失败时为 -1
}

// Summary：整次运行的汇总，退出码不区分部分失败，操作员看此输出判断
type Summary struct {
	RunID            string
	OutlierExclusion bool
	Levels           []LevelResult
	Errors           []UnitError
	Elapsed          time.Duration
}

// Rebuilder：聚合重建器
type Rebuilder struct {
	cfg Config
	st  Store
	l   *slog.Logger
}

// New：构造重建器并补全缺省配置
func New(cfg Config, st Store) *Rebuilder {
	if len(cfg.Levels) == 0 {
		cfg.Levels = geo.Levels()
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = append([]int(nil), DefaultHorizons...)
	}
	if cfg.SeriesKind == "" {
		cfg.SeriesKind = SeriesForecast
	}
	if cfg.VariantID == "" {
		cfg.VariantID = VariantCanonical
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Rebuilder{cfg: cfg, st: st, l: logger.L()}
}

// Run：执行整次重建
// 流程：探测离群列 -> 逐层级（先整删后逐期限取数/分组/写入）-> 收尾逐表核对计数。
// 约束：单元失败只记录不中断；删除失败时跳过该层级的写入，避免新旧行混存
func (r *Rebuilder) Run(ctx context.Context) Summary {
	start := r.cfg.Now()
	sum := Summary{RunID: r.cfg.RunID}
	r.l.Info("rebuild_start", "run_id", r.cfg.RunID,
		"levels", len(r.cfg.Levels), "horizons", r.cfg.Horizons,
		"series", r.cfg.SeriesKind, "variant", r.cfg.VariantID)

	hasOutlier, err := r.st.HasColumn(ctx, store.FactTable, store.OutlierColumn)
	if err != nil {
		// 探测失败按列缺失处理：少剔除不丢数据，只是混入离群样本
		r.l.Warn("outlier_probe_error", "err", err)
		hasOutlier = false
	}
	if !hasOutlier {
		r.l.Warn("outlier_column_missing", "table", store.FactTable, "column", store.OutlierColumn)
	}
	sum.OutlierExclusion = hasOutlier

	for _, lv := range r.cfg.Levels {
		res := LevelResult{Level: lv.Name, Inserted: make(map[int]int64), Verified: -1}
		deleted, err := r.st.DeleteAggregates(ctx, lv, r.cfg.SeriesKind, r.cfg.VariantID)
		if err != nil {
			r.l.Error("agg_delete_error", "level", lv.Name, "err", err)
			metrics.AggUnitErrors.WithLabelValues(lv.Name, "delete").Inc()
			sum.Errors = append(sum.Errors, UnitError{Level: lv.Name, Stage: "delete", Err: err})
			sum.Levels = append(sum.Levels, res)
			continue
		}
		res.Deleted = deleted
		metrics.AggRowsDeleted.WithLabelValues(lv.Name).Add(float64(deleted))
		r.l.Info("agg_deleted", "level", lv.Name, "rows", deleted)

		for _, h := range r.cfg.Horizons {
			n, skipped, err := r.rebuildHorizon(ctx, lv, h, hasOutlier)
			if err != nil {
				sum.Errors = append(sum.Errors, UnitError{Level: lv.Name, Stage: errStage(err), Horizon: h, Err: unwrapStage(err)})
				continue
			}
			res.Inserted[h] = n
			res.Skipped += skipped
		}
		sum.Levels = append(sum.Levels, res)
	}

	// 收尾核对：逐表重新计数，给操作员一个粗粒度的合理性检查
	for i := range sum.Levels {
		lv, ok := geo.ByName(sum.Levels[i].Level)
		if !ok {
			continue
		}
		n, err := r.st.CountAggregates(ctx, lv, r.cfg.SeriesKind)
		if err != nil {
			r.l.Error("agg_verify_error", "level", lv.Name, "err", err)
			metrics.AggUnitErrors.WithLabelValues(lv.Name, "verify").Inc()
			sum.Errors = append(sum.Errors, UnitError{Level: lv.Name, Stage: "verify", Err: err})
			continue
		}
		sum.Levels[i].Verified = n
	}

	sum.Elapsed = r.cfg.Now().Sub(start)
	metrics.RebuildDurationMs.Observe(float64(sum.Elapsed.Milliseconds()))
	r.l.Info("rebuild_done", "run_id", r.cfg.RunID,
		"elapsed_ms", sum.Elapsed.Milliseconds(), "errors", len(sum.Errors))
	return sum
}

// rebuildHorizon：一个 (层级, 期限) 单元：取数、分组求均值、单事务写入
func (r *Rebuilder) rebuildHorizon(ctx context.Context, lv geo.Level, h int, excludeOutliers bool) (int64, int, error) {
	q := store.ForecastQuery{
		SeriesKind:      r.cfg.SeriesKind,
		VariantID:       r.cfg.VariantID,
		HorizonMonths:   h,
		ExcludeOutliers: excludeOutliers,
	}
	rows, err := r.st.ForecastRows(ctx, lv, q)
	if err != nil {
		r.l.Error("agg_fetch_error", "level", lv.Name, "horizon", h, "err", err)
		metrics.AggUnitErrors.WithLabelValues(lv.Name, "fetch").Inc()
		return 0, 0, &stageError{stage: "fetch", err: err}
	}
	result := aggregate.Build(rows, r.cfg.Now().UTC())
	if result.SkippedNull > 0 {
		r.l.Warn("skipped_null", "level", lv.Name, "horizon", h, "rows", result.SkippedNull)
		metrics.AggSkippedNullTotal.Add(float64(result.SkippedNull))
	}
	n, err := r.st.InsertAggregates(ctx, lv, r.cfg.SeriesKind, r.cfg.VariantID, result.Rows)
	if err != nil {
		r.l.Error("agg_insert_error", "level", lv.Name, "horizon", h, "err", err)
		metrics.AggUnitErrors.WithLabelValues(lv.Name, "insert").Inc()
		return 0, result.SkippedNull, &stageError{stage: "insert", err: err}
	}
	metrics.AggRowsInserted.WithLabelValues(lv.Name).Add(float64(n))
	r.l.Info("agg_inserted", "level", lv.Name, "horizon", h, "rows", n, "parcels", len(rows))
	return n, result.SkippedNull, nil
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func errStage(err error) string {
	if se, ok := err.(*stageError); ok {
		return se.stage
	}
	return "unknown"
}

func unwrapStage(err error) error {
	if se, ok := err.(*stageError); ok {
		return se.err
	}
	return err
}
