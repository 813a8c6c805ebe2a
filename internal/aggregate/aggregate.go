// 包 aggregate：把 parcel 级预测行按地理单元分组并求均值，纯内存计算不触库
// 背景：重建流程把 fact⋈ladder 的结果交给本包分组；本包不关心层级与 SQL，
// 只保证同一输入产生逐字节一致的输出（ComputedAt 除外，由调用方传入）
package aggregate

import (
	"database/sql"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ParcelRow：一条 parcel 级预测行，已携带当前层级的地理键（GeoID 非空）
type ParcelRow struct {
	ParcelID      string
	GeoID         string
	OriginYear    int
	HorizonMonths int
	ForecastYear  int
	ValueEst      sql.NullFloat64
	P10           sql.NullFloat64
	P25           sql.NullFloat64
	P50           sql.NullFloat64
	P75           sql.NullFloat64
	P90           sql.NullFloat64
	SampleN       sql.NullInt64
	RunID         sql.NullString
	BacktestID    sql.NullString
	ModelVersion  sql.NullString
	AsOf          sql.NullTime
	ScenarioCount sql.NullInt64
}

// Row：一条聚合结果行，对应 _pl_agg_<level> 的一行
type Row struct {
	GeoID         string
	OriginYear    int
	HorizonMonths int
	ForecastYear  int
	ValueMean     float64
	P10Mean       float64
	P25Mean       float64
	P50Mean       float64
	P75Mean       float64
	P90Mean       float64
	ParcelN       int
	RunID         sql.NullString
	BacktestID    sql.NullString
	ModelVersion  sql.NullString
	AsOf          sql.NullTime
	ScenarioCount sql.NullInt64
	ComputedAt    time.Time
}

// Result：一次分组计算的产出与被剔除行数
type Result struct {
	Rows        []Row
	SkippedNull int
}

type groupKey struct {
	geoID        string
	originYear   int
	forecastYear int
}

type group struct {
	horizon  int
	est      []float64
	p10      []float64
	p25      []float64
	p50      []float64
	p75      []float64
	p90      []float64
	runID    sql.NullString
	backtest sql.NullString
	model    sql.NullString
	asOf     sql.NullTime
	scenario sql.NullInt64
}

// Build：按 (geo_id, origin_year, forecast_year) 分组，六个估计字段各取算术平均
// 约束：任一估计字段为 NULL 的行整行剔除并计入 SkippedNull，不做填补；
// 均值不加权，每个 parcel 等权（简单、可审计，刻意不追求统计最优）；
// 溯源字段组内取最大值作为确定性代表（文本按字典序、日期按时间序、计数按数值），
// 组内全空则保持 NULL。输出按键排序，保证重跑结果可逐字节比对
func Build(rows []ParcelRow, computedAt time.Time) Result {
	groups := make(map[groupKey]*group)
	skipped := 0
	for _, r := range rows {
		if !r.ValueEst.Valid || !r.P10.Valid || !r.P25.Valid || !r.P50.Valid || !r.P75.Valid || !r.P90.Valid {
			skipped++
			continue
		}
		k := groupKey{geoID: r.GeoID, originYear: r.OriginYear, forecastYear: r.ForecastYear}
		g := groups[k]
		if g == nil {
			g = &group{horizon: r.HorizonMonths}
			groups[k] = g
		}
		g.est = append(g.est, r.ValueEst.Float64)
		g.p10 = append(g.p10, r.P10.Float64)
		g.p25 = append(g.p25, r.P25.Float64)
		g.p50 = append(g.p50, r.P50.Float64)
		g.p75 = append(g.p75, r.P75.Float64)
		g.p90 = append(g.p90, r.P90.Float64)
		g.runID = maxString(g.runID, r.RunID)
		g.backtest = maxString(g.backtest, r.BacktestID)
		g.model = maxString(g.model, r.ModelVersion)
		g.asOf = maxTime(g.asOf, r.AsOf)
		g.scenario = maxInt(g.scenario, r.ScenarioCount)
	}
	out := make([]Row, 0, len(groups))
	for k, g := range groups {
		out = append(out, Row{
			GeoID:         k.geoID,
			OriginYear:    k.originYear,
			HorizonMonths: g.horizon,
			ForecastYear:  k.forecastYear,
			ValueMean:     stat.Mean(g.est, nil),
			P10Mean:       stat.Mean(g.p10, nil),
			P25Mean:       stat.Mean(g.p25, nil),
			P50Mean:       stat.Mean(g.p50, nil),
			P75Mean:       stat.Mean(g.p75, nil),
			P90Mean:       stat.Mean(g.p90, nil),
			ParcelN:       len(g.est),
			RunID:         g.runID,
			BacktestID:    g.backtest,
			ModelVersion:  g.model,
			AsOf:          g.asOf,
			ScenarioCount: g.scenario,
			ComputedAt:    computedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GeoID != out[j].GeoID {
			return out[i].GeoID < out[j].GeoID
		}
		if out[i].OriginYear != out[j].OriginYear {
			return out[i].OriginYear < out[j].OriginYear
		}
		return out[i].ForecastYear < out[j].ForecastYear
	})
	return Result{Rows: out, SkippedNull: skipped}
}

func maxString(a, b sql.NullString) sql.NullString {
	if !b.Valid {
		return a
	}
	if !a.Valid || b.String > a.String {
		return b
	}
	return a
}

func maxTime(a, b sql.NullTime) sql.NullTime {
	if !b.Valid {
		return a
	}
	if !a.Valid || b.Time.After(a.Time) {
		return b
	}
	return a
}

func maxInt(a, b sql.NullInt64) sql.NullInt64 {
	if !b.Valid {
		return a
	}
	if !a.Valid || b.Int64 > a.Int64 {
		return b
	}
	return a
}
