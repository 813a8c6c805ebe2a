// 聚合重建相关的查询：SQL 文本由层级白名单驱动生成，业务值全部走绑定参数
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/aggregate"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
)

// ErrUnknownLevel：传入的层级没有逐字段命中 geo 白名单
var ErrUnknownLevel = errors.New("store: geography level not in whitelist")

// ForecastQuery：一次 fact⋈ladder 取数的过滤条件
// 约束：series/variant/horizon 以绑定参数进入查询；是否剔除离群由能力探测结果决定
type ForecastQuery struct {
	SeriesKind      string
	VariantID       string
	HorizonMonths   int
	ExcludeOutliers bool
}

// deleteAggregatesSQL：整表按 series/variant 删除，层级只决定表名
func deleteAggregatesSQL(l geo.Level) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE series_kind = $1 AND variant_id = $2`, l.AggTable)
}

// forecastRowsSQL：fact⋈ladder 联表取数
// 背景：阶梯表中该层级键为 NULL 的 parcel 不参与本层聚合；排序保证重跑输出稳定
func forecastRowsSQL(l geo.Level, excludeOutliers bool) string {
	q := fmt.Sprintf(`SELECT f.parcel_id, g.%s, f.origin_year, f.horizon_months, f.forecast_year,
		f.value_est, f.value_p10, f.value_p25, f.value_p50, f.value_p75, f.value_p90,
		f.sample_n, f.run_id, f.backtest_id, f.model_version, f.as_of, f.scenario_count
	FROM %s f
	JOIN %s g ON g.parcel_id = f.parcel_id
	WHERE f.series_kind = $1 AND f.variant_id = $2 AND f.horizon_months = $3
	  AND g.%s IS NOT NULL`, l.KeyColumn, FactTable, LadderTable, l.KeyColumn)
	if excludeOutliers {
		q += `
	  AND COALESCE(f.is_outlier, FALSE) = FALSE`
	}
	q += fmt.Sprintf(`
	ORDER BY g.%s, f.origin_year, f.forecast_year, f.parcel_id`, l.KeyColumn)
	return q
}

func insertAggregateSQL(l geo.Level) string {
	return fmt.Sprintf(`INSERT INTO %s(
		geo_id, origin_year, horizon_months, forecast_year, series_kind, variant_id,
		value_mean, p10_mean, p25_mean, p50_mean, p75_mean, p90_mean,
		parcel_n, run_id, backtest_id, model_version, as_of, scenario_count, computed_at)
	VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`, l.AggTable)
}

func countAggregatesSQL(l geo.Level) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE series_kind = $1`, l.AggTable)
}

// DeleteAggregates：删掉该层级下指定 series/variant 的全部聚合行（整体置换的前半步）
func (s *Store) DeleteAggregates(ctx context.Context, l geo.Level, seriesKind, variantID string) (int64, error) {
	if !geo.Valid(l) {
		return 0, ErrUnknownLevel
	}
	res, err := s.db.ExecContext(ctx, deleteAggregatesSQL(l), seriesKind, variantID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ForecastRows：取一个层级、一个期限的 parcel 级预测行（已联表、已排除 NULL 地理键）
func (s *Store) ForecastRows(ctx context.Context, l geo.Level, q ForecastQuery) ([]aggregate.ParcelRow, error) {
	if !geo.Valid(l) {
		return nil, ErrUnknownLevel
	}
	rows, err := s.db.QueryContext(ctx, forecastRowsSQL(l, q.ExcludeOutliers),
		q.SeriesKind, q.VariantID, q.HorizonMonths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []aggregate.ParcelRow
	for rows.Next() {
		var r aggregate.ParcelRow
		if err := rows.Scan(&r.ParcelID, &r.GeoID, &r.OriginYear, &r.HorizonMonths, &r.ForecastYear,
			&r.ValueEst, &r.P10, &r.P25, &r.P50, &r.P75, &r.P90,
			&r.SampleN, &r.RunID, &r.BacktestID, &r.ModelVersion, &r.AsOf, &r.ScenarioCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertAggregates：单事务写入一个期限的聚合结果
// 约束：同一期限的行要么全部落库要么全部回滚，跨期限不做事务保证
func (s *Store) InsertAggregates(ctx context.Context, l geo.Level, seriesKind, variantID string, rows []aggregate.Row) (int64, error) {
	if !geo.Valid(l) {
		return 0, ErrUnknownLevel
	}
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, insertAggregateSQL(l))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.GeoID, r.OriginYear, r.HorizonMonths, r.ForecastYear, seriesKind, variantID,
			r.ValueMean, r.P10Mean, r.P25Mean, r.P50Mean, r.P75Mean, r.P90Mean,
			r.ParcelN, r.RunID, r.BacktestID, r.ModelVersion, r.AsOf, r.ScenarioCount, r.ComputedAt); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// CountAggregates：重建收尾的核对计数
func (s *Store) CountAggregates(ctx context.Context, l geo.Level, seriesKind string) (int64, error) {
	if !geo.Valid(l) {
		return 0, ErrUnknownLevel
	}
	var n int64
	err := s.db.QueryRowContext(ctx, countAggregatesSQL(l), seriesKind).Scan(&n)
	return n, err
}
