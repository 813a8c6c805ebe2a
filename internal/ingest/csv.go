// 包 ingest：本地 CSV 导出文件批量写入数据库
// 背景：各县导出的列名大小写与顺序不一，按表头名做大小写不敏感映射；
// 老系统导出常见 Latin-1 / Windows-1252 编码，读入时按配置转码
package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
)

// Kind：目标表选择
type Kind string

const (
	KindForecasts Kind = "forecasts"
	KindLadder    Kind = "ladder"
)

// batchSize：每批提交的行数，降低长事务的锁持有与 WAL 压力
const batchSize = 5000

type column struct {
	name     string
	required bool
}

var forecastColumns = []column{
	{"parcel_id", true},
	{"origin_year", true},
	{"horizon_months", true},
	{"forecast_year", true},
	{"value_est", true},
	{"value_p10", false},
	{"value_p25", false},
	{"value_p50", false},
	{"value_p75", false},
	{"value_p90", false},
	{"sample_n", false},
	{"run_id", false},
	{"backtest_id", false},
	{"model_version", false},
	{"as_of", false},
	{"scenario_count", false},
	{"series_kind", false},
	{"variant_id", false},
	{"is_outlier", false},
}

var ladderColumns = []column{
	{"parcel_id", true},
	{"tax_block_id", false},
	{"tract_id", false},
	{"zcta_id", false},
	{"school_district_id", false},
	{"neighborhood_id", false},
}

func columnsFor(kind Kind) ([]column, error) {
	switch kind {
	case KindForecasts:
		return forecastColumns, nil
	case KindLadder:
		return ladderColumns, nil
	}
	return nil, fmt.Errorf("ingest: unknown kind %q", kind)
}

// DecodeReader：按配置的编码包装读取器
// 约束：只认 utf8 / latin1 / windows1252，其余视为配置错误
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return r, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows1252", "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	}
	return nil, fmt.Errorf("ingest: unsupported encoding %q", encoding)
}

// headerIndex：表头名到列号的大小写不敏感映射
// 约束：必填列缺失直接报错终止；文件里多出的列忽略
func headerIndex(cols []column, header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := make(map[string]int, len(cols))
	var missing []string
	for _, c := range cols {
		i, ok := byName[c.name]
		if !ok {
			if c.required {
				missing = append(missing, c.name)
			}
			continue
		}
		idx[c.name] = i
	}
	if len(missing) > 0 {
		return nil, errors.New("ingest: missing required headers: " + strings.Join(missing, ", "))
	}
	return idx, nil
}

// field：取一个字段，列不存在或值为空串返回 nil（落库为 NULL）
func field(idx map[string]int, record []string, name string) interface{} {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return nil
	}
	v := strings.TrimSpace(record[i])
	if v == "" {
		return nil
	}
	return v
}

func intField(idx map[string]int, record []string, name string) (interface{}, error) {
	v := field(idx, record, name)
	if v == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(v.(string))
	if err != nil {
		return nil, fmt.Errorf("bad int %s: %w", name, err)
	}
	return n, nil
}

func floatField(idx map[string]int, record []string, name string) (interface{}, error) {
	v := field(idx, record, name)
	if v == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v.(string), 64)
	if err != nil {
		return nil, fmt.Errorf("bad float %s: %w", name, err)
	}
	return f, nil
}

func boolField(idx map[string]int, record []string, name string) (interface{}, error) {
	v := field(idx, record, name)
	if v == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v.(string)))
	if err != nil {
		return nil, fmt.Errorf("bad bool %s: %w", name, err)
	}
	return b, nil
}

// parseForecastRow：一行导出转成绑定参数序列（与 upsert 语句的占位符一一对应）
// 约束：必填字段缺失、数值解析失败都算坏行，由调用方跳过计数
func parseForecastRow(idx map[string]int, record []string) ([]interface{}, error) {
	parcel := field(idx, record, "parcel_id")
	if parcel == nil {
		return nil, errors.New("empty parcel_id")
	}
	args := []interface{}{parcel}
	for _, name := range []string{"origin_year", "horizon_months", "forecast_year"} {
		v, err := intField(idx, record, name)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errors.New("empty " + name)
		}
		args = append(args, v)
	}
	for _, name := range []string{"value_est", "value_p10", "value_p25", "value_p50", "value_p75", "value_p90"} {
		v, err := floatField(idx, record, name)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	sampleN, err := intField(idx, record, "sample_n")
	if err != nil {
		return nil, err
	}
	args = append(args, sampleN,
		field(idx, record, "run_id"),
		field(idx, record, "backtest_id"),
		field(idx, record, "model_version"))
	if v := field(idx, record, "as_of"); v != nil {
		t, err := time.Parse("2006-01-02", v.(string))
		if err != nil {
			return nil, fmt.Errorf("bad date as_of: %w", err)
		}
		args = append(args, t)
	} else {
		args = append(args, nil)
	}
	scenario, err := intField(idx, record, "scenario_count")
	if err != nil {
		return nil, err
	}
	series := field(idx, record, "series_kind")
	if series == nil {
		series = "forecast"
	}
	variant := field(idx, record, "variant_id")
	if variant == nil {
		variant = "canonical"
	}
	outlier, err := boolField(idx, record, "is_outlier")
	if err != nil {
		return nil, err
	}
	args = append(args, scenario, series, variant, outlier)
	return args, nil
}

func parseLadderRow(idx map[string]int, record []string) ([]interface{}, error) {
	parcel := field(idx, record, "parcel_id")
	if parcel == nil {
		return nil, errors.New("empty parcel_id")
	}
	return []interface{}{
		parcel,
		field(idx, record, "tax_block_id"),
		field(idx, record, "tract_id"),
		field(idx, record, "zcta_id"),
		field(idx, record, "school_district_id"),
		field(idx, record, "neighborhood_id"),
	}, nil
}

const upsertForecastSQL = `INSERT INTO _pl_parcel_forecasts(
		parcel_id, origin_year, horizon_months, forecast_year,
		value_est, value_p10, value_p25, value_p50, value_p75, value_p90,
		sample_n, run_id, backtest_id, model_version, as_of, scenario_count,
		series_kind, variant_id, is_outlier)
	VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	ON CONFLICT (parcel_id, origin_year, horizon_months, series_kind, variant_id) DO UPDATE SET
		forecast_year = EXCLUDED.forecast_year,
		value_est = EXCLUDED.value_est,
		value_p10 = EXCLUDED.value_p10,
		value_p25 = EXCLUDED.value_p25,
		value_p50 = EXCLUDED.value_p50,
		value_p75 = EXCLUDED.value_p75,
		value_p90 = EXCLUDED.value_p90,
		sample_n = EXCLUDED.sample_n,
		run_id = EXCLUDED.run_id,
		backtest_id = EXCLUDED.backtest_id,
		model_version = EXCLUDED.model_version,
		as_of = EXCLUDED.as_of,
		scenario_count = EXCLUDED.scenario_count,
		is_outlier = EXCLUDED.is_outlier`

const upsertLadderSQL = `INSERT INTO _pl_parcel_geo(
		parcel_id, tax_block_id, tract_id, zcta_id, school_district_id, neighborhood_id)
	VALUES($1,$2,$3,$4,$5,$6)
	ON CONFLICT (parcel_id) DO UPDATE SET
		tax_block_id = EXCLUDED.tax_block_id,
		tract_id = EXCLUDED.tract_id,
		zcta_id = EXCLUDED.zcta_id,
		school_district_id = EXCLUDED.school_district_id,
		neighborhood_id = EXCLUDED.neighborhood_id`

// Stats：一次导入的行数统计
type Stats struct {
	Upserted int
	Skipped  int
}

// LoadCSV：读文件、映射表头、逐行 UPSERT，每 5000 行提交一批
// 异常：文件与表头问题直接返回；坏数据行跳过计数；数据库错误返回（重跑幂等）
func LoadCSV(ctx context.Context, db *sql.DB, path string, kind Kind, encoding string) (Stats, error) {
	var stats Stats
	cols, err := columnsFor(kind)
	if err != nil {
		return stats, err
	}
	upsertSQL := upsertForecastSQL
	parse := parseForecastRow
	if kind == KindLadder {
		upsertSQL = upsertLadderSQL
		parse = parseLadderRow
	}

	f, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()
	decoded, err := DecodeReader(f, encoding)
	if err != nil {
		return stats, err
	}
	rd := csv.NewReader(decoded)
	rd.FieldsPerRecord = -1
	header, err := rd.Read()
	if err != nil {
		return stats, fmt.Errorf("ingest: read header: %w", err)
	}
	idx, err := headerIndex(cols, header)
	if err != nil {
		return stats, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return stats, err
	}

	l := logger.L()
	for {
		record, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// CSV 结构性坏行（引号不闭合等），跳过继续
			l.Warn("csv_row_malformed", "err", err)
			stats.Skipped++
			metrics.CSVRowsSkipped.Inc()
			continue
		}
		args, err := parse(idx, record)
		if err != nil {
			l.Warn("csv_row_skipped", "err", err)
			stats.Skipped++
			metrics.CSVRowsSkipped.Inc()
			continue
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return stats, err
		}
		stats.Upserted++
		metrics.CSVRowsUpserted.Inc()
		if stats.Upserted%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return stats, err
			}
			l.Info("csv_batch_committed", "rows", stats.Upserted)
			tx, err = db.BeginTx(ctx, nil)
			if err != nil {
				return stats, err
			}
			stmt, err = tx.PrepareContext(ctx, upsertSQL)
			if err != nil {
				return stats, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}
