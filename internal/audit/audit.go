// 包 audit：把线上库的目录信息与声明式期望结构做差异比对
// 背景：多辖区、多轮迁移后，线上 schema 容易悄然漂移；本包给操作员一张差异清单，
// 不做任何修复动作
package audit

import (
	"context"
	"database/sql"
	"sort"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
)

// Finding：一条审计发现
type Finding struct {
	Kind     string // missing_table / missing_column / type_mismatch / unexpected_column / object_missing / object_unregistered / size_drift
	Severity string // error / warn / info
	Table    string
	Column   string
	Want     string
	Got      string
}

// CatalogColumn：information_schema.columns 的一行（已限定到业务表）
type CatalogColumn struct {
	Table    string
	Column   string
	DataType string
}

// ExpectedColumns：期望的表 -> 列 -> information_schema 数据类型
// 约束：与 migrate.Statements 的 DDL 保持一致；聚合表由 geo 白名单展开
func ExpectedColumns() map[string]map[string]string {
	aggCols := map[string]string{
		"geo_id": "text", "origin_year": "integer", "horizon_months": "integer",
		"forecast_year": "integer", "series_kind": "text", "variant_id": "text",
		"value_mean": "double precision", "p10_mean": "double precision",
		"p25_mean": "double precision", "p50_mean": "double precision",
		"p75_mean": "double precision", "p90_mean": "double precision",
		"parcel_n": "integer", "run_id": "text", "backtest_id": "text",
		"model_version": "text", "as_of": "date", "scenario_count": "integer",
		"computed_at": "timestamp with time zone",
	}
	m := map[string]map[string]string{
		"_pl_parcel_forecasts": {
			"parcel_id": "text", "origin_year": "integer", "horizon_months": "integer",
			"forecast_year": "integer", "value_est": "double precision",
			"value_p10": "double precision", "value_p25": "double precision",
			"value_p50": "double precision", "value_p75": "double precision",
			"value_p90": "double precision", "sample_n": "integer",
			"run_id": "text", "backtest_id": "text", "model_version": "text",
			"as_of": "date", "scenario_count": "integer",
			"series_kind": "text", "variant_id": "text", "is_outlier": "boolean",
		},
		"_pl_parcel_geo": {
			"parcel_id": "text", "tax_block_id": "text", "tract_id": "text",
			"zcta_id": "text", "school_district_id": "text", "neighborhood_id": "text",
		},
		"_pl_source_files": {
			"id": "integer", "jurisdiction": "text", "source_url": "text",
			"object_name": "text", "sha256": "text", "bytes": "bigint",
			"fetched_at": "timestamp with time zone", "uploaded": "boolean",
		},
		"_pl_training_runs": {
			"id": "text", "jurisdiction": "text", "model_config": "text",
			"started_at": "timestamp with time zone", "finished_at": "timestamp with time zone",
			"exit_code": "integer", "status": "text", "log_tail": "text",
		},
	}
	for _, lv := range geo.Levels() {
		cols := make(map[string]string, len(aggCols))
		for k, v := range aggCols {
			cols[k] = v
		}
		m[lv.AggTable] = cols
	}
	return m
}

// optionalColumns：缺失只告警不算错的列（与重建器的降级行为一致）
var optionalColumns = map[string]map[string]bool{
	"_pl_parcel_forecasts": {"is_outlier": true},
}

// LoadCatalog：读当前 schema 下业务表的列目录
func LoadCatalog(ctx context.Context, db *sql.DB) ([]CatalogColumn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name, column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name LIKE '\_pl\_%'
		 ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CatalogColumn
	for rows.Next() {
		var c CatalogColumn
		if err := rows.Scan(&c.Table, &c.Column, &c.DataType); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DiffSchema：期望结构与目录的双向比对
// 背景：缺表缺列与类型不符是 error；可选列缺失是 warn；多出来的列只提示，
// 线上手工补列的情况并不少见，不当成问题
func DiffSchema(catalog []CatalogColumn, expected map[string]map[string]string) []Finding {
	got := make(map[string]map[string]string)
	for _, c := range catalog {
		if got[c.Table] == nil {
			got[c.Table] = make(map[string]string)
		}
		got[c.Table][c.Column] = c.DataType
	}
	var out []Finding
	tables := make([]string, 0, len(expected))
	for t := range expected {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		gcols, ok := got[t]
		if !ok {
			out = append(out, Finding{Kind: "missing_table", Severity: "error", Table: t})
			continue
		}
		cols := make([]string, 0, len(expected[t]))
		for c := range expected[t] {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			want := expected[t][c]
			g, ok := gcols[c]
			if !ok {
				sev := "error"
				if optionalColumns[t][c] {
					sev = "warn"
				}
				out = append(out, Finding{Kind: "missing_column", Severity: sev, Table: t, Column: c, Want: want})
				continue
			}
			if g != want {
				out = append(out, Finding{Kind: "type_mismatch", Severity: "error", Table: t, Column: c, Want: want, Got: g})
			}
		}
		extra := make([]string, 0)
		for c := range gcols {
			if _, ok := expected[t][c]; !ok {
				extra = append(extra, c)
			}
		}
		sort.Strings(extra)
		for _, c := range extra {
			out = append(out, Finding{Kind: "unexpected_column", Severity: "info", Table: t, Column: c, Got: gcols[c]})
		}
	}
	return out
}
