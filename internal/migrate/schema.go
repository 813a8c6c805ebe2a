// 包 migrate：业务表结构的幂等迁移，支持按辖区 schema 重复应用
// 背景：多辖区部署把一个辖区映射到一个 Postgres schema，同一套 DDL 逐 schema 执行；
// 全部语句 IF NOT EXISTS，可反复运行
package migrate

import (
	"database/sql"
	"fmt"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/geo"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
)

// qualify：schema 为空时走当前 search_path，非空时逐表限定
func qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// Statements：生成一个 schema 下的全部迁移语句
// 约束：聚合表按 geo 白名单逐层生成，列结构五表一致；后加列用 ADD COLUMN IF NOT EXISTS
// 追平旧部署（scenario_count / is_outlier / backtest_id 为上线后补充的列）
func Statements(schema string) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            parcel_id TEXT NOT NULL,
            origin_year INT NOT NULL,
            horizon_months INT NOT NULL,
            forecast_year INT NOT NULL,
            value_est DOUBLE PRECISION,
            value_p10 DOUBLE PRECISION,
            value_p25 DOUBLE PRECISION,
            value_p50 DOUBLE PRECISION,
            value_p75 DOUBLE PRECISION,
            value_p90 DOUBLE PRECISION,
            sample_n INT,
            run_id TEXT,
            model_version TEXT,
            as_of DATE,
            series_kind TEXT NOT NULL DEFAULT 'forecast',
            variant_id TEXT NOT NULL DEFAULT 'canonical'
        )`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS scenario_count INT`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS is_outlier BOOLEAN`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS backtest_id TEXT`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uniq_parcel_forecast ON %s(parcel_id, origin_year, horizon_months, series_kind, variant_id)`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_forecast_series_horizon ON %s(series_kind, variant_id, horizon_months)`, qualify(schema, "_pl_parcel_forecasts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            parcel_id TEXT PRIMARY KEY,
            tax_block_id TEXT,
            tract_id TEXT,
            zcta_id TEXT,
            school_district_id TEXT,
            neighborhood_id TEXT
        )`, qualify(schema, "_pl_parcel_geo")),
	}
	for _, lv := range geo.Levels() {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            geo_id TEXT NOT NULL,
            origin_year INT NOT NULL,
            horizon_months INT NOT NULL,
            forecast_year INT NOT NULL,
            series_kind TEXT NOT NULL,
            variant_id TEXT NOT NULL,
            value_mean DOUBLE PRECISION,
            p10_mean DOUBLE PRECISION,
            p25_mean DOUBLE PRECISION,
            p50_mean DOUBLE PRECISION,
            p75_mean DOUBLE PRECISION,
            p90_mean DOUBLE PRECISION,
            parcel_n INT NOT NULL,
            run_id TEXT,
            backtest_id TEXT,
            model_version TEXT,
            as_of DATE,
            scenario_count INT,
            computed_at TIMESTAMPTZ NOT NULL
        )`, qualify(schema, lv.AggTable)),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS uniq%s ON %s(geo_id, origin_year, horizon_months, forecast_year, series_kind, variant_id)`, lv.AggTable, qualify(schema, lv.AggTable)),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id SERIAL PRIMARY KEY,
            jurisdiction TEXT,
            source_url TEXT,
            object_name TEXT UNIQUE,
            sha256 TEXT,
            bytes BIGINT,
            fetched_at TIMESTAMPTZ DEFAULT now(),
            uploaded BOOLEAN DEFAULT FALSE
        )`, qualify(schema, "_pl_source_files")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id TEXT PRIMARY KEY,
            jurisdiction TEXT,
            model_config TEXT,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ,
            exit_code INT,
            status TEXT,
            log_tail TEXT
        )`, qualify(schema, "_pl_training_runs")),
	)
	return stmts
}

// EnsureSchema：在指定 schema 下建齐全部业务表与索引
// 约束：schema 非空时先 CREATE SCHEMA IF NOT EXISTS；逐条执行，出错即返回
func EnsureSchema(db *sql.DB, schema string) error {
	if schema != "" {
		if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS ` + schema); err != nil {
			return err
		}
	}
	for i, s := range Statements(schema) {
		logger.L().Debug("schema_exec", "schema", schema, "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done", "schema", schema)
	return nil
}
