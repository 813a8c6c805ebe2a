// 包 seed：开发库的合成数据生成
// 背景：县级真实数据不能进开发环境；用固定随机种子生成形似 GEOID 的阶梯行
// 与带分位数的预测行，让重建与审计工具可以端到端跑通
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
)

// Config：生成规模与形态
type Config struct {
	Parcels     int
	Seed        int64
	Horizons    []int
	OriginYear  int
	NullGeoFrac float64 // 每个地理键独立置 NULL 的概率
	OutlierFrac float64
}

// LadderRow：一条合成阶梯行；地理键为 nil 表示该层无归属
type LadderRow struct {
	ParcelID       string
	TaxBlockID     *string
	TractID        *string
	ZCTAID         *string
	SchoolDistID   *string
	NeighborhoodID *string
}

// ForecastRow：一条合成预测行，quantile 围绕中心估计展开
type ForecastRow struct {
	ParcelID      string
	OriginYear    int
	HorizonMonths int
	ForecastYear  int
	ValueEst      float64
	P10, P25      float64
	P50, P75, P90 float64
	SampleN       int
	RunID         string
	ModelVersion  string
	IsOutlier     bool
}

// Generate：确定性生成阶梯与预测行
// 约束：同一 Seed 产生同一批数据；地理单元数量压到远小于 parcel 数，
// 保证每个单元有多个 parcel 参与均值
func Generate(cfg Config) ([]LadderRow, []ForecastRow) {
	if cfg.Parcels <= 0 {
		cfg.Parcels = 1000
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{12, 24, 36, 48, 60}
	}
	if cfg.OriginYear == 0 {
		cfg.OriginYear = 2025
	}
	faker := gofakeit.New(cfg.Seed)
	runID := "seed-" + faker.UUID()

	ladder := make([]LadderRow, 0, cfg.Parcels)
	forecasts := make([]ForecastRow, 0, cfg.Parcels*len(cfg.Horizons))
	for i := 0; i < cfg.Parcels; i++ {
		parcel := fmt.Sprintf("%06d", 100000+i)
		// GEOID 形态：48453 为县前缀，tract 6 位、block 4 位
		tract := fmt.Sprintf("48453%06d", faker.Number(1, 40)*100)
		block := tract + fmt.Sprintf("%04d", faker.Number(1, 20))
		zcta := fmt.Sprintf("787%02d", faker.Number(1, 50))
		district := fmt.Sprintf("TX%05d", faker.Number(1, 12))
		hood := fmt.Sprintf("N%03d", faker.Number(1, 60))
		row := LadderRow{ParcelID: parcel}
		if faker.Float64Range(0, 1) >= cfg.NullGeoFrac {
			row.TaxBlockID = &block
		}
		if faker.Float64Range(0, 1) >= cfg.NullGeoFrac {
			row.TractID = &tract
		}
		if faker.Float64Range(0, 1) >= cfg.NullGeoFrac {
			row.ZCTAID = &zcta
		}
		if faker.Float64Range(0, 1) >= cfg.NullGeoFrac {
			row.SchoolDistID = &district
		}
		if faker.Float64Range(0, 1) >= cfg.NullGeoFrac {
			row.NeighborhoodID = &hood
		}
		ladder = append(ladder, row)

		base := faker.Float64Range(120000, 900000)
		for _, h := range cfg.Horizons {
			growth := math.Pow(1.035, float64(h)/12)
			est := base * growth
			spread := est * 0.08
			forecasts = append(forecasts, ForecastRow{
				ParcelID:      parcel,
				OriginYear:    cfg.OriginYear,
				HorizonMonths: h,
				ForecastYear:  cfg.OriginYear + h/12,
				ValueEst:      est,
				P10:           est - 1.28*spread,
				P25:           est - 0.67*spread,
				P50:           est,
				P75:           est + 0.67*spread,
				P90:           est + 1.28*spread,
				SampleN:       faker.Number(50, 500),
				RunID:         runID,
				ModelVersion:  "seed-v1",
				IsOutlier:     faker.Float64Range(0, 1) < cfg.OutlierFrac,
			})
		}
	}
	return ladder, forecasts
}

// Insert：把合成数据 UPSERT 进开发库
func Insert(ctx context.Context, db *sql.DB, ladder []LadderRow, forecasts []ForecastRow) error {
	l := logger.L()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ladderStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _pl_parcel_geo(parcel_id, tax_block_id, tract_id, zcta_id, school_district_id, neighborhood_id)
		 VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (parcel_id) DO UPDATE SET
		   tax_block_id = EXCLUDED.tax_block_id,
		   tract_id = EXCLUDED.tract_id,
		   zcta_id = EXCLUDED.zcta_id,
		   school_district_id = EXCLUDED.school_district_id,
		   neighborhood_id = EXCLUDED.neighborhood_id`)
	if err != nil {
		return err
	}
	defer ladderStmt.Close()
	for _, r := range ladder {
		if _, err := ladderStmt.ExecContext(ctx, r.ParcelID, r.TaxBlockID, r.TractID, r.ZCTAID, r.SchoolDistID, r.NeighborhoodID); err != nil {
			return err
		}
	}
	fcStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _pl_parcel_forecasts(parcel_id, origin_year, horizon_months, forecast_year,
		   value_est, value_p10, value_p25, value_p50, value_p75, value_p90,
		   sample_n, run_id, model_version, as_of, series_kind, variant_id, is_outlier)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),'forecast','canonical',$14)
		 ON CONFLICT (parcel_id, origin_year, horizon_months, series_kind, variant_id) DO UPDATE SET
		   value_est = EXCLUDED.value_est,
		   value_p10 = EXCLUDED.value_p10,
		   value_p25 = EXCLUDED.value_p25,
		   value_p50 = EXCLUDED.value_p50,
		   value_p75 = EXCLUDED.value_p75,
		   value_p90 = EXCLUDED.value_p90,
		   sample_n = EXCLUDED.sample_n,
		   run_id = EXCLUDED.run_id,
		   model_version = EXCLUDED.model_version,
		   is_outlier = EXCLUDED.is_outlier`)
	if err != nil {
		return err
	}
	defer fcStmt.Close()
	for _, r := range forecasts {
		if _, err := fcStmt.ExecContext(ctx, r.ParcelID, r.OriginYear, r.HorizonMonths, r.ForecastYear,
			r.ValueEst, r.P10, r.P25, r.P50, r.P75, r.P90,
			r.SampleN, r.RunID, r.ModelVersion, r.IsOutlier); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	l.Info("seed_done", "ladder_rows", len(ladder), "forecast_rows", len(forecasts))
	return nil
}
