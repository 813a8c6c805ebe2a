// 开发数据种子工具：往开发库灌合成的阶梯与预测数据
// 约束：只面向开发环境；固定 SEED_RANDOM 可得到可复现的数据集
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/migrate"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/seed"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}
	// 种子前先把表建齐，省一次单独的 migrate
	if err := migrate.EnsureSchema(db, ""); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	cfg := seed.Config{
		Parcels:     envInt("SEED_PARCELS", 1000),
		Seed:        int64(envInt("SEED_RANDOM", 11)),
		OriginYear:  envInt("SEED_ORIGIN_YEAR", 2025),
		NullGeoFrac: envFloat("SEED_NULL_GEO_FRAC", 0.05),
		OutlierFrac: envFloat("SEED_OUTLIER_FRAC", 0.02),
	}
	ladder, forecasts := seed.Generate(cfg)
	if err := seed.Insert(context.Background(), db, ladder, forecasts); err != nil {
		l.Error("seed_insert_error", "err", err)
		os.Exit(1)
	}
	fmt.Printf("=== seed complete: %d parcels, %d forecast rows ===\n", len(ladder), len(forecasts))
}
