// CSV 上载工具：本地导出文件写入事实表或阶梯表
// 背景：表头按名映射；坏行跳过计数；每 5000 行提交一批，重跑幂等（UPSERT）
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/ingest"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	path := os.Getenv("CSV_PATH")
	if path == "" {
		l.Error("csv_path_missing")
		os.Exit(1)
	}
	kind := ingest.Kind(os.Getenv("CSV_KIND"))
	if kind == "" {
		kind = ingest.KindForecasts
	}
	encoding := os.Getenv("CSV_ENCODING")

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

	stats, err := ingest.LoadCSV(context.Background(), db, path, kind, encoding)
	if err != nil {
		l.Error("csv_load_error", "path", path, "err", err)
		os.Exit(1)
	}
	if err := metrics.Push("upload_csv"); err != nil {
		l.Warn("metrics_push_error", "err", err)
	}
	fmt.Printf("=== upload complete: %d upserted, %d skipped ===\n", stats.Upserted, stats.Skipped)
}
