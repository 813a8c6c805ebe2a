// 抓取工具：从评估区开放数据门户拉取导出文件，落盘、上传、登记
// 背景：门户页面结构经常变，链接提取只认文件后缀与 format 参数；
// 默认每 2 秒一个请求，避免被门户限流
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/fetch"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	pstore "github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	ctx := context.Background()

	portal := os.Getenv("FETCH_PORTAL_URL")
	if portal == "" {
		l.Error("fetch_portal_url_missing")
		os.Exit(1)
	}
	jurisdiction := os.Getenv("FETCH_JURISDICTION")
	if jurisdiction == "" {
		l.Error("fetch_jurisdiction_missing")
		os.Exit(1)
	}
	dir := os.Getenv("FETCH_DIR")
	if dir == "" {
		dir = "data/exports"
	}
	rps := 0.5
	if v := os.Getenv("FETCH_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	f := &fetch.Fetcher{
		Client:       logger.NewHTTPClient(l, 5*time.Minute),
		Limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		Dir:          dir,
		Jurisdiction: jurisdiction,
		Registrar:    pstore.AttachDB(db),
	}
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			l.Error("gcs_client_error", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		f.Uploader = &fetch.GCSUploader{Client: client, Bucket: bucket}
	}

	res, err := f.Run(ctx, portal)
	if err != nil {
		l.Error("fetch_error", "err", err)
		os.Exit(1)
	}
	if err := metrics.Push("appraisal_fetch"); err != nil {
		l.Warn("metrics_push_error", "err", err)
	}
	fmt.Printf("=== fetch complete: %d fetched, %d failed ===\n", res.Fetched, res.Failed)
}
