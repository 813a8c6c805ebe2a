// 聚合重建工具：把 parcel 级预测整体置换为各地理层级的聚合表
// 背景：预测每轮产出后由操作员手动触发；单元失败只记录，重跑本命令即可补齐。
// 约束：退出码不区分部分失败与全部成功，操作员看行数表与错误清单判断
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/rebuild"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/version"
)

// parseHorizons：解析 AGG_HORIZONS 逗号列表；空串返回 nil 走默认期限
func parseHorizons(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad horizon %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	horizons, err := parseHorizons(os.Getenv("AGG_HORIZONS"))
	if err != nil {
		l.Error("horizons_config_error", "err", err)
		os.Exit(1)
	}
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
	l.Info("db_open_ok")

	st := store.AttachDB(db)
	r := rebuild.New(rebuild.Config{Horizons: horizons}, st)
	ctx := context.Background()
	sum := r.Run(ctx)

	// 行数表：逐层级、逐期限的写入行数与收尾核对计数
	fmt.Println()
	fmt.Printf("%-18s %-10s %-10s %-10s %-10s\n", "level", "deleted", "inserted", "skipped", "verified")
	for _, lv := range sum.Levels {
		var inserted int64
		for _, n := range lv.Inserted {
			inserted += n
		}
		fmt.Printf("%-18s %-10d %-10d %-10d %-10d\n", lv.Level, lv.Deleted, inserted, lv.Skipped, lv.Verified)
		hs := make([]int, 0, len(lv.Inserted))
		for h := range lv.Inserted {
			hs = append(hs, h)
		}
		sort.Ints(hs)
		for _, h := range hs {
			fmt.Printf("  horizon %-3d months: %d rows\n", h, lv.Inserted[h])
		}
	}
	if !sum.OutlierExclusion {
		fmt.Println("\nWARNING: is_outlier column absent, no outlier exclusion applied")
	}
	if len(sum.Errors) > 0 {
		fmt.Printf("\n%d unit failure(s):\n", len(sum.Errors))
		for _, e := range sum.Errors {
			if e.Horizon > 0 {
				fmt.Printf("  level=%s horizon=%d stage=%s err=%v\n", e.Level, e.Horizon, e.Stage, e.Err)
			} else {
				fmt.Printf("  level=%s stage=%s err=%v\n", e.Level, e.Stage, e.Err)
			}
		}
	}

	rc := utils.OpenRedisFromEnv()
	if rc != nil {
		rebuild.ReportStatus(ctx, rc, sum)
		_ = rc.Close()
	}
	if err := metrics.Push("rebuild_aggregates"); err != nil {
		l.Warn("metrics_push_error", "err", err)
	}

	fmt.Printf("\n=== rebuild complete: run=%s version=%s elapsed=%s errors=%d ===\n",
		sum.RunID, version.String(), sum.Elapsed.Round(time.Millisecond), len(sum.Errors))
}
