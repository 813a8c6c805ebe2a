// 运行状态上报：把重建结果写入 Redis，供运维面板读取
package rebuild

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
)

const statusTTL = 30 * 24 * time.Hour

// ReportStatus：best-effort 写入最近一次运行的概要键
// 约束：rc 为 nil 表示未配置 Redis，直接跳过；写入失败只告警不影响退出
func ReportStatus(ctx context.Context, rc *redis.Client, s Summary) {
	if rc == nil {
		return
	}
	status := "ok"
	if len(s.Errors) > 0 {
		status = "partial"
	}
	pipe := rc.Pipeline()
	pipe.Set(ctx, "pl:rebuild:last_run", s.RunID, statusTTL)
	pipe.Set(ctx, "pl:rebuild:last_run_at", time.Now().UTC().Format(time.RFC3339), statusTTL)
	pipe.Set(ctx, "pl:rebuild:status", status, statusTTL)
	pipe.Set(ctx, "pl:rebuild:errors", strconv.Itoa(len(s.Errors)), statusTTL)
	for _, lv := range s.Levels {
		pipe.Set(ctx, "pl:rebuild:count:"+lv.Level, strconv.FormatInt(lv.Verified, 10), statusTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.L().Warn("rebuild_status_report_error", "err", err)
	}
}
