// 训练启动器：按辖区串行拉起远程训练作业并记录结果
// 背景：TRAIN_ARGS 里的 {jur} 逐辖区替换；一个作业失败不影响后续；
// 同一次启动的全部作业共享一个 PL_RUN_GROUP，训练侧据此向实验跟踪平台分组上报
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/launch"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	pstore "github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	bin := os.Getenv("TRAIN_BIN")
	if bin == "" {
		l.Error("train_bin_missing")
		os.Exit(1)
	}
	jurs := strings.Fields(strings.ReplaceAll(os.Getenv("TRAIN_JURISDICTIONS"), ",", " "))
	if len(jurs) == 0 {
		l.Error("train_jurisdictions_missing")
		os.Exit(1)
	}
	args := strings.Fields(os.Getenv("TRAIN_ARGS"))
	timeout := 4 * time.Hour
	if v := os.Getenv("TRAIN_TIMEOUT_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Minute
		}
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	group := uuid.NewString()
	lc := &launch.Launcher{
		Runner:   &launch.ExecRunner{Timeout: timeout, RunGroup: group},
		Recorder: pstore.AttachDB(db),
		GroupID:  group,
	}
	results := lc.Run(context.Background(), launch.BuildJobs(bin, args, jurs))

	ok := 0
	for _, r := range results {
		fmt.Printf("%-16s %-36s exit=%-4d %s\n", r.Jurisdiction, r.ID, r.ExitCode, r.Status)
		if r.Status == "ok" {
			ok++
		}
	}
	if err := metrics.Push("launch_training"); err != nil {
		l.Warn("metrics_push_error", "err", err)
	}
	fmt.Printf("=== launch complete: group=%s %d/%d ok ===\n", group, ok, len(results))
}
