// 包 launch：远程训练作业的批量启动器
// 背景：训练按辖区逐个串行拉起，一个作业失败不影响后续辖区；
// 结果逐条落入 _pl_training_runs，实验跟踪平台通过环境变量里的分组号关联
package launch

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

// tailBytes：入库日志尾部的上限，完整日志留在训练平台侧
const tailBytes = 4096

// Job：一次训练作业的命令行
type Job struct {
	Jurisdiction string
	Bin          string
	Args         []string
}

// Runner：作业执行能力；生产实现是 ExecRunner，测试注入假实现
type Runner interface {
	Run(ctx context.Context, job Job) (exitCode int, output []byte, err error)
}

// Recorder：作业结果落库能力，由 *store.Store 提供
type Recorder interface {
	RecordTrainingRun(ctx context.Context, r store.TrainingRun) error
}

// BuildJobs：按辖区列表展开作业，参数里的 {jur} 逐个替换为辖区名
func BuildJobs(bin string, argsTemplate []string, jurisdictions []string) []Job {
	jobs := make([]Job, 0, len(jurisdictions))
	for _, jur := range jurisdictions {
		args := make([]string, len(argsTemplate))
		for i, a := range argsTemplate {
			args[i] = strings.ReplaceAll(a, "{jur}", jur)
		}
		jobs = append(jobs, Job{Jurisdiction: jur, Bin: bin, Args: args})
	}
	return jobs
}

// ExecRunner：用子进程执行作业
// 约束：继承当前环境并附加 PL_RUN_GROUP，供训练侧上报实验分组；
// 超时通过 context 终止子进程
type ExecRunner struct {
	Timeout  time.Duration
	RunGroup string
}

func (r *ExecRunner) Run(ctx context.Context, job Job) (int, []byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, job.Bin, job.Args...)
	cmd.Env = append(os.Environ(), "PL_RUN_GROUP="+r.RunGroup)
	out, err := cmd.CombinedOutput()
	code := 0
	if err != nil {
		code = -1
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
			err = nil // 非零退出不是执行错误，按结果记录
		}
	}
	return code, out, err
}

// Result：一次作业的记录（与 _pl_training_runs 行对应）
type Result struct {
	ID           string
	Jurisdiction string
	ExitCode     int
	Status       string
}

// Launcher：串行执行一组作业并逐条落库
type Launcher struct {
	Runner   Runner
	Recorder Recorder
	GroupID  string
	l        *slog.Logger
}

// Run：逐作业执行，无论成败都继续下一个
// 约束：落库失败只告警，作业结果以控制台输出为准（与整体 best-effort 策略一致）
func (lc *Launcher) Run(ctx context.Context, jobs []Job) []Result {
	if lc.l == nil {
		lc.l = logger.L()
	}
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		id := uuid.NewString()
		started := time.Now().UTC()
		lc.l.Info("training_start", "id", id, "jurisdiction", job.Jurisdiction, "bin", job.Bin)
		code, out, err := lc.Runner.Run(ctx, job)
		finished := time.Now().UTC()
		status := "ok"
		if err != nil {
			status = "error"
			lc.l.Error("training_exec_error", "id", id, "jurisdiction", job.Jurisdiction, "err", err)
		} else if code != 0 {
			status = "failed"
			lc.l.Error("training_failed", "id", id, "jurisdiction", job.Jurisdiction, "exit_code", code)
		} else {
			lc.l.Info("training_ok", "id", id, "jurisdiction", job.Jurisdiction,
				"elapsed_ms", finished.Sub(started).Milliseconds())
		}
		metrics.TrainingRunsTotal.WithLabelValues(status).Inc()
		if lc.Recorder != nil {
			rec := store.TrainingRun{
				ID:           id,
				Jurisdiction: job.Jurisdiction,
				ModelConfig:  job.Bin + " " + strings.Join(job.Args, " "),
				StartedAt:    started,
				FinishedAt:   finished,
				ExitCode:     code,
				Status:       status,
				LogTail:      Tail(out, tailBytes),
			}
			if rerr := lc.Recorder.RecordTrainingRun(ctx, rec); rerr != nil {
				lc.l.Warn("training_record_error", "id", id, "err", rerr)
			}
		}
		results = append(results, Result{ID: id, Jurisdiction: job.Jurisdiction, ExitCode: code, Status: status})
	}
	return results
}

// Tail：取输出的最后 n 字节
func Tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
