// 抓取执行：限速下载、sha256 留痕、可选 GCS 上传、登记入库
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/logger"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/metrics"
	"github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

// Uploader：对象存储上传能力，测试注入假实现
type Uploader interface {
	Upload(ctx context.Context, objectName, localPath string) error
}

// Registrar：登记能力，生产环境由 *store.Store 提供
type Registrar interface {
	RegisterSourceFile(ctx context.Context, f store.SourceFile) error
}

// Fetcher：一次抓取任务的全部依赖
// 背景：门户对高频访问不友好，默认每 2 秒一个请求；限速器由调用方配置
type Fetcher struct {
	Client       *http.Client
	Limiter      *rate.Limiter
	Dir          string
	Jurisdiction string
	Uploader     Uploader // nil 表示不上传
	Registrar    Registrar
	l            *slog.Logger
}

// Result：抓取总结
type Result struct {
	Fetched int
	Failed  int
}

// Run：拉取门户页、提取链接、逐个串行下载
// 约束：单个文件失败记录后继续（重跑补齐的策略与聚合重建一致）
func (f *Fetcher) Run(ctx context.Context, portalURL string) (Result, error) {
	if f.l == nil {
		f.l = logger.L()
	}
	base, err := url.Parse(portalURL)
	if err != nil {
		return Result{}, err
	}
	resp, err := f.Client.Get(portalURL)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.New("portal page bad status: " + resp.Status)
	}
	links, err := ExtractExportLinks(base, resp.Body)
	if err != nil {
		return Result{}, err
	}
	f.l.Info("fetch_links_found", "portal", portalURL, "links", len(links))

	var res Result
	for _, link := range links {
		if err := f.fetchOne(ctx, link); err != nil {
			f.l.Error("fetch_file_error", "url", link, "err", err)
			metrics.FetchFailuresTotal.Inc()
			res.Failed++
			continue
		}
		metrics.FetchDownloadsTotal.Inc()
		res.Fetched++
	}
	return res, nil
}

// fetchOne：限速下载一个文件，边写盘边计算 sha256，然后上传与登记
func (f *Fetcher) fetchOne(ctx context.Context, link string) error {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("bad status: " + resp.Status)
	}

	name := fileName(link)
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	local := filepath.Join(f.Dir, name)
	out, err := os.Create(local)
	if err != nil {
		return err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	cerr := out.Close()
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}
	sum := hex.EncodeToString(h.Sum(nil))
	f.l.Info("fetch_file_ok", "name", name, "bytes", n, "sha256", sum)

	objectName := f.Jurisdiction + "/" + name
	uploaded := false
	if f.Uploader != nil {
		if err := f.Uploader.Upload(ctx, objectName, local); err != nil {
			// 上传失败不丢下载结果，登记为未上传，下次审计会暴露
			f.l.Warn("fetch_upload_error", "object", objectName, "err", err)
		} else {
			uploaded = true
		}
	}
	if f.Registrar != nil {
		return f.Registrar.RegisterSourceFile(ctx, store.SourceFile{
			Jurisdiction: f.Jurisdiction,
			SourceURL:    link,
			ObjectName:   objectName,
			SHA256:       sum,
			Bytes:        n,
			Uploaded:     uploaded,
		})
	}
	return nil
}

// fileName：从链接取文件名；无路径段时退化为 query 的 hash 段名
func fileName(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "export"
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "export.csv"
	}
	return name
}
