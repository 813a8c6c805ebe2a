// 对象存储核对：把 GCS 里的导出文件与 _pl_source_files 登记表互相对账
package audit

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	pstore "github.com/dhardestylewis/v0-properlytic-8v-sub001/internal/store"
)

// ObjectInfo：桶内一个对象的名字与大小
type ObjectInfo struct {
	Name  string
	Bytes int64
}

// ListBucket：列出指定前缀下的全部对象
func ListBucket(ctx context.Context, client *storage.Client, bucket, prefix string) ([]ObjectInfo, error) {
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{Name: attrs.Name, Bytes: attrs.Size})
	}
	return out, nil
}

// CrossCheck：登记表与桶内对象双向核对
// 背景：登记了却不在桶里说明上传丢失（error）；在桶里却没登记多半是手工上传（warn）；
// 字节数不一致提示对象被覆盖过（warn）
func CrossCheck(objects []ObjectInfo, registry []pstore.SourceFile) []Finding {
	inBucket := make(map[string]ObjectInfo, len(objects))
	for _, o := range objects {
		inBucket[o.Name] = o
	}
	registered := make(map[string]bool, len(registry))
	var out []Finding
	for _, f := range registry {
		registered[f.ObjectName] = true
		if !f.Uploaded {
			continue
		}
		o, ok := inBucket[f.ObjectName]
		if !ok {
			out = append(out, Finding{Kind: "object_missing", Severity: "error", Table: f.ObjectName})
			continue
		}
		if f.Bytes != o.Bytes {
			out = append(out, Finding{Kind: "size_drift", Severity: "warn", Table: f.ObjectName,
				Want: strconv.FormatInt(f.Bytes, 10), Got: strconv.FormatInt(o.Bytes, 10)})
		}
	}
	extra := make([]string, 0)
	for name := range inBucket {
		if !registered[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Finding{Kind: "object_unregistered", Severity: "warn", Table: name})
	}
	return out
}
