// GCS 上传实现
package fetch

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSUploader：把本地文件写入指定桶
type GCSUploader struct {
	Client *storage.Client
	Bucket string
}

func (u *GCSUploader) Upload(ctx context.Context, objectName, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	w := u.Client.Bucket(u.Bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
