package supervisor

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"genie/internal/model"
	"genie/internal/monitor"
	"genie/internal/utils"
	"genie/pkg/log"
)

// S3Archiver uploads the captured output streams of a finished job to
// <bucket>/<prefix>/<job id>/.
type S3Archiver struct {
	minioCli *minio.Client
	bucket   string
	prefix   string
}

func NewS3Archiver(minioCli *minio.Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{minioCli: minioCli, bucket: bucket, prefix: prefix}
}

func (a *S3Archiver) Archive(ctx context.Context, job *model.Job) error {
	logger := log.GetLogger(ctx).WithField("component", "archiver")
	for _, name := range []string{monitor.StdoutFile, monitor.StderrFile} {
		local := filepath.Join(job.WorkDir, name)
		if _, err := os.Stat(local); os.IsNotExist(err) {
			continue
		}
		remote := path.Join(a.prefix, job.Id, name)
		if err := utils.UploadFileToMinio(ctx, a.minioCli, a.bucket, local, remote); err != nil {
			return err
		}
		logger.Debugf("uploaded %s to %s/%s", local, a.bucket, remote)
	}
	return nil
}
