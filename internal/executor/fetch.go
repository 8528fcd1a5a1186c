package executor

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"genie/internal/errs"
	"genie/internal/utils"
)

// Fetcher copies one artifact location into dstDir and returns the local path.
type Fetcher interface {
	Fetch(ctx context.Context, location, dstDir string) (string, error)
}

type LocalFetcher struct{}

func (LocalFetcher) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	src := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", errs.Precondition("bad location %s: %v", location, err)
		}
		src = u.Path
	}

	in, err := os.Open(src)
	if err != nil {
		return "", errs.Process(err, "open %s", location)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, filepath.Base(src))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", errs.Process(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", errs.Process(err, "copy %s", location)
	}
	if err := out.Close(); err != nil {
		return "", errs.Process(err, "close %s", dst)
	}
	return dst, nil
}

type S3Fetcher struct {
	minioCli *minio.Client
}

func NewS3Fetcher(minioCli *minio.Client) *S3Fetcher {
	return &S3Fetcher{minioCli: minioCli}
}

func (f *S3Fetcher) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	bucket, key, err := utils.ParseS3Location(location)
	if err != nil {
		return "", errs.Precondition("%v", err)
	}
	dst := filepath.Join(dstDir, path.Base(key))
	if err := utils.DownloadFileFromMinio(ctx, f.minioCli, bucket, key, dst); err != nil {
		return "", errs.Process(err, "fetch %s", location)
	}
	return dst, nil
}

// SchemeFetcher routes a location to a fetcher by URL scheme. Plain paths and
// file:// go to the local fetcher; s3:// needs an S3 fetcher.
type SchemeFetcher struct {
	Local Fetcher
	S3    Fetcher
}

func NewSchemeFetcher(minioCli *minio.Client) *SchemeFetcher {
	f := &SchemeFetcher{Local: LocalFetcher{}}
	if minioCli != nil {
		f.S3 = NewS3Fetcher(minioCli)
	}
	return f
}

func (f *SchemeFetcher) Fetch(ctx context.Context, location, dstDir string) (string, error) {
	scheme := ""
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
	}
	switch scheme {
	case "", "file":
		return f.Local.Fetch(ctx, location, dstDir)
	case "s3", "s3n", "s3a":
		if f.S3 == nil {
			return "", errs.ServerConfiguration("s3 is not configured, cannot fetch %s", location)
		}
		return f.S3.Fetch(ctx, location, dstDir)
	default:
		return "", errs.ServerConfiguration("unsupported location scheme %q", scheme)
	}
}
