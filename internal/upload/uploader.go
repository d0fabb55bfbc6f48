// Package upload puts local files into a remote bucket. The concrete
// backend sits behind the Uploader interface so the pipeline can run
// against the gsutil subprocess, a native S3 client, or a fake in tests.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"nemoferry/internal/s3client"
)

// Uploader puts a local path into a remote bucket, optionally recursing
// into directories.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucketURL string, recursive bool) error
}

// NormalizeBucketURL prepends the gs:// scheme when the bucket is given
// bare, the way operators usually pass it on the command line.
func NormalizeBucketURL(bucket string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	return "gs://" + bucket
}

// GsutilUploader shells out to gsutil, the storage-sync tool the archive
// operators already authenticate.
type GsutilUploader struct {
	// Bin is the gsutil binary to invoke; defaults to "gsutil".
	Bin    string
	Logger *slog.Logger
}

func (u *GsutilUploader) Upload(ctx context.Context, localPath, bucketURL string, recursive bool) error {
	bin := u.Bin
	if bin == "" {
		bin = "gsutil"
	}

	args := []string{"cp"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, localPath, NormalizeBucketURL(bucketURL))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if u.Logger != nil {
		u.Logger.Debug("invoking uploader", "command", bin, "args", args)
	}

	if err := cmd.Run(); err != nil {
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		return fmt.Errorf("upload %s to %s: %s", localPath, bucketURL, diagnostic)
	}

	return nil
}

// S3Uploader uploads through the native S3 client instead of a subprocess,
// for destinations addressed as s3://bucket[/prefix].
type S3Uploader struct {
	Client *s3client.Client
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, bucketURL string, recursive bool) error {
	rest, ok := strings.CutPrefix(bucketURL, "s3://")
	if !ok {
		return fmt.Errorf("upload: destination %q is not an s3:// URL", bucketURL)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return fmt.Errorf("upload: destination %q lacks a bucket", bucketURL)
	}

	if err := u.Client.UploadPath(ctx, localPath, bucket, prefix, recursive); err != nil {
		return fmt.Errorf("upload %s to %s: %w", localPath, bucketURL, err)
	}

	return nil
}
