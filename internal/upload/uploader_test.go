package upload

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestNormalizeBucketURL(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		want   string
	}{
		{"Bare bucket", "my-bucket", "gs://my-bucket"},
		{"Already gs", "gs://my-bucket", "gs://my-bucket"},
		{"Other scheme kept", "s3://my-bucket", "s3://my-bucket"},
		{"Bucket with path", "my-bucket/runs/1", "gs://my-bucket/runs/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeBucketURL(tt.bucket); got != tt.want {
				t.Errorf("NormalizeBucketURL(%q) = %q, want %q", tt.bucket, got, tt.want)
			}
		})
	}
}

// fakeGsutil writes a shell script that records its arguments, standing in
// for the real gsutil binary.
func fakeGsutil(t *testing.T, exitCode int) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	bin = filepath.Join(dir, "gsutil")
	argsFile = filepath.Join(dir, "args.txt")

	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
	if exitCode != 0 {
		script += "echo 'AccessDeniedException: 403' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"

	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func TestGsutilUploaderArguments(t *testing.T) {
	bin, argsFile := fakeGsutil(t, 0)
	u := &GsutilUploader{Bin: bin}

	if err := u.Upload(context.Background(), "/tmp/data", "my-bucket", true); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	want := "cp -r /tmp/data gs://my-bucket"
	if strings.TrimSpace(string(got)) != want {
		t.Errorf("gsutil args = %q, want %q", strings.TrimSpace(string(got)), want)
	}
}

func TestGsutilUploaderNonRecursive(t *testing.T) {
	bin, argsFile := fakeGsutil(t, 0)
	u := &GsutilUploader{Bin: bin}

	if err := u.Upload(context.Background(), "/tmp/sample.txt", "gs://my-bucket/run/", false); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	got, _ := os.ReadFile(argsFile)
	if strings.Contains(string(got), "-r") {
		t.Errorf("gsutil args %q include -r for a non-recursive upload", got)
	}
}

func TestGsutilUploaderFailureCarriesStderr(t *testing.T) {
	bin, _ := fakeGsutil(t, 1)
	u := &GsutilUploader{Bin: bin}

	err := u.Upload(context.Background(), "/tmp/data", "my-bucket", false)
	if err == nil {
		t.Fatal("Upload() with failing gsutil did not fail")
	}
	if !strings.Contains(err.Error(), "AccessDeniedException") {
		t.Errorf("error %q does not carry the subprocess diagnostic", err)
	}
}

func TestGsutilUploaderMissingBinary(t *testing.T) {
	u := &GsutilUploader{Bin: filepath.Join(t.TempDir(), "no-such-gsutil")}

	if err := u.Upload(context.Background(), "/tmp/data", "my-bucket", false); err == nil {
		t.Error("Upload() with missing binary did not fail")
	}
}

func TestS3UploaderRejectsNonS3Destination(t *testing.T) {
	u := &S3Uploader{}

	if err := u.Upload(context.Background(), "/tmp/data", "gs://bucket", false); err == nil {
		t.Error("Upload() to a gs:// destination did not fail")
	}
	if err := u.Upload(context.Background(), "/tmp/data", "s3://", false); err == nil {
		t.Error("Upload() without a bucket did not fail")
	}
}
