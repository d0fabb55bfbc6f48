package cmd

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"nemoferry/config"
)

// buildArchive returns a tar holding a complete R1/R2/I1 triple for sample.
func buildArchive(t *testing.T, sample string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for _, marker := range []string{"_R1_", "_R2_", "_I1_"} {
		name := sample + marker + "001.fastq.gz"
		if err := w.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(marker)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(marker)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeFakeGsutil drops a shell script that records its arguments instead
// of talking to a bucket.
func writeFakeGsutil(t *testing.T, dir string) (bin, record string) {
	t.Helper()

	record = filepath.Join(dir, "gsutil-calls.txt")
	bin = filepath.Join(dir, "gsutil")
	script := "#!/bin/sh\necho \"$@\" >> " + record + "\nexit 0\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return bin, record
}

func writeManifest(t *testing.T, dir string, rows [][]string) string {
	t.Helper()

	lines := []string{"file_id\tchecksum\tsize\turls\tsample_id"}
	for _, row := range rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	path := filepath.Join(dir, "manifest.tsv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	rootCmd.SetOut(w)

	err := fn()

	w.Close()
	os.Stdout = oldStdout
	rootCmd.SetOut(nil)

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), err
}

func TestTransferCommand(t *testing.T) {
	tmpDir := t.TempDir()

	archive := buildArchive(t, "SAMP1")
	sum := md5.Sum(archive)
	digest := hex.EncodeToString(sum[:])

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
			return
		}
		w.Write(archive)
	}))
	defer server.Close()

	manifestPath := writeManifest(t, tmpDir, [][]string{
		{"F001", digest, fmt.Sprint(len(archive)), server.URL + "/samp1.tar", "SAMP1"},
	})

	gsutilBin, record := writeFakeGsutil(t, tmpDir)

	oldCfg := cfg
	cfg = &config.Config{GsutilBin: gsutilBin, BlockSize: 4096, Workers: 1}
	defer func() { cfg = oldCfg }()

	rootCmd.SetArgs([]string{
		"transfer",
		"--manifest", manifestPath,
		"--directory", tmpDir,
		"--bucket", "test-bucket",
	})
	defer rootCmd.SetArgs(nil)

	output, err := captureStdout(t, rootCmd.Execute)
	if err != nil {
		t.Fatalf("transfer command failed: %v", err)
	}

	if !strings.Contains(output, `"status": "done"`) {
		t.Errorf("report does not mark the entry done: %s", output)
	}
	if !strings.Contains(output, "SAMP1") {
		t.Errorf("report does not mention the sample: %s", output)
	}
	if !strings.Contains(output, "(100%)") {
		t.Errorf("no progress line rendered: %s", output)
	}

	calls, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("fake gsutil was never invoked: %v", err)
	}
	if !strings.Contains(string(calls), "cp -r ") {
		t.Errorf("no recursive entry upload recorded: %s", calls)
	}
	if !strings.Contains(string(calls), "gs://test-bucket") {
		t.Errorf("upload did not target the bucket: %s", calls)
	}

	// The run directory holds the sample descriptor; staging is cleared.
	runDirs, err := filepath.Glob(filepath.Join(tmpDir, "upload-*"))
	if err != nil || len(runDirs) != 1 {
		t.Fatalf("expected one run directory, got %v (err %v)", runDirs, err)
	}
	descriptors, _ := filepath.Glob(filepath.Join(runDirs[0], "sample-*.txt"))
	if len(descriptors) != 1 {
		t.Fatalf("expected one sample descriptor, got %v", descriptors)
	}
	content, err := os.ReadFile(descriptors[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), "SAMP1\t") {
		t.Errorf("descriptor content = %q", content)
	}
}

func TestTransferCommandMissingManifest(t *testing.T) {
	tmpDir := t.TempDir()
	gsutilBin, _ := writeFakeGsutil(t, tmpDir)

	oldCfg := cfg
	cfg = &config.Config{GsutilBin: gsutilBin, BlockSize: 4096, Workers: 1}
	defer func() { cfg = oldCfg }()

	rootCmd.SetArgs([]string{
		"transfer",
		"--manifest", filepath.Join(tmpDir, "does-not-exist.tsv"),
		"--directory", tmpDir,
		"--bucket", "test-bucket",
	})
	defer rootCmd.SetArgs(nil)

	output, err := captureStdout(t, rootCmd.Execute)
	if err == nil {
		t.Fatal("expected an error for a missing manifest")
	}

	// Failures are reported as JSON naming the command, like every other
	// command output.
	if !strings.Contains(output, `"command": "transfer"`) {
		t.Errorf("no JSON error report printed: %s", output)
	}
	if !strings.Contains(output, `"error"`) {
		t.Errorf("error report missing the error field: %s", output)
	}
}

func TestEndpointsCommand(t *testing.T) {
	tmpDir := t.TempDir()

	manifestPath := writeManifest(t, tmpDir, [][]string{
		{"F001", "d41d8cd98f00b204e9800998ecf8427e", "10",
			"s3://archive/raw/a.tar,https://mirror.example.org/a.tar", "SAMP1"},
	})

	oldCfg := cfg
	cfg = &config.Config{}
	defer func() { cfg = oldCfg }()

	rootCmd.SetArgs([]string{"endpoints", "--manifest", manifestPath})
	defer rootCmd.SetArgs(nil)

	output, err := captureStdout(t, rootCmd.Execute)
	if err != nil {
		t.Fatalf("endpoints command failed: %v", err)
	}

	httpIdx := strings.Index(output, "https://mirror.example.org/a.tar")
	s3Idx := strings.Index(output, "s3://archive/raw/a.tar")
	if httpIdx == -1 || s3Idx == -1 {
		t.Fatalf("output missing candidates: %s", output)
	}
	if httpIdx > s3Idx {
		t.Errorf("HTTP endpoint should rank before S3: %s", output)
	}
}
