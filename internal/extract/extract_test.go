package extract

import (
	"archive/tar"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeTar builds a tar archive with the given name/content pairs, in order.
func writeTar(t *testing.T, path string, members map[string]string, order []string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := tar.NewWriter(f)
	for _, name := range order {
		content := members[name]
		if err := w.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "sample.tar")

	members := map[string]string{
		"SAMP1_S1_L001_R1_001.fastq.gz": "read one",
		"SAMP1_S1_L001_R2_001.fastq.gz": "read two",
		"nested/SAMP1_notes.txt":        "notes",
	}
	order := []string{"SAMP1_S1_L001_R1_001.fastq.gz", "SAMP1_S1_L001_R2_001.fastq.gz", "nested/SAMP1_notes.txt"}
	writeTar(t, archivePath, members, order)

	group, err := Archive(archivePath)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	var names []string
	for _, m := range group.Members {
		names = append(names, m.Name)
	}
	if !reflect.DeepEqual(names, order) {
		t.Errorf("member order = %v, want %v", names, order)
	}

	for name, content := range members {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("member %s not extracted: %v", name, err)
		}
		if string(got) != content {
			t.Errorf("member %s content = %q, want %q", name, got, content)
		}
	}

	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Error("archive file still present after successful extraction")
	}
}

func TestArchiveCorruptLeavesFile(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "broken.tar")
	if err := os.WriteFile(archivePath, []byte("this is not a tar file at all, but long enough to try"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Archive(archivePath); err == nil {
		t.Fatal("Archive() on corrupt input did not fail")
	}

	if _, err := os.Stat(archivePath); err != nil {
		t.Error("corrupt archive removed; it must stay in place for inspection")
	}
}

func TestArchiveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		member string
	}{
		{"Parent escape", "../evil.txt"},
		{"Nested escape", "ok/../../evil.txt"},
		{"Absolute path", "/etc/evil.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archivePath := filepath.Join(dir, "t.tar")
			writeTar(t, archivePath, map[string]string{tt.member: "x"}, []string{tt.member})

			_, err := Archive(archivePath)
			if !errors.Is(err, ErrInsecurePath) {
				t.Errorf("Archive() error = %v, want ErrInsecurePath", err)
			}
			if _, statErr := os.Stat(archivePath); statErr != nil {
				t.Error("archive removed after failed extraction")
			}
			os.Remove(archivePath)
		})
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()

	writeTar(t, filepath.Join(dir, "a.tar"), map[string]string{"a.fastq.gz": "a"}, []string{"a.fastq.gz"})
	writeTar(t, filepath.Join(dir, "b.tar"), map[string]string{"b.fastq.gz": "b"}, []string{"b.fastq.gz"})
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}

	groups, skipped, err := Dir(dir)
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}

	if len(groups) != 2 {
		t.Errorf("Dir() extracted %d archives, want 2", len(groups))
	}
	if !reflect.DeepEqual(skipped, []string{"readme.txt"}) {
		t.Errorf("skipped = %v, want [readme.txt]", skipped)
	}
}

func TestDirMissing(t *testing.T) {
	if _, _, err := Dir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Dir() on a missing directory did not fail")
	}
}
