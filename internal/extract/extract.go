// Package extract unpacks downloaded tar archives in place. A successfully
// extracted archive is deleted to reclaim staging space; a failed one is
// left on disk for inspection and nothing partially extracted is trusted.
package extract

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nemoferry/internal/models"
)

// ArchiveSuffix identifies the files the extractor processes; anything else
// in the staging directory is skipped and reported.
const ArchiveSuffix = ".tar"

// ErrInsecurePath is returned when an archive member names an absolute path
// or escapes the extraction directory.
var ErrInsecurePath = errors.New("extract: archive member escapes extraction directory")

// Archive extracts every member of the tar file at path into the file's own
// containing directory, preserving member-relative paths. On success the
// archive file is deleted and the member list returned in archive order.
func Archive(path string) (models.ExtractedGroup, error) {
	group := models.ExtractedGroup{Archive: filepath.Base(path)}
	dir := filepath.Dir(path)

	f, err := os.Open(path)
	if err != nil {
		return group, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	reader := tar.NewReader(f)

	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return group, fmt.Errorf("read archive %s: %w", path, err)
		}

		dest, err := securePath(dir, header.Name)
		if err != nil {
			return group, fmt.Errorf("archive %s member %q: %w", path, header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return group, fmt.Errorf("create directory %s: %w", dest, err)
			}
		case tar.TypeReg:
			if err := writeMember(dest, reader); err != nil {
				return group, fmt.Errorf("extract %s from %s: %w", header.Name, path, err)
			}
			group.Members = append(group.Members, models.MemberRecord{Name: header.Name})
		default:
			// Links and special files have no place in sequencing drops.
			continue
		}
	}

	if err := os.Remove(path); err != nil {
		return group, fmt.Errorf("remove extracted archive %s: %w", path, err)
	}

	return group, nil
}

// Dir scans a staging directory and extracts every archive in it. Non-
// archive entries are returned in skipped, not treated as errors. The first
// extraction failure aborts the scan.
func Dir(dir string) (groups []models.ExtractedGroup, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ArchiveSuffix) {
			skipped = append(skipped, entry.Name())
			continue
		}

		group, err := Archive(filepath.Join(dir, entry.Name()))
		if err != nil {
			return groups, skipped, err
		}
		groups = append(groups, group)
	}

	return groups, skipped, nil
}

func securePath(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", ErrInsecurePath
	}

	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", ErrInsecurePath
	}

	return filepath.Join(dir, cleaned), nil
}

func writeMember(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
