// Package manifest parses the tab-delimited transfer manifest exported by
// the archive portal. Columns are: file id, checksum, size, comma-separated
// source URLs, sample id. The first row is a header and is skipped.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"nemoferry/internal/models"
)

// ErrEmptyManifest is returned when the manifest has a header but no rows.
var ErrEmptyManifest = errors.New("manifest: no entries after header row")

const columnCount = 5

// Parse reads manifest entries from r.
func Parse(r io.Reader) ([]models.ManifestEntry, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	// Header row carries column names only.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyManifest
		}
		return nil, fmt.Errorf("read manifest header: %w", err)
	}

	var entries []models.ManifestEntry
	line := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read manifest line %d: %w", line, err)
		}
		if len(row) < columnCount {
			return nil, fmt.Errorf("manifest line %d: expected %d columns, got %d", line, columnCount, len(row))
		}

		entries = append(entries, models.ManifestEntry{
			ID:       row[0],
			Checksum: row[1],
			SizeHint: row[2],
			URLs:     row[3],
			SampleID: row[4],
		})
	}

	if len(entries) == 0 {
		return nil, ErrEmptyManifest
	}

	return entries, nil
}

// ParseFile reads manifest entries from the file at path.
func ParseFile(path string) ([]models.ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
