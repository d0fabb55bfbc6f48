// Package sample clusters extracted sequencing files into per-sample
// triples and writes the sample descriptor handed to the uploader. Each
// complete sample has exactly one R1, one R2 and one I1 read file sharing a
// name prefix.
package sample

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nemoferry/internal/models"
)

// DataSuffix is the file ending that marks a member as sequencing data.
const DataSuffix = ".fastq.gz"

// Role markers inside member names.
const (
	markerR1 = "_R1_"
	markerR2 = "_R2_"
	markerI1 = "_I1_"
)

// Result is the outcome of grouping one run's extracted archives.
type Result struct {
	Records    []models.SampleRecord    `json:"records"`
	Incomplete []models.IncompleteGroup `json:"incomplete,omitempty"`
	Skipped    []string                 `json:"skipped,omitempty"`
}

// Group partitions each extracted archive's members into R1/R2/I1 roles.
// Groups missing a role, or holding duplicates of one, are reported as
// incomplete and excluded from the records. Members that are not
// sequencing data are collected in Skipped. Input group order is preserved.
func Group(groups []models.ExtractedGroup) Result {
	var result Result

	for _, group := range groups {
		var r1, r2, i1 []string
		var all []string

		for _, member := range group.Members {
			name := member.Name
			all = append(all, name)

			if !strings.HasSuffix(name, DataSuffix) {
				result.Skipped = append(result.Skipped, name)
				continue
			}

			switch {
			case strings.Contains(name, markerR1):
				r1 = append(r1, name)
			case strings.Contains(name, markerR2):
				r2 = append(r2, name)
			case strings.Contains(name, markerI1):
				i1 = append(i1, name)
			default:
				result.Skipped = append(result.Skipped, name)
			}
		}

		if len(r1) == 1 && len(r2) == 1 && len(i1) == 1 {
			result.Records = append(result.Records, models.SampleRecord{
				SampleID: strings.SplitN(r1[0], markerR1, 2)[0],
				R1:       r1[0],
				R2:       r2[0],
				I1:       i1[0],
			})
			continue
		}

		result.Incomplete = append(result.Incomplete, models.IncompleteGroup{
			Archive: group.Archive,
			Members: all,
			Reason:  incompleteReason(len(r1), len(r2), len(i1)),
		})
	}

	return result
}

func incompleteReason(r1, r2, i1 int) string {
	var missing, duplicated []string

	for _, role := range []struct {
		name  string
		count int
	}{{"R1", r1}, {"R2", r2}, {"I1", i1}} {
		switch {
		case role.count == 0:
			missing = append(missing, role.name)
		case role.count > 1:
			duplicated = append(duplicated, role.name)
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(duplicated) > 0 {
		parts = append(parts, "duplicate "+strings.Join(duplicated, ", "))
	}
	return strings.Join(parts, "; ")
}

// WriteDescriptor emits one tab-delimited line per complete sample record:
// sample id, R1, R2, I1.
func WriteDescriptor(w io.Writer, records []models.SampleRecord) error {
	for _, record := range records {
		line := strings.Join([]string{record.SampleID, record.R1, record.R2, record.I1}, "\t")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write descriptor line for %s: %w", record.SampleID, err)
		}
	}
	return nil
}

// WriteDescriptorFile writes the descriptor to its fixed path under dir and
// returns that path.
func WriteDescriptorFile(dir, timestamp string, records []models.SampleRecord) (string, error) {
	path := DescriptorPath(dir, timestamp)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create descriptor: %w", err)
	}

	if err := WriteDescriptor(f, records); err != nil {
		f.Close()
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close descriptor: %w", err)
	}

	return path, nil
}

// DescriptorPath is the fixed naming pattern for a run's sample descriptor.
func DescriptorPath(dir, timestamp string) string {
	return filepath.Join(dir, fmt.Sprintf("sample-%s.txt", timestamp))
}
