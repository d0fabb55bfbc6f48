// Package pipeline drives manifest entries through endpoint selection,
// download, verification, extraction and upload. Failures are scoped to the
// entry that hit them; the run keeps going and tallies what went wrong.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"nemoferry/internal/checksum"
	"nemoferry/internal/download"
	"nemoferry/internal/endpoint"
	"nemoferry/internal/extract"
	"nemoferry/internal/models"
	"nemoferry/internal/sample"
	"nemoferry/internal/upload"
)

// stagingDirName is the subdirectory of the run directory holding in-flight
// downloads and extractions.
const stagingDirName = "fastqs"

// Options configures a pipeline run.
type Options struct {
	// Priorities is the endpoint scheme ranking; empty uses the default.
	Priorities []string

	// Rules is the URL rewrite table applied during endpoint selection.
	Rules []endpoint.Rule

	// SkipVerify disables checksum verification of downloaded files.
	SkipVerify bool

	// Algorithm overrides checksum detection; empty infers from the digest.
	Algorithm checksum.Algorithm

	// Workers is how many entries run concurrently. Each entry's own
	// stage sequence stays strictly ordered regardless.
	Workers int

	Logger *slog.Logger
}

// Orchestrator runs manifest entries through the transfer stages.
type Orchestrator struct {
	downloader *download.Downloader
	uploader   upload.Uploader
	tally      *models.FailureTally
	opts       Options
	logger     *slog.Logger
}

// Report is the run-level summary printed when a run finishes.
type Report struct {
	Results        []models.EntryResult `json:"results"`
	Samples        sample.Result        `json:"samples"`
	Failures       map[string]int       `json:"failures"`
	DescriptorPath string               `json:"descriptor_path,omitempty"`
}

func New(downloader *download.Downloader, uploader upload.Uploader, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		downloader: downloader,
		uploader:   uploader,
		tally:      models.NewFailureTally(),
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Tally exposes the failure counts accumulated so far.
func (o *Orchestrator) Tally() *models.FailureTally { return o.tally }

// Run processes every manifest entry, then groups the extracted files,
// writes the sample descriptor under destRoot and uploads it to bucket.
// Per-entry failures are tallied and never abort the run; a descriptor
// write or upload failure is fatal because there is nothing left to
// salvage.
func (o *Orchestrator) Run(ctx context.Context, entries []models.ManifestEntry, destRoot, bucket, timestamp string) (*Report, error) {
	bucket = upload.NormalizeBucketURL(bucket)

	results := make([]models.EntryResult, len(entries))
	groupsPerEntry := make([][]models.ExtractedGroup, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], groupsPerEntry[i] = o.processEntry(gctx, entry, destRoot, bucket)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var groups []models.ExtractedGroup
	for _, entryGroups := range groupsPerEntry {
		groups = append(groups, entryGroups...)
	}

	samples := sample.Group(groups)
	for _, inc := range samples.Incomplete {
		o.tally.Add(models.IncompleteSampleGroup)
		o.logger.Error("group did not contain one each of R1, R2 and I1 files",
			"archive", inc.Archive,
			"reason", inc.Reason,
			"members", strings.Join(inc.Members, ", "),
		)
	}
	for _, name := range samples.Skipped {
		o.logger.Info("skipping file", "name", name)
	}

	report := &Report{
		Results:  results,
		Samples:  samples,
		Failures: o.tally.Summary(),
	}

	descriptorPath, err := sample.WriteDescriptorFile(destRoot, timestamp, samples.Records)
	if err != nil {
		return report, fmt.Errorf("create sample descriptor: %w", err)
	}
	report.DescriptorPath = descriptorPath

	descriptorDest := bucket + "/" + filepath.Base(destRoot) + "/"
	if err := o.uploader.Upload(ctx, descriptorPath, descriptorDest, false); err != nil {
		return report, fmt.Errorf("upload sample descriptor: %w", err)
	}

	return report, nil
}

// processEntry walks one entry through the stage sequence. The returned
// result carries the terminal state; extracted groups are returned for the
// run-level sample grouping.
func (o *Orchestrator) processEntry(ctx context.Context, entry models.ManifestEntry, destRoot, bucket string) (models.EntryResult, []models.ExtractedGroup) {
	result := models.EntryResult{EntryID: entry.ID}
	result.SetStatus(models.StatusPending)

	logger := o.logger.With("entry", entry.ID)

	candidates := endpoint.Select(entry.URLs, o.opts.Priorities, o.opts.Rules)
	if len(candidates) == 0 {
		logger.Error("no valid URL found in the manifest")
		o.fail(&result, models.NoValidEndpoint)
		return result, nil
	}
	result.SetStatus(models.StatusEndpointSelected)

	// Per-entry staging keeps partial-file names exclusive to their entry,
	// so entries can run in parallel without sharing paths.
	staging := filepath.Join(destRoot, stagingDirName, entry.ID)
	if err := os.MkdirAll(staging, 0755); err != nil {
		logger.Error("cannot create staging directory", "error", err)
		o.fail(&result, models.EndpointUnreachable)
		return result, nil
	}

	targetPath := filepath.Join(staging, filepath.Base(candidates[0].URL))
	partialPath := targetPath + ".partial"

	outcome, err := o.downloader.Download(ctx, candidates, targetPath, partialPath)
	if err != nil {
		// The partial file stays behind so a re-run resumes mid-file.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// An interrupted run is not an endpoint problem; leave the
			// tally alone and let the caller surface the cancellation.
			logger.Info("transfer interrupted, partial file kept for resume")
			result.SetStatus(models.StatusFailed)
			return result, nil
		}
		logger.Error("skipping entry, no URL yielded a valid file", "error", err)
		o.fail(&result, models.EndpointUnreachable)
		return result, nil
	}
	result.SetStatus(models.StatusDownloaded)
	result.EndpointUsed = outcome.EndpointUsed
	result.BytesWritten = outcome.BytesWritten
	result.Skipped = outcome.AlreadyComplete
	if outcome.AlreadyComplete {
		logger.Info("file already exists", "target", targetPath)
	}

	mismatched := false
	if o.opts.SkipVerify {
		logger.Info("skipping checksum verification", "target", targetPath)
		result.SetStatus(models.StatusVerified)
	} else {
		ok, err := o.verify(targetPath, entry.Checksum)
		switch {
		case err != nil:
			logger.Error("checksum verification errored, data may be corrupted", "error", err)
			o.tally.Add(models.ChecksumMismatch)
			result.Failure = models.ChecksumMismatch.String()
			mismatched = true
		case !ok:
			// Reported, not fatal: the file still moves downstream so an
			// operator can inspect it in the bucket.
			logger.Error("checksum mismatch, data may be corrupted", "target", targetPath)
			o.tally.Add(models.ChecksumMismatch)
			result.Failure = models.ChecksumMismatch.String()
			mismatched = true
		default:
			logger.Info("checksum verification passed", "target", targetPath)
			result.SetStatus(models.StatusVerified)
		}
	}

	groups, skipped, err := extract.Dir(staging)
	if err != nil {
		logger.Error("errors encountered untarring data", "error", err)
		o.fail(&result, models.ExtractionFailed)
		o.clearStaging(staging, logger)
		return result, nil
	}
	for _, name := range skipped {
		logger.Info("skipping file", "name", name)
	}
	result.SetStatus(models.StatusExtracted)

	if err := o.uploader.Upload(ctx, staging, bucket, true); err != nil {
		logger.Error("error uploading data to the bucket", "error", err)
		o.fail(&result, models.UploadFailed)
		o.clearStaging(staging, logger)
		return result, groups
	}
	result.SetStatus(models.StatusUploaded)

	o.clearStaging(staging, logger)

	if mismatched {
		result.SetStatus(models.StatusFailed)
	} else {
		result.SetStatus(models.StatusDone)
	}

	return result, groups
}

func (o *Orchestrator) verify(path, digest string) (bool, error) {
	if o.opts.Algorithm != "" {
		return checksum.VerifyWith(path, digest, o.opts.Algorithm)
	}
	return checksum.Verify(path, digest)
}

func (o *Orchestrator) fail(result *models.EntryResult, kind models.FailureKind) {
	o.tally.Add(kind)
	result.Failure = kind.String()
	result.SetStatus(models.StatusFailed)
}

// clearStaging bounds disk usage to one in-flight entry's worth of files.
func (o *Orchestrator) clearStaging(staging string, logger *slog.Logger) {
	if err := os.RemoveAll(staging); err != nil {
		logger.Warn("could not clear staging directory", "dir", staging, "error", err)
	}
}
