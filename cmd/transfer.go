package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nemoferry/internal/checksum"
	"nemoferry/internal/download"
	"nemoferry/internal/endpoint"
	"nemoferry/internal/manifest"
	"nemoferry/internal/models"
	"nemoferry/internal/pipeline"
	"nemoferry/internal/s3client"
	"nemoferry/internal/source"
	"nemoferry/internal/upload"
	"nemoferry/pkg/utils"
)

// timestampLayout names the run directory and the sample descriptor; it has
// to stay filename-safe.
const timestampLayout = "20060102T150405Z"

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer every file named by a manifest into the bucket",
	Long: `Transfer downloads, verifies, extracts and uploads every file named
by a NeMO manifest.

Each manifest entry lists candidate URLs; the best endpoint is picked by
scheme priority (HTTP before S3 unless overridden). Downloads resume from
a partial file left by an interrupted run. After all entries finish, a
sample descriptor grouping the R1/R2/I1 FASTQ files is written locally
and uploaded next to the data.

Failures of individual entries are reported and tallied but do not stop
the run. Only a failure to write or upload the sample descriptor aborts
with a non-zero exit.`,
	Example: `  # Transfer a manifest into the configured bucket
  nemoferry transfer --manifest manifest.tsv

  # Keep local staging under a specific directory
  nemoferry transfer -m manifest.tsv -d /scratch/runs

  # Four entries in flight, no checksum verification
  nemoferry transfer -m manifest.tsv --workers 4 --no-verify

  # Upload with the native S3 uploader instead of gsutil
  nemoferry transfer -m manifest.tsv --uploader s3 -b my-bucket`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runTransfer(cmd); err != nil {
			utils.PrintError(err, "transfer")
			return err
		}
		return nil
	},
}

func runTransfer(cmd *cobra.Command) error {
	manifestPath, _ := cmd.Flags().GetString("manifest")
	directory, _ := cmd.Flags().GetString("directory")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	uploaderName, _ := cmd.Flags().GetString("uploader")
	timeout, _ := cmd.Flags().GetInt("timeout")

	entries, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	bucket := getBucketName(cmd)
	if bucket == "" {
		return fmt.Errorf("no destination bucket: set BUCKET or pass --bucket")
	}

	blockSize := cfg.BlockSize
	if v, _ := cmd.Flags().GetString("block-size"); v != "" {
		blockSize, err = utils.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse --block-size: %w", err)
		}
	}

	workers := cfg.Workers
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		workers = n
	}

	rules := endpoint.DefaultRules()
	rulesPath, _ := cmd.Flags().GetString("rules")
	if rulesPath == "" {
		rulesPath = cfg.RewriteRulesPath
	}
	if rulesPath != "" {
		rules, err = endpoint.LoadRules(rulesPath)
		if err != nil {
			return fmt.Errorf("load rewrite rules: %w", err)
		}
	}

	s3c, uploader, err := buildUploader(uploaderName, entries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	timestamp := time.Now().UTC().Format(timestampLayout)
	destRoot := filepath.Join(directory, "upload-"+timestamp)
	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	httpClient := &http.Client{}
	factory := func(c models.EndpointCandidate) (source.Source, error) {
		return source.New(c, httpClient, s3c)
	}

	downloader := download.New(factory, download.Options{
		BlockSize: blockSize,
		Progress:  renderProgress(cmd),
	})

	orchestrator := pipeline.New(downloader, uploader, pipeline.Options{
		Priorities: cfg.SchemePriorities,
		Rules:      rules,
		SkipVerify: noVerify,
		Algorithm:  checksum.Algorithm(cfg.ChecksumAlgorithm),
		Workers:    workers,
	})

	if isVerbose(cmd) {
		cmd.Printf("Starting transfer of %d manifest entries...\n", len(entries))
		cmd.Printf("  Bucket: %s\n", bucket)
		cmd.Printf("  Run directory: %s\n", destRoot)
	}

	report, err := orchestrator.Run(ctx, entries, destRoot, bucket, timestamp)
	if err != nil {
		return err
	}

	if err := utils.PrintJSON(report); err != nil {
		return err
	}

	if total := orchestrator.Tally().Total(); total > 0 {
		cmd.PrintErrf("transfer finished with %d failures\n", total)
	} else if isVerbose(cmd) {
		cmd.Println("Transfer completed successfully")
	}

	return nil
}

// buildUploader picks the bucket uploader and, when any manifest URL (or
// the uploader itself) needs S3 access, builds the shared S3 client.
func buildUploader(name string, entries []models.ManifestEntry) (*s3client.Client, upload.Uploader, error) {
	needS3 := name == "s3"
	for _, entry := range entries {
		for _, c := range endpoint.Select(entry.URLs, cfg.SchemePriorities, nil) {
			if c.Scheme.Normalized() == models.SchemeS3 {
				needS3 = true
			}
		}
	}

	var s3c *s3client.Client
	if needS3 {
		var err error
		s3c, err = s3client.New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create s3 client: %w", err)
		}
	}

	switch name {
	case "gsutil":
		return s3c, &upload.GsutilUploader{Bin: cfg.GsutilBin}, nil
	case "s3":
		return s3c, &upload.S3Uploader{Client: s3c}, nil
	default:
		return nil, nil, fmt.Errorf("unknown uploader %q (want gsutil or s3)", name)
	}
}

// renderProgress redraws one status line in place per received block.
func renderProgress(cmd *cobra.Command) func(download.ProgressEvent) {
	return func(ev download.ProgressEvent) {
		if ev.OneShot {
			cmd.Printf("Downloaded %s from %s in one read\n",
				utils.FormatBytes(ev.BytesReceived), ev.EndpointURL)
			return
		}
		cmd.Printf("\r%s / %s (%d%%)",
			utils.FormatBytes(ev.BytesReceived), utils.FormatBytes(ev.TotalSize), ev.Percent)
		if ev.Percent >= 100 {
			cmd.Println()
		}
	}
}

func init() {
	transferCmd.Flags().StringP("manifest", "m", "", "Path to the tab-delimited manifest file (required)")
	transferCmd.Flags().StringP("directory", "d", ".", "Directory holding the timestamped run directory")
	transferCmd.Flags().Bool("no-verify", false, "Skip checksum verification of downloaded files")
	transferCmd.Flags().String("block-size", "", "Download block size, e.g. 512KB or 4MB (default from config)")
	transferCmd.Flags().Int("workers", 0, "Manifest entries to process in parallel (default from config)")
	transferCmd.Flags().String("uploader", "gsutil", "Bucket uploader: gsutil or s3")
	transferCmd.Flags().String("rules", "", "YAML file of endpoint URL rewrite rules")
	transferCmd.Flags().Int("timeout", 0, "Timeout in seconds for the whole run (0 disables)")
	transferCmd.MarkFlagRequired("manifest")
}
