package cmd

import (
	"github.com/spf13/cobra"

	"nemoferry/config"
)

var (
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nemoferry",
	Short: "Ferry sequencing archives from the NeMO portal to a workspace bucket",
	Long: `nemoferry moves sequencing data named by a NeMO manifest into an
analysis workspace bucket. For each manifest entry it picks the best
endpoint, downloads the archive with resume support, verifies the
checksum, untars the FASTQ files and uploads them, then writes a sample
descriptor covering the whole run.
Configuration is loaded from .env file or environment variables`,
	// Command failures are reported as JSON through utils.PrintError.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(endpointsCmd)

	rootCmd.PersistentFlags().StringP("bucket", "b", "", "Override bucket name from config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func getBucketName(cmd *cobra.Command) string {
	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket != "" {
		return bucket
	}
	return cfg.Bucket
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
