package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"nemoferry/pkg/utils"
)

// Config carries the environment-driven settings for the transfer pipeline.
// Command-line flags override the corresponding fields where a flag exists.
type Config struct {
	// S3 endpoint access, used when a manifest URL carries the s3:// scheme
	// and for the native S3 uploader.
	ApiURL    string
	AccessKey string
	SecretKey string
	Region    string

	// Bucket is the default destination bucket; the -b flag overrides it.
	Bucket string

	// GsutilBin is the binary invoked by the subprocess uploader.
	GsutilBin string

	// BlockSize is the network read size of the download loop, in bytes.
	BlockSize int64

	// ChecksumAlgorithm overrides digest detection ("md5", "sha1", "sha256").
	// Empty means infer from the manifest digest length.
	ChecksumAlgorithm string

	// SchemePriorities is the endpoint ranking order. Empty means the
	// default order (HTTP before S3).
	SchemePriorities []string

	// Workers is how many manifest entries may be in flight at once.
	Workers int

	// RewriteRulesPath points at an optional YAML file of URL rewrite
	// rules; empty keeps the built-in provisional table.
	RewriteRulesPath string
}

const defaultBlockSize = 1000000

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}

	config := &Config{
		ApiURL:            getEnv("API_URL", ""),
		AccessKey:         getEnv("ACCESS_KEY", ""),
		SecretKey:         getEnv("SECRET_KEY", ""),
		Region:            getEnv("REGION", "us-east-1"),
		Bucket:            getEnv("BUCKET", ""),
		GsutilBin:         getEnv("GSUTIL_BIN", "gsutil"),
		ChecksumAlgorithm: strings.ToLower(getEnv("CHECKSUM_ALGORITHM", "")),
		RewriteRulesPath:  getEnv("REWRITE_RULES", ""),
		BlockSize:         defaultBlockSize,
		Workers:           1,
	}

	if v := getEnv("BLOCK_SIZE", ""); v != "" {
		size, err := utils.ParseBytes(v)
		if err != nil {
			return nil, fmt.Errorf("parse BLOCK_SIZE: %w", err)
		}
		if size <= 0 {
			return nil, fmt.Errorf("BLOCK_SIZE must be positive, got %q", v)
		}
		config.BlockSize = size
	}

	if v := getEnv("WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse WORKERS: %w", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("WORKERS must be at least 1, got %d", n)
		}
		config.Workers = n
	}

	if v := getEnv("SCHEME_PRIORITIES", ""); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				config.SchemePriorities = append(config.SchemePriorities, p)
			}
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
