package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "nemoferry/config"
)

// ErrNotS3URL is returned when a URL does not carry the s3:// scheme.
var ErrNotS3URL = errors.New("s3client: not an s3:// URL")

type Client struct {
	s3Client *s3.Client
	config   *appConfig.Config
}

func New(cfg *appConfig.Config) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return &Client{
		s3Client: s3Client,
		config:   cfg,
	}, nil
}

// ParseURL splits an s3://bucket/key URL into bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotS3URL, url)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3client: URL %q lacks a bucket or key", url)
	}

	return bucket, key, nil
}

// Head returns the object size for an s3:// URL.
func (c *Client) Head(ctx context.Context, url string) (int64, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return 0, err
	}

	resp, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head s3 object %s: %w", url, err)
	}
	if resp.ContentLength == nil {
		return 0, fmt.Errorf("no content length for s3 object %s", url)
	}

	return *resp.ContentLength, nil
}

// OpenRange opens an object for reading from the given byte offset.
// S3 honors HTTP-style range reads, so resumed transfers start mid-object.
func (c *Client) OpenRange(ctx context.Context, url string, offset int64) (io.ReadCloser, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", url, err)
	}

	return resp.Body, nil
}

// UploadPath puts a local file or directory tree under keyPrefix in bucket.
func (c *Client) UploadPath(ctx context.Context, localPath, bucket, keyPrefix string, recursive bool) error {
	uploader := manager.NewUploader(c.s3Client)

	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	if !fileInfo.IsDir() {
		remotePath := buildRemotePath(keyPrefix, filepath.Base(localPath))
		return c.uploadSingleFile(ctx, uploader, bucket, localPath, remotePath)
	}

	if !recursive {
		return fmt.Errorf("%s is a directory, recursive upload not requested", localPath)
	}

	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}

		remotePath := buildRemotePath(keyPrefix, filepath.Join(filepath.Base(localPath), relPath))
		return c.uploadSingleFile(ctx, uploader, bucket, path, remotePath)
	})
}

func (c *Client) uploadSingleFile(ctx context.Context, uploader *manager.Uploader, bucket, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	contentType := detectContentType(localPath)

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(remotePath),
		Body:        file,
		ContentType: aws.String(contentType),
	})

	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func buildRemotePath(keyPrefix, filename string) string {
	filename = filepath.ToSlash(filename)
	if keyPrefix == "" {
		return filename
	}

	keyPrefix = strings.TrimPrefix(keyPrefix, "/")

	if !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	return keyPrefix + filename
}

func detectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	contentTypes := map[string]string{
		".txt":   "text/plain",
		".tsv":   "text/tab-separated-values",
		".json":  "application/json",
		".tar":   "application/x-tar",
		".gz":    "application/gzip",
		".fastq": "text/plain",
	}

	if contentType, exists := contentTypes[ext]; exists {
		return contentType
	}

	return "application/octet-stream"
}
