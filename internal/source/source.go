// Package source gives the downloader uniform access to the endpoint
// schemes a manifest may name. HTTP(S) endpoints support true byte-range
// resume; other schemes answer SupportsResume so the caller can decide
// whether a restart means a full re-fetch.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"nemoferry/internal/models"
	"nemoferry/internal/s3client"
)

var (
	ErrUnsupportedScheme = errors.New("source: unsupported endpoint scheme")
	ErrResumeRejected    = errors.New("source: server ignored range request")
)

// Source is one remote endpoint holding the file to transfer.
type Source interface {
	// URL identifies the endpoint for logs and reports.
	URL() string
	// Stat returns the authoritative total size of the remote file.
	Stat(ctx context.Context) (int64, error)
	// Open starts a read at the given byte offset.
	Open(ctx context.Context, offset int64) (io.ReadCloser, error)
	// SupportsResume reports whether Open honors a non-zero offset.
	SupportsResume() bool
}

// New builds a Source for the candidate. The s3 client may be nil when the
// manifest holds no s3:// URLs; passing an s3 candidate then is an error.
func New(candidate models.EndpointCandidate, httpClient *http.Client, s3Client *s3client.Client) (Source, error) {
	switch candidate.Scheme.Normalized() {
	case models.SchemeHTTP:
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		return &httpSource{url: candidate.URL, client: httpClient}, nil
	case models.SchemeS3:
		if s3Client == nil {
			return nil, fmt.Errorf("source: no s3 client configured for %s", candidate.URL)
		}
		return &s3Source{url: candidate.URL, client: s3Client}, nil
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedScheme, candidate.Scheme, candidate.URL)
	}
}

type httpSource struct {
	url    string
	client *http.Client
}

func (s *httpSource) URL() string          { return s.url }
func (s *httpSource) SupportsResume() bool { return true }

func (s *httpSource) Stat(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("create head request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", s.url, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("head %s: bad status %s", s.url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("head %s: no content length", s.url)
	}

	return resp.ContentLength, nil
}

func (s *httpSource) Open(ctx context.Context, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: bad status %s", s.url, resp.Status)
	}

	// A 200 answer to a ranged request would replay bytes already on disk.
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s answered %s at offset %d", ErrResumeRejected, s.url, resp.Status, offset)
	}

	return resp.Body, nil
}

type s3Source struct {
	url    string
	client *s3client.Client
}

func (s *s3Source) URL() string          { return s.url }
func (s *s3Source) SupportsResume() bool { return true }

func (s *s3Source) Stat(ctx context.Context) (int64, error) {
	return s.client.Head(ctx, s.url)
}

func (s *s3Source) Open(ctx context.Context, offset int64) (io.ReadCloser, error) {
	return s.client.OpenRange(ctx, s.url, offset)
}
