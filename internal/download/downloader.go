// Package download implements the resumable transfer of one remote file to
// local disk. Progress is written to a partial file next to the target and
// the partial's size is the resume cursor, so an interrupted run picks up
// where it stopped instead of re-fetching bytes it already has.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"nemoferry/internal/models"
	"nemoferry/internal/source"
)

// ErrEndpointUnreachable is returned when every candidate endpoint failed
// to yield a live connection.
var ErrEndpointUnreachable = errors.New("download: no candidate endpoint reachable")

// ProgressEvent reports transfer progress after each received block.
type ProgressEvent struct {
	EndpointURL   string
	BytesReceived int64
	TotalSize     int64
	Percent       int
	// OneShot marks the whole file arriving in a single block because the
	// block size exceeds the file size.
	OneShot bool
}

// Options configures a Downloader.
type Options struct {
	// BlockSize is the network read size in bytes.
	BlockSize int64

	// Progress is an optional callback invoked per received block.
	Progress func(ProgressEvent)

	// Logger receives per-candidate connection diagnostics.
	Logger *slog.Logger
}

// Outcome describes a completed (or skipped) download.
type Outcome struct {
	BytesWritten    int64  `json:"bytes_written"`
	TotalSize       int64  `json:"total_size"`
	EndpointUsed    string `json:"endpoint_used"`
	Resumed         bool   `json:"resumed"`
	AlreadyComplete bool   `json:"already_complete"`
}

// SourceFactory builds a Source for one endpoint candidate.
type SourceFactory func(models.EndpointCandidate) (source.Source, error)

type Downloader struct {
	newSource SourceFactory
	opts      Options
}

func New(factory SourceFactory, opts Options) *Downloader {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 1000000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Downloader{newSource: factory, opts: opts}
}

// Download tries each candidate in order and transfers the remote file to
// targetPath, staging bytes in partialPath. An existing target short-
// circuits without contacting any endpoint. A mid-transfer failure leaves
// the partial file in place; calling Download again resumes from its size.
func (d *Downloader) Download(ctx context.Context, candidates []models.EndpointCandidate, targetPath, partialPath string) (*Outcome, error) {
	if _, err := os.Stat(targetPath); err == nil {
		return &Outcome{AlreadyComplete: true}, nil
	}

	cursor := int64(0)
	if info, err := os.Stat(partialPath); err == nil {
		cursor = info.Size()
	}
	resumed := cursor > 0

	src, totalSize, body, err := d.connect(ctx, candidates, &cursor, partialPath)
	if err != nil {
		return nil, err
	}

	if body == nil {
		// Partial file already holds every byte; just promote it. A
		// zero-byte remote may have no partial staged at all.
		if _, statErr := os.Stat(partialPath); os.IsNotExist(statErr) {
			if err := os.WriteFile(targetPath, nil, 0644); err != nil {
				return nil, fmt.Errorf("create empty target: %w", err)
			}
		} else if err := os.Rename(partialPath, targetPath); err != nil {
			return nil, fmt.Errorf("rename partial file: %w", err)
		}
		return &Outcome{TotalSize: totalSize, EndpointUsed: src.URL(), Resumed: resumed}, nil
	}
	defer body.Close()

	written, err := d.transfer(ctx, body, src.URL(), partialPath, cursor, totalSize)
	if err != nil {
		return nil, err
	}

	if err := os.Rename(partialPath, targetPath); err != nil {
		return nil, fmt.Errorf("rename partial file: %w", err)
	}

	return &Outcome{
		BytesWritten: written,
		TotalSize:    totalSize,
		EndpointUsed: src.URL(),
		Resumed:      resumed,
	}, nil
}

// connect walks the candidate list until one endpoint yields a size and a
// live read. A nil body with nil error means the partial file is already
// complete. The cursor may be reset to zero when the chosen endpoint cannot
// resume or the partial is larger than the remote file.
func (d *Downloader) connect(ctx context.Context, candidates []models.EndpointCandidate, cursor *int64, partialPath string) (source.Source, int64, io.ReadCloser, error) {
	var lastErr error

	for _, candidate := range candidates {
		src, err := d.newSource(candidate)
		if err != nil {
			d.opts.Logger.Warn("skipping endpoint", "url", candidate.URL, "error", err)
			lastErr = err
			continue
		}

		totalSize, err := src.Stat(ctx)
		if err != nil {
			d.opts.Logger.Warn("endpoint not reachable", "url", candidate.URL, "error", err)
			lastErr = err
			continue
		}

		offset := *cursor
		if offset > 0 && !src.SupportsResume() {
			offset = 0
		}
		if offset > totalSize {
			// Stale partial from a different (or changed) remote file.
			offset = 0
		}
		if offset != *cursor {
			if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
				return nil, 0, nil, fmt.Errorf("discard stale partial file: %w", err)
			}
			*cursor = offset
		}

		if offset == totalSize {
			return src, totalSize, nil, nil
		}

		body, err := src.Open(ctx, offset)
		if err != nil {
			d.opts.Logger.Warn("endpoint not reachable", "url", candidate.URL, "error", err)
			lastErr = err
			continue
		}

		return src, totalSize, body, nil
	}

	if lastErr != nil {
		return nil, 0, nil, fmt.Errorf("%w: last error: %v", ErrEndpointUnreachable, lastErr)
	}
	return nil, 0, nil, ErrEndpointUnreachable
}

// transfer appends blocks from body to the partial file until the stream is
// exhausted, reporting progress per block. Cancellation stops between
// blocks with the partial retained for resume.
func (d *Downloader) transfer(ctx context.Context, body io.Reader, endpointURL, partialPath string, cursor, totalSize int64) (int64, error) {
	file, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open partial file: %w", err)
	}
	defer file.Close()

	oneShot := d.opts.BlockSize > totalSize
	buf := make([]byte, d.opts.BlockSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			nw, writeErr := file.Write(buf[:n])
			written += int64(nw)
			cursor += int64(nw)
			if writeErr != nil {
				return written, fmt.Errorf("write partial file: %w", writeErr)
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
			if cursor > totalSize {
				return written, fmt.Errorf("download: received %d bytes, endpoint reported %d", cursor, totalSize)
			}

			d.report(ProgressEvent{
				EndpointURL:   endpointURL,
				BytesReceived: cursor,
				TotalSize:     totalSize,
				Percent:       percent(cursor, totalSize),
				OneShot:       oneShot,
			})
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, fmt.Errorf("read from %s: %w", endpointURL, readErr)
		}
	}

	if cursor != totalSize {
		return written, fmt.Errorf("download: stream from %s ended at %d of %d bytes", endpointURL, cursor, totalSize)
	}

	if err := file.Sync(); err != nil {
		return written, fmt.Errorf("sync partial file: %w", err)
	}

	return written, nil
}

func (d *Downloader) report(ev ProgressEvent) {
	if d.opts.Progress != nil {
		d.opts.Progress(ev)
	}
}

func percent(received, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(received * 100 / total)
}
