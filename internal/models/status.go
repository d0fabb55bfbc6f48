package models

import "sync"

// FailureKind classifies why a manifest entry (or the run) failed.
type FailureKind int

const (
	NoValidEndpoint FailureKind = iota
	EndpointUnreachable
	ChecksumMismatch
	ExtractionFailed
	UploadFailed
	IncompleteSampleGroup
)

func (k FailureKind) String() string {
	switch k {
	case NoValidEndpoint:
		return "no_valid_endpoint"
	case EndpointUnreachable:
		return "endpoint_unreachable"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case ExtractionFailed:
		return "extraction_failed"
	case UploadFailed:
		return "upload_failed"
	case IncompleteSampleGroup:
		return "incomplete_sample_group"
	default:
		return "unknown"
	}
}

// FailureTally accumulates failure counts across one run. It is safe for
// concurrent use when entries are processed in parallel.
type FailureTally struct {
	mu     sync.Mutex
	counts map[FailureKind]int
}

func NewFailureTally() *FailureTally {
	return &FailureTally{counts: make(map[FailureKind]int)}
}

func (t *FailureTally) Add(kind FailureKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[kind]++
}

func (t *FailureTally) Count(kind FailureKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[kind]
}

func (t *FailureTally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

// Summary returns the tally keyed by the textual failure kind, for reports.
func (t *FailureTally) Summary() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for kind, n := range t.counts {
		out[kind.String()] = n
	}
	return out
}

// EntryStatus is the state of one manifest entry as it moves through the
// pipeline. Each entry advances monotonically and ends at StatusDone or
// StatusFailed.
type EntryStatus int

const (
	StatusPending EntryStatus = iota
	StatusEndpointSelected
	StatusDownloaded
	StatusVerified
	StatusExtracted
	StatusUploaded
	StatusDone
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEndpointSelected:
		return "endpoint_selected"
	case StatusDownloaded:
		return "downloaded"
	case StatusVerified:
		return "verified"
	case StatusExtracted:
		return "extracted"
	case StatusUploaded:
		return "uploaded"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EntryResult is the terminal record for one manifest entry.
type EntryResult struct {
	EntryID      string      `json:"entry_id"`
	Status       string      `json:"status"`
	Failure      string      `json:"failure,omitempty"`
	EndpointUsed string      `json:"endpoint_used,omitempty"`
	BytesWritten int64       `json:"bytes_written"`
	Skipped      bool        `json:"skipped,omitempty"`
	status       EntryStatus `json:"-"`
}

// TerminalStatus reports the typed status for assertions and branching.
func (r *EntryResult) TerminalStatus() EntryStatus { return r.status }

// SetStatus records both the typed status and its textual form.
func (r *EntryResult) SetStatus(s EntryStatus) {
	r.status = s
	r.Status = s.String()
}
