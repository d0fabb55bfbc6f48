package models

import "strings"

// ManifestEntry is one row of transfer work parsed from the manifest file.
// Entries are immutable once parsed; the pipeline only reads them.
type ManifestEntry struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
	SizeHint string `json:"size"`
	URLs     string `json:"urls"`
	SampleID string `json:"sample_id"`
}

// Scheme identifies the transport of a source URL.
type Scheme string

const (
	SchemeHTTP    Scheme = "HTTP"
	SchemeHTTPS   Scheme = "HTTPS"
	SchemeS3      Scheme = "S3"
	SchemeGS      Scheme = "GS"
	SchemeFTP     Scheme = "FTP"
	SchemeUnknown Scheme = ""
)

// ParseScheme extracts the scheme from a URL, e.g. "s3://bucket/key" -> S3.
func ParseScheme(url string) Scheme {
	i := strings.Index(url, "://")
	if i <= 0 {
		return SchemeUnknown
	}
	switch strings.ToUpper(url[:i]) {
	case "HTTP":
		return SchemeHTTP
	case "HTTPS":
		return SchemeHTTPS
	case "S3":
		return SchemeS3
	case "GS":
		return SchemeGS
	case "FTP":
		return SchemeFTP
	default:
		return SchemeUnknown
	}
}

// Normalized folds HTTPS into the HTTP priority bucket. Both use the same
// retrieval path, the transport encryption does not affect ranking.
func (s Scheme) Normalized() Scheme {
	if s == SchemeHTTPS {
		return SchemeHTTP
	}
	return s
}

// EndpointCandidate is one ranked source URL derived from a manifest entry.
type EndpointCandidate struct {
	Scheme Scheme `json:"scheme"`
	URL    string `json:"url"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}
