// Package endpoint ranks the candidate source URLs of a manifest entry by
// scheme priority and applies dataset-specific URL rewrite rules.
package endpoint

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"nemoferry/internal/models"
)

// DefaultPriorities is used when the caller supplies no ranking. HTTP
// endpoints are reachable without extra credentials more often than the
// object-storage schemes, so they go first.
var DefaultPriorities = []string{"HTTP", "S3"}

// Rule rewrites URLs of one scheme that contain a marker substring.
// Pattern is the replacement URL built from slash-separated segments of the
// original: "{2}" is segment two, "{-1}" the last segment. The table exists
// so dataset patches can be disabled or extended without touching selection
// logic.
type Rule struct {
	Scheme  models.Scheme `yaml:"scheme"`
	Marker  string        `yaml:"marker"`
	Pattern string        `yaml:"pattern"`
}

// DefaultRules carries the provisional remap for the demo dataset, whose
// bucket layout upstream does not yet match the published keys.
// TODO: drop once the demo endpoints are fixed at the source.
func DefaultRules() []Rule {
	return []Rule{
		{
			Scheme:  models.SchemeS3,
			Marker:  "HMDEMO",
			Pattern: "s3://{2}/DEMO/{4}/{-4}/{-3}/{-2}/{-1}",
		},
	}
}

// LoadRules reads a rewrite rule table from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rewrite rules: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rewrite rules: %w", err)
	}

	return rules, nil
}

// Apply rewrites url when the rule matches its scheme and marker; otherwise
// the url comes back unchanged.
func (r Rule) Apply(url string) string {
	if models.ParseScheme(url) != r.Scheme || !strings.Contains(url, r.Marker) {
		return url
	}

	segments := strings.Split(url, "/")
	rewritten, ok := expandPattern(r.Pattern, segments)
	if !ok {
		return url
	}
	return rewritten
}

// expandPattern substitutes {n} placeholders with slash-segments of the
// original URL. Negative indexes count from the end. Reports false when a
// placeholder is malformed or out of range.
func expandPattern(pattern string, segments []string) (string, bool) {
	var b strings.Builder

	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '{' {
			b.WriteByte(pattern[i])
			continue
		}

		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			return "", false
		}
		idx, err := strconv.Atoi(pattern[i+1 : i+end])
		if err != nil {
			return "", false
		}
		if idx < 0 {
			idx += len(segments)
		}
		if idx < 0 || idx >= len(segments) {
			return "", false
		}

		b.WriteString(segments[idx])
		i += end
	}

	return b.String(), true
}

// Select parses the comma-separated URL list of a manifest entry and returns
// the candidates grouped by priority bucket in bucket order, preserving
// manifest order within a bucket. HTTPS ranks in the HTTP bucket. An empty
// result means no reachable source; the caller skips the entry.
func Select(rawURLList string, priorities []string, rules []Rule) []models.EndpointCandidate {
	if strings.TrimSpace(rawURLList) == "" {
		return nil
	}

	var urls []string
	for _, u := range strings.Split(rawURLList, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	if len(priorities) == 0 {
		priorities = DefaultPriorities
	}

	var candidates []models.EndpointCandidate
	for _, p := range priorities {
		want := models.Scheme(strings.ToUpper(strings.TrimSpace(p))).Normalized()

		for _, url := range urls {
			scheme := models.ParseScheme(url)
			if scheme == models.SchemeUnknown || scheme.Normalized() != want {
				continue
			}

			for _, rule := range rules {
				url = rule.Apply(url)
			}

			candidates = append(candidates, models.EndpointCandidate{
				Scheme: scheme,
				URL:    url,
			})
		}
	}

	return candidates
}
