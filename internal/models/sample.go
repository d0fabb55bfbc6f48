package models

// MemberRecord is one file extracted from an archive.
type MemberRecord struct {
	Name string `json:"name"`
}

// ExtractedGroup is the ordered member list of one extracted archive.
type ExtractedGroup struct {
	Archive string         `json:"archive"`
	Members []MemberRecord `json:"members"`
}

// SampleRecord groups the three read files of one sequencing sample.
// A record exists only when all three roles were found for the same
// sample prefix.
type SampleRecord struct {
	SampleID string `json:"sample_id"`
	R1       string `json:"r1"`
	R2       string `json:"r2"`
	I1       string `json:"i1"`
}

// IncompleteGroup reports an archive whose members did not form exactly one
// R1/R2/I1 triple. Members lists every name in the group so an operator can
// see what was off.
type IncompleteGroup struct {
	Archive string   `json:"archive"`
	Members []string `json:"members"`
	Reason  string   `json:"reason"`
}
