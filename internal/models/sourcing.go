// internal/models/sourcing.go
package models

// JobRequirement is the typed criteria produced by the external
// job-description parser.
type JobRequirement struct {
	RequiredSkills []string `json:"required_skills"`
	Location       string   `json:"location"`
	Seniority      string   `json:"seniority,omitempty"`
}

// SourcingResult is the output of a single discovery invocation. Plain
// serializable data, consumed read-only by downstream collaborators.
type SourcingResult struct {
	TotalCandidatesFound int                `json:"total_candidates_found"`
	QualifiedCandidates  []CandidateProfile `json:"qualified_candidates"`
	ProcessingTimeMS     int64              `json:"processing_time_ms"`
	APICallsMade         int64              `json:"api_calls_made"`
	FallbackUsed         bool               `json:"fallback_used"`
	SuccessRate          float64            `json:"success_rate"`
	TimedOut             bool               `json:"timed_out"`
	PartialFailure       bool               `json:"partial_failure"`
	Errors               []string           `json:"errors,omitempty"`
}
