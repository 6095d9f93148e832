// internal/models/candidate.go
package models

// SkillConfidence summarizes the evidence for one skill on one candidate.
// Constructed only by the ensemble scorer; Qualified is always derived from
// Confidence and the threshold in force, never set independently.
type SkillConfidence struct {
	SkillName  string             `json:"skill_name"`
	Confidence float64            `json:"confidence"`
	Signals    map[string]float64 `json:"signals"`
	Qualified  bool               `json:"qualified"`
	Evidence   []string           `json:"evidence,omitempty"`
}

// CandidateProfile is one discovered candidate. Built once per discovery run
// and treated as an immutable value downstream.
type CandidateProfile struct {
	Identifier           string                 `json:"identifier"`
	Location             LocationHierarchy      `json:"location"`
	Skills               []SkillConfidence      `json:"skills"`
	RepositoriesAnalyzed int                    `json:"repositories_analyzed"`
	OverallMatchScore    float64                `json:"overall_match_score"`
	ProcessingMethod     ProcessingMethod       `json:"processing_method"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// AllSkillsQualified reports whether every scored skill met its threshold.
func (c CandidateProfile) AllSkillsQualified() bool {
	if len(c.Skills) == 0 {
		return false
	}
	for _, s := range c.Skills {
		if !s.Qualified {
			return false
		}
	}
	return true
}
