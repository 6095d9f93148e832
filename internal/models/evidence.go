// internal/models/evidence.go
package models

// SignalKind identifies one independent source of evidence about a
// candidate possessing a skill.
type SignalKind string

const (
	SignalDependency SignalKind = "dependency"
	SignalTopics     SignalKind = "topics"
	SignalLanguages  SignalKind = "languages"
	SignalBio        SignalKind = "bio"
	SignalRepoNames  SignalKind = "names"
)

// KnownSignals lists every signal kind the ensemble scorer understands.
var KnownSignals = []SignalKind{
	SignalDependency,
	SignalTopics,
	SignalLanguages,
	SignalBio,
	SignalRepoNames,
}

// ProcessingMethod records which collector combination produced a bundle.
type ProcessingMethod string

const (
	MethodPrimary  ProcessingMethod = "primary"
	MethodFallback ProcessingMethod = "fallback"
)

// EvidenceItem is one raw finding tagged with the collector that produced
// it. Value is the matched token (a dependency name, a topic, a language)
// or free text for bio evidence; Source identifies where it came from,
// typically a repository name.
type EvidenceItem struct {
	Kind   SignalKind `json:"kind"`
	Source string     `json:"source"`
	Value  string     `json:"value"`
}

// EvidenceBundle is the per-candidate collection of raw findings from every
// collector that ran.
type EvidenceBundle struct {
	CandidateID          string           `json:"candidate_id"`
	Items                []EvidenceItem   `json:"items"`
	FailedSignals        []SignalKind     `json:"failed_signals,omitempty"`
	Method               ProcessingMethod `json:"method"`
	RepositoriesAnalyzed int              `json:"repositories_analyzed"`
}

// SignalFailed reports whether a given collector failed for this candidate.
func (b EvidenceBundle) SignalFailed(kind SignalKind) bool {
	for _, f := range b.FailedSignals {
		if f == kind {
			return true
		}
	}
	return false
}

// ItemsOf returns the findings produced by one collector.
func (b EvidenceBundle) ItemsOf(kind SignalKind) []EvidenceItem {
	var out []EvidenceItem
	for _, it := range b.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

// RawProfile is the upstream platform's view of a user, as returned by the
// multi-entity profile fetch.
type RawProfile struct {
	Login       string `json:"login"`
	Name        string `json:"name,omitempty"`
	Location    string `json:"location,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Followers   int    `json:"followers"`
	PublicRepos int    `json:"public_repos"`
}

// Repository is a single public repository surfaced during evidence
// collection.
type Repository struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Stars       int      `json:"stargazers_count"`
	Fork        bool     `json:"fork"`
}
