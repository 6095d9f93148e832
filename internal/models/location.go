// internal/models/location.go
package models

// LocationHierarchy is a parsed free-text location. It is created once by the
// location resolver and never mutated afterwards.
type LocationHierarchy struct {
	RawInput      string  `json:"raw_input"`
	City          string  `json:"city,omitempty"`
	State         string  `json:"state,omitempty"`
	Country       string  `json:"country,omitempty"`
	Confidence    float64 `json:"confidence"`
	PriorityScore float64 `json:"priority_score"`
}

// Unresolved reports whether no hierarchy level was matched.
func (l LocationHierarchy) Unresolved() bool {
	return l.City == "" && l.State == "" && l.Country == ""
}

// LocationResolution is the resolver output for one raw input. Ambiguous
// inputs (the same city name in several regions) carry every match; the
// filtering stage treats the set as an OR.
type LocationResolution struct {
	RawInput string              `json:"raw_input"`
	Wildcard bool                `json:"wildcard"`
	Matches  []LocationHierarchy `json:"matches"`
}

// Primary returns the best match, or an unresolved hierarchy when the
// gazetteer produced nothing.
func (r LocationResolution) Primary() LocationHierarchy {
	if len(r.Matches) == 0 {
		return LocationHierarchy{RawInput: r.RawInput}
	}
	return r.Matches[0]
}
