// Package location parses free-text locations into a city/state/country
// hierarchy against a static gazetteer and matches candidate locations
// against a search filter.
package location

import (
	"strings"

	"githire/internal/common/config"
	"githire/internal/common/logger"
	"githire/internal/models"
)

const (
	exactMatchConfidence = 0.95
	fuzzyBaseConfidence  = 0.9
	fuzzyDistancePenalty = 0.1
	maxEditDistance      = 2
)

// Resolver owns LocationHierarchy construction. Pure and synchronous; safe
// for concurrent use after construction.
type Resolver struct {
	priorities       map[string]float64
	crossStatePolicy string
	abbreviations    map[string]string
	logger           logger.Logger

	cities    map[string][]Record
	states    map[string][]Record
	countries map[string]string
	cityNames []string
}

func NewResolver(gaz *Gazetteer, cfg config.LocationConfig, log logger.Logger) *Resolver {
	r := &Resolver{
		priorities:       cfg.Priorities,
		crossStatePolicy: cfg.CrossStateCityPolicy,
		abbreviations:    make(map[string]string, len(gaz.Abbreviations)),
		logger:           log.WithFields(map[string]interface{}{"component": "location-resolver"}),
		cities:           make(map[string][]Record),
		states:           make(map[string][]Record),
		countries:        make(map[string]string),
	}

	for k, v := range gaz.Abbreviations {
		r.abbreviations[strings.ToLower(k)] = v
	}

	for _, rec := range gaz.Records {
		if rec.City != "" {
			key := strings.ToLower(rec.City)
			if _, seen := r.cities[key]; !seen {
				r.cityNames = append(r.cityNames, key)
			}
			r.cities[key] = append(r.cities[key], rec)
		}
		if rec.State != "" {
			key := strings.ToLower(rec.State)
			r.states[key] = append(r.states[key], rec)
		}
		r.countries[strings.ToLower(rec.Country)] = rec.Country
	}

	return r
}

// priorityFor derives the priority score from the deepest matched level.
// Never hand-set anywhere else.
func (r *Resolver) priorityFor(level string) float64 {
	return r.priorities[level]
}

// Resolve parses raw user-supplied text into a resolution set. "remote"
// (any case) and empty input are global wildcards: no filtering applies
// downstream. A gazetteer miss with no fuzzy candidate yields a single
// unresolved hierarchy with confidence 0 — the record stays eligible on
// pure skill match.
func (r *Resolver) Resolve(raw string) models.LocationResolution {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "remote") {
		return models.LocationResolution{
			RawInput: raw,
			Wildcard: true,
			Matches: []models.LocationHierarchy{{
				RawInput:      raw,
				Confidence:    1.0,
				PriorityScore: 0.0,
			}},
		}
	}

	tokens := r.tokenize(trimmed)

	if matches := r.matchCity(raw, tokens); len(matches) > 0 {
		return models.LocationResolution{RawInput: raw, Matches: matches}
	}
	if matches := r.matchState(raw, tokens); len(matches) > 0 {
		return models.LocationResolution{RawInput: raw, Matches: matches}
	}
	if matches := r.matchCountry(raw, tokens); len(matches) > 0 {
		return models.LocationResolution{RawInput: raw, Matches: matches}
	}

	r.logger.Debug("gazetteer miss", map[string]interface{}{"raw": raw})
	return models.LocationResolution{
		RawInput: raw,
		Matches: []models.LocationHierarchy{{
			RawInput:      raw,
			Confidence:    0.0,
			PriorityScore: 0.0,
		}},
	}
}

// tokenize splits on commas and expands known region abbreviations.
func (r *Resolver) tokenize(raw string) []string {
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		if full, ok := r.abbreviations[strings.ToLower(t)]; ok {
			t = full
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// matchCity looks for a city-level match in any token, exact first, then
// fuzzy within the edit-distance bound. All gazetteer records sharing an
// ambiguous city name are returned; other tokens narrow the set when they
// name the state or country.
func (r *Resolver) matchCity(raw string, tokens []string) []models.LocationHierarchy {
	for _, tok := range tokens {
		key := strings.ToLower(tok)

		if recs, ok := r.cities[key]; ok {
			recs = r.narrowByTokens(recs, tokens, tok)
			return r.cityHierarchies(raw, recs, exactMatchConfidence)
		}

		if name, dist := r.closestCity(key); name != "" {
			recs := r.narrowByTokens(r.cities[name], tokens, tok)
			confidence := fuzzyBaseConfidence - fuzzyDistancePenalty*float64(dist)
			return r.cityHierarchies(raw, recs, confidence)
		}
	}
	return nil
}

func (r *Resolver) cityHierarchies(raw string, recs []Record, confidence float64) []models.LocationHierarchy {
	out := make([]models.LocationHierarchy, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.LocationHierarchy{
			RawInput:      raw,
			City:          rec.City,
			State:         rec.State,
			Country:       rec.Country,
			Confidence:    confidence,
			PriorityScore: r.priorityFor("city"),
		})
	}
	return out
}

// narrowByTokens drops records whose state or country contradicts another
// token of the input ("Springfield, Illinois" keeps only the Illinois one).
func (r *Resolver) narrowByTokens(recs []Record, tokens []string, cityTok string) []Record {
	var constraints []string
	for _, tok := range tokens {
		if strings.EqualFold(tok, cityTok) {
			continue
		}
		constraints = append(constraints, strings.ToLower(tok))
	}
	if len(constraints) == 0 {
		return recs
	}

	var narrowed []Record
	for _, rec := range recs {
		ok := true
		for _, c := range constraints {
			if !strings.EqualFold(rec.State, c) && !strings.EqualFold(rec.Country, c) {
				ok = false
				break
			}
		}
		if ok {
			narrowed = append(narrowed, rec)
		}
	}
	if len(narrowed) == 0 {
		// Constraints matched nothing; keep the ambiguous set rather than
		// inventing a miss.
		return recs
	}
	return narrowed
}

func (r *Resolver) matchState(raw string, tokens []string) []models.LocationHierarchy {
	for _, tok := range tokens {
		recs, ok := r.states[strings.ToLower(tok)]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		var out []models.LocationHierarchy
		for _, rec := range recs {
			key := rec.State + "|" + rec.Country
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, models.LocationHierarchy{
				RawInput:      raw,
				State:         rec.State,
				Country:       rec.Country,
				Confidence:    exactMatchConfidence,
				PriorityScore: r.priorityFor("state"),
			})
		}
		return out
	}
	return nil
}

func (r *Resolver) matchCountry(raw string, tokens []string) []models.LocationHierarchy {
	for _, tok := range tokens {
		if canonical, ok := r.countries[strings.ToLower(tok)]; ok {
			return []models.LocationHierarchy{{
				RawInput:      raw,
				Country:       canonical,
				Confidence:    exactMatchConfidence,
				PriorityScore: r.priorityFor("country"),
			}}
		}
	}
	return nil
}

func (r *Resolver) closestCity(key string) (string, int) {
	best := ""
	bestDist := maxEditDistance + 1
	for _, name := range r.cityNames {
		d := levenshtein(key, name)
		if d < bestDist {
			best = name
			bestDist = d
		}
	}
	if bestDist > maxEditDistance {
		return "", 0
	}
	return best, bestDist
}

// MatchFilter compares a candidate's resolved location against the search
// filter set (OR across ambiguous matches) and returns the deepest matched
// level's priority. A wildcard filter matches everything at priority 0, and
// so does a filter whose matches are all unresolved: a gazetteer miss on the
// search side means no location filtering applies. An unresolved candidate
// passes a concrete filter at priority 0; it is excluded from location-based
// ranking but stays eligible in the global pool on pure skill match.
func (r *Resolver) MatchFilter(candidate models.LocationResolution, filter models.LocationResolution) (bool, float64) {
	if filter.Wildcard || allUnresolved(filter.Matches) {
		return true, 0.0
	}
	if allUnresolved(candidate.Matches) {
		return true, 0.0
	}

	matched := false
	best := 0.0
	for _, f := range filter.Matches {
		if f.Unresolved() {
			continue
		}
		for _, c := range candidate.Matches {
			if c.Unresolved() {
				continue
			}
			if ok, p := r.matchPair(c, f); ok {
				matched = true
				if p > best {
					best = p
				}
			}
		}
	}
	return matched, best
}

// allUnresolved reports whether no entry in the match set names a real
// gazetteer location. An empty set counts as unresolved.
func allUnresolved(matches []models.LocationHierarchy) bool {
	for _, m := range matches {
		if !m.Unresolved() {
			return false
		}
	}
	return true
}

func (r *Resolver) matchPair(c, f models.LocationHierarchy) (bool, float64) {
	sameCountry := f.Country != "" && strings.EqualFold(c.Country, f.Country)
	sameState := f.State != "" && strings.EqualFold(c.State, f.State) && (f.Country == "" || sameCountry)
	sameCity := f.City != "" && strings.EqualFold(c.City, f.City)

	if sameCity && (f.State == "" || strings.EqualFold(c.State, f.State)) {
		return true, r.priorityFor("city")
	}

	// Same city name in a different state is a policy decision: include at
	// country level or exclude entirely.
	if sameCity && f.State != "" && !strings.EqualFold(c.State, f.State) {
		if r.crossStatePolicy == config.CrossStateCityExclude {
			return false, 0
		}
		if sameCountry {
			return true, r.priorityFor("country")
		}
		return false, 0
	}

	if sameState {
		return true, r.priorityFor("state")
	}
	if sameCountry {
		return true, r.priorityFor("country")
	}
	return false, 0
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
