// Package coordinator drives one discovery run end to end: search, batch
// profile fetch, concurrent per-candidate evidence collection and scoring,
// location filtering, and the final deterministic ranking.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"githire/internal/common/config"
	cerrors "githire/internal/common/errors"
	"githire/internal/common/logger"
	"githire/internal/common/metrics"
	"githire/internal/common/observability"
	"githire/internal/models"
	"githire/internal/sourcing/batch"
	"githire/internal/sourcing/cache"
)

// Platform is the search surface of the upstream client plus its call
// counter, snapshotted around a run for per-run accounting.
type Platform interface {
	SearchUsers(ctx context.Context, query string) ([]string, error)
	Calls() int64
}

// ProfileFetcher is the chunked multi-entity profile fetch.
type ProfileFetcher interface {
	FetchProfiles(ctx context.Context, ids []string) batch.Result
}

// Collector assembles one candidate's evidence bundle.
type Collector interface {
	Collect(ctx context.Context, candidateID string, profile *models.RawProfile) (*models.EvidenceBundle, error)
}

// Scorer turns an evidence bundle into per-skill confidences.
type Scorer interface {
	Score(skills []string, bundle *models.EvidenceBundle) []models.SkillConfidence
}

// Locator resolves free-text locations and matches candidates against the
// search filter.
type Locator interface {
	Resolve(raw string) models.LocationResolution
	MatchFilter(candidate, filter models.LocationResolution) (bool, float64)
}

// RunCache is the slice of the two-tier cache a run reads through: the
// search-result tier plus the candidate tier, consulted before any profile
// fetch so warm candidates cost no upstream calls.
type RunCache interface {
	GetSearch(ctx context.Context, key string) ([]string, bool)
	PutSearch(ctx context.Context, key string, ids []string)
	GetCandidate(ctx context.Context, candidateID string) (*models.EvidenceBundle, *models.RawProfile, bool)
}

// Overall match score blend: skill evidence dominates, location proximity
// breaks near-ties.
const (
	skillScoreWeight    = 0.7
	locationScoreWeight = 0.3
)

type Coordinator struct {
	platform Platform
	fetcher  ProfileFetcher
	collect  Collector
	scorer   Scorer
	locator  Locator
	cache    RunCache
	obs      *observability.Observability
	cfg      config.SourcingConfig
	logger   logger.Logger
}

func New(
	platform Platform,
	fetcher ProfileFetcher,
	collect Collector,
	scorer Scorer,
	locator Locator,
	runCache RunCache,
	obs *observability.Observability,
	cfg config.SourcingConfig,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		platform: platform,
		fetcher:  fetcher,
		collect:  collect,
		scorer:   scorer,
		locator:  locator,
		cache:    runCache,
		obs:      obs,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "sourcing-coordinator"}),
	}
}

// warmCandidate is a candidate-tier cache hit: the bundle and the profile it
// was built from, needing no upstream traffic this run.
type warmCandidate struct {
	bundle  *models.EvidenceBundle
	profile *models.RawProfile
}

// candidateOutcome is what one worker produces for one candidate.
type candidateOutcome struct {
	id      string
	profile *models.CandidateProfile // nil when filtered out or failed
	err     error
}

// Discover runs one sourcing pass for the given criteria. It never returns
// an error for per-candidate problems; those are folded into the result. The
// run stops early when the wall-clock budget expires and reports what it
// completed with timed_out set.
func (c *Coordinator) Discover(ctx context.Context, criteria models.JobRequirement) *models.SourcingResult {
	runID := uuid.NewString()
	started := time.Now()
	callsBefore := c.platform.Calls()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Budget())
	defer cancel()

	log := c.logger.WithFields(map[string]interface{}{"runId": runID})
	log.Info("discovery run started", map[string]interface{}{
		"skills":   criteria.RequiredSkills,
		"location": criteria.Location,
	})

	result := &models.SourcingResult{}

	filter := c.locator.Resolve(criteria.Location)

	ids, err := c.searchCandidates(ctx, criteria, filter, log)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("search: %v", err))
		result.PartialFailure = true
		c.finish(ctx, result, started, callsBefore, log)
		return result
	}
	result.TotalCandidatesFound = len(ids)

	// Warm candidates are served entirely from the candidate tier; only the
	// cold remainder is fetched upstream.
	warm := make(map[string]warmCandidate)
	cold := make([]string, 0, len(ids))
	for _, id := range ids {
		if bundle, profile, ok := c.cache.GetCandidate(ctx, id); ok {
			warm[id] = warmCandidate{bundle: bundle, profile: profile}
			continue
		}
		cold = append(cold, id)
	}

	fetched := batch.Result{Profiles: map[string]models.RawProfile{}, Failed: map[string]error{}}
	if len(cold) > 0 {
		fetched = c.fetcher.FetchProfiles(ctx, cold)
	}
	if len(fetched.Failed) > 0 {
		log.Warn("profile fetch failures, deferring to per-candidate collection", map[string]interface{}{
			"failed": len(fetched.Failed),
		})
	}

	outcomes := c.processCandidates(ctx, ids, fetched, warm, criteria, filter)

	succeeded := 0
	for _, oc := range outcomes {
		if oc.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", oc.id, oc.err))
			continue
		}
		succeeded++
		if oc.profile == nil {
			continue // processed fine, filtered out
		}
		if oc.profile.ProcessingMethod == models.MethodFallback {
			result.FallbackUsed = true
		}
		result.QualifiedCandidates = append(result.QualifiedCandidates, *oc.profile)
	}

	// Deterministic ordering: score descending, identifier ascending on ties.
	sort.SliceStable(result.QualifiedCandidates, func(i, j int) bool {
		a, b := result.QualifiedCandidates[i], result.QualifiedCandidates[j]
		if a.OverallMatchScore != b.OverallMatchScore {
			return a.OverallMatchScore > b.OverallMatchScore
		}
		return a.Identifier < b.Identifier
	})

	if result.TotalCandidatesFound > 0 {
		result.SuccessRate = float64(succeeded) / float64(result.TotalCandidatesFound)
	} else {
		result.SuccessRate = 1.0
	}
	result.PartialFailure = result.SuccessRate < c.cfg.SuccessRateFloor

	c.finish(ctx, result, started, callsBefore, log)
	return result
}

// searchCandidates resolves the candidate id list, through the search-result
// cache when warm.
func (c *Coordinator) searchCandidates(ctx context.Context, criteria models.JobRequirement, filter models.LocationResolution, log logger.Logger) ([]string, error) {
	key := cache.SearchKey(criteria)
	if ids, ok := c.cache.GetSearch(ctx, key); ok {
		log.Info("search cache hit", map[string]interface{}{"candidates": len(ids)})
		return ids, nil
	}

	ids, err := c.platform.SearchUsers(ctx, buildSearchQuery(criteria, filter))
	if err != nil {
		return nil, err
	}
	c.cache.PutSearch(ctx, key, ids)
	return ids, nil
}

// searchLanguages are the skill names that double as a primary-language
// qualifier on the upstream search.
var searchLanguages = map[string]bool{
	"go": true, "golang": true, "python": true, "javascript": true,
	"typescript": true, "java": true, "rust": true, "ruby": true,
	"php": true, "kotlin": true, "swift": true, "scala": true, "c++": true,
}

// buildSearchQuery assembles the upstream search expression from the skill
// keywords, a language qualifier when a skill names one, and the resolved
// location filter.
func buildSearchQuery(criteria models.JobRequirement, filter models.LocationResolution) string {
	var parts []string
	for _, skill := range criteria.RequiredSkills {
		s := strings.ToLower(strings.TrimSpace(skill))
		if searchLanguages[s] {
			if s == "golang" {
				s = "go"
			}
			parts = append(parts, "language:"+s)
			continue
		}
		parts = append(parts, s)
	}
	parts = append(parts, "type:user")

	if !filter.Wildcard {
		if qual := locationQualifier(filter.Matches); qual != "" {
			parts = append(parts, qual)
		}
	}
	return strings.Join(parts, " ")
}

// locationQualifier picks the upstream location qualifier for the resolved
// filter set. A single match uses its deepest level. An ambiguous set must
// not be narrowed to one interpretation at search time, so it queries the
// narrowest level every match shares; sharing nothing, or resolving nothing,
// means no location qualifier at all.
func locationQualifier(matches []models.LocationHierarchy) string {
	var resolved []models.LocationHierarchy
	for _, m := range matches {
		if !m.Unresolved() {
			resolved = append(resolved, m)
		}
	}
	if len(resolved) == 0 {
		return ""
	}

	if len(resolved) == 1 {
		m := resolved[0]
		switch {
		case m.City != "":
			return fmt.Sprintf("location:%q", m.City)
		case m.State != "":
			return fmt.Sprintf("location:%q", m.State)
		case m.Country != "":
			return fmt.Sprintf("location:%q", m.Country)
		}
		return ""
	}

	state, country := resolved[0].State, resolved[0].Country
	for _, m := range resolved[1:] {
		if !strings.EqualFold(m.State, state) {
			state = ""
		}
		if !strings.EqualFold(m.Country, country) {
			country = ""
		}
	}
	if state != "" {
		return fmt.Sprintf("location:%q", state)
	}
	if country != "" {
		return fmt.Sprintf("location:%q", country)
	}
	return ""
}

// processCandidates fans the fetched profiles out over a bounded worker pool.
// Ids lost to a chunk failure get one individual fetch retry; if that fails
// too, collection still runs with a nil profile so repo-derived signals can
// rescue the candidate.
func (c *Coordinator) processCandidates(ctx context.Context, ids []string, fetched batch.Result, warm map[string]warmCandidate, criteria models.JobRequirement, filter models.LocationResolution) []candidateOutcome {
	jobs := make(chan string)
	results := make(chan candidateOutcome, len(ids))

	workers := c.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- c.processOne(ctx, id, fetched, warm, criteria, filter)
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case jobs <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var out []candidateOutcome
	for oc := range results {
		out = append(out, oc)
	}
	return out
}

func (c *Coordinator) processOne(ctx context.Context, id string, fetched batch.Result, warm map[string]warmCandidate, criteria models.JobRequirement, filter models.LocationResolution) candidateOutcome {
	if err := ctx.Err(); err != nil {
		return candidateOutcome{id: id, err: err}
	}

	var profile *models.RawProfile
	var bundle *models.EvidenceBundle

	if w, ok := warm[id]; ok {
		bundle, profile = w.bundle, w.profile
	} else {
		if p, ok := fetched.Profiles[id]; ok {
			profile = &p
		} else if ferr, failed := fetched.Failed[id]; failed && !cerrors.HasCode(ferr, cerrors.ErrCodePermanentUpstream) {
			// Chunk-level failures get one individual retry; a 404 stays dead.
			retried := c.fetcher.FetchProfiles(ctx, []string{id})
			if p, ok := retried.Profiles[id]; ok {
				profile = &p
			}
		}

		var err error
		bundle, err = c.collect.Collect(ctx, id, profile)
		if err != nil {
			return candidateOutcome{id: id, err: err}
		}
	}

	skills := c.scorer.Score(criteria.RequiredSkills, bundle)

	candidateLoc := models.LocationResolution{RawInput: ""}
	if profile != nil {
		candidateLoc = c.locator.Resolve(profile.Location)
	}

	locMatch, locPriority := c.locator.MatchFilter(candidateLoc, filter)
	if !locMatch {
		return candidateOutcome{id: id}
	}

	cp := &models.CandidateProfile{
		Identifier:           id,
		Location:             candidateLoc.Primary(),
		Skills:               skills,
		RepositoriesAnalyzed: bundle.RepositoriesAnalyzed,
		ProcessingMethod:     bundle.Method,
	}
	if profile != nil {
		cp.Metadata = map[string]interface{}{
			"followers":    profile.Followers,
			"public_repos": profile.PublicRepos,
		}
	}

	if !cp.AllSkillsQualified() {
		return candidateOutcome{id: id}
	}

	cp.OverallMatchScore = overallScore(skills, locPriority)
	return candidateOutcome{id: id, profile: cp}
}

// overallScore blends the mean skill confidence with the location priority.
func overallScore(skills []models.SkillConfidence, locPriority float64) float64 {
	if len(skills) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range skills {
		sum += s.Confidence
	}
	mean := sum / float64(len(skills))
	return skillScoreWeight*mean + locationScoreWeight*locPriority
}

// finish stamps timing, call accounting and run telemetry onto the result.
func (c *Coordinator) finish(ctx context.Context, result *models.SourcingResult, started time.Time, callsBefore int64, log logger.Logger) {
	elapsed := time.Since(started)
	result.ProcessingTimeMS = elapsed.Milliseconds()
	result.APICallsMade = c.platform.Calls() - callsBefore
	result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)

	outcome := "success"
	switch {
	case result.TimedOut:
		outcome = "timed_out"
	case result.PartialFailure:
		outcome = "partial_failure"
	}

	metrics.DiscoveryRunsTotal.WithLabelValues(outcome).Inc()
	metrics.DiscoveryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if c.obs != nil {
		c.obs.RecordRun(ctx, outcome, elapsed, result.TotalCandidatesFound)
	}

	log.Info("discovery run finished", map[string]interface{}{
		"outcome":      outcome,
		"found":        result.TotalCandidatesFound,
		"qualified":    len(result.QualifiedCandidates),
		"apiCalls":     result.APICallsMade,
		"successRate":  result.SuccessRate,
		"durationMs":   result.ProcessingTimeMS,
		"fallbackUsed": result.FallbackUsed,
	})
}
