// internal/sourcing/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"githire/internal/common/config"
	cerrors "githire/internal/common/errors"
	"githire/internal/common/logger"
	"githire/internal/models"
	"githire/internal/sourcing/batch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	ids      []string
	err      error
	calls    atomic.Int64
	searches atomic.Int64
}

func (p *fakePlatform) SearchUsers(ctx context.Context, query string) ([]string, error) {
	p.searches.Add(1)
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.ids, nil
}

func (p *fakePlatform) Calls() int64 { return p.calls.Load() }

type fakeFetcher struct {
	platform  *fakePlatform
	failIDs   map[string]error
	locations map[string]string // per-id profile location, default Chennai
	// recoverOnSingle makes a single-id fetch succeed even for a failing id,
	// simulating a chunk-level failure that an individual retry recovers.
	recoverOnSingle bool
	fetches         atomic.Int64
}

func (f *fakeFetcher) FetchProfiles(ctx context.Context, ids []string) batch.Result {
	// Each non-empty fetch is one upstream request, mirroring the real
	// chunked client's call accounting.
	if len(ids) > 0 {
		f.fetches.Add(1)
		if f.platform != nil {
			f.platform.calls.Add(1)
		}
	}
	result := batch.Result{
		Profiles: make(map[string]models.RawProfile),
		Failed:   make(map[string]error),
	}
	for _, id := range ids {
		if err, ok := f.failIDs[id]; ok && !(f.recoverOnSingle && len(ids) == 1) {
			result.Failed[id] = err
			continue
		}
		loc := "Chennai"
		if l, ok := f.locations[id]; ok {
			loc = l
		}
		result.Profiles[id] = models.RawProfile{Login: id, Location: loc}
	}
	return result
}

type fakeCollector struct {
	mu      sync.Mutex
	cache   *memRunCache
	errIDs  map[string]error
	methods map[string]models.ProcessingMethod
	delay   time.Duration
	seen    []string
}

func (c *fakeCollector) Collect(ctx context.Context, id string, profile *models.RawProfile) (*models.EvidenceBundle, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.seen = append(c.seen, id)
	c.mu.Unlock()

	if err, ok := c.errIDs[id]; ok {
		return nil, err
	}
	method := models.MethodPrimary
	if m, ok := c.methods[id]; ok {
		method = m
	}
	bundle := &models.EvidenceBundle{CandidateID: id, Method: method, RepositoriesAnalyzed: 3}
	// Mirror the real orchestrator: primary bundles land in the candidate tier.
	if method == models.MethodPrimary && c.cache != nil {
		c.cache.putCandidate(id, bundle, profile)
	}
	return bundle, nil
}

// fakeScorer assigns a fixed confidence per candidate id (via the bundle)
// and qualifies at 0.5.
type fakeScorer struct {
	confidence map[string]float64
}

func (s *fakeScorer) Score(skills []string, bundle *models.EvidenceBundle) []models.SkillConfidence {
	conf := s.confidence[bundle.CandidateID]
	out := make([]models.SkillConfidence, 0, len(skills))
	for _, skill := range skills {
		out = append(out, models.SkillConfidence{
			SkillName:  skill,
			Confidence: conf,
			Qualified:  conf >= 0.5,
		})
	}
	return out
}

// fakeLocator treats the raw string as a city name; empty or "remote" is a
// wildcard. City equality matches at priority 1.0; an unresolved candidate
// passes at priority 0, like the real resolver's global pool.
type fakeLocator struct{}

func (l *fakeLocator) Resolve(raw string) models.LocationResolution {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "remote") {
		return models.LocationResolution{RawInput: raw, Wildcard: true}
	}
	return models.LocationResolution{
		RawInput: raw,
		Matches:  []models.LocationHierarchy{{RawInput: raw, City: trimmed, Confidence: 0.95, PriorityScore: 1.0}},
	}
}

func (l *fakeLocator) MatchFilter(candidate, filter models.LocationResolution) (bool, float64) {
	if filter.Wildcard {
		return true, 0.0
	}
	unresolved := true
	for _, c := range candidate.Matches {
		if !c.Unresolved() {
			unresolved = false
		}
	}
	if unresolved {
		return true, 0.0
	}
	for _, f := range filter.Matches {
		for _, c := range candidate.Matches {
			if strings.EqualFold(c.City, f.City) {
				return true, 1.0
			}
		}
	}
	return false, 0.0
}

type memRunCache struct {
	mu         sync.Mutex
	searches   map[string][]string
	candidates map[string]warmCandidate
}

func newMemRunCache() *memRunCache {
	return &memRunCache{
		searches:   make(map[string][]string),
		candidates: make(map[string]warmCandidate),
	}
}

func (c *memRunCache) GetSearch(ctx context.Context, key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.searches[key]
	return ids, ok
}

func (c *memRunCache) PutSearch(ctx context.Context, key string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches[key] = ids
}

func (c *memRunCache) GetCandidate(ctx context.Context, id string) (*models.EvidenceBundle, *models.RawProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.candidates[id]
	return w.bundle, w.profile, ok
}

func (c *memRunCache) putCandidate(id string, b *models.EvidenceBundle, p *models.RawProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates[id] = warmCandidate{bundle: b, profile: p}
}

func testSourcingConfig() config.SourcingConfig {
	return config.SourcingConfig{
		Concurrency:      4,
		BudgetMS:         5000,
		SuccessRateFloor: 0.5,
	}
}

func newCoordinator(platform *fakePlatform, fetcher *fakeFetcher, collector *fakeCollector, scorer *fakeScorer, cfg config.SourcingConfig) (*Coordinator, *memRunCache) {
	runCache := newMemRunCache()
	fetcher.platform = platform
	collector.cache = runCache
	c := New(platform, fetcher, collector, scorer, &fakeLocator{}, runCache, nil, cfg, logger.NewNoOpLogger())
	return c, runCache
}

func TestDiscover_QualifiedCandidatesRankedDeterministically(t *testing.T) {
	platform := &fakePlatform{ids: []string{"carol", "alice", "bob", "dave"}}
	collector := &fakeCollector{}
	scorer := &fakeScorer{confidence: map[string]float64{
		"alice": 0.9,
		"bob":   0.6,
		"carol": 0.6,
		"dave":  0.2, // below the qualification threshold
	}}
	c, _ := newCoordinator(platform, &fakeFetcher{}, collector, scorer, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "remote",
	})

	assert.Equal(t, 4, result.TotalCandidatesFound)
	assert.False(t, result.TimedOut)
	assert.False(t, result.PartialFailure)
	assert.Equal(t, 1.0, result.SuccessRate)

	require.Len(t, result.QualifiedCandidates, 3)
	assert.Equal(t, "alice", result.QualifiedCandidates[0].Identifier)
	// Equal scores fall back to identifier order.
	assert.Equal(t, "bob", result.QualifiedCandidates[1].Identifier)
	assert.Equal(t, "carol", result.QualifiedCandidates[2].Identifier)
}

func TestDiscover_SecondIdenticalRunServedFromCache(t *testing.T) {
	platform := &fakePlatform{ids: []string{"alice", "bob"}}
	fetcher := &fakeFetcher{}
	collector := &fakeCollector{}
	scorer := &fakeScorer{confidence: map[string]float64{"alice": 0.9, "bob": 0.8}}
	c, _ := newCoordinator(platform, fetcher, collector, scorer, testSourcingConfig())

	criteria := models.JobRequirement{RequiredSkills: []string{"pandas"}, Location: "remote"}

	// Cold run: one search plus one batch profile fetch.
	first := c.Discover(context.Background(), criteria)
	assert.Equal(t, int64(2), first.APICallsMade)
	require.Len(t, first.QualifiedCandidates, 2)

	// Warm rerun inside both TTLs: zero upstream calls of any kind.
	second := c.Discover(context.Background(), criteria)
	assert.Equal(t, int64(0), second.APICallsMade)
	assert.Equal(t, int64(1), platform.searches.Load())
	assert.Equal(t, int64(1), fetcher.fetches.Load(), "warm candidates must not be re-fetched")
	assert.Len(t, collector.seen, 2, "warm candidates must not be re-collected")

	assert.Equal(t, first.TotalCandidatesFound, second.TotalCandidatesFound)
	require.Len(t, second.QualifiedCandidates, 2)
	assert.Equal(t, first.QualifiedCandidates[0].Identifier, second.QualifiedCandidates[0].Identifier)
}

func TestDiscover_LocationFilterExcludesNonMatching(t *testing.T) {
	platform := &fakePlatform{ids: []string{"alice", "bob", "carol"}}
	// alice resolves to the filtered city, carol to a different one; bob has
	// no profile at all, so his location never resolves.
	fetcher := &fakeFetcher{
		locations: map[string]string{"carol": "Berlin"},
		failIDs: map[string]error{
			"bob": cerrors.NewPermanentUpstreamError("users/bob", 404),
		},
	}
	scorer := &fakeScorer{confidence: map[string]float64{"alice": 0.9, "bob": 0.9, "carol": 0.9}}
	c, _ := newCoordinator(platform, fetcher, &fakeCollector{}, scorer, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "Chennai",
	})

	// carol's resolved mismatch is excluded; bob stays in the global pool at
	// location priority 0 and ranks below the city match.
	require.Len(t, result.QualifiedCandidates, 2)

	cand := result.QualifiedCandidates[0]
	assert.Equal(t, "alice", cand.Identifier)
	assert.Equal(t, "Chennai", cand.Location.City)
	// 0.7 * 0.9 skill mean + 0.3 * 1.0 city priority.
	assert.InDelta(t, 0.93, cand.OverallMatchScore, 1e-9)

	global := result.QualifiedCandidates[1]
	assert.Equal(t, "bob", global.Identifier)
	// 0.7 * 0.9 skill mean, no location contribution.
	assert.InDelta(t, 0.63, global.OverallMatchScore, 1e-9)
}

func TestDiscover_FallbackMethodSurfacesOnResult(t *testing.T) {
	platform := &fakePlatform{ids: []string{"alice"}}
	collector := &fakeCollector{methods: map[string]models.ProcessingMethod{
		"alice": models.MethodFallback,
	}}
	scorer := &fakeScorer{confidence: map[string]float64{"alice": 0.7}}
	c, _ := newCoordinator(platform, &fakeFetcher{}, collector, scorer, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "remote",
	})

	assert.True(t, result.FallbackUsed)
	require.Len(t, result.QualifiedCandidates, 1)
	assert.Equal(t, models.MethodFallback, result.QualifiedCandidates[0].ProcessingMethod)
}

func TestDiscover_SuccessRateFloorMarksPartialFailure(t *testing.T) {
	platform := &fakePlatform{ids: []string{"alice", "bob", "carol"}}
	collector := &fakeCollector{errIDs: map[string]error{
		"bob":   cerrors.NewCandidateCollectionFailedError("bob", assert.AnError),
		"carol": cerrors.NewCandidateCollectionFailedError("carol", assert.AnError),
	}}
	scorer := &fakeScorer{confidence: map[string]float64{"alice": 0.9}}
	c, _ := newCoordinator(platform, &fakeFetcher{}, collector, scorer, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "remote",
	})

	// 1 of 3 succeeded, below the 0.5 floor.
	assert.InDelta(t, 1.0/3.0, result.SuccessRate, 1e-9)
	assert.True(t, result.PartialFailure)
	assert.Len(t, result.QualifiedCandidates, 1)
	assert.Len(t, result.Errors, 2)
}

func TestDiscover_SearchFailureReturnsErrorResult(t *testing.T) {
	platform := &fakePlatform{err: cerrors.NewUpstreamUnavailableError(4, assert.AnError)}
	c, _ := newCoordinator(platform, &fakeFetcher{}, &fakeCollector{}, &fakeScorer{}, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "remote",
	})

	assert.Zero(t, result.TotalCandidatesFound)
	assert.True(t, result.PartialFailure)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UPSTREAM_UNAVAILABLE")
}

func TestDiscover_BudgetExpiryStopsRunAndFlagsTimeout(t *testing.T) {
	ids := make([]string, 20)
	conf := make(map[string]float64, len(ids))
	for i := range ids {
		ids[i] = string(rune('a'+i)) + "-user"
		conf[ids[i]] = 0.9
	}

	cfg := testSourcingConfig()
	cfg.BudgetMS = 30
	cfg.Concurrency = 1

	platform := &fakePlatform{ids: ids}
	collector := &fakeCollector{delay: 20 * time.Millisecond}
	c, _ := newCoordinator(platform, &fakeFetcher{}, collector, &fakeScorer{confidence: conf}, cfg)

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "remote",
	})

	assert.True(t, result.TimedOut)
	// The run reports what it finished rather than aborting wholesale.
	assert.Equal(t, len(ids), result.TotalCandidatesFound)
	assert.Less(t, len(result.QualifiedCandidates), len(ids))
}

func TestBuildSearchQuery(t *testing.T) {
	locator := &fakeLocator{}

	q := buildSearchQuery(models.JobRequirement{
		RequiredSkills: []string{"Pandas", "NumPy"},
		Location:       "Chennai",
	}, locator.Resolve("Chennai"))
	assert.Equal(t, `pandas numpy type:user location:"Chennai"`, q)

	// Skills naming a language become a language qualifier instead.
	q = buildSearchQuery(models.JobRequirement{
		RequiredSkills: []string{"golang", "kubernetes"},
		Location:       "remote",
	}, locator.Resolve("remote"))
	assert.Equal(t, "language:go kubernetes type:user", q)

	// An ambiguous city set must not be narrowed to one interpretation at
	// search time; the query widens to the level every match shares.
	ambiguous := models.LocationResolution{
		RawInput: "Springfield",
		Matches: []models.LocationHierarchy{
			{RawInput: "Springfield", City: "Springfield", State: "Illinois", Country: "United States", PriorityScore: 1.0},
			{RawInput: "Springfield", City: "Springfield", State: "Missouri", Country: "United States", PriorityScore: 1.0},
		},
	}
	q = buildSearchQuery(models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "Springfield",
	}, ambiguous)
	assert.Equal(t, `pandas type:user location:"United States"`, q)

	// A filter that never resolved applies no location qualifier at all.
	unresolved := models.LocationResolution{
		RawInput: "Atlantis Prime",
		Matches:  []models.LocationHierarchy{{RawInput: "Atlantis Prime"}},
	}
	q = buildSearchQuery(models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "Atlantis Prime",
	}, unresolved)
	assert.Equal(t, "pandas type:user", q)
}

func TestDiscover_ChunkFailedProfileRetriedIndividually(t *testing.T) {
	platform := &fakePlatform{ids: []string{"alice", "bob"}}
	fetcher := &fakeFetcher{
		failIDs: map[string]error{
			"alice": cerrors.NewUpstreamUnavailableError(4, assert.AnError),
		},
		recoverOnSingle: true,
	}
	scorer := &fakeScorer{confidence: map[string]float64{"alice": 0.9, "bob": 0.1}}
	c, _ := newCoordinator(platform, fetcher, &fakeCollector{}, scorer, testSourcingConfig())

	result := c.Discover(context.Background(), models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "Chennai",
	})

	// The individual retry recovers the profile, so the candidate's location
	// resolves and it qualifies despite the chunk failure.
	require.Len(t, result.QualifiedCandidates, 1)
	assert.Equal(t, "alice", result.QualifiedCandidates[0].Identifier)
}
