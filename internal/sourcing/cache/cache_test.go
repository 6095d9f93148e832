// internal/sourcing/cache/cache_test.go
package cache

import (
	"context"
	"testing"
	"time"

	"githire/internal/common/config"
	"githire/internal/common/database"
	"githire/internal/common/logger"
	"githire/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TwoTier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(database.NewRedisFromClient(client), config.CacheConfig{
		SearchTTLMinutes:  30,
		ProfileTTLMinutes: 360,
	}, logger.NewNoOpLogger())
	return c, mr
}

func TestSearchKey_DeterministicAndOrderInsensitive(t *testing.T) {
	a := SearchKey(models.JobRequirement{
		RequiredSkills: []string{"pandas", "numpy"},
		Location:       "Chennai, India",
		Seniority:      "senior",
	})
	b := SearchKey(models.JobRequirement{
		RequiredSkills: []string{"Numpy", "Pandas"},
		Location:       "india,  chennai",
		Seniority:      "Senior",
	})
	assert.Equal(t, a, b)

	c := SearchKey(models.JobRequirement{
		RequiredSkills: []string{"pandas"},
		Location:       "Chennai, India",
		Seniority:      "senior",
	})
	assert.NotEqual(t, a, c)
}

func TestSearchTier_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := SearchKey(models.JobRequirement{RequiredSkills: []string{"go"}, Location: "Berlin"})

	_, ok := c.GetSearch(ctx, key)
	assert.False(t, ok)

	c.PutSearch(ctx, key, []string{"alice", "bob"})

	ids, ok := c.GetSearch(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, ids)
}

func TestProfileTier_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	bundle := &models.EvidenceBundle{
		CandidateID: "alice",
		Method:      models.MethodPrimary,
		Items: []models.EvidenceItem{
			{Kind: models.SignalDependency, Source: "alice/analytics", Value: "pandas"},
		},
		RepositoriesAnalyzed: 12,
	}
	profile := &models.RawProfile{Login: "alice", Location: "Chennai", Followers: 42}

	_, _, ok := c.GetCandidate(ctx, "alice")
	assert.False(t, ok)

	c.PutCandidate(ctx, "alice", bundle, profile)

	gotBundle, gotProfile, ok := c.GetCandidate(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, bundle, gotBundle)
	assert.Equal(t, profile, gotProfile)
}

func TestTiers_ExpireIndependently(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key := SearchKey(models.JobRequirement{RequiredSkills: []string{"go"}})
	c.PutSearch(ctx, key, []string{"alice"})
	c.PutCandidate(ctx, "alice", &models.EvidenceBundle{CandidateID: "alice", Method: models.MethodPrimary}, &models.RawProfile{Login: "alice"})

	// Past the search TTL but inside the profile TTL: the search tier
	// misses while the previously seen candidate's bundle is still warm.
	mr.FastForward(31 * time.Minute)

	_, ok := c.GetSearch(ctx, key)
	assert.False(t, ok)

	_, _, ok = c.GetCandidate(ctx, "alice")
	assert.True(t, ok)

	mr.FastForward(6 * time.Hour)

	_, _, ok = c.GetCandidate(ctx, "alice")
	assert.False(t, ok)
}

func TestPutSearch_WriteFailureIsSwallowed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(database.NewRedisFromClient(client), config.CacheConfig{
		SearchTTLMinutes:  30,
		ProfileTTLMinutes: 360,
	}, logger.NewNoOpLogger())

	mock.Regexp().ExpectSet(`sourcing:search:.*`, `.*`, 30*time.Minute).SetErr(assert.AnError)

	// Must not panic or propagate the redis failure.
	c.PutSearch(context.Background(), SearchKey(models.JobRequirement{RequiredSkills: []string{"go"}}), []string{"alice"})

	assert.NoError(t, mock.ExpectationsWereMet())
}
