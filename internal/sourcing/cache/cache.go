// Package cache is the two-tier redis cache: a search-result tier keyed by
// a hash of the normalized criteria, and a profile tier keyed by candidate
// identifier. The tiers expire independently; a hit on one never implies a
// hit on the other.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"githire/internal/common/config"
	"githire/internal/common/database"
	"githire/internal/common/logger"
	"githire/internal/common/metrics"
	"githire/internal/models"
)

const (
	searchKeyPrefix  = "sourcing:search:"
	profileKeyPrefix = "sourcing:profile:"

	tierSearch  = "search"
	tierProfile = "profile"
)

type TwoTier struct {
	redis      *database.RedisClient
	searchTTL  time.Duration
	profileTTL time.Duration
	logger     logger.Logger
}

func New(redis *database.RedisClient, cfg config.CacheConfig, log logger.Logger) *TwoTier {
	return &TwoTier{
		redis:      redis,
		searchTTL:  cfg.SearchTTL(),
		profileTTL: cfg.ProfileTTL(),
		logger:     log.WithFields(map[string]interface{}{"component": "two-tier-cache"}),
	}
}

// SearchKey builds the deterministic search-tier key: a digest over the
// sorted skill list, sorted location tokens and seniority, all lowercased.
// Criteria that differ only in ordering or case share a key.
func SearchKey(criteria models.JobRequirement) string {
	skills := make([]string, 0, len(criteria.RequiredSkills))
	for _, s := range criteria.RequiredSkills {
		skills = append(skills, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(skills)

	var locTokens []string
	for _, t := range strings.Split(criteria.Location, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			locTokens = append(locTokens, t)
		}
	}
	sort.Strings(locTokens)

	payload := strings.Join(skills, ",") + "|" + strings.Join(locTokens, ",") + "|" + strings.ToLower(strings.TrimSpace(criteria.Seniority))
	sum := sha256.Sum256([]byte(payload))
	return searchKeyPrefix + hex.EncodeToString(sum[:])
}

// GetSearch returns the cached candidate identifier list for a search key.
func (c *TwoTier) GetSearch(ctx context.Context, key string) ([]string, bool) {
	val, err := c.redis.Get(ctx, key)
	if err != nil {
		metrics.CacheEventsTotal.WithLabelValues(tierSearch, "miss").Inc()
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		c.logger.Warn("corrupt search cache entry, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		metrics.CacheEventsTotal.WithLabelValues(tierSearch, "miss").Inc()
		return nil, false
	}

	metrics.CacheEventsTotal.WithLabelValues(tierSearch, "hit").Inc()
	return ids, true
}

// PutSearch stores a candidate identifier list. Cache write failures are
// logged and swallowed; the cache is an optimization, never a correctness
// dependency.
func (c *TwoTier) PutSearch(ctx context.Context, key string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.searchTTL); err != nil {
		c.logger.Warn("search cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// candidateEntry is the profile-tier payload: the evidence bundle plus the
// raw profile it was built from, so a warm candidate needs no upstream calls
// at all on a later run.
type candidateEntry struct {
	Bundle  *models.EvidenceBundle `json:"bundle"`
	Profile *models.RawProfile     `json:"profile,omitempty"`
}

// GetCandidate returns the cached evidence bundle and raw profile for a
// candidate.
func (c *TwoTier) GetCandidate(ctx context.Context, candidateID string) (*models.EvidenceBundle, *models.RawProfile, bool) {
	val, err := c.redis.Get(ctx, profileKeyPrefix+candidateID)
	if err != nil {
		metrics.CacheEventsTotal.WithLabelValues(tierProfile, "miss").Inc()
		return nil, nil, false
	}

	var entry candidateEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil || entry.Bundle == nil {
		c.logger.Warn("corrupt profile cache entry, treating as miss", map[string]interface{}{
			"candidateId": candidateID,
		})
		metrics.CacheEventsTotal.WithLabelValues(tierProfile, "miss").Inc()
		return nil, nil, false
	}

	metrics.CacheEventsTotal.WithLabelValues(tierProfile, "hit").Inc()
	return entry.Bundle, entry.Profile, true
}

// PutCandidate stores a candidate's bundle and profile under the profile-tier
// TTL.
func (c *TwoTier) PutCandidate(ctx context.Context, candidateID string, bundle *models.EvidenceBundle, profile *models.RawProfile) {
	data, err := json.Marshal(candidateEntry{Bundle: bundle, Profile: profile})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, profileKeyPrefix+candidateID, data, c.profileTTL); err != nil {
		c.logger.Warn("profile cache write failed", map[string]interface{}{
			"candidateId": candidateID,
			"error":       err.Error(),
		})
	}
}
