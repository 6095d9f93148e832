// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct. Loaded once at
// startup, validated, never hot-edited mid-run.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Platform PlatformConfig `mapstructure:"platform"`
	Database DatabaseConfig `mapstructure:"database"`
	Sourcing SourcingConfig `mapstructure:"sourcing"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// PlatformConfig holds settings for the upstream developer-hosting platform.
type PlatformConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	GraphQLURL      string `mapstructure:"graphql_url"`
	Token           string `mapstructure:"token"`
	Timeout         int    `mapstructure:"timeout"`           // milliseconds
	SearchPageLimit int    `mapstructure:"search_page_limit"` // max search pages per query
	ReposPerUser    int    `mapstructure:"repos_per_user"`    // repos inspected per candidate
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// --- Sourcing Engine Config ---

// SourcingConfig holds every tunable of the discovery pipeline.
type SourcingConfig struct {
	SignalWeights          map[string]float64  `mapstructure:"signal_weights"`
	QualificationThreshold float64             `mapstructure:"qualification_threshold"`
	SkillThresholds        map[string]float64  `mapstructure:"skill_thresholds"`
	SkillAliases           map[string][]string `mapstructure:"skill_aliases"`
	Location               LocationConfig      `mapstructure:"location"`
	Retry                  RetryConfig         `mapstructure:"retry"`
	Batch                  BatchConfig         `mapstructure:"batch"`
	Cache                  CacheConfig         `mapstructure:"cache"`
	Concurrency            int                 `mapstructure:"concurrency"`
	BudgetMS               int                 `mapstructure:"budget_ms"`
	SuccessRateFloor       float64             `mapstructure:"success_rate_floor"`
}

// Budget returns the wall-clock budget for one discovery run.
func (s SourcingConfig) Budget() time.Duration {
	return time.Duration(s.BudgetMS) * time.Millisecond
}

// LocationConfig holds the location resolver settings.
type LocationConfig struct {
	// Priorities maps a hierarchy level (city/state/country) to its score.
	Priorities    map[string]float64 `mapstructure:"priorities"`
	GazetteerPath string             `mapstructure:"gazetteer_path"`
	// CrossStateCityPolicy decides how a same-named city in a different
	// state is treated: "include_country" or "exclude".
	CrossStateCityPolicy string `mapstructure:"cross_state_city_policy"`
}

// RetryConfig holds the rate-limit governor settings.
type RetryConfig struct {
	MaxAttempts        int     `mapstructure:"max_attempts"`
	BackoffBaseSeconds float64 `mapstructure:"backoff_base_seconds"`
	LowWaterMark       int     `mapstructure:"low_water_mark"`
}

type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// CacheConfig holds the independent TTLs of the two cache tiers.
type CacheConfig struct {
	SearchTTLMinutes  int `mapstructure:"search_ttl_minutes"`
	ProfileTTLMinutes int `mapstructure:"profile_ttl_minutes"`
}

// SearchTTL returns the search-result tier TTL.
func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLMinutes) * time.Minute
}

// ProfileTTL returns the profile tier TTL.
func (c CacheConfig) ProfileTTL() time.Duration {
	return time.Duration(c.ProfileTTLMinutes) * time.Minute
}

// CrossStateCityPolicy values.
const (
	CrossStateCityIncludeCountry = "include_country"
	CrossStateCityExclude        = "exclude"
)
