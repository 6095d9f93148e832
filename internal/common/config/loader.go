// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"githire/internal/common/errors"
	"githire/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like GITHIRE_PLATFORM_TOKEN
	v.SetEnvPrefix("githire")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig() // ignore error if not found
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if tok := os.Getenv("PLATFORM_TOKEN"); tok != "" && cfg.Platform.Token == "" {
		cfg.Platform.Token = tok
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sourcing-engine"
	}
	if cfg.Platform.BaseURL == "" {
		cfg.Platform.BaseURL = "https://api.github.com"
	}
	if cfg.Platform.GraphQLURL == "" {
		cfg.Platform.GraphQLURL = cfg.Platform.BaseURL + "/graphql"
	}
	if cfg.Platform.Timeout == 0 {
		cfg.Platform.Timeout = 10000
	}
	if cfg.Platform.SearchPageLimit == 0 {
		cfg.Platform.SearchPageLimit = 3
	}
	if cfg.Platform.ReposPerUser == 0 {
		cfg.Platform.ReposPerUser = 30
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Sourcing.Retry.MaxAttempts == 0 {
		cfg.Sourcing.Retry.MaxAttempts = 4
	}
	if cfg.Sourcing.Retry.BackoffBaseSeconds == 0 {
		cfg.Sourcing.Retry.BackoffBaseSeconds = 2
	}
	if cfg.Sourcing.Retry.LowWaterMark == 0 {
		cfg.Sourcing.Retry.LowWaterMark = 50
	}
	if cfg.Sourcing.Batch.ChunkSize == 0 {
		cfg.Sourcing.Batch.ChunkSize = 25
	}
	if cfg.Sourcing.Concurrency == 0 {
		cfg.Sourcing.Concurrency = 8
	}
	if cfg.Sourcing.BudgetMS == 0 {
		cfg.Sourcing.BudgetMS = 120000
	}
	if cfg.Sourcing.SuccessRateFloor == 0 {
		cfg.Sourcing.SuccessRateFloor = 0.5
	}
	if cfg.Sourcing.Cache.SearchTTLMinutes == 0 {
		cfg.Sourcing.Cache.SearchTTLMinutes = 30
	}
	if cfg.Sourcing.Cache.ProfileTTLMinutes == 0 {
		cfg.Sourcing.Cache.ProfileTTLMinutes = 360
	}
	if cfg.Sourcing.Location.CrossStateCityPolicy == "" {
		cfg.Sourcing.Location.CrossStateCityPolicy = CrossStateCityIncludeCountry
	}
	if len(cfg.Sourcing.Location.Priorities) == 0 {
		cfg.Sourcing.Location.Priorities = map[string]float64{
			"city":    1.0,
			"state":   0.7,
			"country": 0.3,
		}
	}
}

const weightSumEpsilon = 1e-9

// Validate checks every sourcing tunable and returns a fatal
// ConfigurationError on the first violation. Startup must refuse to serve
// on any failure here.
func Validate(cfg *Config) error {
	s := cfg.Sourcing

	if len(s.SignalWeights) == 0 {
		return errors.NewConfigurationError("sourcing.signal_weights must not be empty")
	}

	known := make(map[string]bool, len(models.KnownSignals))
	for _, k := range models.KnownSignals {
		known[string(k)] = true
	}

	sum := 0.0
	for name, w := range s.SignalWeights {
		if !known[name] {
			return errors.NewConfigurationError(fmt.Sprintf("unknown signal %q in sourcing.signal_weights", name))
		}
		if w < 0 || w > 1 {
			return errors.NewConfigurationError(fmt.Sprintf("signal weight %q = %v outside [0,1]", name, w))
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumEpsilon {
		return errors.NewConfigurationError(fmt.Sprintf("signal weights sum to %v, must equal 1.0", sum))
	}

	if s.QualificationThreshold < 0 || s.QualificationThreshold > 1 {
		return errors.NewConfigurationError(fmt.Sprintf("qualification_threshold %v outside [0,1]", s.QualificationThreshold))
	}
	for skill, th := range s.SkillThresholds {
		if th < 0 || th > 1 {
			return errors.NewConfigurationError(fmt.Sprintf("skill threshold for %q = %v outside [0,1]", skill, th))
		}
	}

	for _, level := range []string{"city", "state", "country"} {
		p, ok := s.Location.Priorities[level]
		if !ok {
			return errors.NewConfigurationError(fmt.Sprintf("location priority for level %q missing", level))
		}
		if p < 0 || p > 1 {
			return errors.NewConfigurationError(fmt.Sprintf("location priority for level %q = %v outside [0,1]", level, p))
		}
	}
	switch s.Location.CrossStateCityPolicy {
	case CrossStateCityIncludeCountry, CrossStateCityExclude:
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown cross_state_city_policy %q", s.Location.CrossStateCityPolicy))
	}
	if s.Location.GazetteerPath == "" {
		return errors.NewConfigurationError("sourcing.location.gazetteer_path is required")
	}

	if s.Retry.MaxAttempts < 1 {
		return errors.NewConfigurationError("retry.max_attempts must be >= 1")
	}
	if s.Retry.BackoffBaseSeconds <= 1 {
		return errors.NewConfigurationError("retry.backoff_base_seconds must be > 1")
	}
	if s.Retry.LowWaterMark < 0 {
		return errors.NewConfigurationError("retry.low_water_mark must be >= 0")
	}

	if s.Batch.ChunkSize < 1 || s.Batch.ChunkSize > 100 {
		return errors.NewConfigurationError(fmt.Sprintf("batch.chunk_size %d outside [1,100]", s.Batch.ChunkSize))
	}
	if s.Concurrency < 1 {
		return errors.NewConfigurationError("sourcing.concurrency must be >= 1")
	}
	if s.BudgetMS < 1 {
		return errors.NewConfigurationError("sourcing.budget_ms must be >= 1")
	}
	if s.SuccessRateFloor < 0 || s.SuccessRateFloor > 1 {
		return errors.NewConfigurationError(fmt.Sprintf("success_rate_floor %v outside [0,1]", s.SuccessRateFloor))
	}
	if s.Cache.SearchTTLMinutes < 1 || s.Cache.ProfileTTLMinutes < 1 {
		return errors.NewConfigurationError("cache TTLs must be >= 1 minute")
	}

	if cfg.Platform.BaseURL == "" {
		return errors.NewConfigurationError("platform.base_url is required")
	}

	return nil
}
