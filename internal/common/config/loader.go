package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Tier names recognized by the strategy selector.
const (
	TierKeyboard      = "keyboard"
	TierFast          = "fast"
	TierStandard      = "standard"
	TierComprehensive = "comprehensive"
)

// Upstream dependency names, one circuit breaker each.
const (
	DependencyVision     = "vision"
	DependencyGeneration = "generation"
	DependencyVoice      = "voice"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_REDIS_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored when absent
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
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

// findProjectRoot walks up directories looking for go.mod.
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

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the environment when the YAML
// left them empty after expansion.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}

	for name, provider := range cfg.Providers {
		if provider.APIKey == "" {
			envKey := fmt.Sprintf("%s_API_KEY", strings.ToUpper(name))
			if val := os.Getenv(envKey); val != "" {
				provider.APIKey = val
				cfg.Providers[name] = provider
			}
		}
	}

	if cfg.Database.Elasticsearch.Password == "" {
		if val := os.Getenv("ELASTICSEARCH_PASSWORD"); val != "" {
			cfg.Database.Elasticsearch.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Tiers == nil {
		cfg.Tiers = map[string]TierConfig{}
	}
	defaultTiers := map[string]TierConfig{
		TierKeyboard: {
			VisionTimeout: 800, GenerationTimeout: 1000, TotalTimeout: 1500,
			Priority: 1, CacheFirst: true, ParallelAllowed: false,
			QualityThreshold: 0.55, SimilarityThreshold: 0.82,
			CacheTTL: 1800, MaxCacheEntries: 2000,
		},
		TierFast: {
			VisionTimeout: 2000, GenerationTimeout: 2500, TotalTimeout: 4000,
			Priority: 2, CacheFirst: true, ParallelAllowed: false,
			QualityThreshold: 0.6, SimilarityThreshold: 0.8,
			CacheTTL: 1800, MaxCacheEntries: 2000,
		},
		TierStandard: {
			VisionTimeout: 4000, GenerationTimeout: 5000, TotalTimeout: 8000,
			Priority: 3, CacheFirst: true, ParallelAllowed: true,
			QualityThreshold: 0.7, SimilarityThreshold: 0.78,
			CacheTTL: 3600, MaxCacheEntries: 5000,
		},
		TierComprehensive: {
			VisionTimeout: 8000, GenerationTimeout: 10000, TotalTimeout: 15000,
			Priority: 4, CacheFirst: false, ParallelAllowed: true,
			QualityThreshold: 0.75, SimilarityThreshold: 0.75,
			CacheTTL: 7200, MaxCacheEntries: 5000,
		},
	}
	for name, def := range defaultTiers {
		tier, exists := cfg.Tiers[name]
		if !exists {
			cfg.Tiers[name] = def
			continue
		}
		if tier.VisionTimeout == 0 {
			tier.VisionTimeout = def.VisionTimeout
		}
		if tier.GenerationTimeout == 0 {
			tier.GenerationTimeout = def.GenerationTimeout
		}
		if tier.TotalTimeout == 0 {
			tier.TotalTimeout = def.TotalTimeout
		}
		if tier.Priority == 0 {
			tier.Priority = def.Priority
		}
		if tier.QualityThreshold == 0 {
			tier.QualityThreshold = def.QualityThreshold
		}
		if tier.SimilarityThreshold == 0 {
			tier.SimilarityThreshold = def.SimilarityThreshold
		}
		if tier.CacheTTL == 0 {
			tier.CacheTTL = def.CacheTTL
		}
		if tier.MaxCacheEntries == 0 {
			tier.MaxCacheEntries = def.MaxCacheEntries
		}
		cfg.Tiers[name] = tier
	}

	if cfg.Strategy.MaxActiveRequests == 0 {
		cfg.Strategy.MaxActiveRequests = 50
	}
	if cfg.Strategy.LatencyThresholdMs == 0 {
		cfg.Strategy.LatencyThresholdMs = 3000
	}
	if cfg.Strategy.ErrorRateThreshold == 0 {
		cfg.Strategy.ErrorRateThreshold = 0.1
	}

	if cfg.Breakers == nil {
		cfg.Breakers = map[string]BreakerConfig{}
	}
	for _, name := range []string{DependencyVision, DependencyGeneration, DependencyVoice} {
		breaker, exists := cfg.Breakers[name]
		if !exists {
			breaker = BreakerConfig{}
		}
		if breaker.Timeout == 0 {
			breaker.Timeout = 10000
		}
		if breaker.ErrorThresholdPct == 0 {
			breaker.ErrorThresholdPct = 50
		}
		if breaker.ResetTimeout == 0 {
			breaker.ResetTimeout = 30000
		}
		if breaker.WindowSize == 0 {
			breaker.WindowSize = 20
		}
		if breaker.VolumeThreshold == 0 {
			breaker.VolumeThreshold = 5
		}
		cfg.Breakers[name] = breaker
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 200
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 5000
	}
	if cfg.Retry.JitterPct == 0 {
		cfg.Retry.JitterPct = 0.2
	}

	if cfg.Cache.MinTTL == 0 {
		cfg.Cache.MinTTL = 300
	}
	if cfg.Cache.MaxTTL == 0 {
		cfg.Cache.MaxTTL = 86400
	}
	if cfg.Cache.PatternTTL == 0 {
		cfg.Cache.PatternTTL = 14400
	}
	if cfg.Cache.PatternMinObservations == 0 {
		cfg.Cache.PatternMinObservations = 5
	}
	if cfg.Cache.PatternBucketHours == 0 {
		cfg.Cache.PatternBucketHours = 4
	}
	if cfg.Cache.PatternIdleHours == 0 {
		cfg.Cache.PatternIdleHours = 24
	}
	if cfg.Cache.SemanticCandidates == 0 {
		cfg.Cache.SemanticCandidates = 200
	}
	if cfg.Cache.MaintenanceInterval == 0 {
		cfg.Cache.MaintenanceInterval = 300
	}

	if cfg.Quality.MinSuggestions == 0 {
		cfg.Quality.MinSuggestions = 3
	}
	if cfg.Quality.MaxSuggestions == 0 {
		cfg.Quality.MaxSuggestions = 5
	}
	if cfg.Quality.MinTextLength == 0 {
		cfg.Quality.MinTextLength = 10
	}
	if cfg.Quality.MaxTextLength == 0 {
		cfg.Quality.MaxTextLength = 280
	}
	if cfg.Quality.DuplicateThreshold == 0 {
		cfg.Quality.DuplicateThreshold = 0.8
	}
	if cfg.Quality.RecentWindowSize == 0 {
		cfg.Quality.RecentWindowSize = 50
	}
	if cfg.Quality.MinConfidence == 0 {
		cfg.Quality.MinConfidence = 0.4
	}

	if cfg.Monitor.LatencyBufferSize == 0 {
		cfg.Monitor.LatencyBufferSize = 1000
	}
	if cfg.Monitor.QualityBufferSize == 0 {
		cfg.Monitor.QualityBufferSize = 100
	}
	if cfg.Monitor.QualityPassThreshold == 0 {
		cfg.Monitor.QualityPassThreshold = 0.7
	}
	if cfg.Monitor.EMAAlpha == 0 {
		cfg.Monitor.EMAAlpha = 0.2
	}
	if cfg.Monitor.RemediationCooldown == 0 {
		cfg.Monitor.RemediationCooldown = 300
	}
	if cfg.Monitor.AlertMaxAgeHours == 0 {
		cfg.Monitor.AlertMaxAgeHours = 24
	}
	if cfg.Monitor.SummaryInterval == 0 {
		cfg.Monitor.SummaryInterval = 60
	}
	if cfg.Monitor.ThroughputWindow == 0 {
		cfg.Monitor.ThroughputWindow = 60
	}
	if cfg.Monitor.Thresholds == nil {
		cfg.Monitor.Thresholds = map[string]LatencyThresholds{}
	}
	defaultThresholds := map[string]LatencyThresholds{
		TierKeyboard:      {Target: 1000, Warning: 1500, Critical: 2500},
		TierFast:          {Target: 3000, Warning: 4500, Critical: 7000},
		TierStandard:      {Target: 6000, Warning: 9000, Critical: 14000},
		TierComprehensive: {Target: 12000, Warning: 18000, Critical: 25000},
	}
	for name, def := range defaultThresholds {
		if _, exists := cfg.Monitor.Thresholds[name]; !exists {
			cfg.Monitor.Thresholds[name] = def
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for name, provider := range cfg.Providers {
		if provider.Timeout == 0 {
			provider.Timeout = 30000
			cfg.Providers[name] = provider
		}
	}

	if cfg.Telemetry.Elasticsearch.Index == "" {
		cfg.Telemetry.Elasticsearch.Index = "orchestrator-telemetry"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	for name, tier := range cfg.Tiers {
		if tier.QualityThreshold < 0 || tier.QualityThreshold > 1 {
			return fmt.Errorf("tiers.%s.quality_threshold must be in [0,1]", name)
		}
		if tier.SimilarityThreshold < 0 || tier.SimilarityThreshold > 1 {
			return fmt.Errorf("tiers.%s.similarity_threshold must be in [0,1]", name)
		}
		if tier.TotalTimeout <= 0 {
			return fmt.Errorf("tiers.%s.total_timeout must be positive", name)
		}
	}

	for name, breaker := range cfg.Breakers {
		if breaker.ErrorThresholdPct <= 0 || breaker.ErrorThresholdPct > 100 {
			return fmt.Errorf("breakers.%s.error_threshold_pct must be in (0,100]", name)
		}
		if breaker.VolumeThreshold < 1 {
			return fmt.Errorf("breakers.%s.volume_threshold must be >= 1", name)
		}
	}

	if cfg.Cache.MinTTL > cfg.Cache.MaxTTL {
		return fmt.Errorf("cache.min_ttl must not exceed cache.max_ttl")
	}

	if cfg.Quality.MinSuggestions > cfg.Quality.MaxSuggestions {
		return fmt.Errorf("quality.min_suggestions must not exceed quality.max_suggestions")
	}

	if cfg.Telemetry.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when telemetry indexing is enabled")
	}

	return nil
}
