package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig                 `mapstructure:"app"`
	Server        ServerConfig              `mapstructure:"server"`
	Database      DatabaseConfig            `mapstructure:"database"`
	Tiers         map[string]TierConfig     `mapstructure:"tiers"`
	Strategy      StrategyConfig            `mapstructure:"strategy"`
	Breakers      map[string]BreakerConfig  `mapstructure:"breakers"`
	Retry         RetryConfig               `mapstructure:"retry"`
	Cache         CacheConfig               `mapstructure:"cache"`
	Quality       QualityConfig             `mapstructure:"quality"`
	Monitor       MonitorConfig             `mapstructure:"monitor"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"`
	Notifications NotificationConfig        `mapstructure:"notifications"`
	Telemetry     TelemetryConfig           `mapstructure:"telemetry"`
	Logging       LoggingConfig             `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"` // milliseconds
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type DatabaseConfig struct {
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// --- Strategy Tiers ---

// TierConfig holds the per-tier settings shared by the strategy selector,
// the cache, and the quality pipeline.
type TierConfig struct {
	VisionTimeout       int     `mapstructure:"vision_timeout"`     // milliseconds
	GenerationTimeout   int     `mapstructure:"generation_timeout"` // milliseconds
	TotalTimeout        int     `mapstructure:"total_timeout"`      // milliseconds
	Priority            int     `mapstructure:"priority"`
	CacheFirst          bool    `mapstructure:"cache_first"`
	ParallelAllowed     bool    `mapstructure:"parallel_allowed"`
	QualityThreshold    float64 `mapstructure:"quality_threshold"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	CacheTTL            int     `mapstructure:"cache_ttl"` // seconds
	MaxCacheEntries     int     `mapstructure:"max_cache_entries"`
}

// StrategyConfig holds the load-signal thresholds the selector combines
// into a single system-load scalar.
type StrategyConfig struct {
	MaxActiveRequests  int     `mapstructure:"max_active_requests"`
	LatencyThresholdMs float64 `mapstructure:"latency_threshold_ms"`
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"`
}

// --- Circuit Breakers ---

// BreakerConfig configures one circuit breaker instance.
type BreakerConfig struct {
	Timeout           int     `mapstructure:"timeout"`             // milliseconds, per call
	ErrorThresholdPct float64 `mapstructure:"error_threshold_pct"` // 0-100
	ResetTimeout      int     `mapstructure:"reset_timeout"`       // milliseconds
	WindowSize        int     `mapstructure:"window_size"`         // rolling window, calls
	VolumeThreshold   int     `mapstructure:"volume_threshold"`    // min calls before opening
}

// RetryConfig configures the exponential backoff wrapper around upstream calls.
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelay   int     `mapstructure:"base_delay"` // milliseconds
	MaxDelay    int     `mapstructure:"max_delay"`  // milliseconds
	JitterPct   float64 `mapstructure:"jitter_pct"` // 0-1
}

// --- Cache ---

type CacheConfig struct {
	MinTTL                 int `mapstructure:"min_ttl"`     // seconds, dynamic TTL floor
	MaxTTL                 int `mapstructure:"max_ttl"`     // seconds, dynamic TTL ceiling
	PatternTTL             int `mapstructure:"pattern_ttl"` // seconds, preemptive table
	PatternMinObservations int `mapstructure:"pattern_min_observations"`
	PatternBucketHours     int `mapstructure:"pattern_bucket_hours"`
	PatternIdleHours       int `mapstructure:"pattern_idle_hours"`
	SemanticCandidates     int `mapstructure:"semantic_candidates"` // bounded candidate set per tier
	MaintenanceInterval    int `mapstructure:"maintenance_interval"` // seconds
}

// --- Quality Pipeline ---

type QualityConfig struct {
	MinSuggestions     int     `mapstructure:"min_suggestions"`
	MaxSuggestions     int     `mapstructure:"max_suggestions"`
	MinTextLength      int     `mapstructure:"min_text_length"`
	MaxTextLength      int     `mapstructure:"max_text_length"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"` // jaccard word overlap
	RecentWindowSize   int     `mapstructure:"recent_window_size"`  // recently served texts
	MinConfidence      float64 `mapstructure:"min_confidence"`
}

// --- Performance Monitor ---

type MonitorConfig struct {
	LatencyBufferSize    int                            `mapstructure:"latency_buffer_size"`
	QualityBufferSize    int                            `mapstructure:"quality_buffer_size"`
	QualityPassThreshold float64                        `mapstructure:"quality_pass_threshold"`
	EMAAlpha             float64                        `mapstructure:"ema_alpha"`
	AutoRemediation      bool                           `mapstructure:"auto_remediation"`
	RemediationCooldown  int                            `mapstructure:"remediation_cooldown"` // seconds
	AlertMaxAgeHours     int                            `mapstructure:"alert_max_age_hours"`
	SummaryInterval      int                            `mapstructure:"summary_interval"`   // seconds
	ThroughputWindow     int                            `mapstructure:"throughput_window"`  // seconds
	Thresholds           map[string]LatencyThresholds   `mapstructure:"thresholds"`
}

// LatencyThresholds holds the per-tier latency gates, in milliseconds.
type LatencyThresholds struct {
	Target   float64 `mapstructure:"target"`
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// --- Upstream Providers ---

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// --- Notifications ---

// NotificationConfig holds settings for the critical-alert notifier.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled     bool   `mapstructure:"enabled"`
		PhoneNumber string `mapstructure:"phone_number"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// --- Telemetry ---

type TelemetryConfig struct {
	Elasticsearch struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetSeconds converts seconds from config to time.Duration.
func GetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
