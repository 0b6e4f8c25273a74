package config

// Default values for configuration fields.
const (
	// DefaultPort is the default port for the GraphQL endpoint.
	DefaultPort = 8080

	// DefaultMetricsPort is the default port for Prometheus metrics.
	DefaultMetricsPort = 9090

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "INFO"

	// DefaultMaxSubscribersPerLabel caps event bus registrations per label.
	DefaultMaxSubscribersPerLabel = 100

	// DefaultSubscriberBuffer is the per-subscription channel buffer size.
	DefaultSubscriberBuffer = 16

	// DefaultCacheTTLSeconds is how long a positive permission grant is
	// trusted before revalidation (10 minutes).
	DefaultCacheTTLSeconds = 600

	// DefaultSweepIntervalSeconds is the cache sweep interval (2.2x the TTL).
	DefaultSweepIntervalSeconds = 1320

	// DefaultInitialRetrySeconds is the delay before the first watch restart.
	DefaultInitialRetrySeconds = 5

	// DefaultMaxRetrySeconds is the watch restart backoff ceiling (2 minutes).
	DefaultMaxRetrySeconds = 120
)

// setDefaults applies default values to unset configuration fields.
// This modifies the config in-place and should be called after parsing
// the configuration and before validation.
func setDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = DefaultMetricsPort
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}

	// Event bus defaults
	if cfg.Events.MaxSubscribersPerLabel == 0 {
		cfg.Events.MaxSubscribersPerLabel = DefaultMaxSubscribersPerLabel
	}
	if cfg.Events.SubscriberBuffer == 0 {
		cfg.Events.SubscriberBuffer = DefaultSubscriberBuffer
	}

	// Authorization defaults
	if cfg.Authorization.CacheTTLSeconds == 0 {
		cfg.Authorization.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if cfg.Authorization.SweepIntervalSeconds == 0 {
		cfg.Authorization.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}

	// Watch restart defaults
	if cfg.Watch.InitialRetrySeconds == 0 {
		cfg.Watch.InitialRetrySeconds = DefaultInitialRetrySeconds
	}
	if cfg.Watch.MaxRetrySeconds == 0 {
		cfg.Watch.MaxRetrySeconds = DefaultMaxRetrySeconds
	}
}
