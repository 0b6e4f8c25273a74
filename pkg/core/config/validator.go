package config

import (
	"fmt"
)

// ValidateStructure performs basic structural validation on the configuration.
// Validates required fields, value ranges, and non-empty slices.
// Does NOT validate that the declared queries/types exist in the base
// schema; that happens when the extensions are applied at boot.
func ValidateStructure(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := validateEventsConfig(&cfg.Events); err != nil {
		return fmt.Errorf("events: %w", err)
	}

	if err := validateAuthorizationConfig(&cfg.Authorization); err != nil {
		return fmt.Errorf("authorization: %w", err)
	}

	if err := validateWatchConfig(&cfg.Watch); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	if err := validateWatchedResources(cfg.WatchedResources); err != nil {
		return fmt.Errorf("watched_resources: %w", err)
	}

	if err := validateWrappers(cfg.Wrappers); err != nil {
		return fmt.Errorf("wrappers: %w", err)
	}

	return nil
}

func validateServerConfig(s *ServerConfig) error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MetricsPort < 0 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", s.MetricsPort)
	}
	if s.MetricsPort != 0 && s.MetricsPort == s.Port {
		return fmt.Errorf("metrics_port must differ from port")
	}
	return nil
}

func validateEventsConfig(e *EventsConfig) error {
	if e.MaxSubscribersPerLabel < 1 {
		return fmt.Errorf("max_subscribers_per_label must be positive, got %d", e.MaxSubscribersPerLabel)
	}
	if e.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be positive, got %d", e.SubscriberBuffer)
	}
	return nil
}

func validateAuthorizationConfig(a *AuthorizationConfig) error {
	if a.CacheTTLSeconds < 1 {
		return fmt.Errorf("cache_ttl_seconds must be positive, got %d", a.CacheTTLSeconds)
	}
	if a.SweepIntervalSeconds < 1 {
		return fmt.Errorf("sweep_interval_seconds must be positive, got %d", a.SweepIntervalSeconds)
	}
	return nil
}

func validateWatchConfig(w *WatchConfig) error {
	if w.InitialRetrySeconds < 1 {
		return fmt.Errorf("initial_retry_seconds must be positive, got %d", w.InitialRetrySeconds)
	}
	if w.MaxRetrySeconds < w.InitialRetrySeconds {
		return fmt.Errorf("max_retry_seconds (%d) must not be below initial_retry_seconds (%d)",
			w.MaxRetrySeconds, w.InitialRetrySeconds)
	}
	return nil
}

func validateWatchedResources(resources map[string]WatchedResource) error {
	if len(resources) == 0 {
		return fmt.Errorf("at least one watched resource is required")
	}

	for label, wr := range resources {
		if label == "" {
			return fmt.Errorf("resource label cannot be empty")
		}
		if wr.Version == "" {
			return fmt.Errorf("resource %q: version is required", label)
		}
		if wr.Resource == "" {
			return fmt.Errorf("resource %q: resource (plural name) is required", label)
		}
		if wr.Kind == "" {
			return fmt.Errorf("resource %q: kind is required", label)
		}
	}

	return nil
}

func validateWrappers(wrappers []Wrapper) error {
	for i, w := range wrappers {
		if w.TargetQuery == "" {
			return fmt.Errorf("wrapper %d: target_query is required", i)
		}
		if w.ExtendedType == "" {
			return fmt.Errorf("wrapper %d: extended_type is required", i)
		}
		if w.FieldName == "" {
			return fmt.Errorf("wrapper %d: field_name is required", i)
		}
		if len(w.RequiredArgs) == 0 {
			return fmt.Errorf("wrapper %d: required_args cannot be empty", i)
		}
		for _, arg := range w.RequiredArgs {
			if arg == "" {
				return fmt.Errorf("wrapper %d: required_args entries cannot be empty", i)
			}
		}
	}
	return nil
}
