package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg, err := LoadConfig(sampleConfig)
	require.NoError(t, err)
	return cfg
}

func TestValidateStructure(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateStructure(validConfig(t)))
}

func TestValidateStructureNilConfig(t *testing.T) {
	t.Parallel()

	assert.Error(t, ValidateStructure(nil))
}

func TestValidateStructureErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "server",
		},
		{
			name:    "metrics port collides",
			mutate:  func(c *Config) { c.Server.MetricsPort = c.Server.Port },
			wantErr: "metrics_port",
		},
		{
			name:    "zero subscriber cap",
			mutate:  func(c *Config) { c.Events.MaxSubscribersPerLabel = 0 },
			wantErr: "max_subscribers_per_label",
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *Config) { c.Authorization.CacheTTLSeconds = 0 },
			wantErr: "cache_ttl_seconds",
		},
		{
			name:    "retry ceiling below initial",
			mutate:  func(c *Config) { c.Watch.MaxRetrySeconds = 1 },
			wantErr: "max_retry_seconds",
		},
		{
			name:    "no watched resources",
			mutate:  func(c *Config) { c.WatchedResources = nil },
			wantErr: "watched_resources",
		},
		{
			name: "resource missing kind",
			mutate: func(c *Config) {
				c.WatchedResources["broken"] = WatchedResource{Version: "v1", Resource: "things"}
			},
			wantErr: "kind is required",
		},
		{
			name: "wrapper missing args",
			mutate: func(c *Config) {
				c.Wrappers = append(c.Wrappers, Wrapper{
					TargetQuery:  "q",
					ExtendedType: "T",
					FieldName:    "w",
				})
			},
			wantErr: "required_args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(t)
			tt.mutate(cfg)

			err := ValidateStructure(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
