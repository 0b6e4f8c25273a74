package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 8080
allowed_api_groups:
  - crownlabs.polito.it
  - ""
watched_resources:
  itPolitoCrownlabsV1alpha2Instance:
    group: crownlabs.polito.it
    version: v1alpha2
    resource: instances
    kind: Instance
  itPolitoCrownlabsV1alpha2Template:
    group: crownlabs.polito.it
    version: v1alpha2
    resource: templates
    kind: Template
wrappers:
  - target_query: itPolitoCrownlabsV1alpha2Template
    extended_type: Instance
    field_name: templateCrownlabsPolitoItTemplateRef
    required_args: [name, namespace]
registry:
  url: https://registry.internal:5000
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Len(t, cfg.WatchedResources, 2)

	instance, ok := cfg.WatchedResources["itPolitoCrownlabsV1alpha2Instance"]
	require.True(t, ok)
	assert.Equal(t, "crownlabs.polito.it", instance.Group)
	assert.Equal(t, "v1alpha2", instance.Version)
	assert.Equal(t, "instances", instance.Resource)
	assert.Equal(t, "Instance", instance.Kind)

	require.Len(t, cfg.Wrappers, 1)
	assert.Equal(t, []string{"name", "namespace"}, cfg.Wrappers[0].RequiredArgs)

	assert.Equal(t, []string{"crownlabs.polito.it", ""}, cfg.AllowedAPIGroups)
	assert.Equal(t, "https://registry.internal:5000", cfg.Registry.URL)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, DefaultMetricsPort, cfg.Server.MetricsPort)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultMaxSubscribersPerLabel, cfg.Events.MaxSubscribersPerLabel)
	assert.Equal(t, DefaultSubscriberBuffer, cfg.Events.SubscriberBuffer)
	assert.Equal(t, 10*time.Minute, cfg.Authorization.GetCacheTTL())
	assert.Equal(t, 22*time.Minute, cfg.Authorization.GetSweepInterval())
	assert.Equal(t, 5*time.Second, cfg.Watch.GetInitialRetry())
	assert.Equal(t, 2*time.Minute, cfg.Watch.GetMaxRetry())
}

func TestLoadConfigEmpty(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("server: [not a mapping")
	assert.Error(t, err)
}
