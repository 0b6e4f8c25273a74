// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides data models for the gateway configuration.
//
// These models represent the structure of the configuration YAML that
// declares the served schema: which cluster resources are watched and
// exposed as subscriptions, which wrapper fields are grafted onto base
// types, and which API groups survive OpenAPI pruning.
package config

import "time"

// Config is the root configuration structure loaded from the config file.
type Config struct {
	// Server contains HTTP/WebSocket server settings.
	Server ServerConfig `yaml:"server"`

	// Logging configures logging behavior.
	Logging LoggingConfig `yaml:"logging"`

	// AllowedAPIGroups lists the Kubernetes API groups kept when pruning
	// the cluster OpenAPI document. The core group is spelled "".
	//
	// Example: ["crownlabs.polito.it", ""]
	AllowedAPIGroups []string `yaml:"allowed_api_groups"`

	// Events configures the in-process event bus.
	Events EventsConfig `yaml:"events"`

	// Authorization configures the permission cache and checker.
	Authorization AuthorizationConfig `yaml:"authorization"`

	// Watch configures watch-stream restart behavior.
	Watch WatchConfig `yaml:"watch"`

	// WatchedResources maps subscription labels to their watch configuration.
	//
	// Example:
	//   instance:
	//     group: crownlabs.polito.it
	//     version: v1alpha2
	//     resource: instances
	//     kind: Instance
	WatchedResources map[string]WatchedResource `yaml:"watched_resources"`

	// Wrappers lists schema wrapper extensions, applied in order.
	Wrappers []Wrapper `yaml:"wrappers"`

	// Registry configures the optional auxiliary image-registry schema.
	Registry RegistryConfig `yaml:"registry"`
}

// ServerConfig contains gateway server settings.
type ServerConfig struct {
	// Port is the TCP port serving GraphQL queries and subscriptions.
	Port int `yaml:"port"`

	// MetricsPort is the TCP port for the Prometheus metrics endpoint.
	// 0 disables the metrics server.
	MetricsPort int `yaml:"metrics_port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of ERROR, WARNING, INFO, DEBUG.
	Level string `yaml:"level"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	// MaxSubscribersPerLabel caps listener registrations per label.
	// Exceeding the cap is a subscribe error, never a silent drop.
	MaxSubscribersPerLabel int `yaml:"max_subscribers_per_label"`

	// SubscriberBuffer is the per-subscription channel buffer size.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// AuthorizationConfig configures the permission cache.
type AuthorizationConfig struct {
	// CacheTTLSeconds is how long a positive watch-permission grant
	// is trusted before revalidation.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// SweepIntervalSeconds is how often expired grants are evicted
	// independent of lookup traffic.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// GetCacheTTL returns the grant TTL as a duration.
func (a *AuthorizationConfig) GetCacheTTL() time.Duration {
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// GetSweepInterval returns the sweep interval as a duration.
func (a *AuthorizationConfig) GetSweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSeconds) * time.Second
}

// WatchConfig configures watch-stream restart behavior.
type WatchConfig struct {
	// InitialRetrySeconds is the delay before the first restart attempt.
	InitialRetrySeconds int `yaml:"initial_retry_seconds"`

	// MaxRetrySeconds is the backoff ceiling. Retries never stop;
	// the delay merely stops growing here.
	MaxRetrySeconds int `yaml:"max_retry_seconds"`
}

// GetInitialRetry returns the initial restart delay as a duration.
func (w *WatchConfig) GetInitialRetry() time.Duration {
	return time.Duration(w.InitialRetrySeconds) * time.Second
}

// GetMaxRetry returns the backoff ceiling as a duration.
func (w *WatchConfig) GetMaxRetry() time.Duration {
	return time.Duration(w.MaxRetrySeconds) * time.Second
}

// WatchedResource identifies one cluster resource type exposed over
// the gateway. The map key it is registered under is the subscription
// label and must match the base schema's query field name.
type WatchedResource struct {
	// Group is the API group ("" for the core group).
	Group string `yaml:"group"`

	// Version is the API version, e.g. "v1alpha2".
	Version string `yaml:"version"`

	// Resource is the plural resource name, e.g. "instances".
	Resource string `yaml:"resource"`

	// Kind is the object kind, e.g. "Instance".
	Kind string `yaml:"kind"`
}

// Wrapper declares one schema wrapper extension: a field on ExtendedType
// that exposes the full query surface of TargetQuery.
type Wrapper struct {
	// TargetQuery is the root query field re-exposed through the wrapper.
	TargetQuery string `yaml:"target_query"`

	// ExtendedType is the object type receiving the wrapper field.
	ExtendedType string `yaml:"extended_type"`

	// FieldName is the wrapper field name on ExtendedType.
	FieldName string `yaml:"field_name"`

	// RequiredArgs are the fields extracted from the parent object and
	// handed to TargetQuery's resolver as arguments.
	RequiredArgs []string `yaml:"required_args"`
}

// RegistryConfig configures the auxiliary Docker registry schema.
type RegistryConfig struct {
	// URL is the registry base URL, e.g. "https://registry.internal:5000".
	// Empty disables the auxiliary schema.
	URL string `yaml:"url"`
}
