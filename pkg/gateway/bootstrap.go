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

// Package gateway assembles the served schema and runs the HTTP and
// websocket endpoints.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"qlkube/pkg/graph/convert"
	"qlkube/pkg/graph/schema"
)

// BootstrapConfig describes everything that goes into the served schema.
// The schema is assembled once at startup and immutable afterwards.
type BootstrapConfig struct {
	// Converter contributes the base resource types and queries.
	Converter convert.Converter
	// Wrappers are applied in declared order after the base schema exists.
	Wrappers []schema.WrapperSpec
	// Subscriptions adds one "<label>Update" field per entry.
	Subscriptions []schema.SubscriptionSpec
	// SubscriptionDeps wires the bus and permission checker into the
	// subscription resolvers.
	SubscriptionDeps schema.SubscriptionDeps
	// Auxiliary contributions are optional extras (image registry); a
	// failure is logged and tolerated, never fatal.
	Auxiliary []convert.Converter

	Logger *slog.Logger
}

// BuildSchema composes the gateway schema: base conversion, wrappers,
// subscriptions, auxiliary extras, then compilation. Every core step
// failing is fatal; only auxiliary contributions are tolerated.
func BuildSchema(cfg BootstrapConfig) (graphql.Schema, error) {
	if cfg.Converter == nil {
		return graphql.Schema{}, fmt.Errorf("converter is required")
	}
	if cfg.Logger == nil {
		return graphql.Schema{}, fmt.Errorf("logger is required")
	}

	b := schema.NewBuilder()

	if err := cfg.Converter.Contribute(b); err != nil {
		return graphql.Schema{}, fmt.Errorf("base schema conversion failed: %w", err)
	}

	for _, wrapper := range cfg.Wrappers {
		if err := schema.ExtendWithWrapper(b, wrapper); err != nil {
			return graphql.Schema{}, fmt.Errorf("wrapper extension failed: %w", err)
		}
		cfg.Logger.Info("Applied schema wrapper",
			"field", wrapper.FieldName, "target_query", wrapper.TargetQuery, "extended_type", wrapper.ExtendedType)
	}

	if len(cfg.Subscriptions) > 0 {
		if err := schema.AddUpdateTypeEnum(b); err != nil {
			return graphql.Schema{}, fmt.Errorf("subscription extension failed: %w", err)
		}
		for _, sub := range cfg.Subscriptions {
			if err := schema.ExtendWithSubscription(b, cfg.SubscriptionDeps, sub); err != nil {
				return graphql.Schema{}, fmt.Errorf("subscription extension failed: %w", err)
			}
			cfg.Logger.Info("Added subscription field", "label", sub.Label, "resource", sub.Resource)
		}
	}

	for _, aux := range cfg.Auxiliary {
		if err := aux.Contribute(b); err != nil {
			cfg.Logger.Warn("Skipping auxiliary schema contribution", "error", err)
		}
	}

	compiled, err := b.Build()
	if err != nil {
		return graphql.Schema{}, err
	}
	return compiled, nil
}
