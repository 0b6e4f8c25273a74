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

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"

	"qlkube/pkg/authz"
	"qlkube/pkg/core/config"
	"qlkube/pkg/events"
	"qlkube/pkg/graph/convert"
	"qlkube/pkg/graph/registry"
	"qlkube/pkg/graph/schema"
	"qlkube/pkg/k8s/client"
	"qlkube/pkg/k8s/watcher"
	"qlkube/pkg/metrics"
)

// Run wires the whole gateway together and blocks until ctx is
// cancelled or a component fails: OpenAPI fetch and pruning, schema
// assembly, permission checking, resource watchers, and the HTTP and
// metrics servers.
func Run(ctx context.Context, k8sClient *client.Client, cfg *config.Config, logger *slog.Logger) error {
	if k8sClient == nil {
		return fmt.Errorf("kubernetes client is required")
	}
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return fmt.Errorf("logger is required")
	}

	promRegistry := prometheus.NewRegistry()
	gatewayMetrics := metrics.NewGateway(promRegistry)

	bus := events.NewBus(cfg.Events.MaxSubscribersPerLabel)
	defer bus.Close()

	checker, err := authz.NewChecker(k8sClient, authz.NewTTLCache(), cfg.Authorization.GetCacheTTL(), logger)
	if err != nil {
		return fmt.Errorf("failed to create permission checker: %w", err)
	}
	checker.SetResultObserver(func(result string) {
		gatewayMetrics.PermissionChecks.WithLabelValues(result).Inc()
	})

	compiled, err := assembleSchema(ctx, k8sClient, cfg, bus, checker, gatewayMetrics, logger)
	if err != nil {
		return err
	}

	server, err := NewServer(ServerConfig{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Schema:  compiled,
		Logger:  logger,
		Metrics: gatewayMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(groupCtx)
	})

	if cfg.Server.MetricsPort > 0 {
		metricsServer := metrics.NewServer(fmt.Sprintf(":%d", cfg.Server.MetricsPort), promRegistry)
		group.Go(func() error {
			return metricsServer.Start(groupCtx)
		})
	}

	group.Go(func() error {
		checker.RunSweeper(groupCtx, cfg.Authorization.GetSweepInterval())
		return nil
	})

	for label, res := range cfg.WatchedResources {
		w, err := watcher.New(watcher.Config{
			Label: label,
			GVR: k8sschema.GroupVersionResource{
				Group:    res.Group,
				Version:  res.Version,
				Resource: res.Resource,
			},
			InitialRetryDelay: cfg.Watch.GetInitialRetry(),
			MaxRetryDelay:     cfg.Watch.GetMaxRetry(),
			OnRestart: func() {
				gatewayMetrics.WatchRestarts.WithLabelValues(label).Inc()
			},
			OnPublish: func(int) {
				gatewayMetrics.EventsPublished.WithLabelValues(label).Inc()
			},
		}, k8sClient.DynamicClient(), bus, logger)
		if err != nil {
			return fmt.Errorf("failed to create watcher for %q: %w", label, err)
		}
		group.Go(func() error {
			return w.Start(groupCtx)
		})
	}

	logger.Info("Gateway running",
		"addr", server.Addr(),
		"watched_resources", len(cfg.WatchedResources),
		"wrappers", len(cfg.Wrappers))

	return group.Wait()
}

// assembleSchema performs the boot-time schema pipeline: OpenAPI fetch,
// pruning, conversion, wrappers, subscriptions and the auxiliary
// registry contribution.
func assembleSchema(ctx context.Context, k8sClient *client.Client, cfg *config.Config, bus *events.Bus, checker *authz.Checker, gatewayMetrics *metrics.Gateway, logger *slog.Logger) (compiled graphql.Schema, err error) {
	httpClient, err := k8sClient.HTTPClient()
	if err != nil {
		return compiled, fmt.Errorf("failed to build API server HTTP client: %w", err)
	}

	// Out-of-cluster configs may authenticate with client certificates;
	// the missing token then simply stays off the request.
	token, err := k8sClient.BearerToken()
	if err != nil {
		logger.Warn("No bearer token available for OpenAPI fetch", "error", err)
		token = ""
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	doc, err := convert.FetchOpenAPI(fetchCtx, httpClient, k8sClient.APIServerURL(), token)
	if err != nil {
		return compiled, fmt.Errorf("failed to fetch cluster OpenAPI document: %w", err)
	}

	stats := convert.Prune(doc, cfg.AllowedAPIGroups)
	logger.Info("Pruned OpenAPI document",
		"allowed_groups", cfg.AllowedAPIGroups,
		"paths_kept", stats.PathsKept,
		"paths_dropped", stats.PathsDropped,
		"definitions_kept", stats.DefinitionsKept,
		"definitions_dropped", stats.DefinitionsDropped)

	resources := make([]convert.Resource, 0, len(cfg.WatchedResources))
	subscriptions := make([]schema.SubscriptionSpec, 0, len(cfg.WatchedResources))
	for label, res := range cfg.WatchedResources {
		resources = append(resources, convert.Resource{
			Label: label,
			GVR: k8sschema.GroupVersionResource{
				Group:    res.Group,
				Version:  res.Version,
				Resource: res.Resource,
			},
			Kind: res.Kind,
		})
		subscriptions = append(subscriptions, schema.SubscriptionSpec{
			Label:    label,
			Group:    res.Group,
			Resource: res.Resource,
		})
	}
	sort.Slice(subscriptions, func(i, j int) bool { return subscriptions[i].Label < subscriptions[j].Label })

	converter, err := convert.NewResourceConverter(k8sClient, doc, resources, logger)
	if err != nil {
		return compiled, fmt.Errorf("failed to create resource converter: %w", err)
	}

	wrappers := make([]schema.WrapperSpec, 0, len(cfg.Wrappers))
	for _, w := range cfg.Wrappers {
		wrappers = append(wrappers, schema.WrapperSpec{
			TargetQuery:  w.TargetQuery,
			ExtendedType: w.ExtendedType,
			FieldName:    w.FieldName,
			RequiredArgs: w.RequiredArgs,
		})
	}

	var auxiliary []convert.Converter
	if cfg.Registry.URL != "" {
		imageRegistry, err := registry.New(cfg.Registry.URL, http.DefaultClient, logger)
		if err != nil {
			logger.Warn("Skipping image registry schema", "error", err)
		} else {
			pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
			if err := imageRegistry.Ping(pingCtx); err != nil {
				logger.Warn("Image registry unreachable at startup", "url", cfg.Registry.URL, "error", err)
			}
			cancelPing()
			auxiliary = append(auxiliary, imageRegistry)
		}
	}

	return BuildSchema(BootstrapConfig{
		Converter:     converter,
		Wrappers:      wrappers,
		Subscriptions: subscriptions,
		SubscriptionDeps: schema.SubscriptionDeps{
			Bus:        bus,
			Checker:    checker,
			Logger:     logger,
			BufferSize: cfg.Events.SubscriberBuffer,
			OnDelivered: func(label string) {
				gatewayMetrics.EventsDelivered.WithLabelValues(label).Inc()
			},
			OnActive: func(label string, delta int) {
				gatewayMetrics.SubscriptionsActive.WithLabelValues(label).Add(float64(delta))
			},
		},
		Auxiliary: auxiliary,
		Logger:    logger,
	})
}
