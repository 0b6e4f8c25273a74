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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway bundles every collector the gateway emits. All collectors
// register on the registry passed to NewGateway; never use the global
// default registerer, or collectors leak across restarts in tests.
type Gateway struct {
	// EventsPublished counts watch events published on the bus, per label.
	EventsPublished *prometheus.CounterVec
	// EventsDelivered counts updates handed to subscription clients, per label.
	EventsDelivered *prometheus.CounterVec
	// SubscriptionsActive tracks currently running subscriptions, per label.
	SubscriptionsActive *prometheus.GaugeVec
	// PermissionChecks counts access checks, partitioned by result
	// (hit, granted, denied, error).
	PermissionChecks *prometheus.CounterVec
	// WatchRestarts counts watch stream restarts, per label.
	WatchRestarts *prometheus.CounterVec
	// RequestDuration observes GraphQL HTTP request latency, per endpoint.
	RequestDuration *prometheus.HistogramVec
}

// NewGateway creates and registers all gateway collectors.
func NewGateway(registry prometheus.Registerer) *Gateway {
	factory := promauto.With(registry)
	return &Gateway{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlkube_events_published_total",
			Help: "Watch events published on the internal bus.",
		}, []string{"label"}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlkube_events_delivered_total",
			Help: "Update events delivered to subscription clients.",
		}, []string{"label"}),
		SubscriptionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qlkube_subscriptions_active",
			Help: "Currently active GraphQL subscriptions.",
		}, []string{"label"}),
		PermissionChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlkube_permission_checks_total",
			Help: "Permission checks by result.",
		}, []string{"result"}),
		WatchRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qlkube_watch_restarts_total",
			Help: "Watch stream restarts after failure.",
		}, []string{"label"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qlkube_request_duration_seconds",
			Help:    "GraphQL HTTP request duration.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"endpoint"}),
	}
}
