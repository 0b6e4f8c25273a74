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

// Package watcher maintains one long-lived list+watch per watched
// resource type and republishes cluster changes on the event bus.
//
// A broken watch stream degrades live updates for its resource type but
// never crashes the process: the watcher restarts the entire list+watch
// forever, backing off exponentially up to a ceiling.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"qlkube/pkg/events"
)

// Config identifies the resource a Watcher follows and tunes restarts.
type Config struct {
	// Label is the bus topic events are published under.
	Label string

	// GVR is the group/version/resource to watch.
	GVR schema.GroupVersionResource

	// InitialRetryDelay is the delay before the first restart attempt.
	// Defaults to 5 seconds.
	InitialRetryDelay time.Duration

	// MaxRetryDelay is the backoff ceiling. Defaults to 2 minutes.
	MaxRetryDelay time.Duration

	// OnRestart, if set, is invoked before each restart attempt.
	OnRestart func()

	// OnPublish, if set, is invoked after each bus publication with the
	// number of subscribers the event reached.
	OnPublish func(delivered int)
}

// Watcher follows one resource type across the whole cluster and
// publishes every add/update/delete as an events.ResourceEvent.
type Watcher struct {
	config Config
	client dynamic.Interface
	bus    *events.Bus
	logger *slog.Logger
}

// New creates a watcher for the configured resource type.
func New(cfg Config, client dynamic.Interface, bus *events.Bus, logger *slog.Logger) (*Watcher, error) {
	if cfg.Label == "" {
		return nil, fmt.Errorf("label is required")
	}
	if cfg.GVR.Resource == "" || cfg.GVR.Version == "" {
		return nil, fmt.Errorf("resource %q: group/version/resource is incomplete", cfg.Label)
	}
	if client == nil {
		return nil, fmt.Errorf("dynamic client is nil")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	if cfg.InitialRetryDelay <= 0 {
		cfg.InitialRetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.InitialRetryDelay {
		cfg.MaxRetryDelay = 2 * time.Minute
	}

	return &Watcher{
		config: cfg,
		client: client,
		bus:    bus,
		logger: logger.With("component", "watcher", "label", cfg.Label),
	}, nil
}

// Start runs the watch loop until ctx is cancelled. It never returns an
// error from the stream itself: stream failures are logged and retried
// with exponential backoff, indefinitely.
func (w *Watcher) Start(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.config.InitialRetryDelay
	bo.MaxInterval = w.config.MaxRetryDelay
	bo.MaxElapsedTime = 0 // retry forever

	for {
		healthy, err := w.watchOnce(ctx)
		if ctx.Err() != nil {
			w.logger.Info("watcher stopping")
			return nil
		}

		if healthy {
			// The stream was established; a later failure starts a
			// fresh backoff schedule.
			bo.Reset()
		}

		delay := bo.NextBackOff()
		w.logger.Error("watch stream failed, restarting",
			"error", err,
			"retry_in", delay)

		if w.config.OnRestart != nil {
			w.config.OnRestart()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// watchOnce performs one full list+watch cycle and consumes the stream
// until it breaks. Reports whether the stream was established at all,
// so the caller can reset its backoff schedule.
func (w *Watcher) watchOnce(ctx context.Context) (bool, error) {
	ri := w.client.Resource(w.config.GVR)

	// List first to obtain a consistent resourceVersion to watch from.
	// List contents are not replayed onto the bus: subscribers get
	// changes from now on, not a snapshot.
	list, err := ri.Namespace(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("list failed: %w", err)
	}

	stream, err := ri.Namespace(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{
		ResourceVersion:     list.GetResourceVersion(),
		AllowWatchBookmarks: false,
	})
	if err != nil {
		return false, fmt.Errorf("watch failed: %w", err)
	}
	defer stream.Stop()

	w.logger.Info("watch stream established",
		"gvr", w.config.GVR.String(),
		"resource_version", list.GetResourceVersion())

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case ev, ok := <-stream.ResultChan():
			if !ok {
				return true, fmt.Errorf("watch stream closed")
			}
			if err := w.handleEvent(ev); err != nil {
				return true, err
			}
		}
	}
}

// handleEvent translates one native watch notification into a bus
// publication. Malformed payloads are logged and dropped; only an
// explicit stream error aborts the cycle.
func (w *Watcher) handleEvent(ev watch.Event) error {
	switch ev.Type {
	case watch.Added, watch.Modified, watch.Deleted:
		obj, ok := ev.Object.(*unstructured.Unstructured)
		if !ok || obj.GetName() == "" {
			w.logger.Warn("dropping malformed watch payload",
				"event_type", ev.Type,
				"object_type", fmt.Sprintf("%T", ev.Object))
			return nil
		}

		delivered := w.bus.Publish(w.config.Label, events.ResourceEvent{
			Label:      w.config.Label,
			Type:       events.UpdateType(ev.Type),
			Object:     obj,
			ObservedAt: time.Now(),
		})
		if w.config.OnPublish != nil {
			w.config.OnPublish(delivered)
		}
		w.logger.Debug("published resource event",
			"event_type", ev.Type,
			"namespace", obj.GetNamespace(),
			"name", obj.GetName(),
			"delivered", delivered)
		return nil

	case watch.Bookmark:
		return nil

	case watch.Error:
		return fmt.Errorf("watch stream error: %v", ev.Object)

	default:
		w.logger.Warn("ignoring unknown watch event type", "event_type", ev.Type)
		return nil
	}
}
