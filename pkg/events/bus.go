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

// Package events provides the in-process publish/subscribe bus that fans
// watch-stream events out to subscription resolvers.
//
// The bus is keyed by label: one topic per watched resource type. Each
// active GraphQL subscription holds its own Subscription and filters the
// shared stream independently, so the number of live cluster watches is
// bounded by the number of resource types, not subscribers.
package events

import (
	"errors"
	"sync"
)

// ErrTooManySubscribers is returned by Subscribe when a label already
// has the maximum number of registered listeners. Raising the cap is a
// configuration change; hitting it is resource exhaustion, never a
// silent event drop.
var ErrTooManySubscribers = errors.New("too many subscribers for label")

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// Bus is a label-keyed pub/sub fan-out.
//
// Publish delivers an event to every subscription registered for the
// event's label at publish time. A subscriber that registers late misses
// earlier events; there is no backlog. Delivery to one subscriber is
// ordered (events arrive in publish order); ordering across labels or
// across subscribers is not guaranteed.
//
// Bus is safe for concurrent use by multiple watchers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]*Subscription
	maxPerLabel int
	closed      bool
}

// NewBus creates a Bus capping listener registrations at maxPerLabel
// per label (0 falls back to 100, the reference limit).
func NewBus(maxPerLabel int) *Bus {
	if maxPerLabel <= 0 {
		maxPerLabel = 100
	}
	return &Bus{
		subs:        make(map[string][]*Subscription),
		maxPerLabel: maxPerLabel,
	}
}

// Subscription is one consumer's registration on the bus. Events arrive
// on Events(); Close deregisters the consumer and releases its slot.
// Closing is idempotent and must be called when the consuming iteration
// stops, or the registration leaks.
type Subscription struct {
	bus    *Bus
	labels []string
	ch     chan ResourceEvent
	done   chan struct{}
	sendMu sync.Mutex // serializes sends against channel close
	once   sync.Once
}

// Subscribe registers a consumer for every given label.
//
// bufferSize is the channel buffer; when it fills, Publish blocks until
// the consumer reads or closes, preserving order without dropping.
func (b *Bus) Subscribe(bufferSize int, labels ...string) (*Subscription, error) {
	if len(labels) == 0 {
		return nil, errors.New("at least one label is required")
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	for _, label := range labels {
		if len(b.subs[label]) >= b.maxPerLabel {
			return nil, ErrTooManySubscribers
		}
	}

	sub := &Subscription{
		bus:    b,
		labels: labels,
		ch:     make(chan ResourceEvent, bufferSize),
		done:   make(chan struct{}),
	}
	for _, label := range labels {
		b.subs[label] = append(b.subs[label], sub)
	}

	return sub, nil
}

// Publish delivers ev to every subscription currently registered for
// label and returns the number of deliveries. A full subscriber buffer
// blocks the publisher until the subscriber reads or closes; it never
// drops the event.
func (b *Bus) Publish(label string, ev ResourceEvent) int {
	b.mu.RLock()
	targets := make([]*Subscription, len(b.subs[label]))
	copy(targets, b.subs[label])
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount returns the number of registrations for label.
func (b *Bus) SubscriberCount(label string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[label])
}

// Close shuts the bus down: all subscriptions are closed and further
// Subscribe calls fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}

// Events returns the receive channel. It is closed once the
// subscription closes and all pending events are delivered.
func (s *Subscription) Events() <-chan ResourceEvent {
	return s.ch
}

// Close deregisters the subscription from the bus and closes the events
// channel. Safe to call multiple times and concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)

		s.bus.mu.Lock()
		for _, label := range s.labels {
			subs := s.bus.subs[label]
			for i, candidate := range subs {
				if candidate == s {
					s.bus.subs[label] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		s.bus.mu.Unlock()

		// Waits out any in-flight deliver; done is already closed so
		// blocked sends resolve promptly.
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

// deliver sends ev to the subscription, blocking on a full buffer until
// the consumer reads or the subscription closes. Reports whether the
// event was handed to the channel.
func (s *Subscription) deliver(ev ResourceEvent) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}
