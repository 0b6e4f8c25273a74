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

package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"qlkube/pkg/authz"
	"qlkube/pkg/events"
)

// UpdateTypeEnumName is the shared enum naming the kind of change an
// update payload represents.
const UpdateTypeEnumName = "UpdateType"

// PermissionChecker validates that the caller identified by token may
// watch the given resource. A nil return grants; authz.ErrForbidden
// denies terminally; any other error is a transient infrastructure
// failure.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, ruid, token, group, resource, namespace, name string) error
}

// SubscriptionSpec identifies one watched resource type to expose as a
// root subscription field named "<Label>Update" lowercased to
// "<label>Update".
type SubscriptionSpec struct {
	// Label is the camelCase singular resource label; it must match an
	// existing root query field so the payload reuses that field's type.
	Label string
	// Group and Resource name the Kubernetes API group and plural
	// resource used for permission checks.
	Group    string
	Resource string
}

// SubscriptionDeps carries the runtime collaborators every subscription
// field shares.
type SubscriptionDeps struct {
	Bus     *events.Bus
	Checker PermissionChecker
	Logger  *slog.Logger
	// BufferSize is the per-subscriber channel buffer handed to the bus.
	BufferSize int
	// OnDelivered is invoked for every event handed to a client (optional).
	OnDelivered func(label string)
	// OnActive is invoked with +1/-1 as subscriptions start and stop (optional).
	OnActive func(label string, delta int)
}

// update is the payload flowing from the filter goroutine into the
// per-event field resolution.
type update struct {
	updateType events.UpdateType
	payload    map[string]interface{}
	err        error
}

// AddUpdateTypeEnum registers the UpdateType enum. It must run exactly
// once, before the first ExtendWithSubscription call.
func AddUpdateTypeEnum(b *Builder) error {
	if b == nil {
		return fmt.Errorf("builder is required")
	}
	return b.AddEnum(graphql.NewEnum(graphql.EnumConfig{
		Name:        UpdateTypeEnumName,
		Description: "Kind of change that produced an update event.",
		Values: graphql.EnumValueConfigMap{
			string(events.Added):    {Value: string(events.Added)},
			string(events.Modified): {Value: string(events.Modified)},
			string(events.Deleted):  {Value: string(events.Deleted)},
		},
	}))
}

// ExtendWithSubscription adds the "<label>Update" root subscription
// field for spec. The payload type is the one served by the existing
// "<label>" query field; the UpdateType enum must already be present.
func ExtendWithSubscription(b *Builder, deps SubscriptionDeps, spec SubscriptionSpec) error {
	if b == nil {
		return fmt.Errorf("builder is required")
	}
	if spec.Label == "" || spec.Resource == "" {
		return fmt.Errorf("subscription requires label and resource")
	}
	if deps.Bus == nil || deps.Checker == nil || deps.Logger == nil {
		return fmt.Errorf("subscription %q: bus, checker and logger are required", spec.Label)
	}

	target, ok := b.QueryField(spec.Label)
	if !ok {
		return fmt.Errorf("subscription %q: target type not found in schema", spec.Label)
	}
	enum, ok := b.Enum(UpdateTypeEnumName)
	if !ok {
		return fmt.Errorf("subscription %q: %s enum must be registered first", spec.Label, UpdateTypeEnumName)
	}

	typeName := capitalize(spec.Label) + "Update"
	updateType := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			"updateType": {
				Type: enum,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, ok := p.Source.(*update)
					if !ok {
						return nil, fmt.Errorf("%s: unexpected source of type %T", typeName, p.Source)
					}
					return string(u.updateType), nil
				},
			},
			"payload": {
				Type: target.Type,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, ok := p.Source.(*update)
					if !ok {
						return nil, fmt.Errorf("%s: unexpected source of type %T", typeName, p.Source)
					}
					return u.payload, nil
				},
			},
		},
	})
	if err := b.AddObject(updateType); err != nil {
		return fmt.Errorf("subscription %q: %w", spec.Label, err)
	}

	field := &graphql.Field{
		Type: updateType,
		Args: graphql.FieldConfigArgument{
			"name":      {Type: graphql.String},
			"namespace": {Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			u, ok := p.Source.(*update)
			if !ok {
				return nil, fmt.Errorf("%sUpdate: unexpected source of type %T", spec.Label, p.Source)
			}
			if u.err != nil {
				return nil, u.err
			}
			return u, nil
		},
		Subscribe: subscribeFn(deps, spec),
	}
	if err := b.AddSubscriptionField(spec.Label+"Update", field); err != nil {
		return fmt.Errorf("subscription %q: %w", spec.Label, err)
	}
	return nil
}

// subscribeFn builds the Subscribe resolver: it registers on the bus
// and returns a channel of filtered updates for this client.
func subscribeFn(deps SubscriptionDeps, spec SubscriptionSpec) graphql.FieldResolveFn {
	bufferSize := deps.BufferSize
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return func(p graphql.ResolveParams) (interface{}, error) {
		namespace, _ := p.Args["namespace"].(string)
		if namespace == "" {
			return nil, fmt.Errorf("namespace argument is required")
		}
		name, _ := p.Args["name"].(string)

		token, ok := authz.TokenFromContext(p.Context)
		if !ok || token == "" {
			return nil, fmt.Errorf("no authorization token on subscription context")
		}

		sub, err := deps.Bus.Subscribe(bufferSize, spec.Label)
		if err != nil {
			return nil, err
		}

		ruid := uuid.NewString()
		logger := deps.Logger.With("ruid", ruid, "label", spec.Label, "namespace", namespace)
		if name != "" {
			logger = logger.With("name", name)
		}
		logger.Info("Subscription started")
		if deps.OnActive != nil {
			deps.OnActive(spec.Label, 1)
		}

		out := make(chan interface{})
		go filterLoop(p.Context, deps, spec, sub, out, filterParams{
			ruid:      ruid,
			token:     token,
			namespace: namespace,
			name:      name,
			logger:    logger,
		})
		return out, nil
	}
}

type filterParams struct {
	ruid      string
	token     string
	namespace string
	name      string
	logger    *slog.Logger
}

// filterLoop consumes the shared label stream, applies the per-client
// filters in order (namespace, then name, then permission) and forwards
// matching updates. A denied permission check terminates the
// subscription with an error payload; a transient check failure skips
// the event and retries on the next one.
func filterLoop(ctx context.Context, deps SubscriptionDeps, spec SubscriptionSpec, sub *events.Subscription, out chan<- interface{}, fp filterParams) {
	defer func() {
		sub.Close()
		close(out)
		if deps.OnActive != nil {
			deps.OnActive(spec.Label, -1)
		}
		fp.logger.Info("Subscription stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Object == nil {
				fp.logger.Warn("Dropping event without object payload", "update_type", string(ev.Type))
				continue
			}
			if ev.Object.GetNamespace() != fp.namespace {
				continue
			}
			if fp.name != "" && ev.Object.GetName() != fp.name {
				continue
			}

			err := deps.Checker.CheckPermission(ctx, fp.ruid, fp.token, spec.Group, spec.Resource, fp.namespace, ev.Object.GetName())
			if errors.Is(err, authz.ErrForbidden) {
				fp.logger.Warn("Subscription terminated: permission denied")
				deliver(ctx, out, &update{err: err})
				return
			}
			if err != nil {
				fp.logger.Warn("Skipping event: permission check unavailable", "error", err)
				continue
			}

			u := &update{updateType: ev.Type, payload: ev.Object.Object}
			if !deliver(ctx, out, u) {
				return
			}
			if deps.OnDelivered != nil {
				deps.OnDelivered(spec.Label)
			}
		}
	}
}

func deliver(ctx context.Context, out chan<- interface{}, u *update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
