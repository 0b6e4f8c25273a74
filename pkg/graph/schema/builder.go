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

// Package schema builds the served GraphQL schema programmatically.
//
// The Builder is a typed registry of object types, enums, query fields
// and subscription fields. Extensions (wrapper fields, subscription
// fields) are applied against the Builder before it is compiled into an
// immutable graphql.Schema; a failed extension is a configuration error
// and the gateway must not start serving.
package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"
)

// Builder accumulates the schema under construction. It is not safe for
// concurrent use; all registration happens single-threaded at boot.
type Builder struct {
	objects            map[string]*graphql.Object
	enums              map[string]*graphql.Enum
	queryFields        graphql.Fields
	subscriptionFields graphql.Fields
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		objects:            make(map[string]*graphql.Object),
		enums:              make(map[string]*graphql.Enum),
		queryFields:        make(graphql.Fields),
		subscriptionFields: make(graphql.Fields),
	}
}

// AddObject registers an object type. GraphQL forbids duplicate type
// names, so a second registration under the same name is an error.
func (b *Builder) AddObject(obj *graphql.Object) error {
	if obj == nil {
		return fmt.Errorf("object is nil")
	}
	if b.HasType(obj.Name()) {
		return fmt.Errorf("type %q is already present in the schema", obj.Name())
	}
	b.objects[obj.Name()] = obj
	return nil
}

// Object returns the registered object type with the given name.
func (b *Builder) Object(name string) (*graphql.Object, bool) {
	obj, ok := b.objects[name]
	return obj, ok
}

// AddEnum registers an enum type, rejecting duplicate names.
func (b *Builder) AddEnum(enum *graphql.Enum) error {
	if enum == nil {
		return fmt.Errorf("enum is nil")
	}
	if b.HasType(enum.Name()) {
		return fmt.Errorf("type %q is already present in the schema", enum.Name())
	}
	b.enums[enum.Name()] = enum
	return nil
}

// Enum returns the registered enum with the given name.
func (b *Builder) Enum(name string) (*graphql.Enum, bool) {
	enum, ok := b.enums[name]
	return enum, ok
}

// HasType reports whether any registered type carries the given name.
func (b *Builder) HasType(name string) bool {
	if _, ok := b.objects[name]; ok {
		return true
	}
	_, ok := b.enums[name]
	return ok
}

// AddQueryField registers a root query field.
func (b *Builder) AddQueryField(name string, field *graphql.Field) error {
	if name == "" || field == nil {
		return fmt.Errorf("query field name and definition are required")
	}
	if _, ok := b.queryFields[name]; ok {
		return fmt.Errorf("query field %q is already present in the schema", name)
	}
	b.queryFields[name] = field
	return nil
}

// QueryField returns the root query field with the given name.
func (b *Builder) QueryField(name string) (*graphql.Field, bool) {
	field, ok := b.queryFields[name]
	return field, ok
}

// AddSubscriptionField registers a root subscription field.
func (b *Builder) AddSubscriptionField(name string, field *graphql.Field) error {
	if name == "" || field == nil {
		return fmt.Errorf("subscription field name and definition are required")
	}
	if _, ok := b.subscriptionFields[name]; ok {
		return fmt.Errorf("subscription field %q is already present in the schema", name)
	}
	b.subscriptionFields[name] = field
	return nil
}

// Build compiles the accumulated registry into an immutable schema.
// At least one query field must exist.
func (b *Builder) Build() (graphql.Schema, error) {
	if len(b.queryFields) == 0 {
		return graphql.Schema{}, fmt.Errorf("schema has no query fields")
	}

	cfg := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: b.queryFields,
		}),
	}

	if len(b.subscriptionFields) > 0 {
		cfg.Subscription = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: b.subscriptionFields,
		})
	}

	for _, obj := range b.objects {
		cfg.Types = append(cfg.Types, obj)
	}
	for _, enum := range b.enums {
		cfg.Types = append(cfg.Types, enum)
	}

	compiled, err := graphql.NewSchema(cfg)
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("schema compilation failed: %w", err)
	}
	return compiled, nil
}
