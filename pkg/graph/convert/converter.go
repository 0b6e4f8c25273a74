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

package convert

import (
	"fmt"
	"log/slog"
	"sort"
	"unicode"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/graphql-go/graphql"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"qlkube/pkg/authz"
	"qlkube/pkg/graph/schema"
)

// metadataTypeName is the shared object type for Kubernetes object metadata.
const metadataTypeName = "Metadata"

// Resource identifies one watched resource type to expose.
type Resource struct {
	// Label is the camelCase singular name used for GraphQL fields.
	Label string
	// GVR locates the resource on the API server.
	GVR k8sschema.GroupVersionResource
	// Kind is the resource's kind, used to find its swagger definition.
	Kind string
}

// TokenClientProvider builds dynamic clients bound to a caller's bearer
// token, so reads run with the caller's permissions rather than the
// gateway's.
type TokenClientProvider interface {
	DynamicClientForToken(token string) (dynamic.Interface, error)
}

// Converter contributes types and query fields to a schema builder.
// Implementations other than ResourceConverter could translate the full
// OpenAPI structure; the gateway only depends on this interface.
type Converter interface {
	Contribute(b *schema.Builder) error
}

// ResourceConverter contributes, per configured resource, an object type
// plus "<label>" and "<label>List" root queries backed by the dynamic
// client. Object spec and status are served as the JSON scalar.
type ResourceConverter struct {
	provider  TokenClientProvider
	doc       *openapi2.T
	resources []Resource
	logger    *slog.Logger
}

// NewResourceConverter creates a ResourceConverter. The OpenAPI document
// is optional; without it type descriptions are simply absent.
func NewResourceConverter(provider TokenClientProvider, doc *openapi2.T, resources []Resource, logger *slog.Logger) (*ResourceConverter, error) {
	if provider == nil {
		return nil, fmt.Errorf("token client provider is required")
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("at least one resource is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	for _, res := range resources {
		if res.Label == "" || res.GVR.Resource == "" || res.GVR.Version == "" {
			return nil, fmt.Errorf("resource %+v: label, resource and version are required", res)
		}
	}
	return &ResourceConverter{
		provider:  provider,
		doc:       doc,
		resources: resources,
		logger:    logger,
	}, nil
}

// Contribute registers all types and query fields on the builder.
// Registration order is deterministic (sorted by label).
func (c *ResourceConverter) Contribute(b *schema.Builder) error {
	if b == nil {
		return fmt.Errorf("builder is required")
	}

	metadata, err := c.metadataType(b)
	if err != nil {
		return err
	}

	sorted := make([]Resource, len(c.resources))
	copy(sorted, c.resources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	for _, res := range sorted {
		if err := c.contributeResource(b, metadata, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *ResourceConverter) metadataType(b *schema.Builder) (*graphql.Object, error) {
	if existing, ok := b.Object(metadataTypeName); ok {
		return existing, nil
	}
	metadata := graphql.NewObject(graphql.ObjectConfig{
		Name:        metadataTypeName,
		Description: "Standard Kubernetes object metadata.",
		Fields: graphql.Fields{
			"name":              {Type: graphql.String},
			"namespace":         {Type: graphql.String},
			"uid":               {Type: graphql.String},
			"resourceVersion":   {Type: graphql.String},
			"creationTimestamp": {Type: graphql.String},
			"labels":            {Type: schema.JSON},
			"annotations":       {Type: schema.JSON},
		},
	})
	if err := b.AddObject(metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func (c *ResourceConverter) contributeResource(b *schema.Builder, metadata *graphql.Object, res Resource) error {
	description := ""
	if def, ok := FindDefinition(c.doc, res.GVR.Group, res.GVR.Version, res.Kind); ok {
		description = def.Description
	} else if c.doc != nil {
		c.logger.Debug("No swagger definition for resource", "label", res.Label, "kind", res.Kind)
	}

	objectType := graphql.NewObject(graphql.ObjectConfig{
		Name:        capitalize(res.Label),
		Description: description,
		Fields: graphql.Fields{
			"apiVersion": {Type: graphql.String},
			"kind":       {Type: graphql.String},
			"metadata":   {Type: metadata},
			"spec":       {Type: schema.JSON},
			"status":     {Type: schema.JSON},
		},
	})
	if err := b.AddObject(objectType); err != nil {
		return fmt.Errorf("resource %q: %w", res.Label, err)
	}

	gvr := res.GVR
	getField := &graphql.Field{
		Type:        objectType,
		Description: description,
		Args: graphql.FieldConfigArgument{
			"name":      {Type: graphql.NewNonNull(graphql.String)},
			"namespace": {Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			cli, err := c.clientFor(p)
			if err != nil {
				return nil, err
			}
			name, _ := p.Args["name"].(string)
			namespace, _ := p.Args["namespace"].(string)
			obj, err := cli.Resource(gvr).Namespace(namespace).Get(p.Context, name, metav1.GetOptions{})
			if err != nil {
				return nil, err
			}
			return obj.Object, nil
		},
	}
	if err := b.AddQueryField(res.Label, getField); err != nil {
		return fmt.Errorf("resource %q: %w", res.Label, err)
	}

	listField := &graphql.Field{
		Type: graphql.NewList(objectType),
		Args: graphql.FieldConfigArgument{
			"namespace": {Type: graphql.String},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			cli, err := c.clientFor(p)
			if err != nil {
				return nil, err
			}
			namespace, _ := p.Args["namespace"].(string)
			list, err := cli.Resource(gvr).Namespace(namespace).List(p.Context, metav1.ListOptions{})
			if err != nil {
				return nil, err
			}
			items := make([]interface{}, 0, len(list.Items))
			for i := range list.Items {
				items = append(items, list.Items[i].Object)
			}
			return items, nil
		},
	}
	if err := b.AddQueryField(res.Label+"List", listField); err != nil {
		return fmt.Errorf("resource %q: %w", res.Label, err)
	}
	return nil
}

func (c *ResourceConverter) clientFor(p graphql.ResolveParams) (dynamic.Interface, error) {
	token, ok := authz.TokenFromContext(p.Context)
	if !ok {
		return nil, fmt.Errorf("no authorization token on request context")
	}
	return c.provider.DynamicClientForToken(token)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
