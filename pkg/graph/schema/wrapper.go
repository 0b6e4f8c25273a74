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
	"fmt"
	"strings"
	"unicode"

	"github.com/graphql-go/graphql"
)

// WrapperSpec describes one cross-resource navigation field: an
// existing object type gains a field that re-invokes an existing root
// query, taking the query's arguments from sibling values on the
// parent object.
type WrapperSpec struct {
	// TargetQuery is the root query field the wrapper delegates to.
	TargetQuery string
	// ExtendedType is the object type gaining the wrapper field.
	ExtendedType string
	// FieldName names the new field; its capitalized form names the
	// synthesized wrapper type.
	FieldName string
	// RequiredArgs are keys read from the parent object and forwarded
	// as the target query's arguments. A key may be a dotted path into
	// nested objects; the final segment names the argument.
	RequiredArgs []string
}

// ExtendWithWrapper mutates the builder in place, adding the wrapper
// type and field described by spec. Any failure leaves the caller to
// abort startup: wrappers come from operator configuration and a broken
// one must be surfaced, not silently skipped.
func ExtendWithWrapper(b *Builder, spec WrapperSpec) error {
	if b == nil {
		return fmt.Errorf("builder is required")
	}
	if spec.TargetQuery == "" || spec.ExtendedType == "" || spec.FieldName == "" || len(spec.RequiredArgs) == 0 {
		return fmt.Errorf("wrapper requires targetQuery, extendedType, fieldName and at least one required argument")
	}

	target, ok := b.QueryField(spec.TargetQuery)
	if !ok {
		return fmt.Errorf("wrapper %q: target query %q not found in root query type", spec.FieldName, spec.TargetQuery)
	}
	if target.Resolve == nil {
		return fmt.Errorf("wrapper %q: target query %q has no resolver", spec.FieldName, spec.TargetQuery)
	}
	parent, ok := b.Object(spec.ExtendedType)
	if !ok {
		return fmt.Errorf("wrapper %q: extended type %q not found in schema", spec.FieldName, spec.ExtendedType)
	}

	wrapperTypeName := capitalize(spec.FieldName)
	if b.HasType(wrapperTypeName) {
		// A second wrapper producing the same type name would be a
		// duplicate definition, which also guards against circular
		// wrapper chains re-synthesizing themselves.
		return fmt.Errorf("wrapper %q: type %q is already present in the schema", spec.FieldName, wrapperTypeName)
	}

	targetResolve := target.Resolve
	requiredArgs := append([]string(nil), spec.RequiredArgs...)

	wrapperType := graphql.NewObject(graphql.ObjectConfig{
		Name: wrapperTypeName,
		Fields: graphql.Fields{
			spec.TargetQuery: {
				Type: target.Type,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					source, ok := p.Source.(map[string]interface{})
					if !ok {
						return nil, fmt.Errorf("wrapper %s: unexpected parent value of type %T", wrapperTypeName, p.Source)
					}
					// Re-invoke the target query's resolver with the
					// synthesized parent as both root and argument
					// source. ResolveParams is a value, so swapping
					// Args does not leak into the outer resolution.
					p.Args = source
					return targetResolve(p)
				},
			},
		},
	})
	if err := b.AddObject(wrapperType); err != nil {
		return fmt.Errorf("wrapper %q: %w", spec.FieldName, err)
	}

	parent.AddFieldConfig(spec.FieldName, &graphql.Field{
		Type: wrapperType,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			source, ok := p.Source.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("field %s: unexpected parent value of type %T", spec.FieldName, p.Source)
			}
			synthesized := make(map[string]interface{}, len(requiredArgs))
			for _, arg := range requiredArgs {
				value, ok := lookupPath(source, arg)
				if !ok {
					return nil, fmt.Errorf("field %s: required argument %q missing on parent object", spec.FieldName, arg)
				}
				synthesized[argName(arg)] = value
			}
			return synthesized, nil
		},
	})
	return nil
}

// lookupPath walks a dotted key path through nested objects.
func lookupPath(source map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = source
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = obj[segment]; !ok {
			return nil, false
		}
	}
	return current, true
}

func argName(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
