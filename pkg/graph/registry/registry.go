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

// Package registry contributes the auxiliary imageList query, serving
// repository and tag listings from a Docker registry v2 HTTP API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/graphql-go/graphql"

	"qlkube/pkg/graph/schema"
)

// ImageRegistry talks to one Docker registry v2 endpoint.
type ImageRegistry struct {
	baseURL    string
	host       string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an ImageRegistry for baseURL (scheme and host, e.g.
// "https://registry.internal:443").
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) (*ImageRegistry, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("registry URL is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid registry URL %q", baseURL)
	}
	return &ImageRegistry{
		baseURL:    strings.TrimRight(baseURL, "/"),
		host:       parsed.Host,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Ping verifies the registry speaks the v2 API.
func (r *ImageRegistry) Ping(ctx context.Context) error {
	var probe struct{}
	return r.getJSON(ctx, "/v2/", &probe)
}

// Contribute adds the ImageList/Image types and the imageList root query.
func (r *ImageRegistry) Contribute(b *schema.Builder) error {
	if b == nil {
		return fmt.Errorf("builder is required")
	}

	image := graphql.NewObject(graphql.ObjectConfig{
		Name: "Image",
		Fields: graphql.Fields{
			"name":     {Type: graphql.String},
			"versions": {Type: graphql.NewList(graphql.String)},
		},
	})
	imageList := graphql.NewObject(graphql.ObjectConfig{
		Name: "ImageList",
		Fields: graphql.Fields{
			"registryName": {Type: graphql.String},
			"images":       {Type: graphql.NewList(image)},
		},
	})
	if err := b.AddObject(image); err != nil {
		return err
	}
	if err := b.AddObject(imageList); err != nil {
		return err
	}
	return b.AddQueryField("imageList", &graphql.Field{
		Type:        imageList,
		Description: "Repositories and tags available on the configured image registry.",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return r.listImages(p.Context)
		},
	})
}

func (r *ImageRegistry) listImages(ctx context.Context) (map[string]interface{}, error) {
	var catalog struct {
		Repositories []string `json:"repositories"`
	}
	if err := r.getJSON(ctx, "/v2/_catalog?n=1000", &catalog); err != nil {
		return nil, fmt.Errorf("failed to list registry catalog: %w", err)
	}

	images := make([]interface{}, 0, len(catalog.Repositories))
	for _, repo := range catalog.Repositories {
		var tags struct {
			Name string   `json:"name"`
			Tags []string `json:"tags"`
		}
		if err := r.getJSON(ctx, "/v2/"+repo+"/tags/list", &tags); err != nil {
			// One broken repository must not take down the whole listing.
			r.logger.Warn("Failed to list repository tags", "repository", repo, "error", err)
			continue
		}
		if len(tags.Tags) == 0 {
			continue
		}
		images = append(images, map[string]interface{}{
			"name":     repo,
			"versions": tags.Tags,
		})
	}

	return map[string]interface{}{
		"registryName": r.host,
		"images":       images,
	}, nil
}

func (r *ImageRegistry) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
