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

// Package convert turns the cluster's OpenAPI v2 document into GraphQL
// schema contributions: one object type and a pair of read queries per
// watched resource. Full structural translation of resource schemas is
// deliberately not attempted; spec and status surface as a JSON scalar.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
)

// openAPIPath is the aggregated swagger document served by the API server.
const openAPIPath = "/openapi/v2"

// FetchOpenAPI downloads and decodes the API server's OpenAPI v2
// document using the given bearer token.
func FetchOpenAPI(ctx context.Context, httpClient *http.Client, apiServerURL, token string) (*openapi2.T, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if apiServerURL == "" {
		return nil, fmt.Errorf("api server URL is required")
	}

	url := strings.TrimRight(apiServerURL, "/") + openAPIPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OpenAPI document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching OpenAPI document from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI document: %w", err)
	}

	var doc openapi2.T
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode OpenAPI document: %w", err)
	}
	if doc.Swagger != "" && !strings.HasPrefix(doc.Swagger, "2.") {
		return nil, fmt.Errorf("unsupported OpenAPI version %q", doc.Swagger)
	}
	return &doc, nil
}
