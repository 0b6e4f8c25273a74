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

// Package client provides a wrapper around the Kubernetes client-go library.
//
// This package simplifies Kubernetes client creation and provides the
// token-scoped access review used to authorize subscription delivery.
package client

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// DefaultNamespaceFile is the standard location for the service account namespace.
	DefaultNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

	// DefaultTokenFile is the standard location for the service account token.
	DefaultTokenFile = "/var/run/secrets/kubernetes.io/serviceaccount/token" // #nosec G101 -- path, not a credential
)

// Client wraps a Kubernetes clientset with additional utilities.
type Client struct {
	clientset     kubernetes.Interface
	dynamicClient dynamic.Interface
	restConfig    *rest.Config
	namespace     string // Cached current namespace
}

// Config contains configuration options for creating a Kubernetes client.
type Config struct {
	// Kubeconfig path for out-of-cluster configuration.
	// If empty, uses in-cluster configuration.
	Kubeconfig string

	// Namespace is the default namespace for operations.
	// If empty, will be discovered from service account.
	Namespace string
}

// New creates a new Kubernetes client with the provided configuration.
//
// If Config.Kubeconfig is empty, uses in-cluster configuration.
// If Config.Namespace is empty, discovers namespace from service account token.
func New(cfg Config) (*Client, error) {
	var restConfig *rest.Config
	var err error

	if cfg.Kubeconfig != "" {
		// Out-of-cluster configuration
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
		if err != nil {
			return nil, &ClientError{
				Operation: "build kubeconfig",
				Err:       err,
			}
		}
	} else {
		// In-cluster configuration
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, &ClientError{
				Operation: "get in-cluster config",
				Err:       err,
			}
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, &ClientError{
			Operation: "create clientset",
			Err:       err,
		}
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, &ClientError{
			Operation: "create dynamic client",
			Err:       err,
		}
	}

	client := &Client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		restConfig:    restConfig,
		namespace:     cfg.Namespace,
	}

	if client.namespace == "" {
		client.namespace = discoverNamespace(cfg.Kubeconfig)
	}

	return client, nil
}

// discoverNamespace determines the current namespace.
//
// In-cluster: reads the service account namespace file.
// Out-of-cluster: reads the kubeconfig's current context namespace.
// Falls back to "default".
func discoverNamespace(kubeconfig string) string {
	if kubeconfig == "" {
		if data, err := os.ReadFile(DefaultNamespaceFile); err == nil && len(data) > 0 {
			return string(data)
		}
		return "default"
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = filepath.Clean(kubeconfig)
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{})
	if ns, _, err := clientConfig.Namespace(); err == nil && ns != "" {
		return ns
	}
	return "default"
}

// Clientset returns the underlying Kubernetes clientset.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// DynamicClient returns the dynamic client for arbitrary resources.
func (c *Client) DynamicClient() dynamic.Interface {
	return c.dynamicClient
}

// RestConfig returns the REST configuration used to build the clients.
func (c *Client) RestConfig() *rest.Config {
	return c.restConfig
}

// Namespace returns the current namespace.
func (c *Client) Namespace() string {
	return c.namespace
}

// APIServerURL returns the base URL of the cluster API server.
func (c *Client) APIServerURL() string {
	return c.restConfig.Host
}

// BearerToken returns the service account token the gateway itself uses,
// reading the mounted token file when the rest config does not carry it
// inline. Returns an error when no token is available.
func (c *Client) BearerToken() (string, error) {
	if c.restConfig.BearerToken != "" {
		return c.restConfig.BearerToken, nil
	}
	tokenFile := c.restConfig.BearerTokenFile
	if tokenFile == "" {
		tokenFile = DefaultTokenFile
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read bearer token: %w", err)
	}
	return string(data), nil
}

// DynamicClientForToken builds a dynamic client that authenticates with
// the given bearer token instead of the gateway's own identity. Query
// resolvers use it so reads run with the caller's permissions.
func (c *Client) DynamicClientForToken(token string) (dynamic.Interface, error) {
	if token == "" {
		return nil, fmt.Errorf("bearer token cannot be empty")
	}
	cfg := rest.AnonymousClientConfig(c.restConfig)
	cfg.BearerToken = token
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, &ClientError{
			Operation: "create token-scoped dynamic client",
			Err:       err,
		}
	}
	return dynamicClient, nil
}

// HTTPClient returns an HTTP client configured with the cluster's TLS
// settings, for endpoints client-go has no typed client for (the
// OpenAPI document).
func (c *Client) HTTPClient() (*http.Client, error) {
	httpClient, err := rest.HTTPClientFor(c.restConfig)
	if err != nil {
		return nil, &ClientError{
			Operation: "build http client",
			Err:       err,
		}
	}
	return httpClient, nil
}
