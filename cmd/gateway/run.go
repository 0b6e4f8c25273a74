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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"qlkube/pkg/core/config"
	"qlkube/pkg/core/logging"
	"qlkube/pkg/gateway"
	"qlkube/pkg/k8s/client"
)

// DefaultConfigFile is where the config ConfigMap is normally mounted.
const DefaultConfigFile = "/etc/qlkube/config.yaml"

var (
	runConfigFile string
	runKubeconfig string
)

// runCmd represents the run command (gateway main loop).
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the qlkube GraphQL gateway",
	Long: `Run the qlkube GraphQL gateway.

The gateway fetches the cluster OpenAPI document, builds a GraphQL schema
for the configured resources, and serves queries plus real-time
subscriptions authorized per caller token.

Configuration is loaded from:
1. Command-line flags (highest priority)
2. Environment variables
3. Default values (lowest priority)

Example usage:
  # Run with the default mounted configuration
  qlkube run

  # Run with a local config file
  qlkube run --config ./config.yaml

  # Run with kubeconfig (out-of-cluster development)
  qlkube run --config ./config.yaml --kubeconfig ~/.kube/config`,
	RunE: runGateway,
}

func init() {
	runCmd.Flags().StringVar(&runConfigFile, "config", "",
		"Path to the gateway configuration file (env: CONFIG_FILE)")
	runCmd.Flags().StringVar(&runKubeconfig, "kubeconfig", "",
		"Path to kubeconfig file (for out-of-cluster development, env: KUBECONFIG)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	// Configuration priority: CLI flags > Environment variables > Defaults

	if runConfigFile == "" {
		runConfigFile = os.Getenv("CONFIG_FILE")
	}
	if runConfigFile == "" {
		runConfigFile = DefaultConfigFile
	}

	if runKubeconfig == "" {
		runKubeconfig = os.Getenv("KUBECONFIG")
	}

	configYAML, err := os.ReadFile(runConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	cfg, err := config.LoadConfig(string(configYAML))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateStructure(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The VERBOSE environment variable overrides the configured level.
	// 0 = WARNING, 1 = INFO (default), 2 = DEBUG
	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose := os.Getenv("VERBOSE"); verbose != "" {
		level = logging.LevelFromVerbose(verbose)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Log detected resource limits for observability
	gomaxprocs := runtime.GOMAXPROCS(0)
	var gomemlimit string
	if limit := debug.SetMemoryLimit(-1); limit != math.MaxInt64 {
		gomemlimit = fmt.Sprintf("%d bytes (%.2f MiB)", limit, float64(limit)/(1024*1024))
	} else {
		gomemlimit = "unlimited"
	}

	logger.Info("qlkube gateway starting",
		"config_file", runConfigFile,
		"port", cfg.Server.Port,
		"metrics_port", cfg.Server.MetricsPort,
		"watched_resources", len(cfg.WatchedResources),
		"log_level", level.String(),
		"gomaxprocs", gomaxprocs,
		"gomemlimit", gomemlimit)

	k8sClient, err := client.New(client.Config{
		Kubeconfig: runKubeconfig,
	})
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	logger.Info("Kubernetes client created successfully",
		"namespace", k8sClient.Namespace(),
		"in_cluster", runKubeconfig == "")

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := gateway.Run(ctx, k8sClient, cfg, logger); err != nil {
		// Only return error if it's not a graceful shutdown
		if ctx.Err() == nil {
			return fmt.Errorf("gateway failed: %w", err)
		}
	}

	logger.Info("Gateway shutdown complete")
	return nil
}
