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
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"qlkube/pkg/core/config"
)

var validateConfigFile string

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a gateway configuration file",
	Long: `Validate a qlkube configuration file without starting the gateway.

The file is parsed, defaults are applied, and the structure is checked:
ports, watched resources, wrapper declarations, authorization and watch
tuning must all be well-formed. The command prints a short summary of
the schema the configuration would produce.

Example usage:
  # Validate the mounted configuration
  qlkube validate -f /etc/qlkube/config.yaml

  # Validate a local file before deploying it
  qlkube validate -f ./config.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "", "Path to the configuration YAML file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configYAML, err := os.ReadFile(validateConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := config.LoadConfig(string(configYAML))
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := config.ValidateStructure(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	labels := make([]string, 0, len(cfg.WatchedResources))
	for label := range cfg.WatchedResources {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Printf("Configuration %s is valid.\n\n", validateConfigFile)
	fmt.Printf("  server port:      %d\n", cfg.Server.Port)
	fmt.Printf("  metrics port:     %d\n", cfg.Server.MetricsPort)
	fmt.Printf("  allowed groups:   %v\n", cfg.AllowedAPIGroups)
	fmt.Printf("  watched resources (%d):\n", len(labels))
	for _, label := range labels {
		res := cfg.WatchedResources[label]
		fmt.Printf("    %s -> %s/%s %s (subscription %sUpdate)\n",
			label, res.Group, res.Version, res.Resource, label)
	}
	fmt.Printf("  wrappers (%d):\n", len(cfg.Wrappers))
	for _, w := range cfg.Wrappers {
		fmt.Printf("    %s.%s -> query %s (args %v)\n",
			w.ExtendedType, w.FieldName, w.TargetQuery, w.RequiredArgs)
	}
	if cfg.Registry.URL != "" {
		fmt.Printf("  image registry:   %s\n", cfg.Registry.URL)
	}

	return nil
}
