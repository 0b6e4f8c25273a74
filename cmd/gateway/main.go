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

// Package main provides the CLI entrypoint for the qlkube GraphQL gateway.
//
// The gateway accepts configuration via CLI flags, environment variables,
// or defaults:
//
//   - Config file: --config flag, CONFIG_FILE env var, or "/etc/qlkube/config.yaml" default
//   - Kubeconfig: --kubeconfig flag, KUBECONFIG env var (for out-of-cluster development)
//   - Log verbosity: VERBOSE env var (0 = WARNING, 1 = INFO, 2 = DEBUG)
//
// The gateway runs until receiving SIGTERM or SIGINT, at which point it
// performs graceful shutdown.
package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/KimMachineGun/automemlimit"
)

var rootCmd = &cobra.Command{
	Use:   "qlkube",
	Short: "GraphQL gateway over the Kubernetes API",
	Long: `qlkube serves a GraphQL API over selected Kubernetes resources,
including real-time subscriptions backed by cluster watch streams.`,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
