// Package cmd provides the CLI commands for Cerberus Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusgate/cerberusgate/internal/config"
)

var cfgFile string
var dbFilePath string

var rootCmd = &cobra.Command{
	Use:   "cerberusgate",
	Short: "Cerberus Gate - MCP governance gateway",
	Long: `Cerberus Gate is a governance gateway for Model Context Protocol (MCP)
tool calls. It sits between an agent and an MCP server, enforcing
organisation/workspace/agent policy against a fixed pipeline of guardrails
(RBAC, PII redaction, content filtering, rate limiting) before and after
every proxied call.

Quick start:
  1. Create a config file: cerberusgate.yaml
  2. Run: cerberusgate start

Configuration:
  Config is loaded from cerberusgate.yaml in the current directory,
  $HOME/.cerberusgate/, or /etc/cerberusgate/.

  Environment variables can override config values with the CERBERUS_GATE_ prefix.
  Example: CERBERUS_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the governance gateway
  run         Run an agent with automatic security instrumentation
  stop        Stop the running gateway
  reset       Reset to clean state (remove the governance database)
  hash-key    Generate an Argon2id hash for an agent credential
  trust-ca    Add/remove the CA certificate to the OS trust store
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cerberusgate.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFilePath, "db", "", "path to governance database file (default: ./governance.db)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
