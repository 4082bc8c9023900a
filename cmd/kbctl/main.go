// Package main provides kbctl, the operator CLI for the course knowledge
// base. It runs intents against Fuseki, checks store liveness, exports the
// course catalog and serves query metrics.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "kbctl"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Query the course knowledge base",
		Long: `kbctl answers course-advising intents against an Apache Jena Fuseki
dataset holding the course ontology.

Configuration comes from FUSEKI_* and SFTP_* environment variables,
optionally overlaid by a YAML file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		queryCmd(g),
		coursesCmd(g),
		courseCmd(g),
		prereqsCmd(g),
		domainCmd(g),
		searchCmd(g),
		studentCmd(g),
		intentsCmd(),
		pingCmd(g),
		exportCmd(g),
		diffCmd(g),
		serveMetricsCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}
