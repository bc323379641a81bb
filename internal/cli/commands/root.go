// Package commands implements the omniview CLI.
package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "omniview",
		Short: "Omnistudio metadata hierarchy resolver",
		Long: color.CyanString(`omniview - Omnistudio metadata hierarchy resolver

omniview parses Integration Procedure, OmniScript, and Data Mapper
definitions, builds the cross-component reference graph, and serves
fully expanded component hierarchies behind a two-tier cache.

Commands:
  serve    run the HTTP API
  load     run one reload against a fixture file and print the summary
  version  show version information`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewLoadCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("omniview %s\n", Version)
			fmt.Printf("  commit:  %s\n", GitCommit)
			fmt.Printf("  built:   %s\n", BuildDate)
			fmt.Printf("  go:      %s\n", runtime.Version())
		},
	}
}
