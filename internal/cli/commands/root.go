// Package commands implements the kommet CLI subcommands.
package commands

import (
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
		Use:   "kommet",
		Short: "Kommet metadata-driven persistence engine",
		Long: color.CyanString(`Kommet - metadata-driven persistence core

Define record types at runtime, query them with DAL, and control access
per record with profiles, sharing rules and user groups.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewQueryCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("kommet %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
