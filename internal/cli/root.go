// Package cli implements the calibre-mcp command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitSuccess             = 0
	ExitGenericError        = 1
	ExitConfigInvalid       = 2
	ExitLibraryInaccessible = 3
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	Library    string
	ConfigPath string
	Backend    string
	Quiet      bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "calibre-mcp",
	Short: "MCP server for a local calibre library",
	Long:  "calibre-mcp exposes a calibre book library to MCP clients over stdio: metadata search, full-text search, and excerpt retrieval.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Library, "library", "", "calibre library directory (default: the configured library)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "config file path (default: the user config directory)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Backend, "backend", "", "catalog backend: calibredb|sqlite")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Quiet, "quiet", false, "reduce output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns an error; exit code is set by RunE.
func Execute() error {
	return rootCmd.Execute()
}

// exitWith prints message to stderr and exits with code.
func exitWith(code int, msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}
