package cli

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trieloff/calibre-mcp/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the library to MCP clients on stdin/stdout",
	Long:  "serve speaks line-delimited JSON-RPC on stdin/stdout. Diagnostics go to stderr; stdout carries protocol frames only.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	svc, err := buildService(cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			exitWith(ExitLibraryInaccessible, "ERROR: "+err.Error())
		}
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	// stdout belongs to the protocol; everything else goes to stderr
	log.SetOutput(os.Stderr)
	if !globalFlags.Quiet {
		log.Printf("serving %s via %s backend", cfg.Library, cfg.Backend)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(svc, mcp.ServerOptions{
		Version:      version,
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
	})
	return srv.Run(ctx, os.Stdin, os.Stdout)
}
