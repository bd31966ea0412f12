package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/logging"
	"github.com/kariedo/claude-code-security-rules/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the preview server with live reload",
	Long: `Serve starts a local preview server for the rule corpus. The server renders
the expanded ruleset and every member document as HTML, watches the corpus
for changes, and pushes live updates to connected browsers over WebSocket.

A reload that fails (cycle, missing reference) never replaces the served
ruleset: the last good version stays up, marked stale, and the browser
overlay shows the structured error.

Examples:
  secrules serve                       # Serve at localhost:8080
  secrules serve --port 3000           # Custom port
  secrules serve --no-open             # Don't open the browser
  secrules serve --root handbook.md    # Serve a specific root`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-open", false, "Don't open browser automatically")
	serveCmd.Flags().String("root", "", "Root document to expand")
	serveCmd.Flags().String("base-dir", "", "Base directory document references resolve against")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.no-open", serveCmd.Flags().Lookup("no-open"))
	viper.BindPFlag("root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("docs.base_dir", serveCmd.Flags().Lookup("base-dir"))

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(loggerConfig(cfg))

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down preview server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
	}()

	fmt.Printf("Starting preview server at http://%s\n", cfg.Address())
	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// loggerConfig maps the file/flag log configuration onto the logging package.
func loggerConfig(cfg *config.Config) *logging.LoggerConfig {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Format = cfg.Log.Format
	return logCfg
}
