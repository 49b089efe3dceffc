package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codebase-context/internal/api"
	"github.com/dshills/codebase-context/internal/app"
	"github.com/dshills/codebase-context/internal/config"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/mcp"
	"github.com/dshills/codebase-context/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	envFile    string
	dbPath     string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "codectx",
		Short: "Hybrid code context retrieval",
		Long: `codectx indexes workspaces and retrieves the code snippets most relevant to a
query by combining SQLite full-text search with embedding similarity search.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. TOML file (--config)
  3. .env file (--env, default .env in the current directory)
  4. CODECTX_* environment variables
  5. CLI flags`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "Path to a .env file")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Index database path (overrides CODECTX_DB_PATH)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides CODECTX_LOG_LEVEL)")

	cmd.AddCommand(serveCmd(flags))
	cmd.AddCommand(httpCmd(flags))
	cmd.AddCommand(indexCmd(flags))
	cmd.AddCommand(retrieveCmd(flags))
	cmd.AddCommand(statusCmd(flags))
	cmd.AddCommand(configCmd(flags))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration and applies CLI flag overrides.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configFile, flags.envFile)
	if err != nil {
		return cfg, err
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, cfg.Validate()
}

// openApp loads configuration and wires the application. Logs go to stderr
// so stdout stays free for the MCP protocol and command output.
func openApp(flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	logger.SetDefault()
	return app.New(cfg, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			a.Logger().Info("codectx starting",
				"version", version,
				"build_mode", storage.BuildMode,
				"driver", storage.DriverName,
			)
			err = mcp.NewServer(a, version, a.Logger()).Serve(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("server error: %w", err)
			}
			a.Logger().Info("server stopped")
			return nil
		},
	}
}

func httpCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger := logging.New(cfg.LogFormat, cfg.LogLevel)
			logger.SetDefault()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			srv := api.NewServer(cfg.HTTPAddr, a, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides CODECTX_HTTP_ADDR)")
	return cmd
}

func indexCmd(flags *globalFlags) *cobra.Command {
	var includeTests bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a workspace on its current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args)
			if err != nil {
				return err
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			req := app.IndexRequest{Path: path}
			if cmd.Flags().Changed("include-tests") {
				req.IncludeTests = &includeTests
			}
			result, err := a.Index(logging.EnsureRequestID(ctx), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&includeTests, "include-tests", true, "Index test files")
	return cmd
}

func retrieveCmd(flags *globalFlags) *cobra.Command {
	var (
		dir    string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve context items for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			if dir != "" {
				if dir, err = filepath.Abs(dir); err != nil {
					return err
				}
			}

			items, err := a.Retrieve(logging.EnsureRequestID(ctx), args[0], dir)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}

			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintf(out, "## %s\n%s\n\n", item.Description, item.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Restrict results to files under this directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Show index status for a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathArg(args)
			if err != nil {
				return err
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			status, err := a.Status(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cfg.Embedding.APIKey = redact(cfg.Embedding.APIKey)
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "codectx version %s\n", version)
			fmt.Fprintf(out, "  built:            %s\n", buildTime)
			fmt.Fprintf(out, "  build mode:       %s\n", storage.BuildMode)
			fmt.Fprintf(out, "  sqlite driver:    %s\n", storage.DriverName)
			fmt.Fprintf(out, "  vector extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}

// pathArg returns the absolute form of the optional path argument, or the
// working directory.
func pathArg(args []string) (string, error) {
	if len(args) == 0 {
		return os.Getwd()
	}
	return filepath.Abs(args[0])
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
