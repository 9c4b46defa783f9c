// Command trellis runs the planning-tree engine: init lays out a
// planning directory, serve exposes the tool operations over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trellis-dev/trellis/internal/config"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/server"
	"github.com/trellis-dev/trellis/internal/tools"
)

var (
	configFile string
	debugMode  bool
	logLevel   string
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

func main() {
	root := &cobra.Command{
		Use:           "trellis",
		Short:         "File-backed project planning for developer agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default trellis.yaml in the working directory)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "verbose development logging")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newInitCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create the planning directory layout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			roots, err := paths.EnsureLayout(target)
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("✓") + " planning tree ready at " + pathStyle.Render(roots.Resolution))
			fmt.Println(faintStyle.Render("  projects/  tasks-open/  tasks-done/"))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if debugMode {
				settings.DebugMode = true
			}
			if logLevel != "" {
				settings.LogLevel = logLevel
			}
			addr := settings.Addr()
			if httpAddr != "" {
				addr = httpAddr
			}

			log, err := buildLogger(settings)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			runtime := tools.NewRuntime(log, settings.CacheMaxSize, settings.AutoCreateDirs)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The watcher is best-effort; resolution failures mean the
			// planning root does not exist yet, which serve tolerates
			// since every operation carries its own projectRoot.
			if roots, err := paths.Resolve(settings.PlanningRoot); err == nil {
				watcher := server.NewWatcher(roots, runtime.Children, log)
				go watcher.Run(ctx)
			} else {
				log.Debug("planning root not watchable", zap.Error(err))
			}

			srv := server.New(runtime, addr, log)
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address (overrides config host:port)")
	return cmd
}

func buildLogger(settings *config.Settings) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if settings.LogLevel != "" {
		if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
			return nil, fmt.Errorf("log level %q is not valid", settings.LogLevel)
		}
	}
	if settings.DebugMode {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
