package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YatsauAliaksei/openapi-mcp/config"
	"github.com/YatsauAliaksei/openapi-mcp/registry"
)

const serverName = "openapi-mcp"

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serverName,
		Short:         "Expose OpenAPI operations as MCP tools",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a YAML or TOML config file (default $OPENAPI_MCP_CONFIG or ./"+config.DefaultPath+")")

	root.AddCommand(
		newServeCmd(&configPath),
		newListCmd(&configPath),
		newValidateCmd(&configPath),
	)
	return root
}

// initLogger writes to stderr and the configured log file. Stdout is
// reserved for the MCP stdio transport.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	outputs := []string{"stderr"}
	if cfg.LogFile != "" {
		outputs = append(outputs, cfg.LogFile)
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(serverName), nil
}

// setup loads the configuration and builds the registry shared by every
// subcommand. The returned logger must be synced by the caller.
func setup(ctx context.Context, configPath string, opts registry.Options) (*config.Config, *registry.Registry, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(cfg.Services) == 0 {
		return nil, nil, logger, fmt.Errorf("no services configured: set %s or OPENAPI_SPEC_PATH and OPENAPI_BASE_URL", config.DefaultPath)
	}

	opts.Timeout = cfg.Timeout
	opts.Logger = logger
	r, err := registry.Build(ctx, cfg.Sources(), opts)
	if err != nil {
		return nil, nil, logger, err
	}
	return cfg, r, logger, nil
}
