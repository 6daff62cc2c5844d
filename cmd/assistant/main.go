// Command assistant runs the citizen assistant outside Lambda: a local HTTP
// server plus one-shot chat, history and action commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citizen-assistant/internal/app"
	"citizen-assistant/internal/config"
	"citizen-assistant/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	userID     string
}

// env carries what each subcommand builds on.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	reg    *prometheus.Registry
	app    *app.App
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "assistant",
		Short: "Citizen services dialogue assistant",
		Long: `Run the citizen services assistant locally.

Configuration is read from --config (or ASSISTANT_CONFIG_FILE), then
ASSISTANT_* environment variables.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ASSISTANT_CONFIG_FILE"), "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", "user_001", "User id for chat, history and action")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newActionCmd(opts))
	return root
}

func (o *rootOptions) build(ctx context.Context) (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	a, err := app.New(ctx, cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, reg: reg, app: a}, nil
}

func (e *env) close() {
	_ = e.app.Close()
	_ = e.logger.Sync()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
