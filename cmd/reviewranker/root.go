package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ReviewRanker/internal/app"
	"ReviewRanker/internal/config"
	"ReviewRanker/internal/logging"
)

const configPathEnv = "REVIEW_RANKER_CONFIG"

type commandContext struct {
	configFlag string
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "reviewranker",
		Short:         "Review ingestion and business ranking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default $"+configPathEnv+")")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCycleCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newRankCommand(ctx))
	rootCmd.AddCommand(newTopCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newBusinessCommand(ctx))

	return rootCmd
}

func (c *commandContext) loadConfig() error {
	if c.cfg != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	path := c.configFlag
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	cfg := config.LoadFrom(path)
	c.cfg = &cfg
	return nil
}

// withApp builds the application for one command and closes it afterwards.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(a *app.Application) error) error {
	if err := c.loadConfig(); err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), *c.cfg, c.logger(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// logger writes to stderr so command output stays machine readable.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), c.cfg.Logging.Level, c.cfg.Logging.Format)
}
