// Package cmd defines and implements the CLI commands for the directory executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/api"
	"github.com/JakeFAU/product-directory/internal/app"
	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/config"
	"github.com/JakeFAU/product-directory/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the set of services commands use. Tests swap in their own via newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	NewRunner(ctx context.Context, dryRun bool) (*backfill.Runner, error)
	NewServer() *api.Server
}

var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(cfg, logger)
}

// rootLogger is set once the config is loaded so Execute can report failures with it.
var rootLogger *zap.Logger

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFile string
	)
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Product directory tools backed by Airtable.",
		Long: `directory keeps the Airtable product table presentable: it backfills
missing company logos and serves the product listing over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.Build(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     "directory",
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rootLogger = logger
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars override it")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")

	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// closeApp releases the app's pools and topics. Commands defer it right after
// resolveApp so it also runs when RunE fails, which cobra's post-run hooks do not.
func closeApp(appInstance App) {
	appInstance.Close()
	_ = appInstance.Logger().Sync()
}

// Execute is the main entry point. Any command error exits with status 1.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger := rootLogger
		if logger == nil {
			fallback, lerr := logging.New(false)
			if lerr != nil {
				fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
				os.Exit(1)
			}
			logger = fallback
		}
		logger.Fatal("command failed", zap.Error(err))
	}
}
