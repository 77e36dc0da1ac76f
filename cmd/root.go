package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/qa-archiver/internal/app"
	"github.com/JakeFAU/qa-archiver/internal/config"
	"github.com/JakeFAU/qa-archiver/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.New(ctx, opts)
}

// newRootCmd creates and configures the root command. The returned func
// releases the app built for the subcommand; cobra skips post-run hooks when a
// command fails, so callers run it after Execute.
func newRootCmd() (*cobra.Command, func(context.Context) error) {
	var (
		cfgFile string
		built   *app.App
	)
	cmd := &cobra.Command{
		Use:   "qa-archiver",
		Short: "Archives Q&A platform content into a self-contained local archive.",
		Long: `qa-archiver crawls answers, articles, pins, collections, questions and
user profiles from their seeds, normalizes each into a document tree, stores
embedded media content-addressed and exports a browsable archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: load config, build the app and stash it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), app.Options{Config: cfg, Logger: logger})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml); ARCHIVER_* env vars override it")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newServeCmd())

	closeApp := func(ctx context.Context) error {
		if built == nil {
			return nil
		}
		err := built.Close(ctx)
		built = nil
		return err
	}
	return cmd, closeApp
}

// applyFlagOverrides copies explicitly set subcommand flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("status-addr"); f != nil && f.Changed {
		cfg.Progress.StatusAddr = f.Value.String()
	}
	for name, dst := range map[string]*int{
		"max-depth":       &cfg.Crawler.MaxDepth,
		"max-items":       &cfg.Crawler.MaxItems,
		"max-concurrency": &cfg.Crawler.MaxConcurrency,
	} {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v, err := strconv.Atoi(f.Value.String())
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		*dst = v
	}
	return cfg.Validate()
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the context;
// in-flight items are left pending for the next run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := closeApp(closeCtx); cerr != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		stop()
		os.Exit(1)
	}
}
