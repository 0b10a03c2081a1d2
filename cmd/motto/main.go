// Command motto matches spoken or typed commands against the command catalog
// and serves voice-command sessions over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "motto: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// cli holds state shared by all subcommands, filled in by the root
// command's pre-run hook.
type cli struct {
	configPath string
	logLevel   string

	// overrides from flags, reapplied to every reloaded configuration.
	overrides []config.Override

	cfg     *config.Config
	catalog *catalog.Catalog
	level   *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	c := &cli{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:           "motto",
		Short:         "Fuzzy voice-command matching engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration file (defaults plus MOTTO_* variables when empty)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		c.newMatchCmd(),
		c.newSplitCmd(),
		c.newSuggestCmd(),
		c.newCatalogCmd(),
		c.newRunCmd(),
		c.newServeCmd(),
	)
	return root
}

// setup loads the configuration and catalog and installs the default logger.
func (c *cli) setup(logOut io.Writer) error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath == "" {
		cfg, err = config.FromEnvironment()
	} else {
		cfg, err = config.Load(c.configPath)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", c.configPath)
		}
		return err
	}
	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("invalid --log-level %q; valid values: debug, info, warn, error", c.logLevel)
		}
		c.overrides = append(c.overrides, config.WithLogLevel(lvl))
	}
	cfg = cfg.WithOverrides(c.overrides...)
	c.cfg = cfg

	c.level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: c.level})))

	cat, err := loadCatalog(cfg.Server.CatalogPath)
	if err != nil {
		return err
	}
	c.catalog = cat
	slog.Debug("motto: configuration loaded",
		"config", c.configPath,
		"catalog_entries", cat.Len(),
		"log_level", cfg.Server.LogLevel,
	)
	return nil
}

// loadCatalog reads the catalog table at path, or returns the built-in
// catalog when path is empty.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	defer f.Close()
	cat, err := catalog.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	return cat, nil
}
