package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/motto/internal/config"
	"github.com/MrWong99/motto/internal/gateway"
	"github.com/MrWong99/motto/internal/health"
	"github.com/MrWong99/motto/internal/observe"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func (c *cli) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve voice-command sessions over WebSocket",
		Long: `Serve accepts WebSocket sessions on ` + gateway.Path + `, exposes /healthz,
/readyz and Prometheus metrics on /metrics. When --config is set the file is
watched and changes apply to sessions started afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				o := config.WithListenAddr(addr)
				c.overrides = append(c.overrides, o)
				c.cfg = c.cfg.WithOverrides(o)
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "override server.listen_addr")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("motto: telemetry shutdown", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()
	gw := gateway.New(c.catalog, c.cfg, gateway.WithMetrics(metrics))
	defer gw.Close()

	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, c.reload(gw))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	mux := http.NewServeMux()
	gw.Register(mux)
	health.New([]health.Checker{
		health.CatalogChecker(c.catalog),
		health.ConfigChecker(gw.Config),
	}, health.WithVersion(version)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              c.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("motto: listening",
			"addr", srv.Addr,
			"catalog_entries", c.catalog.Len(),
			"wake_phrase", c.cfg.Wake.Phrase,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("motto: shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		gw.Close()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// reload returns the watcher callback that applies a changed configuration.
func (c *cli) reload(gw *gateway.Server) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		old, new = old.WithOverrides(c.overrides...), new.WithOverrides(c.overrides...)
		d := config.Diff(old, new)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged {
			c.level.Set(d.NewLogLevel.SlogLevel())
		}
		gw.Apply(new)
		slog.Info("motto: configuration reloaded", "sections", d.Sections)
		if d.RestartRequired {
			slog.Warn("motto: server.listen_addr or server.catalog_path changed; restart to apply")
		}
	}
}
