// cmd/ledguard/run.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/scheduler"
	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the display and validate it periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), v)
		},
	}
	cmd.Flags().Bool("exit-on-restart", false, "exit with status 75 instead of restarting in process")
	_ = v.BindPFlag("exit-on-restart", cmd.Flags().Lookup("exit-on-restart"))
	return cmd
}

func runDaemon(parent context.Context, v *viper.Viper) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var a *app
	var restarter scheduler.Restarter
	if v.GetBool("exit-on-restart") {
		restarter = scheduler.RestarterFunc(func(_ context.Context, cause error) {
			cancel(fmt.Errorf("%w: %w", errRestartExit, cause))
		})
	} else {
		restarter = scheduler.RestarterFunc(func(ctx context.Context, cause error) {
			a.softRestart(ctx, cause)
		})
	}

	a, err = buildApp(ctx, cfg, log, restarter)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn("shutdown close failed", "err", err)
		}
	}()

	log.Info("ledguard starting",
		"device", cfg.Device.Name,
		"driver", cfg.Driver.Mode,
		"lit", a.frame.LitCount(),
		"policy", cfg.Policy.Path,
	)

	if err := a.start(ctx); err != nil {
		return err
	}
	if cfg.Validation.SelfTestOnStart {
		if _, err := a.selfTest(ctx); err != nil {
			return err
		}
	}

	if cfg.Validation.ValidateOnWrite {
		a.updater.OnUpdate(func() { a.scheduler.Trigger(ctx) })
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	g.Go(func() error {
		a.updater.Run(gctx, display.Static{Frame: a.frame}, ms(cfg.Display.RefreshMs), nil)
		return nil
	})

	if cfg.Policy.Watch {
		g.Go(func() error {
			// Reload logs both outcomes.
			return a.store.Watch(gctx, log, func() { _ = a.policy.Reload() })
		})
	}

	if addr := cfg.Metrics.Listen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	a.scheduler.Wait()

	if cause := context.Cause(ctx); errors.Is(cause, errRestartExit) {
		log.Warn("exiting for supervisor restart", "cause", cause)
		return cause
	}
	log.Info("ledguard stopped")
	return err
}

// metricsMux serves /metrics plus the operator endpoints: on-demand
// validation and statistics query and reset.
func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /validate", func(w http.ResponseWriter, r *http.Request) {
		p, err := a.scheduler.ValidateNow(r.Context())
		switch {
		case errors.Is(err, scheduler.ErrBusy), errors.Is(err, scheduler.ErrInTransition):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, scheduler.ErrRateLimited):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		case errors.Is(err, scheduler.ErrDisabled):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "pass=%s kind=%s recovery=%s health=%d\n", p.ID, p.Kind, p.Recovery, p.Health)
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		st, err := a.stats.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			stats.Statistics
			Health int
		}{st, stats.HealthScore(st)})
	})
	mux.HandleFunc("POST /stats/reset", func(w http.ResponseWriter, _ *http.Request) {
		if err := a.stats.Reset(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		a.log.Info("statistics reset by operator")
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
