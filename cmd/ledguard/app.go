// cmd/ledguard/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/Stani56/Stanis-Clock-sub003/internal/config"
	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver/memory"
	mbdriver "github.com/Stani56/Stanis-Clock-sub003/internal/driver/modbus"
	"github.com/Stani56/Stanis-Clock-sub003/internal/faultlog"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/policy"
	"github.com/Stani56/Stanis-Clock-sub003/internal/recovery"
	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
	"github.com/Stani56/Stanis-Clock-sub003/internal/scheduler"
	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// app is the fully wired diagnosis stack for one display.
type app struct {
	cfg *config.Config
	log *slog.Logger

	port       driver.Port
	bank       *memory.Bank // nil unless driver.mode is memory
	state      *display.State
	transition *display.Transition
	updater    *display.Updater
	frame      matrix.Matrix

	comparator *validation.Comparator
	stats      *stats.Stats
	store      *policy.FileStore
	policy     *policy.Handle
	recovery   *recovery.Orchestrator
	scheduler  *scheduler.Scheduler

	registry *prometheus.Registry
	faults   *faultlog.Log // nil when disabled

	closers []func() error
}

// buildApp wires every component from cfg. restarter may be nil.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, restarter scheduler.Restarter) (*app, error) {
	a := &app{
		cfg:        cfg,
		log:        log,
		transition: &display.Transition{},
		registry:   prometheus.NewRegistry(),
	}
	lockTimeout := ms(cfg.Display.LockMs)

	// ---- driver ----
	switch cfg.Driver.Mode {
	case config.DriverModbus:
		p, err := mbdriver.New(mbdriver.Config{
			Endpoint:   cfg.Driver.Endpoint,
			Timeout:    ms(cfg.Driver.TimeoutMs),
			Layout:     layoutOf(cfg.Driver.Layout),
			Brightness: cfg.Driver.Brightness,
		})
		if err != nil {
			return nil, err
		}
		a.port = p
		a.closers = append(a.closers, p.Close)
	default:
		a.bank = memory.NewBank(cfg.Driver.Brightness)
		a.port = a.bank
	}

	// ---- display ----
	a.state = display.NewState(lockTimeout)
	a.updater = display.NewUpdater(a.state, a.port, a.transition, log)
	a.frame = frameOf(cfg.Display)

	// ---- diagnosis ----
	var err error
	a.comparator, err = validation.NewComparator(validation.ComparatorConfig{
		Generator: display.Static{Frame: a.frame},
		State:     a.state,
		Port:      a.port,
		Logger:    log,
	})
	if err != nil {
		return nil, a.fail(err)
	}

	a.stats = stats.New(lockTimeout, nil)
	a.store = &policy.FileStore{Path: cfg.Policy.Path}
	a.policy = policy.Open(a.store, lockTimeout, log)

	a.recovery, err = recovery.New(recovery.Config{
		Port:      a.port,
		State:     a.state,
		Stats:     a.stats,
		Attempts:  cfg.Recovery.Attempts,
		Backoff:   ms(cfg.Recovery.BackoffMs),
		BusSettle: ms(cfg.Recovery.BusSettleMs),
		Logger:    log,
	})
	if err != nil {
		return nil, a.fail(err)
	}

	// ---- reporting ----
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reporters := report.Multi{
		report.LogReporter{Logger: log},
		report.NewMetrics(a.registry),
	}

	sr, closeStatus, ok, err := report.BuildStatusReporter(cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	if ok {
		reporters = append(reporters, sr)
		a.closers = append(a.closers, closeStatus)
	}

	if cfg.FaultLog.Path != "" {
		a.faults, err = faultlog.Open(ctx, cfg.FaultLog.Path)
		if err != nil {
			return nil, a.fail(err)
		}
		reporters = append(reporters, a.faults)
		a.closers = append(a.closers, a.faults.Close)
	}

	// ---- scheduler ----
	v := cfg.Validation
	a.scheduler, err = scheduler.New(scheduler.Config{
		Validator:    a.comparator,
		Recoverer:    a.recovery,
		Stats:        a.stats,
		Policy:       a.policy,
		Transition:   a.transition,
		Reporter:     reporters,
		Restarter:    restarter,
		OnDemand:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(v.OnDemandPerMin)), 1),
		Settle:       ms(v.SettleMs),
		Defer:        ms(v.DeferMs),
		DisabledPoll: ms(v.DisabledPollMs),
		StartupDelay: ms(v.StartupDelayMs),
		RestartDelay: ms(v.RestartDelayMs),
		Logger:       log,
	})
	if err != nil {
		return nil, a.fail(err)
	}
	return a, nil
}

// start sets the global brightness and pushes the first frame.
func (a *app) start(ctx context.Context) error {
	if err := a.port.SetGlobalBrightness(ctx, a.cfg.Driver.Brightness); err != nil {
		return fmt.Errorf("set global brightness: %w", err)
	}
	n, err := a.updater.Show(ctx, a.frame)
	if err != nil {
		return fmt.Errorf("initial frame: %w", err)
	}
	a.log.Info("initial frame shown", "written", n)
	return nil
}

// selfTest runs the readback probe and logs the outcome.
func (a *app) selfTest(ctx context.Context) (recovery.SelfTestReport, error) {
	rep, err := recovery.SelfTest(ctx, a.port, a.state)
	if err != nil {
		return rep, err
	}
	for _, p := range rep.Chips {
		if !p.OK() {
			a.log.Warn("self-test probe failed", "chip", p.Chip, "wrote", p.Wrote, "read", p.Read, "err", p.Err)
		}
	}
	if rep.Passed() {
		a.log.Info("self-test passed")
	} else {
		a.log.Error("self-test failed", "chips", rep.Failed())
	}
	return rep, nil
}

// softRestart reinitializes every chip and re-pushes the whole frame.
// The mirror is cleared first so every lit LED is rewritten.
func (a *app) softRestart(ctx context.Context, cause error) {
	a.log.Warn("soft restart", "cause", cause)

	if err := a.port.ReinitAll(ctx); err != nil {
		a.log.Error("soft restart: reinit failed", "err", err)
	}
	if err := a.port.SetGlobalBrightness(ctx, a.cfg.Driver.Brightness); err != nil {
		a.log.Error("soft restart: brightness failed", "err", err)
	}
	if err := a.state.Update(func(m *matrix.Matrix) { *m = matrix.Matrix{} }); err != nil {
		a.log.Error("soft restart: display state unavailable", "err", err)
		return
	}
	if _, err := a.updater.Show(ctx, a.frame); err != nil {
		a.log.Error("soft restart: frame not fully restored", "err", err)
		return
	}
	a.log.Info("soft restart complete")
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fail closes what was opened so far and passes err through.
func (a *app) fail(err error) error {
	_ = a.close()
	return err
}

func frameOf(d config.DisplayConfig) matrix.Matrix {
	lit := make([]matrix.Coord, 0, len(d.Lit))
	for _, rc := range d.Lit {
		lit = append(lit, matrix.Coord{Row: rc[0], Col: rc[1]})
	}
	return display.FrameOf(d.Intensity, lit...)
}

func layoutOf(l *config.LayoutConfig) mbdriver.Layout {
	if l == nil {
		return mbdriver.DefaultLayout
	}
	return mbdriver.Layout{
		BaseUnitID:        l.BaseUnitID,
		PWMAddress:        l.PWMAddress,
		BrightnessAddress: l.BrightnessAddress,
		FaultAddress:      l.FaultAddress,
		ResetCoil:         l.ResetCoil,
		ReinitCoil:        l.ReinitCoil,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
