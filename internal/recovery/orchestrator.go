// internal/recovery/orchestrator.go
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// Defaults for Config.
const (
	DefaultAttempts  = 3
	DefaultBackoff   = 100 * time.Millisecond
	DefaultBusSettle = 50 * time.Millisecond

	// BusQuorumPercent is the share of chips that must answer after a
	// bus reinit.
	BusQuorumPercent = 80
)

// Recorder receives recovery counters.
type Recorder interface {
	RecordRecoveryAttempt() error
	RecordRecoveryOutcome(ok bool) error
}

// Config wires an Orchestrator. Zero durations and attempts select the
// defaults above.
type Config struct {
	Port      driver.Port
	State     *display.State
	Stats     Recorder
	Attempts  int
	Backoff   time.Duration
	BusSettle time.Duration
	Logger    *slog.Logger
}

// Orchestrator runs the recovery procedure for a classified result in a
// bounded retry loop.
type Orchestrator struct {
	port      driver.Port
	state     *display.State
	stats     Recorder
	attempts  int
	backoff   time.Duration
	busSettle time.Duration
	log       *slog.Logger
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Port == nil {
		return nil, errors.New("recovery: driver port required")
	}
	if cfg.State == nil {
		return nil, errors.New("recovery: display state required")
	}
	if cfg.Stats == nil {
		return nil, errors.New("recovery: stats recorder required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.BusSettle <= 0 {
		cfg.BusSettle = DefaultBusSettle
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		port:      cfg.Port,
		state:     cfg.State,
		stats:     cfg.Stats,
		attempts:  cfg.Attempts,
		backoff:   cfg.Backoff,
		busSettle: cfg.BusSettle,
		log:       cfg.Logger.With("component", "recovery"),
	}, nil
}

// Recover tries to correct the condition described by res and k.
// None and SoftwareOnlyError are a no-op success: nothing is written and
// no counter moves.
func (o *Orchestrator) Recover(ctx context.Context, res validation.Result, k validation.Kind) bool {
	proc := o.procedure(k)
	if proc == nil {
		return true
	}

	log := o.log.With("kind", k.String())
	ok := false
	for attempt := 1; attempt <= o.attempts; attempt++ {
		if err := o.stats.RecordRecoveryAttempt(); err != nil {
			log.Warn("recovery attempt not counted", "err", err)
		}

		ok = proc(ctx, res)
		log.Info("recovery attempt", "attempt", attempt, "of", o.attempts, "ok", ok)
		if ok || attempt == o.attempts {
			break
		}
		if !sleep(ctx, o.backoff) {
			log.Warn("recovery interrupted", "err", ctx.Err())
			break
		}
	}

	if err := o.stats.RecordRecoveryOutcome(ok); err != nil {
		log.Warn("recovery outcome not counted", "err", err)
	}
	if ok {
		log.Info("recovery succeeded")
	} else {
		log.Error("recovery failed")
	}
	return ok
}

type procedure func(ctx context.Context, res validation.Result) bool

func (o *Orchestrator) procedure(k validation.Kind) procedure {
	switch k {
	case validation.None, validation.SoftwareOnlyError:
		return nil
	case validation.HardwareFault:
		return o.recoverFaults
	case validation.BusFailure:
		return o.recoverBus
	case validation.SystematicMismatch, validation.PartialMismatch:
		return o.rewriteMismatches
	case validation.GlobalBrightnessMismatch:
		return o.restoreBrightness
	default:
		return nil
	}
}

// ------------------------------------------------------------
// HARDWARE FAULT: reset + reinit every faulted chip
// ------------------------------------------------------------

// recoverFaults succeeds when at least one faulted chip comes back with
// clear flags.
func (o *Orchestrator) recoverFaults(ctx context.Context, res validation.Result) bool {
	chips := res.FaultyChipList()
	if len(chips) == 0 {
		return true
	}

	mirror, err := o.state.Snapshot()
	if err != nil {
		o.log.Warn("display state unavailable for fault recovery", "err", err)
		return false
	}

	recovered := 0
	for _, chip := range chips {
		if err := o.port.Reset(ctx, chip); err != nil {
			o.log.Warn("chip reset failed", "chip", chip, "err", err)
			continue
		}
		if err := o.port.Reinit(ctx, chip); err != nil {
			o.log.Warn("chip reinit failed", "chip", chip, "err", err)
			continue
		}
		o.restoreRow(ctx, &mirror, chip)

		flags, err := o.port.ReadFaultFlags(ctx, chip)
		if err != nil || flags != 0 {
			o.log.Warn("chip still faulted", "chip", chip, "flags", flags, "err", err)
			continue
		}
		recovered++
	}
	return recovered > 0
}

// ------------------------------------------------------------
// BUS FAILURE: settle, reinit all, verify quorum
// ------------------------------------------------------------

func (o *Orchestrator) recoverBus(ctx context.Context, _ validation.Result) bool {
	if !sleep(ctx, o.busSettle) {
		return false
	}
	if err := o.port.ReinitAll(ctx); err != nil {
		// Verification below decides; a partial reinit may still reach quorum.
		o.log.Warn("reinit all reported errors", "err", err)
	}
	if !sleep(ctx, o.busSettle) {
		return false
	}

	var responding []int
	for chip := 0; chip < matrix.Rows; chip++ {
		if _, err := o.port.ReadChip(ctx, chip); err == nil {
			responding = append(responding, chip)
		}
	}

	ok := len(responding)*100 >= matrix.Rows*BusQuorumPercent
	o.log.Info("bus verification", "responding", len(responding), "of", matrix.Rows, "ok", ok)
	if !ok {
		return false
	}

	mirror, err := o.state.Snapshot()
	if err != nil {
		o.log.Warn("display state unavailable, mirror not restored", "err", err)
		return true
	}
	for _, chip := range responding {
		o.restoreRow(ctx, &mirror, chip)
	}
	return true
}

// ------------------------------------------------------------
// SYSTEMATIC / PARTIAL MISMATCH: rewrite intended values
// ------------------------------------------------------------

// rewriteMismatches writes the intended value of every itemized
// mismatch and moves the mirror along with each successful write.
func (o *Orchestrator) rewriteMismatches(ctx context.Context, res validation.Result) bool {
	items := res.Hardware.Items()
	if res.Hardware.Truncated() {
		o.log.Warn("mismatch set truncated, rewriting itemized subset",
			"itemized", len(items),
			"total", res.HardwareMismatches(),
		)
	}

	failed := 0
	for _, m := range items {
		if err := o.port.Write(ctx, m.Coord, m.Intended); err != nil {
			failed++
			o.log.Debug("rewrite failed", "led", m.Coord.String(), "err", err)
			continue
		}
		if err := o.state.Set(m.Coord, m.Intended); err != nil {
			o.log.Warn("mirror not updated after rewrite", "led", m.Coord.String(), "err", err)
		}
	}
	if failed > 0 {
		o.log.Warn("rewrite incomplete", "failed", failed, "of", len(items))
	}
	return failed == 0
}

// ------------------------------------------------------------
// GLOBAL BRIGHTNESS: rewrite, verify unanimity
// ------------------------------------------------------------

func (o *Orchestrator) restoreBrightness(ctx context.Context, _ validation.Result) bool {
	want := o.port.ExpectedBrightness()
	if err := o.port.SetGlobalBrightness(ctx, want); err != nil {
		o.log.Warn("brightness rewrite reported errors", "err", err)
	}

	agree := 0
	for chip := 0; chip < matrix.Rows; chip++ {
		v, err := o.port.ReadGlobalBrightness(ctx, chip)
		if err != nil {
			o.log.Debug("brightness readback failed", "chip", chip, "err", err)
			continue
		}
		if v == want {
			agree++
		}
	}
	o.log.Info("brightness verification", "agree", agree, "of", matrix.Rows, "want", want)
	return agree == matrix.Rows
}

// restoreRow writes the mirror values of one chip back to the hardware
// after a reset or reinit. Failures are logged only; the next pass will
// see them.
func (o *Orchestrator) restoreRow(ctx context.Context, mirror *matrix.Matrix, chip int) {
	for col := 0; col < matrix.Cols; col++ {
		at := matrix.Coord{Row: chip, Col: col}
		if err := o.port.Write(ctx, at, mirror.At(at)); err != nil {
			o.log.Debug("mirror restore failed", "led", at.String(), "err", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
