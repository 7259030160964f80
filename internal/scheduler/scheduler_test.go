// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver/memory"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/policy"
	"github.com/Stani56/Stanis-Clock-sub003/internal/recovery"
	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// ---- fakes ----

type staticPolicy struct {
	mu sync.Mutex
	p  policy.Policy
}

func (s *staticPolicy) Get() (policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, nil
}

func (s *staticPolicy) set(fn func(p *policy.Policy)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.p)
}

type passLog struct {
	mu     sync.Mutex
	passes []report.Pass
	ch     chan report.Pass
}

func newPassLog() *passLog { return &passLog{ch: make(chan report.Pass, 64)} }

func (l *passLog) Report(_ context.Context, p report.Pass) error {
	l.mu.Lock()
	l.passes = append(l.passes, p)
	l.mu.Unlock()
	l.ch <- p
	return nil
}

func (l *passLog) next(t *testing.T) report.Pass {
	t.Helper()
	select {
	case p := <-l.ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("no pass reported")
		return report.Pass{}
	}
}

type restartLog struct {
	mu     sync.Mutex
	causes []error
}

func (r *restartLog) Restart(_ context.Context, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
}

func (r *restartLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.causes)
}

// blockingValidator holds a pass open until released.
type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func newBlockingValidator() *blockingValidator {
	return &blockingValidator{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingValidator) Compare(ctx context.Context) validation.Result {
	b.entered <- struct{}{}
	<-b.release
	b.ctxErr = ctx.Err()
	return validation.Result{Valid: true}
}

// ---- rig ----

type rig struct {
	bank     *memory.Bank
	state    *display.State
	frame    matrix.Matrix
	trans    *display.Transition
	stats    *stats.Stats
	pol      *staticPolicy
	passes   *passLog
	restarts *restartLog
	sched    *Scheduler
}

func newRig(t *testing.T, mutate func(cfg *Config)) *rig {
	t.Helper()

	var frame matrix.Matrix
	matrix.Each(func(c matrix.Coord) {
		if (c.Row*matrix.Cols+c.Col)%4 == 0 {
			frame.Set(c, 150)
		}
	})

	r := &rig{
		bank:     memory.NewBank(120),
		state:    display.NewState(30 * time.Millisecond),
		frame:    frame,
		trans:    &display.Transition{},
		stats:    stats.New(time.Second, nil),
		pol:      &staticPolicy{p: policy.Default()},
		passes:   newPassLog(),
		restarts: &restartLog{},
	}
	r.bank.Load(frame)
	require.NoError(t, r.state.Update(func(m *matrix.Matrix) { *m = frame }))

	cmp, err := validation.NewComparator(validation.ComparatorConfig{
		Generator: display.Static{Frame: frame},
		State:     r.state,
		Port:      r.bank,
	})
	require.NoError(t, err)
	orch, err := recovery.New(recovery.Config{
		Port:      r.bank,
		State:     r.state,
		Stats:     r.stats,
		Backoff:   time.Millisecond,
		BusSettle: time.Millisecond,
	})
	require.NoError(t, err)

	cfg := Config{
		Validator:    cmp,
		Recoverer:    orch,
		Stats:        r.stats,
		Policy:       r.pol,
		Transition:   r.trans,
		Reporter:     r.passes,
		Restarter:    r.restarts,
		Defer:        5 * time.Millisecond,
		DisabledPoll: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r.sched, err = New(cfg)
	require.NoError(t, err)
	return r
}

func (r *rig) counters(t *testing.T) stats.Statistics {
	t.Helper()
	s, err := r.stats.Snapshot()
	require.NoError(t, err)
	return s
}

// runUntilPass starts Run, waits for one reported pass and stops.
func (r *rig) runUntilPass(t *testing.T) report.Pass {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sched.Run(ctx) }()

	p := r.passes.next(t)
	cancel()
	require.NoError(t, <-done)
	return p
}

// ---- end-to-end scenarios ----

func TestScenarioAllSourcesAgree(t *testing.T) {
	r := newRig(t, nil)

	p, err := r.sched.ValidateNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, validation.None, p.Kind)
	assert.Equal(t, report.NotAttempted, p.Recovery)
	assert.Equal(t, 100, p.Health)
	assert.False(t, p.Restart)
	assert.Equal(t, uint64(1), p.Stats.TotalValidations)
}

func TestScenarioSystematicMismatchRecoveredOnDemand(t *testing.T) {
	r := newRig(t, nil)
	n := 0
	matrix.Each(func(c matrix.Coord) {
		if n < 35 {
			r.bank.Corrupt(c, r.frame.At(c)^0x40)
			n++
		}
	})

	p, err := r.sched.ValidateNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, validation.SystematicMismatch, p.Kind)
	assert.Equal(t, 35, p.Result.HardwareMismatches())
	assert.Equal(t, report.Recovered, p.Recovery)
	assert.Equal(t, 35, r.bank.Writes())

	again, err := r.sched.ValidateNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, validation.None, again.Kind)
}

func TestScenarioBusFailureRecoveredPeriodically(t *testing.T) {
	r := newRig(t, nil)
	for chip := 0; chip < matrix.Rows; chip++ {
		r.bank.Disconnect(chip, true)
	}

	p := r.runUntilPass(t)

	assert.Equal(t, report.Periodic, p.Trigger)
	assert.Equal(t, validation.BusFailure, p.Kind)
	assert.Equal(t, report.Recovered, p.Recovery)
	assert.Equal(t, 1, r.bank.ReinitAllCalls())
	assert.False(t, p.Restart)
	assert.Zero(t, r.restarts.count())
}

func TestScenarioHardwareFaultRecoveredOnDemand(t *testing.T) {
	r := newRig(t, nil)
	r.bank.SetFaultFlags(3, 0x0008, false)

	p, err := r.sched.ValidateNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, validation.HardwareFault, p.Kind)
	assert.Zero(t, p.Result.HardwareMismatches())
	assert.Equal(t, report.Recovered, p.Recovery)
	assert.Equal(t, 1, r.bank.Resets(3))
	assert.Equal(t, 1, r.bank.Reinits(3))
}

func TestScenarioGlobalBrightnessRecoveredOnDemand(t *testing.T) {
	r := newRig(t, nil)
	r.bank.CorruptBrightness(8, 100, false)

	p, err := r.sched.ValidateNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, validation.GlobalBrightnessMismatch, p.Kind)
	assert.Equal(t, report.Recovered, p.Recovery)
	assert.Equal(t, uint8(120), p.Result.ExpectedBrightness)
	assert.Equal(t, uint8(100), p.Result.Brightness[8].Value)
}

func TestScenarioSoftwareOnlyIsNoOp(t *testing.T) {
	r := newRig(t, nil)
	wrong := []matrix.Coord{{Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}}
	require.NoError(t, r.state.Update(func(m *matrix.Matrix) {
		for _, c := range wrong {
			m.Set(c, 60)
		}
	}))
	for _, c := range wrong {
		r.bank.Corrupt(c, 60)
	}

	p, err := r.sched.ValidateNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, validation.SoftwareOnlyError, p.Kind)
	assert.Equal(t, report.NotAttempted, p.Recovery)
	assert.Zero(t, r.bank.Writes())
	assert.Zero(t, p.Stats.RecoveryAttempts)
}

// ---- recovery scope ----

func TestPeriodicPathDoesNotRecoverMismatches(t *testing.T) {
	r := newRig(t, nil)
	r.bank.Corrupt(matrix.Coord{Row: 5, Col: 5}, 33)

	p := r.runUntilPass(t)

	assert.Equal(t, validation.PartialMismatch, p.Kind)
	assert.Equal(t, report.NotAttempted, p.Recovery)
	assert.Zero(t, r.bank.Writes())
	assert.Equal(t, uint64(1), r.counters(t).PartialMismatches)
}

func TestShouldRecover(t *testing.T) {
	for _, k := range validation.Kinds() {
		noop := k == validation.None || k == validation.SoftwareOnlyError
		assert.Equal(t, !noop, shouldRecover(report.OnDemand, k), k.String())
		assert.Equal(t, k == validation.BusFailure, shouldRecover(report.Periodic, k), k.String())
	}
}

// ---- guards ----

func TestValidateNowRejectsWhileBusy(t *testing.T) {
	bv := newBlockingValidator()
	r := newRig(t, func(cfg *Config) { cfg.Validator = bv })

	first := make(chan error, 1)
	go func() {
		_, err := r.sched.ValidateNow(context.Background())
		first <- err
	}()
	<-bv.entered

	_, err := r.sched.ValidateNow(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, Sampling, r.sched.State())

	close(bv.release)
	require.NoError(t, <-first)
	assert.Equal(t, Idle, r.sched.State())
}

func TestPeriodicAndOnDemandNeverOverlap(t *testing.T) {
	bv := newBlockingValidator()
	r := newRig(t, func(cfg *Config) { cfg.Validator = bv })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sched.Run(ctx) }()
	<-bv.entered

	_, err := r.sched.ValidateNow(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	cancel()
	close(bv.release)
	require.NoError(t, <-done)
}

func TestValidateNowRefusals(t *testing.T) {
	r := newRig(t, nil)

	r.trans.Begin()
	_, err := r.sched.ValidateNow(context.Background())
	assert.ErrorIs(t, err, ErrInTransition)
	r.trans.End()

	r.pol.set(func(p *policy.Policy) { p.Enabled = false })
	_, err = r.sched.ValidateNow(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)

	assert.Zero(t, r.counters(t).TotalValidations)
}

func TestValidateNowRateLimited(t *testing.T) {
	r := newRig(t, func(cfg *Config) {
		cfg.OnDemand = rate.NewLimiter(rate.Every(time.Hour), 1)
	})

	_, err := r.sched.ValidateNow(context.Background())
	require.NoError(t, err)

	_, err = r.sched.ValidateNow(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)

	// the guard is released after a refusal
	assert.True(t, r.sched.busy.CompareAndSwap(false, true))
}

func TestPeriodicDefersDuringTransition(t *testing.T) {
	r := newRig(t, nil)
	r.trans.Begin()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sched.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, r.counters(t).TotalValidations)

	r.trans.End()
	p := r.passes.next(t)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, validation.None, p.Kind)
}

func TestPeriodicWaitsWhileDisabled(t *testing.T) {
	r := newRig(t, nil)
	r.pol.set(func(p *policy.Policy) { p.Enabled = false })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sched.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, r.counters(t).TotalValidations)

	r.pol.set(func(p *policy.Policy) { p.Enabled = true })
	r.passes.next(t)
	cancel()
	require.NoError(t, <-done)
}

func TestSkippedPassIsNotRecorded(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.state.Lock())

	p, err := r.sched.ValidateNow(context.Background())
	r.state.Unlock()

	require.NoError(t, err)
	assert.True(t, p.Result.Skipped)
	assert.Equal(t, validation.None, p.Kind)
	assert.Zero(t, p.Stats.TotalValidations)
}

// ---- restart gate ----

func TestRestartGate(t *testing.T) {
	r := newRig(t, nil)
	for chip := 0; chip < matrix.Rows; chip++ {
		r.bank.Disconnect(chip, false)
	}

	for i := 0; i < 3; i++ {
		p, err := r.sched.ValidateNow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, validation.BusFailure, p.Kind)
		assert.Equal(t, report.RecoveryFailed, p.Recovery)
		assert.True(t, p.Restart)
	}

	// session budget spent
	p, err := r.sched.ValidateNow(context.Background())
	require.NoError(t, err)
	assert.False(t, p.Restart)

	assert.Equal(t, 3, r.restarts.count())
	assert.Equal(t, 3, r.sched.SessionRestarts())
	for _, cause := range r.restarts.causes {
		assert.True(t, errors.Is(cause, ErrRestart))
	}
	assert.Equal(t, uint64(3), r.counters(t).AutomaticRestarts)
}

func TestRestartGateNeedsPolicyFlag(t *testing.T) {
	r := newRig(t, nil)
	bad := matrix.Coord{Row: 2, Col: 7}
	r.bank.Corrupt(bad, 99)
	r.bank.RejectWrites(bad)

	p, err := r.sched.ValidateNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, validation.PartialMismatch, p.Kind)
	assert.Equal(t, report.RecoveryFailed, p.Recovery)
	assert.False(t, p.Restart)

	r.pol.set(func(p *policy.Policy) { p.RestartOn.PartialMismatch = true })
	p, err = r.sched.ValidateNow(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Restart)
}

func TestRestartGateSkipsRecoveredFailure(t *testing.T) {
	r := newRig(t, nil)
	for chip := 0; chip < matrix.Rows; chip++ {
		r.bank.Disconnect(chip, true)
	}

	p, err := r.sched.ValidateNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, report.Recovered, p.Recovery)
	assert.False(t, p.Restart)
	assert.Zero(t, r.restarts.count())
}

func TestRestartBudgetReservedInsidePass(t *testing.T) {
	r := newRig(t, nil)
	r.pol.set(func(p *policy.Policy) { p.MaxRestartsPerSession = 1 })
	for chip := 0; chip < matrix.Rows; chip++ {
		r.bank.Disconnect(chip, false)
	}
	pol, err := r.pol.Get()
	require.NoError(t, err)

	// two passes completing before either restart runs
	first, err := r.sched.pass(context.Background(), report.Periodic, pol)
	require.NoError(t, err)
	second, err := r.sched.pass(context.Background(), report.OnDemand, pol)
	require.NoError(t, err)

	assert.True(t, first.Restart)
	assert.False(t, second.Restart)
	assert.Equal(t, 1, r.sched.SessionRestarts())
	assert.Zero(t, r.restarts.count())
}

// ---- transition during settle ----

// lateTransition turns active after the first Active call.
type lateTransition struct {
	calls atomic.Int32
}

func (l *lateTransition) Active() bool { return l.calls.Add(1) > 1 }

func TestTransitionDuringSettleDefersPass(t *testing.T) {
	tr := &lateTransition{}
	r := newRig(t, func(cfg *Config) {
		cfg.Transition = tr
		cfg.Settle = 5 * time.Millisecond
	})

	_, err := r.sched.ValidateNow(context.Background())

	assert.ErrorIs(t, err, ErrInTransition)
	assert.Zero(t, r.counters(t).TotalValidations)
	assert.Empty(t, r.passes.ch)
	assert.Equal(t, Idle, r.sched.State())
	assert.True(t, r.sched.busy.CompareAndSwap(false, true))
}

// ---- shutdown ----

func TestShutdownFinishesInFlightPass(t *testing.T) {
	bv := newBlockingValidator()
	r := newRig(t, func(cfg *Config) { cfg.Validator = bv })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sched.Run(ctx) }()
	<-bv.entered

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned with a pass in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(bv.release)
	require.NoError(t, <-done)
	assert.NoError(t, bv.ctxErr)
	assert.Equal(t, uint64(1), r.counters(t).TotalValidations)
}

func TestTriggerAndWait(t *testing.T) {
	r := newRig(t, nil)

	r.sched.Trigger(context.Background())
	r.sched.Wait()

	p := r.passes.next(t)
	assert.Equal(t, report.OnDemand, p.Trigger)
}
