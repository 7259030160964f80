// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/policy"
	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

var (
	// ErrBusy is returned when another pass is running.
	ErrBusy = errors.New("scheduler: validation already running")
	// ErrDisabled is returned when validation is switched off by policy.
	ErrDisabled = errors.New("scheduler: validation disabled")
	// ErrInTransition is returned while the display is animating.
	ErrInTransition = errors.New("scheduler: display transition active")
	// ErrRateLimited is returned when on-demand passes come too fast.
	ErrRateLimited = errors.New("scheduler: on-demand validation rate limited")
	// ErrRestart is the cause handed to the Restarter.
	ErrRestart = errors.New("scheduler: restart requested")
)

// Validator runs one comparison pass.
type Validator interface {
	Compare(ctx context.Context) validation.Result
}

// Recoverer attempts recovery for a classified result.
type Recoverer interface {
	Recover(ctx context.Context, res validation.Result, k validation.Kind) bool
}

// Recorder is the statistics surface the scheduler needs.
type Recorder interface {
	Record(k validation.Kind) error
	RecordRestart() error
	Snapshot() (stats.Statistics, error)
}

// PolicySource yields the current policy.
type PolicySource interface {
	Get() (policy.Policy, error)
}

// Restarter performs the policy-gated restart. cause wraps ErrRestart.
type Restarter interface {
	Restart(ctx context.Context, cause error)
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context, cause error)

func (f RestarterFunc) Restart(ctx context.Context, cause error) { f(ctx, cause) }

// Config wires a Scheduler.
type Config struct {
	Validator  Validator
	Recoverer  Recoverer
	Stats      Recorder
	Policy     PolicySource
	Transition display.TransitionStatus
	Reporter   report.Reporter  // optional
	Restarter  Restarter        // optional; nil never restarts
	OnDemand   *rate.Limiter    // optional; nil is unlimited
	NewID      func() uuid.UUID // optional

	Settle       time.Duration // wait before sampling
	Defer        time.Duration // retry delay while a transition runs
	DisabledPoll time.Duration // retry delay while disabled
	StartupDelay time.Duration
	RestartDelay time.Duration

	Logger *slog.Logger
}

// Scheduler sequences compare, classify, recover, record and report,
// from a periodic loop and from on-demand requests. At most one pass
// runs at a time.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	busy     atomic.Bool
	state    atomic.Uint32
	restarts atomic.Uint32 // this session

	polMu   sync.Mutex
	lastPol policy.Policy

	wg sync.WaitGroup
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Validator == nil:
		return nil, errors.New("scheduler: validator required")
	case cfg.Recoverer == nil:
		return nil, errors.New("scheduler: recoverer required")
	case cfg.Stats == nil:
		return nil, errors.New("scheduler: stats required")
	case cfg.Policy == nil:
		return nil, errors.New("scheduler: policy required")
	case cfg.Transition == nil:
		return nil, errors.New("scheduler: transition status required")
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.New
	}
	if cfg.DisabledPoll <= 0 {
		cfg.DisabledPoll = 5 * time.Second
	}
	if cfg.Defer <= 0 {
		cfg.Defer = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "scheduler"),
		lastPol: policy.Default(),
	}, nil
}

// State returns the current state of the pipeline.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// SessionRestarts returns the restarts requested by this scheduler.
func (s *Scheduler) SessionRestarts() int { return int(s.restarts.Load()) }

// Run drives the periodic loop until ctx is done. A pass in flight when
// ctx is cancelled is finished, not aborted. Run waits for on-demand
// passes started with Trigger before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.wg.Wait()
	defer s.setState(Idle)

	s.log.Info("validation scheduler started")
	if !sleep(ctx, s.cfg.StartupDelay) {
		return nil
	}

	for ctx.Err() == nil {
		pol := s.policy()

		if !pol.Enabled {
			s.setState(Sleeping)
			s.log.Debug("validation disabled, waiting")
			sleep(ctx, s.cfg.DisabledPoll)
			continue
		}

		// Never sample while a transition is writing.
		if s.cfg.Transition.Active() {
			s.log.Debug("transition active, deferring pass")
			sleep(ctx, s.cfg.Defer)
			continue
		}

		if !s.busy.CompareAndSwap(false, true) {
			s.log.Info("pass already running, skipping cycle")
		} else {
			pass, err := s.pass(context.WithoutCancel(ctx), report.Periodic, pol)
			s.busy.Store(false)
			if errors.Is(err, ErrInTransition) {
				sleep(ctx, s.cfg.Defer)
				continue
			}
			if pass.Restart {
				s.restart(ctx, pass)
			}
		}

		s.setState(Sleeping)
		sleep(ctx, pol.Interval())
	}

	s.log.Info("validation scheduler stopped")
	return nil
}

// ValidateNow runs one pass immediately, recovering every failure kind.
func (s *Scheduler) ValidateNow(ctx context.Context) (report.Pass, error) {
	pol := s.policy()
	if !pol.Enabled {
		return report.Pass{}, ErrDisabled
	}
	if s.cfg.Transition.Active() {
		return report.Pass{}, ErrInTransition
	}
	if !s.busy.CompareAndSwap(false, true) {
		return report.Pass{}, ErrBusy
	}
	if s.cfg.OnDemand != nil && !s.cfg.OnDemand.Allow() {
		s.busy.Store(false)
		return report.Pass{}, ErrRateLimited
	}

	pass, err := s.pass(context.WithoutCancel(ctx), report.OnDemand, pol)
	s.busy.Store(false)
	s.setState(Idle)
	if err != nil {
		return report.Pass{}, err
	}

	if pass.Restart {
		s.restart(ctx, pass)
	}
	return pass, nil
}

// Trigger starts an on-demand pass in the background. It is meant to be
// hooked to display updates; refusals are logged at debug level.
func (s *Scheduler) Trigger(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if _, err := s.ValidateNow(ctx); err != nil {
			s.log.Debug("on-demand validation not run", "err", err)
		}
	}()
}

// Wait blocks until every pass started with Trigger has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// pass runs the pipeline once. The caller holds the reentrancy guard.
// It returns ErrInTransition, having sampled nothing, when a transition
// began during the settle delay.
func (s *Scheduler) pass(ctx context.Context, trig report.Trigger, pol policy.Policy) (report.Pass, error) {
	p := report.Pass{ID: s.cfg.NewID(), Trigger: trig}
	log := s.log.With("pass", p.ID.String(), "trigger", trig.String())

	s.setState(Sampling)
	sleep(ctx, s.cfg.Settle)
	if s.cfg.Transition.Active() {
		log.Debug("transition began during settle, deferring pass")
		return p, ErrInTransition
	}
	p.Result = s.cfg.Validator.Compare(ctx)

	s.setState(Classifying)
	p.Kind = validation.Classify(p.Result)

	if p.Result.Skipped {
		log.Warn("pass skipped, display state unavailable")
	} else {
		if err := s.cfg.Stats.Record(p.Kind); err != nil {
			log.Warn("pass not recorded", "err", err)
		}

		if shouldRecover(trig, p.Kind) {
			s.setState(Recovering)
			if s.cfg.Recoverer.Recover(ctx, p.Result, p.Kind) {
				p.Recovery = report.Recovered
			} else {
				p.Recovery = report.RecoveryFailed
			}
		} else if p.Failed() {
			log.Info("failure logged, not auto-recovered", "kind", p.Kind.String())
		}

		p.Restart = s.restartDue(pol, p)
	}

	st, err := s.cfg.Stats.Snapshot()
	if err != nil {
		log.Warn("statistics unavailable for report", "err", err)
	}
	p.Stats = st
	p.Health = stats.HealthScore(st)

	s.setState(Reporting)
	if s.cfg.Reporter != nil {
		if err := s.cfg.Reporter.Report(ctx, p); err != nil {
			log.Warn("report failed", "err", err)
		}
	}
	return p, nil
}

// shouldRecover: the periodic path only auto-recovers bus failures so
// recovery never masks a persistent display bug. On demand, every kind
// with a recovery procedure is attempted.
func shouldRecover(trig report.Trigger, k validation.Kind) bool {
	switch k {
	case validation.None, validation.SoftwareOnlyError:
		return false
	case validation.BusFailure:
		return true
	case validation.HardwareFault,
		validation.SystematicMismatch,
		validation.PartialMismatch,
		validation.GlobalBrightnessMismatch:
		return trig == report.OnDemand
	default:
		return false
	}
}

// restartDue applies the restart gate: the policy flag for the kind is
// set, the failure persisted and the session budget is not spent. A due
// restart reserves its budget slot here, while the guard is held.
func (s *Scheduler) restartDue(pol policy.Policy, p report.Pass) bool {
	if s.cfg.Restarter == nil || !p.Failed() || p.Recovery == report.Recovered {
		return false
	}
	if !pol.Restart(p.Kind) {
		return false
	}
	for {
		n := s.restarts.Load()
		if n >= pol.MaxRestartsPerSession {
			return false
		}
		if s.restarts.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Scheduler) restart(ctx context.Context, p report.Pass) {
	n := s.restarts.Load()
	if err := s.cfg.Stats.RecordRestart(); err != nil {
		s.log.Warn("restart not recorded", "err", err)
	}
	s.log.Error("persistent failure, restarting",
		"kind", p.Kind.String(),
		"pass", p.ID.String(),
		"session_restarts", n,
		"delay", s.cfg.RestartDelay,
	)

	if !sleep(ctx, s.cfg.RestartDelay) {
		return
	}
	s.cfg.Restarter.Restart(ctx, fmt.Errorf("%w: %s persisted", ErrRestart, p.Kind))
}

// policy returns the current policy, or the last one read when the
// policy lock cannot be taken in time.
func (s *Scheduler) policy() policy.Policy {
	s.polMu.Lock()
	defer s.polMu.Unlock()

	p, err := s.cfg.Policy.Get()
	if err != nil {
		s.log.Warn("policy unavailable, using last known", "err", err)
		return s.lastPol
	}
	s.lastPol = p
	return p
}

func (s *Scheduler) setState(st State) { s.state.Store(uint32(st)) }

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
