// internal/policy/handle.go
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/lock"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// Handle is the process-wide policy singleton. Changes are validated,
// committed in memory and then written back to the store.
type Handle struct {
	mu    *lock.Mutex
	store Store
	log   *slog.Logger
	cur   Policy

	// saveMu orders commit+save pairs so the stored record always
	// matches the last committed policy.
	saveMu sync.Mutex
}

// Open loads the stored policy. Any load failure falls back to
// Default(); the failure is logged, never returned.
func Open(store Store, timeout time.Duration, log *slog.Logger) *Handle {
	if log == nil {
		log = slog.Default()
	}
	h := &Handle{
		mu:    lock.New(timeout),
		store: store,
		log:   log.With("component", "policy"),
		cur:   Default(),
	}

	p, err := store.Load()
	switch {
	case err == nil:
		h.cur = p
	case errors.Is(err, ErrNotFound):
		h.log.Info("no stored policy, using defaults")
	default:
		h.log.Warn("stored policy unusable, using defaults", "err", err)
	}
	return h
}

// Get returns a copy of the current policy.
func (h *Handle) Get() (Policy, error) {
	var out Policy
	err := h.mu.Do(func() { out = h.cur })
	return out, err
}

// Update applies fn to a copy of the policy, validates the result and
// commits it. The new record is saved after the lock is released; a save
// error is returned but the in-memory change stands.
func (h *Handle) Update(fn func(p *Policy) error) error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	var (
		next    Policy
		changed bool
		fnErr   error
	)
	err := h.mu.Do(func() {
		next = h.cur
		if fnErr = fn(&next); fnErr != nil {
			return
		}
		if fnErr = next.Validate(); fnErr != nil {
			return
		}
		changed = next != h.cur
		h.cur = next
	})
	if err != nil {
		return err
	}
	if fnErr != nil {
		return fnErr
	}
	if !changed {
		return nil
	}

	h.log.Info("policy changed",
		"enabled", next.Enabled,
		"interval", next.Interval(),
		"max_restarts", next.MaxRestartsPerSession,
	)
	return h.store.Save(next)
}

// SetEnabled turns periodic validation on or off.
func (h *Handle) SetEnabled(on bool) error {
	return h.Update(func(p *Policy) error {
		p.Enabled = on
		return nil
	})
}

// SetInterval changes the validation period. It is rounded down to
// whole seconds.
func (h *Handle) SetInterval(d time.Duration) error {
	sec := d / time.Second
	if sec < MinIntervalSec || sec > MaxIntervalSec {
		return fmt.Errorf("policy: interval %s outside %ds..%ds", d, MinIntervalSec, MaxIntervalSec)
	}
	return h.Update(func(p *Policy) error {
		p.IntervalSec = uint32(sec)
		return nil
	})
}

// SetMaxRestarts changes the per-session restart budget.
func (h *Handle) SetMaxRestarts(n uint32) error {
	return h.Update(func(p *Policy) error {
		p.MaxRestartsPerSession = n
		return nil
	})
}

// SetRestartOn changes the restart flag for k.
func (h *Handle) SetRestartOn(k validation.Kind, on bool) error {
	return h.Update(func(p *Policy) error {
		next, err := p.withRestart(k, on)
		if err != nil {
			return err
		}
		*p = next
		return nil
	})
}

// Reload re-reads the store after an external edit. An unusable record
// keeps the current policy.
func (h *Handle) Reload() error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	p, err := h.store.Load()
	if err != nil {
		h.log.Warn("policy reload rejected, keeping current", "err", err)
		return err
	}
	return h.mu.Do(func() {
		if p != h.cur {
			h.log.Info("policy reloaded", "enabled", p.Enabled, "interval", p.Interval())
		}
		h.cur = p
	})
}
