// internal/display/updater.go
package display

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// Updater is the display path: it pushes frames to the hardware, keeps
// the software mirror in step with successful writes, and flags the
// transition while it is writing.
type Updater struct {
	mu         sync.Mutex
	state      *State
	port       driver.Port
	transition *Transition
	log        *slog.Logger
	hooks      []func()
}

// NewUpdater wires an Updater. A nil logger selects slog.Default().
func NewUpdater(state *State, port driver.Port, tr *Transition, log *slog.Logger) *Updater {
	if log == nil {
		log = slog.Default()
	}
	return &Updater{
		state:      state,
		port:       port,
		transition: tr,
		log:        log.With("component", "display"),
	}
}

// OnUpdate registers fn to run after every frame that changed the hardware.
// Hooks run on the updater's goroutine after the transition has ended.
func (u *Updater) OnUpdate(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hooks = append(u.hooks, fn)
}

// Show writes every LED whose mirror value differs from frame.
// It returns the number of LEDs written successfully.
func (u *Updater) Show(ctx context.Context, frame matrix.Matrix) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	mirror, err := u.state.Snapshot()
	if err != nil {
		return 0, err
	}

	var diff []matrix.Coord
	matrix.Each(func(c matrix.Coord) {
		if mirror.At(c) != frame.At(c) {
			diff = append(diff, c)
		}
	})
	if len(diff) == 0 {
		return 0, nil
	}

	u.transition.Begin()
	var (
		written []matrix.Coord
		errs    []error
	)
	for _, c := range diff {
		if err := u.port.Write(ctx, c, frame.At(c)); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, c)
	}
	if err := u.state.Update(func(m *matrix.Matrix) {
		for _, c := range written {
			m.Set(c, frame.At(c))
		}
	}); err != nil {
		errs = append(errs, err)
	}
	u.transition.End()

	if len(errs) > 0 {
		u.log.Warn("frame partially written", "written", len(written), "failed", len(diff)-len(written))
	}
	if len(written) > 0 {
		for _, fn := range u.hooks {
			fn()
		}
	}
	return len(written), errors.Join(errs...)
}

// Run refreshes the display from gen on every tick until ctx is done.
func (u *Updater) Run(ctx context.Context, gen Generator, every time.Duration, now func() time.Time) {
	if now == nil {
		now = time.Now
	}

	refresh := func() {
		if _, err := u.Show(ctx, gen.Intended(now())); err != nil {
			u.log.Warn("display refresh failed", "err", err)
		}
	}

	refresh()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
