// internal/report/status_writer.go
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/status"
)

// EndpointClient is the exact contract the status writer uses.
// Both the Modbus and the Raw Ingest transports satisfy it.
type EndpointClient interface {
	WriteRegisters(ctx context.Context, unitID uint8, addr uint16, regs []uint16) error
}

// StatusPlan is the fully-built status block destination.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint16
	BaseSlot   uint16
	DeviceName string
}

// StatusReporter writes the health status block of the matrix.
// The first write and any write after a failure re-assert the full
// block; otherwise only changed live slots are written.
type StatusReporter struct {
	mu   sync.Mutex
	plan StatusPlan
	cli  EndpointClient

	needFull     bool
	last         status.Snapshot
	errorSince   time.Time
	inErrorState bool
}

// NewStatusReporter builds a status reporter for plan over cli.
func NewStatusReporter(plan StatusPlan, cli EndpointClient) (*StatusReporter, error) {
	if cli == nil {
		return nil, fmt.Errorf("status writer: missing client for endpoint %s", plan.Endpoint)
	}
	if plan.UnitID > 255 {
		return nil, fmt.Errorf("status writer: unit id %d out of range", plan.UnitID)
	}
	return &StatusReporter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}, nil
}

// Report derives the snapshot for p and delivers it.
func (sw *StatusReporter) Report(ctx context.Context, p Pass) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.write(ctx, sw.snapshot(p))
}

// snapshot maps a pass to register values. Skipped passes keep the
// previous counters and only flip the health code.
func (sw *StatusReporter) snapshot(p Pass) status.Snapshot {
	if p.Result.Skipped {
		s := sw.last
		s.Health = status.HealthStale
		return s
	}

	s := status.Snapshot{
		Health:              status.HealthOK,
		FailureKind:         uint16(p.Kind),
		HealthScore:         status.Clamp(p.Health),
		ConsecutiveFailures: status.Clamp(p.Stats.ConsecutiveFailures),
		RecoveryOutcome:     uint16(p.Recovery),
		Mismatches:          status.Clamp(p.Result.HardwareMismatches()),
		ReadFailures:        status.Clamp(p.Result.ReadFailures),
		FaultyChips:         status.Clamp(p.Result.FaultyChips),
		FailuresLast24h:     status.Clamp(p.Stats.FailuresLast24h),
	}

	if !p.Failed() {
		sw.inErrorState = false
		return s
	}

	s.Health = status.HealthError
	if !sw.inErrorState {
		sw.inErrorState = true
		sw.errorSince = p.Result.At
	}
	// HARD INVARIANT: seconds_in_error MUST NOT wrap
	s.SecondsInError = status.Clamp(int64(p.Result.At.Sub(sw.errorSince) / time.Second))
	return s
}

func (sw *StatusReporter) write(ctx context.Context, s status.Snapshot) error {
	baseAddr := sw.baseAddr()
	unitID := uint8(sw.plan.UnitID)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		regs := status.Encode(s, sw.plan.DeviceName)

		if err := sw.cli.WriteRegisters(ctx, unitID, baseAddr, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []error

	prev := sw.last.Live()
	next := s.Live()
	for slot := range next {
		if prev[slot] == next[slot] {
			continue
		}
		if err := sw.cli.WriteRegisters(ctx, unitID, baseAddr+uint16(slot), []uint16{next[slot]}); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, err))
		}
	}

	if len(errs) > 0 {
		// a partial update leaves the block in doubt; re-assert it next time
		sw.needFull = true
		return fmt.Errorf("status writer: %w", errors.Join(errs...))
	}

	sw.last = s
	return nil
}

func (sw *StatusReporter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}
