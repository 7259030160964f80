// internal/report/report_test.go
package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
	"github.com/Stani56/Stanis-Clock-sub003/internal/status"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// ---- fakes ----

type fakeEndpointClient struct {
	fail         bool
	calls        int
	lastRegsAddr uint16
	lastRegs     []uint16
}

func (f *fakeEndpointClient) WriteRegisters(_ context.Context, unitID uint8, addr uint16, regs []uint16) error {
	f.calls++
	if f.fail {
		return errors.New("link down")
	}
	f.lastRegsAddr = addr
	f.lastRegs = append([]uint16(nil), regs...)
	return nil
}

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func okPass(at time.Time) Pass {
	return Pass{
		ID:      uuid.New(),
		Trigger: Periodic,
		Result:  validation.Result{At: at, Valid: true, SoftwareValid: true, HardwareValid: true},
		Kind:    validation.None,
		Health:  100,
	}
}

func partialPass(at time.Time, n int) Pass {
	var res validation.Result
	res.At = at
	for i := 0; i < n; i++ {
		res.Hardware.Add(validation.Mismatch{Coord: matrix.Coord{Row: i % matrix.Rows, Col: i % matrix.Cols}})
	}
	return Pass{
		ID:       uuid.New(),
		Trigger:  OnDemand,
		Result:   res,
		Kind:     validation.PartialMismatch,
		Recovery: RecoveryFailed,
		Stats:    stats.Statistics{ConsecutiveFailures: 2, FailuresLast24h: 4},
		Health:   82,
	}
}

func newStatusReporter(t *testing.T, cli *fakeEndpointClient) *StatusReporter {
	t.Helper()
	sw, err := NewStatusReporter(StatusPlan{
		Endpoint:   "status-endpoint",
		UnitID:     1,
		BaseSlot:   2,
		DeviceName: "CLOCK-01",
	}, cli)
	require.NoError(t, err)
	return sw
}

// ---- status writer ----

func TestStatusDeviceNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)

	require.NoError(t, sw.Report(context.Background(), okPass(t0)))

	require.Len(t, cli.lastRegs, status.SlotsPerDevice)
	assert.Equal(t, uint16(2*status.SlotsPerDevice), cli.lastRegsAddr)
	assert.Equal(t, status.HealthOK, cli.lastRegs[status.SlotHealthCode])
	assert.Equal(t,
		status.EncodeDeviceName("CLOCK-01"),
		cli.lastRegs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1],
	)

	require.NoError(t, sw.Report(context.Background(), partialPass(t0.Add(time.Minute), 3)))

	// Incremental update must NOT re-write the full block.
	assert.Len(t, cli.lastRegs, 1)
}

func TestStatusIncrementalWritesChangedSlotsOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)
	require.NoError(t, sw.Report(context.Background(), okPass(t0)))
	cli.calls = 0

	require.NoError(t, sw.Report(context.Background(), okPass(t0.Add(time.Minute))))
	assert.Zero(t, cli.calls)

	require.NoError(t, sw.Report(context.Background(), partialPass(t0.Add(2*time.Minute), 3)))
	// health, kind, score, streak, outcome, mismatches, 24h count
	assert.Equal(t, 7, cli.calls)
}

func TestStatusSecondsInErrorTracksStreak(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)
	base := uint16(2 * status.SlotsPerDevice)

	require.NoError(t, sw.Report(context.Background(), partialPass(t0, 1)))
	require.NoError(t, sw.Report(context.Background(), partialPass(t0.Add(90*time.Second), 1)))
	assert.Equal(t, base+status.SlotSecondsInError, cli.lastRegsAddr)
	assert.Equal(t, []uint16{90}, cli.lastRegs)

	// recovery resets the counter
	require.NoError(t, sw.Report(context.Background(), okPass(t0.Add(2*time.Minute))))
	assert.Equal(t, base+status.SlotSecondsInError, cli.lastRegsAddr)
	assert.Equal(t, []uint16{0}, cli.lastRegs)
}

func TestStatusSecondsInErrorDoesNotWrap(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)

	require.NoError(t, sw.Report(context.Background(), partialPass(t0, 1)))
	require.NoError(t, sw.Report(context.Background(), partialPass(t0.Add(48*time.Hour), 1)))

	assert.Equal(t, []uint16{65535}, cli.lastRegs)
}

func TestStatusSkippedPassMarksStale(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)
	require.NoError(t, sw.Report(context.Background(), partialPass(t0, 5)))

	skipped := Pass{Result: validation.Result{Skipped: true}}
	require.NoError(t, sw.Report(context.Background(), skipped))

	assert.Equal(t, uint16(2*status.SlotsPerDevice)+status.SlotHealthCode, cli.lastRegsAddr)
	assert.Equal(t, []uint16{status.HealthStale}, cli.lastRegs)
}

func TestStatusFailureForcesFullReassert(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newStatusReporter(t, cli)
	require.NoError(t, sw.Report(context.Background(), okPass(t0)))

	cli.fail = true
	assert.Error(t, sw.Report(context.Background(), partialPass(t0.Add(time.Minute), 2)))

	cli.fail = false
	require.NoError(t, sw.Report(context.Background(), partialPass(t0.Add(2*time.Minute), 2)))
	assert.Len(t, cli.lastRegs, status.SlotsPerDevice)
	assert.Equal(t, status.HealthError, cli.lastRegs[status.SlotHealthCode])
	assert.Equal(t, uint16(validation.PartialMismatch), cli.lastRegs[status.SlotFailureKind])
	assert.Equal(t, uint16(2), cli.lastRegs[status.SlotMismatches])
}

func TestNewStatusReporterValidates(t *testing.T) {
	_, err := NewStatusReporter(StatusPlan{UnitID: 1}, nil)
	assert.Error(t, err)

	_, err = NewStatusReporter(StatusPlan{UnitID: 300}, &fakeEndpointClient{})
	assert.Error(t, err)
}

// ---- multi / log ----

func TestMultiRunsAllAndJoinsErrors(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	m := Multi{
		ReporterFunc(func(context.Context, Pass) error { ran = append(ran, "a"); return boom }),
		nil,
		ReporterFunc(func(context.Context, Pass) error { ran = append(ran, "b"); return nil }),
	}

	err := m.Report(context.Background(), okPass(t0))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := LogReporter{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, r.Report(context.Background(), partialPass(t0, 3)))

	line := buf.String()
	assert.True(t, strings.Contains(line, "level=ERROR"), line)
	assert.Contains(t, line, "kind=PARTIAL_MISMATCH")
	assert.Contains(t, line, "hardware_mismatches=3")
	assert.Contains(t, line, "recovery=failed")
}

// ---- metrics ----

func TestMetricsReport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Report(context.Background(), okPass(t0)))
	p := partialPass(t0, 4)
	p.Restart = true
	require.NoError(t, m.Report(context.Background(), p))
	require.NoError(t, m.Report(context.Background(), Pass{Result: validation.Result{Skipped: true}, Health: 82}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("periodic", "NONE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("on_demand", "PARTIAL_MISMATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("periodic", "SKIPPED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restarts))
	assert.Equal(t, 82.0, testutil.ToFloat64(m.health))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.mismatches))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}
