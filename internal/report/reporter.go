// internal/report/reporter.go
package report

import (
	"context"
	"errors"
	"log/slog"
)

// Reporter receives every finished pass. Errors are logged by the
// caller and never stop validation.
type Reporter interface {
	Report(ctx context.Context, p Pass) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, p Pass) error

func (f ReporterFunc) Report(ctx context.Context, p Pass) error { return f(ctx, p) }

// Multi fans a pass out to every reporter. All reporters run even when
// some fail; the errors are joined.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, p Pass) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReporter writes one structured line per pass.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) Report(ctx context.Context, p Pass) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	level := slog.LevelInfo
	switch {
	case p.Result.Skipped:
		level = slog.LevelWarn
	case p.Failed() && p.Recovery != Recovered:
		level = slog.LevelError
	case p.Failed():
		level = slog.LevelWarn
	}

	log.LogAttrs(ctx, level, "validation pass",
		slog.String("pass", p.ID.String()),
		slog.String("trigger", p.Trigger.String()),
		slog.Bool("skipped", p.Result.Skipped),
		slog.Bool("valid", p.Result.Valid),
		slog.String("kind", p.Kind.String()),
		slog.String("recovery", p.Recovery.String()),
		slog.Int("software_errors", p.Result.SoftwareErrors()),
		slog.Int("hardware_mismatches", p.Result.HardwareMismatches()),
		slog.Int("read_failures", p.Result.ReadFailures),
		slog.Int("faulty_chips", p.Result.FaultyChips),
		slog.Bool("brightness_mismatch", p.Result.BrightnessMismatch),
		slog.Duration("elapsed", p.Result.Elapsed),
		slog.Int("health", p.Health),
		slog.Uint64("streak", p.Stats.ConsecutiveFailures),
		slog.Bool("restart", p.Restart),
	)
	return nil
}
