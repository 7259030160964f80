// cmd/ledguard/diagnose.go
package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/recovery"
	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func newDiagnoseCmd(v *viper.Viper) *cobra.Command {
	var (
		inject  string
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run the self-test and one on-demand validation pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noColor {
				color.NoColor = true
			}
			return diagnose(cmd.Context(), v, inject, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&inject, "inject", "", "memory driver only: inject a failure (bus, fault, brightness, systematic, partial, software)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func diagnose(ctx context.Context, v *viper.Viper, inject string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	if err := a.start(ctx); err != nil {
		return err
	}

	st, err := a.selfTest(ctx)
	if err != nil {
		return err
	}

	if inject != "" {
		if err := injectFault(a, inject); err != nil {
			return err
		}
	}

	p, err := a.scheduler.ValidateNow(ctx)
	if err != nil {
		return err
	}

	if err := writeSelfTest(out, st); err != nil {
		return err
	}
	return writePass(out, p)
}

// injectFault stages one failure scenario on the in-memory bank.
func injectFault(a *app, kind string) error {
	if a.bank == nil {
		return fmt.Errorf("--inject needs driver.mode %q", "memory")
	}
	switch kind {
	case "bus":
		for chip := 0; chip < matrix.Rows; chip++ {
			a.bank.Disconnect(chip, true)
		}
	case "fault":
		a.bank.SetFaultFlags(0, 0x0001, false)
	case "brightness":
		a.bank.CorruptBrightness(matrix.Rows-1, a.cfg.Driver.Brightness/2, false)
	case "systematic", "partial":
		n := 3
		if kind == "systematic" {
			n = matrix.Total / 4
		}
		matrix.Each(func(c matrix.Coord) {
			if n > 0 {
				a.bank.Corrupt(c, a.frame.At(c)^0x20)
				n--
			}
		})
	case "software":
		c := matrix.Coord{Row: 0, Col: 0}
		v := a.frame.At(c)
		if v == 0 {
			v = a.cfg.Display.Intensity
		} else {
			v = 0
		}
		if err := a.state.Set(c, v); err != nil {
			return err
		}
		a.bank.Corrupt(c, v)
	default:
		return fmt.Errorf("unknown --inject scenario %q", kind)
	}
	return nil
}

func writeSelfTest(w io.Writer, rep recovery.SelfTestReport) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Chip", "Wrote", "Read", "Result"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, p := range rep.Chips {
		result := green("ok")
		if !p.OK() {
			result = red("FAIL")
			if p.Err != nil {
				result = red(p.Err.Error())
			}
		}
		data = append(data, []string{
			strconv.Itoa(p.Chip),
			fmt.Sprintf("0x%02x", p.Wrote),
			fmt.Sprintf("0x%02x", p.Read),
			result,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Self-test: %d/%d chips passed\n\n", matrix.Rows-rep.Failed(), matrix.Rows)
	return err
}

func writePass(w io.Writer, p report.Pass) error {
	r := p.Result
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Level", "Check", "Result"})

	data := [][]string{
		{"1", "software vs intended", verdict(r.SoftwareValid, strconv.Itoa(r.SoftwareErrors())+" mismatches")},
		{"2", "hardware vs software", verdict(r.HardwareValid && r.ReadFailures == 0,
			fmt.Sprintf("%d mismatches, %d chips unreadable", r.HardwareMismatches(), r.ReadFailures))},
		{"3", "fault flags", verdict(!r.FaultsDetected, fmt.Sprintf("%d faulty chips %v", r.FaultyChips, r.FaultyChipList()))},
		{"3", "global brightness", verdict(!r.BrightnessMismatch, fmt.Sprintf("expected %d", r.ExpectedBrightness))},
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	kind := green(p.Kind.String())
	if p.Failed() {
		kind = red(p.Kind.String())
	}
	outcome := p.Recovery.String()
	switch p.Recovery {
	case report.Recovered:
		outcome = green(outcome)
	case report.RecoveryFailed:
		outcome = red(outcome)
	case report.NotAttempted:
	}

	_, err := fmt.Fprintf(w, "Pass %s: %s, recovery %s, health %s (%s)\n",
		p.ID, kind, outcome, healthLabel(p.Health), r.Elapsed)
	return err
}

func verdict(ok bool, detail string) string {
	if ok {
		return green("ok")
	}
	return red(detail)
}

func healthLabel(score int) string {
	s := strconv.Itoa(score)
	switch {
	case score >= 80:
		return green(s)
	case score >= 50:
		return yellow(s)
	default:
		return red(s)
	}
}
