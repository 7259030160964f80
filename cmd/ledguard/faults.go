// cmd/ledguard/faults.go
package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stani56/Stanis-Clock-sub003/internal/faultlog"
	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
)

func newFaultsCmd(v *viper.Viper) *cobra.Command {
	var (
		limit int
		wipe  bool
	)
	cmd := &cobra.Command{
		Use:   "faults",
		Short: "List or clear the persisted fault log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.FaultLog.Path == "" {
				return errors.New("fault_log.path is not configured")
			}

			ctx := cmd.Context()
			fl, err := faultlog.Open(ctx, cfg.FaultLog.Path)
			if err != nil {
				return err
			}
			defer func() { _ = fl.Close() }()

			if wipe {
				if err := fl.Clear(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "fault log cleared")
				return err
			}

			entries, err := fl.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return writeFaults(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", faultlog.Capacity, "entries to show, newest first")
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete every entry")
	return cmd
}

func writeFaults(w io.Writer, entries []faultlog.Entry) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Seq", "Time", "Trigger", "Kind", "Mismatch", "Unread", "Faulty", "Rows", "Recovery"})

	var data [][]string
	for _, e := range entries {
		recovery := e.Recovery
		switch recovery {
		case report.Recovered.String():
			recovery = green(recovery)
		case report.RecoveryFailed.String():
			recovery = red(recovery)
		}
		data = append(data, []string{
			strconv.FormatInt(e.Seq, 10),
			e.At.Local().Format(time.DateTime),
			e.Trigger,
			e.Kind.String(),
			strconv.Itoa(e.Mismatches),
			strconv.Itoa(e.ReadFailures),
			strconv.Itoa(e.FaultyChips),
			fmt.Sprintf("%010b", e.AffectedRows),
			recovery,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d entries (capacity %d)\n", len(entries), faultlog.Capacity)
	return err
}
