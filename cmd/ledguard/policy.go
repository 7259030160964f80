// cmd/ledguard/policy.go
package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stani56/Stanis-Clock-sub003/internal/policy"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

func newPolicyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the persisted validation policy",
	}
	cmd.AddCommand(newPolicyShowCmd(v))
	return cmd
}

// openPolicy opens the policy file named in the config.
func openPolicy(v *viper.Viper) (*policy.Handle, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return policy.Open(&policy.FileStore{Path: cfg.Policy.Path}, ms(cfg.Display.LockMs), log), nil
}

func newPolicyShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openPolicy(v)
			if err != nil {
				return err
			}
			p, err := h.Get()
			if err != nil {
				return err
			}
			return writePolicy(cmd.OutOrStdout(), p)
		},
	}
}

func writePolicy(w io.Writer, p policy.Policy) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Field", "Value"})

	data := [][]string{
		{"version", fmt.Sprint(p.Version)},
		{"enabled", fmt.Sprint(p.Enabled)},
		{"interval", p.Interval().String()},
		{"max restarts per session", fmt.Sprint(p.MaxRestartsPerSession)},
	}
	for _, k := range validation.Kinds() {
		if k == validation.None || k == validation.SoftwareOnlyError {
			continue
		}
		data = append(data, []string{"restart on " + k.String(), fmt.Sprint(p.Restart(k))})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
