// cmd/ledguard/root.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stani56/Stanis-Clock-sub003/internal/config"
)

// Linker flags set at build time.
var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "ledguard.yaml"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LEDGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("config", defaultConfigPath)

	root := &cobra.Command{
		Use:           "ledguard",
		Short:         "Self-diagnosis and self-healing for an LED matrix display.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", defaultConfigPath, "path to the YAML config file")
	pf.String("log-level", "", "override log.level (debug, info, warn, error)")
	pf.String("log-format", "", "override log.format (text, json)")
	for _, name := range []string{"config", "log-level", "log-format"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newRunCmd(v),
		newDiagnoseCmd(v),
		newPolicyCmd(v),
		newFaultsCmd(v),
	)
	return root
}

// loadConfig loads, validates and normalizes the config file named by
// viper, then applies flag and environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log-format"); s != "" {
		cfg.Log.Format = s
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// newLogger builds the process logger and installs it as the default.
func newLogger(c config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch c.Format {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	log := slog.New(h)
	slog.SetDefault(log)
	return log, nil
}
