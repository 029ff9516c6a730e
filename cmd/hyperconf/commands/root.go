package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyperconf/hyperconf/pkg/telemetry"
)

// defaultSettingsFile is read when present and --config is not given.
const defaultSettingsFile = ".hyperconf.yaml"

// app carries the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	version string
	tel     *telemetry.Telemetry
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	a := &app{v: viper.New(), version: version}

	rootCmd := &cobra.Command{
		Use:   "hyperconf",
		Short: "hyperconf - schema-driven YAML configuration loader",
		Long: `hyperconf loads YAML configuration files against type templates and
produces validated, immutable configuration trees.

Features:
  - Typed declarations (name=type) resolved against reusable templates
  - Validator and converter expressions on every type
  - Strict and lenient loading
  - Rego policy checks over loaded trees
  - JSON, YAML and CUE export
  - Load history in SQLite`,
		Version:            fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "settings file (default: ./"+defaultSettingsFile+" if present)")
	pf.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.StringSliceP("template-path", "I", nil, "additional template search directory (repeatable)")
	pf.String("trace", "none", "trace exporter (none, stdout, otlp)")
	pf.String("otlp-endpoint", "", "OTLP collector endpoint when --trace=otlp")

	a.v.SetEnvPrefix("HYPERCONF")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newDumpCommand(a))
	rootCmd.AddCommand(newTypesCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))

	return rootCmd
}

// setup reads settings, binds the flags of the running command and starts
// telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.readSettings(); err != nil {
		return err
	}
	// Flags are bound per invocation: several commands share flag names.
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = a.v.GetString("log-level")
	cfg.Tracing.Exporter = a.v.GetString("trace")
	cfg.Tracing.Enabled = cfg.Tracing.Exporter != "none"
	cfg.Tracing.Endpoint = a.v.GetString("otlp-endpoint")
	cfg.Metrics.ListenAddress = a.v.GetString("metrics-addr")

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return err
	}
	a.tel = tel
	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

func (a *app) readSettings() error {
	switch {
	case a.cfgFile != "":
		a.v.SetConfigFile(a.cfgFile)
	default:
		if _, err := os.Stat(defaultSettingsFile); err != nil {
			return nil
		}
		a.v.SetConfigFile(defaultSettingsFile)
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading settings: %w", err)
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	tel := telemetry.FromTelemetryContext(cmd.Context())
	if tel == nil {
		return nil
	}
	return tel.Shutdown(cmd.Context())
}
