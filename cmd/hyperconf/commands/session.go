package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/config"
	"github.com/hyperconf/hyperconf/pkg/policy"
	"github.com/hyperconf/hyperconf/pkg/stores"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

// addLoadFlags registers the flags shared by commands that load a file.
func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("strict", false, "reject declarations no template describes")
	cmd.Flags().Int64("max-file-size", 0, "reject configuration files larger than this many bytes (0: no limit)")
}

// addPolicyFlags registers the policy selection flags.
func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("policy", nil, "policy file or directory (repeatable)")
	cmd.Flags().Bool("no-builtin-policies", false, "skip the built-in policies")
}

func (a *app) logger() zerolog.Logger {
	return a.tel.Logger.Zerolog()
}

func (a *app) registryOptions() []templates.Option {
	return []templates.Option{
		templates.WithLogger(a.logger()),
		templates.WithMetrics(a.tel.Metrics),
		templates.WithEvents(a.tel.Events),
		templates.WithSearchPaths(a.v.GetStringSlice("template-path")...),
	}
}

func (a *app) newRegistry() (*templates.Registry, error) {
	return templates.NewRegistry(a.registryOptions()...)
}

func (a *app) loadOptions() config.Options {
	return config.Options{
		Strict:      a.v.GetBool("strict"),
		MaxFileSize: a.v.GetInt64("max-file-size"),
	}
}

func (a *app) newLoader(reg *templates.Registry) (*config.Loader, error) {
	return config.NewLoader(reg,
		config.WithOptions(a.loadOptions()),
		config.WithLogger(a.logger()),
		config.WithMetrics(a.tel.Metrics),
		config.WithEvents(a.tel.Events),
	)
}

// newPolicyEngine builds an engine with the built-ins (unless disabled) and
// the --policy paths.
func (a *app) newPolicyEngine(ctx context.Context) (*policy.Engine, error) {
	opts := []policy.Option{
		policy.WithLogger(a.logger()),
		policy.WithMetrics(a.tel.Metrics),
		policy.WithEvents(a.tel.Events),
	}
	if a.v.GetBool("no-builtin-policies") {
		opts = append(opts, policy.WithoutBuiltins())
	}
	engine, err := policy.NewEngine(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if paths := a.v.GetStringSlice("policy"); len(paths) > 0 {
		if _, err := engine.LoadPaths(ctx, paths...); err != nil {
			return nil, fmt.Errorf("loading policies: %w", err)
		}
	}
	return engine, nil
}

// openStore opens and migrates the history database at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
