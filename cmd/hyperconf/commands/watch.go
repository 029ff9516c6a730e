package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Reload a configuration whenever it, its templates or its policies change",
		Example: `  hyperconf watch --policy ./policies fleet.yaml
  hyperconf watch --metrics-addr :9090 fleet.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			engine, err := a.newPolicyEngine(ctx)
			if err != nil {
				return err
			}

			cfg := watch.DefaultConfig(args[0])
			cfg.Strict = a.v.GetBool("strict")
			cfg.PolicyPaths = a.v.GetStringSlice("policy")
			cfg.Debounce = a.v.GetDuration("debounce")

			w, err := watch.New(cfg,
				watch.WithLogger(a.logger()),
				watch.WithMetrics(a.tel.Metrics),
				watch.WithEvents(a.tel.Events),
				watch.WithPolicyEngine(engine),
				watch.WithRegistryOptions(a.registryOptions()...),
			)
			if err != nil {
				return err
			}

			srv, err := a.tel.Metrics.StartMetricsServer()
			if err != nil {
				return err
			}
			if srv != nil {
				defer srv.Close()
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			for r := range w.Results() {
				stamp := r.At.Format(time.TimeOnly)
				switch {
				case r.Err != nil:
					fmt.Fprintf(out, "%s %s: FAILED [%s] %v\n", stamp, args[0], errs.KindOf(r.Err), r.Err)
				case r.Policy != nil && !r.Policy.Allowed:
					printFindings(out, args[0], r.Policy)
					fmt.Fprintf(out, "%s %s: DENIED (%d violations)\n", stamp, args[0], len(r.Policy.Violations))
				default:
					if r.Policy != nil {
						printFindings(out, args[0], r.Policy)
					}
					fmt.Fprintf(out, "%s %s: OK (%d declarations)\n", stamp, args[0], r.Root.Count())
				}
			}
			return <-done
		},
	}

	cmd.Flags().Bool("strict", false, "reject declarations no template describes")
	addPolicyFlags(cmd)
	cmd.Flags().Duration("debounce", 250*time.Millisecond, "quiet period before reloading")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}
