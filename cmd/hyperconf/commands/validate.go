package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/policy"
	"github.com/hyperconf/hyperconf/pkg/stores"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
)

func newValidateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Load a configuration and check it against its templates and policies",
		Long: `Load a configuration file, resolving every declaration against the templates
it uses, then evaluate the policies over the resulting tree.

The command fails when the file does not load or a policy reports a
violation of severity error or critical. Warnings are printed but do not
fail the command.`,
		Example: `  # Validate a file
  hyperconf validate fleet.yaml

  # Strict loading with extra policies, recording the outcome
  hyperconf validate --strict --policy ./policies --record history.db fleet.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ic := telemetry.StartOperation(cmd.Context(), "hyperconf.validate",
				telemetry.AttrFile.String(args[0]))
			err := a.validate(ic.Ctx, cmd.OutOrStdout(), args[0])
			ic.End(err)
			return err
		},
	}

	addLoadFlags(cmd)
	addPolicyFlags(cmd)
	cmd.Flags().Bool("skip-policies", false, "only load the file, without policy checks")
	cmd.Flags().String("record", "", "SQLite database to record the outcome in")

	return cmd
}

func (a *app) validate(ctx context.Context, out io.Writer, file string) error {
	reg, err := a.newRegistry()
	if err != nil {
		return err
	}
	loader, err := a.newLoader(reg)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	rec := stores.NewLoadRecord(abs, loader.Options().Strict)

	start := time.Now()
	root, loadErr := loader.LoadFile(ctx, file)
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.Templates = reg.LoadedFiles()

	var result *policy.Result
	switch {
	case loadErr != nil:
		rec.Fail(string(errs.KindOf(loadErr)), loadErr.Error())
	case !a.v.GetBool("skip-policies"):
		rec.Declarations = root.Count()
		engine, err := a.newPolicyEngine(ctx)
		if err != nil {
			return err
		}
		result, err = engine.Evaluate(ctx, root)
		if err != nil {
			return err
		}
		for _, v := range result.Findings() {
			rec.Findings = append(rec.Findings, &stores.Finding{
				Policy:   v.Policy,
				Severity: string(v.Severity),
				Path:     v.Path,
				Message:  v.Message,
				Line:     v.Line,
			})
		}
		if !result.Allowed {
			rec.Status = stores.LoadStatusDenied
		}
	default:
		rec.Declarations = root.Count()
	}

	if path := a.v.GetString("record"); path != "" {
		if err := recordLoad(ctx, path, rec); err != nil {
			return err
		}
	}

	if loadErr != nil {
		return loadErr
	}
	if result != nil {
		printFindings(out, file, result)
		if !result.Allowed {
			return fmt.Errorf("%s: %d policy violation(s)", file, len(result.Violations))
		}
	}
	fmt.Fprintf(out, "%s: OK (%d declarations)\n", file, rec.Declarations)
	return nil
}

func printFindings(out io.Writer, file string, result *policy.Result) {
	for _, v := range result.Findings() {
		loc := file
		if v.Line > 0 {
			loc = fmt.Sprintf("%s:%d", file, v.Line)
		}
		if v.Path != "" {
			loc += " " + v.Path
		}
		fmt.Fprintf(out, "%s: %s [%s] %s\n", loc, v.Severity, v.Policy, v.Message)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "%s: policy error: %s\n", file, e)
	}
}

func recordLoad(ctx context.Context, path string, rec *stores.LoadRecord) error {
	store, err := openStore(ctx, path)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()
	if err := store.RecordLoad(ctx, rec); err != nil {
		return fmt.Errorf("recording load: %w", err)
	}
	telemetry.FromContext(ctx).WithLoadID(rec.ID).Debug("load recorded")
	return nil
}
