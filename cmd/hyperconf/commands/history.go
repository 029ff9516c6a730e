package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/stores"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded loads",
		Long: `Show the loads recorded by "hyperconf validate --record". With an ID, show
one load and its policy findings.`,
		Example: `  hyperconf history --db history.db
  hyperconf history --db history.db --status failed --limit 10
  hyperconf history --db history.db 0b9c6f1e-...
  hyperconf history --db history.db --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db := a.v.GetString("db")
			if db == "" {
				return fmt.Errorf("--db is required")
			}
			store, err := openStore(ctx, db)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if age := a.v.GetDuration("prune"); age > 0 {
				n, err := store.DeleteLoadsBefore(ctx, time.Now().Add(-age))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pruned %d loads\n", n)
				return nil
			}

			if len(args) == 1 {
				rec, err := store.GetLoad(ctx, args[0])
				if err != nil {
					return err
				}
				printLoad(cmd, rec)
				return nil
			}

			filter := stores.LoadFilter{Limit: a.v.GetInt("limit")}
			if f := a.v.GetString("file"); f != "" {
				filter.File = &f
			}
			if s := a.v.GetString("status"); s != "" {
				status := stores.LoadStatus(s)
				filter.Status = &status
			}
			loads, err := store.ListLoads(ctx, filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLOADED\tSTATUS\tDECLS\tFILE\tERROR")
			for _, rec := range loads {
				kind := ""
				if rec.ErrorKind != nil {
					kind = *rec.ErrorKind
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					rec.ID, rec.LoadedAt.Local().Format(time.DateTime), rec.Status, rec.Declarations, rec.File, kind)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("db", "", "history database")
	cmd.Flags().String("file", "", "only loads of this (absolute) file")
	cmd.Flags().String("status", "", "only loads with this status (succeeded, failed, denied)")
	cmd.Flags().Int("limit", stores.DefaultListLimit, "maximum number of loads")
	cmd.Flags().Duration("prune", 0, "delete loads older than this instead of listing")

	return cmd
}

func printLoad(cmd *cobra.Command, rec *stores.LoadRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:           %s\n", rec.ID)
	fmt.Fprintf(out, "file:         %s\n", rec.File)
	fmt.Fprintf(out, "loaded:       %s (%dms)\n", rec.LoadedAt.Local().Format(time.RFC3339), rec.DurationMS)
	fmt.Fprintf(out, "strict:       %t\n", rec.Strict)
	fmt.Fprintf(out, "status:       %s\n", rec.Status)
	fmt.Fprintf(out, "declarations: %d\n", rec.Declarations)
	if rec.Error != nil {
		fmt.Fprintf(out, "error:        %s\n", *rec.Error)
	}
	for _, t := range rec.Templates {
		fmt.Fprintf(out, "template:     %s\n", t)
	}
	for _, f := range rec.Findings {
		fmt.Fprintf(out, "finding:      %s [%s] %s: %s\n", f.Severity, f.Policy, f.Path, f.Message)
	}
}
