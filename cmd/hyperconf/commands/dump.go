package commands

import (
	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/export"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
)

func newDumpCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Load a configuration and print the converted tree",
		Example: `  hyperconf dump fleet.yaml
  hyperconf dump --format cue fleet.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			format, err := export.ParseFormat(a.v.GetString("format"))
			if err != nil {
				return err
			}

			ic := telemetry.StartOperation(cmd.Context(), "hyperconf.dump",
				telemetry.AttrFile.String(args[0]))
			defer func() { ic.End(err) }()

			reg, err := a.newRegistry()
			if err != nil {
				return err
			}
			loader, err := a.newLoader(reg)
			if err != nil {
				return err
			}
			root, err := loader.LoadFile(ic.Ctx, args[0])
			if err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), root, format)
		},
	}

	addLoadFlags(cmd)
	cmd.Flags().StringP("format", "f", string(export.YAML), "output format (json, yaml, cue)")

	return cmd
}
