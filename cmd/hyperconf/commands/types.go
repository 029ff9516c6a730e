package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperconf/hyperconf/pkg/templates"
)

func newTypesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the types available to configurations",
		Long: `List every registered type after loading the given templates. Without
--use, the bundled builtins are listed.`,
		Example: `  hyperconf types
  hyperconf types --use common --use ./templates/ships.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.newRegistry()
			if err != nil {
				return err
			}
			uses := a.v.GetStringSlice("use")
			if len(uses) == 0 {
				uses = []string{"builtins"}
			}
			for _, u := range uses {
				if err := reg.LoadFile(cmd.Context(), u, "", 0); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tBASE\tOPTIONS\tDEFINED IN")
			for _, name := range reg.Names() {
				def, _ := reg.Lookup(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, def.BaseType, optionSummary(def), location(def))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if a.v.GetBool("verbose") {
				fmt.Fprintln(out)
				for _, info := range reg.Templates() {
					title := info.File
					if info.Name != "" {
						title = info.Name + " (" + info.File + ")"
					}
					fmt.Fprintf(out, "%s: %d definitions\n", title, len(info.Definitions))
					if info.Description != "" {
						fmt.Fprintf(out, "  %s\n", info.Description)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("use", nil, "template to load: bundled name or path (repeatable)")
	cmd.Flags().BoolP("verbose", "v", false, "also list the loaded template files")

	return cmd
}

func optionSummary(def *templates.Definition) string {
	if !def.IsComposite() {
		return "-"
	}
	parts := make([]string, 0, len(def.Options))
	for _, opt := range def.Options {
		p := opt.Name + ":" + opt.BaseType
		if !opt.Required {
			p += "?"
		}
		if opt.AllowMany {
			p += "*"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func location(def *templates.Definition) string {
	if def.File == "" {
		return "-"
	}
	if def.Line > 0 {
		return fmt.Sprintf("%s:%d", def.File, def.Line)
	}
	return def.File
}
