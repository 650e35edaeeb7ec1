package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/railtrace/railtrace/pkg/rules"
	"github.com/railtrace/railtrace/pkg/tui"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the active speed rule table",
	Long: `Print the speed rules the engine will apply, including any overrides
loaded from --rules.`,
	RunE: runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	table := rules.Builtin()
	if rulesFile != "" {
		var err error
		table, err = rules.LoadFile(rulesFile)
		if err != nil {
			return err
		}
	}

	tui.PrintHeader(version)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  TRAIN TYPE\tASPECT\tSECTION ATTR\tCEILING (km/h)\tFLOOR (km/h)")
	for _, r := range table.Rules() {
		floor := "-"
		if r.HasFloor {
			floor = fmt.Sprintf("%.0f", r.Floor)
		}
		aspect := r.Aspect.String()
		if r.SectionAttr != "" {
			aspect = "-"
		}
		attr := r.SectionAttr
		if attr == "" {
			attr = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%.0f\t%s\n", r.TrainType, aspect, attr, r.Ceiling, floor)
	}
	return w.Flush()
}
