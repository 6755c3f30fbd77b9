package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/v2gplan/core/formulation"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/infra/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <instance>",
	Short: "Load an instance and build its model without solving",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.Planner.Options()
	if err != nil {
		return err
	}
	prob, err := loader.Load(args[0])
	if err != nil {
		return err
	}
	prog := mip.NewProgram()
	vars, err := formulation.Build(cmd.Context(), prob, prog, formulation.Options{Parallel: opts.Parallel})
	if err != nil {
		return err
	}
	if _, _, err := formulation.AssembleObjective(prob, vars, opts.Mode, opts.Weights); err != nil {
		return err
	}

	rows := make(map[string]int)
	for _, c := range prog.Constraints() {
		rows[formulation.FamilyOf(c.Name)]++
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "instance\t%s\n", prob.Name())
	fmt.Fprintf(w, "periods\t%d (%d-%d)\n", len(prob.Periods()), prob.Horizon().First(), prob.Horizon().Last())
	fmt.Fprintf(w, "sites\t%d\n", len(prob.Sites()))
	fmt.Fprintf(w, "charger types\t%d (%d V2G)\n", len(prob.Chargers()), len(prob.V2GChargers()))
	fmt.Fprintf(w, "routes\t%d\n", len(prob.Routes()))
	fmt.Fprintf(w, "variables\t%d\n", prog.NumVariables())
	fmt.Fprintf(w, "constraints\t%d\n", prog.NumConstraints())
	for _, f := range formulation.Families() {
		fmt.Fprintf(w, "  %s\t%d\n", f, rows[f])
	}
	return w.Flush()
}
