package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/v2gplan/app"
	"github.com/kilianp07/v2gplan/core/monitoring"
	"github.com/kilianp07/v2gplan/core/planner"
	"github.com/kilianp07/v2gplan/infra/logger"
)

var solveFlags struct {
	mode      string
	alpha     float64
	timeLimit float64
	out       string
	format    string
	publish   bool
}

var solveCmd = &cobra.Command{
	Use:   "solve <instance>",
	Short: "Build and solve a planning instance",
	Long: "Solve reads an instance (a YAML/JSON document or a directory of CSV tables), " +
		"optimises the expansion plan and prints its final-period summary.",
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	f := solveCmd.Flags()
	f.StringVar(&solveFlags.mode, "mode", "", "objective mode: benefit or net-cost")
	f.Float64Var(&solveFlags.alpha, "alpha", 0, "monetary value of weighted served demand (net-cost)")
	f.Float64Var(&solveFlags.timeLimit, "time-limit", 0, "solver time limit in seconds")
	f.StringVarP(&solveFlags.out, "out", "o", "", "directory receiving the plan tables")
	f.StringVar(&solveFlags.format, "format", "", "export format: csv, json or both")
	f.BoolVar(&solveFlags.publish, "publish", false, "announce the plan on the MQTT broker")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fl := cmd.Flags()
	if fl.Changed("mode") {
		cfg.Planner.Mode = solveFlags.mode
	}
	if fl.Changed("alpha") {
		cfg.Planner.Alpha = solveFlags.alpha
	}
	if fl.Changed("time-limit") {
		cfg.Planner.TimeLimitSeconds = solveFlags.timeLimit
	}
	if fl.Changed("out") {
		cfg.Export.Dir = solveFlags.out
	}
	if fl.Changed("format") {
		cfg.Export.Format = solveFlags.format
	}
	if fl.Changed("publish") {
		cfg.Export.Publish = solveFlags.publish
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer monitoring.Flush(2 * time.Second)
	defer monitoring.Recover()
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	out, err := svc.Solve(ctx, args[0])
	var serr *planner.SolveError
	if errors.As(err, &serr) {
		w := cmd.ErrOrStderr()
		fmt.Fprintf(w, "no plan: solver status %s\n", serr.Status)
		for _, row := range serr.IIS {
			fmt.Fprintf(w, "  conflicting: %s\n", row)
		}
		return err
	}
	if err != nil && (out == nil || out.Result == nil) {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (%s, %s)\n", out.Result.RunID, out.Result.Status, out.Result.Mode)
	if werr := out.Result.Summary.WriteText(w); werr != nil {
		return werr
	}
	for _, f := range out.Files {
		fmt.Fprintf(w, "wrote %s\n", f)
	}
	return err
}
