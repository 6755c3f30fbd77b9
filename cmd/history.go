package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/v2gplan/core/history"
)

var historyFlags struct {
	instance string
	status   string
	since    time.Duration
	limit    int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded planning runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.instance, "instance", "", "only runs of this instance")
	f.StringVar(&historyFlags.status, "status", "", "only runs with this solver status")
	f.DurationVar(&historyFlags.since, "since", 0, "only runs younger than this duration")
	f.IntVar(&historyFlags.limit, "limit", 20, "maximum number of runs, most recent kept")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.NewStore(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	q := history.RunQuery{Instance: historyFlags.instance, Status: historyFlags.status, Limit: historyFlags.limit}
	if historyFlags.since > 0 {
		q.Start = time.Now().Add(-historyFlags.since)
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tINSTANCE\tMODE\tSTATUS\tOBJECTIVE\tGAP\tSITES\tSPEND")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%.4f\t%d\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.ID, r.Instance, r.Mode, r.Status,
			r.Objective, r.Gap, r.OpenSites, r.TotalSpend)
	}
	return w.Flush()
}
