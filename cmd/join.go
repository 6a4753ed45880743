package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/metrics"
	"github.com/sells-group/synthpop/internal/pipeline"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join address points to statistical areas",
	Long:  "Loads the address and boundary datasets, assigns every address its SA1 or SA2 code, and stores the result in the join cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("join"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, report, err := pipeline.New(cfg, st).Join(ctx)
		if err != nil {
			return err
		}
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			zap.L().Warn("write metrics textfile", zap.Error(err))
		}

		formatJoinSummary(os.Stdout, report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

// formatJoinSummary writes the join counts of report to w.
func formatJoinSummary(out io.Writer, report *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "CRS\t%s\n", report.CRS)
	_, _ = fmt.Fprintf(w, "CACHE KEY\t%s\n", report.CacheKey)
	_, _ = fmt.Fprintf(w, "CACHE HIT\t%t\n", report.CacheHit)
	if j := report.Join; j != nil {
		_, _ = fmt.Fprintf(w, "POINTS\t%d\n", j.Points)
		_, _ = fmt.Fprintf(w, "ASSIGNED\t%d\n", j.Assigned)
		_, _ = fmt.Fprintf(w, "NEAREST\t%d\n", j.Nearest)
		_, _ = fmt.Fprintf(w, "UNASSIGNED\t%d\n", j.Unassigned)
		_, _ = fmt.Fprintf(w, "FILTERED\t%d\n", j.Filtered)
	}
	_ = w.Flush()
}
