package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the join cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached joins",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "cache list")
		}
		if len(entries) == 0 {
			zap.L().Info("join cache is empty")
			return nil
		}

		formatCacheEntries(os.Stdout, entries)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [key...]",
	Short: "Delete cached joins",
	Long:  "Deletes the given cache keys, or every cached join when no key is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		keys := make([]cache.Key, 0, len(args))
		for _, a := range args {
			keys = append(keys, cache.Key(a))
		}
		if len(keys) == 0 {
			entries, err := st.List(ctx)
			if err != nil {
				return eris.Wrap(err, "cache clear")
			}
			for _, e := range entries {
				keys = append(keys, e.Key)
			}
		}

		for _, k := range keys {
			if err := st.Delete(ctx, k); err != nil {
				return eris.Wrapf(err, "cache clear %s", k)
			}
		}
		zap.L().Info("join cache cleared", zap.Int("entries", len(keys)))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// formatCacheEntries writes a tabular listing of entries to w.
func formatCacheEntries(out io.Writer, entries []cache.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tCRS\tROWS\tCREATED\tSOURCE")
	_, _ = fmt.Fprintln(w, "---\t---\t----\t-------\t------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Key,
			e.CRS,
			e.Rows,
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.Source,
		)
	}
	_ = w.Flush()
}
