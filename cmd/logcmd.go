package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/activity"
	"github.com/coldreach/coldreach/internal/store"
)

var (
	logUser    string
	logCompany string
	logSince   time.Duration
	logOut     string

	logStatsGroupBy  string
	logExportGroupBy string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Query the outreach activity log",
}

func logFilter() store.LogFilter {
	f := store.LogFilter{UserID: logUser, CompanyURL: logCompany}
	if logSince > 0 {
		f.Since = time.Now().Add(-logSince)
	}
	return f
}

var logStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate send rate and scores by company, role, score bucket or day",
	RunE: func(cmd *cobra.Command, args []string) error {
		by, err := activity.ParseGroupBy(logStatsGroupBy)
		if err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		groups, err := activity.NewLog(st).Aggregate(cmd.Context(), logFilter(), by)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSESSIONS\tSENT\tEXHAUSTED\tERRORED\tCANCELLED\tATTEMPTS\tAVG SCORE\tSEND RATE")
		for _, g := range groups {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%.3f\t%.1f%%\n",
				g.Key, g.Sessions, g.Sent, g.Exhausted, g.Errored, g.Cancelled, g.Attempts, g.AvgScore, g.SendRate*100)
		}
		return tw.Flush()
	},
}

var logExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export log entries and a summary sheet to .xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		if logOut == "" {
			return eris.New("--out is required")
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := activity.NewLog(st).List(cmd.Context(), logFilter())
		if err != nil {
			return err
		}
		var groups []activity.Group
		if logExportGroupBy != "" {
			by, err := activity.ParseGroupBy(logExportGroupBy)
			if err != nil {
				return err
			}
			groups = activity.Summarize(entries, by)
		}

		f, err := os.Create(logOut)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		if err := activity.ExportXLSX(f, entries, groups); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close export file")
		}
		zap.L().Info("log exported", zap.String("file", logOut), zap.Int("entries", len(entries)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{logStatsCmd, logExportCmd} {
		c.Flags().StringVar(&logUser, "user", "", "filter by user id")
		c.Flags().StringVar(&logCompany, "company", "", "filter by company URL")
		c.Flags().DurationVar(&logSince, "since", 0, "only entries newer than this (e.g. 168h)")
	}
	logStatsCmd.Flags().StringVar(&logStatsGroupBy, "group-by", "company", "company, role, score or day")
	logExportCmd.Flags().StringVar(&logExportGroupBy, "group-by", "", "also write a summary sheet grouped by this")
	logExportCmd.Flags().StringVar(&logOut, "out", "", "output .xlsx path")
	logCmd.AddCommand(logStatsCmd, logExportCmd)
	rootCmd.AddCommand(logCmd)
}
