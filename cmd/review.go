package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coldreach/coldreach/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the Notion queue of sessions that never cleared the threshold",
}

func requireReview(env *appEnv) (*review.Queue, error) {
	if env.Review == nil {
		return nil, eris.New("notion review queue is not configured (COLDREACH_NOTION_TOKEN, COLDREACH_NOTION_REVIEW_DB)")
	}
	return env.Review, nil
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions waiting for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		q, err := requireReview(env)
		if err != nil {
			return err
		}

		items, err := q.Pending(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tCOMPANY\tCONTACT\tSCORE\tATTEMPTS")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\n", it.SessionID, it.Company, it.Contact, it.Score, it.Attempts)
		}
		return tw.Flush()
	},
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <session-id> <sent|discard>",
	Short: "Mark a queued session as sent by hand or discarded",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var status string
		switch args[1] {
		case "sent":
			status = review.StatusSent
		case "discard":
			status = review.StatusDiscard
		default:
			return eris.Errorf("unknown resolution %q (want sent or discard)", args[1])
		}

		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		q, err := requireReview(env)
		if err != nil {
			return err
		}
		if err := q.Resolve(cmd.Context(), args[0], status); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s marked %s\n", args[0], status)
		return nil
	},
}

func init() {
	reviewCmd.AddCommand(reviewListCmd, reviewResolveCmd)
	rootCmd.AddCommand(reviewCmd)
}
