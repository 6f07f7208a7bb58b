package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/store"
)

var (
	sessionsUser    string
	sessionsCompany string
	sessionsOutcome string
	sessionsLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect outreach sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sessions, err := st.ListSessions(cmd.Context(), store.SessionFilter{
			UserID:     sessionsUser,
			CompanyURL: sessionsCompany,
			Outcome:    model.Outcome(sessionsOutcome),
			Limit:      sessionsLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSER\tCOMPANY\tCONTACT\tOUTCOME\tATTEMPTS\tSCORE")
		for _, s := range sessions {
			contact := "-"
			if s.Contact != nil {
				contact = s.Contact.Name
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f\n",
				s.ID, s.UserID, s.CompanyURL, contact, s.Outcome, len(s.Attempts), s.FinalScore)
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session with all of its attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := st.GetSession(cmd.Context(), args[0])
		if storeNotFound(err) {
			return eris.Errorf("session %s not found", args[0])
		}
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), s)
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsUser, "user", "", "filter by user id")
	sessionsListCmd.Flags().StringVar(&sessionsCompany, "company", "", "filter by company URL")
	sessionsListCmd.Flags().StringVar(&sessionsOutcome, "outcome", "", "filter by outcome")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
