package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var profileSources sourceFlags

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage cached sender profiles",
}

var profileBuildCmd = &cobra.Command{
	Use:   "build <user-id>",
	Short: "Build a profile, or return the cached one if its sources are unchanged",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := profileSources.sources()
		if err != nil {
			return err
		}
		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Profiles.GetOrBuild(cmd.Context(), args[0], sources)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Profiles.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return eris.Errorf("no profile for %s", args[0])
		}
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

var profileInvalidateCmd = &cobra.Command{
	Use:   "invalidate <user-id>",
	Short: "Force the next build to re-summarize the sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Profiles.Invalidate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %s invalidated\n", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initStoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Profiles.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %s deleted\n", args[0])
		return nil
	},
}

func init() {
	profileSources.register(profileBuildCmd)
	profileCmd.AddCommand(profileBuildCmd, profileShowCmd, profileInvalidateCmd, profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}
