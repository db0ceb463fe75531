package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/store"
	"github.com/you/turnbell/internal/version"
)

func newRemindCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run the reminder evaluator once and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.svc.RunReminders(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func newGamesCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List games with a pending turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()

			games, err := a.svc.ActiveGames(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), games)
			}
			return writeGames(cmd.OutOrStdout(), games)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <game-key>",
		Short: "Show completed turns for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func newRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <game-key>",
		Short: "Stop tracking a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.RemoveGame(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return errors.Errorf("game %q is not tracked", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func writeGames(w io.Writer, games []core.TurnRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tGAME\tPLAYER\tROUND\tSTARTED\tREMINDERS")
	for _, g := range games {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			g.Key, g.GameName, g.SteamUsername, g.RoundNumber, g.TurnStartedAt, g.ReminderCount)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
