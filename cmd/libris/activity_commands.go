package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"libris/internal/activity"
	"libris/internal/api"
)

func newActivityCommand(ctx *commandContext) *cobra.Command {
	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Browse and curate the terminal-activity ledger",
	}

	activityCmd.AddCommand(newActivityListCommand(ctx))
	activityCmd.AddCommand(newActivityHistoryCommand(ctx))
	activityCmd.AddCommand(newActivityDismissCommand(ctx))
	activityCmd.AddCommand(newActivityClearCommand(ctx))

	return activityCmd
}

func newActivityListCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser     string
		owner      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List finished downloads you have not dismissed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				viewer, err := resolveUser(cmd.Context(), s, "activity list", asUser)
				if err != nil {
					return err
				}
				var ownerID *int64
				if owner != "" {
					ownerUser, err := resolveUser(cmd.Context(), s, "activity list", owner)
					if err != nil {
						return err
					}
					ownerID = &ownerUser.ID
				}

				entries, err := s.ledger.UndismissedTerminalDownloads(cmd.Context(), viewer.ID, ownerID, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.ActivityListResponse{Entries: api.FromActivityEntries(entries)})
				}

				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No undismissed downloads")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						entry.ItemKey,
						string(entry.FinalStatus),
						string(entry.Origin),
						api.FormatTime(entry.TerminalAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Item", "Outcome", "Origin", "Finished"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Viewing username")
	cmd.Flags().StringVar(&owner, "owner", "", "Restrict to items owned by this username")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newActivityHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser     string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your dismissed items, newest dismissal first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				viewer, err := resolveUser(cmd.Context(), s, "activity history", asUser)
				if err != nil {
					return err
				}

				entries, err := s.ledger.History(cmd.Context(), viewer.ID, limit, offset)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.HistoryResponse{History: api.FromHistory(entries)})
				}

				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No dismissed items")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					outcome := "-"
					if entry.Entry != nil {
						outcome = string(entry.Entry.FinalStatus)
						if entry.Reconstructed {
							outcome += " (reconstructed)"
						}
					}
					rows = append(rows, []string{
						entry.Dismissal.ItemKey,
						string(entry.Dismissal.ItemType),
						outcome,
						api.FormatTime(entry.Dismissal.DismissedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Item", "Type", "Outcome", "Dismissed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Viewing username")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newActivityDismissCommand(ctx *commandContext) *cobra.Command {
	var asUser string

	cmd := &cobra.Command{
		Use:   "dismiss <item-key>...",
		Short: "Dismiss finished items from your activity view",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]activity.DismissParams, 0, len(args))
			for _, arg := range args {
				itemType, key, err := activity.ParseItemKey(arg)
				if err != nil {
					return err
				}
				items = append(items, activity.DismissParams{ItemType: itemType, ItemKey: key})
			}
			return ctx.withStores(func(s *stores) error {
				viewer, err := resolveUser(cmd.Context(), s, "activity dismiss", asUser)
				if err != nil {
					return err
				}
				dismissed, err := s.ledger.DismissMany(cmd.Context(), viewer.ID, items)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %d item(s)\n", len(dismissed))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting username")
	return cmd
}

func newActivityClearCommand(ctx *commandContext) *cobra.Command {
	var asUser string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all of your dismissals (ledger rows are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				viewer, err := resolveUser(cmd.Context(), s, "activity clear", asUser)
				if err != nil {
					return err
				}
				cleared, err := s.ledger.ClearHistory(cmd.Context(), viewer.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d dismissal(s)\n", cleared)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting username")
	return cmd
}
