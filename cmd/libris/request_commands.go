package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"libris/internal/api"
	"libris/internal/approvals"
	"libris/internal/policy"
	"libris/internal/requests"
)

func newRequestCommand(ctx *commandContext) *cobra.Command {
	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "File and review acquisition requests",
	}

	requestCmd.AddCommand(newRequestCreateCommand(ctx))
	requestCmd.AddCommand(newRequestListCommand(ctx))
	requestCmd.AddCommand(newRequestShowCommand(ctx))
	requestCmd.AddCommand(newRequestCancelCommand(ctx))
	requestCmd.AddCommand(newRequestRejectCommand(ctx))
	requestCmd.AddCommand(newRequestFulfilCommand(ctx))
	requestCmd.AddCommand(newRequestReopenCommand(ctx))

	return requestCmd
}

func newRequestCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser      string
		title       string
		author      string
		provider    string
		providerID  string
		contentType string
		sourceHint  string
		note        string
		releaseJSON string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a new acquisition request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				actor, err := resolveUser(cmd.Context(), s, "request create", asUser)
				if err != nil {
					return err
				}

				global, _ := policySettings(s.cfg)
				mode := policy.Resolve(sourceHint, contentType, global, nil)
				if mode == policy.ModeBlocked {
					return fmt.Errorf("policy blocks %s acquisitions from %q", contentType, sourceHint)
				}

				book, err := json.Marshal(map[string]string{
					"title":       strings.TrimSpace(title),
					"author":      strings.TrimSpace(author),
					"provider":    strings.TrimSpace(provider),
					"provider_id": strings.TrimSpace(providerID),
				})
				if err != nil {
					return fmt.Errorf("encode book data: %w", err)
				}

				params := approvals.CreateParams{
					UserID:      actor.ID,
					Level:       requests.LevelBook,
					SourceHint:  sourceHint,
					ContentType: contentType,
					PolicyMode:  string(mode),
					BookData:    book,
					Note:        note,
				}
				if release, err := parseJSONFlag("release", releaseJSON); err != nil {
					return err
				} else if release != nil {
					params.Level = requests.LevelRelease
					params.ReleaseData = release
				}
				if mode == policy.ModeRequestRelease && params.Level != requests.LevelRelease {
					return fmt.Errorf("policy requires a concrete release for %s from %q; pass --release", contentType, sourceHint)
				}

				created, err := s.service.Create(cmd.Context(), params)
				if err != nil {
					return err
				}

				notifyWarn(cmd, s.notifier.NotifyRequestCreated(cmd.Context(), actor.Username, title, contentType))
				fmt.Fprintf(cmd.OutOrStdout(), "Created request %d (%s)\n", created.ID, created.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting username")
	cmd.Flags().StringVar(&title, "title", "", "Work title")
	cmd.Flags().StringVar(&author, "author", "", "Work author")
	cmd.Flags().StringVar(&provider, "provider", "", "Metadata provider")
	cmd.Flags().StringVar(&providerID, "provider-id", "", "Metadata provider identifier")
	cmd.Flags().StringVar(&contentType, "content-type", "book", "Content type (book, audiobook, ...)")
	cmd.Flags().StringVar(&sourceHint, "source", "", "Preferred release source")
	cmd.Flags().StringVar(&note, "note", "", "Note for the reviewing admin")
	cmd.Flags().StringVar(&releaseJSON, "release", "", "Concrete release payload as JSON (makes this a release-level request)")
	return cmd
}

func newRequestListCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser     string
		status     string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				filter := requests.Filter{Limit: limit, Offset: offset}
				if asUser != "" {
					actor, err := resolveUser(cmd.Context(), s, "request list", asUser)
					if err != nil {
						return err
					}
					filter.UserID = &actor.ID
				}
				if status != "" {
					parsed, ok := requests.ParseStatus(status)
					if !ok {
						return fmt.Errorf("unknown status %q", status)
					}
					filter.Status = &parsed
				}

				rows, err := s.requests.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.RequestListResponse{Requests: api.FromRequests(rows)})
				}

				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No requests found")
					return nil
				}
				tableRows := make([][]string, 0, len(rows))
				for _, row := range rows {
					tableRows = append(tableRows, []string{
						strconv.FormatInt(row.ID, 10),
						strconv.FormatInt(row.UserID, 10),
						string(row.Status),
						string(row.DeliveryState),
						row.ContentType,
						bookTitle(row.BookData),
						api.FormatTime(row.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "User", "Status", "Delivery", "Type", "Title", "Created"},
					tableRows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Restrict to one username")
	cmd.Flags().StringVar(&status, "status", "", "Restrict to one status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newRequestShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				request, err := s.requests.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if request == nil {
					return fmt.Errorf("request %d does not exist", id)
				}
				if jsonOutput {
					return writeJSON(cmd, api.RequestResponse{Request: api.FromRequest(request)})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Request %d\n", request.ID)
				fmt.Fprintf(out, "  Status:        %s\n", request.Status)
				fmt.Fprintf(out, "  Delivery:      %s\n", request.DeliveryState)
				fmt.Fprintf(out, "  Level:         %s\n", request.Level)
				fmt.Fprintf(out, "  Content type:  %s\n", request.ContentType)
				fmt.Fprintf(out, "  Policy mode:   %s\n", request.PolicyMode)
				fmt.Fprintf(out, "  Title:         %s\n", bookTitle(request.BookData))
				if request.Note != "" {
					fmt.Fprintf(out, "  Note:          %s\n", request.Note)
				}
				if request.AdminNote != "" {
					fmt.Fprintf(out, "  Admin note:    %s\n", request.AdminNote)
				}
				if request.LastFailureReason != "" {
					fmt.Fprintf(out, "  Last failure:  %s\n", request.LastFailureReason)
				}
				fmt.Fprintf(out, "  Created:       %s\n", api.FormatTime(request.CreatedAt))
				if request.DeliveryUpdatedAt != nil {
					fmt.Fprintf(out, "  Delivery seen: %s\n", api.FormatTime(*request.DeliveryUpdatedAt))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func newRequestCancelCommand(ctx *commandContext) *cobra.Command {
	var asUser string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Withdraw your own pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				actor, err := resolveUser(cmd.Context(), s, "request cancel", asUser)
				if err != nil {
					return err
				}
				cancelled, err := s.service.Cancel(cmd.Context(), id, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled request %d\n", cancelled.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting username")
	return cmd
}

func newRequestRejectCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser string
		note   string
	)

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				admin, err := resolveUser(cmd.Context(), s, "request reject", asUser)
				if err != nil {
					return err
				}
				rejected, err := s.service.Reject(cmd.Context(), id, admin, note)
				if err != nil {
					return err
				}
				owner := ownerUsername(cmd.Context(), s, rejected.UserID)
				notifyWarn(cmd, s.notifier.NotifyRequestRejected(cmd.Context(), owner, bookTitle(rejected.BookData), rejected.AdminNote))
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected request %d\n", rejected.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting admin username")
	cmd.Flags().StringVar(&note, "note", "", "Reason shown to the requester")
	return cmd
}

func newRequestFulfilCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser      string
		note        string
		releaseJSON string
		manual      bool
	)

	cmd := &cobra.Command{
		Use:   "fulfil <id>",
		Short: "Approve a pending request and enqueue delivery (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				admin, err := resolveUser(cmd.Context(), s, "request fulfil", asUser)
				if err != nil {
					return err
				}
				release, err := parseJSONFlag("release", releaseJSON)
				if err != nil {
					return err
				}
				fulfilled, err := s.service.Fulfil(cmd.Context(), id, admin, approvals.FulfilParams{
					ReleaseData:    release,
					AdminNote:      note,
					ManualApproval: manual,
				})
				if err != nil {
					return err
				}
				owner := ownerUsername(cmd.Context(), s, fulfilled.UserID)
				notifyWarn(cmd, s.notifier.NotifyRequestFulfilled(cmd.Context(), owner, bookTitle(fulfilled.BookData)))
				fmt.Fprintf(cmd.OutOrStdout(), "Fulfilled request %d (delivery %s)\n", fulfilled.ID, fulfilled.DeliveryState)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Acting admin username")
	cmd.Flags().StringVar(&note, "note", "", "Note recorded with the review")
	cmd.Flags().StringVar(&releaseJSON, "release", "", "Release payload as JSON (overrides the request's own)")
	cmd.Flags().BoolVar(&manual, "manual", false, "Mark complete without enqueueing a release")
	return cmd
}

func newRequestReopenCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reset a failed delivery back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				reopened, ok, err := s.service.ReopenFailed(cmd.Context(), id, reason)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Request %d delivery is complete; not reopened\n", reopened.ID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reopened request %d\n", reopened.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason to record")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// parseJSONFlag validates an optional raw-JSON flag value.
func parseJSONFlag(name, value string) (json.RawMessage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("--%s must be valid JSON", name)
	}
	return json.RawMessage(value), nil
}

func bookTitle(data json.RawMessage) string {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Title
}

func ownerUsername(ctx context.Context, s *stores, userID int64) string {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil || owner == nil {
		return fmt.Sprintf("user %d", userID)
	}
	return owner.Username
}

// notifyWarn reports a failed notification without failing the command.
func notifyWarn(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warn: notification not delivered: %v\n", err)
	}
}
