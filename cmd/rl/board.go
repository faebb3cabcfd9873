package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/repo"
)

func boardCmd() *cobra.Command {
	board := &cobra.Command{Use: "board", Short: "Retention board"}
	board.AddCommand(boardListCmd())
	board.AddCommand(boardCardCmd())
	board.AddCommand(boardMoveCmd())
	board.AddCommand(boardUpdateCmd())
	board.AddCommand(boardFinalizeCmd())
	board.AddCommand(boardHistoryCmd())
	return board
}

func boardListCmd() *cobra.Command {
	var f engine.BoardFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List board cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Board(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, nonNil(items))
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"Card", "Student", "Column", "Priority", "Alert", "Outcome", "Due", "Tags"})
				for _, it := range items {
					outcome := ""
					if it.Card.ResultOutcome != nil {
						outcome = string(*it.Card.ResultOutcome)
					}
					tw.AppendRow(table.Row{it.Card.ID, it.Alert.StudentRef, it.Card.Column, it.Card.Priority, it.Alert.Status, outcome, deref(it.Card.DueDate), strings.Join(it.Card.Tags, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Column, "column", "", "column filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag filter")
	return cmd
}

func boardCardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "card <alert-id>",
		Short: "Show the card of an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CardForAlert(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), c)
			})
		},
	}
}

func boardMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <card-id> <todo|doing|scheduled|done|hibernating>",
		Short: "Move a card; the alert status is unchanged",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.MoveCard(ctx, args[0], domain.Column(args[1]), currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), c)
			})
		},
	}
}

func boardUpdateCmd() *cobra.Command {
	var priority, notes, due string
	var tags, attachments []string
	cmd := &cobra.Command{
		Use:   "update <card-id>",
		Short: "Update card priority, tags, notes, attachments or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u engine.CardUpdate
			if cmd.Flags().Changed("priority") {
				u.Priority = &priority
			}
			if cmd.Flags().Changed("notes") {
				u.Notes = &notes
			}
			if cmd.Flags().Changed("due") {
				u.DueDate = &due
			}
			if cmd.Flags().Changed("tags") {
				u.Tags = &tags
			}
			if cmd.Flags().Changed("attachments") {
				u.Attachments = &attachments
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCard(ctx, args[0], u, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), c)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD (empty clears)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "replace tags (comma separated)")
	cmd.Flags().StringSliceVar(&attachments, "attachments", nil, "replace attachment links (comma separated)")
	return cmd
}

func boardFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <card-id> <evaded|retained>",
		Short: "Lock the result of a closed alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.FinalizeCard(ctx, args[0], domain.ResultOutcome(args[1]), currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), c)
			})
		},
	}
}

func boardHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <card-id>",
		Short: "Show a card's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.CardHistory(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, nonNil(items))
				}
				for _, h := range items {
					fmt.Fprintf(out, "%s  %-12s %s\n", h.TS, h.ActorID, h.Line)
				}
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Retention statistics for the current month, quarter, semester and year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				periods, err := e.Statistics(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, periods)
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"Period", "Total", "Retained", "Churned", "Rate %", "vs previous", "vs last year"})
				for _, p := range periods {
					tw.AppendRow(table.Row{
						p.Window.Label, p.Total, p.Retained, p.Churned,
						fmt.Sprintf("%.1f", p.RetentionRate),
						fmt.Sprintf("%+d pp", p.Previous.PercentPointDelta),
						fmt.Sprintf("%+d pp", p.PriorYear.PercentPointDelta),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func staffCmd() *cobra.Command {
	staff := &cobra.Command{Use: "staff", Short: "Staff directory and department membership"}

	var s domain.Staff
	var dept string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a staff member, optionally to a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AddStaff(ctx, s, dept)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), res)
			})
		},
	}
	add.Flags().StringVar(&s.ID, "id", "", "staff id")
	add.Flags().StringVar(&s.Name, "name", "", "display name")
	add.Flags().StringVar(&s.Handle, "handle", "", "messaging handle")
	add.Flags().StringVar(&dept, "department", "", "administrative, financial, pedagogical or front_desk")

	var listDept string
	list := &cobra.Command{
		Use:   "list",
		Short: "List staff, or the members of one department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.Staff
				var err error
				if listDept != "" {
					items, err = e.DepartmentMembers(ctx, listDept)
				} else {
					items, err = e.Repo.ListStaff(ctx)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, nonNil(items))
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"ID", "Name", "Handle"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Handle})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listDept, "department", "", "department filter")

	var rmDept string
	remove := &cobra.Command{
		Use:   "remove <staff-id>",
		Short: "Remove a staff member from a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveFromDepartment(ctx, args[0], rmDept)
			})
		},
	}
	remove.Flags().StringVar(&rmDept, "department", "", "department")
	_ = remove.MarkFlagRequired("department")

	var keyName string
	key := &cobra.Command{
		Use:   "key <staff-id>",
		Short: "Issue an API key for a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, plain, err := e.IssueAPIKey(ctx, args[0], keyName)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{"id": k.ID, "staff_id": k.StaffID, "key": plain})
			})
		},
	}
	key.Flags().StringVar(&keyName, "name", "", "key label")

	revoke := &cobra.Command{
		Use:   "revoke-key <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	}

	staff.AddCommand(add, list, remove, key, revoke)
	return staff
}

func tailEvents(ctx context.Context, e engine.Engine, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, repo.EventFilters{
		UnitID:     e.UnitID,
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Limit:      n,
	})
}
