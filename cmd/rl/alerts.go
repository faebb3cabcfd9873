package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
)

func alertCmd() *cobra.Command {
	alert := &cobra.Command{Use: "alert", Short: "Manage retention alerts"}
	alert.AddCommand(alertCreateCmd())
	alert.AddCommand(alertListCmd())
	alert.AddCommand(alertShowCmd())
	alert.AddCommand(alertStatusCmd())
	return alert
}

func alertCreateCmd() *cobra.Command {
	var in engine.NewAlert
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an alert for a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.OccurredOn == "" {
				in.OccurredOn = time.Now().Format("2006-01-02")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAlert(ctx, in, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), a)
			})
		},
	}
	cmd.Flags().StringVar(&in.StudentRef, "student", "", "student reference")
	cmd.Flags().StringVar(&in.StudentName, "student-name", "", "student name")
	cmd.Flags().StringVar(&in.ClassRef, "class", "", "class reference")
	cmd.Flags().StringVar(&in.OriginCategory, "origin", "", "how the risk was noticed")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.OccurredOn, "occurred-on", "", "date noticed, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&in.RetentionDeadline, "deadline", "", "retention deadline, YYYY-MM-DD")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "card priority: low, medium, high, urgent")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("origin")
	return cmd
}

func alertListCmd() *cobra.Command {
	var f engine.AlertFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAlerts(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, nonNil(items))
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"ID", "Student", "Origin", "Status", "Column", "Occurred"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.StudentRef, a.OriginCategory, a.Status, a.KanbanColumn, a.OccurredOn})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Column, "column", "", "board column filter")
	cmd.Flags().StringVar(&f.StudentRef, "student", "", "student filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func alertShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <alert-id>",
		Short: "Show an alert with its activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAlert(ctx, args[0])
				if err != nil {
					return err
				}
				acts, err := e.ListActivities(ctx, a.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), map[string]any{"alert": a, "activities": nonNil(acts)})
			})
		},
	}
}

func alertStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <alert-id> <pending|retained|churned|resolved>",
		Short: "Change an alert's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.TransitionStatus(ctx, args[0], domain.AlertStatus(args[1]), currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), a)
			})
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage remediation activities"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityCompleteCmd())
	return act
}

func activityCreateCmd() *cobra.Command {
	var typ string
	var opts engine.ActivityOptions
	cmd := &cobra.Command{
		Use:   "create <alert-id>",
		Short: "Create an activity on an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.CreateActivity(ctx, args[0], typ, opts, currentActor())
				if err != nil {
					return err
				}
				return printActivities(cmd, items)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "activity type")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.PreviousActivityID, "previous", "", "activity this one follows up")
	cmd.Flags().StringVar(&opts.ClassID, "class", "", "class whose teacher is responsible (defaults to the alert's class)")
	cmd.Flags().StringVar(&opts.ScheduledDate, "date", "", "scheduled date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "start time, HH:MM")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "end time, HH:MM")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func activityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <alert-id>",
		Short: "List an alert's activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActivities(ctx, args[0])
				if err != nil {
					return err
				}
				return printActivities(cmd, items)
			})
		},
	}
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), a)
			})
		},
	}
}

func activityCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <activity-id>",
		Short: "Complete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CompleteActivity(ctx, args[0], currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), a)
			})
		},
	}
}

func negotiationCmd() *cobra.Command {
	neg := &cobra.Command{Use: "negotiation", Short: "Financial negotiations"}
	var outcome, endDate, notes string
	resolve := &cobra.Command{
		Use:   "resolve <activity-id>",
		Short: "Record the outcome of a financial negotiation",
		Long: `Outcomes:
- churn: spawns remove_from_system, cancel_subscription and remove_from_messaging.
- temporary_adjustment: spawns the two price fixes and a follow-up negotiation on --end-date.
- permanent_adjustment: spawns the two price fixes and retains the alert.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := engine.ParseNegotiationOutcome(outcome, endDate)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ResolveNegotiation(ctx, args[0], out, notes, currentActor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "negotiation %s completed; alert %s is %s\n", res.Negotiation.ID, res.Alert.ID, res.Alert.Status)
				return printActivities(cmd, res.Spawned)
			})
		},
	}
	resolve.Flags().StringVar(&outcome, "outcome", "", "churn, temporary_adjustment or permanent_adjustment")
	resolve.Flags().StringVar(&endDate, "end-date", "", "end of a temporary adjustment, YYYY-MM-DD")
	resolve.Flags().StringVar(&notes, "notes", "", "notes appended to the negotiation")
	_ = resolve.MarkFlagRequired("outcome")
	neg.AddCommand(resolve)
	return neg
}

func printActivities(cmd *cobra.Command, items []domain.Activity) error {
	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return printJSON(out, nonNil(items))
	}
	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Type", "Status", "Responsible", "Scheduled", "Previous"})
	for _, a := range items {
		responsible := deref(a.ResponsiblePersonName)
		if responsible == "" && a.ResponsibleDepartment != nil {
			responsible = string(*a.ResponsibleDepartment)
		}
		scheduled := deref(a.ScheduledDate)
		if a.StartTime != nil {
			scheduled += " " + *a.StartTime + "-" + deref(a.EndTime)
		}
		tw.AppendRow(table.Row{a.ID, a.Type, a.Status, responsible, scheduled, deref(a.PreviousActivityID)})
	}
	tw.Render()
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
