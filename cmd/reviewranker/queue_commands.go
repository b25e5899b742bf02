package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ReviewRanker/internal/app"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the ingestion queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueRecoverCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				status, err := a.Queue.Status(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"pending", strconv.Itoa(status.Pending)},
					{"processing", fmt.Sprintf("%d/%d", status.Processing, status.MaxConnections)},
					{"paused", strconv.Itoa(status.Paused)},
					{"completed", strconv.Itoa(status.Completed)},
					{"failed", strconv.Itoa(status.Failed)},
				}
				writeTable(cmd.OutOrStdout(), []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	var priority int
	cmd := &cobra.Command{
		Use:   "enqueue <businessID>",
		Short: "Request a scrape of one business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			businessID, err := parseID(args[0], "business")
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				business, err := a.Businesses.Get(cmd.Context(), businessID)
				if err != nil {
					return err
				}
				if business.PlaceID == "" {
					return fmt.Errorf("business %d has no place id", businessID)
				}
				p := business.Tier.Priority()
				if cmd.Flags().Changed("priority") {
					p = priority
				}
				job, created, err := a.Queue.Enqueue(cmd.Context(), business.ID, business.PlaceID, p)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %d for business %d (priority %d)\n", job.ID, job.BusinessID, job.Priority)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %d for business %d is already %s\n", job.ID, job.BusinessID, job.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Queue priority (default derived from tier)")
	return cmd
}

func newQueueRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reset jobs stuck in processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				reset, err := a.Queue.RecoverStuck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d stuck job(s)\n", len(reset))
				return nil
			})
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <jobID>",
		Short: "Exclude a pending job from scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				if err := a.Queue.Pause(cmd.Context(), jobID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paused job %d\n", jobID)
				return nil
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	var priority int
	cmd := &cobra.Command{
		Use:   "resume <jobID>",
		Short: "Return a paused job to scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID(args[0], "job")
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				if err := a.Queue.Resume(cmd.Context(), jobID, priority); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed job %d with priority %d\n", jobID, max(priority, 0))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority after resuming")
	return cmd
}

func parseID(raw, entity string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", entity, raw)
	}
	return id, nil
}
