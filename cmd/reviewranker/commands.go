package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ReviewRanker/internal/app"
	"ReviewRanker/internal/domain"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled refresh cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newCycleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one refresh cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				now := time.Now().In(a.Config.Scheduler.Location())
				report, err := a.Scheduler.RunNow(cmd.Context(), now)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import review records from a JSON file and re-rank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				report, err := a.Pipeline.Import(cmd.Context(), records)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

// readRecords accepts a bare JSON array or an object with a "records" array.
func readRecords(path string) ([]domain.ReviewRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw = bytes.TrimSpace(raw)

	var records []domain.ReviewRecord
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &records)
	} else {
		var wrapped struct {
			Records []domain.ReviewRecord `json:"records"`
		}
		err = json.Unmarshal(raw, &wrapped)
		records = wrapped.Records
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func newRankCommand(ctx *commandContext) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Recompute rankings for recently imported reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				var cutoff time.Time
				if since > 0 {
					cutoff = time.Now().Add(-since)
				}
				summary, err := a.Pipeline.Rank(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "Rescore businesses with reviews imported within this window (default ranking.refreshWindow)")
	return cmd
}

func newTopCommand(ctx *commandContext) *cobra.Command {
	var (
		category string
		city     string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the top ranked businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				records, err := a.Rankings.TopRanked(cmd.Context(), category, city, limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No ranked businesses")
					return nil
				}
				writeTable(cmd.OutOrStdout(), topHeaders, topRows(records), topAligns)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&city, "city", "", "Filter by city")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of businesses to show (max 100)")
	return cmd
}

var (
	topHeaders = []string{"Rank", "Business", "Category", "City", "Score", "Reviews", "Rating", "Trend"}
	topAligns  = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
)

func topRows(records []domain.RankingRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		trend := r.Trend()
		if m := r.Movement(); m != 0 {
			trend = fmt.Sprintf("%s %+d", trend, m)
		}
		name := r.BusinessName
		if name == "" {
			name = "#" + strconv.FormatInt(r.BusinessID, 10)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.RankPosition),
			name,
			r.Category,
			r.City,
			strconv.FormatFloat(r.TotalScore, 'f', 2, 64),
			strconv.Itoa(r.ReviewsAnalyzed),
			strconv.FormatFloat(r.AverageRating, 'f', 1, 64),
			trend,
		})
	}
	return rows
}
