package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// auditReader is the audit-log surface used by the audit commands.
type auditReader interface {
	ListRecent(ctx context.Context, limit, offset int) ([]*repositories.ExtractionLog, int64, error)
	CountByDecodePath(ctx context.Context, since time.Time) (map[string]int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// openAuditStore connects to the audit database. Replaced in tests.
var openAuditStore = func(ctx context.Context, cliCtx *CLIContext) (auditReader, func() error, error) {
	conn, err := postgres.NewConnection(ctx, cliCtx.Config.Database.PostgresConfig, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewExtractionLogRepository(conn, cliCtx.Logger), conn.Close, nil
}

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune the extraction audit log",
	}
	cmd.AddCommand(newAuditRecentCmd(), newAuditStatsCmd(), newAuditPruneCmd())
	return cmd
}

func withAuditStore(cmd *cobra.Command, fn func(ctx context.Context, cliCtx *CLIContext, store auditReader) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	store, closeFn, err := openAuditStore(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, cliCtx, store)
}

func newAuditRecentCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent extraction logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 1000 {
				return errors.New(errors.ErrCodeValidation, "limit must be between 1 and 1000").WithDetail(strconv.Itoa(limit))
			}
			return withAuditStore(cmd, func(ctx context.Context, _ *CLIContext, store auditReader) error {
				logs, total, err := store.ListRecent(ctx, limit, offset)
				if err != nil {
					return err
				}
				return PrintResult(cmd, auditLogsOutput{Logs: logs, Total: total})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows (1-1000)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

type auditLogsOutput struct {
	Logs  []*repositories.ExtractionLog `json:"logs"`
	Total int64                         `json:"total"`
}

func (o auditLogsOutput) TableHeaders() []string {
	return []string{"Created", "Request", "Source", "Path", "Entities", "Types", "Time (ms)"}
}

func (o auditLogsOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Logs))
	for i, l := range o.Logs {
		path := l.DecodePath
		if l.ModelDegraded {
			path += " (degraded)"
		}
		rows[i] = []string{
			l.CreatedAt.Format(time.RFC3339),
			truncateString(l.RequestID, 16),
			l.Source,
			path,
			strconv.Itoa(l.EntityCount),
			truncateString(strings.Join(l.EntityTypes, ","), 40),
			fmt.Sprintf("%.1f", l.ProcessingTimeMs),
		}
	}
	return rows
}

func (o auditLogsOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d logs\n", len(o.Logs), o.Total)
	for _, l := range o.Logs {
		fmt.Fprintf(&sb, "  %s %-8s %-12s %d entities\n", l.CreatedAt.Format(time.RFC3339), l.Source, l.DecodePath, l.EntityCount)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func newAuditStatsCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count extractions per decode path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				return errors.New(errors.ErrCodeValidation, "since must be positive")
			}
			return withAuditStore(cmd, func(ctx context.Context, _ *CLIContext, store auditReader) error {
				since := time.Now().Add(-window)
				counts, err := store.CountByDecodePath(ctx, since)
				if err != nil {
					return err
				}
				return PrintResult(cmd, newAuditStats(since, counts))
			})
		},
	}
	cmd.Flags().DurationVar(&window, "since", 24*time.Hour, "look-back window")
	return cmd
}

type pathCount struct {
	DecodePath string `json:"decode_path"`
	Count      int64  `json:"count"`
}

type auditStatsOutput struct {
	Since  time.Time   `json:"since"`
	Total  int64       `json:"total"`
	Counts []pathCount `json:"counts"`
}

// newAuditStats orders paths by descending count, then by name.
func newAuditStats(since time.Time, counts map[string]int64) auditStatsOutput {
	out := auditStatsOutput{Since: since, Counts: make([]pathCount, 0, len(counts))}
	for p, n := range counts {
		out.Counts = append(out.Counts, pathCount{DecodePath: p, Count: n})
		out.Total += n
	}
	sort.Slice(out.Counts, func(i, j int) bool {
		if out.Counts[i].Count != out.Counts[j].Count {
			return out.Counts[i].Count > out.Counts[j].Count
		}
		return out.Counts[i].DecodePath < out.Counts[j].DecodePath
	})
	return out
}

func (o auditStatsOutput) TableHeaders() []string { return []string{"Decode path", "Count", "Share"} }

func (o auditStatsOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Counts))
	for i, c := range o.Counts {
		rows[i] = []string{c.DecodePath, strconv.FormatInt(c.Count, 10), o.share(c.Count)}
	}
	return rows
}

func (o auditStatsOutput) share(n int64) string {
	if o.Total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(o.Total))
}

func (o auditStatsOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d extractions since %s\n", o.Total, o.Since.Format(time.RFC3339))
	for _, c := range o.Counts {
		fmt.Fprintf(&sb, "  %-12s %8d  %s\n", c.DecodePath, c.Count, o.share(c.Count))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func newAuditPruneCmd() *cobra.Command {
	var olderThan time.Duration
	var confirm bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete extraction logs older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < time.Hour {
				return errors.New(errors.ErrCodeValidation, "older-than must be at least 1h")
			}
			if !confirm {
				return errors.New(errors.ErrCodeValidation, "refusing to delete without --yes")
			}
			return withAuditStore(cmd, func(ctx context.Context, cliCtx *CLIContext, store auditReader) error {
				before := time.Now().Add(-olderThan)
				n, err := store.DeleteOlderThan(ctx, before)
				if err != nil {
					return err
				}
				cliCtx.Logger.Info("Audit log pruned", logging.Int64("deleted", n), logging.String("before", before.Format(time.RFC3339)))
				PrintSuccess(cmd, fmt.Sprintf("deleted %d logs older than %s", n, before.Format(time.RFC3339)))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "retention window")
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}

//Personal.AI order the ending
