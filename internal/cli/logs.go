package cli

import (
	"context"
	"strconv"

	"github.com/dmitrijs2005/crmkeeper/internal/metrics"
)

const defaultLogRows = 20

func (a *App) showLogs(ctx context.Context, args []string) error {
	n := defaultLogRows
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return usageError("logs [n]")
		}
		n = v
	}

	entries := a.audit.List(ctx)
	if len(entries) > n {
		entries = entries[:n]
	}
	if len(entries) == 0 {
		a.println("Security log is empty")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Time().Local().Format("2006-01-02 15:04:05"), e.Action, e.UserID, e.Details,
		})
	}
	table(a.out, []string{"TIME", "ACTION", "USER", "DETAILS"}, rows)
	return nil
}

func (a *App) showMetrics(_ context.Context, _ []string) error {
	samples, err := metrics.Gather(a.registry)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.println("No events recorded in this process")
		return nil
	}

	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{s.Name, s.Labels, strconv.FormatFloat(s.Value, 'f', 0, 64)})
	}
	table(a.out, []string{"METRIC", "LABELS", "VALUE"}, rows)
	return nil
}
