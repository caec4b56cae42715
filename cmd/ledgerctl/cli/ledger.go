// Package cli implements the ledgerctl subcommands against narrow ports so
// they can run over PostgreSQL or the in-memory store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	closing "github.com/DocMeNN/DocMeNN-sub000/internal/close"
)

// PeriodCloser closes an accounting period.
type PeriodCloser interface {
	ClosePeriod(ctx context.Context, in closing.Input) (closing.Result, error)
}

// TrialBalancer builds a trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, chartID int64, asOf time.Time) (reports.TrialBalance, error)
}

// ChartActivator switches the active chart.
type ChartActivator interface {
	ActivateChart(ctx context.Context, chartID, actorID int64) error
}

// ChartSeeder creates a chart with the standard accounts.
type ChartSeeder interface {
	SeedStandardChart(ctx context.Context, name string, activate bool, actorID int64) (accounts.Chart, error)
}

// Output selects the writers and format of a command.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) normalize() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// CloseOptions configures close-period.
type CloseOptions struct {
	ChartID          int64
	Start            string
	End              string
	RetainedEarnings string
	ActorID          int64
	Output
}

// CloseCommand closes [Start, End] and prints the result.
func CloseCommand(ctx context.Context, svc PeriodCloser, opts CloseOptions) int {
	out := opts.Output.normalize()
	start, err := parseDay(opts.Start)
	if err != nil {
		fmt.Fprintf(out.Stderr, "close-period: invalid --start: %v\n", err)
		return 1
	}
	end, err := parseDay(opts.End)
	if err != nil {
		fmt.Fprintf(out.Stderr, "close-period: invalid --end: %v\n", err)
		return 1
	}
	res, err := svc.ClosePeriod(ctx, closing.Input{
		ChartID:              opts.ChartID,
		Start:                start,
		End:                  end,
		RetainedEarningsCode: opts.RetainedEarnings,
		ActorID:              opts.ActorID,
	})
	if err != nil {
		fmt.Fprintf(out.Stderr, "close-period: %v\n", err)
		return 1
	}
	if out.JSON {
		payload := map[string]any{
			"close_id":       res.Close.ID,
			"chart_id":       res.Close.ChartID,
			"start":          res.Close.Start.Format(time.DateOnly),
			"end":            res.Close.End.Format(time.DateOnly),
			"entry_id":       res.Close.EntryID,
			"already_closed": res.AlreadyClosed,
		}
		if err := json.NewEncoder(out.Stdout).Encode(payload); err != nil {
			fmt.Fprintf(out.Stderr, "close-period: %v\n", err)
			return 1
		}
		return 0
	}
	switch {
	case res.AlreadyClosed:
		fmt.Fprintf(out.Stdout, "Period %s..%s already closed (close %d).\n",
			res.Close.Start.Format(time.DateOnly), res.Close.End.Format(time.DateOnly), res.Close.ID)
	case res.Close.EntryID == nil:
		fmt.Fprintf(out.Stdout, "Closed %s..%s with no activity to sweep.\n",
			res.Close.Start.Format(time.DateOnly), res.Close.End.Format(time.DateOnly))
	default:
		fmt.Fprintf(out.Stdout, "Closed %s..%s; sweep entry %d.\n",
			res.Close.Start.Format(time.DateOnly), res.Close.End.Format(time.DateOnly), *res.Close.EntryID)
	}
	return 0
}

// TrialBalanceOptions configures trial-balance.
type TrialBalanceOptions struct {
	ChartID int64
	AsOf    string
	Output
}

// TrialBalanceCommand prints the trial balance of a chart. It exits 2 when
// the totals disagree.
func TrialBalanceCommand(ctx context.Context, svc TrialBalancer, opts TrialBalanceOptions, now time.Time) int {
	out := opts.Output.normalize()
	asOf := now
	if strings.TrimSpace(opts.AsOf) != "" {
		day, err := parseDay(opts.AsOf)
		if err != nil {
			fmt.Fprintf(out.Stderr, "trial-balance: invalid --as-of: %v\n", err)
			return 1
		}
		asOf = day
	}
	tb, err := svc.TrialBalance(ctx, opts.ChartID, asOf)
	if err != nil {
		fmt.Fprintf(out.Stderr, "trial-balance: %v\n", err)
		return 1
	}
	if out.JSON {
		if err := json.NewEncoder(out.Stdout).Encode(tb); err != nil {
			fmt.Fprintf(out.Stderr, "trial-balance: %v\n", err)
			return 1
		}
	} else {
		w := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "CODE\tNAME\tDEBIT\tCREDIT\t")
		for _, grp := range tb.Groups {
			for _, acc := range grp.Accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", acc.Code, acc.Name, acc.Debit.StringFixed(2), acc.Credit.StringFixed(2))
			}
		}
		fmt.Fprintf(w, "\tTOTAL\t%s\t%s\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
		if err := w.Flush(); err != nil {
			fmt.Fprintf(out.Stderr, "trial-balance: %v\n", err)
			return 1
		}
	}
	if !tb.Balanced() {
		fmt.Fprintln(out.Stderr, "trial-balance: totals do not agree")
		return 2
	}
	return 0
}

// ActivateChartCommand makes chartID the active chart.
func ActivateChartCommand(ctx context.Context, svc ChartActivator, chartID, actorID int64, out Output) int {
	out = out.normalize()
	if chartID <= 0 {
		fmt.Fprintln(out.Stderr, "chart activate: --chart is required")
		return 1
	}
	if err := svc.ActivateChart(ctx, chartID, actorID); err != nil {
		fmt.Fprintf(out.Stderr, "chart activate: %v\n", err)
		return 1
	}
	fmt.Fprintf(out.Stdout, "Chart %d is now active.\n", chartID)
	return 0
}

// SeedChartCommand creates a standard chart named name.
func SeedChartCommand(ctx context.Context, svc ChartSeeder, name string, activate bool, actorID int64, out Output) int {
	out = out.normalize()
	chart, err := svc.SeedStandardChart(ctx, name, activate, actorID)
	if err != nil {
		fmt.Fprintf(out.Stderr, "chart seed: %v\n", err)
		return 1
	}
	state := "inactive"
	if chart.Active {
		state = "active"
	}
	fmt.Fprintf(out.Stdout, "Chart %d %q created (%s).\n", chart.ID, chart.Name, state)
	return 0
}

func parseDay(raw string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(raw))
}
