package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/reports"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

type journalStore struct{ d *DB }

func (s journalStore) EntryByReference(_ context.Context, reference string) (journals.Entry, error) {
	for _, e := range s.d.st.entries {
		if reference != "" && e.Reference == reference {
			return e, nil
		}
	}
	return journals.Entry{}, shared.ErrNotFound
}

func (s journalStore) Entry(_ context.Context, id int64) (journals.Entry, error) {
	for _, e := range s.d.st.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return journals.Entry{}, shared.ErrNotFound
}

func (s journalStore) InsertEntry(ctx context.Context, d journals.Draft) (journals.Entry, error) {
	if d.Reference() != "" {
		if _, err := s.EntryByReference(ctx, d.Reference()); err == nil {
			return journals.Entry{}, &shared.DuplicateReferenceError{Reference: d.Reference()}
		}
	}
	entry := journals.Entry{
		ID:          s.d.st.id(),
		ChartID:     d.ChartID(),
		Description: d.Description(),
		Reference:   d.Reference(),
		Source:      d.Source(),
		EffectiveAt: d.EffectiveAt(),
		PostedBy:    d.PostedBy(),
		CreatedAt:   s.d.now(),
	}
	for _, in := range d.Lines() {
		entry.Lines = append(entry.Lines, journals.Line{
			ID:        s.d.st.id(),
			EntryID:   entry.ID,
			AccountID: in.AccountID,
			Debit:     in.Debit,
			Credit:    in.Credit,
			Memo:      in.Memo,
		})
	}
	s.d.st.entries = append(s.d.st.entries, entry)
	return entry, nil
}

type periodStore struct{ d *DB }

func (s periodStore) Locked(_ context.Context, chartID int64, day time.Time) (bool, error) {
	for _, c := range s.d.st.closes {
		if c.ChartID == chartID && c.Covers(day) {
			return true, nil
		}
	}
	return false, nil
}

func (s periodStore) Overlapping(_ context.Context, chartID int64, start, end time.Time) ([]periods.Close, error) {
	var out []periods.Close
	for _, c := range s.d.st.closes {
		if c.ChartID == chartID && c.Overlaps(start, end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s periodStore) InsertClose(ctx context.Context, c periods.Close) (periods.Close, error) {
	overlapping, _ := s.Overlapping(ctx, c.ChartID, c.Start, c.End)
	if len(overlapping) > 0 {
		return periods.Close{}, periods.ErrPeriodOverlap
	}
	c.ID = s.d.st.id()
	c.Start = periods.Day(c.Start)
	c.End = periods.Day(c.End)
	c.CreatedAt = s.d.now()
	s.d.st.closes = append(s.d.st.closes, c)
	return c, nil
}

func (s periodStore) ListCloses(_ context.Context, chartID int64) ([]periods.Close, error) {
	var out []periods.Close
	for _, c := range s.d.st.closes {
		if c.ChartID == chartID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

type ledgerStore struct{ d *DB }

// Balances aggregates the same way the SQL query does: only accounts with at
// least one line in scope are returned, ordered by code.
func (s ledgerStore) Balances(_ context.Context, q reports.BalanceQuery) ([]reports.AccountBalance, error) {
	rows := make(map[int64]*reports.AccountBalance)
	for _, e := range s.d.st.entries {
		if e.EffectiveAt.After(q.To) || slices.Contains(q.ExcludeSources, e.Source) {
			continue
		}
		for _, l := range e.Lines {
			acc, ok := s.d.st.accounts[l.AccountID]
			if !ok || acc.ChartID != q.ChartID {
				continue
			}
			row, ok := rows[acc.ID]
			if !ok {
				row = &reports.AccountBalance{
					AccountID: acc.ID,
					Code:      acc.Code,
					Name:      acc.Name,
					Type:      acc.Type,
					Opening:   decimal.Zero,
					Debit:     decimal.Zero,
					Credit:    decimal.Zero,
				}
				rows[acc.ID] = row
			}
			if q.From != nil && e.EffectiveAt.Before(*q.From) {
				row.Opening = row.Opening.Add(l.Debit).Sub(l.Credit)
				continue
			}
			row.Debit = row.Debit.Add(l.Debit)
			row.Credit = row.Credit.Add(l.Credit)
		}
	}
	out := make([]reports.AccountBalance, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
