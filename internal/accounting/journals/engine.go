package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/periods"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Tx is the slice of a unit of work the engine writes through.
type Tx interface {
	Accounts() accounts.Store
	Journals() Store
	Periods() periods.Store
}

// Observer receives the outcome of every posting attempt.
type Observer interface {
	ObservePosting(source, outcome string)
}

// Engine is the only writer of journal entries and ledger lines.
type Engine struct {
	guard    periods.Guard
	observer Observer
	now      func() time.Time
}

// NewEngine constructs the posting engine. observer may be nil.
func NewEngine(observer Observer) *Engine {
	return &Engine{observer: observer, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post validates the input, checks chart, accounts, reference and period lock,
// then writes the entry through tx. Nothing is written on any failure.
func (e *Engine) Post(ctx context.Context, tx Tx, in PostingInput) (Entry, error) {
	draft, err := in.Build(e.now())
	if err != nil {
		e.observe(in, err)
		return Entry{}, err
	}
	entry, err := e.write(ctx, tx, draft)
	e.observe(in, err)
	return entry, err
}

func (e *Engine) write(ctx context.Context, tx Tx, draft Draft) (Entry, error) {
	if ref := draft.Reference(); ref != "" {
		_, err := tx.Journals().EntryByReference(ctx, ref)
		if err == nil {
			return Entry{}, &shared.DuplicateReferenceError{Reference: ref}
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Entry{}, fmt.Errorf("journals: reference lookup: %w", err)
		}
	}
	if err := checkAccounts(ctx, tx.Accounts(), draft); err != nil {
		return Entry{}, err
	}
	locked, err := e.guard.IsLocked(ctx, tx.Periods(), draft.ChartID(), draft.EffectiveAt())
	if err != nil {
		return Entry{}, err
	}
	if locked {
		return Entry{}, &shared.PeriodLockedError{ChartID: draft.ChartID(), Date: periods.Day(draft.EffectiveAt())}
	}
	return tx.Journals().InsertEntry(ctx, draft)
}

// checkAccounts re-reads the chart under a share lock so an activation racing
// with a cached resolution cannot slip a posting into a superseded chart.
func checkAccounts(ctx context.Context, st accounts.Store, draft Draft) error {
	chartID := draft.ChartID()
	chart, err := st.ChartForShare(ctx, chartID)
	if errors.Is(err, shared.ErrNotFound) {
		return &shared.AccountResolutionError{ChartID: chartID, Reason: "chart not found"}
	}
	if err != nil {
		return fmt.Errorf("journals: load chart: %w", err)
	}
	if !chart.Active {
		return &shared.AccountResolutionError{ChartID: chartID, Reason: "chart is not active"}
	}
	ids := draft.AccountIDs()
	found, err := st.AccountsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("journals: load accounts: %w", err)
	}
	byID := make(map[int64]accounts.Account, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	for _, id := range ids {
		a, ok := byID[id]
		switch {
		case !ok:
			return &shared.AccountResolutionError{ChartID: chartID, Reason: fmt.Sprintf("account %d not found", id)}
		case a.ChartID != chartID:
			return &shared.AccountResolutionError{ChartID: chartID, Code: a.Code, Reason: fmt.Sprintf("account belongs to chart %d", a.ChartID)}
		case !a.Active:
			return &shared.AccountResolutionError{ChartID: chartID, Code: a.Code, Reason: "account inactive"}
		}
	}
	return nil
}

func (e *Engine) observe(in PostingInput, err error) {
	if e.observer == nil {
		return
	}
	source := SourceManual
	if in.Reference != nil {
		source = normalizePart(in.Reference.Type)
	}
	e.observer.ObservePosting(source, Outcome(err))
}

// Outcome labels a posting result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "posted"
	case errors.Is(err, shared.ErrDuplicateReference):
		return "duplicate"
	case errors.Is(err, shared.ErrImbalance):
		return "imbalance"
	case errors.Is(err, shared.ErrPeriodLocked):
		return "period_locked"
	case errors.Is(err, shared.ErrAccountResolution):
		return "account_resolution"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
