package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Poster resolves posting accounts through the registry and writes entries
// through the engine, always inside the caller's transaction.
type Poster struct {
	registry *accounts.Registry
	engine   *journals.Engine
	logger   *slog.Logger
}

// NewPoster constructs a Poster.
func NewPoster(registry *accounts.Registry, engine *journals.Engine, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{registry: registry, engine: engine, logger: logger}
}

// ChartID picks the chart for a posting; see accounts.Registry.ChartID.
func (p *Poster) ChartID(ctx context.Context, tx journals.Tx, explicit int64) (int64, error) {
	return p.registry.ChartID(ctx, tx.Accounts(), explicit)
}

// Resolve maps every code to an active account of chartID.
func (p *Poster) Resolve(ctx context.Context, tx journals.Tx, chartID int64, codes ...accounts.Code) (Accounts, error) {
	out := make(Accounts, len(codes))
	for _, code := range codes {
		if _, ok := out[code]; ok {
			continue
		}
		acc, err := p.registry.Resolve(ctx, tx.Accounts(), chartID, string(code))
		if err != nil {
			return nil, err
		}
		out[code] = acc.ID
	}
	return out, nil
}

// Post writes the entry. A duplicate reference is returned as an error.
func (p *Poster) Post(ctx context.Context, tx journals.Tx, in journals.PostingInput) (journals.Entry, error) {
	return p.engine.Post(ctx, tx, in)
}

// PostIdempotent treats an already posted reference as done and returns the
// existing entry with existed set.
func (p *Poster) PostIdempotent(ctx context.Context, tx journals.Tx, in journals.PostingInput) (journals.Entry, bool, error) {
	entry, err := p.engine.Post(ctx, tx, in)
	if err == nil {
		return entry, false, nil
	}
	var dup *shared.DuplicateReferenceError
	if !errors.As(err, &dup) {
		return journals.Entry{}, false, err
	}
	existing, lookupErr := tx.Journals().EntryByReference(ctx, dup.Reference)
	if lookupErr != nil {
		// The insert lost a race and the transaction is aborted.
		return journals.Entry{}, false, err
	}
	p.logger.Info("posting already recorded", slog.String("reference", dup.Reference), slog.Int64("entry_id", existing.ID))
	return existing, true, nil
}
