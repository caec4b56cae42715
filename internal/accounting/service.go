// Package accounting administers charts of accounts and posts manual
// journal entries.
package accounting

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AccountInput describes a new account.
type AccountInput struct {
	ChartID int64  `validate:"required,gt=0"`
	Code    string `validate:"required,max=32"`
	Name    string `validate:"required"`
	Type    accounts.Type
}

// Service coordinates chart administration and manual postings.
type Service struct {
	runner   store.Runner
	registry *accounts.Registry
	engine   *journals.Engine
	audit    AuditPort
	logger   *slog.Logger
}

// NewService constructs the ledger service. audit may be nil.
func NewService(runner store.Runner, registry *accounts.Registry, engine *journals.Engine, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, registry: registry, engine: engine, audit: audit, logger: logger}
}

// CreateChart creates an inactive chart.
func (s *Service) CreateChart(ctx context.Context, name string) (accounts.Chart, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return accounts.Chart{}, shared.Invalid("name", "required")
	}
	var chart accounts.Chart
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		chart, err = tx.Accounts().CreateChart(ctx, name)
		return err
	})
	return chart, err
}

// SeedStandardChart creates a chart holding the standard accounts in one
// transaction and, when activate is set, makes it the active chart.
func (s *Service) SeedStandardChart(ctx context.Context, name string, activate bool, actorID int64) (accounts.Chart, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return accounts.Chart{}, shared.Invalid("name", "required")
	}
	var chart accounts.Chart
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		chart, err = tx.Accounts().CreateChart(ctx, name)
		if err != nil {
			return err
		}
		for _, sa := range accounts.StandardAccounts() {
			if _, err := tx.Accounts().CreateAccount(ctx, accounts.Account{
				ChartID: chart.ID, Code: sa.Code, Name: sa.Name, Type: sa.Type, Active: true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return accounts.Chart{}, err
	}
	s.logger.Info("standard chart seeded", slog.Int64("chart_id", chart.ID), slog.String("name", chart.Name))
	if !activate {
		return chart, nil
	}
	if err := s.ActivateChart(ctx, chart.ID, actorID); err != nil {
		return accounts.Chart{}, err
	}
	chart.Active = true
	return chart, nil
}

// CreateAccount adds an active account to a chart.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (accounts.Account, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return accounts.Account{}, err
	}
	if !in.Type.Valid() {
		return accounts.Account{}, shared.Invalid("type", "unknown account type %q", in.Type)
	}
	var acc accounts.Account
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Accounts().ChartByID(ctx, in.ChartID); err != nil {
			return err
		}
		var err error
		acc, err = tx.Accounts().CreateAccount(ctx, accounts.Account{
			ChartID: in.ChartID,
			Code:    strings.TrimSpace(in.Code),
			Name:    strings.TrimSpace(in.Name),
			Type:    in.Type,
			Active:  true,
		})
		return err
	})
	return acc, err
}

// MapCode points a semantic code at an account of the chart. Cached
// resolutions are dropped once the mapping is committed.
func (s *Service) MapCode(ctx context.Context, chartID int64, code accounts.Code, accountCode string) error {
	semantic := accounts.Code(accounts.NormalizeCode(string(code)))
	if _, ok := accounts.DefaultCode(semantic); !ok {
		return shared.Invalid("code", "unknown semantic code %q", code)
	}
	accountCode = strings.TrimSpace(accountCode)
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Accounts().AccountByCode(ctx, chartID, accountCode); err != nil {
			return err
		}
		return tx.Accounts().MapCode(ctx, chartID, semantic, accountCode)
	})
	if err != nil {
		return err
	}
	return s.registry.Invalidate(ctx)
}

// ActivateChart makes chartID the only active chart, then invalidates every
// registry so no process keeps resolving against the previous chart.
func (s *Service) ActivateChart(ctx context.Context, chartID, actorID int64) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Accounts().ActivateChart(ctx, chartID)
	})
	if err != nil {
		return err
	}
	if err := s.registry.Invalidate(ctx); err != nil {
		return err
	}
	s.logger.Info("chart activated", slog.Int64("chart_id", chartID))
	s.record(ctx, shared.AuditLog{ActorID: actorID, Action: "chart.activate", Entity: "chart", EntityID: strconv.FormatInt(chartID, 10)})
	return nil
}

// ListAccounts returns the accounts of a chart ordered by code.
func (s *Service) ListAccounts(ctx context.Context, chartID int64) ([]accounts.Account, error) {
	var out []accounts.Account
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := s.registry.ChartID(ctx, tx.Accounts(), chartID)
		if err != nil {
			return err
		}
		out, err = tx.Accounts().ListAccounts(ctx, id)
		return err
	})
	return out, err
}

// PostJournal posts a manual entry in its own transaction. ChartID zero
// posts to the active chart.
func (s *Service) PostJournal(ctx context.Context, in journals.PostingInput) (journals.Entry, error) {
	var entry journals.Entry
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := s.registry.ChartID(ctx, tx.Accounts(), in.ChartID)
		if err != nil {
			return err
		}
		in.ChartID = id
		entry, err = s.engine.Post(ctx, tx, in)
		return err
	})
	if err != nil {
		return journals.Entry{}, err
	}
	debit, _ := entry.Totals()
	s.record(ctx, shared.AuditLog{
		ActorID:  in.PostedBy,
		Action:   "journal.post",
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     map[string]any{"reference": entry.Reference, "source": entry.Source, "total": debit.StringFixed(2)},
	})
	return entry, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}
