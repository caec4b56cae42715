package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DocMeNN/DocMeNN-sub000/internal/platform/db"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// referenceConstraint guards reference uniqueness in journal_entries.
const referenceConstraint = "uq_journal_entries_reference"

// Store writes and reads journal entries. Entries and lines are insert-only.
type Store interface {
	EntryByReference(ctx context.Context, reference string) (Entry, error)
	Entry(ctx context.Context, id int64) (Entry, error)
	// InsertEntry writes the header and one ledger line per draft line. A
	// reference already taken yields DuplicateReferenceError.
	InsertEntry(ctx context.Context, d Draft) (Entry, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	q db.Querier
}

// NewStore constructs a PGStore.
func NewStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const entryColumns = `id, chart_id, description, COALESCE(reference, ''), source, effective_at, COALESCE(posted_by, 0), created_at`

func (s *PGStore) EntryByReference(ctx context.Context, reference string) (Entry, error) {
	return s.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reference=$1`, reference)
}

func (s *PGStore) Entry(ctx context.Context, id int64) (Entry, error) {
	return s.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (s *PGStore) loadEntry(ctx context.Context, query string, arg any) (Entry, error) {
	var e Entry
	err := s.q.QueryRow(ctx, query, arg).Scan(&e.ID, &e.ChartID, &e.Description, &e.Reference, &e.Source, &e.EffectiveAt, &e.PostedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	rows, err := s.q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, memo FROM ledger_lines WHERE entry_id=$1 ORDER BY id`, e.ID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo); err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (s *PGStore) InsertEntry(ctx context.Context, d Draft) (Entry, error) {
	entry := Entry{
		ChartID:     d.ChartID(),
		Description: d.Description(),
		Reference:   d.Reference(),
		Source:      d.Source(),
		EffectiveAt: d.EffectiveAt(),
		PostedBy:    d.PostedBy(),
	}
	row := s.q.QueryRow(ctx, `INSERT INTO journal_entries (chart_id, description, reference, source, effective_at, posted_by)
VALUES ($1,$2,NULLIF($3,''),$4,$5,NULLIF($6,0)) RETURNING id, created_at`,
		entry.ChartID, entry.Description, entry.Reference, entry.Source, entry.EffectiveAt, entry.PostedBy)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if name, code, ok := db.Constraint(err); ok && code == db.CodeUniqueViolation && name == referenceConstraint {
			return Entry{}, &shared.DuplicateReferenceError{Reference: entry.Reference}
		}
		return Entry{}, fmt.Errorf("journals: insert entry: %w", err)
	}
	for _, in := range d.Lines() {
		line := Line{EntryID: entry.ID, AccountID: in.AccountID, Debit: in.Debit, Credit: in.Credit, Memo: in.Memo}
		if err := s.q.QueryRow(ctx, `INSERT INTO ledger_lines (entry_id, account_id, debit, credit, memo) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			line.EntryID, line.AccountID, line.Debit, line.Credit, line.Memo).Scan(&line.ID); err != nil {
			return Entry{}, fmt.Errorf("journals: insert line: %w", err)
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, nil
}
