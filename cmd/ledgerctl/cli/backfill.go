package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
)

// BackfillMode enumerates supported execution strategies.
type BackfillMode string

const (
	// BackfillModeDry previews batches without a cost.
	BackfillModeDry BackfillMode = "dry"
	// BackfillModeApply writes costs after confirmation.
	BackfillModeApply BackfillMode = "apply"
)

// ExitMissing is returned by a dry run that found uncosted batches.
const ExitMissing = 10

// CostBackfiller reads and fills unknown batch costs.
type CostBackfiller interface {
	MissingCost(ctx context.Context) ([]inventory.Batch, error)
	BackfillCosts(ctx context.Context, costs map[int64]decimal.Decimal) ([]int64, error)
}

// BackfillOptions configures the backfill command execution.
type BackfillOptions struct {
	Mode         BackfillMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// BackfillSummary captures the structured reporting outcome.
type BackfillSummary struct {
	Mode       BackfillMode        `json:"mode"`
	Missing    []MissingBatch      `json:"missing"`
	Candidates []BackfillCandidate `json:"candidates"`
	Applied    []int64             `json:"applied,omitempty"`
}

// MissingBatch describes a batch received without a cost.
type MissingBatch struct {
	BatchID     int64  `json:"batch_id"`
	ProductID   int64  `json:"product_id"`
	BatchNumber string `json:"batch_number"`
	Remaining   string `json:"remaining"`
}

// BackfillCandidate is a cost read from the CSV source.
type BackfillCandidate struct {
	BatchID  int64  `json:"batch_id"`
	UnitCost string `json:"unit_cost"`
}

// CostCLI runs the batch cost backfill.
type CostCLI struct {
	svc CostBackfiller
}

// NewCostCLI wires the backfill command.
func NewCostCLI(svc CostBackfiller) (*CostCLI, error) {
	if svc == nil {
		return nil, errors.New("cost cli: backfiller required")
	}
	return &CostCLI{svc: svc}, nil
}

// BackfillCommand executes the cost backfill workflow and returns the exit code.
func (c *CostCLI) BackfillCommand(ctx context.Context, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = BackfillModeDry
	}
	mode := BackfillMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case BackfillModeDry, BackfillModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "backfill-cost: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	batches, err := c.svc.MissingCost(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill-cost: list batches: %v\n", err)
		return 1
	}
	summary := BackfillSummary{Mode: mode, Missing: make([]MissingBatch, 0, len(batches))}
	for _, b := range batches {
		summary.Missing = append(summary.Missing, MissingBatch{
			BatchID:     b.ID,
			ProductID:   b.ProductID,
			BatchNumber: b.BatchNumber,
			Remaining:   b.Remaining.String(),
		})
	}

	costs, err := loadCosts(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill-cost: %v\n", err)
		return 1
	}
	summary.Candidates = candidatesFor(summary.Missing, costs)

	if mode == BackfillModeDry || len(summary.Missing) == 0 {
		if err := writeBackfillOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "backfill-cost: %v\n", err)
			return 1
		}
		if mode == BackfillModeDry && len(summary.Missing) > 0 {
			return ExitMissing
		}
		return 0
	}

	if len(summary.Candidates) == 0 {
		fmt.Fprintln(opts.Stderr, "backfill-cost: source has no cost for any uncosted batch")
		return 1
	}
	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill-cost: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "backfill-cost: cancelled by user")
		return 1
	}
	apply := make(map[int64]decimal.Decimal, len(summary.Candidates))
	for _, candidate := range summary.Candidates {
		apply[candidate.BatchID] = costs[candidate.BatchID]
	}
	applied, err := c.svc.BackfillCosts(ctx, apply)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill-cost: apply failed: %v\n", err)
		return 1
	}
	summary.Applied = applied
	if err := writeBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "backfill-cost: %v\n", err)
		return 1
	}
	return 0
}

func loadCosts(opts BackfillOptions) (map[int64]decimal.Decimal, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return map[int64]decimal.Decimal{}, nil
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := nextNonEmptyRecord(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[int64]decimal.Decimal{}, nil
		}
		return nil, err
	}
	idIdx, costIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "batch_id", "batch":
			idIdx = i
		case "unit_cost", "cost":
			costIdx = i
		}
	}
	if idIdx < 0 || costIdx < 0 {
		return nil, errors.New("missing required columns in source (need batch_id, unit_cost)")
	}
	result := make(map[int64]decimal.Decimal)
	for {
		record, err := nextNonEmptyRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if idIdx >= len(record) || costIdx >= len(record) {
			return nil, errors.New("invalid record length in source")
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[idIdx]), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid batch_id %q in source", record[idIdx])
		}
		cost, err := decimal.NewFromString(strings.TrimSpace(record[costIdx]))
		if err != nil {
			return nil, fmt.Errorf("invalid unit_cost for batch %d: %v", id, err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("negative unit_cost for batch %d", id)
		}
		result[id] = cost
	}
	return result, nil
}

func nextNonEmptyRecord(r *csv.Reader) ([]string, error) {
	for {
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		for _, field := range record {
			trimmed := strings.TrimSpace(field)
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				return record, nil
			}
		}
	}
}

func candidatesFor(missing []MissingBatch, costs map[int64]decimal.Decimal) []BackfillCandidate {
	rows := make([]BackfillCandidate, 0, len(costs))
	for _, b := range missing {
		if cost, ok := costs[b.BatchID]; ok {
			rows = append(rows, BackfillCandidate{BatchID: b.BatchID, UnitCost: cost.String()})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BatchID < rows[j].BatchID })
	return rows
}

func writeBackfillOutput(opts BackfillOptions, summary BackfillSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderBackfillHuman(opts.Stdout, summary)
	return nil
}

func renderBackfillHuman(out io.Writer, summary BackfillSummary) {
	fmt.Fprintf(out, "Cost backfill (%s)\n", summary.Mode)
	if len(summary.Missing) == 0 {
		fmt.Fprintln(out, "No uncosted batches.")
	} else {
		fmt.Fprintf(out, "%d batch(es) without cost:\n", len(summary.Missing))
		for _, b := range summary.Missing {
			fmt.Fprintf(out, " - batch %d (product %d, %s) remaining %s\n", b.BatchID, b.ProductID, b.BatchNumber, b.Remaining)
		}
	}
	if len(summary.Candidates) > 0 {
		fmt.Fprintln(out, "Source costs:")
		for _, c := range summary.Candidates {
			fmt.Fprintf(out, " - batch %d unit cost %s\n", c.BatchID, c.UnitCost)
		}
	}
	if len(summary.Applied) > 0 {
		fmt.Fprintf(out, "Applied to %d batch(es).\n", len(summary.Applied))
	}
}

func defaultConfirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Apply these costs? [y/N]: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
