package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
	"github.com/DocMeNN/DocMeNN-sub000/internal/inventory"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

// Settlement says how a delivery is paid for.
type Settlement string

const (
	SettlementPayable Settlement = "PAYABLE"
	SettlementCash    Settlement = "CASH"
	SettlementBank    Settlement = "BANK"
)

// Code returns the account credited for the delivery. Empty means payable.
func (s Settlement) Code() (accounts.Code, error) {
	switch s {
	case "", SettlementPayable:
		return accounts.CodePayable, nil
	case SettlementCash:
		return accounts.CodeCash, nil
	case SettlementBank:
		return accounts.CodeBank, nil
	}
	return "", shared.Invalid("settlement", "unsupported settlement %q", s)
}

// ReceiptLine is one delivered batch. UnitCost is required so the posted
// inventory value always equals the batch valuation.
type ReceiptLine struct {
	ProductID   int64  `validate:"required,gt=0"`
	BatchNumber string `validate:"required"`
	ExpiresOn   *time.Time
	Quantity    decimal.Decimal
	UnitCost    *decimal.Decimal
}

// Value is the line's cost at receipt.
func (l ReceiptLine) Value() decimal.Decimal {
	if l.UnitCost == nil {
		return decimal.Zero
	}
	return shared.Monetary(l.Quantity, *l.UnitCost)
}

// ReceiptInput describes a supplier delivery against one invoice.
type ReceiptInput struct {
	ChartID    int64 `validate:"gte=0"`
	StoreID    *int64
	InvoiceRef string `validate:"required"`
	Settlement Settlement
	ReceivedAt time.Time
	ActorID    int64         `validate:"gte=0"`
	Lines      []ReceiptLine `validate:"required,min=1,dive"`
}

// Receipt is the stock and ledger outcome of a delivery. Entry is empty when
// every line cost zero. AlreadyReceived is set when the invoice was received
// before; Entry is then the earlier posting and no stock is touched.
type Receipt struct {
	Batches         []inventory.Batch
	Movements       []inventory.Movement
	Value           decimal.Decimal
	Entry           journals.Entry
	AlreadyReceived bool
}
