package integration

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/journals"
)

// Reference types double as the entry source recorded on each posting.
const (
	RefSale              = "sale"
	RefSaleRefund        = "sale_refund"
	RefSaleRefundPartial = "sale_refund_partial"
	RefOpeningBalance    = "opening_balance"
	RefPurchaseReceipt   = "purchase_receipt"
	RefExpense           = "expense"
	RefPeriodClose       = "period_close"
	RefStockExpiry       = "stock_expiry"
	RefStockAdjustment   = "stock_adjustment"
)

func SaleRef(saleID int64) *journals.Reference {
	return journals.NewReference(RefSale, saleID)
}

func SaleRefundRef(saleID int64) *journals.Reference {
	return journals.NewReference(RefSaleRefund, saleID)
}

func PartialRefundRef(group uuid.UUID) *journals.Reference {
	return journals.NewReference(RefSaleRefundPartial, group)
}

func OpeningBalanceRef(chartID int64) *journals.Reference {
	return journals.NewReference(RefOpeningBalance, chartID)
}

func PurchaseReceiptRef(invoice string) *journals.Reference {
	return journals.NewReference(RefPurchaseReceipt, invoice)
}

func ExpenseRef(ref string) *journals.Reference {
	return journals.NewReference(RefExpense, ref)
}

// PeriodCloseRef keys a close by chart and inclusive date range.
func PeriodCloseRef(chartID int64, start, end time.Time) *journals.Reference {
	return &journals.Reference{
		Type: RefPeriodClose,
		ID:   strconv.FormatInt(chartID, 10) + ":" + start.Format(time.DateOnly) + ":" + end.Format(time.DateOnly),
	}
}

// StockExpiryRef keys one expiry write-off. A batch topped up by a refund can
// expire again, so the movement id is part of the key.
func StockExpiryRef(batchID, movementID int64) *journals.Reference {
	return &journals.Reference{
		Type: RefStockExpiry,
		ID:   strconv.FormatInt(batchID, 10) + ":" + strconv.FormatInt(movementID, 10),
	}
}

func StockAdjustmentRef(key uuid.UUID) *journals.Reference {
	return journals.NewReference(RefStockAdjustment, key)
}
