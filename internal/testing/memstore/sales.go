package memstore

import (
	"context"
	"time"

	"github.com/DocMeNN/DocMeNN-sub000/internal/sales"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

type saleStore struct{ d *DB }

func (s saleStore) CreateCart(_ context.Context, cart sales.Cart) (sales.Cart, error) {
	cart.ID = s.d.st.id()
	cart.Active = true
	lines := make([]sales.CartLine, len(cart.Lines))
	for i, l := range cart.Lines {
		l.ID = s.d.st.id()
		l.CartID = cart.ID
		lines[i] = l
	}
	cart.Lines = lines
	s.d.st.carts[cart.ID] = cart
	return cart, nil
}

func (s saleStore) LockCart(_ context.Context, id int64) (sales.Cart, error) {
	cart, ok := s.d.st.carts[id]
	if !ok {
		return sales.Cart{}, shared.ErrNotFound
	}
	cart.Lines = append([]sales.CartLine(nil), cart.Lines...)
	return cart, nil
}

func (s saleStore) CloseCart(_ context.Context, id int64) error {
	cart, ok := s.d.st.carts[id]
	if !ok {
		return nil
	}
	cart.Active = false
	cart.Lines = nil
	s.d.st.carts[id] = cart
	return nil
}

func (s saleStore) InsertSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	sale.ID = s.d.st.id()
	sale.Status = sales.StatusDraft
	sale.CreatedAt = s.d.now()
	items := make([]sales.Item, len(sale.Items))
	for i, it := range sale.Items {
		it.ID = s.d.st.id()
		it.SaleID = sale.ID
		items[i] = it
	}
	sale.Items = items
	sale.Legs = nil
	s.d.st.sales[sale.ID] = sale
	return copySale(sale), nil
}

func (s saleStore) CompleteSale(_ context.Context, sale sales.Sale) error {
	stored, ok := s.d.st.sales[sale.ID]
	if !ok || stored.Status != sales.StatusDraft {
		return shared.Invalid("status", "sale %d is not a draft", sale.ID)
	}
	sale = copySale(sale)
	sale.Status = sales.StatusCompleted
	sale.CreatedAt = stored.CreatedAt
	for i := range sale.Legs {
		sale.Legs[i].ID = s.d.st.id()
		sale.Legs[i].SaleID = sale.ID
	}
	s.d.st.sales[sale.ID] = sale
	return nil
}

func (s saleStore) Sale(_ context.Context, id int64) (sales.Sale, error) {
	sale, ok := s.d.st.sales[id]
	if !ok {
		return sales.Sale{}, shared.ErrNotFound
	}
	return copySale(sale), nil
}

func (s saleStore) LockSale(ctx context.Context, id int64) (sales.Sale, error) {
	return s.Sale(ctx, id)
}

func (s saleStore) MarkRefunded(_ context.Context, id int64, at time.Time) error {
	sale, ok := s.d.st.sales[id]
	if !ok || sale.Status != sales.StatusCompleted {
		return shared.Invalid("status", "sale %d is not completed", id)
	}
	sale.Status = sales.StatusRefunded
	sale.RefundedAt = &at
	s.d.st.sales[id] = sale
	return nil
}

func (s saleStore) InsertItemRefunds(_ context.Context, rows []sales.ItemRefund) ([]sales.ItemRefund, error) {
	out := make([]sales.ItemRefund, 0, len(rows))
	for _, r := range rows {
		r.ID = s.d.st.id()
		r.CreatedAt = s.d.now()
		s.d.st.itemRefunds = append(s.d.st.itemRefunds, r)
		out = append(out, r)
	}
	return out, nil
}

func (s saleStore) ItemRefunds(_ context.Context, saleID int64) ([]sales.ItemRefund, error) {
	var out []sales.ItemRefund
	for _, r := range s.d.st.itemRefunds {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s saleStore) InsertRefundAudit(_ context.Context, a sales.RefundAudit) (sales.RefundAudit, error) {
	if _, ok := s.d.st.audits[a.SaleID]; ok {
		return sales.RefundAudit{}, sales.ErrAuditExists
	}
	a.ID = s.d.st.id()
	a.CreatedAt = s.d.now()
	s.d.st.audits[a.SaleID] = a
	return a, nil
}

func (s saleStore) RefundAudit(_ context.Context, saleID int64) (sales.RefundAudit, error) {
	a, ok := s.d.st.audits[saleID]
	if !ok {
		return sales.RefundAudit{}, shared.ErrNotFound
	}
	return a, nil
}

func copySale(s sales.Sale) sales.Sale {
	s.Items = append([]sales.Item(nil), s.Items...)
	s.Legs = append([]sales.PaymentLeg(nil), s.Legs...)
	return s
}
