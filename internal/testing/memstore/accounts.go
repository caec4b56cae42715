package memstore

import (
	"context"
	"sort"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

type accountStore struct{ d *DB }

func (s accountStore) ActiveChart(context.Context) (accounts.Chart, error) {
	for _, c := range s.d.st.charts {
		if c.Active {
			return c, nil
		}
	}
	return accounts.Chart{}, shared.ErrNotFound
}

func (s accountStore) ChartByID(_ context.Context, id int64) (accounts.Chart, error) {
	c, ok := s.d.st.charts[id]
	if !ok {
		return accounts.Chart{}, shared.ErrNotFound
	}
	return c, nil
}

func (s accountStore) ChartForShare(ctx context.Context, id int64) (accounts.Chart, error) {
	return s.ChartByID(ctx, id)
}

func (s accountStore) ListCharts(context.Context) ([]accounts.Chart, error) {
	out := make([]accounts.Chart, 0, len(s.d.st.charts))
	for _, c := range s.d.st.charts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s accountStore) CreateChart(_ context.Context, name string) (accounts.Chart, error) {
	for _, c := range s.d.st.charts {
		if c.Name == name {
			return accounts.Chart{}, shared.Invalid("name", "chart %s already exists", name)
		}
	}
	c := accounts.Chart{ID: s.d.st.id(), Name: name, CreatedAt: s.d.now()}
	s.d.st.charts[c.ID] = c
	return c, nil
}

func (s accountStore) ActivateChart(_ context.Context, id int64) error {
	if _, ok := s.d.st.charts[id]; !ok {
		return shared.ErrNotFound
	}
	for cid, c := range s.d.st.charts {
		c.Active = cid == id
		s.d.st.charts[cid] = c
	}
	return nil
}

func (s accountStore) CreateAccount(_ context.Context, a accounts.Account) (accounts.Account, error) {
	for _, existing := range s.d.st.accounts {
		if existing.ChartID == a.ChartID && existing.Code == a.Code {
			return accounts.Account{}, shared.Invalid("code", "account code %s already exists in chart %d", a.Code, a.ChartID)
		}
	}
	a.ID = s.d.st.id()
	a.CreatedAt = s.d.now()
	s.d.st.accounts[a.ID] = a
	return a, nil
}

func (s accountStore) AccountByCode(_ context.Context, chartID int64, code string) (accounts.Account, error) {
	for _, a := range s.d.st.accounts {
		if a.ChartID == chartID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, shared.ErrNotFound
}

func (s accountStore) AccountsByIDs(_ context.Context, ids []int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, id := range ids {
		if a, ok := s.d.st.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s accountStore) ListAccounts(_ context.Context, chartID int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range s.d.st.accounts {
		if a.ChartID == chartID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s accountStore) MappedCode(_ context.Context, chartID int64, code accounts.Code) (string, error) {
	v, ok := s.d.st.mappings[mappingKey{chartID: chartID, code: code}]
	if !ok {
		return "", shared.ErrNotFound
	}
	return v, nil
}

func (s accountStore) MapCode(_ context.Context, chartID int64, code accounts.Code, accountCode string) error {
	s.d.st.mappings[mappingKey{chartID: chartID, code: code}] = accountCode
	return nil
}

// StandardChart maps each semantic code to the account seeded for it.
type StandardChart struct {
	Chart    accounts.Chart
	Accounts map[accounts.Code]accounts.Account
}

// ID returns the account id seeded for code.
func (c StandardChart) ID(code accounts.Code) int64 {
	return c.Accounts[code].ID
}

// SeedStandardChart creates a chart holding one account per default code.
func (d *DB) SeedStandardChart(name string, active bool) StandardChart {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx := context.Background()
	st := accountStore{d}
	chart, err := st.CreateChart(ctx, name)
	if err != nil {
		panic(err)
	}
	out := StandardChart{Accounts: make(map[accounts.Code]accounts.Account)}
	for _, sa := range accounts.StandardAccounts() {
		acc, err := st.CreateAccount(ctx, accounts.Account{ChartID: chart.ID, Code: sa.Code, Name: sa.Name, Type: sa.Type, Active: true})
		if err != nil {
			panic(err)
		}
		out.Accounts[sa.Role] = acc
	}
	if active {
		_ = st.ActivateChart(ctx, chart.ID)
		chart.Active = true
	}
	out.Chart = chart
	return out
}
