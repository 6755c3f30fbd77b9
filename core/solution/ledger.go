package solution

import (
	"github.com/shopspring/decimal"

	"github.com/kilianp07/v2gplan/core/model"
)

// LedgerRecord is the spend of one period against its budgets. Amounts are
// exact decimal sums of the rounded plan.
type LedgerRecord struct {
	Period model.Period `json:"year"`
	// Capital is opening costs plus new unit costs.
	Capital decimal.Decimal `json:"capital"`
	// Operating is fixed site maintenance plus per-unit maintenance.
	Operating decimal.Decimal `json:"operating"`
	Budget    decimal.Decimal `json:"budget"`
	Remaining decimal.Decimal `json:"remaining"`
	// Incentive is the V2G subsidy payout drawn from the incentive pool.
	Incentive          decimal.Decimal `json:"incentive"`
	IncentiveBudget    decimal.Decimal `json:"incentive_budget"`
	IncentiveRemaining decimal.Decimal `json:"incentive_remaining"`
}

// Spend returns capital plus operating cost.
func (l LedgerRecord) Spend() decimal.Decimal { return l.Capital.Add(l.Operating) }

// Overspent reports whether spend exceeds either budget by more than eps.
func (l LedgerRecord) Overspent(eps decimal.Decimal) bool {
	return l.Remaining.Add(eps).IsNegative() || l.IncentiveRemaining.Add(eps).IsNegative()
}

func money(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// BuildLedger sums the per-period costs of plan with the coefficients of p.
func BuildLedger(p *model.Problem, plan *Plan) []LedgerRecord {
	type acc struct{ capital, operating, incentive decimal.Decimal }
	byPeriod := make(map[model.Period]*acc, len(p.Periods()))
	for _, t := range p.Periods() {
		byPeriod[t] = &acc{capital: decimal.Zero, operating: decimal.Zero, incentive: decimal.Zero}
	}
	for _, s := range plan.Stations {
		a, ok := byPeriod[s.Period]
		if !ok {
			continue
		}
		if s.Opened {
			a.capital = a.capital.Add(money(p.CFix(s.Site, s.Period)))
		}
		if s.Active {
			a.operating = a.operating.Add(money(p.MFix(s.Site, s.Period)))
		}
		a.incentive = a.incentive.Add(money(p.Sigma(s.Period)).Mul(money(s.V2GEnergy)))
	}
	for _, f := range plan.Fleet {
		a, ok := byPeriod[f.Period]
		if !ok {
			continue
		}
		a.capital = a.capital.Add(money(p.CVar(f.Site, f.Charger, f.Period)).Mul(decimal.NewFromInt(int64(f.Installed))))
		a.operating = a.operating.Add(money(p.MVar(f.Charger, f.Period)).Mul(decimal.NewFromInt(int64(f.InService))))
	}
	out := make([]LedgerRecord, 0, len(byPeriod))
	for _, t := range p.Periods() {
		a := byPeriod[t]
		budget := money(p.Budget(t))
		inc := money(p.IncentiveBudget(t))
		out = append(out, LedgerRecord{
			Period:             t,
			Capital:            a.capital,
			Operating:          a.operating,
			Budget:             budget,
			Remaining:          budget.Sub(a.capital).Sub(a.operating),
			Incentive:          a.incentive,
			IncentiveBudget:    inc,
			IncentiveRemaining: inc.Sub(a.incentive),
		})
	}
	return out
}
