package economy

import (
	"github.com/shopspring/decimal"
)

// Effect is one active upgrade effect as seen by the formulas.
type Effect struct {
	Target     string
	Kind       EffectKind
	Multiplier decimal.Decimal
}

// EffectsOf lists the effects of the given purchased upgrades.
func EffectsOf(upgrades []Upgrade) []Effect {
	out := make([]Effect, 0, len(upgrades))
	for _, u := range upgrades {
		out = append(out, Effect{Target: u.Target, Kind: u.Effect, Multiplier: u.Multiplier})
	}
	return out
}

func (e Effect) applies(businessID string) bool {
	return e.Target == GlobalTarget || e.Target == businessID
}

// CostOfLevel is baseCost * growth^level.
func CostOfLevel(b Business, level int) decimal.Decimal {
	return money(b.BaseCost.Mul(PowInt(b.CostGrowth, level)))
}

// BulkCost prices quantity levels starting at level as a geometric series.
func BulkCost(b Business, level, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return Zero
	}
	first := b.BaseCost.Mul(PowInt(b.CostGrowth, level))
	if b.CostGrowth.Equal(One) {
		return money(first.Mul(decimal.NewFromInt(int64(quantity))))
	}
	num := first.Mul(PowInt(b.CostGrowth, quantity).Sub(One))
	return money(num.DivRound(b.CostGrowth.Sub(One), powPlaces))
}

// MaxAffordable counts how many levels can be bought one at a time with
// balance, stopping at limit.
func MaxAffordable(b Business, level int, balance decimal.Decimal, limit int) (int, decimal.Decimal) {
	total := Zero
	q := 0
	for q < limit {
		next := CostOfLevel(b, level+q)
		if total.Add(next).GreaterThan(balance) {
			break
		}
		total = total.Add(next)
		q++
	}
	return q, total
}

// IncomePerCycle is baseRate * amount * every matching income effect * global.
func IncomePerCycle(b Business, amount int, effects []Effect, global decimal.Decimal) decimal.Decimal {
	if amount <= 0 {
		return Zero
	}
	m := global
	for _, e := range effects {
		if e.Kind == EffectIncome && e.applies(b.ID) {
			m = m.Mul(e.Multiplier)
		}
	}
	return money(b.BaseRate.Mul(decimal.NewFromInt(int64(amount))).Mul(m))
}

// CycleDuration applies speed effects and the external speed multiplier to the
// base duration, never going below minMs.
func CycleDuration(b Business, effects []Effect, speed decimal.Decimal, minMs int64) int64 {
	d := decimal.NewFromInt(b.DurationMs).Mul(speed)
	for _, e := range effects {
		if e.Kind == EffectSpeed && e.applies(b.ID) {
			d = d.Mul(e.Multiplier)
		}
	}
	ms := d.Round(0).IntPart()
	if ms < minMs {
		return minMs
	}
	return ms
}

// PrestigeGain is floor(k * earnings^alpha), or zero for non-positive earnings.
func PrestigeGain(earnings, k, alpha decimal.Decimal) (decimal.Decimal, error) {
	if !earnings.IsPositive() {
		return Zero, nil
	}
	p, err := PowFrac(earnings, alpha)
	if err != nil {
		return Zero, err
	}
	return p.Mul(k).Floor(), nil
}

type Multipliers struct {
	Income decimal.Decimal
	Speed  decimal.Decimal
}

func PrestigeMultipliers(level int, incomeBase, speedBase decimal.Decimal) Multipliers {
	return Multipliers{
		Income: PowInt(incomeBase, level),
		Speed:  PowInt(speedBase, level),
	}
}

// Producer is the per-business input of OfflineProjection.
type Producer struct {
	Business   Business
	Amount     int
	Automated  bool
	DurationMs int64
}

type Projection struct {
	Earnings decimal.Decimal
	Cycles   map[string]int64
}

// OfflineProjection counts the whole cycles each automated producer completes
// in min(elapsed, cap) and what they pay. Partial cycles are dropped.
func OfflineProjection(producers []Producer, effects []Effect, global decimal.Decimal, elapsedMs, capMs int64) Projection {
	out := Projection{Earnings: Zero, Cycles: map[string]int64{}}
	effective := elapsedMs
	if effective > capMs {
		effective = capMs
	}
	if effective <= 0 {
		return out
	}
	for _, p := range producers {
		if !p.Automated || p.Amount <= 0 || p.DurationMs <= 0 {
			continue
		}
		cycles := effective / p.DurationMs
		if cycles == 0 {
			continue
		}
		income := IncomePerCycle(p.Business, p.Amount, effects, global)
		out.Earnings = out.Earnings.Add(income.Mul(decimal.NewFromInt(cycles)))
		out.Cycles[p.Business.ID] = cycles
	}
	return out
}
