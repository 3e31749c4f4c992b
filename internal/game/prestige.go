package game

import (
	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

// PrestigePreview is what a prestige at the current state would grant.
type PrestigePreview struct {
	Gain          decimal.Decimal `json:"gain"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	NextTier      string          `json:"nextTier,omitempty"`
	NextThreshold decimal.Decimal `json:"nextThreshold"`
}

func (e *Engine) PrestigePreview(s GameState) (PrestigePreview, error) {
	p := e.cat.Prestige
	gain, err := economy.PrestigeGain(s.TotalEarned, p.K, p.Alpha)
	if err != nil {
		return PrestigePreview{}, err
	}
	banked := s.Prestige.TotalPrestige.Add(gain)
	out := PrestigePreview{
		Gain:          gain,
		Multiplier:    e.tierMultiplier(banked, s.Prestige.Multiplier),
		NextThreshold: economy.Zero,
	}
	for _, t := range e.cat.Tiers {
		if banked.LessThan(t.Threshold) {
			out.NextTier = t.ID
			out.NextThreshold = t.Threshold
			break
		}
	}
	return out, nil
}

// tierMultiplier multiplies the bonus of every tier whose threshold banked
// points reach. It never drops below current.
func (e *Engine) tierMultiplier(banked, current decimal.Decimal) decimal.Decimal {
	m := economy.One
	for _, t := range e.cat.Tiers {
		if banked.GreaterThanOrEqual(t.Threshold) {
			m = m.Mul(t.Bonus)
		}
	}
	if current.GreaterThan(m) {
		return current
	}
	return m
}

// AttemptPrestige advances to now and, if the run has earned at least one
// point, resets the run. Every business returns to amount 0 and locked,
// except the starter: it stays unlocked and comes back with one owned unit,
// since the balance is reset to zero and a run must be able to restart.
func (e *Engine) AttemptPrestige(s GameState, now int64) (PurchaseResult, error) {
	s, err := e.Tick(s, now)
	if err != nil {
		return failed(s, ReasonNone), err
	}
	preview, err := e.PrestigePreview(s)
	if err != nil {
		return failed(s, ReasonNone), err
	}
	if !preview.Gain.IsPositive() {
		return failed(s, ReasonNoPrestige), nil
	}

	next := s
	next.Balance = economy.Zero
	next.TotalEarned = economy.Zero
	next.Prestige = PrestigeState{
		Points:        s.Prestige.Points.Add(preview.Gain),
		TotalPrestige: s.Prestige.TotalPrestige.Add(preview.Gain),
		LastReset:     now,
		Multiplier:    preview.Multiplier,
		Resets:        s.Prestige.Resets + 1,
	}
	next.Businesses = make(map[string]BusinessState, len(e.cat.Businesses))
	next.Upgrades = make(map[string]UpgradeState, len(e.cat.Upgrades))
	next.Managers = make(map[string]ManagerState, len(e.cat.Managers))
	for _, b := range e.cat.Businesses {
		old := s.Businesses[b.ID]
		st := BusinessState{ID: b.ID, TotalEarned: old.TotalEarned}
		if st.TotalEarned.IsZero() {
			st.TotalEarned = economy.Zero
		}
		if b.ID == e.cat.Tuning.StarterID {
			st.Unlocked = true
			st.Amount = 1
		}
		next.Businesses[b.ID] = st
	}
	for _, u := range e.cat.Upgrades {
		next.Upgrades[u.ID] = UpgradeState{ID: u.ID}
	}
	for _, m := range e.cat.Managers {
		next.Managers[m.ID] = ManagerState{ID: m.ID}
	}
	next = e.refreshDurations(next)
	e.log.Info("prestige", "gain", preview.Gain.String(), "resets", next.Prestige.Resets, "multiplier", preview.Multiplier.String())
	return PurchaseResult{Success: true, State: next, Spent: economy.Zero, Gained: preview.Gain}, nil
}
