package game

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

type Engine struct {
	cat *economy.Catalog
	log *slog.Logger
}

func NewEngine(cat *economy.Catalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cat: cat, log: logger}
}

func (e *Engine) Catalog() *economy.Catalog {
	return e.cat
}

// NewState builds the first-launch state: the starter business unlocked but
// unowned, the starting grant in the balance, nothing bought or hired.
func (e *Engine) NewState(now int64) GameState {
	s := GameState{
		Version:        StateVersion,
		Balance:        e.cat.Tuning.StartingBalance,
		TotalEarned:    economy.Zero,
		LifetimeEarned: economy.Zero,
		LastTick:       now,
		Businesses:     make(map[string]BusinessState, len(e.cat.Businesses)),
		Upgrades:       make(map[string]UpgradeState, len(e.cat.Upgrades)),
		Managers:       make(map[string]ManagerState, len(e.cat.Managers)),
		Prestige: PrestigeState{
			Points:        economy.Zero,
			TotalPrestige: economy.Zero,
			LastReset:     now,
			Multiplier:    economy.One,
		},
	}
	for _, b := range e.cat.Businesses {
		s.Businesses[b.ID] = BusinessState{
			ID:          b.ID,
			DurationMs:  b.DurationMs,
			Unlocked:    b.ID == e.cat.Tuning.StarterID,
			TotalEarned: economy.Zero,
		}
	}
	for _, u := range e.cat.Upgrades {
		s.Upgrades[u.ID] = UpgradeState{ID: u.ID}
	}
	for _, m := range e.cat.Managers {
		s.Managers[m.ID] = ManagerState{ID: m.ID}
	}
	return e.refreshDurations(s)
}

// Normalize checks a loaded state against the catalog: unknown ids are an
// error, entries added to the tables since the save was written are filled in
// and cached durations are recomputed.
func (e *Engine) Normalize(s GameState) (GameState, error) {
	for id := range s.Businesses {
		if _, err := e.cat.Business(id); err != nil {
			return s, err
		}
	}
	for id := range s.Upgrades {
		if _, err := e.cat.Upgrade(id); err != nil {
			return s, err
		}
	}
	for id := range s.Managers {
		if _, err := e.cat.Manager(id); err != nil {
			return s, err
		}
	}
	s = s.withBusinesses().withUpgrades().withManagers()
	for _, b := range e.cat.Businesses {
		st, ok := s.Businesses[b.ID]
		if !ok {
			st = BusinessState{Unlocked: b.ID == e.cat.Tuning.StarterID, TotalEarned: economy.Zero}
		}
		st.ID = b.ID
		if st.Amount < 0 {
			st.Amount = 0
		}
		s.Businesses[b.ID] = st
	}
	for _, u := range e.cat.Upgrades {
		st := s.Upgrades[u.ID]
		st.ID = u.ID
		s.Upgrades[u.ID] = st
	}
	for _, m := range e.cat.Managers {
		st := s.Managers[m.ID]
		st.ID = m.ID
		s.Managers[m.ID] = st
		if st.Hired {
			b := s.Businesses[m.BusinessID]
			b.IsAutomated = true
			s.Businesses[m.BusinessID] = b
		}
	}
	if s.Prestige.Multiplier.IsZero() {
		s.Prestige.Multiplier = economy.One
	}
	s.Version = StateVersion
	return e.refreshDurations(s), nil
}

func (e *Engine) effects(s GameState) []economy.Effect {
	var owned []economy.Upgrade
	for _, u := range e.cat.Upgrades {
		if s.Upgrades[u.ID].Purchased {
			owned = append(owned, u)
		}
	}
	return economy.EffectsOf(owned)
}

// multipliers folds the tier multiplier and the per-reset prestige bonus.
func (e *Engine) multipliers(s GameState) economy.Multipliers {
	p := e.cat.Prestige
	m := economy.PrestigeMultipliers(s.Prestige.Resets, p.IncomeBase, p.SpeedBase)
	m.Income = m.Income.Mul(s.Prestige.Multiplier)
	return m
}

func (e *Engine) refreshDurations(s GameState) GameState {
	effects := e.effects(s)
	speed := e.multipliers(s).Speed
	s = s.withBusinesses()
	for _, b := range e.cat.Businesses {
		st := s.Businesses[b.ID]
		st.DurationMs = economy.CycleDuration(b, effects, speed, e.cat.Tuning.MinDurationMs)
		s.Businesses[b.ID] = st
	}
	return s
}

func (e *Engine) automated(s GameState, id string) bool {
	if s.Businesses[id].IsAutomated {
		return true
	}
	m, ok := e.cat.ManagerFor(id)
	return ok && s.Managers[m.ID].Hired
}

// Tick advances the simulation to now in fixed steps of the catalog step
// width. A now at or before LastTick leaves the state untouched. At most the
// offline cap is simulated; LastTick still ends at now.
func (e *Engine) Tick(s GameState, now int64) (GameState, error) {
	if now <= s.LastTick {
		return s, nil
	}
	elapsed := now - s.LastTick
	if capMs := e.offlineCapMs(); capMs > 0 && elapsed > capMs {
		e.log.Warn("tick gap capped", "elapsed_ms", elapsed, "applied_ms", capMs)
		elapsed = capMs
	}
	return e.advance(s, elapsed, now)
}

type producer struct {
	def       economy.Business
	income    decimal.Decimal
	automated bool
}

func (e *Engine) advance(s GameState, elapsedMs, endAt int64) (GameState, error) {
	for id := range s.Businesses {
		if _, err := e.cat.Business(id); err != nil {
			return s, err
		}
	}
	effects := e.effects(s)
	mult := e.multipliers(s)

	producers := make([]producer, 0, len(e.cat.Businesses))
	for _, def := range e.cat.Businesses {
		st, ok := s.Businesses[def.ID]
		if !ok || !st.Unlocked {
			continue
		}
		producers = append(producers, producer{
			def:       def,
			income:    economy.IncomePerCycle(def, st.Amount, effects, mult.Income),
			automated: e.automated(s, def.ID),
		})
	}

	next := s.withBusinesses()
	balance, total, lifetime := s.Balance, s.TotalEarned, s.LifetimeEarned
	step := e.cat.Tuning.StepMs
	for remaining := elapsedMs; remaining > 0; {
		width := min(step, remaining)
		remaining -= width
		for _, p := range producers {
			b := next.Businesses[p.def.ID]
			if !p.automated && !b.Running {
				continue
			}
			if b.DurationMs <= 0 {
				b.DurationMs = economy.CycleDuration(p.def, effects, mult.Speed, e.cat.Tuning.MinDurationMs)
			}
			b.ProgressMs += width
			for b.ProgressMs >= b.DurationMs {
				balance = balance.Add(p.income)
				total = total.Add(p.income)
				lifetime = lifetime.Add(p.income)
				b.TotalEarned = b.TotalEarned.Add(p.income)
				if !p.automated {
					b.ProgressMs = 0
					b.Running = false
					break
				}
				b.ProgressMs -= b.DurationMs
			}
			next.Businesses[p.def.ID] = b
		}
	}
	next.Balance = balance
	next.TotalEarned = total
	next.LifetimeEarned = lifetime
	next.LastTick = endAt
	return next, nil
}

// TriggerBusiness advances to now and then starts a manual cycle. Starting
// does nothing unless the business is unlocked, unmanaged and idle, so a
// double trigger is harmless.
func (e *Engine) TriggerBusiness(s GameState, id string, now int64) (GameState, error) {
	if _, err := e.cat.Business(id); err != nil {
		return s, err
	}
	s, err := e.Tick(s, now)
	if err != nil {
		return s, err
	}
	b, ok := s.Businesses[id]
	if !ok || !b.Unlocked || !b.Idle() || e.automated(s, id) {
		return s, nil
	}
	b.Running = true
	next := s.withBusinesses()
	next.Businesses[id] = b
	return next, nil
}

func (e *Engine) unlockMet(s GameState, def economy.Business) bool {
	switch def.Unlock.Kind {
	case economy.UnlockStart:
		return true
	case economy.UnlockBusiness:
		return s.Businesses[def.Unlock.BusinessID].Amount >= def.Unlock.Amount
	case economy.UnlockEarnings:
		return s.TotalEarned.GreaterThanOrEqual(def.Unlock.Earnings)
	default:
		return false
	}
}

// PurchaseBusinessBulk buys quantity levels of a business, or as many as the
// balance allows for BulkMax. It is all or nothing.
func (e *Engine) PurchaseBusinessBulk(s GameState, id string, bulk Bulk) (PurchaseResult, error) {
	def, err := e.cat.Business(id)
	if err != nil {
		return failed(s, ReasonNone), err
	}
	if bulk != BulkMax && bulk < 1 {
		return failed(s, ReasonNone), fmt.Errorf("%w: %d", ErrInvalidBulk, bulk)
	}
	b := s.Businesses[id]
	if !b.Unlocked && !e.unlockMet(s, def) {
		return failed(s, ReasonLocked), nil
	}

	quantity := int(bulk)
	if bulk == BulkMax {
		quantity, _ = economy.MaxAffordable(def, b.Amount, s.Balance, e.cat.Tuning.MaxBulk)
	}
	if quantity <= 0 {
		return failed(s, ReasonNothingToBuy), nil
	}
	cost := economy.BulkCost(def, b.Amount, quantity)
	// the closed form can land a hair above the unit-by-unit sum
	for bulk == BulkMax && quantity > 0 && cost.GreaterThan(s.Balance) {
		quantity--
		cost = economy.BulkCost(def, b.Amount, quantity)
	}
	if quantity <= 0 {
		return failed(s, ReasonNothingToBuy), nil
	}
	if s.Balance.LessThan(cost) {
		return failed(s, ReasonInsufficientFunds), nil
	}

	b.ID = id
	b.Amount += quantity
	b.Unlocked = true
	next := s.withBusinesses()
	next.Balance = s.Balance.Sub(cost)
	next.Businesses[id] = b
	next = e.refreshDurations(next)
	e.log.Debug("business purchased", "business", id, "quantity", quantity, "cost", cost.String())
	return PurchaseResult{Success: true, State: next, Spent: cost, Quantity: quantity, Gained: economy.Zero}, nil
}

func (e *Engine) ownedFor(s GameState, target string) int {
	if target != economy.GlobalTarget {
		return s.Businesses[target].Amount
	}
	total := 0
	for _, b := range s.Businesses {
		total += b.Amount
	}
	return total
}

func (e *Engine) PurchaseUpgrade(s GameState, id string) (PurchaseResult, error) {
	def, err := e.cat.Upgrade(id)
	if err != nil {
		return failed(s, ReasonNone), err
	}
	switch {
	case s.Upgrades[id].Purchased:
		return failed(s, ReasonAlreadyOwned), nil
	case e.ownedFor(s, def.Target) < def.Threshold:
		return failed(s, ReasonRequirement), nil
	case s.Balance.LessThan(def.Cost):
		return failed(s, ReasonInsufficientFunds), nil
	}
	next := s.withUpgrades()
	next.Balance = s.Balance.Sub(def.Cost)
	next.Upgrades[id] = UpgradeState{ID: id, Purchased: true}
	next = e.refreshDurations(next)
	return PurchaseResult{Success: true, State: next, Spent: def.Cost, Quantity: 1, Gained: economy.Zero}, nil
}

func (e *Engine) HireManager(s GameState, id string) (PurchaseResult, error) {
	def, err := e.cat.Manager(id)
	if err != nil {
		return failed(s, ReasonNone), err
	}
	b := s.Businesses[def.BusinessID]
	switch {
	case s.Managers[id].Hired:
		return failed(s, ReasonAlreadyOwned), nil
	case !b.Unlocked || b.Amount < def.RequiredAmount:
		return failed(s, ReasonRequirement), nil
	case s.Balance.LessThan(def.Cost):
		return failed(s, ReasonInsufficientFunds), nil
	}
	b.IsAutomated = true
	b.Running = false
	next := s.withManagers().withBusinesses()
	next.Balance = s.Balance.Sub(def.Cost)
	next.Managers[id] = ManagerState{ID: id, Hired: true}
	next.Businesses[def.BusinessID] = b
	return PurchaseResult{Success: true, State: next, Spent: def.Cost, Quantity: 1, Gained: economy.Zero}, nil
}
