package game

import (
	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

type BusinessView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Amount         int             `json:"amount"`
	Unlocked       bool            `json:"unlocked"`
	Automated      bool            `json:"automated"`
	Running        bool            `json:"running"`
	Progress       float64         `json:"progress"`
	DurationMs     int64           `json:"durationMs"`
	NextCost       decimal.Decimal `json:"nextCost"`
	IncomePerCycle decimal.Decimal `json:"incomePerCycle"`
	Affordable     bool            `json:"affordable"`
	Buyable        bool            `json:"buyable"`
}

type UpgradeView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Target    string          `json:"target"`
	Cost      decimal.Decimal `json:"cost"`
	Purchased bool            `json:"purchased"`
	Available bool            `json:"available"`
}

type ManagerView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	BusinessID string          `json:"businessId"`
	Cost       decimal.Decimal `json:"cost"`
	Hired      bool            `json:"hired"`
	Available  bool            `json:"available"`
}

// Snapshot is a read-only view of a state plus derived numbers. The State
// field shares maps with the input and must not be written to.
type Snapshot struct {
	State           GameState       `json:"state"`
	IncomePerSecond decimal.Decimal `json:"incomePerSecond"`
	Prestige        PrestigePreview `json:"prestige"`
	Businesses      []BusinessView  `json:"businesses"`
	Upgrades        []UpgradeView   `json:"upgrades"`
	Managers        []ManagerView   `json:"managers"`
}

var thousand = decimal.NewFromInt(1000)

func (e *Engine) Snapshot(s GameState) (Snapshot, error) {
	preview, err := e.PrestigePreview(s)
	if err != nil {
		return Snapshot{}, err
	}
	effects := e.effects(s)
	mult := e.multipliers(s)
	out := Snapshot{
		State:           s,
		IncomePerSecond: economy.Zero,
		Prestige:        preview,
		Businesses:      make([]BusinessView, 0, len(e.cat.Businesses)),
		Upgrades:        make([]UpgradeView, 0, len(e.cat.Upgrades)),
		Managers:        make([]ManagerView, 0, len(e.cat.Managers)),
	}
	for _, def := range e.cat.Businesses {
		st := s.Businesses[def.ID]
		duration := st.DurationMs
		if duration <= 0 {
			duration = economy.CycleDuration(def, effects, mult.Speed, e.cat.Tuning.MinDurationMs)
		}
		income := economy.IncomePerCycle(def, st.Amount, effects, mult.Income)
		next := economy.CostOfLevel(def, st.Amount)
		v := BusinessView{
			ID:             def.ID,
			Name:           def.Name,
			Amount:         st.Amount,
			Unlocked:       st.Unlocked,
			Automated:      e.automated(s, def.ID),
			Running:        st.Running,
			Progress:       float64(st.ProgressMs) / float64(duration),
			DurationMs:     duration,
			NextCost:       next,
			IncomePerCycle: income,
			Affordable:     s.Balance.GreaterThanOrEqual(next),
			Buyable:        st.Unlocked || e.unlockMet(s, def),
		}
		if v.Progress > 1 {
			v.Progress = 1
		}
		out.Businesses = append(out.Businesses, v)
		if st.Unlocked && st.Amount > 0 {
			perSecond := income.Mul(thousand).DivRound(decimal.NewFromInt(duration), economy.MoneyPlaces)
			out.IncomePerSecond = out.IncomePerSecond.Add(perSecond)
		}
	}
	for _, def := range e.cat.Upgrades {
		purchased := s.Upgrades[def.ID].Purchased
		out.Upgrades = append(out.Upgrades, UpgradeView{
			ID:        def.ID,
			Name:      def.Name,
			Target:    def.Target,
			Cost:      def.Cost,
			Purchased: purchased,
			Available: !purchased && e.ownedFor(s, def.Target) >= def.Threshold,
		})
	}
	for _, def := range e.cat.Managers {
		hired := s.Managers[def.ID].Hired
		b := s.Businesses[def.BusinessID]
		out.Managers = append(out.Managers, ManagerView{
			ID:         def.ID,
			Name:       def.Name,
			BusinessID: def.BusinessID,
			Cost:       def.Cost,
			Hired:      hired,
			Available:  !hired && b.Unlocked && b.Amount >= def.RequiredAmount,
		})
	}
	return out, nil
}
