package game

import (
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

type OfflineReport struct {
	ElapsedMs   int64           `json:"elapsedMs"`
	EffectiveMs int64           `json:"effectiveMs"`
	Earnings    decimal.Decimal `json:"earnings"`
	Capped      bool            `json:"capped"`
}

func (e *Engine) offlineCapMs() int64 {
	return e.cat.Tuning.OfflineCap.Milliseconds()
}

// CatchUp replays the time since LastTick, capped, through the same stepped
// advance used for live play. LastTick ends at now either way.
func (e *Engine) CatchUp(s GameState, now int64) (GameState, OfflineReport, error) {
	report := OfflineReport{Earnings: economy.Zero}
	if now <= s.LastTick {
		return s, report, nil
	}
	report.ElapsedMs = now - s.LastTick
	report.EffectiveMs = report.ElapsedMs
	if capMs := e.offlineCapMs(); capMs > 0 && report.EffectiveMs > capMs {
		report.EffectiveMs = capMs
		report.Capped = true
	}
	next, err := e.advance(s, report.EffectiveMs, now)
	if err != nil {
		return s, OfflineReport{Earnings: economy.Zero}, err
	}
	report.Earnings = next.TotalEarned.Sub(s.TotalEarned)
	if report.Capped {
		e.log.Info("offline progress capped",
			"elapsed", time.Duration(report.ElapsedMs)*time.Millisecond,
			"applied", time.Duration(report.EffectiveMs)*time.Millisecond)
	}
	return next, report, nil
}

// Project estimates what automated businesses would earn over elapsedMs
// without touching the state. Partial cycles are not counted.
func (e *Engine) Project(s GameState, elapsedMs int64) economy.Projection {
	effects := e.effects(s)
	mult := e.multipliers(s)
	producers := make([]economy.Producer, 0, len(e.cat.Businesses))
	for _, def := range e.cat.Businesses {
		st := s.Businesses[def.ID]
		if !st.Unlocked {
			continue
		}
		duration := st.DurationMs
		if duration <= 0 {
			duration = economy.CycleDuration(def, effects, mult.Speed, e.cat.Tuning.MinDurationMs)
		}
		producers = append(producers, economy.Producer{
			Business:   def,
			Amount:     st.Amount,
			Automated:  e.automated(s, def.ID),
			DurationMs: duration,
		})
	}
	return economy.OfflineProjection(producers, effects, mult.Income, elapsedMs, e.offlineCapMs())
}
