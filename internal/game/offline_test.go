package game

import (
	"math"
	"testing"
	"time"

	"tycoon/internal/economy"
)

func automatedLemonade(e *Engine, amount int) GameState {
	s := e.NewState(0)
	s.Balance = economy.Zero
	return withBusiness(s, "lemonade-stand", func(b *BusinessState) {
		b.Amount = amount
		b.IsAutomated = true
	})
}

func TestCatchUpMatchesTick(t *testing.T) {
	e := newTestEngine(t, nil)
	s := automatedLemonade(e, 2)
	now := int64(95_123)

	ticked, err := e.Tick(s, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	caught, report, err := e.CatchUp(s, now)
	if err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if report.Capped || report.EffectiveMs != now || report.ElapsedMs != now {
		t.Fatalf("unexpected report %+v", report)
	}
	if !caught.Balance.Equal(ticked.Balance) {
		t.Fatalf("offline %s differs from online %s", caught.Balance, ticked.Balance)
	}
	if !report.Earnings.Equal(caught.TotalEarned) {
		t.Fatalf("report earnings %s, total %s", report.Earnings, caught.TotalEarned)
	}
	if caught.LastTick != now {
		t.Fatalf("lastTick got %d", caught.LastTick)
	}
}

func TestCatchUpCapped(t *testing.T) {
	e := newTestEngine(t, nil)
	s := automatedLemonade(e, 2)
	now := (13 * time.Hour).Milliseconds()

	next, report, err := e.CatchUp(s, now)
	if err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if !report.Capped || report.EffectiveMs != (12*time.Hour).Milliseconds() {
		t.Fatalf("cap not applied: %+v", report)
	}
	// 12h / 750ms = 57600 whole cycles at 2 per cycle
	if !report.Earnings.Equal(dec("115200")) {
		t.Fatalf("earnings got %s want 115200", report.Earnings)
	}
	if next.LastTick != now {
		t.Fatalf("lastTick got %d want %d", next.LastTick, now)
	}
}

func TestTickCapsLongGaps(t *testing.T) {
	e := newTestEngine(t, nil)
	s := automatedLemonade(e, 2)
	now := (13 * time.Hour).Milliseconds()

	next, err := e.Tick(s, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !next.Balance.Equal(dec("115200")) {
		t.Fatalf("balance got %s want 115200", next.Balance)
	}
	if next.LastTick != now {
		t.Fatalf("lastTick got %d want %d", next.LastTick, now)
	}

	short := newTestEngine(t, func(c *economy.Catalog) {
		c.Tuning.OfflineCap = 3 * time.Second
	})
	far, err := short.Tick(automatedLemonade(short, 1), math.MaxInt64)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !far.Balance.Equal(dec("4")) || far.LastTick != math.MaxInt64 {
		t.Fatalf("got balance %s lastTick %d", far.Balance, far.LastTick)
	}
}

func TestCatchUpShortCap(t *testing.T) {
	e := newTestEngine(t, func(c *economy.Catalog) {
		c.Tuning.OfflineCap = 3 * time.Second
	})
	s := automatedLemonade(e, 1)
	_, report, err := e.CatchUp(s, 60_000)
	if err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if !report.Earnings.Equal(dec("4")) {
		t.Fatalf("earnings got %s want 4", report.Earnings)
	}
}

func TestCatchUpNothingElapsed(t *testing.T) {
	e := newTestEngine(t, nil)
	s := automatedLemonade(e, 1)
	s.LastTick = 10_000
	next, report, err := e.CatchUp(s, 9_000)
	if err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if report.EffectiveMs != 0 || !report.Earnings.IsZero() || next.LastTick != 10_000 {
		t.Fatalf("expected no-op, got %+v lastTick=%d", report, next.LastTick)
	}
}

func TestProject(t *testing.T) {
	e := newTestEngine(t, nil)
	s := automatedLemonade(e, 2)
	s = withBusiness(s, "newspaper-route", func(b *BusinessState) {
		b.Unlocked = true
		b.Amount = 10
	})
	p := e.Project(s, 10_000)
	if p.Cycles["lemonade-stand"] != 13 {
		t.Fatalf("cycles got %d want 13", p.Cycles["lemonade-stand"])
	}
	if _, ok := p.Cycles["newspaper-route"]; ok {
		t.Fatalf("manual business should not project")
	}
	if !p.Earnings.Equal(dec("26")) {
		t.Fatalf("earnings got %s want 26", p.Earnings)
	}
}
