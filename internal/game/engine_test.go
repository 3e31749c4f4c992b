package game

import (
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

func newTestEngine(t *testing.T, mutate func(*economy.Catalog)) *Engine {
	t.Helper()
	c := *economy.MustDefault()
	c.Businesses = slices.Clone(c.Businesses)
	if mutate != nil {
		mutate(&c)
	}
	return NewEngine(&c, nil)
}

func dec(s string) decimal.Decimal {
	return economy.MustDecimal(s)
}

func withBusiness(s GameState, id string, fn func(*BusinessState)) GameState {
	s = s.withBusinesses()
	b := s.Businesses[id]
	fn(&b)
	s.Businesses[id] = b
	return s
}

func TestNewState(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(1_000)
	if !s.Balance.Equal(dec("20")) {
		t.Fatalf("balance got %s", s.Balance)
	}
	if s.LastTick != 1_000 || s.Version != StateVersion {
		t.Fatalf("unexpected header %+v", s)
	}
	starter := s.Businesses["lemonade-stand"]
	if !starter.Unlocked || starter.Amount != 0 || starter.DurationMs != 750 {
		t.Fatalf("starter got %+v", starter)
	}
	if s.Businesses["newspaper-route"].Unlocked {
		t.Fatalf("newspaper route should start locked")
	}
	if len(s.Upgrades) != len(e.Catalog().Upgrades) || len(s.Managers) != len(e.Catalog().Managers) {
		t.Fatalf("upgrades/managers not seeded")
	}
}

func TestPurchaseLemonadeCosts(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)

	first, err := e.PurchaseBusinessBulk(s, "lemonade-stand", 1)
	if err != nil || !first.Success {
		t.Fatalf("first purchase failed: %v %+v", err, first.Reason)
	}
	if !first.Spent.Equal(dec("4")) {
		t.Fatalf("first purchase spent %s want 4", first.Spent)
	}
	second, err := e.PurchaseBusinessBulk(first.State, "lemonade-stand", 1)
	if err != nil || !second.Success {
		t.Fatalf("second purchase failed: %v %+v", err, second.Reason)
	}
	if !second.Spent.Equal(dec("4.28")) {
		t.Fatalf("second purchase spent %s want 4.28", second.Spent)
	}
	if !second.State.Balance.Equal(dec("11.72")) {
		t.Fatalf("balance got %s want 11.72", second.State.Balance)
	}
	if second.State.Businesses["lemonade-stand"].Amount != 2 {
		t.Fatalf("amount got %d", second.State.Businesses["lemonade-stand"].Amount)
	}
	if s.Businesses["lemonade-stand"].Amount != 0 || !s.Balance.Equal(dec("20")) {
		t.Fatalf("input state was mutated")
	}
}

func TestPurchaseFailuresLeaveStateUnchanged(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)

	tests := []struct {
		name string
		id   string
		bulk Bulk
		want FailReason
	}{
		{"too expensive", "lemonade-stand", 10, ReasonInsufficientFunds},
		{"locked", "newspaper-route", 1, ReasonLocked},
	}
	for _, tc := range tests {
		res, err := e.PurchaseBusinessBulk(s, tc.id, tc.bulk)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if res.Success || res.Reason != tc.want {
			t.Fatalf("%s: got success=%v reason=%q", tc.name, res.Success, res.Reason)
		}
		if !res.State.Balance.Equal(s.Balance) || res.State.Businesses[tc.id].Amount != 0 {
			t.Fatalf("%s: state changed", tc.name)
		}
	}

	broke := s
	broke.Balance = dec("1")
	res, err := e.PurchaseBusinessBulk(broke, "lemonade-stand", BulkMax)
	if err != nil || res.Success || res.Reason != ReasonNothingToBuy {
		t.Fatalf("max with no funds: err=%v res=%+v", err, res.Reason)
	}

	if _, err := e.PurchaseBusinessBulk(s, "space-elevator", 1); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
	if _, err := e.PurchaseBusinessBulk(s, "lemonade-stand", 0); !errors.Is(err, ErrInvalidBulk) {
		t.Fatalf("expected ErrInvalidBulk, got %v", err)
	}
}

func TestPurchaseMax(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.PurchaseBusinessBulk(e.NewState(0), "lemonade-stand", BulkMax)
	if err != nil || !res.Success {
		t.Fatalf("max purchase failed: %v %q", err, res.Reason)
	}
	if res.Quantity != 4 {
		t.Fatalf("quantity got %d want 4", res.Quantity)
	}
	if res.State.Balance.IsNegative() {
		t.Fatalf("balance went negative: %s", res.State.Balance)
	}
}

func TestUnlockByAmount(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.Balance = dec("1000")
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) { b.Amount = 25 })

	res, err := e.PurchaseBusinessBulk(s, "newspaper-route", 1)
	if err != nil || !res.Success {
		t.Fatalf("newspaper purchase failed: %v %q", err, res.Reason)
	}
	if !res.State.Businesses["newspaper-route"].Unlocked {
		t.Fatalf("newspaper route should be unlocked after purchase")
	}
}

func TestTickAutomatedStepping(t *testing.T) {
	e := newTestEngine(t, func(c *economy.Catalog) {
		c.Businesses[0].DurationMs = 1000
	})
	s := e.NewState(0)
	s.Balance = economy.Zero
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) {
		b.Amount = 1
		b.IsAutomated = true
	})

	next, err := e.Tick(s, 2_500)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	b := next.Businesses["lemonade-stand"]
	if b.ProgressMs != 500 {
		t.Fatalf("progress got %d want 500", b.ProgressMs)
	}
	if !next.Balance.Equal(dec("2")) || !next.TotalEarned.Equal(dec("2")) {
		t.Fatalf("expected two payouts, balance=%s total=%s", next.Balance, next.TotalEarned)
	}
	if next.LastTick != 2_500 {
		t.Fatalf("lastTick got %d", next.LastTick)
	}
}

func TestTickSplitMatchesSingle(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) {
		b.Amount = 3
		b.IsAutomated = true
	})

	whole, err := e.Tick(s, 7_310)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	split := s
	for _, now := range []int64{1_300, 1_301, 4_050, 7_310} {
		if split, err = e.Tick(split, now); err != nil {
			t.Fatalf("tick to %d: %v", now, err)
		}
	}
	if !whole.Balance.Equal(split.Balance) {
		t.Fatalf("balance differs: whole=%s split=%s", whole.Balance, split.Balance)
	}
	if whole.Businesses["lemonade-stand"].ProgressMs != split.Businesses["lemonade-stand"].ProgressMs {
		t.Fatalf("progress differs")
	}
}

func TestTickIgnoresPastTimestamps(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(5_000)
	for _, now := range []int64{5_000, 4_000, 0} {
		next, err := e.Tick(s, now)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if next.LastTick != 5_000 {
			t.Fatalf("lastTick moved backwards to %d", next.LastTick)
		}
	}
}

func TestManualCycle(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.Balance = economy.Zero
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) { b.Amount = 2 })

	idle, err := e.Tick(s, 2_000)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !idle.Balance.IsZero() {
		t.Fatalf("idle manual business paid %s", idle.Balance)
	}

	started, err := e.TriggerBusiness(idle, "lemonade-stand", 2_000)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	again, err := e.TriggerBusiness(started, "lemonade-stand", 2_000)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if again.Businesses["lemonade-stand"] != started.Businesses["lemonade-stand"] {
		t.Fatalf("double trigger changed state")
	}

	done, err := e.Tick(again, 4_000)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	b := done.Businesses["lemonade-stand"]
	if b.Running || b.ProgressMs != 0 {
		t.Fatalf("manual cycle should return to idle, got %+v", b)
	}
	if !done.Balance.Equal(dec("2")) {
		t.Fatalf("manual cycle should pay once, balance=%s", done.Balance)
	}
}

func TestTriggerLockedIsNoop(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	next, err := e.TriggerBusiness(s, "oil-company", 0)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if next.Businesses["oil-company"].Running {
		t.Fatalf("locked business started")
	}
	if _, err := e.TriggerBusiness(s, "nope", 0); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestPurchaseUpgrade(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.Balance = dec("1000")

	res, err := e.PurchaseUpgrade(s, "lemonade-rush")
	if err != nil || res.Success || res.Reason != ReasonRequirement {
		t.Fatalf("below threshold: err=%v reason=%q", err, res.Reason)
	}

	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) { b.Amount = 50 })
	res, err = e.PurchaseUpgrade(s, "lemonade-rush")
	if err != nil || !res.Success {
		t.Fatalf("purchase failed: err=%v reason=%q", err, res.Reason)
	}
	if !res.State.Balance.Equal(dec("250")) {
		t.Fatalf("balance got %s", res.State.Balance)
	}
	if got := res.State.Businesses["lemonade-stand"].DurationMs; got != 600 {
		t.Fatalf("duration got %d want 600", got)
	}

	res, err = e.PurchaseUpgrade(res.State, "lemonade-rush")
	if err != nil || res.Success || res.Reason != ReasonAlreadyOwned {
		t.Fatalf("second purchase: err=%v reason=%q", err, res.Reason)
	}
}

func TestHireManager(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.Balance = dec("5000")

	res, err := e.HireManager(s, "lemonade-stand-manager")
	if err != nil || res.Success || res.Reason != ReasonRequirement {
		t.Fatalf("no stands owned: err=%v reason=%q", err, res.Reason)
	}

	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) {
		b.Amount = 1
		b.Running = true
		b.ProgressMs = 200
	})
	res, err = e.HireManager(s, "lemonade-stand-manager")
	if err != nil || !res.Success {
		t.Fatalf("hire failed: err=%v reason=%q", err, res.Reason)
	}
	b := res.State.Businesses["lemonade-stand"]
	if !b.IsAutomated || b.Running {
		t.Fatalf("business not automated: %+v", b)
	}
	if !res.State.Balance.Equal(dec("4000")) {
		t.Fatalf("balance got %s", res.State.Balance)
	}

	res, err = e.HireManager(res.State, "lemonade-stand-manager")
	if err != nil || res.Reason != ReasonAlreadyOwned {
		t.Fatalf("rehire: err=%v reason=%q", err, res.Reason)
	}
	if _, err := e.HireManager(s, "ghost-manager"); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestAttemptPrestige(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.TotalEarned = dec("1000000")

	res, err := e.AttemptPrestige(s, 10)
	if err != nil || res.Success || res.Reason != ReasonNoPrestige {
		t.Fatalf("small run: err=%v reason=%q", err, res.Reason)
	}

	s.TotalEarned = dec("1000000000")
	s.Balance = dec("123456")
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) { b.Amount = 80 })
	s = withBusiness(s, "car-wash", func(b *BusinessState) {
		b.Amount = 30
		b.Unlocked = true
		b.IsAutomated = true
	})
	s.Upgrades["global-branding"] = UpgradeState{ID: "global-branding", Purchased: true}

	res, err = e.AttemptPrestige(s, 10)
	if err != nil || !res.Success {
		t.Fatalf("prestige failed: err=%v reason=%q", err, res.Reason)
	}
	next := res.State
	if !res.Gained.Equal(dec("29")) {
		t.Fatalf("gain got %s want 29", res.Gained)
	}
	if !next.Balance.IsZero() || !next.TotalEarned.IsZero() {
		t.Fatalf("balance/total not reset: %s/%s", next.Balance, next.TotalEarned)
	}
	if !next.Prestige.Points.Equal(dec("29")) || next.Prestige.Resets != 1 || next.Prestige.LastReset != 10 {
		t.Fatalf("prestige state got %+v", next.Prestige)
	}
	if !next.Prestige.Multiplier.Equal(dec("1.05")) {
		t.Fatalf("multiplier got %s want 1.05", next.Prestige.Multiplier)
	}
	for id, b := range next.Businesses {
		if id == "lemonade-stand" {
			if !b.Unlocked || b.Amount != 1 || b.IsAutomated || b.ProgressMs != 0 {
				t.Fatalf("starter should restart with one unit: %+v", b)
			}
			continue
		}
		if b.Amount != 0 || b.Unlocked || b.IsAutomated {
			t.Fatalf("%s not reset: %+v", id, b)
		}
	}
	if next.Upgrades["global-branding"].Purchased {
		t.Fatalf("upgrades not reset")
	}
	if got := next.Businesses["lemonade-stand"].DurationMs; got != 743 {
		t.Fatalf("speed bonus not applied, duration %d", got)
	}
}

func TestPrestigeMultiplierNeverDrops(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s.TotalEarned = dec("1000000000")
	s.Prestige.Multiplier = dec("2")

	res, err := e.AttemptPrestige(s, 0)
	if err != nil || !res.Success {
		t.Fatalf("prestige failed: err=%v reason=%q", err, res.Reason)
	}
	if !res.State.Prestige.Multiplier.Equal(dec("2")) {
		t.Fatalf("multiplier dropped to %s", res.State.Prestige.Multiplier)
	}
}

func TestSnapshot(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s = withBusiness(s, "lemonade-stand", func(b *BusinessState) {
		b.Amount = 3
		b.ProgressMs = 375
	})

	snap, err := e.Snapshot(s)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.IncomePerSecond.Equal(dec("4")) {
		t.Fatalf("income per second got %s want 4", snap.IncomePerSecond)
	}
	v := snap.Businesses[0]
	if v.ID != "lemonade-stand" || v.Progress != 0.5 || !v.IncomePerCycle.Equal(dec("3")) {
		t.Fatalf("business view got %+v", v)
	}
	if !v.Affordable {
		t.Fatalf("next lemonade stand should be affordable")
	}
	if snap.Businesses[1].Buyable {
		t.Fatalf("newspaper route should not be buyable yet")
	}
	if s.Businesses["lemonade-stand"].ProgressMs != 375 {
		t.Fatalf("snapshot mutated state")
	}
}

func TestNormalize(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0)
	s = s.withBusinesses()
	delete(s.Businesses, "galactic-resort")
	s.Managers["lemonade-stand-manager"] = ManagerState{ID: "lemonade-stand-manager", Hired: true}

	got, err := e.Normalize(s)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, ok := got.Businesses["galactic-resort"]; !ok {
		t.Fatalf("missing business not restored")
	}
	if !got.Businesses["lemonade-stand"].IsAutomated {
		t.Fatalf("hired manager should imply automation")
	}

	s.Businesses["moon-base"] = BusinessState{ID: "moon-base"}
	if _, err := e.Normalize(s); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestParseBulk(t *testing.T) {
	tests := []struct {
		in      string
		want    Bulk
		wantErr bool
	}{
		{"1", 1, false},
		{"10", 10, false},
		{"MAX", BulkMax, false},
		{"0", 0, true},
		{"1001", 0, true},
		{"lots", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseBulk(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseBulk(%q) got=%v err=%v", tc.in, got, err)
		}
	}
}
