package game

import (
	"maps"

	"github.com/shopspring/decimal"
)

// GameState is the whole simulation aggregate. Transitions never mutate a
// GameState they were given; they return a new one whose maps are copies
// wherever something changed, so older values stay safe to share.
type GameState struct {
	Version        int                      `json:"version"`
	Balance        decimal.Decimal          `json:"balance"`
	TotalEarned    decimal.Decimal          `json:"totalEarned"`
	LifetimeEarned decimal.Decimal          `json:"lifetimeEarned"`
	LastTick       int64                    `json:"lastTick"`
	Businesses     map[string]BusinessState `json:"businesses"`
	Upgrades       map[string]UpgradeState  `json:"upgrades"`
	Managers       map[string]ManagerState  `json:"managers"`
	Prestige       PrestigeState            `json:"prestige"`
}

type BusinessState struct {
	ID          string          `json:"id"`
	Amount      int             `json:"amount"`
	ProgressMs  int64           `json:"progressMs"`
	DurationMs  int64           `json:"durationMs"`
	Running     bool            `json:"running"`
	IsAutomated bool            `json:"isAutomated"`
	Unlocked    bool            `json:"unlocked"`
	TotalEarned decimal.Decimal `json:"totalEarned"`
}

// Idle reports whether a manual cycle could be started.
func (b BusinessState) Idle() bool {
	return !b.Running && b.ProgressMs == 0
}

type UpgradeState struct {
	ID        string `json:"id"`
	Purchased bool   `json:"purchased"`
}

type ManagerState struct {
	ID    string `json:"id"`
	Hired bool   `json:"hired"`
}

type PrestigeState struct {
	Points        decimal.Decimal `json:"points"`
	TotalPrestige decimal.Decimal `json:"totalPrestige"`
	LastReset     int64           `json:"lastReset"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	Resets        int             `json:"resets"`
}

func (s GameState) withBusinesses() GameState {
	if s.Businesses == nil {
		s.Businesses = map[string]BusinessState{}
		return s
	}
	s.Businesses = maps.Clone(s.Businesses)
	return s
}

func (s GameState) withUpgrades() GameState {
	if s.Upgrades == nil {
		s.Upgrades = map[string]UpgradeState{}
		return s
	}
	s.Upgrades = maps.Clone(s.Upgrades)
	return s
}

func (s GameState) withManagers() GameState {
	if s.Managers == nil {
		s.Managers = map[string]ManagerState{}
		return s
	}
	s.Managers = maps.Clone(s.Managers)
	return s
}
