package economy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownID = errors.New("unknown id")

const GlobalTarget = "global"

type UnlockKind string

const (
	UnlockStart    UnlockKind = "start"
	UnlockBusiness UnlockKind = "business"
	UnlockEarnings UnlockKind = "earnings"
)

type UnlockRule struct {
	Kind       UnlockKind
	BusinessID string
	Amount     int
	Earnings   decimal.Decimal
}

type EffectKind string

const (
	EffectIncome EffectKind = "income"
	EffectSpeed  EffectKind = "speed"
)

type Business struct {
	ID          string
	Name        string
	Description string
	BaseCost    decimal.Decimal
	CostGrowth  decimal.Decimal
	BaseRate    decimal.Decimal
	DurationMs  int64
	Unlock      UnlockRule
	UpgradeIDs  []string
}

type Upgrade struct {
	ID          string
	Name        string
	Description string
	Target      string
	Effect      EffectKind
	Multiplier  decimal.Decimal
	Cost        decimal.Decimal
	Threshold   int
}

type Manager struct {
	ID             string
	Name           string
	Description    string
	BusinessID     string
	Cost           decimal.Decimal
	RequiredAmount int
}

type PrestigeTier struct {
	ID          string
	Name        string
	Description string
	Threshold   decimal.Decimal
	Bonus       decimal.Decimal
}

type PrestigeParams struct {
	K          decimal.Decimal
	Alpha      decimal.Decimal
	IncomeBase decimal.Decimal
	SpeedBase  decimal.Decimal
}

type Tuning struct {
	StepMs          int64
	OfflineCap      time.Duration
	MinDurationMs   int64
	MaxBulk         int
	StartingBalance decimal.Decimal
	StarterID       string
}

// Catalog is the immutable set of content tables. Build it once with Parse or
// Default and share it; nothing mutates it afterwards.
type Catalog struct {
	Businesses []Business
	Upgrades   []Upgrade
	Managers   []Manager
	Tiers      []PrestigeTier
	Prestige   PrestigeParams
	Tuning     Tuning

	businessIdx map[string]int
	upgradeIdx  map[string]int
	managerIdx  map[string]int
}

func (c *Catalog) index() {
	c.businessIdx = make(map[string]int, len(c.Businesses))
	for i, b := range c.Businesses {
		c.businessIdx[b.ID] = i
	}
	c.upgradeIdx = make(map[string]int, len(c.Upgrades))
	for i, u := range c.Upgrades {
		c.upgradeIdx[u.ID] = i
	}
	c.managerIdx = make(map[string]int, len(c.Managers))
	for i, m := range c.Managers {
		c.managerIdx[m.ID] = i
	}
}

func (c *Catalog) Business(id string) (Business, error) {
	i, ok := c.businessIdx[id]
	if !ok {
		return Business{}, fmt.Errorf("business %q: %w", id, ErrUnknownID)
	}
	return c.Businesses[i], nil
}

func (c *Catalog) Upgrade(id string) (Upgrade, error) {
	i, ok := c.upgradeIdx[id]
	if !ok {
		return Upgrade{}, fmt.Errorf("upgrade %q: %w", id, ErrUnknownID)
	}
	return c.Upgrades[i], nil
}

func (c *Catalog) Manager(id string) (Manager, error) {
	i, ok := c.managerIdx[id]
	if !ok {
		return Manager{}, fmt.Errorf("manager %q: %w", id, ErrUnknownID)
	}
	return c.Managers[i], nil
}

// ManagerFor returns the manager that automates businessID, if any.
func (c *Catalog) ManagerFor(businessID string) (Manager, bool) {
	for _, m := range c.Managers {
		if m.BusinessID == businessID {
			return m, true
		}
	}
	return Manager{}, false
}

// WithTuning returns a copy of the catalog with the tuning replaced. Tables are
// shared, since they are never mutated.
func (c *Catalog) WithTuning(t Tuning) *Catalog {
	out := *c
	out.Tuning = t
	return &out
}
