package economy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

var ErrInvalidTables = errors.New("invalid economy tables")

type rawTables struct {
	Tuning struct {
		StepMs          int64  `yaml:"step_ms" validate:"min=1"`
		OfflineCap      string `yaml:"offline_cap" validate:"required"`
		MinDurationMs   int64  `yaml:"min_duration_ms" validate:"min=1"`
		MaxBulk         int    `yaml:"max_bulk" validate:"min=1"`
		StartingBalance string `yaml:"starting_balance" validate:"required"`
		Starter         string `yaml:"starter" validate:"required"`
	} `yaml:"tuning"`
	Prestige struct {
		K          string `yaml:"k" validate:"required"`
		Alpha      string `yaml:"alpha" validate:"required"`
		IncomeBase string `yaml:"income_base" validate:"required"`
		SpeedBase  string `yaml:"speed_base" validate:"required"`
	} `yaml:"prestige"`
	Businesses []rawBusiness `yaml:"businesses" validate:"min=1,dive"`
	Upgrades   []rawUpgrade  `yaml:"upgrades" validate:"dive"`
	Managers   []rawManager  `yaml:"managers" validate:"dive"`
	Tiers      []rawTier     `yaml:"tiers" validate:"dive"`
}

type rawBusiness struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	BaseCost    string `yaml:"base_cost" validate:"required"`
	CostGrowth  string `yaml:"cost_growth" validate:"required"`
	BaseRate    string `yaml:"base_rate" validate:"required"`
	DurationMs  int64  `yaml:"duration_ms" validate:"min=1"`
	Unlock      struct {
		Kind     string `yaml:"kind" validate:"oneof=start business earnings"`
		Business string `yaml:"business"`
		Amount   int    `yaml:"amount" validate:"min=0"`
		Earnings string `yaml:"earnings"`
	} `yaml:"unlock"`
}

type rawUpgrade struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Target      string `yaml:"target" validate:"required"`
	Effect      string `yaml:"effect" validate:"oneof=income speed"`
	Multiplier  string `yaml:"multiplier" validate:"required"`
	Cost        string `yaml:"cost" validate:"required"`
	Threshold   int    `yaml:"threshold" validate:"min=0"`
}

type rawManager struct {
	ID             string `yaml:"id" validate:"required"`
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Business       string `yaml:"business" validate:"required"`
	Cost           string `yaml:"cost" validate:"required"`
	RequiredAmount int    `yaml:"required_amount" validate:"min=0"`
}

type rawTier struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Threshold   string `yaml:"threshold" validate:"required"`
	Bonus       string `yaml:"bonus" validate:"required"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog built from the embedded tables.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(defaultTables)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for program start-up, where bad tables are a build error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML content tables.
func Parse(raw []byte) (*Catalog, error) {
	var rt rawTables
	if err := yaml.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTables, err)
	}
	if err := validator.New().Struct(rt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTables, err)
	}
	p := &parser{}
	c := &Catalog{}

	capDur, err := time.ParseDuration(rt.Tuning.OfflineCap)
	if err != nil || capDur <= 0 {
		p.fail("tuning.offline_cap %q is not a positive duration", rt.Tuning.OfflineCap)
	}
	c.Tuning = Tuning{
		StepMs:          rt.Tuning.StepMs,
		OfflineCap:      capDur,
		MinDurationMs:   rt.Tuning.MinDurationMs,
		MaxBulk:         rt.Tuning.MaxBulk,
		StartingBalance: p.dec("tuning.starting_balance", rt.Tuning.StartingBalance),
		StarterID:       rt.Tuning.Starter,
	}
	c.Prestige = PrestigeParams{
		K:          p.dec("prestige.k", rt.Prestige.K),
		Alpha:      p.dec("prestige.alpha", rt.Prestige.Alpha),
		IncomeBase: p.dec("prestige.income_base", rt.Prestige.IncomeBase),
		SpeedBase:  p.dec("prestige.speed_base", rt.Prestige.SpeedBase),
	}
	if c.Prestige.Alpha.LessThanOrEqual(Zero) || c.Prestige.Alpha.GreaterThan(One) {
		p.fail("prestige.alpha must be in (0,1]")
	}

	for _, rb := range rt.Businesses {
		b := Business{
			ID:          rb.ID,
			Name:        rb.Name,
			Description: rb.Description,
			BaseCost:    p.dec(rb.ID+".base_cost", rb.BaseCost),
			CostGrowth:  p.dec(rb.ID+".cost_growth", rb.CostGrowth),
			BaseRate:    p.dec(rb.ID+".base_rate", rb.BaseRate),
			DurationMs:  rb.DurationMs,
			Unlock: UnlockRule{
				Kind:       UnlockKind(rb.Unlock.Kind),
				BusinessID: rb.Unlock.Business,
				Amount:     rb.Unlock.Amount,
				Earnings:   Zero,
			},
		}
		if b.Unlock.Kind == UnlockEarnings {
			b.Unlock.Earnings = p.dec(rb.ID+".unlock.earnings", rb.Unlock.Earnings)
		}
		if b.CostGrowth.LessThan(One) {
			p.fail("%s.cost_growth must be >= 1", rb.ID)
		}
		c.Businesses = append(c.Businesses, b)
	}
	for _, ru := range rt.Upgrades {
		c.Upgrades = append(c.Upgrades, Upgrade{
			ID:          ru.ID,
			Name:        ru.Name,
			Description: ru.Description,
			Target:      ru.Target,
			Effect:      EffectKind(ru.Effect),
			Multiplier:  p.dec(ru.ID+".multiplier", ru.Multiplier),
			Cost:        p.dec(ru.ID+".cost", ru.Cost),
			Threshold:   ru.Threshold,
		})
	}
	for _, rm := range rt.Managers {
		required := rm.RequiredAmount
		if required == 0 {
			required = 1
		}
		c.Managers = append(c.Managers, Manager{
			ID:             rm.ID,
			Name:           rm.Name,
			Description:    rm.Description,
			BusinessID:     rm.Business,
			Cost:           p.dec(rm.ID+".cost", rm.Cost),
			RequiredAmount: required,
		})
	}
	for _, rtier := range rt.Tiers {
		c.Tiers = append(c.Tiers, PrestigeTier{
			ID:          rtier.ID,
			Name:        rtier.Name,
			Description: rtier.Description,
			Threshold:   p.dec(rtier.ID+".threshold", rtier.Threshold),
			Bonus:       p.dec(rtier.ID+".bonus", rtier.Bonus),
		})
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	c.index()
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	for i := range c.Businesses {
		for _, u := range c.Upgrades {
			if u.Target == c.Businesses[i].ID {
				c.Businesses[i].UpgradeIDs = append(c.Businesses[i].UpgradeIDs, u.ID)
			}
		}
	}
	for i := range c.Managers {
		m := &c.Managers[i]
		b, _ := c.Business(m.BusinessID)
		if m.Name == "" {
			m.Name = b.Name + " Manager"
		}
		if m.Description == "" {
			m.Description = "Automates " + b.Name + " production."
		}
	}
	return c, nil
}

func (c *Catalog) crossCheck() error {
	p := &parser{}
	if len(c.businessIdx) != len(c.Businesses) {
		p.fail("duplicate business id")
	}
	if len(c.upgradeIdx) != len(c.Upgrades) {
		p.fail("duplicate upgrade id")
	}
	if len(c.managerIdx) != len(c.Managers) {
		p.fail("duplicate manager id")
	}
	if _, err := c.Business(c.Tuning.StarterID); err != nil {
		p.fail("starter: %v", err)
	}
	for _, b := range c.Businesses {
		if b.Unlock.Kind == UnlockBusiness {
			if _, err := c.Business(b.Unlock.BusinessID); err != nil {
				p.fail("%s unlock: %v", b.ID, err)
			}
		}
	}
	for _, u := range c.Upgrades {
		if u.Target != GlobalTarget {
			if _, err := c.Business(u.Target); err != nil {
				p.fail("%s target: %v", u.ID, err)
			}
		}
		if !u.Multiplier.IsPositive() {
			p.fail("%s multiplier must be positive", u.ID)
		}
	}
	seen := map[string]bool{}
	for _, m := range c.Managers {
		if _, err := c.Business(m.BusinessID); err != nil {
			p.fail("%s business: %v", m.ID, err)
		}
		if seen[m.BusinessID] {
			p.fail("business %s has more than one manager", m.BusinessID)
		}
		seen[m.BusinessID] = true
	}
	return p.err()
}

type parser struct {
	problems []string
}

func (p *parser) fail(format string, args ...any) {
	p.problems = append(p.problems, fmt.Sprintf(format, args...))
}

func (p *parser) dec(field, s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		p.fail("%s: %q is not a decimal", field, s)
		return Zero
	}
	return d
}

func (p *parser) err() error {
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidTables, strings.Join(p.problems, "; "))
}
