package save

import (
	"fmt"
	"math"
)

// migration upgrades a decoded state document by exactly one version, in
// place.
type migration func(doc map[string]any) error

// migrations is keyed by the version a step starts from.
var migrations = map[int]migration{
	1: migrateV1,
}

func migrate(doc map[string]any, from, to int) error {
	for v := from; v < to; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("%w: no step from version %d", ErrMigrationGap, v)
		}
		if err := step(doc); err != nil {
			return fmt.Errorf("migrate from version %d: %w", v, err)
		}
		doc["version"] = v + 1
	}
	return nil
}

// migrateV1 adds the explicit running flag, the reset counter and the
// all-time earnings counter. Version 1 marked a running manual cycle only by
// a positive, often fractional, progressMs; later versions keep whole
// milliseconds.
func migrateV1(doc map[string]any) error {
	if _, ok := doc["lifetimeEarned"]; !ok {
		total, ok := doc["totalEarned"]
		if !ok {
			return fmt.Errorf("%w: totalEarned missing", ErrCorrupt)
		}
		doc["lifetimeEarned"] = total
	}

	businesses, _ := doc["businesses"].(map[string]any)
	for id, raw := range businesses {
		b, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: business %q is not an object", ErrCorrupt, id)
		}
		if _, ok := b["running"]; ok {
			continue
		}
		progress, _ := b["progressMs"].(float64)
		automated, _ := b["isAutomated"].(bool)
		b["running"] = progress > 0 && !automated
		floorMs(b, "progressMs")
		floorMs(b, "durationMs")
	}

	prestige, ok := doc["prestige"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: prestige missing", ErrCorrupt)
	}
	if _, ok := prestige["resets"]; !ok {
		prestige["resets"] = 0
	}
	return nil
}

func floorMs(b map[string]any, key string) {
	if v, ok := b[key].(float64); ok {
		b[key] = math.Floor(v)
	}
}
