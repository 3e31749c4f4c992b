package session

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

type Type string

const (
	TypeInit     Type = "INIT"
	TypeTick     Type = "TICK"
	TypeTrigger  Type = "TRIGGER"
	TypeBuy      Type = "BUY"
	TypeUpgrade  Type = "UPGRADE"
	TypeManager  Type = "MANAGER"
	TypePrestige Type = "PRESTIGE"
	TypeStart    Type = "START"
	TypeStop     Type = "STOP"
	TypeSave     Type = "SAVE"
)

// Command is one inbound message. Now is unix ms; zero, or a time ahead of
// the session clock, means the session clock. Payload is a save envelope for INIT; without one INIT reloads the
// slot from the store.
type Command struct {
	ID         string          `json:"id,omitempty"`
	Type       Type            `json:"type"`
	Now        int64           `json:"now,omitempty"`
	BusinessID string          `json:"businessId,omitempty"`
	UpgradeID  string          `json:"upgradeId,omitempty"`
	ManagerID  string          `json:"managerId,omitempty"`
	Bulk       string          `json:"bulk,omitempty"`
	EveryMs    int64           `json:"everyMs,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Outcome reports a purchase-like transition.
type Outcome struct {
	Success  bool            `json:"success"`
	Reason   game.FailReason `json:"reason,omitempty"`
	Spent    decimal.Decimal `json:"spent"`
	Quantity int             `json:"quantity,omitempty"`
	Gained   decimal.Decimal `json:"gained"`
}

func outcomeOf(r game.PurchaseResult) *Outcome {
	return &Outcome{
		Success:  r.Success,
		Reason:   r.Reason,
		Spent:    r.Spent,
		Quantity: r.Quantity,
		Gained:   r.Gained,
	}
}

// Response answers exactly one Command, or reports one periodic tick (ID is
// then empty).
type Response struct {
	ID       string              `json:"id,omitempty"`
	Type     Type                `json:"type"`
	Seq      uint64              `json:"seq"`
	Snapshot *game.Snapshot      `json:"snapshot,omitempty"`
	Result   *Outcome            `json:"result,omitempty"`
	Offline  *game.OfflineReport `json:"offline,omitempty"`
	Save     json.RawMessage     `json:"save,omitempty"`
	Notice   string              `json:"notice,omitempty"`
	Error    string              `json:"error,omitempty"`

	// Err is the error behind Error, for callers that map it.
	Err error `json:"-"`
}
