package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
)

const (
	// StateVersion is the schema version written by this build.
	StateVersion = 2

	MaxBulkInput = 1000
)

var (
	ErrUnknownID   = economy.ErrUnknownID
	ErrInvalidBulk = errors.New("bulk must be 1, 10, max or a positive whole number")
)

// Bulk is a purchase quantity; BulkMax buys as many as the balance allows.
type Bulk int

const BulkMax Bulk = -1

func (b Bulk) String() string {
	if b == BulkMax {
		return "max"
	}
	return strconv.Itoa(int(b))
}

func ParseBulk(s string) (Bulk, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "max" {
		return BulkMax, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxBulkInput {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBulk, s)
	}
	return Bulk(n), nil
}

// FailReason explains why a purchase-like transition did not apply.
type FailReason string

const (
	ReasonNone              FailReason = ""
	ReasonInsufficientFunds FailReason = "insufficient funds"
	ReasonLocked            FailReason = "locked"
	ReasonAlreadyOwned      FailReason = "already owned"
	ReasonRequirement       FailReason = "requirement not met"
	ReasonNothingToBuy      FailReason = "nothing affordable"
	ReasonNoPrestige        FailReason = "no prestige points to gain"
)

type PurchaseResult struct {
	Success  bool
	State    GameState
	Spent    decimal.Decimal
	Quantity int
	Gained   decimal.Decimal
	Reason   FailReason
}

func failed(s GameState, reason FailReason) PurchaseResult {
	return PurchaseResult{State: s, Spent: economy.Zero, Gained: economy.Zero, Reason: reason}
}
