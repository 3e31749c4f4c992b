package save

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// stateDoc is the persisted shape of a game state, decimals kept as strings.
// It only exists to be validated before the real decode.
type stateDoc struct {
	Version        int                    `json:"version" validate:"min=1"`
	Balance        string                 `json:"balance" validate:"required,decimal=nonneg"`
	TotalEarned    string                 `json:"totalEarned" validate:"required,decimal=nonneg"`
	LifetimeEarned string                 `json:"lifetimeEarned" validate:"required,decimal=nonneg"`
	LastTick       int64                  `json:"lastTick" validate:"min=0"`
	Businesses     map[string]businessDoc `json:"businesses" validate:"required,dive"`
	Upgrades       map[string]upgradeDoc  `json:"upgrades" validate:"required,dive"`
	Managers       map[string]managerDoc  `json:"managers" validate:"required,dive"`
	Prestige       prestigeDoc            `json:"prestige"`
}

type businessDoc struct {
	ID          string `json:"id" validate:"required"`
	Amount      int    `json:"amount" validate:"min=0"`
	ProgressMs  int64  `json:"progressMs" validate:"min=0"`
	DurationMs  int64  `json:"durationMs" validate:"min=0"`
	Running     bool   `json:"running"`
	IsAutomated bool   `json:"isAutomated"`
	Unlocked    bool   `json:"unlocked"`
	TotalEarned string `json:"totalEarned" validate:"required,decimal=nonneg"`
}

type upgradeDoc struct {
	ID        string `json:"id" validate:"required"`
	Purchased bool   `json:"purchased"`
}

type managerDoc struct {
	ID    string `json:"id" validate:"required"`
	Hired bool   `json:"hired"`
}

type prestigeDoc struct {
	Points        string `json:"points" validate:"required,decimal=nonneg"`
	TotalPrestige string `json:"totalPrestige" validate:"required,decimal=nonneg"`
	LastReset     int64  `json:"lastReset"`
	Multiplier    string `json:"multiplier" validate:"required,decimal=pos"`
	Resets        int    `json:"resets" validate:"min=0"`
}

// validDecimal backs the decimal tag. The param narrows the range: nonneg or
// pos; empty accepts any value.
func validDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	switch fl.Param() {
	case "nonneg":
		return !d.IsNegative()
	case "pos":
		return d.IsPositive()
	default:
		return true
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("decimal", validDecimal); err != nil {
		panic(err)
	}
	return v
}

var validate = newValidator()

func validateDoc(doc *stateDoc) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(msgs, "; "))
}
