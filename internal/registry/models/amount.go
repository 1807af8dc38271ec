package models

import (
	"encoding/json"
	"math"
	"strconv"

	dErrors "tcr/pkg/domain-errors"
)

// Amount is a quantity of the registry's currency in its smallest unit.
// It travels as a decimal string so JSON clients never round it.
type Amount uint64

// ParseAmount parses a base-10 amount.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must not be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "amount must be a non-negative integer")
	}
	return Amount(n), nil
}

// Add returns a+b, failing instead of wrapping on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if uint64(b) > math.MaxUint64-uint64(a) {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "amount overflow")
	}
	return a + b, nil
}

// Sub returns a-b, failing instead of wrapping on underflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "amount underflow")
	}
	return a - b, nil
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(b, &n); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "amount must be a decimal string")
		}
		*a = Amount(n)
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
