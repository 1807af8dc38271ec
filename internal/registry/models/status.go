package models

import (
	"encoding/json"
	"fmt"

	dErrors "tcr/pkg/domain-errors"
)

// Status is the lifecycle position of an item. The numeric values are part of
// the persisted format and must not be reordered.
type Status uint8

const (
	StatusAbsent Status = iota
	StatusCleared
	StatusResubmitted
	StatusRegistered
	StatusSubmitted
	StatusClearingRequested
	StatusPreventiveClearingRequested
)

var statusNames = [...]string{
	StatusAbsent:                      "absent",
	StatusCleared:                     "cleared",
	StatusResubmitted:                 "resubmitted",
	StatusRegistered:                  "registered",
	StatusSubmitted:                   "submitted",
	StatusClearingRequested:           "clearing_requested",
	StatusPreventiveClearingRequested: "preventive_clearing_requested",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// IsValid reports whether s is one of the declared statuses.
func (s Status) IsValid() bool {
	return int(s) < len(statusNames)
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", v)
}

// IsPending reports whether a request is open on the item. Only pending
// statuses may carry a balance or a live dispute.
func (s Status) IsPending() bool {
	switch s {
	case StatusSubmitted, StatusResubmitted, StatusClearingRequested, StatusPreventiveClearingRequested:
		return true
	default:
		return false
	}
}

// Kind returns the request family of a pending status.
func (s Status) Kind() (RequestKind, bool) {
	switch s {
	case StatusSubmitted, StatusResubmitted:
		return KindRegistration, true
	case StatusClearingRequested, StatusPreventiveClearingRequested:
		return KindClearing, true
	default:
		return 0, false
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RequestKind is the family of a pending request, and so of any dispute on it.
type RequestKind uint8

const (
	KindRegistration RequestKind = iota + 1
	KindClearing
)

func (k RequestKind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindClearing:
		return "clearing"
	default:
		return "unknown"
	}
}

// Ruling is the arbitrator's decision on a dispute.
type Ruling uint8

const (
	RulingOther Ruling = iota
	RulingRegister
	RulingClear
)

func (r Ruling) String() string {
	switch r {
	case RulingOther:
		return "other"
	case RulingRegister:
		return "register"
	case RulingClear:
		return "clear"
	default:
		return fmt.Sprintf("ruling(%d)", r)
	}
}

// IsValid reports whether r is one of the three defined rulings.
func (r Ruling) IsValid() bool {
	return r <= RulingClear
}

// ParseRuling accepts either the name or the numeric arbitrator code.
func ParseRuling(v string) (Ruling, error) {
	switch v {
	case "other", "0":
		return RulingOther, nil
	case "register", "1":
		return RulingRegister, nil
	case "clear", "2":
		return RulingClear, nil
	default:
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %q", v)
	}
}

func (r Ruling) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts a ruling name or the arbitrator's numeric code.
func (r *Ruling) UnmarshalJSON(b []byte) error {
	var n uint8
	if err := json.Unmarshal(b, &n); err == nil {
		if !Ruling(n).IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %d", n)
		}
		*r = Ruling(n)
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "ruling must be a name or code")
	}
	parsed, err := ParseRuling(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
