package models

import (
	dErrors "tcr/pkg/domain-errors"
)

// Action is a protocol event that may move an item between statuses.
type Action uint8

const (
	ActionRequestRegistration Action = iota + 1
	ActionRequestClearing
	ActionChallengeRegistration
	ActionChallengeClearing
	ActionExecute
	ActionRule
)

func (a Action) String() string {
	switch a {
	case ActionRequestRegistration:
		return "request_registration"
	case ActionRequestClearing:
		return "request_clearing"
	case ActionChallengeRegistration:
		return "challenge_registration"
	case ActionChallengeClearing:
		return "challenge_clearing"
	case ActionExecute:
		return "execute_request"
	case ActionRule:
		return "rule"
	default:
		return "unknown"
	}
}

// Event is an Action plus the ruling when Action is ActionRule.
type Event struct {
	Action Action
	Ruling Ruling
}

// Rules are the registry flags that change the shape of the state machine.
type Rules struct {
	AppendOnly          bool
	RechallengePossible bool
}

// Outcome is the result of a legal transition.
type Outcome struct {
	Status Status
	// Reopened is set when the winning request stays open for another challenge
	// round instead of reaching a terminal status. The submitter keeps its seat
	// and one stake remains in escrow.
	Reopened bool
}

// Transition is the registry state machine. Challenges are accepted against the
// undisputed item only; callers check the dispute flag first.
//
// Illegal requests and executions fail with CodeInvalidStateTransition. A
// challenge against the wrong request family fails with CodeInvalidChallenge.
func Transition(from Status, ev Event, rules Rules) (Outcome, error) {
	switch ev.Action {
	case ActionRequestRegistration:
		switch from {
		case StatusAbsent:
			return Outcome{Status: StatusSubmitted}, nil
		case StatusCleared:
			if rules.AppendOnly {
				return Outcome{}, dErrors.New(dErrors.CodeInvalidStateTransition, "registry is append-only: cleared items cannot be resubmitted")
			}
			return Outcome{Status: StatusResubmitted}, nil
		}
	case ActionRequestClearing:
		switch from {
		case StatusAbsent:
			return Outcome{Status: StatusPreventiveClearingRequested}, nil
		case StatusRegistered:
			return Outcome{Status: StatusClearingRequested}, nil
		}
	case ActionChallengeRegistration:
		if kind, ok := from.Kind(); ok && kind == KindRegistration {
			return Outcome{Status: from}, nil
		}
		return Outcome{}, dErrors.Newf(dErrors.CodeInvalidChallenge, "no registration request to challenge while %s", from)
	case ActionChallengeClearing:
		if kind, ok := from.Kind(); ok && kind == KindClearing {
			return Outcome{Status: from}, nil
		}
		return Outcome{}, dErrors.Newf(dErrors.CodeInvalidChallenge, "no clearing request to challenge while %s", from)
	case ActionExecute:
		return executeTransition(from, rules)
	case ActionRule:
		return rulingTransition(from, ev.Ruling, rules)
	}
	return Outcome{}, dErrors.Newf(dErrors.CodeInvalidStateTransition, "%s is not allowed while %s", ev.Action, from)
}

func executeTransition(from Status, rules Rules) (Outcome, error) {
	switch from {
	case StatusSubmitted:
		return Outcome{Status: StatusRegistered}, nil
	case StatusResubmitted:
		if rules.RechallengePossible {
			return Outcome{Status: StatusSubmitted, Reopened: true}, nil
		}
		return Outcome{Status: StatusRegistered}, nil
	case StatusClearingRequested, StatusPreventiveClearingRequested:
		return Outcome{Status: StatusCleared}, nil
	default:
		return Outcome{}, dErrors.Newf(dErrors.CodeInvalidStateTransition, "no pending request to execute while %s", from)
	}
}

func rulingTransition(from Status, ruling Ruling, rules Rules) (Outcome, error) {
	if !ruling.IsValid() {
		return Outcome{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %d", ruling)
	}
	kind, ok := from.Kind()
	if !ok {
		return Outcome{}, dErrors.Newf(dErrors.CodeInvalidStateTransition, "no dispute can be ruled while %s", from)
	}

	switch kind {
	case KindRegistration:
		switch ruling {
		case RulingRegister:
			if rules.RechallengePossible {
				return Outcome{Status: StatusSubmitted, Reopened: true}, nil
			}
			return Outcome{Status: StatusRegistered}, nil
		default:
			// Clear and Other both remove a contested registration.
			return Outcome{Status: StatusCleared}, nil
		}
	case KindClearing:
		switch ruling {
		case RulingRegister:
			return Outcome{Status: StatusRegistered}, nil
		case RulingClear:
			if rules.RechallengePossible {
				return Outcome{Status: from, Reopened: true}, nil
			}
			return Outcome{Status: StatusCleared}, nil
		default:
			return Outcome{Status: StatusAbsent}, nil
		}
	}
	return Outcome{}, dErrors.Newf(dErrors.CodeInvalidStateTransition, "no dispute can be ruled while %s", from)
}

// Winner maps a ruling on a dispute of the given family to the side it favours.
func Winner(kind RequestKind, ruling Ruling) Side {
	switch {
	case ruling == RulingOther:
		return SideNone
	case kind == KindRegistration && ruling == RulingRegister,
		kind == KindClearing && ruling == RulingClear:
		return SideSubmitter
	default:
		return SideChallenger
	}
}

// Side is a party to a dispute.
type Side uint8

const (
	SideNone Side = iota
	SideSubmitter
	SideChallenger
)

func (s Side) String() string {
	switch s {
	case SideSubmitter:
		return "submitter"
	case SideChallenger:
		return "challenger"
	default:
		return "none"
	}
}
