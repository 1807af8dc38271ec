package models

import (
	"strings"

	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
)

// IsPermitted derives the gating answer from status and blacklist polarity.
// Membership answers !blacklist, non-membership answers blacklist. A contested
// preventive clearing presumes membership until the ruling lands.
func IsPermitted(item *Item, blacklist bool) bool {
	switch item.Status {
	case StatusRegistered, StatusSubmitted, StatusResubmitted, StatusClearingRequested:
		return !blacklist
	case StatusPreventiveClearingRequested:
		if item.Disputed {
			return !blacklist
		}
		return blacklist
	default:
		return blacklist
	}
}

// QueryFilter selects items in a query scan. Enabled predicates are OR-ed; an
// item matches when any enabled predicate holds.
type QueryFilter struct {
	Pending       bool `json:"pending"`
	Challenged    bool `json:"challenged"`
	Accepted      bool `json:"accepted"`
	Rejected      bool `json:"rejected"`
	MySubmissions bool `json:"my_submissions"`
	MyChallenges  bool `json:"my_challenges"`
}

// filterNames maps query-string tokens to predicates.
var filterNames = map[string]func(*QueryFilter){
	"pending":        func(f *QueryFilter) { f.Pending = true },
	"challenged":     func(f *QueryFilter) { f.Challenged = true },
	"accepted":       func(f *QueryFilter) { f.Accepted = true },
	"rejected":       func(f *QueryFilter) { f.Rejected = true },
	"my_submissions": func(f *QueryFilter) { f.MySubmissions = true },
	"my_challenges":  func(f *QueryFilter) { f.MyChallenges = true },
}

// ParseQueryFilter parses a comma separated list such as "pending,accepted".
func ParseQueryFilter(s string) (QueryFilter, error) {
	var f QueryFilter
	if strings.TrimSpace(s) == "" {
		return f, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		set, ok := filterNames[tok]
		if !ok {
			return QueryFilter{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown filter %q", tok)
		}
		set(&f)
	}
	return f, nil
}

// Matches reports whether item satisfies any enabled predicate. caller is the
// address asking; the "my" predicates never match an anonymous caller.
func (f QueryFilter) Matches(item *Item, caller id.Address, blacklist bool) bool {
	if f.Pending && item.Status.IsPending() {
		return true
	}
	if f.Challenged && item.Disputed {
		return true
	}
	if f.Accepted || f.Rejected {
		permitted := IsPermitted(item, blacklist)
		if (f.Accepted && permitted) || (f.Rejected && !permitted) {
			return true
		}
	}
	if !caller.IsNil() {
		if f.MySubmissions && item.Submitter == caller {
			return true
		}
		if f.MyChallenges && item.Challenger == caller {
			return true
		}
	}
	return false
}
