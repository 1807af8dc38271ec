package service

import (
	"context"
	"errors"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/sentinel"
	"tcr/pkg/requestcontext"
)

// MaxQueryCount caps a single query page.
const MaxQueryCount = 500

// QueryInput pages through items in insertion order. Cursor counts matching
// items to skip, not raw positions.
type QueryInput struct {
	Cursor     int
	Count      int
	Filter     models.QueryFilter
	Descending bool
}

// QueryResult is one page of matching items.
type QueryResult struct {
	Items   []*models.Item `json:"items"`
	HasMore bool           `json:"has_more"`
	Total   int            `json:"total"`
}

// QueryItems scans items, skips the first Cursor matches and returns up to
// Count more. The cursor must be below the number of stored items.
func (s *Service) QueryItems(ctx context.Context, in QueryInput) (*QueryResult, error) {
	if in.Cursor < 0 || in.Count < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cursor and count must not be negative")
	}
	if in.Count > MaxQueryCount {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "count must not exceed %d", MaxQueryCount)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to count items")
	}
	if in.Cursor >= total {
		return nil, dErrors.Newf(dErrors.CodeCursorOutOfRange, "cursor %d is out of range for %d items", in.Cursor, total)
	}

	caller := requestcontext.Caller(ctx)
	result := &QueryResult{Items: make([]*models.Item, 0, in.Count), Total: total}
	skipped := 0
	err = s.store.ListInOrder(ctx, in.Descending, func(item *models.Item) bool {
		if !in.Filter.Matches(item, caller, s.params.Blacklist) {
			return true
		}
		if skipped < in.Cursor {
			skipped++
			return true
		}
		if len(result.Items) == in.Count {
			result.HasMore = true
			return false
		}
		result.Items = append(result.Items, item.Snapshot())
		return true
	})
	if err != nil {
		return nil, translateStoreErr(err, "failed to scan items")
	}
	return result, nil
}

// IsPermitted answers the gating question for key under the registry's polarity.
// Unknown keys are Absent.
func (s *Service) IsPermitted(ctx context.Context, key id.ItemKey) (bool, error) {
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return false, err
	}
	return models.IsPermitted(item, s.params.Blacklist), nil
}

// GetItem returns the item for key, or its logical Absent record.
func (s *Service) GetItem(ctx context.Context, key id.ItemKey) (*models.Item, error) {
	if key.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "item key is required")
	}
	return s.load(ctx, s.store, key)
}

// ItemByDispute returns the item carrying an open dispute.
func (s *Service) ItemByDispute(ctx context.Context, disputeID id.DisputeID) (*models.Item, error) {
	item, err := s.store.FindByDisputeID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUnknownDispute, "dispute %s is not linked to any item", disputeID)
		}
		return nil, translateStoreErr(err, "failed to look up dispute")
	}
	return item, nil
}

// ListPayouts returns the transfers recorded for an address, oldest first.
func (s *Service) ListPayouts(ctx context.Context, to id.Address) ([]models.Payout, error) {
	if to.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	payouts, err := s.store.ListPayouts(ctx, to)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list payouts")
	}
	return payouts, nil
}
