package service_test

import (
	"context"
	"fmt"
	"time"

	"tcr/internal/registry/models"
	"tcr/internal/registry/service"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/requestcontext"
)

// seed registers n items, executing every other one.
func (s *ServiceSuite) seed(n int) []id.ItemKey {
	keys := make([]id.ItemKey, 0, n)
	for i := 0; i < n; i++ {
		k := key(fmt.Sprintf("item-%02d", i))
		s.mustRegister(k, alice, t0)
		if i%2 == 0 {
			_, err := s.service.ExecuteRequest(as(bob, t0.Add(time.Hour)), k)
			s.Require().NoError(err)
		}
		keys = append(keys, k)
	}
	return keys
}

func all() models.QueryFilter {
	return models.QueryFilter{Accepted: true, Rejected: true}
}

func (s *ServiceSuite) TestQueryItems() {
	keys := s.seed(5)
	ctx := context.Background()

	s.Run("pages in insertion order", func() {
		page, err := s.service.QueryItems(ctx, service.QueryInput{Count: 2, Filter: all()})
		s.Require().NoError(err)
		s.Equal(5, page.Total)
		s.True(page.HasMore)
		s.Require().Len(page.Items, 2)
		s.Equal(keys[0], page.Items[0].Key)
		s.Equal(keys[1], page.Items[1].Key)

		next, err := s.service.QueryItems(ctx, service.QueryInput{Cursor: 4, Count: 2, Filter: all()})
		s.Require().NoError(err)
		s.False(next.HasMore)
		s.Require().Len(next.Items, 1)
		s.Equal(keys[4], next.Items[0].Key)
	})

	s.Run("descending order", func() {
		page, err := s.service.QueryItems(ctx, service.QueryInput{Count: 1, Filter: all(), Descending: true})
		s.Require().NoError(err)
		s.Equal(keys[4], page.Items[0].Key)
	})

	s.Run("cursor counts matches, not positions", func() {
		page, err := s.service.QueryItems(ctx, service.QueryInput{Cursor: 1, Count: 5, Filter: models.QueryFilter{Pending: true}})
		s.Require().NoError(err)
		s.Require().Len(page.Items, 1)
		s.Equal(keys[3], page.Items[0].Key)
	})

	s.Run("my submissions needs a caller", func() {
		filter := models.QueryFilter{MySubmissions: true}
		anon, err := s.service.QueryItems(ctx, service.QueryInput{Count: 10, Filter: filter})
		s.Require().NoError(err)
		s.Empty(anon.Items)

		mine, err := s.service.QueryItems(requestcontext.WithCaller(ctx, alice), service.QueryInput{Count: 10, Filter: filter})
		s.Require().NoError(err)
		s.Len(mine.Items, 5)
	})

	s.Run("zero count returns an empty page", func() {
		page, err := s.service.QueryItems(ctx, service.QueryInput{Filter: all()})
		s.Require().NoError(err)
		s.Empty(page.Items)
		s.True(page.HasMore)
	})

	s.Run("cursor at or past the item count is out of range", func() {
		_, err := s.service.QueryItems(ctx, service.QueryInput{Cursor: 5, Count: 1, Filter: all()})
		s.True(dErrors.HasCode(err, dErrors.CodeCursorOutOfRange))
	})

	s.Run("negative and oversized counts are invalid", func() {
		_, err := s.service.QueryItems(ctx, service.QueryInput{Count: -1})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.service.QueryItems(ctx, service.QueryInput{Count: service.MaxQueryCount + 1})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestQueryEmptyRegistry() {
	_, err := s.service.QueryItems(context.Background(), service.QueryInput{Count: 1, Filter: all()})
	s.True(dErrors.HasCode(err, dErrors.CodeCursorOutOfRange))
}

func (s *ServiceSuite) TestIsPermittedPolarity() {
	k := key("polarity")
	ctx := context.Background()

	permitted, err := s.service.IsPermitted(ctx, k)
	s.Require().NoError(err)
	s.False(permitted, "unknown keys are absent from a whitelist")

	s.params.Blacklist = true
	s.rebuild()
	permitted, err = s.service.IsPermitted(ctx, k)
	s.Require().NoError(err)
	s.True(permitted, "unknown keys pass a blacklist")

	s.mustRegister(k, alice, t0)
	permitted, err = s.service.IsPermitted(ctx, k)
	s.Require().NoError(err)
	s.False(permitted)
}
