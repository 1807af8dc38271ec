package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTAs(party, path string, body any) error
	NewItem()
	ItemKey() string
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^"([^"]*)" sends underpaid requests until the limit is reached$`, steps.exhaustLimit)
	ctx.Step(`^"([^"]*)" sends one more underpaid request$`, steps.sendOneMore)
	ctx.Step(`^the remaining allowance should be (\d+)$`, steps.remainingShouldBe)
}

type ratelimitSteps struct {
	tc TestContext
}

// underpaid requests are rejected by the registry after the limiter has
// counted them, so exhausting the limit leaves no ledger state behind.
func (s *ratelimitSteps) underpaid(party string) error {
	s.tc.NewItem()
	return s.tc.POSTAs(party, "/items/"+s.tc.ItemKey()+"/registration", map[string]string{"payment": "0"})
}

func (s *ratelimitSteps) exhaustLimit(ctx context.Context, party string) error {
	if err := s.underpaid(party); err != nil {
		return err
	}
	limit, err := strconv.Atoi(s.tc.GetLastResponseHeader("X-RateLimit-Limit"))
	if err != nil {
		return fmt.Errorf("rate limiting is not enabled on the server: %w", err)
	}
	for sent := 1; sent < limit; sent++ {
		if err := s.underpaid(party); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 429 {
			return fmt.Errorf("limited after %d of %d requests", sent+1, limit)
		}
	}
	return nil
}

func (s *ratelimitSteps) sendOneMore(ctx context.Context, party string) error {
	return s.underpaid(party)
}

func (s *ratelimitSteps) remainingShouldBe(ctx context.Context, want int) error {
	got := s.tc.GetLastResponseHeader("X-RateLimit-Remaining")
	if got != strconv.Itoa(want) {
		return fmt.Errorf("expected X-RateLimit-Remaining %d, got %q", want, got)
	}
	return nil
}
