package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AddParty(name string) error
	NewItem()
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers background and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background
	ctx.Step(`^the registry is running$`, steps.registryIsRunning)
	ctx.Step(`^"([^"]*)" is a party$`, steps.isAParty)
	ctx.Step(`^a fresh item$`, steps.freshItem)

	// Assertions
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response should include header "([^"]*)"$`, steps.responseShouldIncludeHeader)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) registryIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/health", nil); err != nil {
		return err
	}
	return s.responseStatusShouldBe(ctx, 200)
}

func (s *commonSteps) isAParty(ctx context.Context, name string) error {
	return s.tc.AddParty(name)
}

func (s *commonSteps) freshItem(ctx context.Context) error {
	s.tc.NewItem()
	return nil
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseErrorShouldBe(ctx context.Context, code string) error {
	return s.responseFieldShouldEqual(ctx, "error", code)
}

func (s *commonSteps) responseFieldShouldEqual(ctx context.Context, field, want string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %q, got %q", field, want, fmt.Sprint(got))
	}
	return nil
}

func (s *commonSteps) responseShouldIncludeHeader(ctx context.Context, name string) error {
	if s.tc.GetLastResponseHeader(name) == "" {
		return fmt.Errorf("expected header %s in response", name)
	}
	return nil
}
