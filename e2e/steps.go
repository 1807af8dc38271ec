package e2e

import (
	"github.com/cucumber/godog"

	"tcr/e2e/steps/common"
	"tcr/e2e/steps/ratelimit"
	"tcr/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Parties, generic requests, assertions
	common.RegisterSteps(ctx, tc)

	// Request, challenge, execute and rule
	registry.RegisterSteps(ctx, tc)

	// Per-party mutation limits
	ratelimit.RegisterSteps(ctx, tc)
}
