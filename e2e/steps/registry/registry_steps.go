package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"

	id "tcr/pkg/domain"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTAs(party, path string, body any) error
	POSTAsArbitrator(path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Party(name string) (id.Address, error)
	ItemKey() string
	DisputeID() string
	SetDisputeID(disputeID string)
}

// RegisterSteps registers registry lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	// Requests and challenges
	ctx.Step(`^"([^"]*)" requests (registration|clearing) of the item paying (\d+)$`, steps.request)
	ctx.Step(`^an anonymous caller requests (registration|clearing) of the item paying (\d+)$`, steps.anonymousRequest)
	ctx.Step(`^"([^"]*)" challenges the (registration|clearing) paying (\d+)$`, steps.challenge)
	ctx.Step(`^"([^"]*)" executes the request$`, steps.execute)

	// Arbitration
	ctx.Step(`^the arbitrator rules "([^"]*)" on the dispute$`, steps.rule)
	ctx.Step(`^the arbitrator replays ruling "([^"]*)" on the dispute$`, steps.replayRuling)
	ctx.Step(`^the ruling has been applied$`, steps.rulingApplied)

	// Reads
	ctx.Step(`^I fetch the item$`, steps.fetchItem)
	ctx.Step(`^I check whether the item is permitted$`, steps.checkPermitted)
	ctx.Step(`^"([^"]*)" should have been paid (\d+) as "([^"]*)"$`, steps.shouldHaveBeenPaid)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) itemPath() string {
	return "/items/" + s.tc.ItemKey()
}

func payment(amount int) map[string]any {
	return map[string]any{"payment": strconv.Itoa(amount)}
}

func (s *registrySteps) request(ctx context.Context, party, kind string, amount int) error {
	return s.tc.POSTAs(party, s.itemPath()+"/"+kind, payment(amount))
}

func (s *registrySteps) anonymousRequest(ctx context.Context, kind string, amount int) error {
	return s.tc.POSTAs("", s.itemPath()+"/"+kind, payment(amount))
}

func (s *registrySteps) challenge(ctx context.Context, party, kind string, amount int) error {
	if err := s.tc.POSTAs(party, s.itemPath()+"/"+kind+"/challenge", payment(amount)); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	disputeID, err := s.tc.GetResponseField("dispute_id")
	if err != nil {
		return err
	}
	s.tc.SetDisputeID(fmt.Sprint(disputeID))
	return nil
}

func (s *registrySteps) execute(ctx context.Context, party string) error {
	return s.tc.POSTAs(party, s.itemPath()+"/execute", nil)
}

func (s *registrySteps) rule(ctx context.Context, ruling string) error {
	if s.tc.DisputeID() == "" {
		return fmt.Errorf("no dispute was opened in this scenario")
	}
	return s.tc.POSTAsArbitrator("/arbitrator/disputes/"+s.tc.DisputeID()+"/ruling", map[string]string{"ruling": ruling})
}

func (s *registrySteps) replayRuling(ctx context.Context, ruling string) error {
	return s.tc.POSTAsArbitrator("/arbitrator/rulings", map[string]string{
		"dispute_id": s.tc.DisputeID(),
		"ruling":     ruling,
	})
}

// rulingApplied polls the item until the dispute is settled. Rulings given in
// centralized mode may travel through the ruling topic before they apply.
func (s *registrySteps) rulingApplied(ctx context.Context) error {
	for attempt := 0; attempt < 50; attempt++ {
		if err := s.fetchItem(ctx); err != nil {
			return err
		}
		disputed, err := s.tc.GetResponseField("item.disputed")
		if err != nil {
			return err
		}
		if disputed == false {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("dispute %s still open after 5s", s.tc.DisputeID())
}

func (s *registrySteps) fetchItem(ctx context.Context) error {
	return s.tc.GET(s.itemPath(), nil)
}

func (s *registrySteps) checkPermitted(ctx context.Context) error {
	return s.tc.GET(s.itemPath()+"/permitted", nil)
}

func (s *registrySteps) shouldHaveBeenPaid(ctx context.Context, party string, want int, reason string) error {
	addr, err := s.tc.Party(party)
	if err != nil {
		return err
	}
	if err := s.tc.GET("/payouts?address="+addr.String(), nil); err != nil {
		return err
	}
	var ledger struct {
		Payouts []struct {
			Amount json.Number `json:"amount"`
			Reason string      `json:"reason"`
		} `json:"payouts"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &ledger); err != nil {
		return fmt.Errorf("decode payouts: %w", err)
	}
	total := 0
	for _, p := range ledger.Payouts {
		if p.Reason != reason {
			continue
		}
		n, err := strconv.Atoi(p.Amount.String())
		if err != nil {
			return fmt.Errorf("payout amount %q: %w", p.Amount, err)
		}
		total += n
	}
	if total != want {
		return fmt.Errorf("expected %s to be paid %d as %s, got %d", party, want, reason, total)
	}
	return nil
}
