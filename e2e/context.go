package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jwttoken "tcr/internal/jwt_token"
	id "tcr/pkg/domain"
	arbmw "tcr/pkg/platform/middleware/arbitrator"
)

// TestContext holds the per-scenario state of a run against a live server.
type TestContext struct {
	BaseURL         string
	ArbitratorToken string

	client  *http.Client
	issuer  *jwttoken.JWTService
	parties map[string]id.Address
	tokens  map[string]string

	itemKey   string
	disputeID string

	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
}

// NewTestContext targets baseURL and mints party tokens with issuer.
func NewTestContext(baseURL, arbitratorToken string, issuer *jwttoken.JWTService) *TestContext {
	return &TestContext{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		ArbitratorToken: arbitratorToken,
		client:          &http.Client{Timeout: 10 * time.Second},
		issuer:          issuer,
	}
}

// Reset clears scenario state. Items and parties are fresh per scenario so
// runs against a long-lived server do not collide.
func (tc *TestContext) Reset() {
	tc.parties = make(map[string]id.Address)
	tc.tokens = make(map[string]string)
	tc.itemKey = ""
	tc.disputeID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeaders = nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AddParty creates a party with a random address and a signed token.
func (tc *TestContext) AddParty(name string) error {
	addr := id.Address("0x" + randomHex(20))
	token, err := tc.issuer.GenerateAccessToken(addr, time.Hour)
	if err != nil {
		return fmt.Errorf("issue token for %s: %w", name, err)
	}
	tc.parties[name] = addr
	tc.tokens[name] = token
	return nil
}

func (tc *TestContext) Party(name string) (id.Address, error) {
	addr, ok := tc.parties[name]
	if !ok {
		return "", fmt.Errorf("unknown party %q", name)
	}
	return addr, nil
}

func (tc *TestContext) NewItem() {
	tc.itemKey = "0x" + randomHex(16)
}

func (tc *TestContext) ItemKey() string { return tc.itemKey }

func (tc *TestContext) DisputeID() string { return tc.disputeID }

func (tc *TestContext) SetDisputeID(disputeID string) { tc.disputeID = disputeID }

// POSTAs sends body as the named party. An empty name sends no credentials.
func (tc *TestContext) POSTAs(party, path string, body any) error {
	headers := map[string]string{}
	if party != "" {
		token, ok := tc.tokens[party]
		if !ok {
			return fmt.Errorf("unknown party %q", party)
		}
		headers["Authorization"] = "Bearer " + token
	}
	return tc.do(http.MethodPost, path, body, headers)
}

// POSTAsArbitrator sends body with the arbitrator callback token.
func (tc *TestContext) POSTAsArbitrator(path string, body any) error {
	return tc.do(http.MethodPost, path, body, map[string]string{arbmw.HeaderToken: tc.ArbitratorToken})
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeaders.Get(name)
}

// GetResponseField reads a dotted path ("item.status") from the last JSON
// response. Numbers come back as json.Number.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(tc.lastBody))
	dec.UseNumber()
	var node any
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, tc.lastBody)
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if node, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not in response: %s", path, tc.lastBody)
		}
	}
	return node, nil
}
