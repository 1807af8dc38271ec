package arbitrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/circuit"
	"tcr/pkg/platform/sentinel"
)

const defaultClientTimeout = 5 * time.Second

// Client talks to an external arbitrator over HTTP:
//
//	GET  {base}/cost?extra_data=...  -> {"cost": "4"}
//	POST {base}/disputes             -> {"dispute_id": "7"}
//
// Calls go through a circuit breaker. While it is open, calls fail fast with
// sentinel.ErrUnavailable and the registry operation aborts before mutating.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the arbitrator at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid arbitrator base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultClientTimeout},
		breaker: circuit.New("arbitrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type costResponse struct {
	Cost models.Amount `json:"cost"`
}

type disputeRequest struct {
	ItemKey      id.ItemKey    `json:"item_key"`
	Kind         string        `json:"kind"`
	ExtraData    string        `json:"extra_data"`
	MetaEvidence string        `json:"meta_evidence"`
	Evidence     string        `json:"evidence,omitempty"`
	Fee          models.Amount `json:"fee"`
}

type disputeResponse struct {
	DisputeID id.DisputeID `json:"dispute_id,string"`
}

func (c *Client) QuoteCost(ctx context.Context, extraData string) (models.Amount, error) {
	endpoint := c.baseURL + "/cost?extra_data=" + url.QueryEscape(extraData)
	var out costResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return 0, err
	}
	return out.Cost, nil
}

func (c *Client) OpenDispute(ctx context.Context, req ports.DisputeRequest) (id.DisputeID, error) {
	body, err := json.Marshal(disputeRequest{
		ItemKey:      req.Key,
		Kind:         req.Kind.String(),
		ExtraData:    req.ExtraData,
		MetaEvidence: req.MetaEvidence,
		Evidence:     req.Evidence,
		Fee:          req.Fee,
	})
	if err != nil {
		return 0, fmt.Errorf("encode dispute request: %w", err)
	}
	var out disputeResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/disputes", body, &out); err != nil {
		return 0, err
	}
	return out.DisputeID, nil
}

// do performs one call. Transport errors and 5xx responses count against the
// breaker; 4xx responses mean the arbitrator is up and rejected the call.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("arbitrator circuit open: %w", sentinel.ErrUnavailable)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(ctx, err)
		return fmt.Errorf("arbitrator %s %s: %w: %w", method, req.URL.Path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordFailure(ctx, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("arbitrator %s %s: http %d: %w", method, req.URL.Path, resp.StatusCode, sentinel.ErrUnavailable)
	}
	c.recordSuccess(ctx)

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return dErrors.Newf(dErrors.CodeUnavailable, "arbitrator rejected %s %s: http %d: %s",
			method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode arbitrator response: %w", err)
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.WarnContext(ctx, "arbitrator circuit opened", "breaker", c.breaker.Name(), "error", err)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "arbitrator circuit closed", "breaker", c.breaker.Name())
	}
}
