package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tcr/internal/registry/arbitrator"
	"tcr/internal/registry/models"
	"tcr/internal/registry/ruling"
	"tcr/internal/registry/service"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/httputil"
	arbmw "tcr/pkg/platform/middleware/arbitrator"
	authmw "tcr/pkg/platform/middleware/auth"
	"tcr/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// DefaultQueryCount is the page size when the count parameter is absent.
const DefaultQueryCount = 20

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Params() models.RegistryParams
	RequestRegistration(ctx context.Context, in service.RequestInput) (*service.Receipt, error)
	RequestClearing(ctx context.Context, in service.RequestInput) (*service.Receipt, error)
	ChallengeRegistration(ctx context.Context, in service.ChallengeInput) (*service.Receipt, error)
	ChallengeClearing(ctx context.Context, in service.ChallengeInput) (*service.Receipt, error)
	ExecuteRequest(ctx context.Context, key id.ItemKey) (*service.Receipt, error)
	Rule(ctx context.Context, disputeID id.DisputeID, r models.Ruling) (*service.Settlement, error)
	QueryItems(ctx context.Context, in service.QueryInput) (*service.QueryResult, error)
	GetItem(ctx context.Context, key id.ItemKey) (*models.Item, error)
	IsPermitted(ctx context.Context, key id.ItemKey) (bool, error)
	ItemByDispute(ctx context.Context, disputeID id.DisputeID) (*models.Item, error)
	ListPayouts(ctx context.Context, to id.Address) ([]models.Payout, error)
}

// RulingGiver is the centralized arbitrator's operator surface.
type RulingGiver interface {
	GiveRuling(ctx context.Context, disputeID id.DisputeID, r models.Ruling) error
	Pending() []arbitrator.Dispute
}

// SecurityPublisher records rejected arbitrator callbacks.
type SecurityPublisher interface {
	EmitSecurity(ctx context.Context, event audit.SecurityEvent) error
}

// Handler serves the registry API.
type Handler struct {
	registry     Service
	giver        RulingGiver
	security     SecurityPublisher
	jwtValidator authmw.JWTValidator
	tokenHash    string
	logger       *slog.Logger
	timeout      time.Duration
	limiter      func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRulingGiver exposes the centralized arbitrator's ruling endpoints.
func WithRulingGiver(giver RulingGiver) Option {
	return func(h *Handler) {
		h.giver = giver
	}
}

func WithSecurityPublisher(publisher SecurityPublisher) Option {
	return func(h *Handler) {
		h.security = publisher
	}
}

// WithMutationLimit wraps the authenticated mutation routes, after the
// caller is known.
func WithMutationLimit(limiter func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a registry Handler. tokenHash is the bcrypt hash arbitrator
// callbacks must match.
func New(registry Service, jwtValidator authmw.JWTValidator, tokenHash string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry:     registry,
		jwtValidator: jwtValidator,
		tokenHash:    tokenHash,
		logger:       logger,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(h.timeout))

		r.Group(func(r chi.Router) {
			r.Use(authmw.OptionalAuth(h.jwtValidator, h.logger))
			r.Get("/registry", h.handleParams)
			r.Get("/items", h.handleQueryItems)
			r.Get("/items/{key}", h.handleGetItem)
			r.Get("/items/{key}/permitted", h.handleIsPermitted)
			r.Get("/disputes/{id}", h.handleGetDispute)
			r.Get("/payouts", h.handleListPayouts)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
			if h.limiter != nil {
				r.Use(h.limiter)
			}
			r.Post("/items/{key}/registration", h.handleRequest(h.registry.RequestRegistration))
			r.Post("/items/{key}/clearing", h.handleRequest(h.registry.RequestClearing))
			r.Post("/items/{key}/registration/challenge", h.handleChallenge(h.registry.ChallengeRegistration))
			r.Post("/items/{key}/clearing/challenge", h.handleChallenge(h.registry.ChallengeClearing))
			r.Post("/items/{key}/execute", h.handleExecute)
		})

		r.Group(func(r chi.Router) {
			r.Use(arbmw.RequireArbitratorToken(h.tokenHash, h, h.logger))
			r.Post("/arbitrator/rulings", h.handleRuling)
			if h.giver != nil {
				r.Get("/arbitrator/disputes", h.handlePendingDisputes)
				r.Post("/arbitrator/disputes/{id}/ruling", h.handleGiveRuling)
			}
		})
	})
}

type paymentRequest struct {
	Payment  models.Amount `json:"payment"`
	Evidence string        `json:"evidence,omitempty"`
}

type itemResponse struct {
	Item      *models.Item `json:"item"`
	Permitted bool         `json:"permitted"`
}

type permittedResponse struct {
	Key       id.ItemKey `json:"key"`
	Permitted bool       `json:"permitted"`
}

type rulingRequest struct {
	Ruling models.Ruling `json:"ruling"`
}

func (h *Handler) handleParams(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.registry.Params())
}

func (h *Handler) handleRequest(op func(context.Context, service.RequestInput) (*service.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, err := id.ParseItemKey(chi.URLParam(r, "key"))
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		var req paymentRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeError(ctx, w, err)
			return
		}
		receipt, err := op(ctx, service.RequestInput{Key: key, Evidence: req.Evidence, Payment: req.Payment})
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, receipt)
	}
}

func (h *Handler) handleChallenge(op func(context.Context, service.ChallengeInput) (*service.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, err := id.ParseItemKey(chi.URLParam(r, "key"))
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		var req paymentRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeError(ctx, w, err)
			return
		}
		receipt, err := op(ctx, service.ChallengeInput{Key: key, Evidence: req.Evidence, Payment: req.Payment})
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, receipt)
	}
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := id.ParseItemKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	receipt, err := h.registry.ExecuteRequest(ctx, key)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleQueryItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, err := parseQuery(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	result, err := h.registry.QueryItems(ctx, in)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// parseQuery reads cursor, count, filter and sort. A missing filter selects
// every item.
func parseQuery(r *http.Request) (service.QueryInput, error) {
	q := r.URL.Query()
	in := service.QueryInput{Count: DefaultQueryCount}
	var err error
	if v := q.Get("cursor"); v != "" {
		if in.Cursor, err = strconv.Atoi(v); err != nil {
			return in, dErrors.New(dErrors.CodeInvalidInput, "cursor must be an integer")
		}
	}
	if v := q.Get("count"); v != "" {
		if in.Count, err = strconv.Atoi(v); err != nil {
			return in, dErrors.New(dErrors.CodeInvalidInput, "count must be an integer")
		}
	}
	if q.Has("filter") {
		if in.Filter, err = models.ParseQueryFilter(q.Get("filter")); err != nil {
			return in, err
		}
	} else {
		in.Filter = models.QueryFilter{Accepted: true, Rejected: true}
	}
	switch strings.ToLower(q.Get("sort")) {
	case "", "asc":
	case "desc":
		in.Descending = true
	default:
		return in, dErrors.New(dErrors.CodeInvalidInput, "sort must be asc or desc")
	}
	return in, nil
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := id.ParseItemKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	item, err := h.registry.GetItem(ctx, key)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, itemResponse{
		Item:      item,
		Permitted: models.IsPermitted(item, h.registry.Params().Blacklist),
	})
}

func (h *Handler) handleIsPermitted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := id.ParseItemKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	permitted, err := h.registry.IsPermitted(ctx, key)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, permittedResponse{Key: key, Permitted: permitted})
}

func (h *Handler) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	item, err := h.registry.ItemByDispute(ctx, disputeID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, err := id.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	payouts, err := h.registry.ListPayouts(ctx, address)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"payouts": payouts})
}

func (h *Handler) handleRuling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var msg ruling.Message
	if err := httputil.DecodeJSON(r, &msg); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	settlement, err := h.registry.Rule(ctx, msg.DisputeID, msg.Ruling)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settlement)
}

func (h *Handler) handlePendingDisputes(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"disputes": h.giver.Pending()})
}

func (h *Handler) handleGiveRuling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req rulingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.giver.GiveRuling(ctx, disputeID, req.Ruling); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RecordRejectedCallback implements the arbitrator middleware's recorder.
func (h *Handler) RecordRejectedCallback(r *http.Request, reason string) {
	if h.security == nil {
		return
	}
	ctx := r.Context()
	_ = h.security.EmitSecurity(ctx, audit.SecurityEvent{
		Timestamp: requestcontext.Now(ctx),
		Subject:   r.URL.Path,
		Action:    string(audit.EventArbitratorRejected),
		Reason:    reason,
		IP:        requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Severity:  audit.SeverityCritical,
	})
}

// writeError logs server-side failures and writes the mapped response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "registry request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
