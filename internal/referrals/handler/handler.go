package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/internal/referrals/transport"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/httpkit"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/retry"
	"broker_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgAlreadyHandled   = "this referral was already handled"
	msgNoBrokerProfile  = "no broker profile for this account"
	msgNotYourReferral  = "referral is not assigned to you"

	codeAlreadyHandled = "already_handled"
)

// DefaultRetryPolicy retries store outages a couple of times before giving up.
var DefaultRetryPolicy = retry.Policy{
	Attempts:  3,
	BaseDelay: 50 * time.Millisecond,
	Retryable: apperr.IsTransient,
}

// Handler handles HTTP requests for referrals.
type Handler struct {
	svc     *service.Service
	sweeper Sweeper
	val     *validator.Validator
	log     *logger.Logger
	retry   retry.Policy
}

// Sweeper runs an expiry pass under the scheduler's run guards.
type Sweeper interface {
	SweepNow(ctx context.Context) (service.Report, error)
}

// New creates a new referrals handler. The admin sweep route runs through
// sweeper so it never overlaps a scheduled pass.
func New(svc *service.Service, sweeper Sweeper, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, sweeper: sweeper, val: val, log: log, retry: DefaultRetryPolicy}
}

// WithRetryPolicy overrides how transient store failures are retried.
func (h *Handler) WithRetryPolicy(p retry.Policy) *Handler {
	h.retry = p
	return h
}

// RegisterAdminRoutes registers routes for operators.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/sweep", h.Sweep)
	rg.POST("/:id/assign", h.Assign)
}

// RegisterRoutes registers routes shared by admins and brokers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/events", h.ListEvents)
}

// RegisterBrokerRoutes registers the broker inbox routes.
func (h *Handler) RegisterBrokerRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListMine)
	rg.POST("/:id/accept", h.Accept)
	rg.POST("/:id/decline", h.Decline)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	// Not retried: a lost response would create a duplicate lead.
	result, err := h.svc.CreateLead(c.Request.Context(), service.CreateLeadParams{
		CustomerRef: req.CustomerRef,
		Territory:   req.Territory,
		PropertyRef: req.PropertyRef,
		AutoAssign:  req.AutoAssign,
	}, domain.AdminActor(identity.UserID()))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, mapResult(result))
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	filter := listFilter(req)
	if req.BrokerID != "" {
		brokerID, err := uuid.Parse(req.BrokerID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		filter.BrokerID = &brokerID
	}

	var leads []domain.Lead
	err := h.do(c, "list referrals", func(ctx context.Context) error {
		var err error
		leads, err = h.svc.ListLeads(ctx, filter)
		return err
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, mapLeads(leads))
}

func (h *Handler) Assign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var result service.Result
	err = h.do(c, "assign referral", func(ctx context.Context) error {
		var err error
		result, err = h.svc.Assign(ctx, id, req.BrokerID, domain.AdminActor(identity.UserID()))
		return err
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.writeResult(c, result)
}

func (h *Handler) Sweep(c *gin.Context) {
	report, err := h.sweeper.SweepNow(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	lead, ok := h.loadVisibleLead(c, identity, id)
	if !ok {
		return
	}
	httpkit.OK(c, mapLead(lead))
}

func (h *Handler) ListEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if _, ok := h.loadVisibleLead(c, identity, id); !ok {
		return
	}

	var evts []domain.Event
	err = h.do(c, "list referral events", func(ctx context.Context) error {
		var err error
		evts, err = h.svc.ListEvents(ctx, id)
		return err
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, mapEvents(evts))
}

func (h *Handler) ListMine(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	brokerID, ok := h.resolveBroker(c, identity)
	if !ok {
		return
	}

	filter := listFilter(req)
	filter.BrokerID = &brokerID

	var leads []domain.Lead
	err := h.do(c, "list broker referrals", func(ctx context.Context) error {
		var err error
		leads, err = h.svc.ListLeads(ctx, filter)
		return err
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, mapLeads(leads))
}

func (h *Handler) Accept(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	brokerID, ok := h.resolveBroker(c, identity)
	if !ok {
		return
	}

	var result service.Result
	err = h.do(c, "accept referral", func(ctx context.Context) error {
		var err error
		result, err = h.svc.Accept(ctx, id, brokerID, req.Notes)
		return err
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.writeResult(c, result)
}

func (h *Handler) Decline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.DeclineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	brokerID, ok := h.resolveBroker(c, identity)
	if !ok {
		return
	}

	// Not retried once the decline may have committed; the sweep reassigns stranded leads.
	result, err := h.svc.Decline(c.Request.Context(), id, brokerID, domain.DeclineReason(req.Reason), req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	h.writeResult(c, result)
}

// writeResult renders a lifecycle Result. A repeated accept by the same
// broker is a success; any other invalid state means someone got there first.
func (h *Handler) writeResult(c *gin.Context, result service.Result) {
	if result.Outcome == service.OutcomeInvalidState && result.Reason != service.ReasonAlreadyAccepted {
		httpkit.HandleError(c, apperr.Conflict(msgAlreadyHandled).
			WithCode(codeAlreadyHandled).
			WithDetails(gin.H{"reason": result.Reason, "status": string(result.Lead.Status)}))
		return
	}
	httpkit.OK(c, mapResult(result))
}

func (h *Handler) resolveBroker(c *gin.Context, identity *httpkit.Identity) (uuid.UUID, bool) {
	if !identity.IsBroker() {
		httpkit.HandleError(c, apperr.Forbidden(msgNoBrokerProfile))
		return uuid.Nil, false
	}

	var broker domain.Broker
	err := h.do(c, "resolve broker", func(ctx context.Context) error {
		var err error
		broker, err = h.svc.BrokerForUser(ctx, identity.UserID())
		return err
	})
	if apperr.Is(err, apperr.KindNotFound) {
		httpkit.HandleError(c, apperr.Forbidden(msgNoBrokerProfile))
		return uuid.Nil, false
	}
	if httpkit.HandleError(c, err) {
		return uuid.Nil, false
	}
	return broker.ID, true
}

// loadVisibleLead returns the lead when identity is an admin or the broker holding it.
func (h *Handler) loadVisibleLead(c *gin.Context, identity *httpkit.Identity, id uuid.UUID) (domain.Lead, bool) {
	var lead domain.Lead
	err := h.do(c, "get referral", func(ctx context.Context) error {
		var err error
		lead, err = h.svc.GetLead(ctx, id)
		return err
	})
	if httpkit.HandleError(c, err) {
		return domain.Lead{}, false
	}
	if identity.IsAdmin() {
		return lead, true
	}

	brokerID, ok := h.resolveBroker(c, identity)
	if !ok {
		return domain.Lead{}, false
	}
	if !lead.IsAssignedTo(brokerID) {
		httpkit.HandleError(c, apperr.Forbidden(msgNotYourReferral))
		return domain.Lead{}, false
	}
	return lead, true
}

func (h *Handler) do(c *gin.Context, name string, fn func(ctx context.Context) error) error {
	return retry.Do(c.Request.Context(), h.log.WithContext(c.Request.Context()), name, h.retry, fn)
}

func listFilter(req transport.ListLeadsRequest) ports.LeadFilter {
	filter := ports.LeadFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status := domain.Status(req.Status)
		filter.Status = &status
	}
	return filter
}
