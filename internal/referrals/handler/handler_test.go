package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/referrals/audit"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/memstore"
	"broker_portal_backend/internal/referrals/selector"
	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/internal/referrals/transport"
	"broker_portal_backend/internal/scheduler"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/httpkit"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/retry"
	"broker_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerTestUser = "X-Test-User"
	headerTestRole = "X-Test-Role"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine  *gin.Engine
	store   *memstore.Store
	dir     *memstore.Directory
	bus     *events.InMemoryBus
	sweeper *scheduler.ReferralExpirySweeper
}

type brokerLogin struct {
	brokerID uuid.UUID
	userID   uuid.UUID
}

// fakeAuth stands in for JWT validation.
func fakeAuth(c *gin.Context) {
	raw := c.GetHeader(headerTestUser)
	if raw == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Set(httpkit.ContextUserIDKey, uuid.MustParse(raw))
	c.Set(httpkit.ContextRolesKey, []string{c.GetHeader(headerTestRole)})
	c.Next()
}

func newTestServer(t *testing.T, logins ...*brokerLogin) *testServer {
	t.Helper()
	log := logger.Discard()
	ts := &testServer{
		store: memstore.NewStore(),
		dir:   memstore.NewDirectory(),
		bus:   events.NewInMemoryBus(log),
	}
	for _, login := range logins {
		login.brokerID = uuid.New()
		login.userID = uuid.New()
		ts.dir.Add(domain.Broker{ID: login.brokerID, DisplayName: "Broker", Active: true, Territories: []string{"NY"}})
		ts.dir.LinkUser(login.userID, login.brokerID)
	}

	eventLog := memstore.NewEventLog()
	recorder := audit.NewRecorder(eventLog, log).WithRetryDelay(time.Millisecond)
	svc := service.New(ts.store, ts.dir, selector.NewFirstMatch(ts.dir), eventLog, recorder, ts.bus,
		service.Settings{TTL: 48 * time.Hour, SweepBatchSize: 10, SweepConcurrency: 2}, log)
	ts.sweeper = scheduler.NewReferralExpirySweeper(svc, nil, time.Minute, log)
	h := New(svc, ts.sweeper, validator.New(), log).WithRetryPolicy(retry.Policy{
		Attempts:  2,
		BaseDelay: time.Millisecond,
		Retryable: apperr.IsTransient,
	})

	engine := gin.New()
	v1 := engine.Group("/api/v1", fakeAuth)
	h.RegisterAdminRoutes(v1.Group("/admin/referrals", httpkit.RequireRole(httpkit.RoleAdmin)))
	h.RegisterRoutes(v1.Group("/referrals"))
	h.RegisterBrokerRoutes(v1.Group("/broker/referrals", httpkit.RequireRole(httpkit.RoleBroker)))
	ts.engine = engine

	t.Cleanup(ts.bus.Wait)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerTestUser, userID.String())
	req.Header.Set(headerTestRole, role)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (ts *testServer) createLead(t *testing.T, autoAssign bool) transport.LifecycleResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/admin/referrals", uuid.New(), httpkit.RoleAdmin, transport.CreateLeadRequest{
		CustomerRef: uuid.New(),
		Territory:   "NY",
		AutoAssign:  autoAssign,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create lead: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[transport.LifecycleResponse](t, rec)
}

func TestCreateWithAutoAssignRefersFirstBroker(t *testing.T) {
	b1, b2 := &brokerLogin{}, &brokerLogin{}
	ts := newTestServer(t, b1, b2)

	created := ts.createLead(t, true)
	if created.Reassignment == nil {
		t.Fatal("expected an assignment result")
	}
	lead := created.Reassignment.Lead
	if lead.Status != string(domain.StatusReferred) {
		t.Fatalf("expected referred, got %s", lead.Status)
	}
	if lead.AssignedBrokerID == nil || *lead.AssignedBrokerID != b1.brokerID {
		t.Fatalf("expected first broker in directory order, got %v", lead.AssignedBrokerID)
	}
	if created.Lead.Status != string(domain.StatusReferred) {
		t.Fatalf("expected top-level lead to be referred, got %s", created.Lead.Status)
	}
}

func TestAcceptIsIdempotentForTheSameBroker(t *testing.T) {
	b1 := &brokerLogin{}
	ts := newTestServer(t, b1)
	leadID := ts.createLead(t, true).Lead.ID
	path := "/api/v1/broker/referrals/" + leadID.String() + "/accept"

	first := ts.do(t, http.MethodPost, path, b1.userID, httpkit.RoleBroker, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first accept: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	firstBody := decode[transport.LifecycleResponse](t, first)
	if firstBody.Consultation == nil {
		t.Fatal("expected a consultation on accept")
	}

	second := ts.do(t, http.MethodPost, path, b1.userID, httpkit.RoleBroker, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("repeated accept: expected 200, got %d: %s", second.Code, second.Body.String())
	}
	secondBody := decode[transport.LifecycleResponse](t, second)
	if secondBody.Consultation == nil || secondBody.Consultation.ID != firstBody.Consultation.ID {
		t.Fatal("expected repeated accept to return the same consultation")
	}
	if ts.store.ConsultationCount() != 1 {
		t.Fatalf("expected one consultation, got %d", ts.store.ConsultationCount())
	}
}

func TestAcceptByOtherBrokerIsAlreadyHandled(t *testing.T) {
	b1, b2 := &brokerLogin{}, &brokerLogin{}
	ts := newTestServer(t, b1, b2)
	leadID := ts.createLead(t, true).Lead.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/broker/referrals/"+leadID.String()+"/accept", b2.userID, httpkit.RoleBroker, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[httpkit.ErrorResponse](t, rec)
	if body.Code != codeAlreadyHandled || body.Error != msgAlreadyHandled {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestDeclineByLastBrokerNeedsManualAssignment(t *testing.T) {
	b1 := &brokerLogin{}
	ts := newTestServer(t, b1)
	leadID := ts.createLead(t, true).Lead.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/broker/referrals/"+leadID.String()+"/decline", b1.userID, httpkit.RoleBroker,
		transport.DeclineRequest{Reason: string(domain.DeclineAtCapacity)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[transport.LifecycleResponse](t, rec)
	if !body.NeedsManualAssignment {
		t.Fatal("expected needsManualAssignment when no broker remains")
	}
	if body.Reassignment == nil || body.Reassignment.Lead.Status != string(domain.StatusPendingReassignment) {
		t.Fatalf("expected lead parked in pending_reassignment, got %+v", body.Reassignment)
	}
}

func TestDeclineRejectsUnknownReason(t *testing.T) {
	b1 := &brokerLogin{}
	ts := newTestServer(t, b1)
	leadID := ts.createLead(t, true).Lead.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/broker/referrals/"+leadID.String()+"/decline", b1.userID, httpkit.RoleBroker,
		map[string]string{"reason": "too_busy"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLoginWithoutBrokerProfileIsForbidden(t *testing.T) {
	ts := newTestServer(t, &brokerLogin{})
	leadID := ts.createLead(t, true).Lead.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/broker/referrals/"+leadID.String()+"/accept", uuid.New(), httpkit.RoleBroker, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetLeadVisibility(t *testing.T) {
	b1, b2 := &brokerLogin{}, &brokerLogin{}
	ts := newTestServer(t, b1, b2)
	leadID := ts.createLead(t, true).Lead.ID
	path := "/api/v1/referrals/" + leadID.String()

	if rec := ts.do(t, http.MethodGet, path, b1.userID, httpkit.RoleBroker, nil); rec.Code != http.StatusOK {
		t.Fatalf("assigned broker: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path, b2.userID, httpkit.RoleBroker, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other broker: expected 403, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path, uuid.New(), httpkit.RoleAdmin, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path, b1.userID, "viewer", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("linked user without broker role: expected 403, got %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, path+"/events", uuid.New(), httpkit.RoleAdmin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", rec.Code)
	}
	evts := decode[transport.EventListResponse](t, rec)
	if len(evts.Items) != 2 || evts.Items[0].Type != string(domain.EventCreated) || evts.Items[1].Type != string(domain.EventAssigned) {
		t.Fatalf("expected created then assigned, got %+v", evts.Items)
	}
}

func TestBrokerInboxListsOnlyOwnReferrals(t *testing.T) {
	b1, b2 := &brokerLogin{}, &brokerLogin{}
	ts := newTestServer(t, b1, b2)
	ts.createLead(t, true)
	ts.createLead(t, true)

	rec := ts.do(t, http.MethodGet, "/api/v1/broker/referrals?status=referred", b1.userID, httpkit.RoleBroker, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[transport.LeadListResponse](t, rec); len(got.Items) != 2 {
		t.Fatalf("expected both leads in B1 inbox, got %d", len(got.Items))
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/broker/referrals", b2.userID, httpkit.RoleBroker, nil)
	if got := decode[transport.LeadListResponse](t, rec); len(got.Items) != 0 {
		t.Fatalf("expected empty B2 inbox, got %d", len(got.Items))
	}
}

func TestExplicitAssignAndSweepRoutes(t *testing.T) {
	b1, b2 := &brokerLogin{}, &brokerLogin{}
	ts := newTestServer(t, b1, b2)
	leadID := ts.createLead(t, false).Lead.ID
	admin := uuid.New()

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/referrals/"+leadID.String()+"/assign", admin, httpkit.RoleAdmin,
		transport.AssignRequest{BrokerID: &b2.brokerID})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[transport.LifecycleResponse](t, rec); got.Lead.AssignedBrokerID == nil || *got.Lead.AssignedBrokerID != b2.brokerID {
		t.Fatalf("expected explicit broker, got %+v", got.Lead.AssignedBrokerID)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/referrals/sweep", admin, httpkit.RoleAdmin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d", rec.Code)
	}
	if got := decode[service.Report](t, rec); got.ExpiredCount != 0 {
		t.Fatalf("expected nothing expired, got %+v", got)
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/admin/referrals/sweep", b1.userID, httpkit.RoleBroker, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("broker sweep: expected 403, got %d", rec.Code)
	}
}

// leaseHeldElsewhere is a lock another replica already owns.
type leaseHeldElsewhere struct{}

func (leaseHeldElsewhere) TryAcquire(context.Context) (bool, error) { return false, nil }
func (leaseHeldElsewhere) Release(context.Context) error { return nil }

func TestSweepConflictsWithScheduledPass(t *testing.T) {
	ts := newTestServer(t, &brokerLogin{})
	ts.sweeper.SetLock(leaseHeldElsewhere{})

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/referrals/sweep", uuid.New(), httpkit.RoleAdmin, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while another pass holds the lease, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[httpkit.ErrorResponse](t, rec); got.Code != "sweep_in_progress" {
		t.Fatalf("expected sweep_in_progress code, got %q", got.Code)
	}
}

func TestStoreOutageSurfacesAsUnavailable(t *testing.T) {
	b1 := &brokerLogin{}
	ts := newTestServer(t, b1)
	leadID := ts.createLead(t, true).Lead.ID
	ts.store.Err = apperr.Unavailable("referral store unavailable", errors.New("connection reset"))

	rec := ts.do(t, http.MethodPost, "/api/v1/broker/referrals/"+leadID.String()+"/accept", b1.userID, httpkit.RoleBroker, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}
