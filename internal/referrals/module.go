// Package referrals provides the referral assignment and lifecycle bounded context module.
package referrals

import (
	"broker_portal_backend/internal/events"
	apphttp "broker_portal_backend/internal/http"
	"broker_portal_backend/internal/referrals/audit"
	"broker_portal_backend/internal/referrals/handler"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/internal/referrals/repository"
	"broker_portal_backend/internal/referrals/selector"
	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/internal/scheduler"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/httpkit"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the referrals bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	service  *service.Service
	sweeper  *scheduler.ReferralExpirySweeper
	recorder *audit.Recorder
}

// NewService builds the lifecycle service on Postgres. Processes without an
// HTTP surface, such as the scheduler, use it directly.
func NewService(
	pool *pgxpool.Pool,
	directory ports.BrokerDirectory,
	eventBus events.Bus,
	cfg config.ReferralConfig,
	log *logger.Logger,
) (*service.Service, *audit.Recorder) {
	repo := repository.New(pool)
	recorder := audit.NewRecorder(repo, log)
	svc := service.New(repo, directory, selector.NewFirstMatch(directory), repo, recorder, eventBus, service.SettingsFrom(cfg), log)
	return svc, recorder
}

// NewModule creates and initializes the referrals module with all its dependencies.
func NewModule(
	pool *pgxpool.Pool,
	directory ports.BrokerDirectory,
	eventBus events.Bus,
	cfg config.ReferralConfig,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	svc, recorder := NewService(pool, directory, eventBus, cfg, log)
	sweeper := scheduler.NewReferralExpirySweeper(svc, nil, cfg.GetReferralSweepInterval(), log)
	return &Module{
		handler:  handler.New(svc, sweeper, val, log),
		service:  svc,
		sweeper:  sweeper,
		recorder: recorder,
	}
}

// SetSweepLock shares the scheduler's Redis lease with the admin sweep route.
func (m *Module) SetSweepLock(lock scheduler.Locker) {
	m.sweeper.SetLock(lock)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "referrals"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// AuditFailures reports how many activity log writes were dropped.
func (m *Module) AuditFailures() int64 {
	return m.recorder.Failures()
}

// RegisterRoutes mounts referral routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/referrals"))
	m.handler.RegisterRoutes(ctx.Protected.Group("/referrals"))

	inbox := ctx.Protected.Group("/broker/referrals")
	inbox.Use(httpkit.RequireRole(httpkit.RoleBroker))
	m.handler.RegisterBrokerRoutes(inbox)
}

var _ apphttp.Module = (*Module)(nil)
