// Package brokers provides the broker directory bounded context module.
package brokers

import (
	"broker_portal_backend/internal/brokers/handler"
	"broker_portal_backend/internal/brokers/repository"
	"broker_portal_backend/internal/brokers/service"
	apphttp "broker_portal_backend/internal/http"
	"broker_portal_backend/platform/httpkit"
	"broker_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the brokers bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the brokers module with all its dependencies.
func NewModule(pool *pgxpool.Pool, phoneRegion string, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, phoneRegion)
	return &Module{handler: handler.New(svc, val), service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "brokers"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the directory store for the referral selector adapter.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts broker routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/brokers"))

	self := ctx.Protected.Group("/broker")
	self.Use(httpkit.RequireRole(httpkit.RoleBroker))
	m.handler.RegisterSelfRoutes(self)
}

var _ apphttp.Module = (*Module)(nil)
