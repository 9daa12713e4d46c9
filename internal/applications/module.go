// Package applications provides the application bounded context module.
package applications

import (
	"bbys_backend/internal/applications/handler"
	"bbys_backend/internal/applications/service"
	"bbys_backend/internal/closingdates"
	apphttp "bbys_backend/internal/http"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/httpkit"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/validator"
)

// Module is the applications bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the applications module with all its dependencies.
func NewModule(
	machine *lifecycle.Machine,
	engine *tasks.Engine,
	sync salesforce.SyncQueue,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	restrictor := closingdates.New(machine.Store())
	svc := service.New(machine, engine, restrictor, sync, log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "applications"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts application routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterAdminRoutes(ctx.Admin)
	m.handler.RegisterAgentRoutes(ctx.Agent)
	m.handler.RegisterUserRoutes(ctx.Protected)

	crm := ctx.Protected.Group("", httpkit.RequireRole(httpkit.RoleAdmin))
	m.handler.RegisterSalesforceRoutes(crm)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
