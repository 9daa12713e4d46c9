package handler

import (
	"net/http"

	"bbys_backend/internal/applications/service"
	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/salesforce"
	"bbys_backend/platform/httpkit"
	"bbys_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for applications.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new applications handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterAdminRoutes registers the back-office routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/applications", h.Create)
	rg.GET("/applications/:id", h.Get)
	rg.PATCH("/applications/:id", h.Update)
	rg.POST("/applications/:id/stage", h.ChangeStage)
	rg.PUT("/applications/:id/current-home", h.UpsertCurrentHome)

	rg.GET("/applications/:id/market-valuations", h.ListMarketValuations)
	rg.POST("/applications/:id/market-valuations", h.AddMarketValuation)
	rg.PUT("/applications/:id/market-valuations/:valuationId", h.UpdateMarketValuation)
	rg.DELETE("/applications/:id/market-valuations/:valuationId", h.DeleteMarketValuation)

	rg.GET("/applications/:id/offers", h.ListOffers)
	rg.POST("/applications/:id/offers", h.CreateOffer)
	rg.PATCH("/offers/:id", h.UpdateOffer)

	rg.POST("/pricing", h.CreatePricing)
	rg.GET("/pricing/:id", h.GetPricing)
}

// RegisterSalesforceRoutes registers the CRM push-back endpoints. The CRM
// calls them with an administrative token.
func (h *Handler) RegisterSalesforceRoutes(rg *gin.RouterGroup) {
	rg.POST("/application/salesforce/", h.acceptOne(salesforce.RecordAccount))
	rg.POST("/application/salesforce/bulk/", h.acceptMany(salesforce.RecordAccount))
	rg.POST("/offer/salesforce/bulk/", h.acceptMany(salesforce.RecordOffer))
	rg.POST("/transaction/", h.acceptMany(salesforce.RecordTransaction))
	rg.POST("/old-home/salesforce/bulk/", h.acceptMany(salesforce.RecordOldHome))
	rg.POST("/loan/salesforce/bulk/", h.acceptMany(salesforce.RecordLoan))
}

// RegisterAgentRoutes registers the agent portal routes.
func (h *Handler) RegisterAgentRoutes(rg *gin.RouterGroup) {
	rg.POST("/applications", h.RegisterClient)
	rg.PUT("/applications/:id/archive/", h.archive(true))
	rg.PUT("/applications/:id/unarchive/", h.archive(false))
}

// RegisterUserRoutes registers the customer portal routes.
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/applications/:id", h.Get)
	rg.POST("/applications/:id/disclosures/acknowledge", h.Acknowledge)
	rg.GET("/offer/:id/closing-restricted-dates/", h.ClosingWindow)
	rg.POST("/user/login-event", h.LoginEvent)
}

func actorOf(id *httpkit.Identity) service.Actor {
	return service.Actor{ID: id.UserID(), Email: id.Email(), Admin: id.HasRole(httpkit.RoleAdmin)}
}

// mustActor aborts with 401 when the caller is anonymous.
func mustActor(c *gin.Context) (service.Actor, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return service.Actor{}, false
	}
	return actorOf(identity), true
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes and validates a JSON body.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateApplicationRequest
	if !h.bind(c, &req) {
		return
	}
	if _, ok := mustActor(c); !ok {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), lifecycle.SourceAPI, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.UpdateApplicationRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) ChangeStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.ChangeStageRequest
	if !h.bind(c, &req) {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ChangeStage(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) UpsertCurrentHome(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.CurrentHomeInput
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.UpsertCurrentHome(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) ListMarketValuations(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListMarketValuations(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": result})
}

func (h *Handler) AddMarketValuation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.MarketValuationRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.AddMarketValuation(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) UpdateMarketValuation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	valuationID, ok := parseID(c, "valuationId")
	if !ok {
		return
	}
	var req transport.MarketValuationRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.UpdateMarketValuation(c.Request.Context(), id, valuationID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) DeleteMarketValuation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	valuationID, ok := parseID(c, "valuationId")
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteMarketValuation(c.Request.Context(), id, valuationID)) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListOffers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListOffers(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": result})
}

func (h *Handler) CreateOffer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.OfferRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.CreateOffer(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) UpdateOffer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.OfferRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.UpdateOffer(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) CreatePricing(c *gin.Context) {
	var req transport.PricingRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.CreatePricing(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) GetPricing(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetPricing(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) RegisterClient(c *gin.Context) {
	var req transport.RegisterClientRequest
	if !h.bind(c, &req) {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.RegisterClient(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) archive(archived bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, ok := mustActor(c)
		if !ok {
			return
		}

		result, err := h.svc.SetArchived(c.Request.Context(), actor, id, archived)
		if httpkit.HandleError(c, err) {
			return
		}

		httpkit.OK(c, result)
	}
}

func (h *Handler) Acknowledge(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.AcknowledgeRequest
	if !h.bind(c, &req) {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.Acknowledge(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) ClosingWindow(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ClosingWindow(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) LoginEvent(c *gin.Context) {
	var req transport.LoginEventRequest
	if !h.bind(c, &req) {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.RecordLogin(c.Request.Context(), actor, req)) {
		return
	}

	c.Status(http.StatusNoContent)
}

// acceptOne takes a single record and answers with its result.
func (h *Handler) acceptOne(recordType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		results, err := h.svc.AcceptRecords(c.Request.Context(), recordType, body)
		if httpkit.HandleError(c, err) {
			return
		}
		if len(results) != 1 {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "expected exactly one record")
			return
		}
		if results[0].Status == transport.SyncRejected {
			httpkit.Error(c, http.StatusBadRequest, results[0].Error, results[0])
			return
		}
		httpkit.Accepted(c, results[0])
	}
}

// acceptMany takes a list of records and answers with one result per record.
func (h *Handler) acceptMany(recordType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		results, err := h.svc.AcceptRecords(c.Request.Context(), recordType, body)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.Accepted(c, gin.H{"results": results})
	}
}
