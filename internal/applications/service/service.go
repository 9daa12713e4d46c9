// Package service implements the application commands behind the admin,
// agent and customer surfaces. Every command is one lifecycle unit of work
// that ends with a task recompute, so the task checklist and the stage it
// drives never lag behind a write.
package service

import (
	"context"
	"strings"
	"time"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/closingdates"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/store"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller of a command.
type Actor struct {
	ID    uuid.UUID
	Email string
	Admin bool
}

// Service carries the application commands.
type Service struct {
	machine    *lifecycle.Machine
	engine     *tasks.Engine
	restrictor *closingdates.Restrictor
	sync       salesforce.SyncQueue
	log        *logger.Logger
}

// New creates the application service.
func New(machine *lifecycle.Machine, engine *tasks.Engine, restrictor *closingdates.Restrictor, sync salesforce.SyncQueue, log *logger.Logger) *Service {
	return &Service{machine: machine, engine: engine, restrictor: restrictor, sync: sync, log: log}
}

// transact runs fn and recomputes the tasks of the application it touched.
// It returns the id of that application.
func (s *Service) transact(ctx context.Context, source string, fn func(tx *lifecycle.Tx) (uuid.UUID, error)) (uuid.UUID, error) {
	var appID uuid.UUID
	err := s.machine.Transact(ctx, source, func(tx *lifecycle.Tx) error {
		id, err := fn(tx)
		if err != nil {
			return err
		}
		appID = id
		_, err = s.engine.RecomputeTx(ctx, tx, id)
		return err
	})
	return appID, err
}

func (s *Service) view(ctx context.Context, id uuid.UUID) (transport.ApplicationResponse, error) {
	g, err := store.LoadGraph(ctx, s.machine.Store(), id)
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return toApplicationResponse(g), nil
}

// =============================================================================
// Create / intake
// =============================================================================

// Create stores a new application, or updates the one already created from
// the same questionnaire response. The customer is reused by email.
func (s *Service) Create(ctx context.Context, source string, req transport.CreateApplicationRequest) (transport.ApplicationResponse, error) {
	if err := checkPriceRange(req.MinPrice, req.MaxPrice); err != nil {
		return transport.ApplicationResponse{}, err
	}

	id, err := s.transact(ctx, source, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		customer, err := s.upsertCustomer(ctx, tx, req.Customer)
		if err != nil {
			return uuid.Nil, err
		}

		app := domain.Application{
			CustomerID:          customer.ID,
			Stage:               domain.StageIncomplete,
			HWMortgageCandidate: domain.HWCandidateNotDetermined,
		}
		existing := false
		if rid := strings.TrimSpace(domain.Deref(req.QuestionnaireResponseID)); rid != "" {
			found, err := tx.FindApplicationByQuestionnaireID(ctx, rid)
			switch {
			case err == nil:
				if found, err = tx.LockApplication(ctx, found.ID); err != nil {
					return uuid.Nil, err
				}
				app, existing = found, true
			case !apperr.Is(err, apperr.KindNotFound):
				return uuid.Nil, err
			}
			app.QuestionnaireResponseID = &rid
		}

		applyCreate(&app, req)
		if req.CurrentHome != nil {
			if err := s.writeCurrentHome(ctx, tx, &app, *req.CurrentHome); err != nil {
				return uuid.Nil, err
			}
		}

		if existing {
			_, err = tx.UpdateApplication(ctx, app)
			return app.ID, err
		}
		stored, err := tx.InsertApplication(ctx, app)
		return stored.ID, err
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

func applyCreate(app *domain.Application, req transport.CreateApplicationRequest) {
	// A buy-sell application is never downgraded by a later submission.
	if app.ProductOffering != domain.ProductBuySell {
		app.ProductOffering = req.ProductOffering
	}
	setDecimal(&app.MinPrice, req.MinPrice)
	setDecimal(&app.MaxPrice, req.MaxPrice)
	setString(&app.MoveIn, req.MoveIn)
	if req.HWMortgageCandidate != "" {
		app.HWMortgageCandidate = req.HWMortgageCandidate
	}
	setString(&app.ApexPartnerSlug, req.ApexPartnerSlug)
	setEmail(&app.HomewardOwnerEmail, req.HomewardOwnerEmail)
	setString(&app.PropertyState, req.PropertyState)
}

func (s *Service) upsertCustomer(ctx context.Context, tx *lifecycle.Tx, in transport.CustomerInput) (domain.Customer, error) {
	customer, err := tx.FindCustomerByEmail(ctx, in.Email)
	found := err == nil
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return customer, err
	}

	customer.Email = domain.NormalizeEmail(in.Email)
	customer.FirstName = strings.TrimSpace(in.FirstName)
	customer.LastName = strings.TrimSpace(in.LastName)
	if in.Phone != nil {
		customer.Phone = phone.Normalize(*in.Phone)
	}
	setEmail(&customer.CoBorrowerEmail, in.CoBorrowerEmail)

	if found {
		return tx.UpdateCustomer(ctx, customer)
	}
	return tx.InsertCustomer(ctx, customer)
}

// =============================================================================
// Read
// =============================================================================

// Get returns an application the actor may see.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (transport.ApplicationResponse, error) {
	g, err := store.LoadGraph(ctx, s.machine.Store(), id)
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	if err := authorizeOwner(actor, g.Customer); err != nil {
		return transport.ApplicationResponse{}, err
	}
	return toApplicationResponse(g), nil
}

func authorizeOwner(actor Actor, customer domain.Customer) error {
	if actor.Admin || domain.NormalizeEmail(actor.Email) == customer.Email {
		return nil
	}
	return apperr.Forbidden("application belongs to another customer")
}

func authorizeAgent(actor Actor, g *domain.ApplicationGraph) error {
	if actor.Admin {
		return nil
	}
	me := domain.NormalizeEmail(actor.Email)
	for _, agent := range []*domain.Agent{g.BuyingAgent, g.ListingAgent} {
		if agent != nil && agent.Email != nil && domain.NormalizeEmail(*agent.Email) == me {
			return nil
		}
	}
	return apperr.Forbidden("application is not registered to this agent")
}

// =============================================================================
// Update
// =============================================================================

// Update patches an application and its owned children in one unit of work.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateApplicationRequest) (transport.ApplicationResponse, error) {
	if req.MortgageStatus != nil && !req.MortgageStatus.Valid() {
		return transport.ApplicationResponse{}, apperr.FieldError("mortgage_status", "unknown mortgage status")
	}

	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}

		setString(&app.LeadStatus, req.LeadStatus)
		if req.MortgageStatus != nil {
			app.MortgageStatus = req.MortgageStatus
		}
		if req.ProductOffering != nil {
			app.ProductOffering = *req.ProductOffering
		}
		setDecimal(&app.MinPrice, req.MinPrice)
		setDecimal(&app.MaxPrice, req.MaxPrice)
		if err := checkPriceRange(app.MinPrice, app.MaxPrice); err != nil {
			return uuid.Nil, err
		}
		setString(&app.MoveIn, req.MoveIn)
		if req.HWMortgageCandidate != nil {
			app.HWMortgageCandidate = *req.HWMortgageCandidate
		}
		setEmail(&app.HomewardOwnerEmail, req.HomewardOwnerEmail)
		setString(&app.BlendStatus, req.BlendStatus)
		setString(&app.PropertyState, req.PropertyState)

		if err := s.patchChildren(ctx, tx, &app, req); err != nil {
			return uuid.Nil, err
		}
		_, err = tx.UpdateApplication(ctx, app)
		return app.ID, err
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

func checkPriceRange(min, max decimal.NullDecimal) error {
	if min.Valid && max.Valid && max.Decimal.LessThan(min.Decimal) {
		return apperr.FieldError("max_price", "max price must be greater than or equal to min price")
	}
	return nil
}

// =============================================================================
// Stage
// =============================================================================

// ChangeStage moves an application to another stage on behalf of a person.
// A stage change needs a comment, which is kept as a note.
func (s *Service) ChangeStage(ctx context.Context, actor Actor, id uuid.UUID, req transport.ChangeStageRequest) (transport.ApplicationResponse, error) {
	if !req.Stage.Valid() {
		return transport.ApplicationResponse{}, apperr.FieldError("stage", "unknown stage")
	}
	comment := strings.TrimSpace(req.Comment)

	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if app.Stage == req.Stage {
			return app.ID, nil
		}
		if comment == "" {
			return uuid.Nil, apperr.FieldError("comment", "a comment is required to change the stage")
		}
		app.Stage = req.Stage
		if _, err := tx.UpdateApplication(ctx, app); err != nil {
			return uuid.Nil, err
		}
		note := domain.Note{ApplicationID: app.ID, Body: comment}
		if actor.ID != uuid.Nil {
			note.AuthorID = &actor.ID
		}
		_, err = tx.InsertNote(ctx, note)
		return app.ID, err
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

// =============================================================================
// Archive
// =============================================================================

// SetArchived adds or removes the Archived filter marker.
func (s *Service) SetArchived(ctx context.Context, actor Actor, id uuid.UUID, archived bool) (transport.ApplicationResponse, error) {
	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		g, err := store.LoadGraphFor(ctx, tx, app)
		if err != nil {
			return uuid.Nil, err
		}
		if err := authorizeAgent(actor, g); err != nil {
			return uuid.Nil, err
		}
		if app.IsArchived() == archived {
			return app.ID, nil
		}
		app.FilterStatus = toggleFilter(app.FilterStatus, domain.FilterArchived, archived)
		_, err = tx.UpdateApplication(ctx, app)
		return app.ID, err
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

func toggleFilter(filters []string, marker string, on bool) []string {
	out := make([]string, 0, len(filters)+1)
	for _, f := range filters {
		if f != marker {
			out = append(out, f)
		}
	}
	if on {
		out = append(out, marker)
	}
	return out
}

// =============================================================================
// Customer actions
// =============================================================================

// Acknowledge records that the customer accepted a document.
func (s *Service) Acknowledge(ctx context.Context, actor Actor, id uuid.UUID, req transport.AcknowledgeRequest) (transport.ApplicationResponse, error) {
	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		customer, err := tx.GetCustomer(ctx, app.CustomerID)
		if err != nil {
			return uuid.Nil, err
		}
		if err := authorizeOwner(actor, customer); err != nil {
			return uuid.Nil, err
		}

		now := s.machine.Now()
		switch req.Document {
		case "disclosures":
			if app.DisclosuresAcknowledgedAt != nil {
				return app.ID, nil
			}
			app.DisclosuresAcknowledgedAt = &now
		case "service_agreement":
			if app.ServiceAgreementAcknowledgedAt != nil {
				return app.ID, nil
			}
			app.ServiceAgreementAcknowledgedAt = &now
		default:
			return uuid.Nil, apperr.FieldError("document", "unknown document")
		}
		_, err = tx.UpdateApplication(ctx, app)
		return app.ID, err
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

// RecordLogin stamps the customer's last login and publishes it for the CRM.
// The first login also marks the account as created.
func (s *Service) RecordLogin(ctx context.Context, actor Actor, req transport.LoginEventRequest) error {
	return s.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		app, err := tx.LockApplication(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, app.CustomerID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(actor, customer); err != nil {
			return err
		}

		now := s.machine.Now()
		customer.LastLoginAt = &now
		if customer.AccountCreatedAt == nil {
			customer.AccountCreatedAt = &now
		}
		if _, err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		return tx.Emit(ctx, events.UserLoggedIn{
			BaseEvent:     events.BaseEventAt(now),
			ApplicationID: app.ID,
			CustomerID:    customer.ID,
			At:            now,
		})
	})
}

// RegisterClient lets an agent register a buyer. The agent becomes the
// buying agent of the new application.
func (s *Service) RegisterClient(ctx context.Context, actor Actor, req transport.RegisterClientRequest) (transport.ApplicationResponse, error) {
	agentEmail := domain.NormalizeEmail(actor.Email)
	if agentEmail == "" {
		return transport.ApplicationResponse{}, apperr.Unauthorized("agent email missing from token")
	}

	id, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		customer, err := s.upsertCustomer(ctx, tx, req.Customer)
		if err != nil {
			return uuid.Nil, err
		}
		agent, err := s.upsertAgentByEmail(ctx, tx, agentEmail, req)
		if err != nil {
			return uuid.Nil, err
		}

		app, err := tx.InsertApplication(ctx, domain.Application{
			CustomerID:          customer.ID,
			Stage:               domain.StageIncomplete,
			ProductOffering:     req.ProductOffering,
			HWMortgageCandidate: domain.HWCandidateNotDetermined,
			ApexPartnerSlug:     trimmed(req.ApexPartnerSlug),
			RegisteredClient:    true,
			BuyingAgentID:       &agent.ID,
		})
		if err != nil {
			return uuid.Nil, err
		}
		return app.ID, tx.Emit(ctx, events.RegisteredClientCreated{
			BaseEvent:     events.BaseEventAt(s.machine.Now()),
			ApplicationID: app.ID,
			AgentID:       agent.ID,
		})
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, id)
}

func (s *Service) upsertAgentByEmail(ctx context.Context, tx *lifecycle.Tx, email string, req transport.RegisterClientRequest) (domain.Agent, error) {
	agent, err := tx.FindAgentByEmail(ctx, email)
	found := err == nil
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return agent, err
	}
	agent.Name = strings.TrimSpace(req.AgentName)
	agent.Email = &email
	if req.AgentPhone != nil {
		agent.Phone = phone.Normalize(*req.AgentPhone)
	}
	setString(&agent.Company, req.AgentCompany)
	if found {
		return tx.UpdateAgent(ctx, agent)
	}
	return tx.InsertAgent(ctx, agent)
}

// =============================================================================
// Field helpers
// =============================================================================

func setString(dst **string, src *string) {
	if src != nil {
		*dst = trimmed(src)
	}
}

// setEmail stores a case-folded email. An empty value clears the field.
func setEmail(dst **string, src *string) {
	if src == nil {
		return
	}
	if v := domain.NormalizeEmail(*src); v != "" {
		*dst = &v
		return
	}
	*dst = nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func setDecimal(dst *decimal.NullDecimal, src decimal.NullDecimal) {
	if src.Valid {
		*dst = src
	}
}

func setDate(dst **domain.Date, src *domain.Date) {
	if src != nil {
		*dst = domain.DatePtr(*src)
	}
}

func setTime(dst **time.Time, src *time.Time) {
	if src != nil {
		t := src.UTC()
		*dst = &t
	}
}
