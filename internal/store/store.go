// Package store defines the Entity Store contracts. Reads go through Queries;
// every write happens inside WithTx on a Tx, which also appends outbox records
// so post-commit side effects share the transaction of the mutation.
package store

import (
	"context"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"

	"github.com/google/uuid"
)

// ApplicationFilter selects application ids. Zero fields do not filter.
type ApplicationFilter struct {
	Stages           []domain.ApplicationStage
	MortgageStatuses []domain.MortgageStatus
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	AgentEmail       string
	IncludeArchived  bool
	AfterID          *uuid.UUID
	Limit            int
}

// ClosingLoad is one offer contributing to the closing capacity of a date.
type ClosingLoad struct {
	Date   domain.Date             `db:"close_date"`
	Stage  domain.ApplicationStage `db:"stage"`
	Status domain.OfferStatus      `db:"status"`
}

// AddressOwner is a CRM-mirrored entity that embeds an address.
type AddressOwner struct {
	Kind          domain.EntityKind `db:"kind"`
	ID            uuid.UUID         `db:"id"`
	ApplicationID *uuid.UUID        `db:"application_id"`
}

// Queries are the read operations shared by Store and Tx.
type Queries interface {
	GetApplication(ctx context.Context, id uuid.UUID) (domain.Application, error)
	ListApplicationIDs(ctx context.Context, filter ApplicationFilter) ([]uuid.UUID, error)
	FindApplicationBySalesforceID(ctx context.Context, salesforceID string) (domain.Application, error)
	FindApplicationsByCustomerEmail(ctx context.Context, email string) ([]domain.Application, error)
	FindApplicationByQuestionnaireID(ctx context.Context, responseID string) (domain.Application, error)

	GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (domain.Customer, error)
	GetAddress(ctx context.Context, id uuid.UUID) (domain.Address, error)
	// ListAddressOwners returns the current homes and offers pointing at the address.
	ListAddressOwners(ctx context.Context, addressID uuid.UUID) ([]AddressOwner, error)
	GetBuilder(ctx context.Context, id uuid.UUID) (domain.Builder, error)
	GetLender(ctx context.Context, id uuid.UUID) (domain.Lender, error)
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
	FindAgentBySalesforceID(ctx context.Context, salesforceID string) (domain.Agent, error)
	FindAgentByEmail(ctx context.Context, email string) (domain.Agent, error)
	GetCurrentHome(ctx context.Context, id uuid.UUID) (domain.CurrentHome, error)
	ListMarketValuations(ctx context.Context, currentHomeID uuid.UUID) ([]domain.MarketValuation, error)
	GetMarketValuation(ctx context.Context, id uuid.UUID) (domain.MarketValuation, error)
	GetPreapproval(ctx context.Context, id uuid.UUID) (domain.Preapproval, error)
	GetNewHomePurchase(ctx context.Context, id uuid.UUID) (domain.NewHomePurchase, error)
	GetRent(ctx context.Context, id uuid.UUID) (domain.Rent, error)
	GetOffer(ctx context.Context, id uuid.UUID) (domain.Offer, error)
	FindOfferBySalesforceID(ctx context.Context, salesforceID string) (domain.Offer, error)
	ListOffers(ctx context.Context, applicationID uuid.UUID) ([]domain.Offer, error)
	ListOfferClosingLoads(ctx context.Context, from, to domain.Date) ([]ClosingLoad, error)
	GetLoan(ctx context.Context, id uuid.UUID) (domain.Loan, error)
	FindLoanByBlendID(ctx context.Context, blendApplicationID string) (domain.Loan, error)
	ListLoans(ctx context.Context, applicationID uuid.UUID) ([]domain.Loan, error)
	GetPricing(ctx context.Context, id uuid.UUID) (domain.Pricing, error)
	ListPricingCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Pricing, error)
	GetSupportUser(ctx context.Context, id uuid.UUID) (domain.InternalSupportUser, error)
	FindSupportUserBySalesforceID(ctx context.Context, salesforceID string) (domain.InternalSupportUser, error)
	ListStakeholders(ctx context.Context, applicationID uuid.UUID) ([]domain.Stakeholder, error)
	ListTaskStatuses(ctx context.Context, applicationID uuid.UUID) ([]domain.TaskStatus, error)
	ListStageHistory(ctx context.Context, applicationID uuid.UUID) ([]domain.StageHistory, error)
	ListNotes(ctx context.Context, applicationID uuid.UUID) ([]domain.Note, error)
	ListAuditEntries(ctx context.Context, entityID uuid.UUID) ([]domain.AuditEntry, error)

	GetNotificationByName(ctx context.Context, name string) (domain.Notification, error)
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	// ListNotificationStatuses returns the rows of one application in append order.
	// A nil notificationID returns the rows of every notification.
	ListNotificationStatuses(ctx context.Context, applicationID uuid.UUID, notificationID *uuid.UUID) ([]domain.NotificationStatus, error)
}

// Tx is a unit of work. Insert methods assign missing ids and timestamps and
// return the stored row; Update methods bump updated_at.
type Tx interface {
	Queries

	// LockApplication reads the application and holds its row lock until commit.
	LockApplication(ctx context.Context, id uuid.UUID) (domain.Application, error)
	InsertApplication(ctx context.Context, a domain.Application) (domain.Application, error)
	UpdateApplication(ctx context.Context, a domain.Application) (domain.Application, error)

	InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error)
	UpdateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error)
	InsertAddress(ctx context.Context, a domain.Address) (domain.Address, error)
	UpdateAddress(ctx context.Context, a domain.Address) (domain.Address, error)
	InsertBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error)
	UpdateBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error)
	InsertLender(ctx context.Context, l domain.Lender) (domain.Lender, error)
	UpdateLender(ctx context.Context, l domain.Lender) (domain.Lender, error)
	InsertAgent(ctx context.Context, a domain.Agent) (domain.Agent, error)
	UpdateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error)
	InsertCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error)
	UpdateCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error)
	InsertMarketValuation(ctx context.Context, v domain.MarketValuation) (domain.MarketValuation, error)
	UpdateMarketValuation(ctx context.Context, v domain.MarketValuation) (domain.MarketValuation, error)
	DeleteMarketValuation(ctx context.Context, id uuid.UUID) error
	InsertPreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error)
	UpdatePreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error)
	InsertNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error)
	UpdateNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error)
	InsertRent(ctx context.Context, r domain.Rent) (domain.Rent, error)
	UpdateRent(ctx context.Context, r domain.Rent) (domain.Rent, error)
	InsertOffer(ctx context.Context, o domain.Offer) (domain.Offer, error)
	UpdateOffer(ctx context.Context, o domain.Offer) (domain.Offer, error)
	InsertLoan(ctx context.Context, l domain.Loan) (domain.Loan, error)
	UpdateLoan(ctx context.Context, l domain.Loan) (domain.Loan, error)
	InsertPricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error)
	UpdatePricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error)
	// UpsertSupportUser inserts or updates by salesforce id.
	UpsertSupportUser(ctx context.Context, u domain.InternalSupportUser) (domain.InternalSupportUser, error)
	InsertStakeholder(ctx context.Context, s domain.Stakeholder) (domain.Stakeholder, error)
	DeleteStakeholder(ctx context.Context, id uuid.UUID) error

	UpsertTaskStatus(ctx context.Context, t domain.TaskStatus) error
	InsertStageHistory(ctx context.Context, h domain.StageHistory) error
	InsertNote(ctx context.Context, n domain.Note) (domain.Note, error)
	InsertAudit(ctx context.Context, e domain.AuditEntry) error
	UpsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
	// InsertNotificationStatus appends an outcome. A second SENT row for the
	// same (application, notification) fails with apperr.Conflict.
	InsertNotificationStatus(ctx context.Context, s domain.NotificationStatus) (domain.NotificationStatus, error)

	// MarkPushed records a successful CRM push without bumping updated_at.
	MarkPushed(ctx context.Context, kind domain.EntityKind, id uuid.UUID, salesforceID string, at time.Time) error
	AppendOutbox(ctx context.Context, rec outbox.Record) error
}

// Store is the Entity Store.
type Store interface {
	Queries
	outbox.Repository

	// WithTx runs fn in a transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
