package memory

import (
	"context"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"

	"github.com/google/uuid"
)

// Read methods delegate to a view of the committed state.

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (domain.Application, error) {
	return s.current().GetApplication(ctx, id)
}

func (s *Store) ListApplicationIDs(ctx context.Context, f store.ApplicationFilter) ([]uuid.UUID, error) {
	return s.current().ListApplicationIDs(ctx, f)
}

func (s *Store) FindApplicationBySalesforceID(ctx context.Context, salesforceID string) (domain.Application, error) {
	return s.current().FindApplicationBySalesforceID(ctx, salesforceID)
}

func (s *Store) FindApplicationsByCustomerEmail(ctx context.Context, email string) ([]domain.Application, error) {
	return s.current().FindApplicationsByCustomerEmail(ctx, email)
}

func (s *Store) FindApplicationByQuestionnaireID(ctx context.Context, responseID string) (domain.Application, error) {
	return s.current().FindApplicationByQuestionnaireID(ctx, responseID)
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	return s.current().GetCustomer(ctx, id)
}

func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return s.current().FindCustomerByEmail(ctx, email)
}

func (s *Store) GetAddress(ctx context.Context, id uuid.UUID) (domain.Address, error) {
	return s.current().GetAddress(ctx, id)
}

func (s *Store) ListAddressOwners(ctx context.Context, addressID uuid.UUID) ([]store.AddressOwner, error) {
	return s.current().ListAddressOwners(ctx, addressID)
}

func (s *Store) GetBuilder(ctx context.Context, id uuid.UUID) (domain.Builder, error) {
	return s.current().GetBuilder(ctx, id)
}

func (s *Store) GetLender(ctx context.Context, id uuid.UUID) (domain.Lender, error) {
	return s.current().GetLender(ctx, id)
}

func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	return s.current().GetAgent(ctx, id)
}

func (s *Store) FindAgentBySalesforceID(ctx context.Context, salesforceID string) (domain.Agent, error) {
	return s.current().FindAgentBySalesforceID(ctx, salesforceID)
}

func (s *Store) FindAgentByEmail(ctx context.Context, email string) (domain.Agent, error) {
	return s.current().FindAgentByEmail(ctx, email)
}

func (s *Store) GetCurrentHome(ctx context.Context, id uuid.UUID) (domain.CurrentHome, error) {
	return s.current().GetCurrentHome(ctx, id)
}

func (s *Store) ListMarketValuations(ctx context.Context, currentHomeID uuid.UUID) ([]domain.MarketValuation, error) {
	return s.current().ListMarketValuations(ctx, currentHomeID)
}

func (s *Store) GetMarketValuation(ctx context.Context, id uuid.UUID) (domain.MarketValuation, error) {
	return s.current().GetMarketValuation(ctx, id)
}

func (s *Store) GetPreapproval(ctx context.Context, id uuid.UUID) (domain.Preapproval, error) {
	return s.current().GetPreapproval(ctx, id)
}

func (s *Store) GetNewHomePurchase(ctx context.Context, id uuid.UUID) (domain.NewHomePurchase, error) {
	return s.current().GetNewHomePurchase(ctx, id)
}

func (s *Store) GetRent(ctx context.Context, id uuid.UUID) (domain.Rent, error) {
	return s.current().GetRent(ctx, id)
}

func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (domain.Offer, error) {
	return s.current().GetOffer(ctx, id)
}

func (s *Store) FindOfferBySalesforceID(ctx context.Context, salesforceID string) (domain.Offer, error) {
	return s.current().FindOfferBySalesforceID(ctx, salesforceID)
}

func (s *Store) ListOffers(ctx context.Context, applicationID uuid.UUID) ([]domain.Offer, error) {
	return s.current().ListOffers(ctx, applicationID)
}

func (s *Store) ListOfferClosingLoads(ctx context.Context, from, to domain.Date) ([]store.ClosingLoad, error) {
	return s.current().ListOfferClosingLoads(ctx, from, to)
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (domain.Loan, error) {
	return s.current().GetLoan(ctx, id)
}

func (s *Store) FindLoanByBlendID(ctx context.Context, blendApplicationID string) (domain.Loan, error) {
	return s.current().FindLoanByBlendID(ctx, blendApplicationID)
}

func (s *Store) ListLoans(ctx context.Context, applicationID uuid.UUID) ([]domain.Loan, error) {
	return s.current().ListLoans(ctx, applicationID)
}

func (s *Store) GetPricing(ctx context.Context, id uuid.UUID) (domain.Pricing, error) {
	return s.current().GetPricing(ctx, id)
}

func (s *Store) ListPricingCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Pricing, error) {
	return s.current().ListPricingCreatedBetween(ctx, from, to)
}

func (s *Store) GetSupportUser(ctx context.Context, id uuid.UUID) (domain.InternalSupportUser, error) {
	return s.current().GetSupportUser(ctx, id)
}

func (s *Store) FindSupportUserBySalesforceID(ctx context.Context, salesforceID string) (domain.InternalSupportUser, error) {
	return s.current().FindSupportUserBySalesforceID(ctx, salesforceID)
}

func (s *Store) ListStakeholders(ctx context.Context, applicationID uuid.UUID) ([]domain.Stakeholder, error) {
	return s.current().ListStakeholders(ctx, applicationID)
}

func (s *Store) ListTaskStatuses(ctx context.Context, applicationID uuid.UUID) ([]domain.TaskStatus, error) {
	return s.current().ListTaskStatuses(ctx, applicationID)
}

func (s *Store) ListStageHistory(ctx context.Context, applicationID uuid.UUID) ([]domain.StageHistory, error) {
	return s.current().ListStageHistory(ctx, applicationID)
}

func (s *Store) ListNotes(ctx context.Context, applicationID uuid.UUID) ([]domain.Note, error) {
	return s.current().ListNotes(ctx, applicationID)
}

func (s *Store) ListAuditEntries(ctx context.Context, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	return s.current().ListAuditEntries(ctx, entityID)
}

func (s *Store) GetNotificationByName(ctx context.Context, name string) (domain.Notification, error) {
	return s.current().GetNotificationByName(ctx, name)
}

func (s *Store) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	return s.current().ListNotifications(ctx)
}

func (s *Store) ListNotificationStatuses(ctx context.Context, applicationID uuid.UUID, notificationID *uuid.UUID) ([]domain.NotificationStatus, error) {
	return s.current().ListNotificationStatuses(ctx, applicationID, notificationID)
}
