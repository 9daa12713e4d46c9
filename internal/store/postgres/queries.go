package postgres

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
)

// queries implements store.Queries for both the pool and a transaction.
type queries struct {
	db querier
}

func byID(s *sqlbuilder.Struct, table string, id uuid.UUID) *sqlbuilder.SelectBuilder {
	sb := s.SelectFrom(table)
	sb.Where(sb.Equal("id", id))
	return sb
}

func byColumn(s *sqlbuilder.Struct, table, column string, value any) *sqlbuilder.SelectBuilder {
	sb := s.SelectFrom(table)
	sb.Where(sb.Equal(column, value))
	return sb
}

func (q queries) GetApplication(ctx context.Context, id uuid.UUID) (domain.Application, error) {
	return getOne[domain.Application](ctx, q.db, byID(applicationStruct, tableApplications, id), "application")
}

func (q queries) ListApplicationIDs(ctx context.Context, f store.ApplicationFilter) ([]uuid.UUID, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id").From(tableApplications)

	if len(f.Stages) > 0 {
		sb.Where(sb.In("stage", sqlbuilder.Flatten(f.Stages)...))
	}
	if len(f.MortgageStatuses) > 0 {
		sb.Where(sb.In("mortgage_status", sqlbuilder.Flatten(f.MortgageStatuses)...))
	}
	if f.CreatedFrom != nil {
		sb.Where(sb.GreaterEqualThan("created_at", *f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		sb.Where(sb.LessThan("created_at", *f.CreatedTo))
	}
	if !f.IncludeArchived {
		sb.Where(fmt.Sprintf("NOT (%s = ANY(COALESCE(filter_status, '{}')))", sb.Var(domain.FilterArchived)))
	}
	if f.AgentEmail != "" {
		email := sb.Var(domain.NormalizeEmail(f.AgentEmail))
		sb.Where(fmt.Sprintf(
			"(buying_agent_id IN (SELECT id FROM agents WHERE lower(email) = %[1]s) OR listing_agent_id IN (SELECT id FROM agents WHERE lower(email) = %[1]s))",
			email,
		))
	}
	if f.AfterID != nil {
		sb.Where(sb.GreaterThan("id", *f.AfterID))
	}
	sb.OrderBy("id").Asc()
	if f.Limit > 0 {
		sb.Limit(f.Limit)
	}

	query, args := sb.Build()
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list application ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan application id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q queries) FindApplicationBySalesforceID(ctx context.Context, salesforceID string) (domain.Application, error) {
	return getOne[domain.Application](ctx, q.db, byColumn(applicationStruct, tableApplications, "salesforce_id", salesforceID), "application")
}

func (q queries) FindApplicationsByCustomerEmail(ctx context.Context, email string) ([]domain.Application, error) {
	sb := applicationStruct.SelectFrom(tableApplications)
	sb.Where(fmt.Sprintf("customer_id IN (SELECT id FROM customers WHERE email = %s)", sb.Var(domain.NormalizeEmail(email))))
	sb.OrderBy("created_at").Asc()
	return list[domain.Application](ctx, q.db, sb, "applications")
}

func (q queries) FindApplicationByQuestionnaireID(ctx context.Context, responseID string) (domain.Application, error) {
	return getOne[domain.Application](ctx, q.db, byColumn(applicationStruct, tableApplications, "questionnaire_response_id", responseID), "application")
}

func (q queries) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	return getOne[domain.Customer](ctx, q.db, byID(customerStruct, tableCustomers, id), "customer")
}

func (q queries) FindCustomerByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return getOne[domain.Customer](ctx, q.db, byColumn(customerStruct, tableCustomers, "email", domain.NormalizeEmail(email)), "customer")
}

func (q queries) GetAddress(ctx context.Context, id uuid.UUID) (domain.Address, error) {
	return getOne[domain.Address](ctx, q.db, byID(addressStruct, tableAddresses, id), "address")
}

const addressOwnersSQL = `SELECT 'current_home' AS kind, h.id, a.id AS application_id
FROM current_homes h
LEFT JOIN applications a ON a.current_home_id = h.id
WHERE h.address_id = $1
UNION ALL
SELECT 'offer' AS kind, o.id, o.application_id
FROM offers o
WHERE o.property_address_id = $1`

func (q queries) ListAddressOwners(ctx context.Context, addressID uuid.UUID) ([]store.AddressOwner, error) {
	rows, err := q.db.Query(ctx, addressOwnersSQL, addressID)
	if err != nil {
		return nil, fmt.Errorf("list address owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowToStructByName[store.AddressOwner])
	if err != nil {
		return nil, fmt.Errorf("list address owners: %w", err)
	}
	return owners, nil
}

func (q queries) GetBuilder(ctx context.Context, id uuid.UUID) (domain.Builder, error) {
	return getOne[domain.Builder](ctx, q.db, byID(builderStruct, tableBuilders, id), "builder")
}

func (q queries) GetLender(ctx context.Context, id uuid.UUID) (domain.Lender, error) {
	return getOne[domain.Lender](ctx, q.db, byID(lenderStruct, tableLenders, id), "lender")
}

func (q queries) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	return getOne[domain.Agent](ctx, q.db, byID(agentStruct, tableAgents, id), "agent")
}

func (q queries) FindAgentBySalesforceID(ctx context.Context, salesforceID string) (domain.Agent, error) {
	return getOne[domain.Agent](ctx, q.db, byColumn(agentStruct, tableAgents, "salesforce_id", salesforceID), "agent")
}

func (q queries) FindAgentByEmail(ctx context.Context, email string) (domain.Agent, error) {
	sb := agentStruct.SelectFrom(tableAgents)
	sb.Where(fmt.Sprintf("lower(email) = %s", sb.Var(domain.NormalizeEmail(email))))
	sb.OrderBy("created_at").Asc().Limit(1)
	return getOne[domain.Agent](ctx, q.db, sb, "agent")
}

func (q queries) GetCurrentHome(ctx context.Context, id uuid.UUID) (domain.CurrentHome, error) {
	return getOne[domain.CurrentHome](ctx, q.db, byID(currentHomeStruct, tableCurrentHomes, id), "current home")
}

func (q queries) ListMarketValuations(ctx context.Context, currentHomeID uuid.UUID) ([]domain.MarketValuation, error) {
	sb := byColumn(marketValuationStruct, tableMarketValuations, "current_home_id", currentHomeID)
	sb.OrderBy("valued_at").Asc()
	return list[domain.MarketValuation](ctx, q.db, sb, "market valuations")
}

func (q queries) GetMarketValuation(ctx context.Context, id uuid.UUID) (domain.MarketValuation, error) {
	return getOne[domain.MarketValuation](ctx, q.db, byID(marketValuationStruct, tableMarketValuations, id), "market valuation")
}

func (q queries) GetPreapproval(ctx context.Context, id uuid.UUID) (domain.Preapproval, error) {
	return getOne[domain.Preapproval](ctx, q.db, byID(preapprovalStruct, tablePreapprovals, id), "preapproval")
}

func (q queries) GetNewHomePurchase(ctx context.Context, id uuid.UUID) (domain.NewHomePurchase, error) {
	return getOne[domain.NewHomePurchase](ctx, q.db, byID(newHomePurchaseStruct, tableNewHomePurchases, id), "new home purchase")
}

func (q queries) GetRent(ctx context.Context, id uuid.UUID) (domain.Rent, error) {
	return getOne[domain.Rent](ctx, q.db, byID(rentStruct, tableRents, id), "rent")
}

func (q queries) GetOffer(ctx context.Context, id uuid.UUID) (domain.Offer, error) {
	return getOne[domain.Offer](ctx, q.db, byID(offerStruct, tableOffers, id), "offer")
}

func (q queries) FindOfferBySalesforceID(ctx context.Context, salesforceID string) (domain.Offer, error) {
	return getOne[domain.Offer](ctx, q.db, byColumn(offerStruct, tableOffers, "salesforce_id", salesforceID), "offer")
}

func (q queries) ListOffers(ctx context.Context, applicationID uuid.UUID) ([]domain.Offer, error) {
	sb := byColumn(offerStruct, tableOffers, "application_id", applicationID)
	sb.OrderBy("created_at").Asc()
	return list[domain.Offer](ctx, q.db, sb, "offers")
}

func (q queries) ListOfferClosingLoads(ctx context.Context, from, to domain.Date) ([]store.ClosingLoad, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("o.preferred_closing_date AS close_date", "a.stage", "o.status").
		From(sb.As(tableOffers, "o")).
		Join(sb.As(tableApplications, "a"), "a.id = o.application_id").
		Where(sb.Between("o.preferred_closing_date", from, to))
	return list[store.ClosingLoad](ctx, q.db, sb, "closing loads")
}

func (q queries) GetLoan(ctx context.Context, id uuid.UUID) (domain.Loan, error) {
	return getOne[domain.Loan](ctx, q.db, byID(loanStruct, tableLoans, id), "loan")
}

func (q queries) FindLoanByBlendID(ctx context.Context, blendApplicationID string) (domain.Loan, error) {
	return getOne[domain.Loan](ctx, q.db, byColumn(loanStruct, tableLoans, "blend_application_id", blendApplicationID), "loan")
}

func (q queries) ListLoans(ctx context.Context, applicationID uuid.UUID) ([]domain.Loan, error) {
	sb := byColumn(loanStruct, tableLoans, "application_id", applicationID)
	sb.OrderBy("created_at").Asc()
	return list[domain.Loan](ctx, q.db, sb, "loans")
}

func (q queries) GetPricing(ctx context.Context, id uuid.UUID) (domain.Pricing, error) {
	return getOne[domain.Pricing](ctx, q.db, byID(pricingStruct, tablePricing, id), "pricing")
}

func (q queries) ListPricingCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Pricing, error) {
	sb := pricingStruct.SelectFrom(tablePricing)
	sb.Where(sb.GreaterEqualThan("created_at", from), sb.LessThan("created_at", to))
	sb.OrderBy("created_at").Asc()
	return list[domain.Pricing](ctx, q.db, sb, "pricing")
}

func (q queries) GetSupportUser(ctx context.Context, id uuid.UUID) (domain.InternalSupportUser, error) {
	return getOne[domain.InternalSupportUser](ctx, q.db, byID(supportUserStruct, tableSupportUsers, id), "support user")
}

func (q queries) FindSupportUserBySalesforceID(ctx context.Context, salesforceID string) (domain.InternalSupportUser, error) {
	return getOne[domain.InternalSupportUser](ctx, q.db, byColumn(supportUserStruct, tableSupportUsers, "salesforce_id", salesforceID), "support user")
}

func (q queries) ListStakeholders(ctx context.Context, applicationID uuid.UUID) ([]domain.Stakeholder, error) {
	sb := byColumn(stakeholderStruct, tableStakeholders, "application_id", applicationID)
	sb.OrderBy("created_at").Asc()
	return list[domain.Stakeholder](ctx, q.db, sb, "stakeholders")
}

func (q queries) ListTaskStatuses(ctx context.Context, applicationID uuid.UUID) ([]domain.TaskStatus, error) {
	sb := byColumn(taskStatusStruct, tableTaskStatuses, "application_id", applicationID)
	sb.OrderBy("name").Asc()
	return list[domain.TaskStatus](ctx, q.db, sb, "task statuses")
}

func (q queries) ListStageHistory(ctx context.Context, applicationID uuid.UUID) ([]domain.StageHistory, error) {
	sb := byColumn(stageHistoryStruct, tableStageHistory, "application_id", applicationID)
	sb.OrderBy("instant", "id").Asc()
	return list[domain.StageHistory](ctx, q.db, sb, "stage history")
}

func (q queries) ListNotes(ctx context.Context, applicationID uuid.UUID) ([]domain.Note, error) {
	sb := byColumn(noteStruct, tableNotes, "application_id", applicationID)
	sb.OrderBy("created_at").Asc()
	return list[domain.Note](ctx, q.db, sb, "notes")
}

func (q queries) ListAuditEntries(ctx context.Context, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	sb := auditEntryStruct.SelectFrom(tableAuditEntries)
	sb.Where(sb.Or(sb.Equal("entity_id", entityID), sb.Equal("application_id", entityID)))
	sb.OrderBy("created_at").Asc()
	return list[domain.AuditEntry](ctx, q.db, sb, "audit entries")
}

func (q queries) GetNotificationByName(ctx context.Context, name string) (domain.Notification, error) {
	return getOne[domain.Notification](ctx, q.db, byColumn(notificationStruct, tableNotifications, "name", name), "notification")
}

func (q queries) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	sb := notificationStruct.SelectFrom(tableNotifications)
	sb.OrderBy("name").Asc()
	return list[domain.Notification](ctx, q.db, sb, "notifications")
}

func (q queries) ListNotificationStatuses(ctx context.Context, applicationID uuid.UUID, notificationID *uuid.UUID) ([]domain.NotificationStatus, error) {
	sb := byColumn(notificationStatusStruct, tableNotificationStatuses, "application_id", applicationID)
	if notificationID != nil {
		sb.Where(sb.Equal("notification_id", *notificationID))
	}
	sb.OrderBy("created_at", "id").Asc()
	return list[domain.NotificationStatus](ctx, q.db, sb, "notification statuses")
}
