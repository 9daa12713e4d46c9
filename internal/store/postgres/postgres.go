// Package postgres is the pgx-backed Entity Store. Statements are built with
// go-sqlbuilder from the db tags of the domain structs and rows are collected
// with pgx.RowToStructByName.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const (
	tableCustomers            = "customers"
	tableApplications         = "applications"
	tableAddresses            = "addresses"
	tableBuilders             = "builders"
	tableLenders              = "lenders"
	tableAgents               = "agents"
	tableCurrentHomes         = "current_homes"
	tableMarketValuations     = "market_valuations"
	tablePreapprovals         = "preapprovals"
	tableNewHomePurchases     = "new_home_purchases"
	tableRents                = "rents"
	tableOffers               = "offers"
	tableLoans                = "loans"
	tablePricing              = "pricing"
	tableSupportUsers         = "support_users"
	tableStakeholders         = "stakeholders"
	tableTaskStatuses         = "task_statuses"
	tableStageHistory         = "stage_history"
	tableNotes                = "notes"
	tableAuditEntries         = "audit_entries"
	tableNotifications        = "notifications"
	tableNotificationStatuses = "notification_statuses"
	tableOutbox               = "outbox"
)

var (
	customerStruct           = sqlbuilder.NewStruct(new(domain.Customer)).For(sqlbuilder.PostgreSQL)
	applicationStruct        = sqlbuilder.NewStruct(new(domain.Application)).For(sqlbuilder.PostgreSQL)
	addressStruct            = sqlbuilder.NewStruct(new(domain.Address)).For(sqlbuilder.PostgreSQL)
	builderStruct            = sqlbuilder.NewStruct(new(domain.Builder)).For(sqlbuilder.PostgreSQL)
	lenderStruct             = sqlbuilder.NewStruct(new(domain.Lender)).For(sqlbuilder.PostgreSQL)
	agentStruct              = sqlbuilder.NewStruct(new(domain.Agent)).For(sqlbuilder.PostgreSQL)
	currentHomeStruct        = sqlbuilder.NewStruct(new(domain.CurrentHome)).For(sqlbuilder.PostgreSQL)
	marketValuationStruct    = sqlbuilder.NewStruct(new(domain.MarketValuation)).For(sqlbuilder.PostgreSQL)
	preapprovalStruct        = sqlbuilder.NewStruct(new(domain.Preapproval)).For(sqlbuilder.PostgreSQL)
	newHomePurchaseStruct    = sqlbuilder.NewStruct(new(domain.NewHomePurchase)).For(sqlbuilder.PostgreSQL)
	rentStruct               = sqlbuilder.NewStruct(new(domain.Rent)).For(sqlbuilder.PostgreSQL)
	offerStruct              = sqlbuilder.NewStruct(new(domain.Offer)).For(sqlbuilder.PostgreSQL)
	loanStruct               = sqlbuilder.NewStruct(new(domain.Loan)).For(sqlbuilder.PostgreSQL)
	pricingStruct            = sqlbuilder.NewStruct(new(domain.Pricing)).For(sqlbuilder.PostgreSQL)
	supportUserStruct        = sqlbuilder.NewStruct(new(domain.InternalSupportUser)).For(sqlbuilder.PostgreSQL)
	stakeholderStruct        = sqlbuilder.NewStruct(new(domain.Stakeholder)).For(sqlbuilder.PostgreSQL)
	taskStatusStruct         = sqlbuilder.NewStruct(new(domain.TaskStatus)).For(sqlbuilder.PostgreSQL)
	stageHistoryStruct       = sqlbuilder.NewStruct(new(domain.StageHistory)).For(sqlbuilder.PostgreSQL)
	noteStruct               = sqlbuilder.NewStruct(new(domain.Note)).For(sqlbuilder.PostgreSQL)
	auditEntryStruct         = sqlbuilder.NewStruct(new(domain.AuditEntry)).For(sqlbuilder.PostgreSQL)
	notificationStruct       = sqlbuilder.NewStruct(new(domain.Notification)).For(sqlbuilder.PostgreSQL)
	notificationStatusStruct = sqlbuilder.NewStruct(new(domain.NotificationStatus)).For(sqlbuilder.PostgreSQL)
	outboxStruct             = sqlbuilder.NewStruct(new(outbox.Record)).For(sqlbuilder.PostgreSQL)
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements store.Store on a pgx pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = pgxTx.Rollback(ctx) }()

	if err := fn(&tx{queries: queries{db: pgxTx}, now: time.Now().UTC()}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func getOne[T any](ctx context.Context, db querier, sb *sqlbuilder.SelectBuilder, what string) (T, error) {
	var zero T
	query, args := sb.Build()
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", what, err)
	}
	v, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, apperr.NotFound(what + " not found")
	}
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", what, err)
	}
	return v, nil
}

func list[T any](ctx context.Context, db querier, sb *sqlbuilder.SelectBuilder, what string) ([]T, error) {
	query, args := sb.Build()
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	return items, nil
}

type builder interface {
	Build() (string, []interface{})
}

func exec(ctx context.Context, db querier, b builder, what string) (pgconn.CommandTag, error) {
	query, args := b.Build()
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return tag, apperr.Wrap(apperr.KindConflict, what+" already exists ("+pgErr.ConstraintName+")", err)
		}
		return tag, fmt.Errorf("%s: %w", what, err)
	}
	return tag, nil
}

func execUpdate(ctx context.Context, db querier, b builder, what string) error {
	tag, err := exec(ctx, db, b, "update "+what)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(what + " not found")
	}
	return nil
}

var _ store.Store = (*Store)(nil)
