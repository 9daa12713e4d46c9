package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

func seedApplication(t *testing.T, s *Store, email string) domain.Application {
	t.Helper()
	var app domain.Application
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		c, err := tx.InsertCustomer(context.Background(), domain.Customer{Email: email, FirstName: "Brandon"})
		if err != nil {
			return err
		}
		app, err = tx.InsertApplication(context.Background(), domain.Application{
			CustomerID:      c.ID,
			Stage:           domain.StageIncomplete,
			ProductOffering: domain.ProductBuySell,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return app
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	app := seedApplication(t, s, "brandon@example.com")

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		a, err := tx.LockApplication(context.Background(), app.ID)
		if err != nil {
			return err
		}
		a.Stage = domain.StageComplete
		if _, err := tx.UpdateApplication(context.Background(), a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := s.GetApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != domain.StageIncomplete {
		t.Fatalf("expected rollback to keep INCOMPLETE, got %s", got.Stage)
	}
}

func TestCustomerEmailIsCaseFoldedAndUnique(t *testing.T) {
	s := New()
	seedApplication(t, s, "Brandon@Example.com")

	c, err := s.FindCustomerByEmail(context.Background(), "BRANDON@example.COM")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.Email != "brandon@example.com" {
		t.Fatalf("expected folded email, got %q", c.Email)
	}

	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.InsertCustomer(context.Background(), domain.Customer{Email: "brandon@EXAMPLE.com"})
		return err
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSecondSentStatusConflicts(t *testing.T) {
	s := New()
	app := seedApplication(t, s, "a@example.com")
	notificationID := uuid.New()

	insert := func(status domain.DeliveryStatus) error {
		return s.WithTx(context.Background(), func(tx store.Tx) error {
			_, err := tx.InsertNotificationStatus(context.Background(), domain.NotificationStatus{
				ApplicationID:  app.ID,
				NotificationID: notificationID,
				Status:         status,
			})
			return err
		})
	}

	if err := insert(domain.DeliveryNotSent); err != nil {
		t.Fatalf("not sent: %v", err)
	}
	if err := insert(domain.DeliverySent); err != nil {
		t.Fatalf("first sent: %v", err)
	}
	if err := insert(domain.DeliverySent); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second SENT, got %v", err)
	}

	rows, _ := s.ListNotificationStatuses(context.Background(), app.ID, &notificationID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestMarkPushedKeepsUpdatedAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	app := seedApplication(t, s, "a@example.com")

	pushedAt := now.Add(time.Minute)
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.MarkPushed(context.Background(), domain.KindApplication, app.ID, "001XYZ", pushedAt)
	})
	if err != nil {
		t.Fatalf("mark pushed: %v", err)
	}

	got, _ := s.GetApplication(context.Background(), app.ID)
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at moved to %s", got.UpdatedAt)
	}
	if got.SalesforceID == nil || *got.SalesforceID != "001XYZ" {
		t.Fatalf("salesforce id not recorded: %v", got.SalesforceID)
	}
	if got.PushedToSalesforceOn == nil || !got.PushedToSalesforceOn.Equal(pushedAt) {
		t.Fatalf("pushed_to_salesforce_on not recorded")
	}
}

func TestClaimPendingMovesRecordsToEnqueued(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendOutbox(context.Background(), outbox.Record{Kind: "entity.changed", Payload: []byte(`{}`)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	claimed, err := s.ClaimPending(context.Background(), 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	again, _ := s.ClaimPending(context.Background(), 10)
	if len(again) != 1 {
		t.Fatalf("expected 1 left, got %d", len(again))
	}
	for _, rec := range s.OutboxRecords() {
		if rec.Status != outbox.StatusEnqueued {
			t.Fatalf("expected enqueued, got %s", rec.Status)
		}
	}
}

func TestListApplicationIDsPaginatesAndFilters(t *testing.T) {
	s := New()
	a := seedApplication(t, s, "a@example.com")
	b := seedApplication(t, s, "b@example.com")
	_ = s.WithTx(context.Background(), func(tx store.Tx) error {
		app, _ := tx.GetApplication(context.Background(), b.ID)
		app.Stage = domain.StageApproved
		_, err := tx.UpdateApplication(context.Background(), app)
		return err
	})

	ids, _ := s.ListApplicationIDs(context.Background(), store.ApplicationFilter{Stages: []domain.ApplicationStage{domain.StageApproved}})
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("unexpected stage filter result %v", ids)
	}

	first, _ := s.ListApplicationIDs(context.Background(), store.ApplicationFilter{Limit: 1})
	rest, _ := s.ListApplicationIDs(context.Background(), store.ApplicationFilter{AfterID: &first[0]})
	if len(first) != 1 || len(rest) != 1 || first[0] == rest[0] {
		t.Fatalf("pagination broken: %v %v (a=%s b=%s)", first, rest, a.ID, b.ID)
	}
}
