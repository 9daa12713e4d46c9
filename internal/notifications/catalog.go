package notifications

import (
	"context"
	_ "embed"
	"fmt"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"gopkg.in/yaml.v3"
)

// Notification names.
const (
	ApplicationUnderReview         = "APPLICATION_UNDER_REVIEW"
	ApplicationComplete            = "APPLICATION_COMPLETE"
	Approval                       = "APPROVAL"
	HWMortgageCandidateApproval    = "HW_MORTGAGE_CANDIDATE_APPROVAL"
	AgentOfferInstructions         = "AGENT_OFFER_INSTRUCTIONS"
	OfferSubmitted                 = "OFFER_SUBMITTED"
	OfferSubmittedAgent            = "OFFER_SUBMITTED_AGENT"
	OfferRequestedUnacknowledgedSA = "OFFER_REQUESTED_UNACKNOWLEDGED_SERVICE_AGREEMENT"
	OfferAccepted                  = "OFFER_ACCEPTED"
	PurchasePriceUpdated           = "PURCHASE_PRICE_UPDATED"
	HomewardClose                  = "HOMEWARD_CLOSE"
	CustomerClose                  = "CUSTOMER_CLOSE"
	AgentCustomerClose             = "AGENT_CUSTOMER_CLOSE"
	PreHomewardClose               = "PRE_HOMEWARD_CLOSE"
	PreCustomerClose               = "PRE_CUSTOMER_CLOSE"
	AgentPreCustomerClose          = "AGENT_PRE_CUSTOMER_CLOSE"
	VPALIncomplete                 = "VPAL_INCOMPLETE"
	VPALSuspended                  = "VPAL_SUSPENDED"
	VPALReadyForReview             = "VPAL_READY_FOR_REVIEW"
	VPALReadyForReviewFollowUp     = "VPAL_READY_FOR_REVIEW_FOLLOW_UP"
	ExpiringApproval               = "EXPIRING_APPROVAL"
	PhotoUpload                    = "PHOTO_UPLOAD"
	IncompleteReferral             = "INCOMPLETE_REFERRAL"
	RegisteredClientWelcome        = "REGISTERED_CLIENT_WELCOME"
	FastTrackResume                = "FAST_TRACK_RESUME"
	incompleteReminderPrefix       = "INCOMPLETE_REMINDER_"
	preAccountReminderPrefix       = "PRE_ACCOUNT_REMINDER_"
	registeredClientReminderPrefix = "REGISTERED_CLIENT_REMINDER_"
)

// ReminderDays are the age buckets of the incomplete-application reminders.
var ReminderDays = []int{1, 3, 7}

// IncompleteReminder returns the reminder name for an age bucket.
func IncompleteReminder(days int) string { return fmt.Sprintf("%s%dD", incompleteReminderPrefix, days) }

// PreAccountReminder returns the pre-account reminder name for an age bucket.
func PreAccountReminder(days int) string { return fmt.Sprintf("%s%dD", preAccountReminderPrefix, days) }

// RegisteredClientReminder returns the registered-client reminder name for an age bucket.
func RegisteredClientReminder(days int) string {
	return fmt.Sprintf("%s%dD", registeredClientReminderPrefix, days)
}

//go:embed catalog.yaml
var catalogYAML []byte

type catalogEntry struct {
	Name       string `yaml:"name"`
	TemplateID string `yaml:"template_id"`
	Inactive   bool   `yaml:"inactive"`
}

// Catalog returns the seed entries.
func Catalog() ([]domain.Notification, error) {
	var doc struct {
		Notifications []catalogEntry `yaml:"notifications"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse notification catalog: %w", err)
	}
	out := make([]domain.Notification, 0, len(doc.Notifications))
	for _, e := range doc.Notifications {
		out = append(out, domain.Notification{Name: e.Name, TemplateID: e.TemplateID, IsActive: !e.Inactive})
	}
	return out, nil
}

// Seed inserts catalog entries that are missing. Existing rows are left alone.
func Seed(ctx context.Context, st store.Store) (int, error) {
	entries, err := Catalog()
	if err != nil {
		return 0, err
	}
	inserted := 0
	err = st.WithTx(ctx, func(tx store.Tx) error {
		for _, n := range entries {
			_, err := tx.GetNotificationByName(ctx, n.Name)
			if err == nil {
				continue
			}
			if !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			if _, err := tx.UpsertNotification(ctx, n); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}
