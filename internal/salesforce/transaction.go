package salesforce

import (
	"context"
	"fmt"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// MergeTransaction dispatches a Transaction__c record by its record type.
func (m *Merger) MergeTransaction(ctx context.Context, rec gjson.Result) error {
	switch rt := rec.Get("RecordType.Name").String(); rt {
	case TransactionOffer:
		return m.mergeOfferTransaction(ctx, rec)
	case TransactionHomewardPurchase:
		return m.mergePurchase(ctx, rec, HomewardPurchaseFields, applyHomewardPurchase)
	case TransactionCustomerPurchase:
		return m.mergePurchase(ctx, rec, CustomerPurchaseFields, applyCustomerPurchase)
	case TransactionOldHomeSale:
		m.log.Debug("old home sale transaction not synced", "salesforce_id", rec.Get("Id").String())
		return ErrSkipped
	default:
		return apperr.BadRequest(fmt.Sprintf("unknown transaction record type %q", rt))
	}
}

// mergeOfferTransaction upserts an offer by its local id, falling back to the
// CRM id. The local id is written back whenever the record did not carry it.
func (m *Merger) mergeOfferTransaction(ctx context.Context, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	in := OfferFields.Inbound(rec)

	var localID string
	err := m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		current, err := m.findOffer(ctx, tx, in["id"], sfID)
		if err != nil {
			return err
		}
		var next domain.Offer
		if current != nil {
			next = *current
		} else {
			app, err := m.applicationForAccount(ctx, tx, in["account"])
			if err != nil {
				return err
			}
			next = domain.Offer{ApplicationID: app.ID, Status: domain.OfferRequested}
		}
		if _, err := tx.LockApplication(ctx, next.ApplicationID); err != nil {
			return err
		}
		if next.SalesforceID == nil && sfID != "" {
			next.SalesforceID = &sfID
		}
		m.applyOffer(&next, in)
		var currentAddress *domain.Address
		if next.PropertyAddressID != nil {
			addr, err := tx.GetAddress(ctx, *next.PropertyAddressID)
			if err != nil {
				return err
			}
			currentAddress = &addr
		}
		if next.PropertyAddressID, err = mergeAddress(ctx, tx, currentAddress, in.Sub("address.")); err != nil {
			return err
		}
		stored, err := upsertEntity(ctx, current, next, domain.SnapshotOffer, tx.InsertOffer, tx.UpdateOffer)
		if err != nil {
			return err
		}
		localID = stored.ID.String()
		_, err = m.engine.RecomputeTx(ctx, tx, stored.ApplicationID)
		return err
	})
	if err != nil || sfID == "" || in["id"] == localID {
		return err
	}
	return m.crm.Update(ctx, ObjectOffer, sfID, OfferFields.Outbound(domain.Snapshot{"id": localID}))
}

// findOffer reads the offer by local id, then by CRM id. A missing offer
// returns nil without error.
func (m *Merger) findOffer(ctx context.Context, tx *lifecycle.Tx, localID, sfID string) (*domain.Offer, error) {
	if localID != "" {
		id, err := uuid.Parse(localID)
		if err != nil {
			return nil, apperr.FieldError("Homeward_ID__c", "not a valid id")
		}
		o, err := tx.GetOffer(ctx, id)
		if err == nil {
			return &o, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
	}
	if sfID == "" {
		return nil, nil
	}
	o, err := tx.FindOfferBySalesforceID(ctx, sfID)
	if err == nil {
		return &o, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	return nil, err
}

func (m *Merger) applyOffer(o *domain.Offer, in Fields) {
	if v, ok := in["status"]; ok {
		if status := domain.OfferStatus(enumValue(v)); status.Valid() {
			o.Status = status
		} else {
			m.log.Warn("unknown offer status from salesforce ignored", "offer_id", o.ID, "status", v)
		}
	}
	in.Decimal("offer_price", &o.OfferPrice)
	in.TextPtr("contract_type", &o.ContractType)
	in.TextPtr("property_type", &o.PropertyType)
	in.BoolPtr("less_than_one_acre", &o.LessThanOneAcre)
	in.Int("year_built", &o.YearBuilt)
	in.Int("home_square_footage", &o.HomeSquareFootage)
	in.Decimal("home_list_price", &o.HomeListPrice)
	in.Time("offer_deadline", &o.OfferDeadline)
	in.TextPtr("other_offers", &o.OtherOffers)
	in.TextPtr("plan_to_lease_back_to_seller", &o.PlanToLeaseBackToSeller)
	in.TextPtr("waive_appraisal", &o.WaiveAppraisal)
	in.Bool("already_under_contract", &o.AlreadyUnderContract)
	in.Date("preferred_closing_date", &o.PreferredClosingDate)
	in.Date("finance_approved_close_date", &o.FinanceApprovedCloseDate)
	in.TextPtr("funding_type", &o.FundingType)
	in.TextPtr("pda_listing_uuid", &o.PDAListingUUID)
}

// purchaseApplier folds one purchase record into the new home purchase.
type purchaseApplier func(ctx context.Context, tx *lifecycle.Tx, nhp *domain.NewHomePurchase, in Fields) error

// mergePurchase upserts the new home purchase of the offer the record
// points at and links it to the offer and the application.
func (m *Merger) mergePurchase(ctx context.Context, rec gjson.Result, table *Table, apply purchaseApplier) error {
	in := table.Inbound(rec)
	offerSFID, ok := in["offer"]
	if !ok {
		return apperr.FieldError("Offer__c", "transaction has no offer")
	}
	return m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		offer, err := tx.FindOfferBySalesforceID(ctx, offerSFID)
		if err != nil {
			return err
		}
		app, err := tx.LockApplication(ctx, offer.ApplicationID)
		if err != nil {
			return err
		}
		var current *domain.NewHomePurchase
		if offer.NewHomePurchaseID != nil {
			n, err := tx.GetNewHomePurchase(ctx, *offer.NewHomePurchaseID)
			if err != nil {
				return err
			}
			current = &n
		}
		var next domain.NewHomePurchase
		if current != nil {
			next = *current
		}
		if err := apply(ctx, tx, &next, in); err != nil {
			return err
		}
		stored, err := upsertEntity(ctx, current, next, domain.SnapshotNewHomePurchase, tx.InsertNewHomePurchase, tx.UpdateNewHomePurchase)
		if err != nil {
			return err
		}
		if offer.NewHomePurchaseID == nil {
			offer.NewHomePurchaseID = &stored.ID
			if _, err := tx.UpdateOffer(ctx, offer); err != nil {
				return err
			}
		}
		if app.NewHomePurchaseID == nil || *app.NewHomePurchaseID != stored.ID {
			app.NewHomePurchaseID = &stored.ID
			if _, err := tx.UpdateApplication(ctx, app); err != nil {
				return err
			}
		}
		_, err = m.engine.RecomputeTx(ctx, tx, app.ID)
		return err
	})
}

func applyHomewardPurchase(ctx context.Context, tx *lifecycle.Tx, nhp *domain.NewHomePurchase, in Fields) error {
	in.Date("option_period_end_date", &nhp.OptionPeriodEndDate)
	in.Date("homeward_purchase_close_date", &nhp.HomewardPurchaseCloseDate)
	in.Decimal("contract_price", &nhp.ContractPrice)
	in.Decimal("earnest_deposit_percentage", &nhp.EarnestDepositPercentage)
	in.TextPtr("homeward_purchase_status", &nhp.HomewardPurchaseStatus)
	in.Bool("is_reassigned_contract", &nhp.IsReassignedContract)
	var current *domain.Address
	if nhp.AddressID != nil {
		addr, err := tx.GetAddress(ctx, *nhp.AddressID)
		if err != nil {
			return err
		}
		current = &addr
	}
	id, err := mergeAddress(ctx, tx, current, in.Sub("address."))
	if err != nil {
		return err
	}
	nhp.AddressID = id
	return nil
}

func applyCustomerPurchase(ctx context.Context, tx *lifecycle.Tx, nhp *domain.NewHomePurchase, in Fields) error {
	in.Date("customer_purchase_close_date", &nhp.CustomerPurchaseCloseDate)
	in.TextPtr("customer_purchase_status", &nhp.CustomerPurchaseStatus)

	r := in.Sub("rent.")
	if len(r) == 0 {
		return nil
	}
	var current *domain.Rent
	if nhp.RentID != nil {
		rent, err := tx.GetRent(ctx, *nhp.RentID)
		if err != nil {
			return err
		}
		current = &rent
	}
	var next domain.Rent
	if current != nil {
		next = *current
	}
	if v, ok := r["type"]; ok {
		for _, t := range []domain.RentType{domain.RentMonthly, domain.RentDeferred, domain.RentWaived} {
			if string(t) == v {
				next.Type = &t
			}
		}
	}
	r.Decimal("daily_rental_rate", &next.DailyRentalRate)
	r.Decimal("amount_months_one_and_two", &next.AmountMonthsOneAndTwo)
	r.Date("stop_rent_date", &next.StopRentDate)
	r.Decimal("total_waived_rent", &next.TotalWaivedRent)
	r.Decimal("total_leaseback_credit", &next.TotalLeasebackCredit)
	stored, err := upsertEntity(ctx, current, next, domain.SnapshotRent, tx.InsertRent, tx.UpdateRent)
	if err != nil {
		return err
	}
	nhp.RentID = &stored.ID
	return nil
}
