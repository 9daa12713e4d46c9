package salesforce

import (
	"context"
	"errors"
	"testing"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

func account(appID uuid.UUID, extra string) gjson.Result {
	return gjson.Parse(`{"Id":"001ACC","Homeward_ID__c":"` + appID.String() + `"` + extra + `}`)
}

func TestMergeAccountCreatesBuilderAndKeepsLoanAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		home, err := tx.InsertCurrentHome(ctx, domain.CurrentHome{
			OutstandingLoanAmount: decimal.NewNullDecimal(decimal.NewFromInt(200000)),
		})
		if err != nil {
			return err
		}
		a.CurrentHomeID = &home.ID
		return nil
	})

	rec := account(app.ID, `,"Builder_Company__c":"MHI","Builder_Street__c":"4000 Danli Lane","Outstanding_Loan_Amount__c":null`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}

	g := h.graph(app.ID)
	if g.Builder == nil || domain.Deref(g.Builder.Company) != "MHI" {
		t.Fatalf("expected builder MHI, got %+v", g.Builder)
	}
	if g.BuilderAddress == nil || g.BuilderAddress.Street != "4000 Danli Lane" {
		t.Fatalf("expected builder address, got %+v", g.BuilderAddress)
	}
	if !g.CurrentHome.OutstandingLoanAmount.Valid || !g.CurrentHome.OutstandingLoanAmount.Decimal.Equal(decimal.NewFromInt(200000)) {
		t.Fatalf("outstanding loan amount changed to %v", g.CurrentHome.OutstandingLoanAmount)
	}
	if domain.Deref(g.Application.SalesforceID) != "001ACC" {
		t.Fatalf("expected account id recorded, got %v", g.Application.SalesforceID)
	}
}

func TestMergeAccountAssignsCxManagerOnlyFromCxProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	var existing uuid.UUID
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		u, err := tx.UpsertSupportUser(ctx, domain.InternalSupportUser{Role: domain.RoleCxManager, SalesforceID: domain.Ptr("005X"), Name: "Xavier"})
		if err != nil {
			return err
		}
		existing = u.ID
		a.CxManagerID = &u.ID
		return nil
	})

	rec := account(app.ID, `,"OwnerId":"005AE","Owner":{"Name":"Avery","Profile":{"Name":"Account Executive"}}`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := h.application(app.ID).CxManagerID; got == nil || *got != existing {
		t.Fatalf("non-CX owner replaced the CX manager: %v", got)
	}

	rec = account(app.ID, `,"OwnerId":"005CX","Owner":{"Name":"Casey","Email":"casey@example.com","Profile":{"Name":"CXA"}}`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := h.application(app.ID).CxManagerID
	if got == nil || *got == existing {
		t.Fatalf("expected a new CX manager, got %v", got)
	}
	u, err := h.st.GetSupportUser(ctx, *got)
	if err != nil {
		t.Fatal(err)
	}
	if domain.Deref(u.SalesforceID) != "005CX" || u.Name != "Casey" || u.Role != domain.RoleCxManager {
		t.Fatalf("unexpected support user %+v", u)
	}
}

func TestMergeAccountNullsNeverClearLocalValues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.MinPrice = decimal.NewNullDecimal(decimal.NewFromInt(100000))
		a.LeadStatus = domain.Ptr("Hot")
		return nil
	})

	rec := account(app.ID, `,"Min_Price__c":null,"Lead_Status__c":null,"Max_Price__c":300000,"LastName":"NotProvided","FirstName":"Dana"`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	g := h.graph(app.ID)
	if !g.Application.MinPrice.Decimal.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("min price cleared: %v", g.Application.MinPrice)
	}
	if domain.Deref(g.Application.LeadStatus) != "Hot" {
		t.Fatalf("lead status cleared: %v", g.Application.LeadStatus)
	}
	if !g.Application.MaxPrice.Decimal.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("max price not merged: %v", g.Application.MaxPrice)
	}
	if g.Customer.FirstName != "Dana" || g.Customer.LastName != "" {
		t.Fatalf("unexpected customer name %q %q", g.Customer.FirstName, g.Customer.LastName)
	}
}

func TestMergeAccountSkipsAmbiguousEmail(t *testing.T) {
	h := newHarness(t)
	h.createApplication("dup@example.com")
	h.createApplication("dup@example.com")

	err := h.merger.Merge(context.Background(), RecordAccount, gjson.Parse(`{"Id":"001AMB","PersonEmail":"dup@example.com"}`))
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestMergeAccountLinksAgents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	var local domain.Agent
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, _ *domain.Application) error {
		var err error
		local, err = tx.InsertAgent(ctx, domain.Agent{Name: "Lee Local", Email: domain.Ptr("lee@realty.com")})
		return err
	})
	h.crm.seed(ObjectContact, "003L", map[string]any{"Name": "Lee Remote", "Email": "lee@realty.com"})
	h.crm.seed(ObjectContact, "003B", map[string]any{"Name": "Bo Buyer", "Email": "bo@realty.com", "Brokerage__c": "Acme Realty"})

	rec := account(app.ID, `,"Listing_Agent__c":"003L","Buying_Agent__c":"003B"`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	g := h.graph(app.ID)
	if g.ListingAgent == nil || g.ListingAgent.ID != local.ID || g.ListingAgent.Name != "Lee Local" {
		t.Fatalf("expected the local agent adopted unchanged, got %+v", g.ListingAgent)
	}
	if g.BuyingAgent == nil || g.BuyingAgent.Name != "Bo Buyer" || domain.Deref(g.BuyingAgent.SalesforceID) != "003B" {
		t.Fatalf("expected the buying agent created from the contact, got %+v", g.BuyingAgent)
	}
	if domain.Deref(g.BuyingAgent.Company) != "Acme Realty" {
		t.Fatalf("expected brokerage copied, got %v", g.BuyingAgent.Company)
	}
}

func TestMergeAccountUnknownAccountIsNotFound(t *testing.T) {
	h := newHarness(t)
	err := h.merger.Merge(context.Background(), RecordAccount, gjson.Parse(`{"Id":"001NONE","PersonEmail":"nobody@example.com"}`))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// linkedApplication creates an application already mirrored as account 001T.
func linkedApplication(h *harness) domain.Application {
	app := h.createApplication("brandon@example.com")
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.SalesforceID = domain.Ptr("001T")
		return nil
	})
	return app
}

func TestMergeOfferTransactionCreatesOfferAndWritesBackID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := linkedApplication(h)
	h.crm.seed(ObjectOffer, "a0T", map[string]any{"Account__c": "001T"})

	rec := gjson.Parse(`{"Id":"a0T","RecordType":{"Name":"Offer"},"Account__c":"001T","Status__c":"REQUESTED",
		"Offer_Price__c":400000,"Preferred_Closing_Date__c":"2024-04-15","Property_Street__c":"306 Plum Lane"}`)
	if err := h.merger.Merge(ctx, RecordTransaction, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	offers, err := h.st.ListOffers(ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %d", len(offers))
	}
	offer := offers[0]
	if domain.Deref(offer.SalesforceID) != "a0T" || !offer.OfferPrice.Decimal.Equal(decimal.NewFromInt(400000)) {
		t.Fatalf("unexpected offer %+v", offer)
	}
	if offer.PreferredClosingDate == nil || *offer.PreferredClosingDate != domain.NewDate(2024, 4, 15) {
		t.Fatalf("unexpected preferred closing date %v", offer.PreferredClosingDate)
	}
	if got := h.crm.record(ObjectOffer, "a0T")["Homeward_ID__c"]; got != offer.ID.String() {
		t.Fatalf("expected the local id written back, got %v", got)
	}

	if err := h.merger.Merge(ctx, RecordTransaction, rec); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if offers, _ := h.st.ListOffers(ctx, app.ID); len(offers) != 1 {
		t.Fatalf("expected the offer to be reused, got %d", len(offers))
	}
}

func TestMergeOfferTransactionWritesBackIDForKnownOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := linkedApplication(h)

	var offer domain.Offer
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		var err error
		offer, err = tx.InsertOffer(ctx, domain.Offer{ApplicationID: a.ID, Status: domain.OfferRequested, SalesforceID: domain.Ptr("a0U")})
		return err
	})
	h.crm.seed(ObjectOffer, "a0U", map[string]any{"Account__c": "001T"})

	rec := gjson.Parse(`{"Id":"a0U","RecordType":{"Name":"Offer"},"Account__c":"001T","Status__c":"REQUESTED","Offer_Price__c":410000}`)
	if err := h.merger.Merge(ctx, RecordTransaction, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	offers, err := h.st.ListOffers(ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].ID != offer.ID {
		t.Fatalf("expected the existing offer to be matched by CRM id, got %+v", offers)
	}
	if got := h.crm.record(ObjectOffer, "a0U")["Homeward_ID__c"]; got != offer.ID.String() {
		t.Fatalf("expected the local id written back, got %v", got)
	}

	h.crm.seed(ObjectOffer, "a0U", map[string]any{"Account__c": "001T"})
	withID := gjson.Parse(`{"Id":"a0U","RecordType":{"Name":"Offer"},"Account__c":"001T","Status__c":"REQUESTED","Homeward_ID__c":"` + offer.ID.String() + `"}`)
	if err := h.merger.Merge(ctx, RecordTransaction, withID); err != nil {
		t.Fatalf("merge with id: %v", err)
	}
	if _, written := h.crm.record(ObjectOffer, "a0U")["Homeward_ID__c"]; written {
		t.Fatal("a record carrying the local id must not be written back")
	}
}

func TestMergePurchaseTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := linkedApplication(h)
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		_, err := tx.InsertOffer(ctx, domain.Offer{ApplicationID: a.ID, Status: domain.OfferWon, SalesforceID: domain.Ptr("a0T")})
		return err
	})

	homeward := gjson.Parse(`{"Id":"a1H","RecordType":{"Name":"HomewardPurchase"},"Offer__c":"a0T",
		"Contract_Price__c":525000,"Option_Period_End_Date__c":"2024-03-11","Property_Street__c":"306 Plum Lane","Is_Reassigned_Contract__c":false}`)
	if err := h.merger.Merge(ctx, RecordTransaction, homeward); err != nil {
		t.Fatalf("merge homeward purchase: %v", err)
	}
	customer := gjson.Parse(`{"Id":"a1C","RecordType":{"Name":"CustomerPurchase"},"Offer__c":"a0T",
		"Close_Date__c":"2024-04-20","Status__c":"Scheduled","Rent_Type__c":"Monthly","Rent_Amount_Months_One_And_Two__c":5000}`)
	if err := h.merger.Merge(ctx, RecordTransaction, customer); err != nil {
		t.Fatalf("merge customer purchase: %v", err)
	}

	g := h.graph(app.ID)
	nhp := g.NewHomePurchase
	if nhp == nil {
		t.Fatal("expected a new home purchase linked to the application")
	}
	if !nhp.ContractPrice.Decimal.Equal(decimal.NewFromInt(525000)) {
		t.Fatalf("unexpected contract price %v", nhp.ContractPrice)
	}
	if nhp.CustomerPurchaseCloseDate == nil || *nhp.CustomerPurchaseCloseDate != domain.NewDate(2024, 4, 20) {
		t.Fatalf("unexpected customer close date %v", nhp.CustomerPurchaseCloseDate)
	}
	if g.NewHomeAddress == nil || g.NewHomeAddress.Street != "306 Plum Lane" {
		t.Fatalf("unexpected new home address %+v", g.NewHomeAddress)
	}
	if g.Rent == nil || g.Rent.Type == nil || *g.Rent.Type != domain.RentMonthly {
		t.Fatalf("unexpected rent %+v", g.Rent)
	}
	offer := g.LatestOffer()
	if offer == nil || offer.NewHomePurchaseID == nil || *offer.NewHomePurchaseID != nhp.ID {
		t.Fatal("expected the offer linked to the purchase")
	}
}

func TestMergeOldHomeSaleIsSkipped(t *testing.T) {
	h := newHarness(t)
	err := h.merger.Merge(context.Background(), RecordTransaction, gjson.Parse(`{"Id":"a1O","RecordType":{"Name":"OldHomeSale"}}`))
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestMergeLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := linkedApplication(h)

	err := h.merger.Merge(ctx, RecordLoan, gjson.Parse(`{"Id":"a2L","Blend_Application_ID__c":"B-1"}`))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error without Customer__c, got %v", err)
	}

	for _, status := range []string{"Active", "Denied"} {
		rec := gjson.Parse(`{"Id":"a2L","Customer__c":"001T","Blend_Application_ID__c":"B-1","Status__c":"` + status + `"}`)
		if err := h.merger.Merge(ctx, RecordLoan, rec); err != nil {
			t.Fatalf("merge loan %s: %v", status, err)
		}
	}
	loans, err := h.st.ListLoans(ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 1 || domain.Deref(loans[0].Status) != "Denied" {
		t.Fatalf("expected one denied loan, got %+v", loans)
	}
}

func TestSyncFetchesAndMergesAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	h.crm.seed(ObjectAccount, "001S", map[string]any{"Homeward_ID__c": app.ID.String(), "Lead_Status__c": "Warm"})

	if err := h.merger.Sync(ctx, RecordAccount, "001S"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got := h.application(app.ID)
	if domain.Deref(got.LeadStatus) != "Warm" || domain.Deref(got.SalesforceID) != "001S" {
		t.Fatalf("unexpected application %+v", got)
	}
}

func TestMergeOrSyncFetchesBareIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := linkedApplication(h)
	h.crm.seed(ObjectAccount, "001T", map[string]any{"Homeward_ID__c": app.ID.String(), "Move_In__c": "ASAP"})

	queue := InlineSync{Merger: h.merger}
	if err := queue.EnqueueSync(ctx, RecordAccount, []byte(`{"Id":"001T","attributes":{"type":"Account"}}`)); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := domain.Deref(h.application(app.ID).MoveIn); got != "ASAP" {
		t.Fatalf("expected the fetched record merged, got %q", got)
	}

	if err := queue.EnqueueSync(ctx, RecordAccount, []byte(`{"Name":"no id"}`)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestMergeAccountNeverDowngradesBuySell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.createApplication("brandon@example.com")
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.ProductOffering = domain.ProductBuySell
		return nil
	})

	if err := h.merger.Merge(ctx, RecordAccount, account(app.ID, `,"Product_Offering__c":"BUY_ONLY"`)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := h.application(app.ID).ProductOffering; got != domain.ProductBuySell {
		t.Fatalf("buy-sell downgraded to %q", got)
	}

	other := h.createApplication("dana@example.com")
	h.edit(other.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.ProductOffering = domain.ProductBuyOnly
		return nil
	})
	rec := gjson.Parse(`{"Id":"001DANA","Homeward_ID__c":"` + other.ID.String() + `","Product_Offering__c":"BUY_SELL"}`)
	if err := h.merger.Merge(ctx, RecordAccount, rec); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := h.application(other.ID).ProductOffering; got != domain.ProductBuySell {
		t.Fatalf("buy-only was not upgraded, got %q", got)
	}
}
