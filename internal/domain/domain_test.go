package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStageRankOrdering(t *testing.T) {
	if !StageApproved.AtLeast(StageQualifiedApplication) {
		t.Fatalf("expected APPROVED to be at least QUALIFIED_APPLICATION")
	}
	if StageComplete.AtLeast(StageApproved) {
		t.Fatalf("expected COMPLETE to be before APPROVED")
	}
	if StageTrash.AtLeast(StageIncomplete) {
		t.Fatalf("expected TRASH to be off the main line")
	}
	if !StageTrash.Valid() || ApplicationStage("BOGUS").Valid() {
		t.Fatalf("unexpected stage validity")
	}
}

func TestParseProductOfferingAcceptsCRMForms(t *testing.T) {
	cases := map[string]ProductOffering{
		"BUY_SELL": ProductBuySell,
		"buy-only": ProductBuyOnly,
		"Buy_Only": ProductBuyOnly,
	}
	for raw, want := range cases {
		got, ok := ParseProductOffering(raw)
		if !ok || got != want {
			t.Fatalf("ParseProductOffering(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseProductOffering("rent"); ok {
		t.Fatalf("expected unknown offering to be rejected")
	}
}

func TestNormalizeEmailFoldsCase(t *testing.T) {
	if got := NormalizeEmail("  Brandon@Example.COM "); got != "brandon@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestDateArithmeticAndJSON(t *testing.T) {
	created := DateOf(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	if got := created.AddDays(21).String(); got != "2021-06-22" {
		t.Fatalf("unexpected AddDays result %s", got)
	}
	if got := created.AddMonths(18).String(); got != "2022-12-01" {
		t.Fatalf("unexpected AddMonths result %s", got)
	}
	if MustDate("2021-07-04").Weekday() != time.Sunday {
		t.Fatalf("expected 2021-07-04 to be a Sunday")
	}

	raw, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: created})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"d":"2021-06-01"}` {
		t.Fatalf("unexpected json %s", raw)
	}

	var back struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.D != created {
		t.Fatalf("expected %s, got %s", created, back.D)
	}
}

func TestDateScan(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d.String() != "2022-03-04" {
		t.Fatalf("unexpected scanned date %s", d)
	}
	if err := d.Scan("2023-01-02"); err != nil || d.String() != "2023-01-02" {
		t.Fatalf("scan string: %v %s", err, d)
	}
	if err := d.Scan(42); err == nil {
		t.Fatalf("expected error for int source")
	}
}

func TestDiffReportsChangedFieldsOnly(t *testing.T) {
	before := Application{Stage: StageIncomplete, MinPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))}
	after := before
	after.Stage = StageComplete

	changes := Diff(SnapshotApplication(before), SnapshotApplication(after))
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %v", changes)
	}
	if c := changes["stage"]; c.Before != "INCOMPLETE" || c.After != "COMPLETE" {
		t.Fatalf("unexpected stage change %+v", c)
	}
}

func TestLoanActive(t *testing.T) {
	if !(Loan{}).Active() {
		t.Fatalf("loan without status should be active")
	}
	if (Loan{Status: Ptr("Denied")}).Active() {
		t.Fatalf("denied loan should be inactive")
	}
}

func TestPropertyStreetPrefersNewHome(t *testing.T) {
	g := ApplicationGraph{
		CurrentHomeAddress: &Address{Street: "1 Old Road"},
		NewHomeAddress:     &Address{Street: "306 Plum Lane"},
	}
	street, ok := g.PropertyStreet()
	if !ok || street != "306 Plum Lane" {
		t.Fatalf("unexpected street %q", street)
	}
	g.NewHomeAddress = nil
	if street, _ := g.PropertyStreet(); street != "1 Old Road" {
		t.Fatalf("expected fallback to current home, got %q", street)
	}
}
