package salesforce

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"bbys_backend/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// CRM object names.
const (
	ObjectAccount     = "Account"
	ObjectOldHome     = "Old_Home__c"
	ObjectContact     = "Contact"
	ObjectQuote       = "Quote__c"
	ObjectLoan        = "Loan__c"
	ObjectOffer       = "Offer__c"
	ObjectTransaction = "Transaction__c"
	ObjectUser        = "User"
)

// FieldType drives the conversion between local strings and CRM JSON values.
type FieldType int

const (
	Text FieldType = iota
	Number
	Date
	Bool
	DateTime
)

// Direction limits an alias to one side of the sync.
type Direction int

const (
	Both Direction = iota
	InboundOnly
	OutboundOnly
)

// Alias binds a local field name to its CRM attribute. Remote may be a
// dotted path into a related record for inbound-only aliases.
type Alias struct {
	Local     string
	Remote    string
	Type      FieldType
	Direction Direction
	// Out converts the local value before it is sent.
	Out func(string) string
}

// Table is the bidirectional alias mapping of one CRM object. Renaming an
// entry is a breaking change of the CRM integration.
type Table struct {
	Object   string
	aliases  []Alias
	byLocal  map[string]Alias
	byRemote map[string]Alias
}

// NewTable builds a table and panics on a duplicated local or remote name.
func NewTable(object string, aliases ...Alias) *Table {
	t := &Table{
		Object:   object,
		aliases:  aliases,
		byLocal:  make(map[string]Alias, len(aliases)),
		byRemote: make(map[string]Alias, len(aliases)),
	}
	for _, a := range aliases {
		if _, dup := t.byLocal[a.Local]; dup {
			panic(fmt.Sprintf("salesforce: %s: duplicate local field %q", object, a.Local))
		}
		if _, dup := t.byRemote[a.Remote]; dup {
			panic(fmt.Sprintf("salesforce: %s: duplicate remote field %q", object, a.Remote))
		}
		t.byLocal[a.Local] = a
		t.byRemote[a.Remote] = a
	}
	return t
}

// Remote returns the CRM attribute of a local field.
func (t *Table) Remote(local string) (string, bool) {
	a, ok := t.byLocal[local]
	return a.Remote, ok
}

// Local returns the local field of a CRM attribute.
func (t *Table) Local(remote string) (string, bool) {
	a, ok := t.byRemote[remote]
	return a.Local, ok
}

// Outbound renders the outbound-capable fields of a snapshot as a CRM
// payload. Empty values are left out so a push never clears CRM data.
func (t *Table) Outbound(s domain.Snapshot) map[string]any {
	out := make(map[string]any, len(s))
	for _, a := range t.aliases {
		if a.Direction == InboundOnly {
			continue
		}
		v, ok := s[a.Local]
		if !ok || v == "" {
			continue
		}
		if a.Out != nil {
			v = a.Out(v)
		}
		switch a.Type {
		case Number:
			out[a.Remote] = json.Number(v)
		case Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				continue
			}
			out[a.Remote] = b
		default:
			out[a.Remote] = v
		}
	}
	return out
}

// Inbound reads every inbound-capable alias from a CRM record. Null and
// missing attributes are absent from the result.
func (t *Table) Inbound(rec gjson.Result) Fields {
	in := Fields{}
	for _, a := range t.aliases {
		if a.Direction == OutboundOnly {
			continue
		}
		v := rec.Get(a.Remote)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s, ok := inboundValue(a.Type, v); ok {
			in[a.Local] = s
		}
	}
	return in
}

func inboundValue(typ FieldType, v gjson.Result) (string, bool) {
	switch typ {
	case Number:
		d, err := decimal.NewFromString(strings.TrimSpace(v.Raw))
		if err != nil {
			if d, err = decimal.NewFromString(v.String()); err != nil {
				return "", false
			}
		}
		return d.String(), true
	case Bool:
		return strconv.FormatBool(v.Bool()), true
	case Date:
		d, err := domain.ParseDate(v.String())
		if err != nil {
			return "", false
		}
		return d.String(), true
	case DateTime:
		ts, err := parseTimestamp(v.String())
		if err != nil {
			return "", false
		}
		return ts.UTC().Format(time.RFC3339Nano), true
	default:
		s := strings.TrimSpace(v.String())
		return s, s != ""
	}
}

// parseTimestamp accepts RFC 3339 and the CRM form with a numeric offset
// and no colon, e.g. 2021-06-01T12:00:00.000+0000.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05.000-0700", s)
}

// Select lists the remote attributes for a SOQL SELECT clause.
func (t *Table) Select() string {
	fields := []string{"Id"}
	for _, a := range t.aliases {
		if a.Direction != OutboundOnly && a.Remote != "Id" {
			fields = append(fields, a.Remote)
		}
	}
	sort.Strings(fields[1:])
	return strings.Join(fields, ", ")
}

// Fields are inbound values keyed by local field name. A key is present only
// when the CRM sent a non-null value.
type Fields map[string]string

// Has reports whether any of keys is present.
func (f Fields) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := f[k]; ok {
			return true
		}
	}
	return false
}

// Sub returns the fields under prefix with the prefix removed.
func (f Fields) Sub(prefix string) Fields {
	out := Fields{}
	for k, v := range f {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// Text overwrites *dst when key is present.
func (f Fields) Text(key string, dst *string) {
	if v, ok := f[key]; ok {
		*dst = v
	}
}

// TextPtr overwrites *dst when key is present.
func (f Fields) TextPtr(key string, dst **string) {
	if v, ok := f[key]; ok {
		*dst = &v
	}
}

// Decimal overwrites *dst when key is present.
func (f Fields) Decimal(key string, dst *decimal.NullDecimal) {
	if v, ok := f[key]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = decimal.NewNullDecimal(d)
		}
	}
}

// Date overwrites *dst when key is present.
func (f Fields) Date(key string, dst **domain.Date) {
	if v, ok := f[key]; ok {
		if d, err := domain.ParseDate(v); err == nil {
			*dst = &d
		}
	}
}

// Bool overwrites *dst when key is present.
func (f Fields) Bool(key string, dst *bool) {
	if v, ok := f[key]; ok {
		*dst = v == "true"
	}
}

// BoolPtr overwrites *dst when key is present.
func (f Fields) BoolPtr(key string, dst **bool) {
	if v, ok := f[key]; ok {
		b := v == "true"
		*dst = &b
	}
}

// Int overwrites *dst when key is present and integral.
func (f Fields) Int(key string, dst **int) {
	if v, ok := f[key]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			n := int(d.IntPart())
			*dst = &n
		}
	}
}

// Time overwrites *dst when key is present.
func (f Fields) Time(key string, dst **time.Time) {
	if v, ok := f[key]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			*dst = &ts
		}
	}
}

// crmProductOffering renders buy-sell as BUY_SELL.
func crmProductOffering(v string) string {
	return strings.ToUpper(strings.ReplaceAll(v, "-", "_"))
}

func address(prefix, street, unit, city, state, zip string) []Alias {
	return []Alias{
		{Local: prefix + "street", Remote: street},
		{Local: prefix + "unit", Remote: unit},
		{Local: prefix + "city", Remote: city},
		{Local: prefix + "state", Remote: state},
		{Local: prefix + "zip", Remote: zip},
	}
}

func join(groups ...[]Alias) []Alias {
	var out []Alias
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func inbound(aliases []Alias) []Alias {
	for i := range aliases {
		aliases[i].Direction = InboundOnly
	}
	return aliases
}

// AccountFields maps the person account: the application, its customer and
// the denormalized relations the CRM edits in place.
var AccountFields = NewTable(ObjectAccount, join(
	[]Alias{
		{Local: "id", Remote: "Homeward_ID__c"},
		{Local: "stage", Remote: "Status__c"},
		{Local: "lead_status", Remote: "Lead_Status__c"},
		{Local: "mortgage_status", Remote: "Mortgage_Status__c"},
		{Local: "product_offering", Remote: "Product_Offering__c", Out: crmProductOffering},
		{Local: "min_price", Remote: "Min_Price__c", Type: Number},
		{Local: "max_price", Remote: "Max_Price__c", Type: Number},
		{Local: "move_in", Remote: "Move_In__c"},
		{Local: "hw_mortgage_candidate", Remote: "HW_Mortgage_Candidate__c"},
		{Local: "apex_partner_slug", Remote: "Apex_Partner_Slug__c"},
		{Local: "homeward_owner_email", Remote: "Homeward_Owner_Email__c"},
		{Local: "blend_status", Remote: "Blend_Status__c"},
		{Local: "property_state", Remote: "Property_State__c"},
		{Local: "registered_client", Remote: "Registered_Client__c", Type: Bool},
		{Local: "disclosures_acknowledged_at", Remote: "Disclosures_Acknowledged_At__c", Type: DateTime},
		{Local: "service_agreement_acknowledged_at", Remote: "Service_Agreement_Acknowledged_At__c", Type: DateTime},
		{Local: "listing_agent", Remote: "Listing_Agent__c"},
		{Local: "buying_agent", Remote: "Buying_Agent__c"},
		{Local: "customer.email", Remote: "PersonEmail"},
		{Local: "customer.first_name", Remote: "FirstName"},
		{Local: "customer.last_name", Remote: "LastName"},
		{Local: "customer.phone", Remote: "Phone"},
		{Local: "customer.co_borrower_email", Remote: "Co_Borrower_Email__c"},
		{Local: "customer.account_created_at", Remote: "Customer_Account_Created_At__c", Type: DateTime},
		{Local: "customer.last_login_at", Remote: "Last_Login__c", Type: DateTime},
	},
	inbound(join(
		[]Alias{
			{Local: "owner", Remote: "OwnerId"},
			{Local: "owner.profile", Remote: "Owner.Profile.Name"},
			{Local: "owner.name", Remote: "Owner.Name"},
			{Local: "owner.email", Remote: "Owner.Email"},
			{Local: "owner.phone", Remote: "Owner.Phone"},
			{Local: "loan_advisor", Remote: "Loan_Advisor__c"},
			{Local: "approval_specialist", Remote: "Approval_Specialist__c"},
			{Local: "builder.company", Remote: "Builder_Company__c"},
			{Local: "builder.representative_name", Remote: "Builder_Representative_Name__c"},
			{Local: "builder.representative_email", Remote: "Builder_Representative_Email__c"},
			{Local: "builder.representative_phone", Remote: "Builder_Representative_Phone__c"},
			{Local: "lender.company", Remote: "Lender_Company__c"},
			{Local: "lender.loan_officer_name", Remote: "Loan_Officer_Name__c"},
			{Local: "lender.loan_officer_email", Remote: "Loan_Officer_Email__c"},
			{Local: "lender.loan_officer_phone", Remote: "Loan_Officer_Phone__c"},
			{Local: "current_home.floor_price_type", Remote: "Floor_Price_Type__c"},
			{Local: "current_home.floor_price_amount", Remote: "Floor_Price__c", Type: Number},
			{Local: "current_home.floor_price_preliminary_amount", Remote: "Preliminary_Floor_Price__c", Type: Number},
			{Local: "current_home.market_value", Remote: "Market_Value__c", Type: Number},
			{Local: "current_home.outstanding_loan_amount", Remote: "Outstanding_Loan_Amount__c", Type: Number},
			{Local: "preapproval.amount", Remote: "Preapproval_Amount__c", Type: Number},
			{Local: "preapproval.estimated_down_payment", Remote: "Estimated_Down_Payment__c", Type: Number},
			{Local: "preapproval.vpal_approval_date", Remote: "VPAL_Approval_Date__c", Type: Date},
			{Local: "preapproval.hw_mortgage_conditions", Remote: "HW_Mortgage_Conditions__c"},
			{Local: "new_home_purchase.option_period_end_date", Remote: "Option_Period_End_Date__c", Type: Date},
			{Local: "new_home_purchase.homeward_purchase_close_date", Remote: "Homeward_Purchase_Close_Date__c", Type: Date},
			{Local: "new_home_purchase.contract_price", Remote: "Contract_Price__c", Type: Number},
			{Local: "new_home_purchase.is_reassigned_contract", Remote: "Is_Reassigned_Contract__c", Type: Bool},
			{Local: "tc.email", Remote: "Transaction_Coordinator_Email__c"},
			{Local: "tc.name", Remote: "Transaction_Coordinator_Name__c"},
		},
		address("builder.address.", "Builder_Street__c", "Builder_Unit__c", "Builder_City__c", "Builder_State__c", "Builder_Zip__c"),
		address("offer_property.", "Offer_Property_Street__c", "Offer_Property_Unit__c", "Offer_Property_City__c", "Offer_Property_State__c", "Offer_Property_Zip__c"),
		address("current_home.address.", "BillingStreet", "Billing_Unit__c", "BillingCity", "BillingState", "BillingPostalCode"),
		address("new_home_purchase.address.", "New_Home_Street__c", "New_Home_Unit__c", "New_Home_City__c", "New_Home_State__c", "New_Home_Zip__c"),
	)),
)...)

// OldHomeFields maps the current home.
var OldHomeFields = NewTable(ObjectOldHome, join(
	[]Alias{
		{Local: "id", Remote: "Homeward_ID__c"},
		{Local: "account", Remote: "Account__c"},
		{Local: "market_value", Remote: "Market_Value__c", Type: Number},
		{Local: "outstanding_loan_amount", Remote: "Outstanding_Loan_Amount__c", Type: Number},
		{Local: "customer_value_opinion", Remote: "Customer_Value_Opinion__c", Type: Number},
		{Local: "floor_price_type", Remote: "Floor_Price_Type__c"},
		{Local: "floor_price_amount", Remote: "Floor_Price__c", Type: Number},
		{Local: "floor_price_preliminary_amount", Remote: "Preliminary_Floor_Price__c", Type: Number},
	},
	address("address.", "Street__c", "Unit__c", "City__c", "State__c", "Zip__c"),
)...)

// ContactFields maps real estate agents.
var ContactFields = NewTable(ObjectContact,
	Alias{Local: "id", Remote: "Homeward_ID__c"},
	Alias{Local: "name", Remote: "Name", Direction: InboundOnly},
	Alias{Local: "first_name", Remote: "FirstName", Direction: OutboundOnly},
	Alias{Local: "last_name", Remote: "LastName", Direction: OutboundOnly},
	Alias{Local: "email", Remote: "Email"},
	Alias{Local: "phone", Remote: "Phone"},
	Alias{Local: "company", Remote: "Brokerage__c"},
)

// QuoteFields maps fast-track pricing estimates.
var QuoteFields = NewTable(ObjectQuote,
	Alias{Local: "id", Remote: "Homeward_ID__c"},
	Alias{Local: "account", Remote: "Account__c"},
	Alias{Local: "contact_email", Remote: "Contact_Email__c"},
	Alias{Local: "agent_email", Remote: "Agent_Email__c"},
	Alias{Local: "product_offering", Remote: "Product_Offering__c", Out: crmProductOffering},
	Alias{Local: "estimated_home_value", Remote: "Estimated_Home_Value__c", Type: Number},
	Alias{Local: "estimated_convenience_fee", Remote: "Estimated_Convenience_Fee__c", Type: Number},
)

// LoanFields maps loan files. Customer__c is the person account.
var LoanFields = NewTable(ObjectLoan,
	Alias{Local: "id", Remote: "Homeward_ID__c"},
	Alias{Local: "customer", Remote: "Customer__c"},
	Alias{Local: "status", Remote: "Status__c"},
	Alias{Local: "denial_reason", Remote: "Denial_Reason__c"},
	Alias{Local: "blend_application_id", Remote: "Blend_Application_ID__c"},
	Alias{Local: "base_convenience_fee", Remote: "Base_Convenience_Fee__c", Type: Number},
	Alias{Local: "estimated_broker_credit", Remote: "Estimated_Broker_Credit__c", Type: Number},
	Alias{Local: "estimated_mortgage_credit", Remote: "Estimated_Mortgage_Credit__c", Type: Number},
	Alias{Local: "estimated_daily_rent", Remote: "Estimated_Daily_Rent__c", Type: Number},
	Alias{Local: "estimated_monthly_rent", Remote: "Estimated_Monthly_Rent__c", Type: Number},
	Alias{Local: "estimated_earnest_deposit_percentage", Remote: "Estimated_Earnest_Deposit_Percentage__c", Type: Number},
)

// OfferFields maps offers, both as Offer__c and as Offer transactions.
var OfferFields = NewTable(ObjectOffer, join(
	[]Alias{
		{Local: "id", Remote: "Homeward_ID__c"},
		{Local: "account", Remote: "Account__c"},
		{Local: "status", Remote: "Status__c"},
		{Local: "offer_price", Remote: "Offer_Price__c", Type: Number},
		{Local: "contract_type", Remote: "Contract_Type__c"},
		{Local: "property_type", Remote: "Property_Type__c"},
		{Local: "less_than_one_acre", Remote: "Less_Than_One_Acre__c", Type: Bool},
		{Local: "year_built", Remote: "Year_Built__c", Type: Number},
		{Local: "home_square_footage", Remote: "Home_Square_Footage__c", Type: Number},
		{Local: "home_list_price", Remote: "Home_List_Price__c", Type: Number},
		{Local: "offer_deadline", Remote: "Offer_Deadline__c", Type: DateTime},
		{Local: "other_offers", Remote: "Other_Offers__c"},
		{Local: "plan_to_lease_back_to_seller", Remote: "Plan_To_Lease_Back_To_Seller__c"},
		{Local: "waive_appraisal", Remote: "Waive_Appraisal__c"},
		{Local: "already_under_contract", Remote: "Already_Under_Contract__c", Type: Bool},
		{Local: "preferred_closing_date", Remote: "Preferred_Closing_Date__c", Type: Date},
		{Local: "finance_approved_close_date", Remote: "Finance_Approved_Close_Date__c", Type: Date},
		{Local: "funding_type", Remote: "Funding_Type__c"},
		{Local: "pda_listing_uuid", Remote: "PDA_Listing_UUID__c"},
	},
	address("address.", "Property_Street__c", "Property_Unit__c", "Property_City__c", "Property_State__c", "Property_Zip__c"),
)...)

// HomewardPurchaseFields maps the HomewardPurchase transaction onto the
// new home purchase of an offer.
var HomewardPurchaseFields = NewTable(ObjectTransaction, join(
	[]Alias{
		{Local: "offer", Remote: "Offer__c"},
		{Local: "option_period_end_date", Remote: "Option_Period_End_Date__c", Type: Date},
		{Local: "homeward_purchase_close_date", Remote: "Close_Date__c", Type: Date},
		{Local: "contract_price", Remote: "Contract_Price__c", Type: Number},
		{Local: "earnest_deposit_percentage", Remote: "Earnest_Deposit_Percentage__c", Type: Number},
		{Local: "homeward_purchase_status", Remote: "Status__c"},
		{Local: "is_reassigned_contract", Remote: "Is_Reassigned_Contract__c", Type: Bool},
	},
	address("address.", "Property_Street__c", "Property_Unit__c", "Property_City__c", "Property_State__c", "Property_Zip__c"),
)...)

// CustomerPurchaseFields maps the CustomerPurchase transaction onto the
// customer side of a new home purchase and its rent.
var CustomerPurchaseFields = NewTable(ObjectTransaction,
	Alias{Local: "offer", Remote: "Offer__c"},
	Alias{Local: "customer_purchase_close_date", Remote: "Close_Date__c", Type: Date},
	Alias{Local: "customer_purchase_status", Remote: "Status__c"},
	Alias{Local: "rent.type", Remote: "Rent_Type__c"},
	Alias{Local: "rent.daily_rental_rate", Remote: "Daily_Rental_Rate__c", Type: Number},
	Alias{Local: "rent.amount_months_one_and_two", Remote: "Rent_Amount_Months_One_And_Two__c", Type: Number},
	Alias{Local: "rent.stop_rent_date", Remote: "Stop_Rent_Date__c", Type: Date},
	Alias{Local: "rent.total_waived_rent", Remote: "Total_Waived_Rent__c", Type: Number},
	Alias{Local: "rent.total_leaseback_credit", Remote: "Total_Leaseback_Credit__c", Type: Number},
)

// UserFields maps internal support users.
var UserFields = NewTable(ObjectUser,
	Alias{Local: "name", Remote: "Name", Direction: InboundOnly},
	Alias{Local: "email", Remote: "Email", Direction: InboundOnly},
	Alias{Local: "phone", Remote: "Phone", Direction: InboundOnly},
	Alias{Local: "photo_url", Remote: "FullPhotoUrl", Direction: InboundOnly},
	Alias{Local: "bio", Remote: "AboutMe", Direction: InboundOnly},
	Alias{Local: "schedule_a_call_url", Remote: "Schedule_A_Call_URL__c", Direction: InboundOnly},
)
