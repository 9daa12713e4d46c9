package memory

import (
	"maps"
	"slices"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"

	"github.com/google/uuid"
)

type taskKey struct {
	applicationID uuid.UUID
	name          domain.TaskName
}

// state is never mutated once published; transactions work on a clone.
type state struct {
	customers     map[uuid.UUID]domain.Customer
	applications  map[uuid.UUID]domain.Application
	addresses     map[uuid.UUID]domain.Address
	builders      map[uuid.UUID]domain.Builder
	lenders       map[uuid.UUID]domain.Lender
	agents        map[uuid.UUID]domain.Agent
	currentHomes  map[uuid.UUID]domain.CurrentHome
	valuations    map[uuid.UUID]domain.MarketValuation
	preapprovals  map[uuid.UUID]domain.Preapproval
	purchases     map[uuid.UUID]domain.NewHomePurchase
	rents         map[uuid.UUID]domain.Rent
	offers        map[uuid.UUID]domain.Offer
	loans         map[uuid.UUID]domain.Loan
	pricing       map[uuid.UUID]domain.Pricing
	supportUsers  map[uuid.UUID]domain.InternalSupportUser
	stakeholders  map[uuid.UUID]domain.Stakeholder
	notifications map[uuid.UUID]domain.Notification
	tasks         map[taskKey]domain.TaskStatus

	stageHistory         []domain.StageHistory
	notes                []domain.Note
	audit                []domain.AuditEntry
	notificationStatuses []domain.NotificationStatus
	outbox               []outbox.Record
}

func newState() *state {
	return &state{
		customers:     map[uuid.UUID]domain.Customer{},
		applications:  map[uuid.UUID]domain.Application{},
		addresses:     map[uuid.UUID]domain.Address{},
		builders:      map[uuid.UUID]domain.Builder{},
		lenders:       map[uuid.UUID]domain.Lender{},
		agents:        map[uuid.UUID]domain.Agent{},
		currentHomes:  map[uuid.UUID]domain.CurrentHome{},
		valuations:    map[uuid.UUID]domain.MarketValuation{},
		preapprovals:  map[uuid.UUID]domain.Preapproval{},
		purchases:     map[uuid.UUID]domain.NewHomePurchase{},
		rents:         map[uuid.UUID]domain.Rent{},
		offers:        map[uuid.UUID]domain.Offer{},
		loans:         map[uuid.UUID]domain.Loan{},
		pricing:       map[uuid.UUID]domain.Pricing{},
		supportUsers:  map[uuid.UUID]domain.InternalSupportUser{},
		stakeholders:  map[uuid.UUID]domain.Stakeholder{},
		notifications: map[uuid.UUID]domain.Notification{},
		tasks:         map[taskKey]domain.TaskStatus{},
	}
}

// clone copies the containers. Rows are values; rows holding slices or maps
// are deep-copied on the way in and out by cloneApplication/cloneCurrentHome.
func (s *state) clone() *state {
	return &state{
		customers:            maps.Clone(s.customers),
		applications:         maps.Clone(s.applications),
		addresses:            maps.Clone(s.addresses),
		builders:             maps.Clone(s.builders),
		lenders:              maps.Clone(s.lenders),
		agents:               maps.Clone(s.agents),
		currentHomes:         maps.Clone(s.currentHomes),
		valuations:           maps.Clone(s.valuations),
		preapprovals:         maps.Clone(s.preapprovals),
		purchases:            maps.Clone(s.purchases),
		rents:                maps.Clone(s.rents),
		offers:               maps.Clone(s.offers),
		loans:                maps.Clone(s.loans),
		pricing:              maps.Clone(s.pricing),
		supportUsers:         maps.Clone(s.supportUsers),
		stakeholders:         maps.Clone(s.stakeholders),
		notifications:        maps.Clone(s.notifications),
		tasks:                maps.Clone(s.tasks),
		stageHistory:         slices.Clone(s.stageHistory),
		notes:                slices.Clone(s.notes),
		audit:                slices.Clone(s.audit),
		notificationStatuses: slices.Clone(s.notificationStatuses),
		outbox:               slices.Clone(s.outbox),
	}
}

func cloneApplication(a domain.Application) domain.Application {
	a.FilterStatus = slices.Clone(a.FilterStatus)
	return a
}

func cloneCurrentHome(h domain.CurrentHome) domain.CurrentHome {
	h.Attributes = maps.Clone(h.Attributes)
	h.Images = slices.Clone(h.Images)
	return h
}
