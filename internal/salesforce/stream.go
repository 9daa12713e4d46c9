package salesforce

import (
	"context"
	"encoding/json"
	"fmt"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/kafka"
	"bbys_backend/platform/logger"
)

// pushKinds are the entity kinds mirrored in the CRM.
var pushKinds = map[domain.EntityKind]bool{
	domain.KindApplication: true,
	domain.KindCustomer:    true,
	domain.KindCurrentHome: true,
	domain.KindAgent:       true,
	domain.KindLoan:        true,
	domain.KindPricing:     true,
	domain.KindOffer:       true,
}

// Triggers turns committed entity changes into push jobs. Changes merged
// from the CRM are not pushed back.
type Triggers struct {
	queue Queue
	log   *logger.Logger
}

func NewTriggers(queue Queue, log *logger.Logger) *Triggers {
	return &Triggers{queue: queue, log: log}
}

func (t *Triggers) RegisterHandlers(bus events.Subscriber) {
	bus.Subscribe(events.NameEntityChanged, t)
	bus.Subscribe(events.NameUserLoggedIn, t)
}

func (t *Triggers) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.EntityChanged:
		if e.Source == lifecycle.SourceSalesforce || !pushKinds[e.Kind] {
			return nil
		}
		return t.queue.EnqueuePush(ctx, Job{Kind: e.Kind, EntityID: e.EntityID, ApplicationID: e.ApplicationID})
	case events.UserLoggedIn:
		appID := e.ApplicationID
		return t.queue.EnqueuePush(ctx, Job{Kind: domain.KindUserLogin, EntityID: e.CustomerID, ApplicationID: &appID})
	}
	return nil
}

// Publisher is the producing side of the push stream.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Stream queues push jobs on a kafka topic keyed by application, so the
// jobs of one application are pushed in order.
type Stream struct {
	producer Publisher
	topic    string
}

func NewStream(producer Publisher, topic string) *Stream {
	return &Stream{producer: producer, topic: topic}
}

func (s *Stream) EnqueuePush(ctx context.Context, job Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, s.topic, job.Key(), value)
}

// Handler returns the consumer callback that runs streamed push jobs.
func (p *Pusher) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			return fmt.Errorf("decode push job at offset %d: %w", msg.Offset, err)
		}
		if err := p.Push(ctx, job); err != nil {
			if auditErr := p.RecordFailure(ctx, job, err); auditErr != nil {
				p.log.DatabaseError("record_push_failure", auditErr)
			}
			return err
		}
		return nil
	}
}
