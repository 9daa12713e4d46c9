package intake

import (
	"context"
	"errors"
	"testing"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/kafka"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/validator"

	"github.com/google/uuid"
)

type fakeCreator struct {
	sources []string
	reqs    []transport.CreateApplicationRequest
	err     error
}

func (f *fakeCreator) Create(_ context.Context, source string, req transport.CreateApplicationRequest) (transport.ApplicationResponse, error) {
	f.sources = append(f.sources, source)
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return transport.ApplicationResponse{}, f.err
	}
	return transport.ApplicationResponse{ID: uuid.New(), Stage: domain.StageIncomplete}, nil
}

func newAdapter(c Creator) *Adapter {
	return NewAdapter(c, validator.New(), logger.New("development"))
}

const response = `{
	"customer": {"email": "brandon@example.com", "first_name": "Brandon", "last_name": "Reyes"},
	"product_offering": "buy-sell",
	"min_price": "300000",
	"max_price": "450000",
	"current_home": {"address": {"street": "4000 Danli Lane", "city": "Austin", "state": "TX", "zip": "78701"}}
}`

func TestHandleCreatesFromIntakeWithKeyAsResponseID(t *testing.T) {
	c := &fakeCreator{}
	a := newAdapter(c)

	err := a.Handle(context.Background(), kafka.Message{Topic: "questionnaire-response", Key: []byte("resp-42"), Value: []byte(response)})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(c.reqs) != 1 {
		t.Fatalf("expected one create, got %d", len(c.reqs))
	}
	if c.sources[0] != lifecycle.SourceIntake {
		t.Fatalf("expected the intake source, got %s", c.sources[0])
	}
	req := c.reqs[0]
	if domain.Deref(req.QuestionnaireResponseID) != "resp-42" {
		t.Fatalf("expected the key as response id, got %v", req.QuestionnaireResponseID)
	}
	if req.ProductOffering != domain.ProductBuySell || !req.MaxPrice.Valid || req.CurrentHome == nil {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDecodeRejectsInvalidResponses(t *testing.T) {
	a := newAdapter(&fakeCreator{})

	if _, err := a.Decode(kafka.Message{Value: []byte(response)}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a missing response id to be invalid, got %v", err)
	}
	if _, err := a.Decode(kafka.Message{Key: []byte("r"), Value: []byte("not json")}); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad JSON to be a bad request, got %v", err)
	}

	_, err := a.Decode(kafka.Message{Key: []byte("r"), Value: []byte(`{"customer":{"email":"brandon@example.com","first_name":"Brandon"},"product_offering":"rent"}`)})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if _, ok := e.Details.(apperr.FieldErrors)["product_offering"]; !ok {
		t.Fatalf("expected a product_offering error, got %#v", e.Details)
	}
}

func TestHandleDropsUndecodableMessages(t *testing.T) {
	c := &fakeCreator{}
	if err := newAdapter(c).Handle(context.Background(), kafka.Message{Value: []byte("{")}); err != nil {
		t.Fatalf("expected the message to be dropped, got %v", err)
	}
	if len(c.reqs) != 0 {
		t.Fatal("nothing must be created")
	}
}

func TestHandleReportsCreateFailures(t *testing.T) {
	c := &fakeCreator{err: errors.New("store unavailable")}
	err := newAdapter(c).Handle(context.Background(), kafka.Message{Key: []byte("resp-1"), Value: []byte(response)})
	if err == nil {
		t.Fatal("expected the create error")
	}
}
