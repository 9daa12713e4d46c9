// Package intake turns normalized questionnaire responses from the message
// bus into application creates and updates.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/kafka"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/validator"
)

// Creator creates an application or updates the one already created for the
// same questionnaire response.
type Creator interface {
	Create(ctx context.Context, source string, req transport.CreateApplicationRequest) (transport.ApplicationResponse, error)
}

type Adapter struct {
	creator Creator
	val     *validator.Validator
	log     *logger.Logger
}

func NewAdapter(creator Creator, val *validator.Validator, log *logger.Logger) *Adapter {
	return &Adapter{creator: creator, val: val, log: log}
}

// Decode reads one message into a create request. The message key is the
// questionnaire response id when the body does not carry one.
func (a *Adapter) Decode(msg kafka.Message) (transport.CreateApplicationRequest, error) {
	var req transport.CreateApplicationRequest
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	if err := dec.Decode(&req); err != nil {
		return req, apperr.BadRequest(fmt.Sprintf("decode questionnaire response: %v", err))
	}
	if req.QuestionnaireResponseID == nil || strings.TrimSpace(*req.QuestionnaireResponseID) == "" {
		if key := strings.TrimSpace(string(msg.Key)); key != "" {
			req.QuestionnaireResponseID = &key
		}
	}
	if req.QuestionnaireResponseID == nil {
		return req, apperr.FieldError("questionnaire_response_id", "questionnaire response id is required")
	}
	if err := a.val.Struct(req); err != nil {
		return req, apperr.InvalidInput(validator.FieldErrors(err))
	}
	return req, nil
}

// Handle creates or updates the application of one questionnaire response.
// A message that cannot be decoded is logged and dropped.
func (a *Adapter) Handle(ctx context.Context, msg kafka.Message) error {
	req, err := a.Decode(msg)
	if err != nil {
		a.log.Warn("questionnaire response dropped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	app, err := a.creator.Create(ctx, lifecycle.SourceIntake, req)
	if err != nil {
		return fmt.Errorf("intake %s: %w", *req.QuestionnaireResponseID, err)
	}
	a.log.Info("questionnaire response applied",
		"questionnaire_response_id", *req.QuestionnaireResponseID, "application_id", app.ID, "stage", app.Stage)
	return nil
}

// Handler returns the consumer callback for the questionnaire-response topic.
func (a *Adapter) Handler() kafka.Handler {
	return a.Handle
}
