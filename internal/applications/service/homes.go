package service

import (
	"context"
	"strings"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// UpsertCurrentHome creates or edits the home the customer sells.
func (s *Service) UpsertCurrentHome(ctx context.Context, appID uuid.UUID, req transport.CurrentHomeInput) (transport.ApplicationResponse, error) {
	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, appID)
		if err != nil {
			return uuid.Nil, err
		}
		hadHome := app.CurrentHomeID != nil
		if err := s.writeCurrentHome(ctx, tx, &app, req); err != nil {
			return uuid.Nil, err
		}
		if !hadHome {
			if _, err := tx.UpdateApplication(ctx, app); err != nil {
				return uuid.Nil, err
			}
		}
		return app.ID, nil
	})
	if err != nil {
		return transport.ApplicationResponse{}, err
	}
	return s.view(ctx, appID)
}

func (s *Service) currentHomeOf(ctx context.Context, tx *lifecycle.Tx, appID uuid.UUID) (uuid.UUID, error) {
	app, err := tx.LockApplication(ctx, appID)
	if err != nil {
		return uuid.Nil, err
	}
	if app.CurrentHomeID == nil {
		return uuid.Nil, apperr.NotFound("application has no current home")
	}
	return *app.CurrentHomeID, nil
}

// ListMarketValuations returns the valuations of the application's current home.
func (s *Service) ListMarketValuations(ctx context.Context, appID uuid.UUID) ([]transport.MarketValuationResponse, error) {
	app, err := s.machine.Store().GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.CurrentHomeID == nil {
		return []transport.MarketValuationResponse{}, nil
	}
	values, err := s.machine.Store().ListMarketValuations(ctx, *app.CurrentHomeID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.MarketValuationResponse, 0, len(values))
	for _, v := range values {
		out = append(out, toValuationResponse(v))
	}
	return out, nil
}

// AddMarketValuation records a valuation of the current home.
func (s *Service) AddMarketValuation(ctx context.Context, appID uuid.UUID, req transport.MarketValuationRequest) (transport.MarketValuationResponse, error) {
	var stored domain.MarketValuation
	err := s.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		homeID, err := s.currentHomeOf(ctx, tx, appID)
		if err != nil {
			return err
		}
		stored, err = tx.InsertMarketValuation(ctx, domain.MarketValuation{
			CurrentHomeID: homeID,
			Value:         req.Value,
			Source:        strings.TrimSpace(req.Source),
			ValuedAt:      req.ValuedAt.UTC(),
		})
		return err
	})
	if err != nil {
		return transport.MarketValuationResponse{}, err
	}
	return toValuationResponse(stored), nil
}

// UpdateMarketValuation replaces a valuation of the current home.
func (s *Service) UpdateMarketValuation(ctx context.Context, appID, valuationID uuid.UUID, req transport.MarketValuationRequest) (transport.MarketValuationResponse, error) {
	var stored domain.MarketValuation
	err := s.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		v, err := s.ownedValuation(ctx, tx, appID, valuationID)
		if err != nil {
			return err
		}
		v.Value = req.Value
		v.Source = strings.TrimSpace(req.Source)
		v.ValuedAt = req.ValuedAt.UTC()
		stored, err = tx.UpdateMarketValuation(ctx, v)
		return err
	})
	if err != nil {
		return transport.MarketValuationResponse{}, err
	}
	return toValuationResponse(stored), nil
}

// DeleteMarketValuation removes a valuation of the current home.
func (s *Service) DeleteMarketValuation(ctx context.Context, appID, valuationID uuid.UUID) error {
	return s.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		if _, err := s.ownedValuation(ctx, tx, appID, valuationID); err != nil {
			return err
		}
		return tx.DeleteMarketValuation(ctx, valuationID)
	})
}

func (s *Service) ownedValuation(ctx context.Context, tx *lifecycle.Tx, appID, valuationID uuid.UUID) (domain.MarketValuation, error) {
	homeID, err := s.currentHomeOf(ctx, tx, appID)
	if err != nil {
		return domain.MarketValuation{}, err
	}
	v, err := tx.GetMarketValuation(ctx, valuationID)
	if err != nil {
		return v, err
	}
	if v.CurrentHomeID != homeID {
		return v, apperr.NotFound("market valuation not found")
	}
	return v, nil
}
