package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/entity"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm"
)

// Store adapts the session and comparison repositories to the pipeline's
// persistence port.
type Store struct {
	sessions    SessionRepository
	comparisons ComparisonRepository
}

func NewStore(sessions SessionRepository, comparisons ComparisonRepository) *Store {
	return &Store{sessions: sessions, comparisons: comparisons}
}

func (s *Store) CreateSession(ctx context.Context, invoiceName, deliveryName, ownerID string) (uuid.UUID, error) {
	sess, err := s.sessions.Create(ctx, invoiceName, deliveryName, ownerID)
	if err != nil {
		return uuid.Nil, err
	}
	return sess.ID, nil
}

func (s *Store) FailSession(ctx context.Context, id uuid.UUID, message string) error {
	return s.sessions.UpdateStatus(ctx, id, constants.SessionStatusError, message)
}

func (s *Store) SaveComparison(ctx context.Context, sessionID uuid.UUID, ownerID string, res *llm.Result) (uuid.UUID, error) {
	cmp := &entity.Comparison{
		SessionID:        sessionID,
		OwnerID:          ownerID,
		InvoiceFilename:  res.InvoiceFilename,
		DeliveryFilename: res.DeliveryFilename,
	}
	for i, it := range res.Items {
		cmp.Items = append(cmp.Items, entity.ComparisonItem{
			Position:      i,
			ProductName:   it.ProductName,
			InvoiceValue:  it.InvoiceValue,
			DeliveryValue: it.DeliveryValue,
			Status:        string(constants.CoerceItemStatus(it.Status)),
			Note:          it.Note,
		})
	}
	for i, md := range res.Metadata {
		cmp.Metadata = append(cmp.Metadata, entity.ComparisonMetadata{
			Position:      i,
			Field:         md.Field,
			InvoiceValue:  md.InvoiceValue,
			DeliveryValue: md.DeliveryValue,
			Status:        string(constants.CoerceItemStatus(md.Status)),
		})
	}
	return s.comparisons.SaveComparison(ctx, cmp)
}
