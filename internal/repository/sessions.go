package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/entity"
)

// SessionRepository persists one row per attempted document pair.
type SessionRepository interface {
	Create(ctx context.Context, invoiceName, deliveryName, ownerID string) (*entity.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.SessionStatus, errorMessage string) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	List(ctx context.Context, ownerID string, limit int) ([]entity.Session, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewSessionRepository(db *gorm.DB, log *slog.Logger) SessionRepository {
	if log == nil {
		log = slog.Default()
	}
	return &sessionRepo{db: db, log: log}
}

func (r *sessionRepo) Create(ctx context.Context, invoiceName, deliveryName, ownerID string) (*entity.Session, error) {
	s := &entity.Session{
		OwnerID:          ownerID,
		InvoiceFilename:  invoiceName,
		DeliveryFilename: deliveryName,
		Status:           string(constants.SessionStatusProcessing),
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		r.log.Error("session create failed", "invoice", invoiceName, "delivery", deliveryName, "err", err)
		return nil, common.WrapError(err, "create session")
	}
	r.log.Info("session started", "session_id", s.ID, "invoice", invoiceName, "delivery", deliveryName)
	return s, nil
}

func (r *sessionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.SessionStatus, errorMessage string) error {
	updates := map[string]any{"status": string(status)}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	if status == constants.SessionStatusCompleted || status == constants.SessionStatusError {
		now := time.Now().UTC()
		updates["completed_at"] = &now
	}
	res := r.db.WithContext(ctx).Model(&entity.Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		r.log.Error("session status update failed", "session_id", id, "status", status, "err", res.Error)
		return common.WrapError(res.Error, "update session status")
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	if status == constants.SessionStatusError {
		r.log.Warn("session finished (error)", "session_id", id, "error", errorMessage)
	} else {
		r.log.Info("session status updated", "session_id", id, "status", status)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var s entity.Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "get session")
	}
	return &s, nil
}

func (r *sessionRepo) List(ctx context.Context, ownerID string, limit int) ([]entity.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var out []entity.Session
	if err := q.Find(&out).Error; err != nil {
		return nil, common.WrapError(err, "list sessions")
	}
	return out, nil
}
