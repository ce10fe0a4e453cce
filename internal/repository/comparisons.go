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

// ComparisonRepository persists comparison trees under their sessions.
type ComparisonRepository interface {
	// SaveComparison writes the comparison with its child rows and, in the
	// same transaction, finalizes the owning session: status=completed,
	// match/warning/error counts recomputed from the rows, completed_at set.
	SaveComparison(ctx context.Context, cmp *entity.Comparison) (uuid.UUID, error)
	GetComparison(ctx context.Context, id uuid.UUID) (*entity.Comparison, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*entity.Comparison, error)
}

type comparisonRepo struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewComparisonRepository(db *gorm.DB, log *slog.Logger) ComparisonRepository {
	if log == nil {
		log = slog.Default()
	}
	return &comparisonRepo{db: db, log: log}
}

func (r *comparisonRepo) SaveComparison(ctx context.Context, cmp *entity.Comparison) (uuid.UUID, error) {
	if cmp.SessionID == uuid.Nil {
		return uuid.Nil, common.NewAppError("COMPARISON_SAVE", "session id is required", common.ErrInvalidInput)
	}

	// Counts are derived from the rows being written, never trusted from
	// the upstream response.
	var matches, warnings, errs int
	for _, it := range cmp.Items {
		tally(it.Status, &matches, &warnings, &errs)
	}
	for _, md := range cmp.Metadata {
		tally(md.Status, &matches, &warnings, &errs)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cmp).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&entity.Session{}).Where("id = ?", cmp.SessionID).Updates(map[string]any{
			"status":        string(constants.SessionStatusCompleted),
			"match_count":   matches,
			"warning_count": warnings,
			"error_count":   errs,
			"completed_at":  &now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		r.log.Error("comparison save failed", "session_id", cmp.SessionID, "err", err)
		return uuid.Nil, common.WrapError(err, "save comparison")
	}

	r.log.Info("comparison saved",
		"comparison_id", cmp.ID,
		"session_id", cmp.SessionID,
		"items", len(cmp.Items),
		"metadata", len(cmp.Metadata),
		"matches", matches, "warnings", warnings, "errors", errs,
	)
	return cmp.ID, nil
}

func (r *comparisonRepo) GetComparison(ctx context.Context, id uuid.UUID) (*entity.Comparison, error) {
	var cmp entity.Comparison
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Metadata", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&cmp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "get comparison")
	}
	return &cmp, nil
}

func (r *comparisonRepo) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*entity.Comparison, error) {
	var cmp entity.Comparison
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Metadata", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&cmp, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.WrapError(err, "get comparison by session")
	}
	return &cmp, nil
}

func tally(status string, matches, warnings, errs *int) {
	switch constants.CoerceItemStatus(status) {
	case constants.ItemStatusMatch:
		*matches++
	case constants.ItemStatusWarning:
		*warnings++
	default:
		*errs++
	}
}
