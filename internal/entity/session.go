package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
)

// Session is one row per attempted document pair, not per batch.
// A failed pair keeps its row with Status=error; rows are never deleted
// by the pipeline.
type Session struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID          string    `gorm:"index"`
	InvoiceFilename  string    `gorm:"not null"`
	DeliveryFilename string    `gorm:"not null"`
	Status           string    `gorm:"not null;index"`
	MatchCount       int
	WarningCount     int
	ErrorCount       int
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = string(constants.SessionStatusProcessing)
	}
	return nil
}

// Completed reports whether the session reached a terminal state.
func (s *Session) Completed() bool {
	return s.Status == string(constants.SessionStatusCompleted) ||
		s.Status == string(constants.SessionStatusError)
}
