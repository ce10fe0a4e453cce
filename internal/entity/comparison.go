package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comparison is the persisted result of one document pair, with its child
// item and metadata rows loaded in insertion order.
type Comparison struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID        uuid.UUID `gorm:"type:uuid;index;not null"`
	OwnerID          string    `gorm:"index"`
	InvoiceFilename  string
	DeliveryFilename string
	CreatedAt        time.Time

	Items    []ComparisonItem     `gorm:"foreignKey:ComparisonID;constraint:OnDelete:CASCADE"`
	Metadata []ComparisonMetadata `gorm:"foreignKey:ComparisonID;constraint:OnDelete:CASCADE"`
}

func (c *Comparison) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ComparisonItem is one compared line item.
type ComparisonItem struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	ComparisonID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Position      int       `gorm:"not null"` // insertion order from the AI response
	ProductName   string
	InvoiceValue  string
	DeliveryValue string
	Status        string `gorm:"not null"`
	Note          string
}

// ComparisonMetadata is one compared document-level field (date, folio,
// supplier, totals).
type ComparisonMetadata struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	ComparisonID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Position      int       `gorm:"not null"`
	Field         string
	InvoiceValue  string
	DeliveryValue string
	Status        string `gorm:"not null"`
}
