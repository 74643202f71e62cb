package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Solution is an intake submission priced into premium and pro tiers.
type Solution struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title        string              `gorm:"column:title;not null"`
	Description  string              `gorm:"column:description;not null"`
	Email        string              `gorm:"column:email;not null"`
	PremiumPrice decimal.NullDecimal `gorm:"column:premium_price;type:numeric(12,2)"`
	ProPrice     decimal.NullDecimal `gorm:"column:pro_price;type:numeric(12,2)"`
	Discount     decimal.NullDecimal `gorm:"column:discount;type:numeric(12,2)"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
