// Package catalog is the material reference registry. Estimate line items
// consult it for default name, unit, category and price when a row is bound
// to a catalog entry.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Material struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	Name      string          `json:"name" db:"name"`
	Unit      string          `json:"unit" db:"unit"`
	Category  string          `json:"category" db:"category"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type ListMaterialsRequest struct {
	Category *string `json:"category,omitempty"`
	Search   *string `json:"search,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	Limit    int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int     `json:"offset" validate:"gte=0"`
}

type CreateMaterialRequest struct {
	Code      string          `json:"code" validate:"required,max=50"`
	Name      string          `json:"name" validate:"required,max=255"`
	Unit      string          `json:"unit" validate:"required,max=20"`
	Category  string          `json:"category" validate:"max=100"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type UpdateMaterialRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Unit      *string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	Category  *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
}
