package estimates

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default percentage charges applied when a request leaves them unset.
var (
	DefaultOverheadPct  = decimal.NewFromInt(15)
	DefaultProfitMargin = decimal.NewFromInt(20)
	DefaultVATRate      = decimal.NewFromInt(20)
)

type LineItemRequest struct {
	CatalogRef *uuid.UUID      `json:"catalog_ref,omitempty"`
	Name       string          `json:"name" validate:"required_without=CatalogRef,max=255"`
	Unit       string          `json:"unit" validate:"max=20"`
	Category   string          `json:"category" validate:"max=100"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type CreateEstimateRequest struct {
	Name         string            `json:"name" validate:"required,max=255"`
	Description  *string           `json:"description,omitempty"`
	ClientName   string            `json:"client_name" validate:"required,max=255"`
	ProjectRef   *uuid.UUID        `json:"project_ref,omitempty"`
	ValidUntil   time.Time         `json:"valid_until" validate:"required"`
	LaborCost    decimal.Decimal   `json:"labor_cost"`
	OverheadPct  *decimal.Decimal  `json:"overhead_pct,omitempty"`
	ProfitMargin *decimal.Decimal  `json:"profit_margin,omitempty"`
	VATRate      *decimal.Decimal  `json:"vat_rate,omitempty"`
	Items        []LineItemRequest `json:"items" validate:"dive"`
}

type UpdateEstimateRequest struct {
	Name         *string            `json:"name,omitempty" validate:"omitempty,max=255"`
	Description  *string            `json:"description,omitempty"`
	ClientName   *string            `json:"client_name,omitempty" validate:"omitempty,max=255"`
	ProjectRef   *uuid.UUID         `json:"project_ref,omitempty"`
	ValidUntil   *time.Time         `json:"valid_until,omitempty"`
	LaborCost    *decimal.Decimal   `json:"labor_cost,omitempty"`
	OverheadPct  *decimal.Decimal   `json:"overhead_pct,omitempty"`
	ProfitMargin *decimal.Decimal   `json:"profit_margin,omitempty"`
	VATRate      *decimal.Decimal   `json:"vat_rate,omitempty"`
	Items        *[]LineItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

type ListEstimatesRequest struct {
	Status     *EstimateStatus `json:"status,omitempty"`
	ClientName *string         `json:"client_name,omitempty"`
	ProjectRef *uuid.UUID      `json:"project_ref,omitempty"`
	DateFrom   *time.Time      `json:"date_from,omitempty"`
	DateTo     *time.Time      `json:"date_to,omitempty"`
	Limit      int             `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int             `json:"offset" validate:"gte=0"`
}

// PreviewRequest feeds the roll-up calculator without touching any stored
// estimate.
type PreviewRequest struct {
	LaborCost    decimal.Decimal   `json:"labor_cost"`
	OverheadPct  decimal.Decimal   `json:"overhead_pct"`
	ProfitMargin decimal.Decimal   `json:"profit_margin"`
	VATRate      decimal.Decimal   `json:"vat_rate"`
	Items        []LineItemRequest `json:"items" validate:"dive"`
}
