package estimates

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EstimateStatus string

const (
	StatusDraft    EstimateStatus = "draft"
	StatusSent     EstimateStatus = "sent"
	StatusApproved EstimateStatus = "approved"
	StatusRejected EstimateStatus = "rejected"
	StatusExpired  EstimateStatus = "expired"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s EstimateStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle action is allowed from s.
func (s EstimateStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// LineItem is one priced row of an estimate. TotalPrice is always derived
// from Quantity and UnitPrice, never written directly.
type LineItem struct {
	ID         int64           `json:"id" db:"id"`
	EstimateID uuid.UUID       `json:"estimate_id" db:"estimate_id"`
	CatalogRef *uuid.UUID      `json:"catalog_ref,omitempty" db:"catalog_ref"`
	Name       string          `json:"name" db:"name"`
	Unit       string          `json:"unit" db:"unit"`
	Category   string          `json:"category" db:"category"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	SortOrder  int             `json:"sort_order" db:"sort_order"`
}

// Totals is the derived roll-up block. Every field is money rounded to the
// smallest currency unit.
type Totals struct {
	MaterialsCost decimal.Decimal `json:"materials_cost"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Overhead      decimal.Decimal `json:"overhead"`
	Profit        decimal.Decimal `json:"profit"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
}

type Estimate struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Description     *string         `json:"description,omitempty" db:"description"`
	ClientName      string          `json:"client_name" db:"client_name"`
	ProjectRef      *uuid.UUID      `json:"project_ref,omitempty" db:"project_ref"`
	Version         int             `json:"version" db:"version"`
	Status          EstimateStatus  `json:"status" db:"status"`
	ValidUntil      time.Time       `json:"valid_until" db:"valid_until"`
	Items           []LineItem      `json:"items,omitempty" db:"-"`
	LaborCost       decimal.Decimal `json:"labor_cost" db:"labor_cost"`
	OverheadPct     decimal.Decimal `json:"overhead_pct" db:"overhead_pct"`
	ProfitMargin    decimal.Decimal `json:"profit_margin" db:"profit_margin"`
	VATRate         decimal.Decimal `json:"vat_rate" db:"vat_rate"`
	Totals          Totals          `json:"totals"`
	CreatedBy       string          `json:"created_by" db:"created_by"`
	SentAt          *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ApprovedBy      *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy      *string         `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
