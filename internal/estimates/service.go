package estimates

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidLaborCost  = errors.New("labor cost must not be negative")
)

type Service struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		now:     time.Now,
	}
}

// resolveItems turns request rows into line items, consulting the catalog for
// rows that carry a catalog reference. A failed lookup keeps the row's manual
// values; it never aborts the whole edit.
func (s *Service) resolveItems(ctx context.Context, reqs []LineItemRequest) ([]LineItem, error) {
	raw := make([]LineItem, 0, len(reqs))
	for i, req := range reqs {
		if req.Quantity.IsNegative() {
			return nil, fmt.Errorf("item %d: %w", i+1, ErrInvalidQuantity)
		}
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: %w", i+1, ErrInvalidPrice)
		}
		raw = append(raw, LineItem{
			Name:      req.Name,
			Unit:      req.Unit,
			Category:  req.Category,
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
		})
	}
	list := NewItemList(s.catalog, raw)
	for i, req := range reqs {
		if req.CatalogRef == nil {
			continue
		}
		err := list.SetCatalogRef(ctx, i, *req.CatalogRef)
		if err != nil && !errors.Is(err, ErrCatalogNotFound) {
			return nil, fmt.Errorf("resolve catalog ref: %w", err)
		}
	}
	return list.Items(), nil
}

func (s *Service) recompute(e *Estimate) {
	e.Totals = ComputeTotals(e.Items, e.LaborCost, e.OverheadPct, e.ProfitMargin, e.VATRate)
}

func pctOrDefault(pct *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if pct == nil {
		return def
	}
	return *pct
}

// Create stores a new draft estimate with its totals derived from the initial
// item list.
func (s *Service) Create(ctx context.Context, req CreateEstimateRequest, createdBy string) (*Estimate, error) {
	if req.LaborCost.IsNegative() {
		return nil, ErrInvalidLaborCost
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	estimate := Estimate{
		ID:           uuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		ClientName:   req.ClientName,
		ProjectRef:   req.ProjectRef,
		Version:      1,
		Status:       StatusDraft,
		ValidUntil:   req.ValidUntil,
		Items:        items,
		LaborCost:    req.LaborCost,
		OverheadPct:  pctOrDefault(req.OverheadPct, DefaultOverheadPct),
		ProfitMargin: pctOrDefault(req.ProfitMargin, DefaultProfitMargin),
		VATRate:      pctOrDefault(req.VATRate, DefaultVATRate),
		CreatedBy:    createdBy,
	}
	s.recompute(&estimate)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, estimate); err != nil {
			return fmt.Errorf("create estimate: %w", err)
		}
		return repo.ReplaceItems(ctx, estimate.ID, estimate.Items)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, estimate.ID)
}

// Edit applies a patch to a draft estimate and recomputes its totals. Editing
// a sent or terminal estimate is rejected; re-pricing a communicated quote
// goes through Copy, which starts a fresh draft version.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, req UpdateEstimateRequest) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft estimates can be edited", ErrInvalidTransition)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.ClientName != nil {
		existing.ClientName = *req.ClientName
	}
	if req.ProjectRef != nil {
		existing.ProjectRef = req.ProjectRef
	}
	if req.ValidUntil != nil {
		existing.ValidUntil = *req.ValidUntil
	}
	if req.LaborCost != nil {
		if req.LaborCost.IsNegative() {
			return nil, ErrInvalidLaborCost
		}
		existing.LaborCost = *req.LaborCost
	}
	if req.OverheadPct != nil {
		existing.OverheadPct = *req.OverheadPct
	}
	if req.ProfitMargin != nil {
		existing.ProfitMargin = *req.ProfitMargin
	}
	if req.VATRate != nil {
		existing.VATRate = *req.VATRate
	}
	if req.Items != nil {
		items, err := s.resolveItems(ctx, *req.Items)
		if err != nil {
			return nil, err
		}
		existing.Items = items
	}
	s.recompute(existing)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, *existing); err != nil {
			return fmt.Errorf("update estimate: %w", err)
		}
		if req.Items != nil {
			return repo.ReplaceItems(ctx, id, existing.Items)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, id)
}

// Send marks a draft estimate as sent to the client.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: can only send draft estimates", ErrInvalidTransition)
	}
	now := s.now()
	err = s.repo.UpdateStatus(ctx, id, StatusSent, StatusChange{SentAt: &now}, StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("send estimate: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Approve marks a sent estimate as approved by the given user.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if existing.Status != StatusSent {
		return nil, fmt.Errorf("%w: can only approve sent estimates", ErrInvalidTransition)
	}
	now := s.now()
	change := StatusChange{ApprovedBy: &approvedBy, ApprovedAt: &now}
	if err := s.repo.UpdateStatus(ctx, id, StatusApproved, change, StatusSent); err != nil {
		return nil, fmt.Errorf("approve estimate: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Reject marks a sent estimate as rejected by the given user.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if existing.Status != StatusSent {
		return nil, fmt.Errorf("%w: can only reject sent estimates", ErrInvalidTransition)
	}
	now := s.now()
	change := StatusChange{RejectedBy: &rejectedBy, RejectedAt: &now}
	if reason != "" {
		change.RejectionReason = &reason
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusRejected, change, StatusSent); err != nil {
		return nil, fmt.Errorf("reject estimate: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Expire marks a draft or sent estimate as expired, typically once its
// validity date has passed.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*Estimate, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if existing.Status.Terminal() {
		return nil, fmt.Errorf("%w: estimate is already %s", ErrInvalidTransition, existing.Status)
	}
	err = s.repo.UpdateStatus(ctx, id, StatusExpired, StatusChange{}, StatusDraft, StatusSent)
	if err != nil {
		return nil, fmt.Errorf("expire estimate: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Copy produces a brand-new draft estimate carrying over items, percentages
// and client fields under a fresh id and a bumped version. Totals are
// recomputed rather than copied so a rounding policy change can never leave
// the copy inconsistent.
func (s *Service) Copy(ctx context.Context, id uuid.UUID, createdBy string) (*Estimate, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}

	items := make([]LineItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		items[i].ID = 0
	}

	dup := Estimate{
		ID:           uuid.New(),
		Name:         src.Name,
		Description:  src.Description,
		ClientName:   src.ClientName,
		ProjectRef:   src.ProjectRef,
		Version:      src.Version + 1,
		Status:       StatusDraft,
		ValidUntil:   src.ValidUntil,
		Items:        items,
		LaborCost:    src.LaborCost,
		OverheadPct:  src.OverheadPct,
		ProfitMargin: src.ProfitMargin,
		VATRate:      src.VATRate,
		CreatedBy:    createdBy,
	}
	s.recompute(&dup)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, dup); err != nil {
			return fmt.Errorf("create copy: %w", err)
		}
		return repo.ReplaceItems(ctx, dup.ID, dup.Items)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, dup.ID)
}

// Delete removes an estimate and its line items in a single transaction.
// Other records never reference estimates, so deletion has no cascading
// effects beyond the items.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Delete(ctx, id)
	})
}

// Get fetches one estimate. A draft or sent estimate whose validity date has
// passed is expired lazily before it is returned.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Estimate, error) {
	estimate, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !estimate.Status.Terminal() && !estimate.ValidUntil.IsZero() && estimate.ValidUntil.Before(s.now()) {
		err := s.repo.UpdateStatus(ctx, id, StatusExpired, StatusChange{}, StatusDraft, StatusSent)
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("lazy expire: %w", err)
		}
		return s.repo.Get(ctx, id)
	}
	return estimate, nil
}

func (s *Service) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	return s.repo.List(ctx, req)
}

// Preview runs the roll-up calculator over request rows without storing
// anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (Totals, error) {
	if req.LaborCost.IsNegative() {
		return Totals{}, ErrInvalidLaborCost
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(items, req.LaborCost, req.OverheadPct, req.ProfitMargin, req.VATRate), nil
}

// ExpireOverdue transitions every draft or sent estimate whose validity date
// lies before asOf. It returns the number of estimates expired. Estimates
// that reached a terminal status between listing and updating are skipped.
func (s *Service) ExpireOverdue(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.repo.ListOverdue(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list overdue estimates: %w", err)
	}

	var expired atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			err := s.repo.UpdateStatus(ctx, id, StatusExpired, StatusChange{}, StatusDraft, StatusSent)
			if err != nil {
				if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
					return nil
				}
				return fmt.Errorf("expire estimate %s: %w", id, err)
			}
			expired.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(expired.Load()), err
	}
	return int(expired.Load()), nil
}
