package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo  Repository
	cache *Cache
}

func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Lookup resolves a material through the read-through cache. Callers treat
// ErrNotFound as non-fatal: a line item bound to a vanished material keeps
// its manual values.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (Material, error) {
	return s.cache.FetchMaterial(ctx, id.String(), func(ctx context.Context) (Material, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Material, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListMaterialsRequest) ([]Material, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) Create(ctx context.Context, req CreateMaterialRequest) (Material, error) {
	material := Material{
		ID:        uuid.New(),
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      req.Name,
		Unit:      req.Unit,
		Category:  req.Category,
		UnitPrice: req.UnitPrice,
		IsActive:  true,
	}
	if material.UnitPrice.IsNegative() {
		return Material{}, fmt.Errorf("unit price must not be negative")
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return Material{}, err
	}
	s.cache.Bump(ctx)
	return s.repo.Get(ctx, material.ID)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateMaterialRequest) (Material, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Material{}, err
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Unit != nil {
		existing.Unit = *req.Unit
	}
	if req.Category != nil {
		existing.Category = *req.Category
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return Material{}, fmt.Errorf("unit price must not be negative")
		}
		existing.UnitPrice = *req.UnitPrice
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return Material{}, err
	}
	s.cache.Bump(ctx)
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Bump(ctx)
	return nil
}
