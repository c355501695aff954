package estimates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

// ============================================================================
// STUB CATALOG
// ============================================================================

type stubCatalog struct {
	materials map[uuid.UUID]MaterialRecord
}

func (c *stubCatalog) Lookup(_ context.Context, materialID uuid.UUID) (MaterialRecord, error) {
	record, ok := c.materials[materialID]
	if !ok {
		return MaterialRecord{}, ErrCatalogNotFound
	}
	return record, nil
}

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	estimates  map[uuid.UUID]*Estimate
	items      map[uuid.UUID][]LineItem
	nextItemID int64

	// Error injection
	txError        error
	getError       error
	listOverdueErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		estimates:  make(map[uuid.UUID]*Estimate),
		items:      make(map[uuid.UUID][]LineItem),
		nextItemID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (*Estimate, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	e, ok := m.estimates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	out.Items = append([]LineItem(nil), m.items[id]...)
	return &out, nil
}

func (m *mockRepository) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	result := []Estimate{}
	for _, e := range m.estimates {
		if req.Status != nil && e.Status != *req.Status {
			continue
		}
		result = append(result, *e)
	}
	return result, len(result), nil
}

func (m *mockRepository) Create(ctx context.Context, e Estimate) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Items = nil
	m.estimates[e.ID] = &e
	return nil
}

func (m *mockRepository) Update(ctx context.Context, e Estimate) error {
	existing, ok := m.estimates[e.ID]
	if !ok {
		return ErrNotFound
	}
	e.Status = existing.Status
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now()
	e.Items = nil
	m.estimates[e.ID] = &e
	return nil
}

func (m *mockRepository) ReplaceItems(ctx context.Context, estimateID uuid.UUID, items []LineItem) error {
	stored := make([]LineItem, len(items))
	for i, item := range items {
		item.ID = m.nextItemID
		m.nextItemID++
		item.EstimateID = estimateID
		if item.SortOrder == 0 {
			item.SortOrder = i + 1
		}
		stored[i] = item
	}
	m.items[estimateID] = stored
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to EstimateStatus, change StatusChange, allowedFrom ...EstimateStatus) error {
	e, ok := m.estimates[id]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, from := range allowedFrom {
		if e.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition
	}
	e.Status = to
	if change.SentAt != nil {
		e.SentAt = change.SentAt
	}
	if change.ApprovedBy != nil {
		e.ApprovedBy = change.ApprovedBy
	}
	if change.ApprovedAt != nil {
		e.ApprovedAt = change.ApprovedAt
	}
	if change.RejectedBy != nil {
		e.RejectedBy = change.RejectedBy
	}
	if change.RejectedAt != nil {
		e.RejectedAt = change.RejectedAt
	}
	if change.RejectionReason != nil {
		e.RejectionReason = change.RejectionReason
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.estimates, id)
	delete(m.items, id)
	return nil
}

func (m *mockRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	if m.listOverdueErr != nil {
		return nil, m.listOverdueErr
	}
	var ids []uuid.UUID
	for id, e := range m.estimates {
		if e.Status != StatusDraft && e.Status != StatusSent {
			continue
		}
		if !e.ValidUntil.IsZero() && e.ValidUntil.Before(asOf) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func newTestService() (*Service, *mockRepository, *stubCatalog) {
	repo := newMockRepository()
	catalog := &stubCatalog{materials: make(map[uuid.UUID]MaterialRecord)}
	return NewService(repo, catalog), repo, catalog
}

func validUntil() time.Time {
	return time.Now().Add(30 * 24 * time.Hour)
}

func sampleCreateRequest() CreateEstimateRequest {
	return CreateEstimateRequest{
		Name:       "Ремонт офиса",
		ClientName: "ООО Стройинвест",
		ValidUntil: validUntil(),
		LaborCost:  d("50000"),
		Items: []LineItemRequest{
			{Name: "Материалы этаж 1", Unit: "компл", Quantity: d("1"), UnitPrice: d("100000")},
			{Name: "Материалы этаж 2", Unit: "компл", Quantity: d("1"), UnitPrice: d("100000")},
		},
	}
}

func createDraft(t *testing.T, svc *Service) *Estimate {
	t.Helper()
	estimate, err := svc.Create(context.Background(), sampleCreateRequest(), "user-1")
	require.NoError(t, err)
	return estimate
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateEstimateAppliesDefaults(t *testing.T) {
	svc, _, _ := newTestService()

	estimate := createDraft(t, svc)

	assert.Equal(t, StatusDraft, estimate.Status)
	assert.Equal(t, 1, estimate.Version)
	assert.Equal(t, "user-1", estimate.CreatedBy)
	assert.Equal(t, "15", estimate.OverheadPct.String())
	assert.Equal(t, "20", estimate.ProfitMargin.String())
	assert.Equal(t, "20", estimate.VATRate.String())

	assert.Equal(t, "200000", estimate.Totals.MaterialsCost.String())
	assert.Equal(t, "250000", estimate.Totals.Subtotal.String())
	assert.Equal(t, "37500", estimate.Totals.Overhead.String())
	assert.Equal(t, "57500", estimate.Totals.Profit.String())
	assert.Equal(t, "69000", estimate.Totals.VAT.String())
	assert.Equal(t, "414000", estimate.Totals.Total.String())
	require.Len(t, estimate.Items, 2)
}

func TestCreateEstimateExplicitPercentages(t *testing.T) {
	svc, _, _ := newTestService()

	req := sampleCreateRequest()
	req.OverheadPct = ptr(d("10"))
	req.ProfitMargin = ptr(d("0"))
	req.VATRate = ptr(d("0"))

	estimate, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "25000", estimate.Totals.Overhead.String())
	assert.Equal(t, "0", estimate.Totals.Profit.String())
	assert.Equal(t, "275000", estimate.Totals.Total.String())
}

func TestCreateEstimateNoItemsSeedsBlankRow(t *testing.T) {
	svc, _, _ := newTestService()

	req := sampleCreateRequest()
	req.Items = nil
	req.LaborCost = decimal.Zero

	estimate, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	require.Len(t, estimate.Items, 1)
	assert.True(t, estimate.Items[0].TotalPrice.IsZero())
	assert.True(t, estimate.Totals.Total.IsZero())
}

func TestCreateEstimateNegativeQuantityRejected(t *testing.T) {
	svc, repo, _ := newTestService()

	req := sampleCreateRequest()
	req.Items[0].Quantity = d("-1")

	_, err := svc.Create(context.Background(), req, "user-1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, repo.estimates)
}

func TestCreateEstimateNegativeLaborCostRejected(t *testing.T) {
	svc, repo, _ := newTestService()

	req := sampleCreateRequest()
	req.LaborCost = d("-50000")

	_, err := svc.Create(context.Background(), req, "user-1")
	assert.ErrorIs(t, err, ErrInvalidLaborCost)
	assert.Empty(t, repo.estimates)
}

func TestCreateEstimateResolvesCatalogRefs(t *testing.T) {
	svc, _, catalog := newTestService()

	materialID := uuid.New()
	catalog.materials[materialID] = MaterialRecord{
		Name: "Гипсокартон", Unit: "лист", Category: "Отделка", UnitPrice: d("420"),
	}

	req := sampleCreateRequest()
	req.Items = []LineItemRequest{
		{CatalogRef: &materialID, Quantity: d("50")},
	}
	req.LaborCost = decimal.Zero

	estimate, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	require.Len(t, estimate.Items, 1)
	got := estimate.Items[0]
	require.NotNil(t, got.CatalogRef)
	assert.Equal(t, "Гипсокартон", got.Name)
	assert.Equal(t, "21000", got.TotalPrice.String())
	assert.Equal(t, "21000", estimate.Totals.MaterialsCost.String())
}

func TestCreateEstimateUnknownCatalogRefKeepsManualValues(t *testing.T) {
	svc, _, _ := newTestService()

	req := sampleCreateRequest()
	req.Items = []LineItemRequest{
		{CatalogRef: ptr(uuid.New()), Name: "ручная позиция", Quantity: d("2"), UnitPrice: d("500")},
	}

	estimate, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	got := estimate.Items[0]
	assert.Nil(t, got.CatalogRef)
	assert.Equal(t, "ручная позиция", got.Name)
	assert.Equal(t, "1000", got.TotalPrice.String())
}

// ============================================================================
// EDIT
// ============================================================================

func TestEditRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	updated, err := svc.Edit(context.Background(), estimate.ID, UpdateEstimateRequest{
		LaborCost: ptr(d("100000")),
	})
	require.NoError(t, err)

	assert.Equal(t, "300000", updated.Totals.Subtotal.String())
	assert.Equal(t, "45000", updated.Totals.Overhead.String())
	assert.Equal(t, "69000", updated.Totals.Profit.String())
	assert.Equal(t, "82800", updated.Totals.VAT.String())
	assert.Equal(t, "496800", updated.Totals.Total.String())
}

func TestEditReplacesItems(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	updated, err := svc.Edit(context.Background(), estimate.ID, UpdateEstimateRequest{
		Items: ptr([]LineItemRequest{
			{Name: "Единственная позиция", Quantity: d("10"), UnitPrice: d("1500")},
		}),
	})
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	assert.Equal(t, "15000", updated.Totals.MaterialsCost.String())
}

func TestEditNegativeLaborCostRejected(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Edit(context.Background(), estimate.ID, UpdateEstimateRequest{
		LaborCost: ptr(d("-1")),
	})
	assert.ErrorIs(t, err, ErrInvalidLaborCost)

	got, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, "50000", got.LaborCost.String())
	assert.Equal(t, "414000", got.Totals.Total.String())
}

func TestEditNonDraftRejected(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), estimate.ID, UpdateEstimateRequest{
		LaborCost: ptr(d("1")),
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEditNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Edit(context.Background(), uuid.New(), UpdateEstimateRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestSendSetsSentAt(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	sent, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
}

func TestSendTwiceRejected(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), estimate.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApproveSetsAuditFields(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), estimate.ID, "director-7")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "director-7", *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
}

func TestApproveRequiresSent(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Approve(context.Background(), estimate.ID, "director-7")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), estimate.ID, "client-3", "слишком дорого")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "слишком дорого", *rejected.RejectionReason)
	require.NotNil(t, rejected.RejectedBy)
	assert.Equal(t, "client-3", *rejected.RejectedBy)
}

func TestRejectedIsFinal(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), estimate.ID, "client-3", "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), estimate.ID, "director-7")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Send(context.Background(), estimate.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Expire(context.Background(), estimate.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpireFromDraftAndSent(t *testing.T) {
	svc, _, _ := newTestService()

	draft := createDraft(t, svc)
	expired, err := svc.Expire(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	other := createDraft(t, svc)
	_, err = svc.Send(context.Background(), other.ID)
	require.NoError(t, err)
	expired, err = svc.Expire(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)
}

func TestExpireApprovedRejected(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), estimate.ID, "director-7")
	require.NoError(t, err)

	_, err = svc.Expire(context.Background(), estimate.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// ============================================================================
// COPY
// ============================================================================

func TestCopyStartsFreshDraft(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), estimate.ID, "director-7")
	require.NoError(t, err)

	dup, err := svc.Copy(context.Background(), estimate.ID, "user-2")
	require.NoError(t, err)

	assert.NotEqual(t, estimate.ID, dup.ID)
	assert.Equal(t, StatusDraft, dup.Status)
	assert.Equal(t, 2, dup.Version)
	assert.Equal(t, "user-2", dup.CreatedBy)
	assert.Nil(t, dup.SentAt)
	assert.Nil(t, dup.ApprovedBy)
	assert.Equal(t, estimate.Totals.Total.String(), dup.Totals.Total.String())
	require.Len(t, dup.Items, len(estimate.Items))
}

func TestCopyIsIndependentOfSource(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	dup, err := svc.Copy(context.Background(), estimate.ID, "user-1")
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), dup.ID, UpdateEstimateRequest{
		LaborCost: ptr(d("999999")),
	})
	require.NoError(t, err)

	original, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, "414000", original.Totals.Total.String())
}

// ============================================================================
// EXPIRY
// ============================================================================

func TestGetLazilyExpiresOverdue(t *testing.T) {
	svc, _, _ := newTestService()

	req := sampleCreateRequest()
	req.ValidUntil = time.Now().Add(24 * time.Hour)
	estimate, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	got, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestGetKeepsValidEstimateUntouched(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	got, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestGetDoesNotExpireApproved(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	_, err := svc.Send(context.Background(), estimate.ID)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), estimate.ID, "director-7")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(90 * 24 * time.Hour) }

	got, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestExpireOverdueSweep(t *testing.T) {
	svc, _, _ := newTestService()

	overdue := func() CreateEstimateRequest {
		req := sampleCreateRequest()
		req.ValidUntil = time.Now().Add(-24 * time.Hour)
		return req
	}

	draft, err := svc.Create(context.Background(), overdue(), "user-1")
	require.NoError(t, err)
	sent, err := svc.Create(context.Background(), overdue(), "user-1")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), sent.ID)
	require.NoError(t, err)
	fresh := createDraft(t, svc)

	count, err := svc.ExpireOverdue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []uuid.UUID{draft.ID, sent.ID} {
		got, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, got.Status)
	}
	got, err := svc.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestExpireOverdueListError(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.listOverdueErr = errors.New("boom")

	_, err := svc.ExpireOverdue(context.Background(), time.Now())
	assert.Error(t, err)
}

// ============================================================================
// PREVIEW
// ============================================================================

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, repo, _ := newTestService()

	totals, err := svc.Preview(context.Background(), PreviewRequest{
		LaborCost:    d("50000"),
		OverheadPct:  d("15"),
		ProfitMargin: d("20"),
		VATRate:      d("20"),
		Items: []LineItemRequest{
			{Name: "Материалы", Quantity: d("2"), UnitPrice: d("100000")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "414000", totals.Total.String())
	assert.Empty(t, repo.estimates)
}

func TestPreviewNegativeLaborCostRejected(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Preview(context.Background(), PreviewRequest{LaborCost: d("-1")})
	assert.ErrorIs(t, err, ErrInvalidLaborCost)
}

func TestDeleteRemovesEstimate(t *testing.T) {
	svc, _, _ := newTestService()
	estimate := createDraft(t, svc)

	require.NoError(t, svc.Delete(context.Background(), estimate.ID))

	_, err := svc.Get(context.Background(), estimate.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFailedTransactionKeepsEstimate(t *testing.T) {
	svc, repo, _ := newTestService()
	estimate := createDraft(t, svc)

	repo.txError = errors.New("connection reset")
	err := svc.Delete(context.Background(), estimate.ID)
	assert.Error(t, err)

	repo.txError = nil
	got, err := svc.Get(context.Background(), estimate.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
}
