package estimates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smetaflow/smetaflow/internal/platform/db"
)

var (
	ErrNotFound = errors.New("estimate not found")
)

// StatusChange carries the audit fields written alongside a status
// transition.
type StatusChange struct {
	SentAt          *time.Time
	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectedBy      *string
	RejectedAt      *time.Time
	RejectionReason *string
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Estimate, error)
	List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error)
	Create(ctx context.Context, estimate Estimate) error
	Update(ctx context.Context, estimate Estimate) error
	ReplaceItems(ctx context.Context, estimateID uuid.UUID, items []LineItem) error
	// UpdateStatus transitions the estimate to the target status only while
	// its current status is one of allowedFrom, in a single guarded UPDATE.
	// A concurrent transition that got there first surfaces as
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, to EstimateStatus, change StatusChange, allowedFrom ...EstimateStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const estimateColumns = `id, name, description, client_name, project_ref, version, status,
       valid_until, labor_cost, overhead_pct, profit_margin, vat_rate,
       materials_cost, subtotal, overhead, profit, vat, total,
       created_by, sent_at, approved_by, approved_at, rejected_by, rejected_at,
       rejection_reason, created_at, updated_at`

func scanEstimate(row pgx.Row) (*Estimate, error) {
	var e Estimate
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.ClientName, &e.ProjectRef, &e.Version, &e.Status,
		&e.ValidUntil, &e.LaborCost, &e.OverheadPct, &e.ProfitMargin, &e.VATRate,
		&e.Totals.MaterialsCost, &e.Totals.Subtotal, &e.Totals.Overhead, &e.Totals.Profit,
		&e.Totals.VAT, &e.Totals.Total,
		&e.CreatedBy, &e.SentAt, &e.ApprovedBy, &e.ApprovedAt, &e.RejectedBy, &e.RejectedAt,
		&e.RejectionReason, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Estimate, error) {
	query := `SELECT ` + estimateColumns + ` FROM estimates WHERE id = $1`
	estimate, err := scanEstimate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	estimate.Items = items
	return estimate, nil
}

func (r *repository) listItems(ctx context.Context, estimateID uuid.UUID) ([]LineItem, error) {
	query := `SELECT id, estimate_id, catalog_ref, name, unit, category, quantity, unit_price, total_price, sort_order
	          FROM estimate_items WHERE estimate_id = $1 ORDER BY sort_order, id`
	rows, err := r.db.Query(ctx, query, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var item LineItem
		err := rows.Scan(&item.ID, &item.EstimateID, &item.CatalogRef, &item.Name, &item.Unit,
			&item.Category, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.SortOrder)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argPos := 1

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.ClientName != nil {
		conditions = append(conditions, fmt.Sprintf("client_name ILIKE $%d", argPos))
		args = append(args, "%"+*req.ClientName+"%")
		argPos++
	}
	if req.ProjectRef != nil {
		conditions = append(conditions, fmt.Sprintf("project_ref = $%d", argPos))
		args = append(args, *req.ProjectRef)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM estimates " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+estimateColumns+` FROM estimates %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var estimates []Estimate
	for rows.Next() {
		estimate, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, err
		}
		estimates = append(estimates, *estimate)
	}
	return estimates, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, e Estimate) error {
	query := `INSERT INTO estimates (
		id, name, description, client_name, project_ref, version, status,
		valid_until, labor_cost, overhead_pct, profit_margin, vat_rate,
		materials_cost, subtotal, overhead, profit, vat, total,
		created_by, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW(),NOW())`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.Name, e.Description, e.ClientName, e.ProjectRef, e.Version, e.Status,
		e.ValidUntil, e.LaborCost, e.OverheadPct, e.ProfitMargin, e.VATRate,
		e.Totals.MaterialsCost, e.Totals.Subtotal, e.Totals.Overhead, e.Totals.Profit,
		e.Totals.VAT, e.Totals.Total,
		e.CreatedBy,
	)
	return err
}

func (r *repository) Update(ctx context.Context, e Estimate) error {
	query := `UPDATE estimates SET
		name = $2, description = $3, client_name = $4, project_ref = $5,
		valid_until = $6, labor_cost = $7, overhead_pct = $8, profit_margin = $9, vat_rate = $10,
		materials_cost = $11, subtotal = $12, overhead = $13, profit = $14, vat = $15, total = $16,
		updated_at = NOW()
	WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		e.ID, e.Name, e.Description, e.ClientName, e.ProjectRef,
		e.ValidUntil, e.LaborCost, e.OverheadPct, e.ProfitMargin, e.VATRate,
		e.Totals.MaterialsCost, e.Totals.Subtotal, e.Totals.Overhead, e.Totals.Profit,
		e.Totals.VAT, e.Totals.Total,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ReplaceItems(ctx context.Context, estimateID uuid.UUID, items []LineItem) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM estimate_items WHERE estimate_id = $1`, estimateID); err != nil {
		return err
	}
	query := `INSERT INTO estimate_items (estimate_id, catalog_ref, name, unit, category, quantity, unit_price, total_price, sort_order)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for i, item := range items {
		order := item.SortOrder
		if order == 0 {
			order = i + 1
		}
		_, err := r.db.Exec(ctx, query, estimateID, item.CatalogRef, item.Name, item.Unit,
			item.Category, item.Quantity, item.UnitPrice, item.TotalPrice, order)
		if err != nil {
			return fmt.Errorf("insert estimate item: %w", err)
		}
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, to EstimateStatus, change StatusChange, allowedFrom ...EstimateStatus) error {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}
	query := `UPDATE estimates SET status = $2,
		sent_at = COALESCE($3, sent_at),
		approved_by = COALESCE($4, approved_by),
		approved_at = COALESCE($5, approved_at),
		rejected_by = COALESCE($6, rejected_by),
		rejected_at = COALESCE($7, rejected_at),
		rejection_reason = COALESCE($8, rejection_reason),
		updated_at = NOW()
	WHERE id = $1 AND status = ANY($9)`
	tag, err := r.db.Exec(ctx, query, id, to,
		change.SentAt, change.ApprovedBy, change.ApprovedAt,
		change.RejectedBy, change.RejectedAt, change.RejectionReason, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM estimates WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM estimate_items WHERE estimate_id = $1`, id)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `DELETE FROM estimates WHERE id = $1`, id)
	return err
}

func (r *repository) ListOverdue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	query := `SELECT id FROM estimates WHERE status = ANY($1) AND valid_until < $2 ORDER BY valid_until`
	rows, err := r.db.Query(ctx, query, []string{string(StatusDraft), string(StatusSent)}, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
