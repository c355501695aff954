package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("material not found")
	ErrDuplicateCode = errors.New("material code already in use")
)

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Material, error)
	List(ctx context.Context, req ListMaterialsRequest) ([]Material, int, error)
	Create(ctx context.Context, material Material) error
	Update(ctx context.Context, material Material) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

const materialColumns = `id, code, name, unit, category, unit_price, is_active, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Unit, &m.Category, &m.UnitPrice, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *repo) Get(ctx context.Context, id uuid.UUID) (Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	return scanMaterial(r.db.QueryRow(ctx, query, id))
}

func (r *repo) List(ctx context.Context, req ListMaterialsRequest) ([]Material, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argPos := 1

	if req.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argPos))
		args = append(args, *req.Category)
		argPos++
	}
	if req.Search != nil {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}
	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM materials "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+materialColumns+` FROM materials %s ORDER BY name LIMIT $%d OFFSET $%d`,
		whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		materials = append(materials, m)
	}
	return materials, total, rows.Err()
}

func (r *repo) Create(ctx context.Context, m Material) error {
	query := `INSERT INTO materials (id, code, name, unit, category, unit_price, is_active, created_at, updated_at)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`
	_, err := r.db.Exec(ctx, query, m.ID, m.Code, m.Name, m.Unit, m.Category, m.UnitPrice, m.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (r *repo) Update(ctx context.Context, m Material) error {
	query := `UPDATE materials SET name = $2, unit = $3, category = $4, unit_price = $5, is_active = $6, updated_at = NOW()
	          WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, m.ID, m.Name, m.Unit, m.Category, m.UnitPrice, m.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	return err
}
