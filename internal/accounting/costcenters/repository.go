package costcenters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCostCenterNotFound indicates an unknown cost center.
var ErrCostCenterNotFound = errors.New("costcenters: cost center not found")

type Repository interface {
	Get(ctx context.Context, name string) (CostCenter, error)
	IsGroup(ctx context.Context, name string) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves a cost center by name.
func (r *repository) Get(ctx context.Context, name string) (CostCenter, error) {
	if name == "" {
		return CostCenter{}, ErrCostCenterNotFound
	}
	var cc CostCenter
	err := r.db.QueryRow(ctx, `SELECT name, company, parent_cost_center, is_group, updated_at FROM cost_centers WHERE name=$1`, name).
		Scan(&cc.Name, &cc.Company, &cc.ParentCostCenter, &cc.IsGroup, &cc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostCenter{}, ErrCostCenterNotFound
		}
		return CostCenter{}, err
	}
	return cc, nil
}

// IsGroup reports false for unknown cost centers.
func (r *repository) IsGroup(ctx context.Context, name string) (bool, error) {
	cc, err := r.Get(ctx, name)
	if err != nil {
		if errors.Is(err, ErrCostCenterNotFound) {
			return false, nil
		}
		return false, err
	}
	return cc.IsGroup, nil
}
