package taxes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTemplateNotFound indicates an unknown template name.
var ErrTemplateNotFound = errors.New("taxes: template not found")

type Repository interface {
	Get(ctx context.Context, name string) (Template, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Get loads the template with its rules in row order.
func (r *repository) Get(ctx context.Context, name string) (Template, error) {
	var t Template
	err := r.pool.QueryRow(ctx, `SELECT name, title, company, disabled FROM tax_templates WHERE name=$1`, name).
		Scan(&t.Name, &t.Title, &t.Company, &t.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrTemplateNotFound
		}
		return Template{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT idx, account_head, COALESCE(cost_center, ''), rate, COALESCE(description, '')
FROM tax_template_rules WHERE template=$1 ORDER BY idx ASC`, name)
	if err != nil {
		return Template{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.Idx, &rule.AccountHead, &rule.CostCenter, &rule.Rate, &rule.Description); err != nil {
			return Template{}, err
		}
		t.Rules = append(t.Rules, rule)
	}
	return t, rows.Err()
}
