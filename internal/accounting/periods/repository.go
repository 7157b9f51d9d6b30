package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

// UserDefaultFiscalYear is the user_defaults key holding a user's fiscal year.
const UserDefaultFiscalYear = "fiscal_year"

type Repository interface {
	// UserDefault returns the saved default for key, or "" when none exists.
	UserDefault(ctx context.Context, userID, key string) (string, error)
	FindFiscalYearByDate(ctx context.Context, date time.Time) (FiscalYear, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) UserDefault(ctx context.Context, userID, key string) (string, error) {
	if userID == "" {
		return "", nil
	}
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM user_defaults WHERE user_id=$1 AND key=$2`, userID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// FindFiscalYearByDate returns the enabled fiscal year covering the supplied date.
func (r *repository) FindFiscalYearByDate(ctx context.Context, date time.Time) (FiscalYear, error) {
	var fy FiscalYear
	err := r.db.QueryRow(ctx, `SELECT name, start_date, end_date, disabled
FROM fiscal_years WHERE NOT disabled AND $1 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date).
		Scan(&fy.Name, &fy.StartDate, &fy.EndDate, &fy.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	return fy, nil
}
