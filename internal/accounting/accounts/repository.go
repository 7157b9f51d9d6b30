package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAccountNotFound indicates the account name is unknown.
var ErrAccountNotFound = errors.New("accounts: account not found")

type Repository interface {
	Get(ctx context.Context, name string) (Account, error)
	// IsGroup reports whether the account aggregates children. Unknown
	// accounts report false.
	IsGroup(ctx context.Context, name string) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, name string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT name, account_number, company, root_type, parent_account, is_group, disabled, updated_at
FROM accounts WHERE name=$1`, name).
		Scan(&a.Name, &a.AccountNumber, &a.Company, &a.RootType, &a.ParentAccount, &a.IsGroup, &a.Disabled, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) IsGroup(ctx context.Context, name string) (bool, error) {
	var isGroup bool
	err := r.db.QueryRow(ctx, `SELECT is_group FROM accounts WHERE name=$1`, name).Scan(&isGroup)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return isGroup, nil
}
