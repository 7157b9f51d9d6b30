package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
	"github.com/odyssey-erp/expensepay/internal/platform/db"
)

// sqlStateGroupAccount is raised by the gl_entries insert trigger when the
// line targets a group account.
const sqlStateGroupAccount = "EP001"

// Repository encapsulates DB operations for GL entries.
type Repository interface {
	// Insert persists a single line outside any batch transaction.
	Insert(ctx context.Context, e Entry) (Entry, error)
	CountByVoucher(ctx context.Context, v Voucher, includeCancelled bool) (int, error)
	ListByVoucher(ctx context.Context, v Voucher) ([]Entry, error)
	// MarkCancelled flips every active line of the voucher to cancelled.
	MarkCancelled(ctx context.Context, v Voucher, actor string, at time.Time) (int64, error)
	DeleteByVoucher(ctx context.Context, v Voucher) (int64, error)
	// Imbalances lists vouchers of voucherType whose lines do not net to zero.
	Imbalances(ctx context.Context, voucherType string) ([]Imbalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the per-document corrections run inside a transaction.
type TxRepository interface {
	FindActiveByAccount(ctx context.Context, v Voucher, account string) ([]Entry, error)
	UpdateCostCenter(ctx context.Context, name, costCenter, remarks, actor string, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `name, posting_date, account, COALESCE(cost_center, ''), COALESCE(project, ''), debit, credit,
debit_in_account_currency, credit_in_account_currency, against, voucher_type, voucher_no, is_opening, is_advance,
fiscal_year, company, is_cancelled, to_rename, remarks, created_at, updated_at, COALESCE(updated_by, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.Name, &e.PostingDate, &e.Account, &e.CostCenter, &e.Project, &e.Debit, &e.Credit,
		&e.DebitInAccountCurrency, &e.CreditInAccountCurrency, &e.Against, &e.VoucherType, &e.VoucherNo, &e.IsOpening, &e.IsAdvance,
		&e.FiscalYear, &e.Company, &e.IsCancelled, &e.ToRename, &e.Remarks, &e.CreatedAt, &e.UpdatedAt, &e.UpdatedBy)
	return e, err
}

func (r *repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO gl_entries (name, posting_date, account, cost_center, project, debit, credit,
debit_in_account_currency, credit_in_account_currency, against, voucher_type, voucher_no, is_opening, is_advance,
fiscal_year, company, is_cancelled, to_rename, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19) RETURNING created_at, updated_at`,
		e.Name, e.PostingDate, e.Account, nullString(e.CostCenter), nullString(e.Project), e.Debit, e.Credit,
		e.DebitInAccountCurrency, e.CreditInAccountCurrency, e.Against, e.VoucherType, e.VoucherNo, e.IsOpening, e.IsAdvance,
		e.FiscalYear, e.Company, e.IsCancelled, e.ToRename, e.Remarks)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, classify(err, e)
	}
	return e, nil
}

func (r *repository) CountByVoucher(ctx context.Context, v Voucher, includeCancelled bool) (int, error) {
	query := `SELECT COUNT(*) FROM gl_entries WHERE voucher_type=$1 AND voucher_no=$2`
	if !includeCancelled {
		query += ` AND NOT is_cancelled`
	}
	var n int
	if err := r.db.QueryRow(ctx, query, v.Type, v.No).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *repository) ListByVoucher(ctx context.Context, v Voucher) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM gl_entries WHERE voucher_type=$1 AND voucher_no=$2 ORDER BY created_at, name`, v.Type, v.No)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) MarkCancelled(ctx context.Context, v Voucher, actor string, at time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE gl_entries SET is_cancelled=TRUE, updated_at=$3, updated_by=$4
WHERE voucher_type=$1 AND voucher_no=$2 AND NOT is_cancelled`, v.Type, v.No, at, actor)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *repository) DeleteByVoucher(ctx context.Context, v Voucher) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM gl_entries WHERE voucher_type=$1 AND voucher_no=$2`, v.Type, v.No)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *repository) Imbalances(ctx context.Context, voucherType string) ([]Imbalance, error) {
	rows, err := r.db.Query(ctx, `SELECT voucher_no, SUM(debit), SUM(credit) FROM gl_entries
WHERE voucher_type=$1 GROUP BY voucher_no HAVING ROUND(SUM(debit), 2) <> ROUND(SUM(credit), 2) ORDER BY voucher_no`, voucherType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.VoucherNo, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// WithTx runs fn in a RepeatableRead transaction. fn may be invoked again
// after a serialization failure.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) FindActiveByAccount(ctx context.Context, v Voucher, account string) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM gl_entries
WHERE voucher_type=$1 AND voucher_no=$2 AND account=$3 AND NOT is_cancelled ORDER BY created_at, name FOR UPDATE`, v.Type, v.No, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) UpdateCostCenter(ctx context.Context, name, costCenter, remarks, actor string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE gl_entries SET cost_center=$2, remarks=$3, updated_at=$4, updated_by=$5 WHERE name=$1`,
		name, costCenter, remarks, at, actor)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

// classify turns a driver error into a typed posting error.
func classify(err error, e Entry) error {
	kind := shared.KindWrite
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateGroupAccount {
		kind = shared.KindGroupAccount
	}
	return &shared.PostingError{Kind: kind, Voucher: e.VoucherNo, Account: e.Account, Err: err}
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
