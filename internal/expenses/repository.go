package expenses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expensepay/internal/platform/db"
)

// Repository persists Expenses Entry documents.
type Repository interface {
	Get(ctx context.Context, name string) (Entry, error)
	// ListSubmitted returns every submitted document ordered by name.
	ListSubmitted(ctx context.Context) ([]Entry, error)
	// ListSubmittedBetween returns submitted documents whose posting date falls
	// in [from, to], ordered by name.
	ListSubmittedBetween(ctx context.Context, from, to time.Time) ([]Entry, error)
	CountSubmittedBetween(ctx context.Context, from, to time.Time) (int, error)
	Create(ctx context.Context, entry Entry) (Entry, error)
	// SaveAmounts rewrites the split amounts of every line.
	SaveAmounts(ctx context.Context, entry Entry) error
	SetStatus(ctx context.Context, name string, from, to Status) error
	Delete(ctx context.Context, name string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `name, posting_date, company, account_paid_from, paid_amount, COALESCE(default_cost_center, ''),
COALESCE(remarks, ''), status, COALESCE(created_by, ''), created_at, updated_at`

func (r *repository) Get(ctx context.Context, name string) (Entry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM expenses_entries WHERE name=$1`, name)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	lines, err := r.loadLines(ctx, []string{entry.Name})
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines[entry.Name]
	return entry, nil
}

func (r *repository) ListSubmitted(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM expenses_entries WHERE status=$1 ORDER BY name`, StatusSubmitted)
}

func (r *repository) ListSubmittedBetween(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM expenses_entries
WHERE status=$1 AND posting_date BETWEEN $2 AND $3 ORDER BY name`, StatusSubmitted, from, to)
}

func (r *repository) CountSubmittedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM expenses_entries WHERE status=$1 AND posting_date BETWEEN $2 AND $3`,
		StatusSubmitted, from, to).Scan(&n)
	return n, err
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}
	names := make([]string, len(entries))
	for i := range entries {
		names[i] = entries[i].Name
	}
	lines, err := r.loadLines(ctx, names)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].Name]
	}
	return entries, nil
}

func (r *repository) loadLines(ctx context.Context, names []string) (map[string][]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT entry_name, idx, account_paid_to, amount, amount_without_vat, vat_amount,
COALESCE(vat_template, ''), COALESCE(cost_center, ''), COALESCE(project, ''), COALESCE(remarks, '')
FROM expenses_entry_lines WHERE entry_name = ANY($1) ORDER BY entry_name, idx`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]Line, len(names))
	for rows.Next() {
		var (
			owner      string
			line       Line
			withoutVAT decimal.NullDecimal
			vat        decimal.NullDecimal
		)
		if err := rows.Scan(&owner, &line.Idx, &line.PaidTo, &line.Amount, &withoutVAT, &vat,
			&line.VATTemplate, &line.CostCenter, &line.Project, &line.Remarks); err != nil {
			return nil, err
		}
		line.AmountWithoutVAT = withoutVAT.Decimal
		line.VATAmount = vat.Decimal
		line.Schema = ResolveSchema(withoutVAT, vat)
		out[owner] = append(out[owner], line)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.Name, &e.PostingDate, &e.Company, &e.PaidFrom, &e.PaidAmount, &e.DefaultCostCenter,
		&e.Remarks, &e.Status, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *repository) Create(ctx context.Context, entry Entry) (Entry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	err = tx.QueryRow(ctx, `INSERT INTO expenses_entries (name, posting_date, company, account_paid_from, paid_amount,
default_cost_center, remarks, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING created_at, updated_at`,
		entry.Name, entry.PostingDate, entry.Company, entry.PaidFrom, entry.PaidAmount,
		nullString(entry.DefaultCostCenter), nullString(entry.Remarks), entry.Status, nullString(entry.CreatedBy),
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Entry{}, ErrDuplicate
		}
		return Entry{}, err
	}
	for _, line := range entry.Lines {
		withoutVAT, vat := splitColumns(line)
		if _, err := tx.Exec(ctx, `INSERT INTO expenses_entry_lines (entry_name, idx, account_paid_to, amount,
amount_without_vat, vat_amount, vat_template, cost_center, project, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			entry.Name, line.Idx, line.PaidTo, line.Amount, withoutVAT, vat,
			nullString(line.VATTemplate), nullString(line.CostCenter), nullString(line.Project), nullString(line.Remarks)); err != nil {
			return Entry{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *repository) SaveAmounts(ctx context.Context, entry Entry) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, line := range entry.Lines {
			withoutVAT, vat := splitColumns(line)
			if _, err := tx.Exec(ctx, `UPDATE expenses_entry_lines SET amount=$3, amount_without_vat=$4, vat_amount=$5
WHERE entry_name=$1 AND idx=$2`, entry.Name, line.Idx, line.Amount, withoutVAT, vat); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE expenses_entries SET updated_at=NOW() WHERE name=$1`, entry.Name)
		return err
	})
}

func (r *repository) SetStatus(ctx context.Context, name string, from, to Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE expenses_entries SET status=$3, updated_at=NOW() WHERE name=$1 AND status=$2`, name, from, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, name string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM expenses_entries WHERE name=$1`, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// splitColumns keeps legacy lines NULL in the split columns unless amounts
// were written into them.
func splitColumns(line Line) (any, any) {
	if line.Schema == SchemaLegacy && line.AmountWithoutVAT.IsZero() && line.VATAmount.IsZero() {
		return nil, nil
	}
	return line.AmountWithoutVAT, line.VATAmount
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
