package correction

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/expensepay/internal/platform/db"
)

var (
	// ErrRunNotFound indicates an unknown tracking document.
	ErrRunNotFound = errors.New("correction: run not found")
	// ErrDuplicateRun is returned when the run name is taken.
	ErrDuplicateRun = errors.New("correction: run already exists")
)

// Repository persists tracking documents and their logs.
type Repository interface {
	Create(ctx context.Context, run Run) (Run, error)
	Get(ctx context.Context, name string) (Run, error)
	// SaveResult replaces the log and stores the summary status.
	SaveResult(ctx context.Context, name, status string, log []LogDetail) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, run Run) (Run, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO cost_center_update_runs (name, from_date, to_date, expense_entry, update_status)
VALUES ($1,$2,$3,$4,'') RETURNING created_at, updated_at`,
		run.Name, nullDate(run.FromDate), nullDate(run.ToDate), nullString(run.ExpenseEntry),
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Run{}, ErrDuplicateRun
		}
		return Run{}, err
	}
	return run, nil
}

func (r *repository) Get(ctx context.Context, name string) (Run, error) {
	var (
		run      Run
		from, to *time.Time
		entry    *string
	)
	err := r.db.QueryRow(ctx, `SELECT name, from_date, to_date, expense_entry, update_status, created_at, updated_at
FROM cost_center_update_runs WHERE name=$1`, name).
		Scan(&run.Name, &from, &to, &entry, &run.UpdateStatus, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	if from != nil {
		run.FromDate = *from
	}
	if to != nil {
		run.ToDate = *to
	}
	if entry != nil {
		run.ExpenseEntry = *entry
	}

	rows, err := r.db.Query(ctx, `SELECT entry_name, row_idx, log_message FROM cost_center_update_logs
WHERE run_name=$1 ORDER BY seq`, name)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d LogDetail
		if err := rows.Scan(&d.EntryName, &d.RowIdx, &d.Message); err != nil {
			return Run{}, err
		}
		run.Log = append(run.Log, d)
	}
	return run, rows.Err()
}

func (r *repository) SaveResult(ctx context.Context, name, status string, log []LogDetail) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE cost_center_update_runs SET update_status=$2, updated_at=NOW() WHERE name=$1`, name, status)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrRunNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cost_center_update_logs WHERE run_name=$1`, name); err != nil {
			return err
		}
		if len(log) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"cost_center_update_logs"},
			[]string{"run_name", "seq", "entry_name", "row_idx", "log_message"},
			pgx.CopyFromSlice(len(log), func(i int) ([]any, error) {
				return []any{name, i + 1, log[i].EntryName, log[i].RowIdx, log[i].Message}, nil
			}))
		return err
	})
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
