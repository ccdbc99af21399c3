package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// timestampLayout keeps lexical order equal to chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// deleteChunk bounds the number of bound parameters per DELETE statement.
const deleteChunk = 500

const expenseColumns = "id, description, amount_cents, category, payment_method, date, created_by, created_at, updated_at"

// sortColumns maps API sort fields to columns. Unknown fields never reach
// SQL text.
var sortColumns = map[core.SortField]string{
	core.SortDescription:   "description",
	core.SortAmount:        "amount_cents",
	core.SortCategory:      "category",
	core.SortPaymentMethod: "payment_method",
	core.SortDate:          "date",
	core.SortCreatedAt:     "created_at",
}

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dataSourceName(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// dataSourceName enables WAL, waits on locks instead of failing, and starts
// write transactions with an immediate lock.
func dataSourceName(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const insertExpense = `INSERT INTO expenses (` + expenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *SQLiteRepository) Create(ctx context.Context, e core.Expense) error {
	if _, err := r.db.ExecContext(ctx, insertExpense, insertArgs(e)...); err != nil {
		return classify("insert expense", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentStorage).DebugContext(ctx, "Expense saved to SQLite",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.CreatedBy,
		log.FieldAmountCents, e.Amount.Cents)
	return nil
}

// CreateMany inserts es in a single transaction.
func (r *SQLiteRepository) CreateMany(ctx context.Context, es []core.Expense) error {
	if len(es) == 0 {
		return nil
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertExpense)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range es {
			if _, err := stmt.ExecContext(ctx, insertArgs(e)...); err != nil {
				return classify(fmt.Sprintf("insert expense %d", i+1), err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) List(ctx context.Context, q core.ListQuery) ([]core.Expense, error) {
	where, args := whereClause(q.Filter)

	var b strings.Builder
	b.WriteString("SELECT " + expenseColumns + " FROM expenses")
	b.WriteString(where)
	if col, ok := sortColumns[q.Sort.Field]; ok {
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid ASC", col, dir)
	} else {
		b.WriteString(" ORDER BY rowid ASC")
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, q.Page.Size, q.Page.Offset())

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, f core.Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

// Update runs the read-merge-write of one expense in a transaction.
func (r *SQLiteRepository) Update(ctx context.Context, owner, id string, mutate func(core.Expense) (core.Expense, error)) (core.Expense, error) {
	var updated core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND created_by = ?", id, owner)
		current, err := scanExpense(row)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}

		updated, err = mutate(current)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE expenses
			SET description = ?, amount_cents = ?, category = ?, payment_method = ?, date = ?, updated_at = ?
			WHERE id = ? AND created_by = ?`,
			updated.Description,
			updated.Amount.Cents,
			updated.Category,
			updated.PaymentMethod,
			updated.Date.String(),
			formatTimestamp(updated.UpdatedAt),
			id, owner)
		if err != nil {
			return classify("update expense", err)
		}
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteMany(ctx context.Context, owner string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var deleted []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(ids); start += deleteChunk {
			chunk := ids[start:min(start+deleteChunk, len(ids))]
			args := make([]any, 0, len(chunk)+1)
			args = append(args, owner)
			for _, id := range chunk {
				args = append(args, id)
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
			rows, err := tx.QueryContext(ctx,
				"DELETE FROM expenses WHERE created_by = ? AND id IN ("+placeholders+") RETURNING id", args...)
			if err != nil {
				return fmt.Errorf("delete expenses: %w", err)
			}
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return fmt.Errorf("scan deleted id: %w", err)
				}
				deleted = append(deleted, id)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return fmt.Errorf("delete expenses: %w", err)
			}
			rows.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *SQLiteRepository) MonthlyStats(ctx context.Context, owner string) ([]core.MonthlyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CAST(substr(date, 1, 4) AS INTEGER) AS year,
		       CAST(substr(date, 6, 2) AS INTEGER) AS month,
		       SUM(amount_cents),
		       COUNT(*)
		FROM expenses
		WHERE created_by = ?
		GROUP BY year, month
		ORDER BY year DESC, month DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("query monthly stats: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyStat
	for rows.Next() {
		var s core.MonthlyStat
		if err := rows.Scan(&s.Year, &s.Month, &s.TotalAmount.Cents, &s.Count); err != nil {
			return nil, fmt.Errorf("scan monthly stat: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly stats: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.FromContext(ctx).WithComponent(log.ComponentStorage).ErrorContext(ctx, "Failed to roll back transaction",
				log.FieldError, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func whereClause(f core.Filter) (string, []any) {
	conds := []string{"created_by = ?"}
	args := []any{f.Owner}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.PaymentMethod != "" {
		conds = append(conds, "payment_method = ?")
		args = append(args, f.PaymentMethod)
	}
	if !f.StartDate.IsEmpty() {
		conds = append(conds, "date >= ?")
		args = append(args, f.StartDate.String())
	}
	if !f.EndDate.IsEmpty() {
		conds = append(conds, "date <= ?")
		args = append(args, f.EndDate.String())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func insertArgs(e core.Expense) []any {
	return []any{
		e.ID,
		e.Description,
		e.Amount.Cents,
		e.Category,
		e.PaymentMethod,
		e.Date.String(),
		e.CreatedBy,
		formatTimestamp(e.CreatedAt),
		formatTimestamp(e.UpdatedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                    core.Expense
		date                 string
		createdAt, updatedAt string
	)
	err := s.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.Category, &e.PaymentMethod,
		&date, &e.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan expense: %w", err)
	}

	if e.Date, err = core.ParseDate(date); err != nil {
		return e, fmt.Errorf("expense %s: stored date %q: %w", e.ID, date, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return e, fmt.Errorf("expense %s: created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return e, fmt.Errorf("expense %s: updated_at: %w", e.ID, err)
	}
	return e, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// classify attaches an error kind to SQLite constraint violations.
func classify(op string, err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return core.E(core.KindConflict, op, err)
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return core.E(core.KindValidation, op, err)
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return core.E(core.KindConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
