// Package expenses records operating costs for the accounting view.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// ErrNotFound is returned when an expense does not exist.
var ErrNotFound = errors.New("expenses: not found")

var validCategories = map[string]struct{}{
	"ALQUILER": {}, "SERVICIOS": {}, "PERSONAL": {}, "MARKETING": {},
	"IMPUESTOS": {}, "MATERIALES": {}, "LOGISTICA": {}, "OTROS": {},
}

// Expense is one recorded cost.
type Expense struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Notes       string          `json:"notes,omitempty"`
	IsFixed     bool            `json:"isFixed"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Input is the caller-supplied expense shape.
type Input struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Notes       string          `json:"notes,omitempty"`
	IsFixed     bool            `json:"isFixed"`
}

// Repo persists expenses in Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

const expenseColumns = `id::text, description, amount, category, expense_date, notes, is_fixed, created_at, updated_at`

// List returns a page of expenses, newest expense date first.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]Expense, int64, error) {
	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM expenses`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY expense_date DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]Expense, 0, limit)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Create inserts an expense.
func (r *Repo) Create(ctx context.Context, e Expense) (Expense, error) {
	row := r.Pool.QueryRow(ctx, `
INSERT INTO expenses (id, description, amount, category, expense_date, notes, is_fixed)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+expenseColumns,
		e.ID, e.Description, e.Amount, e.Category, e.Date, e.Notes, e.IsFixed)
	created, err := scanExpense(row)
	if err != nil {
		return Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return created, nil
}

// Update rewrites an expense.
func (r *Repo) Update(ctx context.Context, e Expense) (Expense, error) {
	row := r.Pool.QueryRow(ctx, `
UPDATE expenses
SET description = $2, amount = $3, category = $4, expense_date = $5,
    notes = $6, is_fixed = $7, updated_at = now()
WHERE id = $1
RETURNING `+expenseColumns,
		e.ID, e.Description, e.Amount, e.Category, e.Date, e.Notes, e.IsFixed)
	updated, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return updated, nil
}

// Delete removes an expense.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Description, &e.Amount, &e.Category, &e.Date,
		&e.Notes, &e.IsFixed, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

type repoProvider interface {
	List(ctx context.Context, limit, offset int) ([]Expense, int64, error)
	Create(ctx context.Context, e Expense) (Expense, error)
	Update(ctx context.Context, e Expense) (Expense, error)
	Delete(ctx context.Context, id string) error
}

// Service validates and persists expenses.
type Service struct {
	Repo repoProvider
	Now  func() time.Time

	DefaultPerPage int
	MaxPerPage     int
}

// List returns a page of expenses.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Expense, int64, error) {
	return s.Repo.List(ctx, perPage, common.Offset(page, perPage))
}

// Create validates and inserts a new expense.
func (s *Service) Create(ctx context.Context, in Input) (Expense, error) {
	e, err := s.build(uuid.NewString(), in)
	if err != nil {
		return Expense{}, err
	}
	return s.Repo.Create(ctx, e)
}

// Update validates and rewrites an expense.
func (s *Service) Update(ctx context.Context, id string, in Input) (Expense, error) {
	e, err := s.build(id, in)
	if err != nil {
		return Expense{}, err
	}
	updated, err := s.Repo.Update(ctx, e)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Expense{}, common.NotFound("expense")
		}
		return Expense{}, err
	}
	return updated, nil
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFound("expense")
		}
		return err
	}
	return nil
}

func (s *Service) build(id string, in Input) (Expense, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Expense{}, common.Invalid("description is required")
	}
	if in.Amount.IsNegative() {
		return Expense{}, common.Invalid("amount cannot be negative")
	}
	category := strings.ToUpper(strings.TrimSpace(in.Category))
	if _, ok := validCategories[category]; !ok {
		return Expense{}, common.Invalid("unknown category " + category)
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	return Expense{
		ID:          id,
		Description: description,
		Amount:      in.Amount,
		Category:    category,
		Date:        date,
		Notes:       strings.TrimSpace(in.Notes),
		IsFixed:     in.IsFixed,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
