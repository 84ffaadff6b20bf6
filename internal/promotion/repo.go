package promotion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a rule does not exist.
var ErrNotFound = errors.New("promotion: rule not found")

// Repo persists promotion rules in Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

const ruleColumns = `id::text, name, kind, value, scope, target, active, position, created_at, updated_at`

// List returns all rules ordered by position then creation time.
func (r *Repo) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM promotion_rules ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListActive returns active rules in evaluation order.
func (r *Repo) ListActive(ctx context.Context) ([]Rule, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM promotion_rules WHERE active ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Get returns one rule by id.
func (r *Repo) Get(ctx context.Context, id string) (Rule, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM promotion_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// Create inserts a rule at the end of the evaluation order.
func (r *Repo) Create(ctx context.Context, rule Rule) (Rule, error) {
	row := r.Pool.QueryRow(ctx, `
INSERT INTO promotion_rules (id, name, kind, value, scope, target, active, position)
VALUES ($1, $2, $3, $4, $5, $6, $7,
        (SELECT COALESCE(MAX(position), 0) + 1 FROM promotion_rules))
RETURNING `+ruleColumns,
		rule.ID, rule.Name, rule.Kind, rule.Value, rule.Scope, rule.Target, rule.Active)
	created, err := scanRule(row)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return created, nil
}

// Update rewrites a rule's definition.
func (r *Repo) Update(ctx context.Context, rule Rule) (Rule, error) {
	row := r.Pool.QueryRow(ctx, `
UPDATE promotion_rules
SET name = $2, kind = $3, value = $4, scope = $5, target = $6, active = $7, updated_at = now()
WHERE id = $1
RETURNING `+ruleColumns,
		rule.ID, rule.Name, rule.Kind, rule.Value, rule.Scope, rule.Target, rule.Active)
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return updated, nil
}

// Toggle flips a rule's active flag and returns the new state.
func (r *Repo) Toggle(ctx context.Context, id string) (Rule, error) {
	row := r.Pool.QueryRow(ctx, `
UPDATE promotion_rules
SET active = NOT active, updated_at = now()
WHERE id = $1
RETURNING `+ruleColumns, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("toggle rule: %w", err)
	}
	return rule, nil
}

// Delete removes a rule.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM promotion_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.Name, &rule.Kind, &rule.Value, &rule.Scope,
		&rule.Target, &rule.Active, &rule.Position, &rule.CreatedAt, &rule.UpdatedAt)
	return rule, err
}
