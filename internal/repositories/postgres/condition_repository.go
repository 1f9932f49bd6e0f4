package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/repositories"
)

// PostgresConditionRepository implements ConditionRepository using PostgreSQL
type PostgresConditionRepository struct {
	db *sql.DB
}

// NewPostgresConditionRepository creates a new PostgreSQL condition repository
func NewPostgresConditionRepository(db *sql.DB) repositories.ConditionRepository {
	return &PostgresConditionRepository{db: db}
}

const insertConditionQuery = `
		INSERT INTO conditions
			(owner_action_id, target_entity_kind, attribute_name, operator, operand, error_message, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

const conditionColumns = `id, owner_action_id, target_entity_kind, attribute_name, operator, operand,
		error_message, active, created_at, updated_at`

// Create inserts a new condition
func (r *PostgresConditionRepository) Create(ctx context.Context, c *entities.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}

	err := r.db.QueryRowContext(ctx, insertConditionQuery,
		c.OwnerActionID, c.TargetEntityKind, c.AttributeName, string(c.Operator),
		nullString(c.Operand), nullString(c.ErrorMessage), c.Active,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create condition: %w", err)
	}

	return nil
}

// BatchCreate inserts conditions in a single transaction
func (r *PostgresConditionRepository) BatchCreate(ctx context.Context, conds []*entities.Condition) error {
	if len(conds) == 0 {
		return nil
	}
	for _, c := range conds {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertConditionQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	type inserted struct {
		id                   int64
		createdAt, updatedAt time.Time
	}
	rows := make([]inserted, len(conds))
	for i, c := range conds {
		err := stmt.QueryRowContext(ctx,
			c.OwnerActionID, c.TargetEntityKind, c.AttributeName, string(c.Operator),
			nullString(c.Operand), nullString(c.ErrorMessage), c.Active,
		).Scan(&rows[i].id, &rows[i].createdAt, &rows[i].updatedAt)
		if err != nil {
			return fmt.Errorf("failed to create condition %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for i, c := range conds {
		c.ID, c.CreatedAt, c.UpdatedAt = rows[i].id, rows[i].createdAt, rows[i].updatedAt
	}
	return nil
}

// Update rewrites a condition
func (r *PostgresConditionRepository) Update(ctx context.Context, c *entities.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE conditions
		SET owner_action_id = $2, target_entity_kind = $3, attribute_name = $4, operator = $5,
		    operand = $6, error_message = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.OwnerActionID, c.TargetEntityKind, c.AttributeName, string(c.Operator),
		nullString(c.Operand), nullString(c.ErrorMessage), c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %d", entities.ErrConditionNotFound, c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update condition: %w", err)
	}

	return nil
}

// Get retrieves a condition by id
func (r *PostgresConditionRepository) Get(ctx context.Context, id int64) (*entities.Condition, error) {
	query := `
		SELECT ` + conditionColumns + `
		FROM conditions
		WHERE id = $1
	`
	c, err := scanCondition(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", entities.ErrConditionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get condition: %w", err)
	}

	return c, nil
}

// Delete removes a condition
func (r *PostgresConditionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM conditions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete condition: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", entities.ErrConditionNotFound, id)
	}

	return nil
}

// SetActive toggles a condition
func (r *PostgresConditionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `
		UPDATE conditions
		SET active = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set condition active flag: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", entities.ErrConditionNotFound, id)
	}

	return nil
}

// ListByAction retrieves the conditions of a gated action
func (r *PostgresConditionRepository) ListByAction(ctx context.Context, actionID int64, onlyActive bool) ([]*entities.Condition, error) {
	query := `
		SELECT ` + conditionColumns + `
		FROM conditions
		WHERE owner_action_id = $1 AND (active OR NOT $2)
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, actionID, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	var conds []*entities.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conds = append(conds, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}

	return conds, nil
}

func scanCondition(s rowScanner) (*entities.Condition, error) {
	var (
		c        entities.Condition
		operator string
		operand  sql.NullString
		message  sql.NullString
	)
	err := s.Scan(&c.ID, &c.OwnerActionID, &c.TargetEntityKind, &c.AttributeName, &operator,
		&operand, &message, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.Operator = entities.Operator(operator)
	if operand.Valid {
		c.Operand = &operand.String
	}
	if message.Valid {
		c.ErrorMessage = &message.String
	}
	return &c, nil
}
