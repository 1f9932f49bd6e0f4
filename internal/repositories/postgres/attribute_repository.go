package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/repositories"
)

// PostgresAttributeRepository implements AttributeValueRepository using PostgreSQL
type PostgresAttributeRepository struct {
	db *sql.DB
}

// NewPostgresAttributeRepository creates a new PostgreSQL attribute value repository
func NewPostgresAttributeRepository(db *sql.DB) repositories.AttributeValueRepository {
	return &PostgresAttributeRepository{db: db}
}

const attributeValueColumns = `id, owner_kind, owner_id, attribute_key, raw_value, value_type, created_at, updated_at`

// Upsert creates or updates the row of (owner, key)
func (r *PostgresAttributeRepository) Upsert(ctx context.Context, v *entities.AttributeValue) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid attribute value: %w", err)
	}

	query := `
		INSERT INTO attribute_values (owner_kind, owner_id, attribute_key, raw_value, value_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_kind, owner_id, attribute_key)
		DO UPDATE SET raw_value = EXCLUDED.raw_value, value_type = EXCLUDED.value_type, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.OwnerKind, v.OwnerID, v.AttributeKey, nullString(v.RawValue), string(v.ValueType),
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert attribute value: %w", err)
	}

	return nil
}

// Get retrieves one row, or nil when absent
func (r *PostgresAttributeRepository) Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (*entities.AttributeValue, error) {
	query := `
		SELECT ` + attributeValueColumns + `
		FROM attribute_values
		WHERE owner_kind = $1 AND owner_id = $2 AND attribute_key = $3
	`
	v, err := scanAttributeValue(r.db.QueryRowContext(ctx, query, ownerKind, ownerID, attributeKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute value: %w", err)
	}

	return v, nil
}

// ListByOwner retrieves all rows of an owner
func (r *PostgresAttributeRepository) ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]*entities.AttributeValue, error) {
	query := `
		SELECT ` + attributeValueColumns + `
		FROM attribute_values
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY attribute_key
	`
	rows, err := r.db.QueryContext(ctx, query, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute values: %w", err)
	}
	defer rows.Close()

	var values []*entities.AttributeValue
	for rows.Next() {
		v, err := scanAttributeValue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribute value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute values: %w", err)
	}

	return values, nil
}

// Delete removes one row
func (r *PostgresAttributeRepository) Delete(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) error {
	query := `
		DELETE FROM attribute_values
		WHERE owner_kind = $1 AND owner_id = $2 AND attribute_key = $3
	`
	_, err := r.db.ExecContext(ctx, query, ownerKind, ownerID, attributeKey)
	if err != nil {
		return fmt.Errorf("failed to delete attribute value: %w", err)
	}

	return nil
}

// DeleteByOwner removes every row of an owner
func (r *PostgresAttributeRepository) DeleteByOwner(ctx context.Context, ownerKind string, ownerID int64) (int64, error) {
	query := `
		DELETE FROM attribute_values
		WHERE owner_kind = $1 AND owner_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, ownerKind, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attribute values: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttributeValue(s rowScanner) (*entities.AttributeValue, error) {
	var (
		v         entities.AttributeValue
		raw       sql.NullString
		valueType string
	)
	if err := s.Scan(&v.ID, &v.OwnerKind, &v.OwnerID, &v.AttributeKey, &raw, &valueType, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if raw.Valid {
		v.RawValue = &raw.String
	}
	v.ValueType = entities.ValueType(valueType)
	return &v, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
