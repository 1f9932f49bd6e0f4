package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/repositories"
	"github.com/lib/pq"
)

// PostgresDefinitionRepository implements DefinitionRepository using PostgreSQL
type PostgresDefinitionRepository struct {
	db *sql.DB
}

// NewPostgresDefinitionRepository creates a new PostgreSQL definition repository
func NewPostgresDefinitionRepository(db *sql.DB) repositories.DefinitionRepository {
	return &PostgresDefinitionRepository{db: db}
}

const definitionColumns = `id, entity_kind, attribute_key, display_name, value_type, required, default_value,
		options, validation_rules, active, display_order, created_at, updated_at`

// Create inserts a new definition
func (r *PostgresDefinitionRepository) Create(ctx context.Context, def *entities.AttributeDefinition) error {
	rules, err := marshalRules(def.ValidationRules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO attribute_definitions
			(entity_kind, attribute_key, display_name, value_type, required, default_value,
			 options, validation_rules, active, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		def.EntityKind, def.AttributeKey, def.DisplayName, string(def.ValueType), def.Required,
		nullString(def.DefaultValue), pq.Array(optionsOf(def)), rules, def.Active, def.DisplayOrder,
	).Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt)
	if isUniqueViolation(err) {
		return &entities.DefinitionConflictError{
			EntityKind:   def.EntityKind,
			AttributeKey: def.AttributeKey,
			Reason:       "already defined",
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}

	return nil
}

// Update rewrites the mutable metadata of a definition
func (r *PostgresDefinitionRepository) Update(ctx context.Context, def *entities.AttributeDefinition) error {
	rules, err := marshalRules(def.ValidationRules)
	if err != nil {
		return err
	}

	query := `
		UPDATE attribute_definitions
		SET display_name = $3, required = $4, default_value = $5, options = $6,
		    validation_rules = $7, active = $8, display_order = $9, updated_at = NOW()
		WHERE entity_kind = $1 AND attribute_key = $2
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		def.EntityKind, def.AttributeKey, def.DisplayName, def.Required, nullString(def.DefaultValue),
		pq.Array(optionsOf(def)), rules, def.Active, def.DisplayOrder,
	).Scan(&def.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", entities.ErrDefinitionNotFound, def)
	}
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}

	return nil
}

// Find retrieves a definition by identity
func (r *PostgresDefinitionRepository) Find(ctx context.Context, entityKind, attributeKey string) (*entities.AttributeDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM attribute_definitions
		WHERE entity_kind = $1 AND attribute_key = $2
	`
	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, entityKind, attributeKey))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s.%s", entities.ErrDefinitionNotFound, entityKind, attributeKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find definition: %w", err)
	}

	return def, nil
}

// ListByKind retrieves the definitions of an entity kind
func (r *PostgresDefinitionRepository) ListByKind(ctx context.Context, entityKind string, includeInactive bool) ([]*entities.AttributeDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM attribute_definitions
		WHERE entity_kind = $1 AND (active OR $2)
		ORDER BY display_order, id
	`
	rows, err := r.db.QueryContext(ctx, query, entityKind, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entities.AttributeDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

// SetActive toggles the soft-delete flag
func (r *PostgresDefinitionRepository) SetActive(ctx context.Context, entityKind, attributeKey string, active bool) error {
	query := `
		UPDATE attribute_definitions
		SET active = $3, updated_at = NOW()
		WHERE entity_kind = $1 AND attribute_key = $2
	`
	result, err := r.db.ExecContext(ctx, query, entityKind, attributeKey, active)
	if err != nil {
		return fmt.Errorf("failed to set definition active flag: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s.%s", entities.ErrDefinitionNotFound, entityKind, attributeKey)
	}

	return nil
}

func scanDefinition(s rowScanner) (*entities.AttributeDefinition, error) {
	var (
		def       entities.AttributeDefinition
		valueType string
		defValue  sql.NullString
		options   []string
		rules     []byte
	)
	err := s.Scan(&def.ID, &def.EntityKind, &def.AttributeKey, &def.DisplayName, &valueType, &def.Required,
		&defValue, pq.Array(&options), &rules, &def.Active, &def.DisplayOrder, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}

	def.ValueType = entities.ValueType(valueType)
	if defValue.Valid {
		def.DefaultValue = &defValue.String
	}
	if len(options) > 0 {
		def.Options = options
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &def.ValidationRules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation rules: %w", err)
		}
		if len(def.ValidationRules) == 0 {
			def.ValidationRules = nil
		}
	}
	return &def, nil
}

func marshalRules(rules map[string]any) ([]byte, error) {
	if rules == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation rules: %w", err)
	}
	return data, nil
}

func optionsOf(def *entities.AttributeDefinition) []string {
	if def.Options == nil {
		return []string{}
	}
	return def.Options
}
