package repositories

import (
	"context"

	"github.com/divingclub/clubattrs/internal/entities"
)

// DefinitionRepository defines the interface for attribute definition metadata.
type DefinitionRepository interface {
	// Create inserts a definition. A duplicate (entityKind, attributeKey)
	// fails with an error matching entities.ErrDefinitionConflict.
	Create(ctx context.Context, def *entities.AttributeDefinition) error

	// Update rewrites the mutable metadata of an existing definition.
	Update(ctx context.Context, def *entities.AttributeDefinition) error

	// Find retrieves a definition by identity.
	// Returns entities.ErrDefinitionNotFound when it does not exist.
	Find(ctx context.Context, entityKind, attributeKey string) (*entities.AttributeDefinition, error)

	// ListByKind retrieves definitions ordered by display order then insertion.
	ListByKind(ctx context.Context, entityKind string, includeInactive bool) ([]*entities.AttributeDefinition, error)

	// SetActive toggles the soft-delete flag.
	SetActive(ctx context.Context, entityKind, attributeKey string, active bool) error
}
