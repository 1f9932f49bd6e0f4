package repositories

import (
	"context"

	"github.com/divingclub/clubattrs/internal/entities"
)

// AttributeValueRepository defines the interface for EAV row access.
// Rows are keyed by (ownerKind, ownerID, attributeKey).
type AttributeValueRepository interface {
	// Upsert creates the row for the triple or updates raw value, value type
	// and updated_at in place. CreatedAt, UpdatedAt and ID are filled on return.
	Upsert(ctx context.Context, value *entities.AttributeValue) error

	// Get retrieves a single row. Returns nil, nil when no row exists.
	Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (*entities.AttributeValue, error)

	// ListByOwner retrieves every row of an owner ordered by attribute key.
	ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]*entities.AttributeValue, error)

	// Delete removes a single row. Deleting a missing row is not an error.
	Delete(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) error

	// DeleteByOwner removes every row of an owner and returns how many were removed.
	DeleteByOwner(ctx context.Context, ownerKind string, ownerID int64) (int64, error)
}
