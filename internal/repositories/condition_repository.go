package repositories

import (
	"context"

	"github.com/divingclub/clubattrs/internal/entities"
)

// ConditionRepository defines the interface for eligibility conditions.
type ConditionRepository interface {
	Create(ctx context.Context, cond *entities.Condition) error

	// BatchCreate inserts every condition in one transaction; on error
	// none are stored.
	BatchCreate(ctx context.Context, conds []*entities.Condition) error

	Update(ctx context.Context, cond *entities.Condition) error

	// Get returns entities.ErrConditionNotFound when the id does not exist.
	Get(ctx context.Context, id int64) (*entities.Condition, error)

	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error

	// ListByAction retrieves the conditions of a gated action ordered by id.
	ListByAction(ctx context.Context, actionID int64, onlyActive bool) ([]*entities.Condition, error)
}
