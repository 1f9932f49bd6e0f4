package attributes

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/repositories"
	"github.com/divingclub/clubattrs/pkg/cache"
)

// Registry is the attribute definition registry. It is constructed once at
// startup and shared by every request; reads are served from an optional
// per-kind cache that writes and change notifications invalidate.
type Registry struct {
	repo      repositories.DefinitionRepository
	validator *Validator
	cache     cache.Cache
	ttl       time.Duration
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCache serves listFor/find from c, entries living for ttl.
func WithCache(c cache.Cache, ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.cache = c
		r.ttl = ttl
	}
}

// WithValidator checks rule values when definitions are written.
func WithValidator(v *Validator) RegistryOption {
	return func(r *Registry) { r.validator = v }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo repositories.DefinitionRepository, opts ...RegistryOption) *Registry {
	r := &Registry{repo: repo}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// definitionList is the cached form of every definition of one kind,
// inactive ones included, in display order.
type definitionList []*entities.AttributeDefinition

func (l definitionList) CacheSize() int64 {
	var size int64
	for _, d := range l {
		size += 200 + int64(len(d.AttributeKey)+len(d.DisplayName))
		for _, opt := range d.Options {
			size += int64(len(opt))
		}
	}
	return size
}

// Define stores a new, active definition. A duplicate identity or
// inconsistent metadata fails with an error matching entities.ErrDefinitionConflict.
func (r *Registry) Define(ctx context.Context, def *entities.AttributeDefinition) (*entities.AttributeDefinition, error) {
	if err := r.check(def); err != nil {
		return nil, err
	}

	created := cloneDefinition(def)
	created.Active = true
	if err := r.repo.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to define %s: %w", created, err)
	}

	r.InvalidateKind(ctx, created.EntityKind)
	r.logger.Info("attribute defined", "entity_kind", created.EntityKind, "attribute", created.AttributeKey, "value_type", string(created.ValueType))
	return cloneDefinition(created), nil
}

// Find returns the definition for (entityKind, attributeKey), active or not.
// Returns an error matching entities.ErrDefinitionNotFound when absent.
func (r *Registry) Find(ctx context.Context, entityKind, attributeKey string) (*entities.AttributeDefinition, error) {
	if r.cache == nil {
		return r.repo.Find(ctx, entityKind, attributeKey)
	}

	defs, err := r.load(ctx, entityKind)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.AttributeKey == attributeKey {
			return cloneDefinition(d), nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", entities.ErrDefinitionNotFound, entityKind, attributeKey)
}

// ListFor returns the active definitions of entityKind ordered by display
// order, then insertion.
func (r *Registry) ListFor(ctx context.Context, entityKind string) ([]*entities.AttributeDefinition, error) {
	defs, err := r.load(ctx, entityKind)
	if err != nil {
		return nil, err
	}

	result := make([]*entities.AttributeDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Active {
			result = append(result, cloneDefinition(d))
		}
	}
	return result, nil
}

// ListAllFor is ListFor including deactivated definitions.
func (r *Registry) ListAllFor(ctx context.Context, entityKind string) ([]*entities.AttributeDefinition, error) {
	defs, err := r.load(ctx, entityKind)
	if err != nil {
		return nil, err
	}

	result := make([]*entities.AttributeDefinition, len(defs))
	for i, d := range defs {
		result[i] = cloneDefinition(d)
	}
	return result, nil
}

// Update rewrites the editable metadata of a definition. The identity and
// the value type are immutable.
func (r *Registry) Update(ctx context.Context, def *entities.AttributeDefinition) (*entities.AttributeDefinition, error) {
	current, err := r.repo.Find(ctx, def.EntityKind, def.AttributeKey)
	if err != nil {
		return nil, err
	}
	if current.ValueType != def.ValueType {
		return nil, &entities.DefinitionConflictError{
			EntityKind:   def.EntityKind,
			AttributeKey: def.AttributeKey,
			Reason:       fmt.Sprintf("value type cannot change from %s to %s", current.ValueType, def.ValueType),
		}
	}
	if err := r.check(def); err != nil {
		return nil, err
	}

	updated := cloneDefinition(def)
	updated.ID = current.ID
	updated.Active = current.Active
	updated.CreatedAt = current.CreatedAt
	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", updated, err)
	}

	r.InvalidateKind(ctx, updated.EntityKind)
	return cloneDefinition(updated), nil
}

// Deactivate soft-deletes a definition. Stored values are kept.
func (r *Registry) Deactivate(ctx context.Context, entityKind, attributeKey string) error {
	return r.setActive(ctx, entityKind, attributeKey, false)
}

// Activate restores a deactivated definition.
func (r *Registry) Activate(ctx context.Context, entityKind, attributeKey string) error {
	return r.setActive(ctx, entityKind, attributeKey, true)
}

func (r *Registry) setActive(ctx context.Context, entityKind, attributeKey string, active bool) error {
	if err := r.repo.SetActive(ctx, entityKind, attributeKey, active); err != nil {
		return err
	}
	r.InvalidateKind(ctx, entityKind)
	r.logger.Info("attribute activation changed", "entity_kind", entityKind, "attribute", attributeKey, "active", active)
	return nil
}

// InvalidateKind drops the cached definitions of entityKind.
func (r *Registry) InvalidateKind(ctx context.Context, entityKind string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, cacheKey(entityKind)); err != nil {
		r.logger.Warn("failed to invalidate definition cache", "entity_kind", entityKind, "error", err)
	}
}

// InvalidateAll drops every cached definition.
func (r *Registry) InvalidateAll(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if _, err := r.cache.DeletePrefix(ctx, cacheKeyPrefix); err != nil {
		r.logger.Warn("failed to flush definition cache", "error", err)
	}
}

func (r *Registry) check(def *entities.AttributeDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if r.validator != nil {
		return r.validator.CheckRules(def)
	}
	return nil
}

func (r *Registry) load(ctx context.Context, entityKind string) (definitionList, error) {
	key := cacheKey(entityKind)
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, key); ok {
			return cached.(definitionList), nil
		}
	}

	defs, err := r.repo.ListByKind(ctx, entityKind, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions for %s: %w", entityKind, err)
	}

	list := definitionList(defs)
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, list, r.ttl); err != nil {
			r.logger.Warn("failed to cache definitions", "entity_kind", entityKind, "error", err)
		}
	}
	return list, nil
}

const cacheKeyPrefix = "defs|"

func cacheKey(entityKind string) string {
	return cacheKeyPrefix + entityKind
}

func cloneDefinition(d *entities.AttributeDefinition) *entities.AttributeDefinition {
	c := *d
	c.Options = slices.Clone(d.Options)
	c.ValidationRules = maps.Clone(d.ValidationRules)
	if d.DefaultValue != nil {
		v := *d.DefaultValue
		c.DefaultValue = &v
	}
	return &c
}
