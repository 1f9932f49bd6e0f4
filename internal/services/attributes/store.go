package attributes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/repositories"
	"github.com/divingclub/clubattrs/internal/services/codec"
)

// DegradationRecorder is notified when a stored raw value cannot be decoded
// for its value type and is read as null.
type DegradationRecorder interface {
	RecordDecodeDegradation(valueType string)
}

// Store is the EAV store: typed reads and writes of attribute values keyed
// by (ownerKind, ownerID, attributeKey). Every write goes through the codec.
type Store struct {
	repo      repositories.AttributeValueRepository
	validator *Validator
	recorder  DegradationRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a store. validator, recorder and logger may be nil.
func NewStore(repo repositories.AttributeValueRepository, validator *Validator, recorder DegradationRecorder, logger *slog.Logger) *Store {
	return &Store{
		repo:      repo,
		validator: validator,
		recorder:  recorder,
		logger:    logging.OrDiscard(logger),
		now:       time.Now,
	}
}

// Get returns the decoded value, or Null when the attribute is unset or
// its stored text cannot be decoded.
func (s *Store) Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (entities.Value, error) {
	row, err := s.repo.Get(ctx, ownerKind, ownerID, attributeKey)
	if err != nil {
		return entities.Null(), fmt.Errorf("failed to get %s:%d.%s: %w", ownerKind, ownerID, attributeKey, err)
	}
	if row == nil {
		return entities.Null(), nil
	}
	return s.decode(row), nil
}

// GetRaw returns the stored text, nil when unset.
func (s *Store) GetRaw(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (*string, error) {
	row, err := s.repo.Get(ctx, ownerKind, ownerID, attributeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s:%d.%s: %w", ownerKind, ownerID, attributeKey, err)
	}
	if row == nil {
		return nil, nil
	}
	return row.RawValue, nil
}

// Set encodes value for valueType and upserts the row for the triple.
// Concurrent writes to one triple are last-write-wins.
func (s *Store) Set(ctx context.Context, ownerKind string, ownerID int64, attributeKey string, value entities.Value, valueType entities.ValueType) error {
	now := s.now()
	row := &entities.AttributeValue{
		OwnerKind:    ownerKind,
		OwnerID:      ownerID,
		AttributeKey: attributeKey,
		RawValue:     codec.Encode(valueType, value),
		ValueType:    valueType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid attribute value: %w", err)
	}

	if err := s.repo.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to set %s: %w", row.String(), err)
	}
	return nil
}

// SetValidated checks value against the definition's rules, then sets it.
// Violations are returned as *entities.ValidationError and nothing is written.
func (s *Store) SetValidated(ctx context.Context, def *entities.AttributeDefinition, ownerID int64, value entities.Value) error {
	if s.validator != nil {
		if err := s.validator.Validate(def, value); err != nil {
			return err
		}
	}
	return s.Set(ctx, def.EntityKind, ownerID, def.AttributeKey, value, def.ValueType)
}

// GetOrDefault returns the stored value, falling back to the definition's
// default when the row is absent or its raw value is null.
func (s *Store) GetOrDefault(ctx context.Context, def *entities.AttributeDefinition, ownerID int64) (entities.Value, error) {
	row, err := s.repo.Get(ctx, def.EntityKind, ownerID, def.AttributeKey)
	if err != nil {
		return entities.Null(), fmt.Errorf("failed to get %s:%d.%s: %w", def.EntityKind, ownerID, def.AttributeKey, err)
	}
	if row == nil || row.RawValue == nil {
		return codec.Decode(def.ValueType, def.DefaultValue), nil
	}
	return s.decode(row), nil
}

// ListAll returns every stored row of an owner keyed by attribute key.
func (s *Store) ListAll(ctx context.Context, ownerKind string, ownerID int64) (map[string]*entities.AttributeValue, error) {
	rows, err := s.repo.ListByOwner(ctx, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes of %s:%d: %w", ownerKind, ownerID, err)
	}

	result := make(map[string]*entities.AttributeValue, len(rows))
	for _, row := range rows {
		result[row.AttributeKey] = row
	}
	return result, nil
}

// ListDecoded is ListAll with every row decoded.
func (s *Store) ListDecoded(ctx context.Context, ownerKind string, ownerID int64) (map[string]entities.Value, error) {
	rows, err := s.ListAll(ctx, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]entities.Value, len(rows))
	for key, row := range rows {
		result[key] = s.decode(row)
	}
	return result, nil
}

// Delete removes one attribute of an owner.
func (s *Store) Delete(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) error {
	if err := s.repo.Delete(ctx, ownerKind, ownerID, attributeKey); err != nil {
		return fmt.Errorf("failed to delete %s:%d.%s: %w", ownerKind, ownerID, attributeKey, err)
	}
	return nil
}

// DeleteAllFor removes every attribute of an owner, used when the owner
// entity itself is deleted.
func (s *Store) DeleteAllFor(ctx context.Context, ownerKind string, ownerID int64) (int64, error) {
	n, err := s.repo.DeleteByOwner(ctx, ownerKind, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attributes of %s:%d: %w", ownerKind, ownerID, err)
	}
	s.logger.Info("owner attributes deleted", "owner_kind", ownerKind, "owner_id", ownerID, "rows", n)
	return n, nil
}

func (s *Store) decode(row *entities.AttributeValue) entities.Value {
	v, ok := codec.DecodeChecked(row.ValueType, row.RawValue)
	if !ok {
		s.logger.Warn("stored attribute value could not be decoded",
			"owner_kind", row.OwnerKind,
			"owner_id", row.OwnerID,
			"attribute", row.AttributeKey,
			"value_type", string(row.ValueType),
		)
		if s.recorder != nil {
			s.recorder.RecordDecodeDegradation(string(row.ValueType))
		}
	}
	return v
}
