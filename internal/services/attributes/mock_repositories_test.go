package attributes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/divingclub/clubattrs/internal/entities"
)

type mockDefinitionRepository struct {
	mu       sync.Mutex
	defs     []*entities.AttributeDefinition
	nextID   int64
	listHits int
	err      error
}

func (m *mockDefinitionRepository) Create(ctx context.Context, def *entities.AttributeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, d := range m.defs {
		if d.EntityKind == def.EntityKind && d.AttributeKey == def.AttributeKey {
			return &entities.DefinitionConflictError{EntityKind: def.EntityKind, AttributeKey: def.AttributeKey, Reason: "already defined"}
		}
	}
	m.nextID++
	def.ID = m.nextID
	stored := *def
	m.defs = append(m.defs, &stored)
	return nil
}

func (m *mockDefinitionRepository) Update(ctx context.Context, def *entities.AttributeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.defs {
		if d.EntityKind == def.EntityKind && d.AttributeKey == def.AttributeKey {
			stored := *def
			m.defs[i] = &stored
			return nil
		}
	}
	return entities.ErrDefinitionNotFound
}

func (m *mockDefinitionRepository) Find(ctx context.Context, entityKind, attributeKey string) (*entities.AttributeDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.defs {
		if d.EntityKind == entityKind && d.AttributeKey == attributeKey {
			c := *d
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", entities.ErrDefinitionNotFound, entityKind, attributeKey)
}

func (m *mockDefinitionRepository) ListByKind(ctx context.Context, entityKind string, includeInactive bool) ([]*entities.AttributeDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listHits++
	if m.err != nil {
		return nil, m.err
	}
	var result []*entities.AttributeDefinition
	for _, d := range m.defs {
		if d.EntityKind == entityKind && (includeInactive || d.Active) {
			c := *d
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].DisplayOrder != result[j].DisplayOrder {
			return result[i].DisplayOrder < result[j].DisplayOrder
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *mockDefinitionRepository) SetActive(ctx context.Context, entityKind, attributeKey string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.defs {
		if d.EntityKind == entityKind && d.AttributeKey == attributeKey {
			d.Active = active
			return nil
		}
	}
	return entities.ErrDefinitionNotFound
}

type valueKey struct {
	kind string
	id   int64
	key  string
}

type mockValueRepository struct {
	mu     sync.Mutex
	rows   map[valueKey]*entities.AttributeValue
	nextID int64
	err    error
}

func newMockValueRepository() *mockValueRepository {
	return &mockValueRepository{rows: make(map[valueKey]*entities.AttributeValue)}
}

func (m *mockValueRepository) Upsert(ctx context.Context, v *entities.AttributeValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	k := valueKey{v.OwnerKind, v.OwnerID, v.AttributeKey}
	if existing, ok := m.rows[k]; ok {
		existing.RawValue = v.RawValue
		existing.ValueType = v.ValueType
		existing.UpdatedAt = v.UpdatedAt
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		return nil
	}
	m.nextID++
	v.ID = m.nextID
	stored := *v
	m.rows[k] = &stored
	return nil
}

func (m *mockValueRepository) Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (*entities.AttributeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[valueKey{ownerKind, ownerID, attributeKey}]
	if !ok {
		return nil, nil
	}
	c := *row
	return &c, nil
}

func (m *mockValueRepository) ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]*entities.AttributeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*entities.AttributeValue
	for k, row := range m.rows {
		if k.kind == ownerKind && k.id == ownerID {
			c := *row
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AttributeKey < result[j].AttributeKey })
	return result, nil
}

func (m *mockValueRepository) Delete(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, valueKey{ownerKind, ownerID, attributeKey})
	return nil
}

func (m *mockValueRepository) DeleteByOwner(ctx context.Context, ownerKind string, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if k.kind == ownerKind && k.id == ownerID {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *mockValueRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordDecodeDegradation(valueType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[valueType]++
}

var errStorage = errors.New("storage unavailable")

func strPtr(s string) *string { return &s }
