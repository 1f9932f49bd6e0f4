package handlers

import (
	"context"
	"sort"
	"sync"

	"github.com/divingclub/clubattrs/internal/entities"
)

func strPtr(s string) *string { return &s }

type valueKey struct {
	kind string
	id   int64
	key  string
}

// mockValueRepository is an in-memory AttributeValueRepository.
type mockValueRepository struct {
	mu     sync.Mutex
	rows   map[valueKey]*entities.AttributeValue
	nextID int64
}

func newMockValueRepository() *mockValueRepository {
	return &mockValueRepository{rows: make(map[valueKey]*entities.AttributeValue)}
}

func (m *mockValueRepository) Upsert(ctx context.Context, v *entities.AttributeValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := valueKey{v.OwnerKind, v.OwnerID, v.AttributeKey}
	if existing, ok := m.rows[k]; ok {
		v.ID = existing.ID
	} else {
		m.nextID++
		v.ID = m.nextID
	}
	row := *v
	m.rows[k] = &row
	return nil
}

func (m *mockValueRepository) Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (*entities.AttributeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[valueKey{ownerKind, ownerID, attributeKey}]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *mockValueRepository) ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]*entities.AttributeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.AttributeValue
	for k, row := range m.rows {
		if k.kind == ownerKind && k.id == ownerID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttributeKey < out[j].AttributeKey })
	return out, nil
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

// mockDefinitionRepository keeps definitions in insertion order.
type mockDefinitionRepository struct {
	defs []*entities.AttributeDefinition
}

func (m *mockDefinitionRepository) Create(ctx context.Context, def *entities.AttributeDefinition) error {
	for _, d := range m.defs {
		if d.EntityKind == def.EntityKind && d.AttributeKey == def.AttributeKey {
			return &entities.DefinitionConflictError{EntityKind: def.EntityKind, AttributeKey: def.AttributeKey, Reason: "already defined"}
		}
	}
	def.ID = int64(len(m.defs) + 1)
	cp := *def
	m.defs = append(m.defs, &cp)
	return nil
}

func (m *mockDefinitionRepository) Update(ctx context.Context, def *entities.AttributeDefinition) error {
	for i, d := range m.defs {
		if d.EntityKind == def.EntityKind && d.AttributeKey == def.AttributeKey {
			cp := *def
			m.defs[i] = &cp
			return nil
		}
	}
	return entities.ErrDefinitionNotFound
}

func (m *mockDefinitionRepository) Find(ctx context.Context, entityKind, attributeKey string) (*entities.AttributeDefinition, error) {
	for _, d := range m.defs {
		if d.EntityKind == entityKind && d.AttributeKey == attributeKey {
			cp := *d
			return &cp, nil
		}
	}
	return nil, entities.ErrDefinitionNotFound
}

func (m *mockDefinitionRepository) ListByKind(ctx context.Context, entityKind string, includeInactive bool) ([]*entities.AttributeDefinition, error) {
	var out []*entities.AttributeDefinition
	for _, d := range m.defs {
		if d.EntityKind == entityKind && (includeInactive || d.Active) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDefinitionRepository) SetActive(ctx context.Context, entityKind, attributeKey string, active bool) error {
	for _, d := range m.defs {
		if d.EntityKind == entityKind && d.AttributeKey == attributeKey {
			d.Active = active
			return nil
		}
	}
	return entities.ErrDefinitionNotFound
}

// mockConditionRepository keeps conditions in memory.
type mockConditionRepository struct {
	mu       sync.Mutex
	conds    map[int64]*entities.Condition
	nextID   int64
	batchErr error
}

func newMockConditionRepository() *mockConditionRepository {
	return &mockConditionRepository{conds: make(map[int64]*entities.Condition)}
}

func (m *mockConditionRepository) Create(ctx context.Context, c *entities.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.conds[c.ID] = &cp
	return nil
}

func (m *mockConditionRepository) BatchCreate(ctx context.Context, conds []*entities.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, c := range conds {
		m.nextID++
		c.ID = m.nextID
		cp := *c
		m.conds[c.ID] = &cp
	}
	return nil
}

func (m *mockConditionRepository) Update(ctx context.Context, c *entities.Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conds[c.ID]; !ok {
		return entities.ErrConditionNotFound
	}
	cp := *c
	m.conds[c.ID] = &cp
	return nil
}

func (m *mockConditionRepository) Get(ctx context.Context, id int64) (*entities.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conds[id]
	if !ok {
		return nil, entities.ErrConditionNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockConditionRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conds[id]; !ok {
		return entities.ErrConditionNotFound
	}
	delete(m.conds, id)
	return nil
}

func (m *mockConditionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conds[id]
	if !ok {
		return entities.ErrConditionNotFound
	}
	c.Active = active
	return nil
}

func (m *mockConditionRepository) ListByAction(ctx context.Context, actionID int64, onlyActive bool) ([]*entities.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Condition
	for _, c := range m.conds {
		if c.OwnerActionID == actionID && (!onlyActive || c.Active) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error { return m.err }
