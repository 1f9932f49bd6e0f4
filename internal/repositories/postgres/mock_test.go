package postgres

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func strPtr(s string) *string { return &s }

var attributeValueRowColumns = []string{
	"id", "owner_kind", "owner_id", "attribute_key", "raw_value", "value_type", "created_at", "updated_at",
}

var definitionRowColumns = []string{
	"id", "entity_kind", "attribute_key", "display_name", "value_type", "required", "default_value",
	"options", "validation_rules", "active", "display_order", "created_at", "updated_at",
}

var conditionRowColumns = []string{
	"id", "owner_action_id", "target_entity_kind", "attribute_name", "operator", "operand",
	"error_message", "active", "created_at", "updated_at",
}
