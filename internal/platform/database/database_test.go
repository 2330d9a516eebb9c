package database

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_visitor_request_approved_slot"})

	name, ok := IsUniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "uq_visitor_request_approved_slot", name)

	_, ok = IsUniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}
