package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	db *database.DB
	pgScope
}

// NewPostgresStore creates a Store backed by db.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, pgScope: pgScope{q: db}}
}

// InTransaction runs fn with repositories bound to a single transaction.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(pgScope{q: tx})
	})
}

// pgScope binds the repositories to a pool or an open transaction.
type pgScope struct {
	q database.Querier
}

func (p pgScope) WorkflowSteps() WorkflowSteps     { return NewWorkflowStepRepository(p.q) }
func (p pgScope) VisitorRequests() VisitorRequests { return NewVisitorRequestRepository(p.q) }
func (p pgScope) Approvals() Approvals             { return NewApprovalRepository(p.q) }
func (p pgScope) AuditLog() AuditLog               { return NewApprovalAuditRepository(p.q) }
func (p pgScope) Directory() Directory             { return NewDirectoryRepository(p.q) }

// translateWriteError maps store constraint failures onto caller errors.
func translateWriteError(err error, message string) error {
	if err == nil {
		return nil
	}
	if constraint, ok := database.IsUniqueViolation(err); ok {
		return ConstraintError(constraint)
	}
	if database.IsForeignKeyViolation(err) {
		return errors.InvalidInput("reference", "referenced resource does not exist")
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
