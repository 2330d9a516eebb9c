package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/errors"
)

// DirectoryRepository reads warehouses, slots, visitor types and users.
// Those tables are owned by the admin CRUD service.
type DirectoryRepository struct {
	db database.Querier
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db database.Querier) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetWarehouse retrieves a warehouse by ID.
func (r *DirectoryRepository) GetWarehouse(ctx context.Context, id string) (*Warehouse, error) {
	w := &Warehouse{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, location FROM warehouse WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.Location)
	if err := notFound(err, "warehouse", id); err != nil {
		return nil, err
	}
	return w, nil
}

// GetTimeSlot retrieves a time slot by ID with From/To formatted as HH:MM.
func (r *DirectoryRepository) GetTimeSlot(ctx context.Context, id string) (*TimeSlot, error) {
	query := `
		SELECT id, warehouse_id, name,
		       to_char("from", 'HH24:MI'), to_char("to", 'HH24:MI')
		FROM warehouse_time_slots
		WHERE id = $1
	`

	s := &TimeSlot{}
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.WarehouseID, &s.Name, &s.From, &s.To)
	if err := notFound(err, "time_slot", id); err != nil {
		return nil, err
	}
	return s, nil
}

// GetVisitorType retrieves a visitor type by ID.
func (r *DirectoryRepository) GetVisitorType(ctx context.Context, id string) (*VisitorType, error) {
	vt := &VisitorType{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description FROM visitor_types WHERE id = $1`, id,
	).Scan(&vt.ID, &vt.Name, &vt.Description)
	if err := notFound(err, "visitor_type", id); err != nil {
		return nil, err
	}
	return vt, nil
}

// GetUser retrieves a user by ID.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, email, role::text, warehouse_id, is_active
		FROM users
		WHERE id = $1
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.WarehouseID, &u.IsActive)
	if err := notFound(err, "user", id); err != nil {
		return nil, err
	}
	return u, nil
}

func notFound(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound(resource, id)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "failed to get "+resource)
}
