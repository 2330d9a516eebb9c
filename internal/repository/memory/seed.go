package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
)

// AddWarehouse registers directory data. Directory rows are owned by the
// admin service in production; the memory store is seeded directly.
func (s *Store) AddWarehouse(w repository.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.warehouses[w.ID] = w
}

// AddTimeSlot registers a warehouse time slot.
func (s *Store) AddTimeSlot(ts repository.TimeSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.timeSlots[ts.ID] = ts
}

// AddVisitorType registers a visitor type.
func (s *Store) AddVisitorType(vt repository.VisitorType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.visitorTypes[vt.ID] = vt
}

// AddUser registers a user.
func (s *Store) AddUser(u repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

// Seed is the on-disk shape accepted by LoadSeedFile.
type Seed struct {
	Warehouses    []repository.Warehouse    `json:"warehouses"`
	TimeSlots     []repository.TimeSlot     `json:"time_slots"`
	VisitorTypes  []repository.VisitorType  `json:"visitor_types"`
	Users         []repository.User         `json:"users"`
	WorkflowSteps []repository.WorkflowStep `json:"workflow_steps"`
}

// LoadSeedFile reads a JSON Seed from path and applies it. Workflow steps go
// through the regular repository so their uniqueness rules apply.
func (s *Store) LoadSeedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return s.ApplySeed(ctx, seed)
}

// ApplySeed registers the directory rows, then creates the workflow steps in
// one transaction.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) error {
	for _, w := range seed.Warehouses {
		s.AddWarehouse(w)
	}
	for _, ts := range seed.TimeSlots {
		s.AddTimeSlot(ts)
	}
	for _, vt := range seed.VisitorTypes {
		s.AddVisitorType(vt)
	}
	for _, u := range seed.Users {
		s.AddUser(u)
	}

	return s.InTransaction(ctx, func(tx repository.Tx) error {
		for i := range seed.WorkflowSteps {
			step := seed.WorkflowSteps[i]
			if err := tx.WorkflowSteps().Create(ctx, &step); err != nil {
				return fmt.Errorf("seed workflow step %d: %w", i, err)
			}
		}
		return nil
	})
}
