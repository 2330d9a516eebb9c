package service

import (
	"context"

	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
)

// checkSlotForCreate fails when the slot is already booked on the date, or
// when the same visitor already has a request for it in any status.
// The store's unique indexes close the race these checks leave open.
func checkSlotForCreate(ctx context.Context, tx repository.Tx, name, visitDate, warehouseID, timeSlotID string) error {
	held, err := tx.VisitorRequests().FindApprovedForSlot(ctx, warehouseID, visitDate, timeSlotID, "")
	if err != nil {
		return err
	}
	if held != nil {
		return errSlotTaken
	}

	dup, err := tx.VisitorRequests().FindDuplicate(ctx, name, visitDate, warehouseID, timeSlotID)
	if err != nil {
		return err
	}
	if dup != nil {
		return repository.ConstraintError(repository.ConstraintDuplicateVisit)
	}
	return nil
}

// checkSlotForApprove fails when a different request already holds the
// request's slot as approved.
func checkSlotForApprove(ctx context.Context, tx repository.Tx, req *repository.VisitorRequest) error {
	held, err := tx.VisitorRequests().FindApprovedForSlot(ctx, req.WarehouseID, req.VisitDate, req.TimeSlotID, req.ID)
	if err != nil {
		return err
	}
	if held != nil {
		return errSlotTaken
	}
	return nil
}
