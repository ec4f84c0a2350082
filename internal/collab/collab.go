// Package collab declares the contracts of the external collaborators the
// realtime layer depends on. The concrete implementations (the relational
// data layer and its business rules) live outside this module.
package collab

import "context"

// AccessService answers identity/authorization questions. Results are never
// cached here; callers re-query on every gated action so mid-session
// permission changes take effect at the next request.
type AccessService interface {
	GetUserAccessibleGroupIDs(ctx context.Context, userID string) ([]string, error)
	CanUserAccessGroup(ctx context.Context, userID, groupID string) (bool, error)
	CanUserAccessScheduleSlot(ctx context.Context, userID, slotID string) (bool, error)
}

// VehicleAssignment is one vehicle (and optionally its driver) attached to
// a schedule slot.
type VehicleAssignment struct {
	VehicleID string `json:"vehicleId"`
	DriverID  string `json:"driverId,omitempty"`
	Seats     int    `json:"seats"`
}

// ScheduleSlot is the full slot state as re-fetched after a mutation.
type ScheduleSlot struct {
	ID             string              `json:"id"`
	GroupID        string              `json:"groupId"`
	Week           string              `json:"week"`
	AvailableSeats int                 `json:"availableSeats"`
	Vehicles       []VehicleAssignment `json:"vehicles"`
	// Conflicts precomputed by the scheduling layer for this slot's
	// current state, if any.
	Conflicts []Conflict `json:"-"`
}

// Conflict kinds.
const (
	ConflictDriverDoubleBooking  = "driver_double_booking"
	ConflictVehicleDoubleBooking = "vehicle_double_booking"
	ConflictCapacityExceeded     = "capacity_exceeded"
)

// Conflict describes one detected scheduling inconsistency and the
// identities it concerns.
type Conflict struct {
	ScheduleSlotID  string
	Type            string
	AffectedUserIDs []string
	Message         string
}

// ScheduleService performs slot mutations and reads. Mutations return the
// typed errors declared in errors.go where the failure class is known.
type ScheduleService interface {
	AssignVehicleToSlot(ctx context.Context, slotID, vehicleID, userID string) error
	RemoveVehicleFromSlot(ctx context.Context, slotID, vehicleID, userID string) error
	UpdateVehicleDriver(ctx context.Context, slotID, vehicleID, driverID, userID string) error
	// GetScheduleSlotDetails returns nil with a nil error when the slot
	// does not exist.
	GetScheduleSlotDetails(ctx context.Context, slotID string) (*ScheduleSlot, error)
}
