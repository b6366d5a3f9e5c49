package defense

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

var (
	// validation errors
	ErrNoLecturers       = errors.New("panel must have at least one lecturer")
	ErrNoEntities        = errors.New("must select at least one student or group")
	ErrNoTimeSlots       = errors.New("must provide time slots for each student/group")
	ErrSlotEntity        = errors.New("each time slot must reference exactly one student or group")
	ErrSlotTime          = errors.New("each time slot must have both start_time and end_time formatted as HH:MM")
	ErrSlotOrder         = errors.New("start time must be before end time")
	ErrSlotMismatch      = errors.New("time slots must include all and only the selected students/groups")
	ErrPastDate          = errors.New("cannot schedule defense in the past")
	ErrStudentSupervisor = errors.New("student's supervisor must be in the selected panel")
	ErrGroupSupervisor   = errors.New("group's supervisor must be in the selected panel")
	ErrInvalidStatus     = errors.New("unknown schedule status")
	ErrInvalidRange      = errors.New("start date must not be after end date")
	errDateRequired      = errors.New("defense date is required")

	// state errors
	ErrPanelInUse       = errors.New("cannot delete panel with active defense schedules")
	ErrPanelBooked      = errors.New("cannot change panel lecturers while the panel has active defense schedules")
	ErrAlreadyCancelled = errors.New("schedule is already cancelled")
)

func newValidationError(err error, field string) error {
	if field == "" {
		return core.NewValidationError(err)
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// resource names used in core.NotFoundError
const (
	ResourcePanel        = "panel"
	ResourceSchedule     = "schedule"
	ResourceLecturer     = "lecturer"
	ResourceStudent      = "student"
	ResourceGroup        = "group"
	ResourceAcademicYear = "academic year"
)

type ConflictKind string

const (
	// ConflictRequest: two slots of the same create/update request overlap.
	ConflictRequest ConflictKind = "request"
	// ConflictPanel: a slot overlaps an active slot of the same panel.
	ConflictPanel ConflictKind = "panel"
	// ConflictLecturer: a slot overlaps an active slot of another panel sharing a lecturer.
	ConflictLecturer ConflictKind = "lecturer"
)

// ConflictError is returned when a new slot would double-book a panel or a lecturer.
type ConflictError struct {
	Kind       ConflictKind
	Date       Date
	Slot       TimeSlot // the slot being booked
	Existing   TimeSlot // the slot it overlaps with
	ScheduleID string   // schedule owning Existing (empty for ConflictRequest)
	PanelID    string   // panel owning Existing

	// set for ConflictLecturer
	LecturerID   string
	LecturerName string
}

func (err ConflictError) Error() string {
	switch err.Kind {
	case ConflictRequest:
		return fmt.Sprintf("time slot %s conflicts with time slot %s of the same request", err.Slot.Range(), err.Existing.Range())
	case ConflictLecturer:
		name := err.LecturerName
		if name == "" {
			name = err.LecturerID
		}
		return fmt.Sprintf(
			"panel member %s already has a defense scheduled at %s. Time slot %s conflicts.",
			name, err.Existing.Range(), err.Slot.Range(),
		)
	default:
		return fmt.Sprintf(
			"time slot %s conflicts with existing schedule %s for this panel",
			err.Slot.Range(), err.Existing.Range(),
		)
	}
}
