package defense

import (
	"context"
	"strings"
	"time"
)

// GroupStatusInactive is the only group status excluded from scheduling.
const GroupStatusInactive = "inactive"

type Lecturer struct {
	ID         string
	Title      string
	Surname    string
	OtherNames string
	AcademicID string
	Email      string
}

// FullName is "title surname other names".
func (l Lecturer) FullName() string {
	return joinNames(l.Title, l.Surname, l.OtherNames)
}

type Student struct {
	ID         string
	Surname    string
	OtherNames string
	AcademicID string
	Program    string // program title; empty when unknown
	// SupervisorID is the supervisor assigned on the student's FYP record (empty when none).
	SupervisorID string
}

// FullName is "surname other names".
func (s Student) FullName() string {
	return joinNames(s.Surname, s.OtherNames)
}

type Group struct {
	ID           string
	Name         string
	ProjectTitle string
	SupervisorID string
	Status       string
	MemberIDs    []string
}

func (g Group) IsActive() bool {
	return g.Status != GroupStatusInactive
}

type AcademicYear struct {
	ID    string
	Title string
	Year  string
}

func joinNames(names ...string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

// Directory adapters are read-only views over records owned by other parts of the system.
// Lookups by ID return a core.NotFoundError when the record does not exist.
type (
	LecturerDirectory interface {
		GetLecturer(ctx context.Context, id string) (Lecturer, error)
	}

	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (Student, error)
		// StudentsSupervisedBy returns the students whose FYP supervisor is one of lecturerIDs,
		// restricted to the checkin cohort when checkinID is set.
		StudentsSupervisedBy(ctx context.Context, lecturerIDs []string, checkinID string) ([]Student, error)
	}

	GroupDirectory interface {
		GetGroup(ctx context.Context, id string) (Group, error)
		// ActiveGroupsSupervisedBy returns the active groups supervised by one of lecturerIDs.
		ActiveGroupsSupervisedBy(ctx context.Context, lecturerIDs []string) ([]Group, error)
		// ActiveGroupMemberIDs returns the students belonging to any active group.
		ActiveGroupMemberIDs(ctx context.Context) ([]string, error)
	}

	AcademicYearDirectory interface {
		GetAcademicYear(ctx context.Context, id string) (AcademicYear, error)
		// CheckinForAcademicYear returns the FYP checkin cohort of an academic year, or "" when none.
		CheckinForAcademicYear(ctx context.Context, academicYearID string) (string, error)
	}

	Directory interface {
		LecturerDirectory
		StudentDirectory
		GroupDirectory
		AcademicYearDirectory
	}
)

// activity log actions
const (
	ActionScheduleCreated   = "defense_schedule_created"
	ActionScheduleUpdated   = "defense_schedule_updated"
	ActionScheduleCancelled = "defense_schedule_cancelled"
	ActionScheduleCompleted = "defense_schedule_completed"
	ActionPanelCreated      = "defense_panel_created"
	ActionPanelUpdated      = "defense_panel_updated"
	ActionPanelDeleted      = "defense_panel_deleted"

	ActivityTypeCoordinator = "coordinator_action"
)

// Activity is an audit trail entry.
type Activity struct {
	Action      string
	Type        string
	Description string
	ActorID     string
	ActorName   string
	Timestamp   time.Time // UTC
	Details     map[string]interface{}
}

// ActivityLog is an append-only audit sink.
type ActivityLog interface {
	Record(ctx context.Context, activity Activity) error
}

// Locker serializes the check-then-write sequences of the scheduler.
// Lock blocks until every key is held or ctx is done; the returned func releases them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Observer receives scheduling events (metrics).
type Observer interface {
	ScheduleCommitted(action string)
	ConflictDetected(kind ConflictKind)
	LockAcquired(wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ScheduleCommitted(string)      {}
func (nopObserver) ConflictDetected(ConflictKind) {}
func (nopObserver) LockAcquired(time.Duration)    {}
