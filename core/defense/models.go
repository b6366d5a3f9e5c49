package defense

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

// Status of a DefenseSchedule.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	// ActiveStatuses are the statuses taking part in conflict checks & candidate-pool exclusions.
	ActiveStatuses = []Status{StatusScheduled, StatusInProgress}

	statusTransitions = map[Status][]Status{
		StatusScheduled:  {StatusInProgress, StatusCompleted, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusCompleted:  nil,
		StatusCancelled:  nil,
	}
)

func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusInProgress
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range statusTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// EntityKind tells whether a slot is booked for a single student or a group.
type EntityKind string

const (
	EntityStudent EntityKind = "student"
	EntityGroup   EntityKind = "group"
)

// Entity is the student or group a TimeSlot is booked for.
type Entity struct {
	Kind EntityKind
	ID   string
}

func StudentEntity(id string) Entity { return Entity{Kind: EntityStudent, ID: id} }
func GroupEntity(id string) Entity   { return Entity{Kind: EntityGroup, ID: id} }

func (e Entity) Valid() bool {
	return (e.Kind == EntityStudent || e.Kind == EntityGroup) && e.ID != ""
}

func (e Entity) String() string {
	return string(e.Kind) + ":" + e.ID
}

// TimeSlot is a single "HH:MM" interval of a schedule, booked for exactly one Entity.
// The json tags only name the validation errors: the wire form is timeSlotJSON.
type TimeSlot struct {
	Entity Entity
	Start  string `json:"start_time" validate:"required,clock"`
	End    string `json:"end_time" validate:"required,clock"`
}

func NewStudentSlot(studentID, start, end string) TimeSlot {
	return TimeSlot{Entity: StudentEntity(studentID), Start: start, End: end}
}

func NewGroupSlot(groupID, start, end string) TimeSlot {
	return TimeSlot{Entity: GroupEntity(groupID), Start: start, End: end}
}

func (ts TimeSlot) Interval() (Interval, error) {
	start, err := ParseClock(ts.Start)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(ts.End)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}

// Range renders the slot as "start-end".
func (ts TimeSlot) Range() string {
	return ts.Start + "-" + ts.End
}

type timeSlotJSON struct {
	StudentID string `json:"student_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

var errSlotEntityJSON = errors.New("time slot must have exactly one of student_id or group_id")

func (ts TimeSlot) MarshalJSON() ([]byte, error) {
	data := timeSlotJSON{StartTime: ts.Start, EndTime: ts.End}
	switch ts.Entity.Kind {
	case EntityStudent:
		data.StudentID = ts.Entity.ID
	case EntityGroup:
		data.GroupID = ts.Entity.ID
	}
	return json.Marshal(data)
}

func (ts *TimeSlot) UnmarshalJSON(b []byte) error {
	var data timeSlotJSON
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	switch {
	case data.StudentID != "" && data.GroupID == "":
		ts.Entity = StudentEntity(core.CleanString(data.StudentID))
	case data.GroupID != "" && data.StudentID == "":
		ts.Entity = GroupEntity(core.CleanString(data.GroupID))
	default:
		return errSlotEntityJSON
	}
	ts.Start = core.CleanString(data.StartTime)
	ts.End = core.CleanString(data.EndTime)
	return nil
}

type Panel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	LecturerIDs []string  `json:"lecturer_ids"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (p Panel) HasLecturer(id string) bool {
	for _, lid := range p.LecturerIDs {
		if lid == id {
			return true
		}
	}
	return false
}

type Schedule struct {
	ID      string `json:"id"`
	PanelID string `json:"panel_id"`
	// StudentIDs and GroupIDs are the entities booked by TimeSlots (one slot each).
	StudentIDs []string `json:"student_ids"`
	GroupIDs   []string `json:"group_ids"`
	// MemberIDs are the students of the booked groups. Reporting only.
	MemberIDs      []string   `json:"member_ids"`
	AcademicYearID string     `json:"academic_year_id,omitempty"`
	DefenseDate    Date       `json:"defense_date"`
	TimeSlots      []TimeSlot `json:"time_slots"`
	MeetingLink    string     `json:"meeting_link"`
	Notes          string     `json:"notes,omitempty"`
	Status         Status     `json:"status"`
	CreatedBy      string     `json:"created_by"`
	UpdatedBy      string     `json:"updated_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"` // UTC
	UpdatedAt      time.Time  `json:"updated_at"` // UTC
}

func (s Schedule) IsActive() bool {
	return s.Status.IsActive()
}

// Entities returns the entities referenced by the schedule's slots, in slot order.
func (s Schedule) Entities() []Entity {
	entities := make([]Entity, 0, len(s.TimeSlots))
	for _, slot := range s.TimeSlots {
		entities = append(entities, slot.Entity)
	}
	return entities
}

// FirstStart returns the earliest slot start in minutes, or a full day when there are no (valid) slots.
func (s Schedule) FirstStart() int {
	first := minutesPerDay
	for _, slot := range s.TimeSlots {
		if iv, err := slot.Interval(); err == nil && iv.Start < first {
			first = iv.Start
		}
	}
	return first
}

func (s Schedule) clone() Schedule {
	c := s
	c.StudentIDs = append([]string(nil), s.StudentIDs...)
	c.GroupIDs = append([]string(nil), s.GroupIDs...)
	c.MemberIDs = append([]string(nil), s.MemberIDs...)
	c.TimeSlots = append([]TimeSlot(nil), s.TimeSlots...)
	return c
}

// Actor is the coordinator performing an operation.
type Actor struct {
	ID   string
	Name string
}

// SystemActor performs the automatic status transitions.
var SystemActor = Actor{ID: "system", Name: "System"}

// NewPanel contains information needed to create a new Panel.
type NewPanel struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	LecturerIDs []string `json:"lecturer_ids" validate:"dive,required"`
}

func (np *NewPanel) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	np.LecturerIDs = core.CleanIDs(np.LecturerIDs)
	return validate.Struct(np)
}

// UpdatePanel defines what information may be provided to modify an existing Panel.
// nil fields are left untouched.
type UpdatePanel struct {
	Name        *string   `json:"name" validate:"omitempty,min=1"`
	Description *string   `json:"description"`
	LecturerIDs *[]string `json:"lecturer_ids"`
}

func (up *UpdatePanel) Validate(validate *validator.Validate) error {
	if up.Name != nil {
		name := core.CleanString(*up.Name)
		up.Name = &name
	}
	if up.Description != nil {
		desc := core.CleanString(*up.Description)
		up.Description = &desc
	}
	if up.LecturerIDs != nil {
		ids := core.CleanIDs(*up.LecturerIDs)
		up.LecturerIDs = &ids
	}
	return validate.Struct(up)
}

// NewSchedule contains information needed to book a new Schedule.
type NewSchedule struct {
	PanelID        string     `json:"panel_id" validate:"required"`
	StudentIDs     []string   `json:"student_ids"`
	GroupIDs       []string   `json:"group_ids"`
	DefenseDate    Date       `json:"defense_date"`
	TimeSlots      []TimeSlot `json:"time_slots" validate:"dive"`
	MeetingLink    string     `json:"meeting_link"`
	AcademicYearID string     `json:"academic_year_id"`
	Notes          string     `json:"notes"`
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.PanelID = core.CleanString(ns.PanelID)
	ns.StudentIDs = core.CleanIDs(ns.StudentIDs)
	ns.GroupIDs = core.CleanIDs(ns.GroupIDs)
	ns.MeetingLink = core.CleanString(ns.MeetingLink)
	ns.AcademicYearID = core.CleanString(ns.AcademicYearID)
	ns.Notes = core.CleanString(ns.Notes)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.DefenseDate.IsZero() {
		return core.NewValidationError(errDateRequired, core.FieldError{Field: "defense_date", Error: errDateRequired.Error()})
	}
	return nil
}

// UpdateSchedule defines what information may be provided to modify an existing Schedule.
// nil fields are left untouched.
type UpdateSchedule struct {
	PanelID        *string     `json:"panel_id" validate:"omitempty,min=1"`
	StudentIDs     *[]string   `json:"student_ids"`
	GroupIDs       *[]string   `json:"group_ids"`
	DefenseDate    *Date       `json:"defense_date"`
	TimeSlots      *[]TimeSlot `json:"time_slots" validate:"omitempty,dive"`
	MeetingLink    *string     `json:"meeting_link"`
	AcademicYearID *string     `json:"academic_year_id"`
	Notes          *string     `json:"notes"`
	Status         *Status     `json:"status"`
}

func (us *UpdateSchedule) Validate(validate *validator.Validate) error {
	cleanStr := func(s *string) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s)
		return &c
	}
	cleanIDs := func(ids *[]string) *[]string {
		if ids == nil {
			return nil
		}
		c := core.CleanIDs(*ids)
		if c == nil {
			c = []string{}
		}
		return &c
	}
	us.PanelID = cleanStr(us.PanelID)
	us.MeetingLink = cleanStr(us.MeetingLink)
	us.AcademicYearID = cleanStr(us.AcademicYearID)
	us.Notes = cleanStr(us.Notes)
	us.StudentIDs = cleanIDs(us.StudentIDs)
	us.GroupIDs = cleanIDs(us.GroupIDs)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.DefenseDate != nil && us.DefenseDate.IsZero() {
		return core.NewValidationError(errDateRequired, core.FieldError{Field: "defense_date", Error: errDateRequired.Error()})
	}
	if us.Status != nil && !us.Status.Valid() {
		return core.NewValidationError(ErrInvalidStatus, core.FieldError{Field: "status", Error: ErrInvalidStatus.Error()})
	}
	return nil
}

// PageQuery is a cursor-based page request. Cursor is the ID of the last item of the previous page.
type PageQuery struct {
	Cursor string `query:"cursor"`
	Limit  int    `query:"limit"`
}

func (pq PageQuery) withLimit(def, max int) PageQuery {
	if pq.Limit <= 0 {
		pq.Limit = def
	}
	if pq.Limit > max {
		pq.Limit = max
	}
	return pq
}

// ScheduleFilter narrows down the schedules listing. Empty fields are ignored.
type ScheduleFilter struct {
	PageQuery
	AcademicYearID string `query:"academic_year_id"`
	Status         Status `query:"status"`
	PanelID        string `query:"panel_id"`
}

// ScheduleQuery is what schedule repositories are queried with. Empty fields are ignored.
// Results are ordered by DefenseDate, CreatedAt then ID (ascending).
type ScheduleQuery struct {
	PanelIDs       []string
	Statuses       []Status
	DateFrom       Date // inclusive
	DateTo         Date // inclusive
	AcademicYearID string
	ExcludeID      string
	Cursor         string
	Limit          int // 0: no limit
}

// activeOn returns a query for the given panels' active schedules on date.
func activeOn(date Date, panelIDs ...string) ScheduleQuery {
	return ScheduleQuery{
		PanelIDs: panelIDs,
		Statuses: ActiveStatuses,
		DateFrom: date,
		DateTo:   date,
	}
}

// Matches reports whether s satisfies every set criteria of q (Cursor & Limit excluded).
func (q ScheduleQuery) Matches(s Schedule) bool {
	if len(q.PanelIDs) > 0 && !containsString(q.PanelIDs, s.PanelID) {
		return false
	}
	if len(q.Statuses) > 0 {
		var ok bool
		for _, st := range q.Statuses {
			if st == s.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !q.DateFrom.IsZero() && s.DefenseDate.Before(q.DateFrom) {
		return false
	}
	if !q.DateTo.IsZero() && q.DateTo.Before(s.DefenseDate) {
		return false
	}
	if q.AcademicYearID != "" && s.AcademicYearID != q.AcademicYearID {
		return false
	}
	if q.ExcludeID != "" && s.ID == q.ExcludeID {
		return false
	}
	return true
}

// ScheduleLess is the listing order of schedules.
func ScheduleLess(a, b Schedule) bool {
	if !a.DefenseDate.Equal(b.DefenseDate.Time) {
		return a.DefenseDate.Before(b.DefenseDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// PanelLess is the listing order of panels (newest first).
func PanelLess(a, b Panel) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
