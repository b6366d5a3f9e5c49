package defense

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

const defaultCreateTimeout = 10 * time.Second

type SchedulerOptions struct {
	Repo      Repository
	Directory Directory
	Activity  ActivityLog
	Locker    Locker
	Logger    core.Logger
	Observer  Observer // optional

	// CreateTimeout bounds every create/update call (conflict scans included).
	CreateTimeout time.Duration
	// LockWait bounds the wait for the (lecturer, date) locks; zero waits until CreateTimeout.
	LockWait time.Duration
	// Location decides what "today" is when rejecting past defense dates.
	Location *time.Location
	// Now is overridable in tests.
	Now func() time.Time
}

// Scheduler is the only writer of defense schedules.
// Every booking is checked for intra-panel overlaps and cross-panel lecturer double-bookings
// while holding a lock on each (lecturer, date) involved.
type Scheduler struct {
	repo     Repository
	dir      Directory
	activity ActivityLog
	locker   Locker
	logger   core.Logger
	observer Observer
	timeout  time.Duration
	lockWait time.Duration
	loc      *time.Location
	now      func() time.Time
	enrich   *enricher
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		repo:     opts.Repo,
		dir:      opts.Directory,
		activity: opts.Activity,
		locker:   opts.Locker,
		logger:   opts.Logger,
		observer: opts.Observer,
		timeout:  opts.CreateTimeout,
		lockWait: opts.LockWait,
		loc:      opts.Location,
		now:      opts.Now,
		enrich:   &enricher{repo: opts.Repo, dir: opts.Directory},
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.timeout <= 0 {
		s.timeout = defaultCreateTimeout
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Scheduler) today() Date {
	return DateOf(s.now().In(s.loc))
}

func (s *Scheduler) timestamp() time.Time {
	return s.now().UTC()
}

// Create books a new schedule.
func (s *Scheduler) Create(ctx context.Context, ns NewSchedule, actor Actor) (ScheduleView, error) {
	sched, err := s.create(ctx, ns, actor)
	if err != nil {
		return ScheduleView{}, err
	}

	s.observer.ScheduleCommitted(ActionScheduleCreated)
	s.audit(ctx, actor, ActionScheduleCreated, fmt.Sprintf("Created defense schedule for %s", sched.DefenseDate), map[string]interface{}{
		"schedule_id":      sched.ID,
		"panel_id":         sched.PanelID,
		"defense_date":     sched.DefenseDate.String(),
		"time_slots_count": len(sched.TimeSlots),
		"student_count":    len(sched.StudentIDs) + len(sched.MemberIDs),
		"group_count":      len(sched.GroupIDs),
	})
	return s.enrich.schedule(ctx, sched)
}

func (s *Scheduler) create(parent context.Context, ns NewSchedule, actor Actor) (Schedule, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	// a past date is rejected before anything else
	if ns.DefenseDate.Before(s.today()) {
		return Schedule{}, newValidationError(ErrPastDate, "defense_date")
	}

	// 1. panel
	panel, err := s.repo.GetPanel(ctx, core.CleanString(ns.PanelID))
	if err != nil {
		return Schedule{}, s.timedOut(ctx, errors.Wrap(err, "getting panel"))
	}

	now := s.timestamp()
	sched := Schedule{
		ID:             uuid.New().String(),
		PanelID:        panel.ID,
		StudentIDs:     nonNil(core.CleanIDs(ns.StudentIDs)),
		GroupIDs:       nonNil(core.CleanIDs(ns.GroupIDs)),
		AcademicYearID: core.CleanString(ns.AcademicYearID),
		DefenseDate:    ns.DefenseDate,
		TimeSlots:      append([]TimeSlot(nil), ns.TimeSlots...),
		MeetingLink:    core.CleanString(ns.MeetingLink),
		Notes:          core.CleanString(ns.Notes),
		Status:         StatusScheduled,
		CreatedBy:      actor.ID,
		UpdatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// 2-4. shape of the booking
	if err = s.checkBooking(sched); err != nil {
		return Schedule{}, err
	}

	// 6-7. students & groups
	if sched.MemberIDs, err = s.checkEntities(ctx, panel, sched); err != nil {
		return Schedule{}, s.timedOut(ctx, err)
	}

	// 8-10. conflicts & write, atomically
	var created Schedule
	err = s.commit(ctx, panel, sched, func(repo Repository) error {
		var err error
		created, err = repo.CreateSchedule(ctx, sched)
		return errors.Wrap(err, "creating schedule")
	})
	if err != nil {
		return Schedule{}, s.timedOut(ctx, err)
	}
	return created, nil
}

// checkBooking validates the entities & slots of sched without any lookup.
func (s *Scheduler) checkBooking(sched Schedule) error {
	if len(sched.StudentIDs)+len(sched.GroupIDs) == 0 {
		return newValidationError(ErrNoEntities, "")
	}
	if len(sched.TimeSlots) == 0 {
		return newValidationError(ErrNoTimeSlots, "time_slots")
	}

	for i, slot := range sched.TimeSlots {
		field := fmt.Sprintf("time_slots[%d]", i)
		if !slot.Entity.Valid() {
			return newValidationError(ErrSlotEntity, field)
		}
		iv, err := slot.Interval()
		if err != nil {
			return core.NewValidationError(ErrSlotTime, core.FieldError{Field: field, Error: err.Error()})
		}
		if !iv.Valid() {
			return newValidationError(ErrSlotOrder, field)
		}
	}

	// every selected entity has exactly one slot, and every slot entity is selected
	expected := make(map[Entity]bool, len(sched.StudentIDs)+len(sched.GroupIDs))
	for _, id := range sched.StudentIDs {
		expected[StudentEntity(id)] = false
	}
	for _, id := range sched.GroupIDs {
		expected[GroupEntity(id)] = false
	}
	for _, e := range sched.Entities() {
		booked, ok := expected[e]
		if !ok || booked {
			return newValidationError(ErrSlotMismatch, "time_slots")
		}
		expected[e] = true
	}
	for _, booked := range expected {
		if !booked {
			return newValidationError(ErrSlotMismatch, "time_slots")
		}
	}
	return nil
}

// checkEntities resolves the selected students & groups, requires their supervisors to sit on the panel
// and returns the members of the selected groups.
func (s *Scheduler) checkEntities(ctx context.Context, panel Panel, sched Schedule) ([]string, error) {
	for _, id := range sched.StudentIDs {
		st, err := s.dir.GetStudent(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting student")
		}
		if st.SupervisorID != "" && !panel.HasLecturer(st.SupervisorID) {
			return nil, newValidationError(ErrStudentSupervisor, "student_ids")
		}
	}

	members := make([]string, 0)
	for _, id := range sched.GroupIDs {
		g, err := s.dir.GetGroup(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting group")
		}
		if g.SupervisorID != "" && !panel.HasLecturer(g.SupervisorID) {
			return nil, newValidationError(ErrGroupSupervisor, "group_ids")
		}
		members = append(members, g.MemberIDs...)
	}
	return core.CleanIDs(members), nil
}

// lockKeys returns the keys serializing every booking of the panel (and of its lecturers) on date.
func lockKeys(panel Panel, date Date) []string {
	day := date.String()
	keys := make([]string, 0, len(panel.LecturerIDs)+1)
	keys = append(keys, "panel:"+panel.ID+":"+day)
	for _, id := range panel.LecturerIDs {
		keys = append(keys, "lecturer:"+id+":"+day)
	}
	return keys
}

// commit runs the conflict checks of sched then write, holding the (lecturer, date) locks
// and within a single transaction. Nothing is written if a conflict is found.
func (s *Scheduler) commit(ctx context.Context, panel Panel, sched Schedule, write func(repo Repository) error) error {
	lockCtx := ctx
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := s.locker.Lock(lockCtx, lockKeys(panel, sched.DefenseDate)...)
	if err != nil && lockCtx.Err() == context.DeadlineExceeded && !core.IsUnavailable(err) {
		err = errors.Wrap(core.ErrUnavailable, "lock wait exceeded")
	}
	if err != nil {
		return errors.Wrap(err, "locking panel lecturers")
	}
	defer unlock()
	s.observer.LockAcquired(time.Since(start))

	return s.repo.RunInTx(ctx, func(repo Repository) error {
		// the lock keys and the supervisor checks were derived from this panel
		cur, err := repo.GetPanel(ctx, panel.ID)
		if err != nil {
			return errors.Wrap(err, "getting panel")
		}
		if !sameIDs(cur.LecturerIDs, panel.LecturerIDs) {
			return errors.Wrap(core.ErrUnavailable, "panel lecturers changed concurrently")
		}

		if err := s.checkConflicts(ctx, repo, panel, sched); err != nil {
			if cerr, ok := errors.Cause(err).(*ConflictError); ok {
				s.observer.ConflictDetected(cerr.Kind)
			}
			return err
		}
		return write(repo)
	})
}

type bookedSlot struct {
	slot TimeSlot
	iv   Interval
}

func bookedSlots(sched Schedule) ([]bookedSlot, error) {
	slots := make([]bookedSlot, 0, len(sched.TimeSlots))
	for _, slot := range sched.TimeSlots {
		iv, err := slot.Interval()
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time slot of schedule %s", sched.ID)
		}
		slots = append(slots, bookedSlot{slot: slot, iv: iv})
	}
	return slots, nil
}

// firstOverlap returns the first pair of overlapping slots (new, existing).
func firstOverlap(newSlots, existing []bookedSlot) (TimeSlot, TimeSlot, bool) {
	for _, ex := range existing {
		for _, ns := range newSlots {
			if ns.iv.Overlaps(ex.iv) {
				return ns.slot, ex.slot, true
			}
		}
	}
	return TimeSlot{}, TimeSlot{}, false
}

func (s *Scheduler) checkConflicts(ctx context.Context, repo Repository, panel Panel, sched Schedule) error {
	newSlots, err := bookedSlots(sched)
	if err != nil {
		return newValidationError(ErrSlotTime, "time_slots")
	}

	// slots of the request itself
	for i := 1; i < len(newSlots); i++ {
		if ns, ex, ok := firstOverlap(newSlots[i:i+1], newSlots[:i]); ok {
			return &ConflictError{Kind: ConflictRequest, Date: sched.DefenseDate, Slot: ns, Existing: ex}
		}
	}

	// same panel
	q := activeOn(sched.DefenseDate, panel.ID)
	q.ExcludeID = sched.ID
	existing, err := repo.FilterSchedules(ctx, q)
	if err != nil {
		return errors.Wrap(err, "filtering panel schedules")
	}
	for _, ex := range existing {
		exSlots, err := bookedSlots(ex)
		if err != nil {
			return err
		}
		if ns, es, ok := firstOverlap(newSlots, exSlots); ok {
			return &ConflictError{
				Kind:       ConflictPanel,
				Date:       sched.DefenseDate,
				Slot:       ns,
				Existing:   es,
				ScheduleID: ex.ID,
				PanelID:    ex.PanelID,
			}
		}
	}

	// other panels sharing a lecturer
	siblings, err := repo.PanelsWithLecturers(ctx, panel.LecturerIDs)
	if err != nil {
		return errors.Wrap(err, "finding panels sharing lecturers")
	}
	others := make(map[string]Panel, len(siblings))
	otherIDs := make([]string, 0, len(siblings))
	for _, p := range siblings {
		if p.ID == panel.ID {
			continue
		}
		others[p.ID] = p
		otherIDs = append(otherIDs, p.ID)
	}
	if len(otherIDs) == 0 {
		return nil
	}
	sort.Strings(otherIDs)

	q = activeOn(sched.DefenseDate, otherIDs...)
	q.ExcludeID = sched.ID
	existing, err = repo.FilterSchedules(ctx, q)
	if err != nil {
		return errors.Wrap(err, "filtering sibling panel schedules")
	}
	for _, ex := range existing {
		exSlots, err := bookedSlots(ex)
		if err != nil {
			return err
		}
		ns, es, ok := firstOverlap(newSlots, exSlots)
		if !ok {
			continue
		}
		cerr := &ConflictError{
			Kind:       ConflictLecturer,
			Date:       sched.DefenseDate,
			Slot:       ns,
			Existing:   es,
			ScheduleID: ex.ID,
			PanelID:    ex.PanelID,
		}
		for _, lid := range panel.LecturerIDs {
			if others[ex.PanelID].HasLecturer(lid) {
				cerr.LecturerID = lid
				break
			}
		}
		if l, err := s.dir.GetLecturer(ctx, cerr.LecturerID); err == nil {
			cerr.LecturerName = l.FullName()
		} else if !core.IsNotFound(err) {
			return errors.Wrap(err, "getting lecturer")
		}
		return cerr
	}
	return nil
}

// Update applies a partial update. Changes to the booking (panel, date, students, groups or slots)
// of an active schedule are re-validated and re-checked for conflicts like a new booking.
func (s *Scheduler) Update(ctx context.Context, id string, us UpdateSchedule, actor Actor) (ScheduleView, error) {
	sched, updated, err := s.update(ctx, id, us, actor)
	if err != nil {
		return ScheduleView{}, err
	}
	if len(updated) > 0 {
		action := ActionScheduleUpdated
		if sched.Status == StatusCancelled {
			action = ActionScheduleCancelled
		}
		s.observer.ScheduleCommitted(action)
		s.audit(ctx, actor, action, fmt.Sprintf("Updated defense schedule for %s", sched.DefenseDate), map[string]interface{}{
			"schedule_id":    sched.ID,
			"defense_date":   sched.DefenseDate.String(),
			"updated_fields": updated,
		})
	}
	return s.enrich.schedule(ctx, sched)
}

func (s *Scheduler) update(parent context.Context, id string, us UpdateSchedule, actor Actor) (Schedule, []string, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	orig, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, nil, s.timedOut(ctx, errors.Wrap(err, "getting schedule"))
	}
	sched := orig.clone()

	var (
		updated                           []string
		panelChanged, dateChanged, booked bool
	)
	if us.PanelID != nil && core.CleanString(*us.PanelID) != orig.PanelID {
		sched.PanelID = core.CleanString(*us.PanelID)
		panelChanged = true
		updated = append(updated, "panel_id")
	}
	if us.DefenseDate != nil && !us.DefenseDate.Equal(orig.DefenseDate.Time) {
		sched.DefenseDate = *us.DefenseDate
		dateChanged = true
		updated = append(updated, "defense_date")
	}
	if us.StudentIDs != nil {
		sched.StudentIDs = nonNil(core.CleanIDs(*us.StudentIDs))
		booked = true
		updated = append(updated, "student_ids")
	}
	if us.GroupIDs != nil {
		sched.GroupIDs = nonNil(core.CleanIDs(*us.GroupIDs))
		booked = true
		updated = append(updated, "group_ids")
	}
	if us.TimeSlots != nil {
		sched.TimeSlots = append([]TimeSlot(nil), *us.TimeSlots...)
		booked = true
		updated = append(updated, "time_slots")
	}
	if us.MeetingLink != nil {
		sched.MeetingLink = core.CleanString(*us.MeetingLink)
		updated = append(updated, "meeting_link")
	}
	if us.Notes != nil {
		sched.Notes = core.CleanString(*us.Notes)
		updated = append(updated, "notes")
	}
	if us.AcademicYearID != nil {
		sched.AcademicYearID = core.CleanString(*us.AcademicYearID)
		updated = append(updated, "academic_year_id")
	}
	if us.Status != nil && *us.Status != orig.Status {
		if !us.Status.Valid() {
			return Schedule{}, nil, newValidationError(ErrInvalidStatus, "status")
		}
		if !orig.Status.CanTransitionTo(*us.Status) {
			return Schedule{}, nil, core.NewStateError(fmt.Errorf("cannot change status from %s to %s", orig.Status, *us.Status))
		}
		sched.Status = *us.Status
		updated = append(updated, "status")
	}
	if len(updated) == 0 {
		return orig, nil, nil
	}

	if dateChanged && sched.DefenseDate.Before(s.today()) {
		return Schedule{}, nil, newValidationError(ErrPastDate, "defense_date")
	}

	panel, err := s.repo.GetPanel(ctx, sched.PanelID)
	switch {
	case err == nil:
	case core.IsNotFound(err) && !panelChanged && !booked && !sched.IsActive():
		// the panel of an inactive schedule may be gone
	default:
		return Schedule{}, nil, s.timedOut(ctx, errors.Wrap(err, "getting panel"))
	}

	if panelChanged || booked {
		if err = s.checkBooking(sched); err != nil {
			return Schedule{}, nil, err
		}
		if sched.MemberIDs, err = s.checkEntities(ctx, panel, sched); err != nil {
			return Schedule{}, nil, s.timedOut(ctx, err)
		}
	}

	sched.UpdatedBy = actor.ID
	sched.UpdatedAt = s.timestamp()
	statusSet := us.Status != nil && *us.Status != orig.Status
	var saved Schedule
	write := func(repo Repository) error {
		cur, err := repo.GetSchedule(ctx, id)
		if err != nil {
			return errors.Wrap(err, "getting schedule")
		}
		if err = reconcileStatus(cur, orig, &sched, statusSet, panelChanged || dateChanged || booked); err != nil {
			return err
		}
		saved, err = repo.UpdateSchedule(ctx, sched)
		return errors.Wrap(err, "updating schedule")
	}

	if sched.IsActive() && (panelChanged || dateChanged || booked) {
		err = s.commit(ctx, panel, sched, write)
	} else {
		err = s.repo.RunInTx(ctx, write)
	}
	if err != nil {
		return Schedule{}, nil, s.timedOut(ctx, err)
	}
	return saved, updated, nil
}

// reconcileStatus re-checks an update built from orig against cur, the latest stored state.
// An update that does not set the status keeps the current one; a booking change needs it active.
func reconcileStatus(cur, orig Schedule, sched *Schedule, statusSet, bookingChanged bool) error {
	if cur.Status == orig.Status {
		return nil
	}
	if statusSet {
		if !cur.Status.CanTransitionTo(sched.Status) {
			return core.NewStateError(fmt.Errorf("cannot change status from %s to %s", cur.Status, sched.Status))
		}
		return nil
	}
	if bookingChanged && !cur.IsActive() {
		return core.NewStateError(fmt.Errorf("cannot change the booking of a %s schedule", cur.Status))
	}
	sched.Status = cur.Status
	return nil
}

// Cancel releases the slots & entities of a schedule. Cancelled schedules are kept.
func (s *Scheduler) Cancel(ctx context.Context, id string, actor Actor) (ScheduleView, error) {
	sched, err := s.transition(ctx, id, StatusCancelled, actor)
	if err != nil {
		return ScheduleView{}, err
	}

	s.observer.ScheduleCommitted(ActionScheduleCancelled)
	s.audit(ctx, actor, ActionScheduleCancelled, fmt.Sprintf("Cancelled defense schedule for %s", sched.DefenseDate), map[string]interface{}{
		"schedule_id":  sched.ID,
		"defense_date": sched.DefenseDate.String(),
	})
	return s.enrich.schedule(ctx, sched)
}

// CompletePast completes every active schedule dated before today. Returns the number of completed schedules.
func (s *Scheduler) CompletePast(ctx context.Context, today Date, actor Actor) (int, error) {
	past, err := s.repo.FilterSchedules(ctx, ScheduleQuery{
		Statuses: ActiveStatuses,
		DateTo:   today.AddDays(-1),
	})
	if err != nil {
		return 0, errors.Wrap(err, "filtering past schedules")
	}

	var count int
	for _, p := range past {
		sched, err := s.transition(ctx, p.ID, StatusCompleted, actor)
		if err != nil {
			if _, ok := errors.Cause(err).(*core.StateError); ok {
				continue // changed concurrently
			}
			return count, err
		}
		count++
		s.observer.ScheduleCommitted(ActionScheduleCompleted)
		s.audit(ctx, actor, ActionScheduleCompleted, fmt.Sprintf("Completed defense schedule for %s", sched.DefenseDate), map[string]interface{}{
			"schedule_id":  sched.ID,
			"defense_date": sched.DefenseDate.String(),
		})
	}
	return count, nil
}

func (s *Scheduler) transition(ctx context.Context, id string, next Status, actor Actor) (Schedule, error) {
	var saved Schedule
	err := s.repo.RunInTx(ctx, func(repo Repository) error {
		sched, err := repo.GetSchedule(ctx, id)
		if err != nil {
			return errors.Wrap(err, "getting schedule")
		}
		if sched.Status == StatusCancelled && next == StatusCancelled {
			return core.NewStateError(ErrAlreadyCancelled)
		}
		if !sched.Status.CanTransitionTo(next) {
			return core.NewStateError(fmt.Errorf("cannot change status from %s to %s", sched.Status, next))
		}
		sched.Status = next
		sched.UpdatedBy = actor.ID
		sched.UpdatedAt = s.timestamp()
		saved, err = repo.UpdateSchedule(ctx, sched)
		return errors.Wrap(err, "updating schedule")
	})
	return saved, err
}

// timedOut turns failures caused by the call's own deadline into retryable errors.
func (s *Scheduler) timedOut(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(core.ErrUnavailable, "scheduling timed out")
	}
	return err
}

func (s *Scheduler) audit(ctx context.Context, actor Actor, action, desc string, details map[string]interface{}) {
	recordActivity(ctx, s.activity, s.logger, s.timestamp(), actor, action, desc, details)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
