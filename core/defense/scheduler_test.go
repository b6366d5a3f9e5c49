package defense_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	"github.com/Joeboy77/dms-backend-sub000/tests"
)

var defenseDay = defense.NewDate(2030, time.June, 10)

// fixture: P1 = {L1, L2}, P2 = {L1, L3}; S1..S3 supervised by L1; S4 by L3; group G1 (S5, S6) by L2.
type fixture struct {
	*testutil.Env
	p1, p2 defense.PanelView
}

func newFixture(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	env.AddLecturer("L1", "Dr.", "Mensah", "Kofi")
	env.AddLecturer("L2", "Prof.", "Owusu", "Ama")
	env.AddLecturer("L3", "Mr.", "Boateng", "Yaw")
	env.AddStudent("S1", "Adjei", "L1", "")
	env.AddStudent("S2", "Asante", "L1", "")
	env.AddStudent("S3", "Darko", "L1", "")
	env.AddStudent("S4", "Frimpong", "L3", "")
	env.AddStudent("S5", "Gyamfi", "L2", "")
	env.AddStudent("S6", "Hayford", "L2", "")
	env.AddGroup("G1", "Team Alpha", "L2", "S5", "S6")

	return &fixture{
		Env: env,
		p1:  env.CreatePanel(t, "Panel 1", "L1", "L2"),
		p2:  env.CreatePanel(t, "Panel 2", "L1", "L3"),
	}
}

func (f *fixture) create(panelID string, date defense.Date, studentIDs, groupIDs []string, slots ...defense.TimeSlot) (defense.ScheduleView, error) {
	return f.Scheduler.Create(context.Background(), defense.NewSchedule{
		PanelID:     panelID,
		StudentIDs:  studentIDs,
		GroupIDs:    groupIDs,
		DefenseDate: date,
		TimeSlots:   slots,
		MeetingLink: "https://meet.test/abc",
	}, testutil.Coordinator)
}

func conflictOf(t *testing.T, err error) *defense.ConflictError {
	t.Helper()
	require.Error(t, err)
	cerr, ok := errors.Cause(err).(*defense.ConflictError)
	require.Truef(t, ok, "want ConflictError; got %T: %v", errors.Cause(err), err)
	return cerr
}

func assertValidation(t *testing.T, err error, want error) {
	t.Helper()
	require.Error(t, err)
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.Truef(t, ok, "want ValidationError; got %T: %v", errors.Cause(err), err)
	if want != nil {
		assert.Equal(t, want, verr.Err)
	}
}

func assertState(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	_, ok := errors.Cause(err).(*core.StateError)
	assert.Truef(t, ok, "want StateError; got %T: %v", errors.Cause(err), err)
}

func TestScheduler_walkthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1. A on P1
	a, err := f.create(f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	require.NoError(t, err)
	assert.Equal(t, defense.StatusScheduled, a.Status)

	// 2. B on P1 overlaps A
	_, err = f.create(f.p1.ID, defenseDay, []string{"S2"}, nil, defense.NewStudentSlot("S2", "09:15", "09:45"))
	cerr := conflictOf(t, err)
	assert.Equal(t, defense.ConflictPanel, cerr.Kind)
	assert.Equal(t, "09:00-09:30", cerr.Existing.Range())
	assert.Equal(t, "09:15-09:45", cerr.Slot.Range())
	assert.Equal(t, a.ID, cerr.ScheduleID)

	// 3. C on P2 shares L1 with P1
	_, err = f.create(f.p2.ID, defenseDay, []string{"S3"}, nil, defense.NewStudentSlot("S3", "09:00", "09:20"))
	cerr = conflictOf(t, err)
	assert.Equal(t, defense.ConflictLecturer, cerr.Kind)
	assert.Equal(t, "L1", cerr.LecturerID)
	assert.Equal(t, "Dr. Mensah Kofi", cerr.LecturerName)
	assert.Contains(t, cerr.Error(), "Dr. Mensah Kofi")

	// 4. cancelling A frees the slot
	cancelled, err := f.Scheduler.Cancel(ctx, a.ID, testutil.Coordinator)
	require.NoError(t, err)
	assert.Equal(t, defense.StatusCancelled, cancelled.Status)
	b, err := f.create(f.p1.ID, defenseDay, []string{"S2"}, nil, defense.NewStudentSlot("S2", "09:15", "09:45"))
	require.NoError(t, err)

	// 5. calendar markers
	markers, err := f.Calendar.Markers(ctx, defense.NewDate(2030, time.June, 1), defense.NewDate(2030, time.June, 30), "")
	require.NoError(t, err)
	assert.Equal(t, map[string][]defense.Marker{
		"2030-06-10": {{Time: "09:15-09:45", Status: defense.StatusScheduled}},
	}, markers)

	// nothing written by the rejected requests
	all, err := f.Calendar.ByDate(ctx, defenseDay, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestScheduler_Create_validation(t *testing.T) {
	f := newFixture(t)
	slot := defense.NewStudentSlot

	tests := []struct {
		name     string
		panelID  string
		date     defense.Date
		students []string
		groups   []string
		slots    []defense.TimeSlot
		wantErr  error
		notFound bool
	}{
		{name: "unknown panel", panelID: "nope", students: []string{"S1"}, slots: []defense.TimeSlot{slot("S1", "09:00", "09:30")}, notFound: true},
		{name: "no entities", slots: []defense.TimeSlot{slot("S1", "09:00", "09:30")}, wantErr: defense.ErrNoEntities},
		{name: "no slots", students: []string{"S1"}, wantErr: defense.ErrNoTimeSlots},
		{name: "bad time", students: []string{"S1"}, slots: []defense.TimeSlot{slot("S1", "9h", "09:30")}, wantErr: defense.ErrSlotTime},
		{name: "inverted", students: []string{"S1"}, slots: []defense.TimeSlot{slot("S1", "10:00", "09:30")}, wantErr: defense.ErrSlotOrder},
		{name: "empty range", students: []string{"S1"}, slots: []defense.TimeSlot{slot("S1", "10:00", "10:00")}, wantErr: defense.ErrSlotOrder},
		{name: "entityless slot", students: []string{"S1"}, slots: []defense.TimeSlot{{Start: "09:00", End: "09:30"}}, wantErr: defense.ErrSlotEntity},
		{
			name: "missing slot", students: []string{"S1", "S2"},
			slots: []defense.TimeSlot{slot("S1", "09:00", "09:30")}, wantErr: defense.ErrSlotMismatch,
		},
		{
			name: "unselected slot", students: []string{"S1"},
			slots: []defense.TimeSlot{slot("S1", "09:00", "09:30"), slot("S2", "09:30", "10:00")}, wantErr: defense.ErrSlotMismatch,
		},
		{
			name: "two slots for one student", students: []string{"S1"},
			slots: []defense.TimeSlot{slot("S1", "09:00", "09:30"), slot("S1", "09:30", "10:00")}, wantErr: defense.ErrSlotMismatch,
		},
		{
			name: "group booked as student", groups: []string{"G1"},
			slots: []defense.TimeSlot{slot("G1", "09:00", "09:30")}, wantErr: defense.ErrSlotMismatch,
		},
		{name: "unknown student", students: []string{"S9"}, slots: []defense.TimeSlot{slot("S9", "09:00", "09:30")}, notFound: true},
		{
			name: "unknown group", groups: []string{"G9"},
			slots: []defense.TimeSlot{defense.NewGroupSlot("G9", "09:00", "09:30")}, notFound: true,
		},
		{
			name: "supervisor not on panel", students: []string{"S4"},
			slots: []defense.TimeSlot{slot("S4", "09:00", "09:30")}, wantErr: defense.ErrStudentSupervisor,
		},
		{
			name: "group supervisor not on panel", panelID: "p2", groups: []string{"G1"},
			slots: []defense.TimeSlot{defense.NewGroupSlot("G1", "09:00", "09:30")}, wantErr: defense.ErrGroupSupervisor,
		},
		{name: "past date", date: testutil.Today.AddDays(-1), students: []string{"S1"}, slots: []defense.TimeSlot{slot("S1", "09:00", "09:30")}, wantErr: defense.ErrPastDate},
		// a past date wins over every other failure
		{name: "past date & unknown panel", panelID: "nope", date: testutil.Today.AddDays(-1), wantErr: defense.ErrPastDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			panelID := tt.panelID
			switch panelID {
			case "":
				panelID = f.p1.ID
			case "p2":
				panelID = f.p2.ID
			}
			date := tt.date
			if date.IsZero() {
				date = defenseDay
			}

			_, err := f.create(panelID, date, tt.students, tt.groups, tt.slots...)
			if tt.notFound {
				assert.Truef(t, core.IsNotFound(err), "want NotFound; got %v", err)
			} else {
				assertValidation(t, err, tt.wantErr)
			}
		})
	}

	scheds, err := f.Repo.FilterSchedules(context.Background(), defense.ScheduleQuery{})
	require.NoError(t, err)
	assert.Empty(t, scheds, "failed creations must not write")
}

func TestScheduler_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// today is allowed
	sv, err := f.create(f.p1.ID, testutil.Today, []string{"S1", "S2"}, []string{"G1"},
		defense.NewStudentSlot("S1", "09:00", "09:30"),
		defense.NewStudentSlot("S2", "09:30", "10:00"),
		defense.NewGroupSlot("G1", "10:00", "11:00"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"S1", "S2"}, sv.StudentIDs)
	assert.Equal(t, []string{"G1"}, sv.GroupIDs)
	assert.Equal(t, []string{"S5", "S6"}, sv.MemberIDs)
	assert.Equal(t, testutil.Coordinator.ID, sv.CreatedBy)
	require.NotNil(t, sv.Panel)
	assert.Equal(t, "Panel 1", sv.Panel.Name)
	assert.Len(t, sv.Panel.Lecturers, 2)
	require.Len(t, sv.Slots, 3)
	require.NotNil(t, sv.Slots[0].Student)
	assert.Equal(t, "Adjei Test", sv.Slots[0].Student.Name)
	require.NotNil(t, sv.Slots[2].Group)
	assert.Equal(t, 2, sv.Slots[2].Group.MemberCount)

	// the stored slot entities are exactly the selection
	stored, err := f.Repo.GetSchedule(ctx, sv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []defense.Entity{
		defense.StudentEntity("S1"), defense.StudentEntity("S2"), defense.GroupEntity("G1"),
	}, stored.Entities())

	entries := f.Activity.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, defense.ActionScheduleCreated, last.Action)
	assert.Equal(t, defense.ActivityTypeCoordinator, last.Type)
	assert.Equal(t, testutil.Coordinator.ID, last.ActorID)
	assert.Equal(t, sv.ID, last.Details["schedule_id"])
	assert.Equal(t, 4, last.Details["student_count"])
	assert.Equal(t, 1, last.Details["group_count"])
}

func TestScheduler_Create_conflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.create(f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		panelID  string
		date     defense.Date
		students []string
		slots    []defense.TimeSlot
		wantKind defense.ConflictKind // empty: no conflict
	}{
		{
			name: "back to back is fine", students: []string{"S2"},
			slots: []defense.TimeSlot{defense.NewStudentSlot("S2", "09:30", "10:00")},
		},
		{
			name: "other day is fine", date: defenseDay.AddDays(1), students: []string{"S3"},
			slots: []defense.TimeSlot{defense.NewStudentSlot("S3", "09:00", "09:30")},
		},
		{
			name: "slots of the request overlap", date: defenseDay.AddDays(2), students: []string{"S2", "S3"},
			slots: []defense.TimeSlot{
				defense.NewStudentSlot("S2", "14:00", "15:00"),
				defense.NewStudentSlot("S3", "14:30", "15:30"),
			},
			wantKind: defense.ConflictRequest,
		},
		{
			name: "shared lecturer on another panel", panelID: "p2", students: []string{"S4"},
			slots:    []defense.TimeSlot{defense.NewStudentSlot("S4", "09:29", "09:45")},
			wantKind: defense.ConflictLecturer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			panelID := f.p1.ID
			if tt.panelID == "p2" {
				panelID = f.p2.ID
			}
			date := tt.date
			if date.IsZero() {
				date = defenseDay
			}

			_, err := f.create(panelID, date, tt.students, nil, tt.slots...)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, conflictOf(t, err).Kind)
		})
	}
}

func TestScheduler_Create_panelWithoutSharedLecturer(t *testing.T) {
	f := newFixture(t)
	f.AddLecturer("L4", "Dr.", "Quaye", "Esi")
	f.AddStudent("S7", "Ofori", "L4", "")
	p3 := f.CreatePanel(t, "Panel 3", "L4")

	_, err := f.create(f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	require.NoError(t, err)
	_, err = f.create(p3.ID, defenseDay, []string{"S7"}, nil, defense.NewStudentSlot("S7", "09:00", "09:30"))
	assert.NoError(t, err)
}

func TestScheduler_Create_concurrent(t *testing.T) {
	f := newFixture(t)

	// every request overlaps every other one: exactly one may win
	students := []string{"S1", "S2", "S3"}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i, st := range students {
		panelID := f.p1.ID
		if i == 2 {
			panelID = f.p2.ID // shares L1
		}
		wg.Add(1)
		go func(panelID, st string) {
			defer wg.Done()
			_, err := f.create(panelID, defenseDay, []string{st}, nil, defense.NewStudentSlot(st, "09:00", "10:00"))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			_, ok := errors.Cause(err).(*defense.ConflictError)
			assert.Truef(t, ok, "want ConflictError; got %v", err)
		}(panelID, st)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ ...string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestScheduler_Create_timeout(t *testing.T) {
	f := newFixture(t)
	sched := defense.NewScheduler(defense.SchedulerOptions{
		Repo:          f.Repo,
		Directory:     f.Dir,
		Activity:      f.Activity,
		Locker:        blockingLocker{},
		Logger:        f.Logger,
		CreateTimeout: 20 * time.Millisecond,
		Now:           testutil.Now,
	})

	_, err := sched.Create(context.Background(), defense.NewSchedule{
		PanelID:     f.p1.ID,
		StudentIDs:  []string{"S1"},
		DefenseDate: defenseDay,
		TimeSlots:   []defense.TimeSlot{defense.NewStudentSlot("S1", "09:00", "09:30")},
	}, testutil.Coordinator)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))

	scheds, err := f.Repo.FilterSchedules(context.Background(), defense.ScheduleQuery{})
	require.NoError(t, err)
	assert.Empty(t, scheds)
}

func TestScheduler_Create_lockWait(t *testing.T) {
	f := newFixture(t)
	sched := defense.NewScheduler(defense.SchedulerOptions{
		Repo:          f.Repo,
		Directory:     f.Dir,
		Activity:      f.Activity,
		Locker:        blockingLocker{},
		Logger:        f.Logger,
		CreateTimeout: time.Minute,
		LockWait:      20 * time.Millisecond,
		Now:           testutil.Now,
	})

	start := time.Now()
	_, err := sched.Create(context.Background(), defense.NewSchedule{
		PanelID:     f.p1.ID,
		StudentIDs:  []string{"S1"},
		DefenseDate: defenseDay,
		TimeSlots:   []defense.TimeSlot{defense.NewStudentSlot("S1", "09:00", "09:30")},
	}, testutil.Coordinator)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
	assert.Less(t, time.Since(start), 30*time.Second)
}

// racingRepo runs race once, right before the first transaction of the scheduler under test.
type racingRepo struct {
	defense.Repository
	once sync.Once
	race func()
}

func (r *racingRepo) RunInTx(ctx context.Context, fn func(repo defense.Repository) error) error {
	r.once.Do(func() {
		if r.race != nil {
			r.race()
		}
	})
	return r.Repository.RunInTx(ctx, fn)
}

func (f *fixture) racingScheduler() (*defense.Scheduler, *racingRepo) {
	repo := &racingRepo{Repository: f.Repo}
	return defense.NewScheduler(defense.SchedulerOptions{
		Repo:      repo,
		Directory: f.Dir,
		Activity:  f.Activity,
		Locker:    f.Locker,
		Logger:    f.Logger,
		Now:       testutil.Now,
	}), repo
}

func TestScheduler_Create_panelChangedConcurrently(t *testing.T) {
	tests := []struct {
		name     string
		race     func(t *testing.T, f *fixture)
		wantErr  func(err error) bool
		wantKept bool
	}{
		{
			name: "panel deleted",
			race: func(t *testing.T, f *fixture) {
				require.NoError(t, f.Panels.Delete(context.Background(), f.p1.ID, testutil.Coordinator))
			},
			wantErr: core.IsNotFound,
		},
		{
			name: "lecturers changed",
			race: func(t *testing.T, f *fixture) {
				ids := []string{"L1"}
				_, err := f.Panels.Update(context.Background(), f.p1.ID, defense.UpdatePanel{LecturerIDs: &ids}, testutil.Coordinator)
				require.NoError(t, err)
			},
			wantErr: core.IsUnavailable,
		},
		{
			name: "panel renamed",
			race: func(t *testing.T, f *fixture) {
				name := "Renamed"
				_, err := f.Panels.Update(context.Background(), f.p1.ID, defense.UpdatePanel{Name: &name}, testutil.Coordinator)
				require.NoError(t, err)
			},
			wantKept: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sched, repo := f.racingScheduler()
			repo.race = func() { tt.race(t, f) }

			_, err := sched.Create(context.Background(), defense.NewSchedule{
				PanelID:     f.p1.ID,
				StudentIDs:  []string{"S1"},
				DefenseDate: defenseDay,
				TimeSlots:   []defense.TimeSlot{defense.NewStudentSlot("S1", "09:00", "09:30")},
			}, testutil.Coordinator)

			scheds, ferr := f.Repo.FilterSchedules(context.Background(), defense.ScheduleQuery{})
			require.NoError(t, ferr)
			if tt.wantKept {
				require.NoError(t, err)
				assert.Len(t, scheds, 1)
				return
			}
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			assert.Empty(t, scheds, "nothing is booked")
		})
	}
}

func TestScheduler_Update_statusChangedConcurrently(t *testing.T) {
	moved := []defense.TimeSlot{defense.NewStudentSlot("S1", "10:00", "10:30")}
	notes := "room 4"
	completed := defense.StatusCompleted

	tests := []struct {
		name       string
		race       defense.Status
		us         defense.UpdateSchedule
		wantState  bool
		wantStatus defense.Status
		wantStart  string
	}{
		{name: "slots of a cancelled schedule", race: defense.StatusCancelled, us: defense.UpdateSchedule{TimeSlots: &moved}, wantState: true, wantStatus: defense.StatusCancelled, wantStart: "09:00"},
		{name: "slots of a started schedule", race: defense.StatusInProgress, us: defense.UpdateSchedule{TimeSlots: &moved}, wantStatus: defense.StatusInProgress, wantStart: "10:00"},
		{name: "completing a cancelled schedule", race: defense.StatusCancelled, us: defense.UpdateSchedule{Status: &completed}, wantState: true, wantStatus: defense.StatusCancelled, wantStart: "09:00"},
		{name: "notes of a cancelled schedule", race: defense.StatusCancelled, us: defense.UpdateSchedule{Notes: &notes}, wantStatus: defense.StatusCancelled, wantStart: "09:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sv := f.CreateSchedule(t, f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))

			sched, repo := f.racingScheduler()
			repo.race = func() {
				var err error
				if tt.race == defense.StatusCancelled {
					_, err = f.Scheduler.Cancel(ctx, sv.ID, testutil.Coordinator)
				} else {
					status := tt.race
					_, err = f.Scheduler.Update(ctx, sv.ID, defense.UpdateSchedule{Status: &status}, testutil.Coordinator)
				}
				require.NoError(t, err)
			}

			_, err := sched.Update(ctx, sv.ID, tt.us, testutil.Coordinator)
			if tt.wantState {
				assertState(t, err)
			} else {
				require.NoError(t, err)
			}

			got, err := f.Repo.GetSchedule(ctx, sv.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			require.Len(t, got.TimeSlots, 1)
			assert.Equal(t, tt.wantStart, got.TimeSlots[0].Start)
		})
	}
}

func TestScheduler_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sv := f.CreateSchedule(t, f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))

	_, err := f.Scheduler.Cancel(ctx, sv.ID, testutil.Coordinator)
	require.NoError(t, err)
	before, err := f.Repo.GetSchedule(ctx, sv.ID)
	require.NoError(t, err)

	_, err = f.Scheduler.Cancel(ctx, sv.ID, testutil.Coordinator)
	assertState(t, err)
	assert.Equal(t, defense.ErrAlreadyCancelled, errors.Cause(err).(*core.StateError).Err)

	after, err := f.Repo.GetSchedule(ctx, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed cancel changes nothing")

	_, err = f.Scheduler.Cancel(ctx, "nope", testutil.Coordinator)
	assert.True(t, core.IsNotFound(err))

	actions := make([]string, 0)
	for _, e := range f.Activity.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, defense.ActionScheduleCancelled)
}

func TestScheduler_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	strPtr := func(s string) *string { return &s }
	statusPtr := func(s defense.Status) *defense.Status { return &s }

	a := f.CreateSchedule(t, f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	b := f.CreateSchedule(t, f.p1.ID, defenseDay, []string{"S2"}, nil, defense.NewStudentSlot("S2", "10:00", "10:30"))

	t.Run("moving a slot onto another schedule conflicts", func(t *testing.T) {
		slots := []defense.TimeSlot{defense.NewStudentSlot("S2", "09:15", "09:45")}
		_, err := f.Scheduler.Update(ctx, b.ID, defense.UpdateSchedule{TimeSlots: &slots}, testutil.Coordinator)
		assert.Equal(t, defense.ConflictPanel, conflictOf(t, err).Kind)

		stored, err := f.Repo.GetSchedule(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "10:00", stored.TimeSlots[0].Start)
	})

	t.Run("moving a slot within its own range is fine", func(t *testing.T) {
		slots := []defense.TimeSlot{defense.NewStudentSlot("S2", "10:15", "10:45")}
		sv, err := f.Scheduler.Update(ctx, b.ID, defense.UpdateSchedule{TimeSlots: &slots}, testutil.Coordinator)
		require.NoError(t, err)
		assert.Equal(t, "10:15", sv.TimeSlots[0].Start)
	})

	t.Run("moving to a panel sharing a busy lecturer conflicts", func(t *testing.T) {
		c := f.CreateSchedule(t, f.p2.ID, defenseDay, []string{"S4"}, nil, defense.NewStudentSlot("S4", "12:00", "12:30"))
		date := defenseDay
		slots := []defense.TimeSlot{defense.NewStudentSlot("S4", "09:00", "09:20")}
		_, err := f.Scheduler.Update(ctx, c.ID, defense.UpdateSchedule{DefenseDate: &date, TimeSlots: &slots}, testutil.Coordinator)
		assert.Equal(t, defense.ConflictLecturer, conflictOf(t, err).Kind)
	})

	t.Run("past date", func(t *testing.T) {
		date := testutil.Today.AddDays(-1)
		_, err := f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{DefenseDate: &date}, testutil.Coordinator)
		assertValidation(t, err, defense.ErrPastDate)
	})

	t.Run("unknown panel", func(t *testing.T) {
		_, err := f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{PanelID: strPtr("nope")}, testutil.Coordinator)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("slot mismatch", func(t *testing.T) {
		students := []string{"S1", "S3"}
		_, err := f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{StudentIDs: &students}, testutil.Coordinator)
		assertValidation(t, err, defense.ErrSlotMismatch)
	})

	t.Run("notes only", func(t *testing.T) {
		sv, err := f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{Notes: strPtr(" bring printouts ")}, testutil.Coordinator)
		require.NoError(t, err)
		assert.Equal(t, "bring printouts", sv.Notes)
		assert.Equal(t, testutil.Coordinator.ID, sv.UpdatedBy)

		last := f.Activity.Entries()[len(f.Activity.Entries())-1]
		assert.Equal(t, defense.ActionScheduleUpdated, last.Action)
		assert.Equal(t, []string{"notes"}, last.Details["updated_fields"])
	})

	t.Run("status transitions", func(t *testing.T) {
		sv, err := f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{Status: statusPtr(defense.StatusInProgress)}, testutil.Coordinator)
		require.NoError(t, err)
		assert.Equal(t, defense.StatusInProgress, sv.Status)

		_, err = f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{Status: statusPtr(defense.StatusScheduled)}, testutil.Coordinator)
		assertState(t, err)

		sv, err = f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{Status: statusPtr(defense.StatusCompleted)}, testutil.Coordinator)
		require.NoError(t, err)
		assert.Equal(t, defense.StatusCompleted, sv.Status)

		_, err = f.Scheduler.Update(ctx, a.ID, defense.UpdateSchedule{Status: statusPtr(defense.StatusCancelled)}, testutil.Coordinator)
		assertState(t, err)
	})

	t.Run("completed schedules free their slots", func(t *testing.T) {
		_, err := f.create(f.p1.ID, defenseDay, []string{"S3"}, nil, defense.NewStudentSlot("S3", "09:00", "09:30"))
		assert.NoError(t, err)
	})

	t.Run("unknown schedule", func(t *testing.T) {
		_, err := f.Scheduler.Update(ctx, "nope", defense.UpdateSchedule{Notes: strPtr("x")}, testutil.Coordinator)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestScheduler_CompletePast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.CreateSchedule(t, f.p1.ID, testutil.Today, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	b := f.CreateSchedule(t, f.p1.ID, testutil.Today.AddDays(1), []string{"S2"}, nil, defense.NewStudentSlot("S2", "09:00", "09:30"))
	c := f.CreateSchedule(t, f.p1.ID, testutil.Today, []string{"S3"}, nil, defense.NewStudentSlot("S3", "10:00", "10:30"))
	_, err := f.Scheduler.Cancel(ctx, c.ID, testutil.Coordinator)
	require.NoError(t, err)

	// the day after, a is past
	n, err := f.Scheduler.CompletePast(ctx, testutil.Today.AddDays(1), defense.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]defense.Status{
		a.ID: defense.StatusCompleted,
		b.ID: defense.StatusScheduled,
		c.ID: defense.StatusCancelled,
	} {
		s, err := f.Repo.GetSchedule(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, s.Status)
	}

	last := f.Activity.Entries()[len(f.Activity.Entries())-1]
	assert.Equal(t, defense.ActionScheduleCompleted, last.Action)
	assert.Equal(t, defense.SystemActor.ID, last.ActorID)
}

func TestScheduler_auditFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.Activity.FailWith(errors.New("activity log down"))

	_, err := f.create(f.p1.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	require.NoError(t, err)
	require.NotEmpty(t, f.Logger.Entries())
	assert.Contains(t, f.Logger.Entries()[0], "activity log down")
}
