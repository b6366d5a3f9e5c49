package defense_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	"github.com/Joeboy77/dms-backend-sub000/tests"
)

func TestCandidateResolver_ForPanel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.AddStudent("S7", "Ofori", "L1", "C1")
	f.AddStudent("S8", "Quartey", "L1", "")
	f.Dir.AddGroup(defense.Group{ID: "G2", Name: "Dormant", SupervisorID: "L1", Status: defense.GroupStatusInactive, MemberIDs: []string{"S8"}})
	f.Dir.AddAcademicYear(defense.AcademicYear{ID: "AY1", Title: "2029/2030"}, "C1")

	names := func(pool defense.CandidatePool) ([]string, []string) {
		students := make([]string, 0, len(pool.Students))
		for _, st := range pool.Students {
			assert.Equal(t, defense.CandidateIndividual, st.Type)
			students = append(students, st.ID)
		}
		groups := make([]string, 0, len(pool.Groups))
		for _, g := range pool.Groups {
			assert.Equal(t, defense.CandidateGroup, g.Type)
			groups = append(groups, g.ID)
		}
		return students, groups
	}

	pool, err := f.Candidates.ForPanel(ctx, f.p1.ID, "")
	require.NoError(t, err)
	students, groups := names(pool)
	// S5 & S6 are in G1; S4 is supervised outside the panel
	assert.Equal(t, []string{"S1", "S2", "S3", "S7", "S8"}, students)
	assert.Equal(t, []string{"G1"}, groups)
	require.Len(t, pool.Groups[0].Members, 2)
	assert.Equal(t, "Gyamfi Test", pool.Groups[0].Members[0].Name)

	// booked anywhere while active: out of every pool
	sv := f.CreateSchedule(t, f.p2.ID, defenseDay, []string{"S1"}, nil, defense.NewStudentSlot("S1", "09:00", "09:30"))
	f.CreateSchedule(t, f.p1.ID, defenseDay, nil, []string{"G1"}, defense.NewGroupSlot("G1", "10:00", "11:00"))

	pool, err = f.Candidates.ForPanel(ctx, f.p1.ID, "")
	require.NoError(t, err)
	students, groups = names(pool)
	assert.Equal(t, []string{"S2", "S3", "S7", "S8"}, students)
	assert.Empty(t, groups)

	// cancelling makes them available again
	_, err = f.Scheduler.Cancel(ctx, sv.ID, testutil.Coordinator)
	require.NoError(t, err)
	pool, err = f.Candidates.ForPanel(ctx, f.p1.ID, "")
	require.NoError(t, err)
	students, _ = names(pool)
	assert.Equal(t, []string{"S1", "S2", "S3", "S7", "S8"}, students)

	// academic year cohort
	pool, err = f.Candidates.ForPanel(ctx, f.p1.ID, "AY1")
	require.NoError(t, err)
	students, _ = names(pool)
	assert.Equal(t, []string{"S7"}, students)

	// an unknown academic year does not narrow the pool
	pool, err = f.Candidates.ForPanel(ctx, f.p1.ID, "AY9")
	require.NoError(t, err)
	students, _ = names(pool)
	assert.Len(t, students, 5)

	_, err = f.Candidates.ForPanel(ctx, "nope", "")
	assert.True(t, core.IsNotFound(err))
}
