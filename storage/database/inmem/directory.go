package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// Directory is an in-memory defense.Directory, filled with the Add* methods.
type Directory struct {
	mu            sync.RWMutex
	lecturers     map[string]defense.Lecturer
	students      map[string]defense.Student
	studentCohort map[string]string // student ID -> checkin ID
	groups        map[string]defense.Group
	years         map[string]defense.AcademicYear
	yearCheckin   map[string]string // academic year ID -> checkin ID
}

var _ defense.Directory = (*Directory)(nil) // interface compliance check

func NewDirectory() *Directory {
	return &Directory{
		lecturers:     make(map[string]defense.Lecturer),
		students:      make(map[string]defense.Student),
		studentCohort: make(map[string]string),
		groups:        make(map[string]defense.Group),
		years:         make(map[string]defense.AcademicYear),
		yearCheckin:   make(map[string]string),
	}
}

func (dir *Directory) AddLecturer(lecturers ...defense.Lecturer) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	for _, l := range lecturers {
		dir.lecturers[l.ID] = l
	}
}

// AddStudent registers a student of the given checkin cohort (may be empty).
func (dir *Directory) AddStudent(st defense.Student, checkinID string) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.students[st.ID] = st
	if checkinID != "" {
		dir.studentCohort[st.ID] = checkinID
	}
}

func (dir *Directory) AddGroup(groups ...defense.Group) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	for _, g := range groups {
		g.MemberIDs = append([]string(nil), g.MemberIDs...)
		dir.groups[g.ID] = g
	}
}

// AddAcademicYear registers an academic year and its checkin cohort (may be empty).
func (dir *Directory) AddAcademicYear(year defense.AcademicYear, checkinID string) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.years[year.ID] = year
	if checkinID != "" {
		dir.yearCheckin[year.ID] = checkinID
	}
}

func (dir *Directory) GetLecturer(_ context.Context, id string) (defense.Lecturer, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if l, ok := dir.lecturers[id]; ok {
		return l, nil
	}
	return defense.Lecturer{}, core.NewNotFoundError(defense.ResourceLecturer, id)
}

func (dir *Directory) GetStudent(_ context.Context, id string) (defense.Student, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if st, ok := dir.students[id]; ok {
		return st, nil
	}
	return defense.Student{}, core.NewNotFoundError(defense.ResourceStudent, id)
}

func (dir *Directory) StudentsSupervisedBy(_ context.Context, lecturerIDs []string, checkinID string) ([]defense.Student, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()

	supervisors := stringSet(lecturerIDs)
	students := make([]defense.Student, 0)
	for _, st := range dir.students {
		if !supervisors[st.SupervisorID] {
			continue
		}
		if checkinID != "" && dir.studentCohort[st.ID] != checkinID {
			continue
		}
		students = append(students, st)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (dir *Directory) GetGroup(_ context.Context, id string) (defense.Group, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if g, ok := dir.groups[id]; ok {
		g.MemberIDs = append([]string(nil), g.MemberIDs...)
		return g, nil
	}
	return defense.Group{}, core.NewNotFoundError(defense.ResourceGroup, id)
}

func (dir *Directory) ActiveGroupsSupervisedBy(_ context.Context, lecturerIDs []string) ([]defense.Group, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()

	supervisors := stringSet(lecturerIDs)
	groups := make([]defense.Group, 0)
	for _, g := range dir.groups {
		if g.IsActive() && supervisors[g.SupervisorID] {
			g.MemberIDs = append([]string(nil), g.MemberIDs...)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (dir *Directory) ActiveGroupMemberIDs(_ context.Context) ([]string, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, g := range dir.groups {
		if !g.IsActive() {
			continue
		}
		for _, id := range g.MemberIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (dir *Directory) GetAcademicYear(_ context.Context, id string) (defense.AcademicYear, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if y, ok := dir.years[id]; ok {
		return y, nil
	}
	return defense.AcademicYear{}, core.NewNotFoundError(defense.ResourceAcademicYear, id)
}

func (dir *Directory) CheckinForAcademicYear(_ context.Context, academicYearID string) (string, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if _, ok := dir.years[academicYearID]; !ok {
		return "", core.NewNotFoundError(defense.ResourceAcademicYear, academicYearID)
	}
	return dir.yearCheckin[academicYearID], nil
}

func stringSet(ss []string) map[string]bool {
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
}
