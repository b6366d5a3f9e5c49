package defense

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

const (
	CandidateIndividual = "individual"
	CandidateGroup      = "group"
)

type StudentCandidate struct {
	StudentView
	Type string `json:"type"`
}

type GroupCandidate struct {
	GroupView
	Type string `json:"type"`
}

type CandidatePool struct {
	Students []StudentCandidate `json:"students"`
	Groups   []GroupCandidate   `json:"groups"`
}

// CandidateResolver computes who can still be booked in front of a panel.
type CandidateResolver struct {
	repo   Repository
	dir    Directory
	enrich *enricher
}

func NewCandidateResolver(repo Repository, dir Directory) *CandidateResolver {
	return &CandidateResolver{
		repo:   repo,
		dir:    dir,
		enrich: &enricher{repo: repo, dir: dir},
	}
}

// ForPanel returns the students supervised by a panel lecturer who are in no active group,
// and the active groups supervised by a panel lecturer, leaving out whoever is already booked
// by an active schedule (of any panel).
func (cr *CandidateResolver) ForPanel(ctx context.Context, panelID, academicYearID string) (CandidatePool, error) {
	panel, err := cr.repo.GetPanel(ctx, panelID)
	if err != nil {
		return CandidatePool{}, errors.Wrap(err, "getting panel")
	}

	var checkinID string
	if academicYearID != "" {
		checkinID, err = cr.dir.CheckinForAcademicYear(ctx, academicYearID)
		if err = skipNotFound(err); err != nil {
			return CandidatePool{}, errors.Wrap(err, "getting academic year checkin")
		}
	}

	bookedStudents, bookedGroups, err := cr.booked(ctx)
	if err != nil {
		return CandidatePool{}, err
	}

	grouped, err := cr.dir.ActiveGroupMemberIDs(ctx)
	if err != nil {
		return CandidatePool{}, errors.Wrap(err, "getting group members")
	}
	inGroup := make(map[string]bool, len(grouped))
	for _, id := range grouped {
		inGroup[id] = true
	}

	pool := CandidatePool{
		Students: make([]StudentCandidate, 0),
		Groups:   make([]GroupCandidate, 0),
	}

	students, err := cr.dir.StudentsSupervisedBy(ctx, panel.LecturerIDs, checkinID)
	if err != nil {
		return CandidatePool{}, errors.Wrap(err, "getting supervised students")
	}
	for _, st := range students {
		if inGroup[st.ID] || bookedStudents[st.ID] {
			continue
		}
		pool.Students = append(pool.Students, StudentCandidate{StudentView: studentView(st), Type: CandidateIndividual})
	}

	groups, err := cr.dir.ActiveGroupsSupervisedBy(ctx, panel.LecturerIDs)
	if err != nil {
		return CandidatePool{}, errors.Wrap(err, "getting supervised groups")
	}
	for _, g := range groups {
		if !g.IsActive() || bookedGroups[g.ID] {
			continue
		}
		gv, err := cr.enrich.group(ctx, g.ID)
		if err != nil {
			return CandidatePool{}, err
		}
		if gv != nil {
			pool.Groups = append(pool.Groups, GroupCandidate{GroupView: *gv, Type: CandidateGroup})
		}
	}

	sort.SliceStable(pool.Students, func(i, j int) bool { return pool.Students[i].Name < pool.Students[j].Name })
	sort.SliceStable(pool.Groups, func(i, j int) bool { return pool.Groups[i].Name < pool.Groups[j].Name })
	return pool, nil
}

// booked returns the students & groups of every active schedule.
func (cr *CandidateResolver) booked(ctx context.Context) (map[string]bool, map[string]bool, error) {
	active, err := cr.repo.FilterSchedules(ctx, ScheduleQuery{Statuses: ActiveStatuses})
	if err != nil {
		return nil, nil, errors.Wrap(err, "filtering active schedules")
	}
	students := make(map[string]bool)
	groups := make(map[string]bool)
	for _, s := range active {
		for _, id := range s.StudentIDs {
			students[id] = true
		}
		for _, id := range s.MemberIDs {
			students[id] = true
		}
		for _, id := range s.GroupIDs {
			groups[id] = true
		}
	}
	return students, groups, nil
}
