package defense

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

const programUnknown = "N/A"

type LecturerView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AcademicID string `json:"academic_id"`
	Email      string `json:"email"`
}

type PanelView struct {
	Panel
	Lecturers []LecturerView `json:"lecturers"`
}

type PanelSummary struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Lecturers []LecturerView `json:"lecturers"`
}

type StudentView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AcademicID string `json:"academic_id"`
	Program    string `json:"program"`
}

type GroupView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ProjectTitle string        `json:"project_title"`
	Members      []StudentView `json:"members"`
	MemberCount  int           `json:"member_count"`
}

type SlotView struct {
	StudentID string       `json:"student_id,omitempty"`
	GroupID   string       `json:"group_id,omitempty"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
	Student   *StudentView `json:"student,omitempty"`
	Group     *GroupView   `json:"group,omitempty"`
}

type AcademicYearView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Year  string `json:"year"`
}

type ScheduleView struct {
	Schedule
	Panel        *PanelSummary     `json:"panel,omitempty"`
	Students     []StudentView     `json:"students"`
	Groups       []GroupView       `json:"groups"`
	Slots        []SlotView        `json:"slots"`
	AcademicYear *AcademicYearView `json:"academic_year,omitempty"`
}

// enricher resolves display data of panels & schedules.
// References which no longer resolve are left out of the views.
type enricher struct {
	repo PanelRepository
	dir  Directory
}

func skipNotFound(err error) error {
	if core.IsNotFound(err) {
		return nil
	}
	return err
}

func lecturerView(l Lecturer) LecturerView {
	return LecturerView{ID: l.ID, Name: l.FullName(), AcademicID: l.AcademicID, Email: l.Email}
}

func studentView(s Student) StudentView {
	program := s.Program
	if program == "" {
		program = programUnknown
	}
	return StudentView{ID: s.ID, Name: s.FullName(), AcademicID: s.AcademicID, Program: program}
}

func (e *enricher) lecturers(ctx context.Context, ids []string) ([]LecturerView, error) {
	views := make([]LecturerView, 0, len(ids))
	for _, id := range ids {
		l, err := e.dir.GetLecturer(ctx, id)
		if err != nil {
			if err = skipNotFound(err); err != nil {
				return nil, errors.Wrap(err, "getting lecturer")
			}
			continue
		}
		views = append(views, lecturerView(l))
	}
	return views, nil
}

func (e *enricher) panel(ctx context.Context, p Panel) (PanelView, error) {
	lecturers, err := e.lecturers(ctx, p.LecturerIDs)
	if err != nil {
		return PanelView{}, err
	}
	return PanelView{Panel: p, Lecturers: lecturers}, nil
}

func (e *enricher) panels(ctx context.Context, panels []Panel) ([]PanelView, error) {
	views := make([]PanelView, 0, len(panels))
	for _, p := range panels {
		v, err := e.panel(ctx, p)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (e *enricher) student(ctx context.Context, id string) (*StudentView, error) {
	s, err := e.dir.GetStudent(ctx, id)
	if err != nil {
		return nil, errors.Wrap(skipNotFound(err), "getting student")
	}
	v := studentView(s)
	return &v, nil
}

func (e *enricher) group(ctx context.Context, id string) (*GroupView, error) {
	g, err := e.dir.GetGroup(ctx, id)
	if err != nil {
		return nil, errors.Wrap(skipNotFound(err), "getting group")
	}
	members := make([]StudentView, 0, len(g.MemberIDs))
	for _, mid := range g.MemberIDs {
		m, err := e.student(ctx, mid)
		if err != nil {
			return nil, err
		}
		if m != nil {
			members = append(members, *m)
		}
	}
	return &GroupView{
		ID:           g.ID,
		Name:         g.Name,
		ProjectTitle: g.ProjectTitle,
		Members:      members,
		MemberCount:  len(g.MemberIDs),
	}, nil
}

func (e *enricher) schedule(ctx context.Context, s Schedule) (ScheduleView, error) {
	view := ScheduleView{
		Schedule: s,
		Students: make([]StudentView, 0, len(s.StudentIDs)),
		Groups:   make([]GroupView, 0, len(s.GroupIDs)),
		Slots:    make([]SlotView, 0, len(s.TimeSlots)),
	}

	p, err := e.repo.GetPanel(ctx, s.PanelID)
	switch {
	case err == nil:
		lecturers, err := e.lecturers(ctx, p.LecturerIDs)
		if err != nil {
			return ScheduleView{}, err
		}
		view.Panel = &PanelSummary{ID: p.ID, Name: p.Name, Lecturers: lecturers}
	case !core.IsNotFound(err): // deleted panels are fine
		return ScheduleView{}, errors.Wrap(err, "getting panel")
	}

	students := make(map[string]*StudentView, len(s.StudentIDs))
	for _, id := range s.StudentIDs {
		sv, err := e.student(ctx, id)
		if err != nil {
			return ScheduleView{}, err
		}
		if sv != nil {
			students[id] = sv
			view.Students = append(view.Students, *sv)
		}
	}

	groups := make(map[string]*GroupView, len(s.GroupIDs))
	for _, id := range s.GroupIDs {
		gv, err := e.group(ctx, id)
		if err != nil {
			return ScheduleView{}, err
		}
		if gv != nil {
			groups[id] = gv
			view.Groups = append(view.Groups, *gv)
		}
	}

	for _, slot := range s.TimeSlots {
		sv := SlotView{StartTime: slot.Start, EndTime: slot.End}
		switch slot.Entity.Kind {
		case EntityStudent:
			sv.StudentID = slot.Entity.ID
			sv.Student = students[slot.Entity.ID]
		case EntityGroup:
			sv.GroupID = slot.Entity.ID
			sv.Group = groups[slot.Entity.ID]
		}
		view.Slots = append(view.Slots, sv)
	}

	if s.AcademicYearID != "" {
		ay, err := e.dir.GetAcademicYear(ctx, s.AcademicYearID)
		switch {
		case err == nil:
			view.AcademicYear = &AcademicYearView{ID: ay.ID, Title: ay.Title, Year: ay.Year}
		case !core.IsNotFound(err):
			return ScheduleView{}, errors.Wrap(err, "getting academic year")
		}
	}
	return view, nil
}

func (e *enricher) schedules(ctx context.Context, scheds []Schedule) ([]ScheduleView, error) {
	views := make([]ScheduleView, 0, len(scheds))
	for _, s := range scheds {
		v, err := e.schedule(ctx, s)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}
