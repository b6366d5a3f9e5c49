package defense

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

const (
	defaultSchedulePageSize = 50
	maxSchedulePageSize     = 100
)

type SchedulePage struct {
	Items      []ScheduleView `json:"items"`
	NextCursor *string        `json:"next_cursor"`
}

// Marker is a calendar entry: one per time slot.
type Marker struct {
	Time   string `json:"time"` // "start-end"; empty for schedules without slots
	Status Status `json:"status"`
}

// Calendar serves the read-side views over schedules.
type Calendar struct {
	repo   Repository
	enrich *enricher
}

func NewCalendar(repo Repository, dir Directory) *Calendar {
	return &Calendar{
		repo:   repo,
		enrich: &enricher{repo: repo, dir: dir},
	}
}

func (cal *Calendar) Get(ctx context.Context, id string) (ScheduleView, error) {
	sched, err := cal.repo.GetSchedule(ctx, id)
	if err != nil {
		return ScheduleView{}, errors.Wrap(err, "getting schedule")
	}
	return cal.enrich.schedule(ctx, sched)
}

// ByDate returns the schedules (any status) of a day, earliest slot first.
func (cal *Calendar) ByDate(ctx context.Context, date Date, academicYearID string) ([]ScheduleView, error) {
	scheds, err := cal.repo.FilterSchedules(ctx, ScheduleQuery{
		DateFrom:       date,
		DateTo:         date,
		AcademicYearID: academicYearID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "filtering schedules")
	}
	sort.SliceStable(scheds, func(i, j int) bool {
		return scheds[i].FirstStart() < scheds[j].FirstStart()
	})
	return cal.enrich.schedules(ctx, scheds)
}

// List returns a page of schedules ordered by defense date.
func (cal *Calendar) List(ctx context.Context, filter ScheduleFilter) (SchedulePage, error) {
	pq := filter.PageQuery.withLimit(defaultSchedulePageSize, maxSchedulePageSize)
	q := ScheduleQuery{
		AcademicYearID: filter.AcademicYearID,
		Cursor:         pq.Cursor,
		Limit:          pq.Limit,
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return SchedulePage{}, newValidationError(ErrInvalidStatus, "status")
		}
		q.Statuses = []Status{filter.Status}
	}
	if filter.PanelID != "" {
		q.PanelIDs = []string{filter.PanelID}
	}

	scheds, err := cal.repo.FilterSchedules(ctx, q)
	if err != nil {
		return SchedulePage{}, errors.Wrap(err, "filtering schedules")
	}
	items, err := cal.enrich.schedules(ctx, scheds)
	if err != nil {
		return SchedulePage{}, err
	}

	page := SchedulePage{Items: items}
	if len(scheds) == pq.Limit {
		last := scheds[len(scheds)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Markers returns, per ISO date of [from, to], one marker per time slot of every non-cancelled schedule.
func (cal *Calendar) Markers(ctx context.Context, from, to Date, academicYearID string) (map[string][]Marker, error) {
	if to.Before(from) {
		return nil, core.NewValidationError(ErrInvalidRange, core.FieldError{Field: "end_date", Error: ErrInvalidRange.Error()})
	}
	scheds, err := cal.repo.FilterSchedules(ctx, ScheduleQuery{
		Statuses:       []Status{StatusScheduled, StatusInProgress, StatusCompleted},
		DateFrom:       from,
		DateTo:         to,
		AcademicYearID: academicYearID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "filtering schedules")
	}

	markers := make(map[string][]Marker)
	for _, s := range scheds {
		day := s.DefenseDate.String()
		if len(s.TimeSlots) == 0 {
			markers[day] = append(markers[day], Marker{Time: "", Status: s.Status})
			continue
		}
		for _, slot := range s.TimeSlots {
			markers[day] = append(markers[day], Marker{Time: slot.Range(), Status: s.Status})
		}
	}
	return markers, nil
}
