package inmemdb

import (
	"context"
	"sort"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

type repository struct {
	db   *DB
	inTx bool
}

var _ defense.Repository = (*repository)(nil) // interface compliance check

func NewRepository(db *DB) defense.Repository {
	return &repository{db: db}
}

// RunInTx holds the DB-wide transaction lock while fn runs. Writes made by fn before it fails are kept.
func (repo *repository) RunInTx(ctx context.Context, fn func(repo defense.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	repo.db.tx.Lock()
	defer repo.db.tx.Unlock()
	return fn(&repository{db: repo.db, inTx: true})
}

func copyPanel(p defense.Panel) defense.Panel {
	p.LecturerIDs = append([]string(nil), p.LecturerIDs...)
	return p
}

func copySchedule(s defense.Schedule) defense.Schedule {
	s.StudentIDs = append([]string{}, s.StudentIDs...)
	s.GroupIDs = append([]string{}, s.GroupIDs...)
	s.MemberIDs = append([]string{}, s.MemberIDs...)
	s.TimeSlots = append([]defense.TimeSlot{}, s.TimeSlots...)
	return s
}

// Panels

func (repo *repository) CreatePanel(_ context.Context, p defense.Panel) (defense.Panel, error) {
	repo.db.panel.Lock()
	defer repo.db.panel.Unlock()

	p = copyPanel(p)
	repo.db.panel.table[p.ID] = &p
	return copyPanel(p), nil
}

func (repo *repository) GetPanel(_ context.Context, id string) (defense.Panel, error) {
	repo.db.panel.RLock()
	defer repo.db.panel.RUnlock()

	if p, ok := repo.db.panel.table[id]; ok {
		return copyPanel(*p), nil
	}
	return defense.Panel{}, core.NewNotFoundError(defense.ResourcePanel, id)
}

func (repo *repository) queryPanels() []defense.Panel {
	panels := make([]defense.Panel, 0, len(repo.db.panel.table))
	for _, p := range repo.db.panel.table {
		panels = append(panels, copyPanel(*p))
	}
	sort.Slice(panels, func(i, j int) bool { return defense.PanelLess(panels[i], panels[j]) })
	return panels
}

func (repo *repository) ListPanels(_ context.Context, pq defense.PageQuery) ([]defense.Panel, error) {
	repo.db.panel.RLock()
	defer repo.db.panel.RUnlock()

	panels := repo.queryPanels()
	if pq.Cursor != "" {
		cursor, ok := repo.db.panel.table[pq.Cursor]
		if !ok {
			return []defense.Panel{}, nil
		}
		start := sort.Search(len(panels), func(i int) bool { return defense.PanelLess(*cursor, panels[i]) })
		panels = panels[start:]
	}
	if pq.Limit > 0 && len(panels) > pq.Limit {
		panels = panels[:pq.Limit]
	}
	return panels, nil
}

func (repo *repository) PanelsWithLecturers(_ context.Context, lecturerIDs []string) ([]defense.Panel, error) {
	repo.db.panel.RLock()
	defer repo.db.panel.RUnlock()

	panels := make([]defense.Panel, 0)
	for _, p := range repo.queryPanels() {
		for _, id := range lecturerIDs {
			if p.HasLecturer(id) {
				panels = append(panels, p)
				break
			}
		}
	}
	return panels, nil
}

func (repo *repository) UpdatePanel(_ context.Context, p defense.Panel) (defense.Panel, error) {
	repo.db.panel.Lock()
	defer repo.db.panel.Unlock()

	orig, ok := repo.db.panel.table[p.ID]
	if !ok {
		return defense.Panel{}, core.NewNotFoundError(defense.ResourcePanel, p.ID)
	}
	orig.Name = p.Name
	orig.Description = p.Description
	orig.LecturerIDs = append([]string(nil), p.LecturerIDs...)
	orig.UpdatedAt = p.UpdatedAt
	return copyPanel(*orig), nil
}

func (repo *repository) DeletePanel(_ context.Context, id string) error {
	repo.db.panel.Lock()
	defer repo.db.panel.Unlock()

	if _, ok := repo.db.panel.table[id]; !ok {
		return core.NewNotFoundError(defense.ResourcePanel, id)
	}
	delete(repo.db.panel.table, id)
	return nil
}

// Schedules

func (repo *repository) CreateSchedule(_ context.Context, s defense.Schedule) (defense.Schedule, error) {
	repo.db.schedule.Lock()
	defer repo.db.schedule.Unlock()

	s = copySchedule(s)
	repo.db.schedule.table[s.ID] = &s
	return copySchedule(s), nil
}

func (repo *repository) GetSchedule(_ context.Context, id string) (defense.Schedule, error) {
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()

	if s, ok := repo.db.schedule.table[id]; ok {
		return copySchedule(*s), nil
	}
	return defense.Schedule{}, core.NewNotFoundError(defense.ResourceSchedule, id)
}

func (repo *repository) UpdateSchedule(_ context.Context, s defense.Schedule) (defense.Schedule, error) {
	repo.db.schedule.Lock()
	defer repo.db.schedule.Unlock()

	orig, ok := repo.db.schedule.table[s.ID]
	if !ok {
		return defense.Schedule{}, core.NewNotFoundError(defense.ResourceSchedule, s.ID)
	}
	s = copySchedule(s)
	s.CreatedBy = orig.CreatedBy
	s.CreatedAt = orig.CreatedAt
	repo.db.schedule.table[s.ID] = &s
	return copySchedule(s), nil
}

func (repo *repository) FilterSchedules(_ context.Context, q defense.ScheduleQuery) ([]defense.Schedule, error) {
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()

	scheds := make([]defense.Schedule, 0)
	for _, s := range repo.db.schedule.table {
		if q.Matches(*s) {
			scheds = append(scheds, copySchedule(*s))
		}
	}
	sort.Slice(scheds, func(i, j int) bool { return defense.ScheduleLess(scheds[i], scheds[j]) })

	if q.Cursor != "" {
		cursor, ok := repo.db.schedule.table[q.Cursor]
		if !ok {
			return []defense.Schedule{}, nil
		}
		start := sort.Search(len(scheds), func(i int) bool { return defense.ScheduleLess(*cursor, scheds[i]) })
		scheds = scheds[start:]
	}
	if q.Limit > 0 && len(scheds) > q.Limit {
		scheds = scheds[:q.Limit]
	}
	return scheds, nil
}
