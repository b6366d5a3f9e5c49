package defense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

const (
	defaultPanelPageSize = 100
	maxPanelPageSize     = 100
)

type PanelPage struct {
	Items      []PanelView `json:"items"`
	NextCursor *string     `json:"next_cursor"`
}

// PanelRegistry owns the defense panels.
type PanelRegistry struct {
	repo     Repository
	dir      Directory
	activity ActivityLog
	logger   core.Logger
	enrich   *enricher
	now      func() time.Time
}

func NewPanelRegistry(repo Repository, dir Directory, activity ActivityLog, logger core.Logger) *PanelRegistry {
	return &PanelRegistry{
		repo:     repo,
		dir:      dir,
		activity: activity,
		logger:   logger,
		enrich:   &enricher{repo: repo, dir: dir},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// checkLecturers requires a non-empty set of existing lecturers.
func (reg *PanelRegistry) checkLecturers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return newValidationError(ErrNoLecturers, "lecturer_ids")
	}
	for _, id := range ids {
		if _, err := reg.dir.GetLecturer(ctx, id); err != nil {
			return errors.Wrap(err, "getting lecturer")
		}
	}
	return nil
}

func (reg *PanelRegistry) Create(ctx context.Context, np NewPanel, actor Actor) (PanelView, error) {
	ids := core.CleanIDs(np.LecturerIDs)
	if err := reg.checkLecturers(ctx, ids); err != nil {
		return PanelView{}, err
	}

	now := reg.now()
	p, err := reg.repo.CreatePanel(ctx, Panel{
		ID:          uuid.New().String(),
		Name:        core.CleanString(np.Name),
		Description: core.CleanString(np.Description),
		LecturerIDs: ids,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return PanelView{}, errors.Wrap(err, "creating panel")
	}

	reg.audit(ctx, actor, ActionPanelCreated, fmt.Sprintf("Created defense panel %q", p.Name), map[string]interface{}{
		"panel_id":       p.ID,
		"lecturer_count": len(p.LecturerIDs),
	})
	return reg.enrich.panel(ctx, p)
}

func (reg *PanelRegistry) Get(ctx context.Context, id string) (PanelView, error) {
	p, err := reg.repo.GetPanel(ctx, id)
	if err != nil {
		return PanelView{}, errors.Wrap(err, "getting panel")
	}
	return reg.enrich.panel(ctx, p)
}

func (reg *PanelRegistry) List(ctx context.Context, pq PageQuery) (PanelPage, error) {
	pq = pq.withLimit(defaultPanelPageSize, maxPanelPageSize)
	panels, err := reg.repo.ListPanels(ctx, pq)
	if err != nil {
		return PanelPage{}, errors.Wrap(err, "listing panels")
	}
	items, err := reg.enrich.panels(ctx, panels)
	if err != nil {
		return PanelPage{}, err
	}

	page := PanelPage{Items: items}
	if len(panels) == pq.Limit {
		last := panels[len(panels)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Update applies a partial update. The lecturer set of a panel with active schedules is frozen:
// changing it could double-book a lecturer or drop a supervisor from a booked panel.
func (reg *PanelRegistry) Update(ctx context.Context, id string, up UpdatePanel, actor Actor) (PanelView, error) {
	var ids []string
	if up.LecturerIDs != nil {
		ids = core.CleanIDs(*up.LecturerIDs)
		if err := reg.checkLecturers(ctx, ids); err != nil {
			return PanelView{}, err
		}
	}
	var name string
	if up.Name != nil {
		if name = core.CleanString(*up.Name); name == "" {
			return PanelView{}, core.NewValidationError(errors.New("name cannot be blank"), core.FieldError{Field: "name", Error: "this field is required"})
		}
	}

	var p Panel
	updated := make([]string, 0, 3)
	err := reg.repo.RunInTx(ctx, func(repo Repository) error {
		var err error
		if p, err = repo.GetPanel(ctx, id); err != nil {
			return errors.Wrap(err, "getting panel")
		}

		if up.Name != nil {
			p.Name = name
			updated = append(updated, "name")
		}
		if up.Description != nil {
			p.Description = core.CleanString(*up.Description)
			updated = append(updated, "description")
		}
		if up.LecturerIDs != nil {
			if !sameIDs(p.LecturerIDs, ids) {
				active, err := repo.FilterSchedules(ctx, ScheduleQuery{
					PanelIDs: []string{p.ID},
					Statuses: ActiveStatuses,
					Limit:    1,
				})
				if err != nil {
					return errors.Wrap(err, "filtering schedules")
				}
				if len(active) > 0 {
					return core.NewStateError(ErrPanelBooked)
				}
			}
			p.LecturerIDs = ids
			updated = append(updated, "lecturer_ids")
		}
		if len(updated) == 0 {
			return nil
		}

		p.UpdatedAt = reg.now()
		p, err = repo.UpdatePanel(ctx, p)
		return errors.Wrap(err, "updating panel")
	})
	if err != nil {
		return PanelView{}, err
	}
	if len(updated) == 0 {
		return reg.enrich.panel(ctx, p)
	}

	reg.audit(ctx, actor, ActionPanelUpdated, fmt.Sprintf("Updated defense panel %q", p.Name), map[string]interface{}{
		"panel_id":       p.ID,
		"updated_fields": updated,
	})
	return reg.enrich.panel(ctx, p)
}

// sameIDs reports whether a and b hold the same ids, ignoring order.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Delete hard-deletes a panel which no active schedule references.
func (reg *PanelRegistry) Delete(ctx context.Context, id string, actor Actor) error {
	err := reg.repo.RunInTx(ctx, func(repo Repository) error {
		p, err := repo.GetPanel(ctx, id)
		if err != nil {
			return errors.Wrap(err, "getting panel")
		}
		active, err := repo.FilterSchedules(ctx, ScheduleQuery{
			PanelIDs: []string{p.ID},
			Statuses: ActiveStatuses,
			Limit:    1,
		})
		if err != nil {
			return errors.Wrap(err, "filtering schedules")
		}
		if len(active) > 0 {
			return core.NewStateError(ErrPanelInUse)
		}
		return errors.Wrap(repo.DeletePanel(ctx, p.ID), "deleting panel")
	})
	if err != nil {
		return err
	}

	reg.audit(ctx, actor, ActionPanelDeleted, "Deleted defense panel", map[string]interface{}{"panel_id": id})
	return nil
}

func (reg *PanelRegistry) audit(ctx context.Context, actor Actor, action, desc string, details map[string]interface{}) {
	recordActivity(ctx, reg.activity, reg.logger, reg.now(), actor, action, desc, details)
}

// recordActivity appends to the audit trail. The audited write is already committed: failures are only logged.
func recordActivity(
	ctx context.Context,
	activity ActivityLog,
	logger core.Logger,
	now time.Time,
	actor Actor,
	action, desc string,
	details map[string]interface{},
) {
	if activity == nil {
		return
	}
	if details == nil {
		details = make(map[string]interface{})
	}
	details["message"] = desc
	details["status"] = "success"

	err := activity.Record(ctx, Activity{
		Action:      action,
		Type:        ActivityTypeCoordinator,
		Description: desc,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Timestamp:   now,
		Details:     details,
	})
	if err != nil && logger != nil {
		logger.Error("recording activity failed", errors.Wrapf(err, "recording %s", action), actor)
	}
}
