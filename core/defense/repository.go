package defense

import "context"

type (
	// PanelRepository returns a core.NotFoundError whenever a panel does not exist.
	PanelRepository interface {
		CreatePanel(ctx context.Context, panel Panel) (Panel, error)
		GetPanel(ctx context.Context, id string) (Panel, error)
		// ListPanels returns panels newest first, starting after the panel pq.Cursor.
		ListPanels(ctx context.Context, pq PageQuery) ([]Panel, error)
		// PanelsWithLecturers returns every panel having at least one of the given lecturers.
		PanelsWithLecturers(ctx context.Context, lecturerIDs []string) ([]Panel, error)
		UpdatePanel(ctx context.Context, panel Panel) (Panel, error)
		DeletePanel(ctx context.Context, id string) error
	}

	// ScheduleRepository returns a core.NotFoundError whenever a schedule does not exist.
	// Schedules are never deleted.
	ScheduleRepository interface {
		CreateSchedule(ctx context.Context, sched Schedule) (Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		UpdateSchedule(ctx context.Context, sched Schedule) (Schedule, error)
		FilterSchedules(ctx context.Context, q ScheduleQuery) ([]Schedule, error)
	}

	Repository interface {
		PanelRepository
		ScheduleRepository

		// RunInTx runs fn against a Repository bound to a single serializable transaction.
		// The transaction is rolled back if fn returns an error. Not reentrant.
		RunInTx(ctx context.Context, fn func(repo Repository) error) error
	}
)
