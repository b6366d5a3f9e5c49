package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

const (
	panelTable    = "defense_panels"
	scheduleTable = "defense_schedules"

	panelColumns    = "id, name, description, lecturer_ids, created_by, created_at, updated_at"
	scheduleColumns = "id, panel_id, student_ids, group_ids, member_ids, academic_year_id, defense_date, time_slots, " +
		"meeting_link, notes, status, created_by, updated_by, created_at, updated_at"

	// postgres error codes
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

type repository struct {
	db   *sqlx.DB
	exec sqlx.ExtContext // db, or the running transaction
}

var _ defense.Repository = (*repository)(nil) // interface compliance check

func NewRepository(db *sqlx.DB) defense.Repository {
	return &repository{db: db, exec: db}
}

// RunInTx runs fn within a SERIALIZABLE transaction. Serialization failures are retryable (core.ErrUnavailable).
func (repo *repository) RunInTx(ctx context.Context, fn func(repo defense.Repository) error) error {
	if _, ok := repo.exec.(*sqlx.Tx); ok {
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&repository{db: repo.db, exec: tx}); err != nil {
		_ = tx.Rollback()
		return trapTxErr(err)
	}
	return trapTxErr(errors.Wrap(tx.Commit(), "committing transaction"))
}

func trapTxErr(err error) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		if pqErr.Code == serializationFailure || pqErr.Code == deadlockDetected {
			return errors.Wrap(core.ErrUnavailable, "concurrent write: "+pqErr.Message)
		}
	}
	return err
}

// trapNoRowsErr maps "no rows" to a core.NotFoundError.
func trapNoRowsErr(err error, resource, id, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return core.NewNotFoundError(resource, id)
	}
	return errors.Wrap(err, msg)
}

// Panels

type panelRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description null.String    `db:"description"`
	LecturerIDs pq.StringArray `db:"lecturer_ids"`
	CreatedBy   string         `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func toPanelRow(p defense.Panel) panelRow {
	return panelRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: null.NewString(p.Description, p.Description != ""),
		LecturerIDs: pq.StringArray(nonNil(p.LecturerIDs)),
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (row panelRow) panel() defense.Panel {
	return defense.Panel{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description.String,
		LecturerIDs: nonNil(row.LecturerIDs),
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func panels(rows []panelRow) []defense.Panel {
	out := make([]defense.Panel, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.panel())
	}
	return out
}

func (repo *repository) CreatePanel(ctx context.Context, p defense.Panel) (defense.Panel, error) {
	q := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (:id, :name, :description, :lecturer_ids, :created_by, :created_at, :updated_at)
		RETURNING %s`, panelTable, panelColumns, panelColumns)

	var row panelRow
	if err := repo.namedGet(ctx, &row, q, toPanelRow(p)); err != nil {
		return defense.Panel{}, errors.Wrap(err, "inserting panel")
	}
	return row.panel(), nil
}

func (repo *repository) GetPanel(ctx context.Context, id string) (defense.Panel, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", panelColumns, panelTable)

	var row panelRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return defense.Panel{}, trapNoRowsErr(err, defense.ResourcePanel, id, "selecting panel")
	}
	return row.panel(), nil
}

func (repo *repository) ListPanels(ctx context.Context, page defense.PageQuery) ([]defense.Panel, error) {
	var (
		where string
		args  []interface{}
	)
	if page.Cursor != "" {
		args = append(args, page.Cursor)
		where = fmt.Sprintf("WHERE (created_at, id) < (SELECT created_at, id FROM %s WHERE id = $1)", panelTable)
	}
	q := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY created_at DESC, id DESC%s", panelColumns, panelTable, where, limitClause(page.Limit))

	rows := make([]panelRow, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting panels")
	}
	return panels(rows), nil
}

func (repo *repository) PanelsWithLecturers(ctx context.Context, lecturerIDs []string) ([]defense.Panel, error) {
	if len(lecturerIDs) == 0 {
		return []defense.Panel{}, nil
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE lecturer_ids && $1 ORDER BY created_at DESC, id DESC", panelColumns, panelTable)

	rows := make([]panelRow, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, pq.Array(lecturerIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting panels by lecturers")
	}
	return panels(rows), nil
}

func (repo *repository) UpdatePanel(ctx context.Context, p defense.Panel) (defense.Panel, error) {
	q := fmt.Sprintf(`UPDATE %s
		SET name = :name, description = :description, lecturer_ids = :lecturer_ids, updated_at = :updated_at
		WHERE id = :id
		RETURNING %s`, panelTable, panelColumns)

	var row panelRow
	if err := repo.namedGet(ctx, &row, q, toPanelRow(p)); err != nil {
		return defense.Panel{}, trapNoRowsErr(err, defense.ResourcePanel, p.ID, "updating panel")
	}
	return row.panel(), nil
}

func (repo *repository) DeletePanel(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", panelTable), id)
	if err != nil {
		return errors.Wrap(err, "deleting panel")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting panel")
	}
	if n == 0 {
		return core.NewNotFoundError(defense.ResourcePanel, id)
	}
	return nil
}

// Schedules

// slotsColumn stores time slots as a JSONB array.
type slotsColumn []defense.TimeSlot

func (sc slotsColumn) Value() (driver.Value, error) {
	if sc == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]defense.TimeSlot(sc))
}

func (sc *slotsColumn) Scan(v interface{}) error {
	var b []byte
	switch x := v.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	case nil:
		*sc = slotsColumn{}
		return nil
	default:
		return fmt.Errorf("time slots: unsupported Scan type %T", v)
	}
	slots := make([]defense.TimeSlot, 0)
	if err := json.Unmarshal(b, &slots); err != nil {
		return errors.Wrap(err, "decoding time slots")
	}
	*sc = slots
	return nil
}

type scheduleRow struct {
	ID             string         `db:"id"`
	PanelID        string         `db:"panel_id"`
	StudentIDs     pq.StringArray `db:"student_ids"`
	GroupIDs       pq.StringArray `db:"group_ids"`
	MemberIDs      pq.StringArray `db:"member_ids"`
	AcademicYearID null.String    `db:"academic_year_id"`
	DefenseDate    defense.Date   `db:"defense_date"`
	TimeSlots      slotsColumn    `db:"time_slots"`
	MeetingLink    string         `db:"meeting_link"`
	Notes          null.String    `db:"notes"`
	Status         string         `db:"status"`
	CreatedBy      string         `db:"created_by"`
	UpdatedBy      string         `db:"updated_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func toScheduleRow(s defense.Schedule) scheduleRow {
	return scheduleRow{
		ID:             s.ID,
		PanelID:        s.PanelID,
		StudentIDs:     pq.StringArray(nonNil(s.StudentIDs)),
		GroupIDs:       pq.StringArray(nonNil(s.GroupIDs)),
		MemberIDs:      pq.StringArray(nonNil(s.MemberIDs)),
		AcademicYearID: null.NewString(s.AcademicYearID, s.AcademicYearID != ""),
		DefenseDate:    s.DefenseDate,
		TimeSlots:      slotsColumn(s.TimeSlots),
		MeetingLink:    s.MeetingLink,
		Notes:          null.NewString(s.Notes, s.Notes != ""),
		Status:         string(s.Status),
		CreatedBy:      s.CreatedBy,
		UpdatedBy:      s.UpdatedBy,
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
	}
}

func (row scheduleRow) schedule() defense.Schedule {
	slots := []defense.TimeSlot(row.TimeSlots)
	if slots == nil {
		slots = []defense.TimeSlot{}
	}
	return defense.Schedule{
		ID:             row.ID,
		PanelID:        row.PanelID,
		StudentIDs:     nonNil(row.StudentIDs),
		GroupIDs:       nonNil(row.GroupIDs),
		MemberIDs:      nonNil(row.MemberIDs),
		AcademicYearID: row.AcademicYearID.String,
		DefenseDate:    row.DefenseDate,
		TimeSlots:      slots,
		MeetingLink:    row.MeetingLink,
		Notes:          row.Notes.String,
		Status:         defense.Status(row.Status),
		CreatedBy:      row.CreatedBy,
		UpdatedBy:      row.UpdatedBy,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo *repository) CreateSchedule(ctx context.Context, s defense.Schedule) (defense.Schedule, error) {
	q := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (:id, :panel_id, :student_ids, :group_ids, :member_ids, :academic_year_id, :defense_date, :time_slots,
			:meeting_link, :notes, :status, :created_by, :updated_by, :created_at, :updated_at)
		RETURNING %s`, scheduleTable, scheduleColumns, scheduleColumns)

	var row scheduleRow
	if err := repo.namedGet(ctx, &row, q, toScheduleRow(s)); err != nil {
		return defense.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return row.schedule(), nil
}

func (repo *repository) GetSchedule(ctx context.Context, id string) (defense.Schedule, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", scheduleColumns, scheduleTable)

	var row scheduleRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return defense.Schedule{}, trapNoRowsErr(err, defense.ResourceSchedule, id, "selecting schedule")
	}
	return row.schedule(), nil
}

func (repo *repository) UpdateSchedule(ctx context.Context, s defense.Schedule) (defense.Schedule, error) {
	q := fmt.Sprintf(`UPDATE %s
		SET panel_id = :panel_id, student_ids = :student_ids, group_ids = :group_ids, member_ids = :member_ids,
			academic_year_id = :academic_year_id, defense_date = :defense_date, time_slots = :time_slots,
			meeting_link = :meeting_link, notes = :notes, status = :status, updated_by = :updated_by, updated_at = :updated_at
		WHERE id = :id
		RETURNING %s`, scheduleTable, scheduleColumns)

	var row scheduleRow
	if err := repo.namedGet(ctx, &row, q, toScheduleRow(s)); err != nil {
		return defense.Schedule{}, trapNoRowsErr(err, defense.ResourceSchedule, s.ID, "updating schedule")
	}
	return row.schedule(), nil
}

// scheduleFilter builds the WHERE clause of q (Limit excluded).
func scheduleFilter(q defense.ScheduleQuery) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(q.PanelIDs) > 0 {
		add("panel_id = ANY($%d)", pq.Array(q.PanelIDs))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, st := range q.Statuses {
			statuses = append(statuses, string(st))
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if !q.DateFrom.IsZero() {
		add("defense_date >= $%d", q.DateFrom)
	}
	if !q.DateTo.IsZero() {
		add("defense_date <= $%d", q.DateTo)
	}
	if q.AcademicYearID != "" {
		add("academic_year_id = $%d", q.AcademicYearID)
	}
	if q.ExcludeID != "" {
		add("id <> $%d", q.ExcludeID)
	}
	if q.Cursor != "" {
		add("(defense_date, created_at, id) > (SELECT defense_date, created_at, id FROM "+scheduleTable+" WHERE id = $%d)", q.Cursor)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (repo *repository) FilterSchedules(ctx context.Context, q defense.ScheduleQuery) ([]defense.Schedule, error) {
	where, args := scheduleFilter(q)
	query := fmt.Sprintf(
		"SELECT %s FROM %s %s ORDER BY defense_date, created_at, id%s",
		scheduleColumns, scheduleTable, where, limitClause(q.Limit),
	)

	rows := make([]scheduleRow, 0)
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting schedules")
	}
	scheds := make([]defense.Schedule, 0, len(rows))
	for _, row := range rows {
		scheds = append(scheds, row.schedule())
	}
	return scheds, nil
}

// namedGet binds arg to a named query and scans the single returned row into dest.
func (repo *repository) namedGet(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return errors.Wrap(err, "binding query")
	}
	return sqlx.GetContext(ctx, repo.exec, dest, repo.exec.Rebind(q), args...)
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
