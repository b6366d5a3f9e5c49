// Package directory reads the lecturer, student, group and academic year records of the platform database
// and writes the activity log.
package directory

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// Open wraps an open postgres connection pool.
func Open(db *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(
		postgres.New(postgres.Config{Conn: db}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		return nil, errors.Wrap(err, "opening gorm")
	}
	return gdb, nil
}

type Directory struct {
	db *gorm.DB
}

var _ defense.Directory = (*Directory)(nil) // interface compliance check

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func trapNotFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewNotFoundError(resource, id)
	}
	return errors.Wrapf(err, "selecting %s", resource)
}

func (dir *Directory) GetLecturer(ctx context.Context, id string) (defense.Lecturer, error) {
	var rec lecturerRecord
	if err := dir.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return defense.Lecturer{}, trapNotFound(err, defense.ResourceLecturer, id)
	}
	return rec.lecturer(), nil
}

// students selects students with their program title and FYP supervisor.
func (dir *Directory) students(ctx context.Context) *gorm.DB {
	return dir.db.WithContext(ctx).
		Table("students AS s").
		Select("s.id, s.surname, s.other_names, s.academic_id, p.title AS program, f.supervisor_id").
		Joins("LEFT JOIN programs AS p ON p.id = s.program_id").
		Joins("LEFT JOIN fyps AS f ON f.student_id = s.id").
		Where("s.deleted IS NOT TRUE")
}

func (dir *Directory) GetStudent(ctx context.Context, id string) (defense.Student, error) {
	var rec studentRecord
	if err := dir.students(ctx).Where("s.id = ?", id).Order("f.created_at DESC").Take(&rec).Error; err != nil {
		return defense.Student{}, trapNotFound(err, defense.ResourceStudent, id)
	}
	return rec.student(), nil
}

func (dir *Directory) StudentsSupervisedBy(ctx context.Context, lecturerIDs []string, checkinID string) ([]defense.Student, error) {
	students := make([]defense.Student, 0)
	if len(lecturerIDs) == 0 {
		return students, nil
	}

	q := dir.students(ctx).Where("f.supervisor_id IN ?", lecturerIDs)
	if checkinID != "" {
		q = q.Where("f.checkin_id = ?", checkinID)
	}
	var recs []studentRecord
	if err := q.Order("s.id").Scan(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "selecting supervised students")
	}

	// a student with several FYP records appears once
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if !seen[rec.ID] {
			seen[rec.ID] = true
			students = append(students, rec.student())
		}
	}
	return students, nil
}

func (dir *Directory) GetGroup(ctx context.Context, id string) (defense.Group, error) {
	var rec groupRecord
	if err := dir.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return defense.Group{}, trapNotFound(err, defense.ResourceGroup, id)
	}
	return rec.group()
}

func (dir *Directory) activeGroups(ctx context.Context) *gorm.DB {
	return dir.db.WithContext(ctx).
		Model(&groupRecord{}).
		Where("status IS NULL OR status <> ?", defense.GroupStatusInactive)
}

func (dir *Directory) ActiveGroupsSupervisedBy(ctx context.Context, lecturerIDs []string) ([]defense.Group, error) {
	groups := make([]defense.Group, 0)
	if len(lecturerIDs) == 0 {
		return groups, nil
	}

	var recs []groupRecord
	if err := dir.activeGroups(ctx).Where("supervisor_id IN ?", lecturerIDs).Order("id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "selecting supervised groups")
	}
	for _, rec := range recs {
		g, err := rec.group()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (dir *Directory) ActiveGroupMemberIDs(ctx context.Context) ([]string, error) {
	var recs []groupRecord
	if err := dir.activeGroups(ctx).Select("id", "members").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "selecting group members")
	}
	return memberUnion(recs)
}

// memberUnion returns the members of recs, deduplicated and in first-seen order.
func memberUnion(recs []groupRecord) ([]string, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, rec := range recs {
		members, err := rec.memberIDs()
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (dir *Directory) GetAcademicYear(ctx context.Context, id string) (defense.AcademicYear, error) {
	var rec academicYearRecord
	if err := dir.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return defense.AcademicYear{}, trapNotFound(err, defense.ResourceAcademicYear, id)
	}
	return rec.academicYear(), nil
}

func (dir *Directory) CheckinForAcademicYear(ctx context.Context, academicYearID string) (string, error) {
	if _, err := dir.GetAcademicYear(ctx, academicYearID); err != nil {
		return "", err
	}

	var ids []string
	err := dir.db.WithContext(ctx).
		Model(&checkinRecord{}).
		Where("academic_year_id = ?", academicYearID).
		Order("created_at").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return "", errors.Wrap(err, "selecting fyp checkin")
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}
