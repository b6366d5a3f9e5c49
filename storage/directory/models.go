package directory

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// The records below are owned by the rest of the platform; they are only read here (activity logs aside).

type lecturerRecord struct {
	ID         string `gorm:"primaryKey"`
	Title      string
	Surname    string
	OtherNames string
	AcademicID string
	Email      string
}

func (lecturerRecord) TableName() string { return "lecturers" }

func (rec lecturerRecord) lecturer() defense.Lecturer {
	return defense.Lecturer{
		ID:         rec.ID,
		Title:      rec.Title,
		Surname:    rec.Surname,
		OtherNames: rec.OtherNames,
		AcademicID: rec.AcademicID,
		Email:      rec.Email,
	}
}

// studentRecord is a student joined with its program title and FYP supervisor.
type studentRecord struct {
	ID           string
	Surname      string
	OtherNames   string
	AcademicID   string
	Program      *string
	SupervisorID *string
}

func (rec studentRecord) student() defense.Student {
	st := defense.Student{
		ID:         rec.ID,
		Surname:    rec.Surname,
		OtherNames: rec.OtherNames,
		AcademicID: rec.AcademicID,
	}
	if rec.Program != nil {
		st.Program = *rec.Program
	}
	if rec.SupervisorID != nil {
		st.SupervisorID = *rec.SupervisorID
	}
	return st
}

type groupRecord struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	ProjectTitle *string
	SupervisorID *string
	Status       *string
	Members      datatypes.JSON // JSON array of student IDs
}

func (groupRecord) TableName() string { return "groups" }

func (rec groupRecord) memberIDs() ([]string, error) {
	ids := make([]string, 0)
	if len(rec.Members) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(rec.Members, &ids); err != nil {
		return nil, errors.Wrapf(err, "decoding members of group %s", rec.ID)
	}
	return ids, nil
}

func (rec groupRecord) group() (defense.Group, error) {
	members, err := rec.memberIDs()
	if err != nil {
		return defense.Group{}, err
	}
	g := defense.Group{ID: rec.ID, Name: rec.Name, MemberIDs: members}
	if rec.ProjectTitle != nil {
		g.ProjectTitle = *rec.ProjectTitle
	}
	if rec.SupervisorID != nil {
		g.SupervisorID = *rec.SupervisorID
	}
	if rec.Status != nil {
		g.Status = *rec.Status
	}
	return g, nil
}

type academicYearRecord struct {
	ID    string `gorm:"primaryKey"`
	Title string
	Year  *string
}

func (academicYearRecord) TableName() string { return "academic_years" }

func (rec academicYearRecord) academicYear() defense.AcademicYear {
	ay := defense.AcademicYear{ID: rec.ID, Title: rec.Title}
	if rec.Year != nil {
		ay.Year = *rec.Year
	}
	return ay
}

type checkinRecord struct {
	ID             string `gorm:"primaryKey"`
	AcademicYearID string
	CreatedAt      time.Time
}

func (checkinRecord) TableName() string { return "fyp_checkins" }

type activityRecord struct {
	ID          string `gorm:"primaryKey"`
	Action      string
	Type        string
	Description string
	ActorID     string
	ActorName   string
	Details     datatypes.JSON
	CreatedAt   time.Time
}

func (activityRecord) TableName() string { return "activity_logs" }
