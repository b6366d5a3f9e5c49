package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	locksvc "github.com/Joeboy77/dms-backend-sub000/services/lock"
	inmemdb "github.com/Joeboy77/dms-backend-sub000/storage/database/inmem"
)

var (
	// Coordinator is the actor of the test requests.
	Coordinator = defense.Actor{ID: "coord-1", Name: "Dr. Coordinator"}

	// Today is the fixed "now" of the test schedulers.
	Today = defense.NewDate(2030, time.March, 10)
)

// Now returns noon of Today.
func Now() time.Time {
	return Today.Add(12 * time.Hour)
}

// NewConfig returns the configuration of the test servers.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "DMS",
		Env:       "TEST",
		TestMode:  true,
		Build:     "test",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			Address:            ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
	}
}

// Logger keeps the logged messages.
type Logger struct {
	mu      sync.Mutex
	entries []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

func (l *Logger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func NewValidator(t *testing.T) (*validator.Validate, ut.Translator) {
	t.Helper()
	enLocale := en.New()
	translator, ok := ut.New(enLocale, enLocale).GetTranslator("en")
	if !ok {
		t.Fatal("GetTranslator(en): not found")
	}
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

// Env wires the defense services over the in-memory store.
type Env struct {
	DB         *inmemdb.DB
	Repo       defense.Repository
	Dir        *inmemdb.Directory
	Activity   *inmemdb.ActivityLog
	Logger     *Logger
	Locker     *locksvc.Memory
	Validate   *validator.Validate
	Translator ut.Translator
	Panels     *defense.PanelRegistry
	Scheduler  *defense.Scheduler
	Calendar   *defense.Calendar
	Candidates *defense.CandidateResolver
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	validate, translator := NewValidator(t)

	env := &Env{
		DB:         inmemdb.Open(),
		Dir:        inmemdb.NewDirectory(),
		Activity:   inmemdb.NewActivityLog(),
		Logger:     new(Logger),
		Locker:     locksvc.NewMemory(),
		Validate:   validate,
		Translator: translator,
	}
	env.Repo = inmemdb.NewRepository(env.DB)
	env.Panels = defense.NewPanelRegistry(env.Repo, env.Dir, env.Activity, env.Logger)
	env.Scheduler = defense.NewScheduler(defense.SchedulerOptions{
		Repo:      env.Repo,
		Directory: env.Dir,
		Activity:  env.Activity,
		Locker:    env.Locker,
		Logger:    env.Logger,
		Now:       Now,
	})
	env.Calendar = defense.NewCalendar(env.Repo, env.Dir)
	env.Candidates = defense.NewCandidateResolver(env.Repo, env.Dir)
	return env
}

func (env *Env) AddLecturer(id, title, surname, otherNames string) defense.Lecturer {
	l := defense.Lecturer{
		ID:         id,
		Title:      title,
		Surname:    surname,
		OtherNames: otherNames,
		AcademicID: "STAFF-" + id,
		Email:      id + "@univ.test",
	}
	env.Dir.AddLecturer(l)
	return l
}

func (env *Env) AddStudent(id, surname, supervisorID, checkinID string) defense.Student {
	st := defense.Student{
		ID:           id,
		Surname:      surname,
		OtherNames:   "Test",
		AcademicID:   "ACA-" + id,
		Program:      "Computer Science",
		SupervisorID: supervisorID,
	}
	env.Dir.AddStudent(st, checkinID)
	return st
}

func (env *Env) AddGroup(id, name, supervisorID string, memberIDs ...string) defense.Group {
	g := defense.Group{
		ID:           id,
		Name:         name,
		ProjectTitle: name + " project",
		SupervisorID: supervisorID,
		Status:       "active",
		MemberIDs:    memberIDs,
	}
	env.Dir.AddGroup(g)
	return g
}

func (env *Env) CreatePanel(t *testing.T, name string, lecturerIDs ...string) defense.PanelView {
	t.Helper()
	p, err := env.Panels.Create(context.Background(), defense.NewPanel{Name: name, LecturerIDs: lecturerIDs}, Coordinator)
	if err != nil {
		t.Fatalf("CreatePanel(): %v", err)
	}
	return p
}

// CreateSchedule books a schedule or fails the test.
func (env *Env) CreateSchedule(
	t *testing.T,
	panelID string,
	date defense.Date,
	studentIDs, groupIDs []string,
	slots ...defense.TimeSlot,
) defense.ScheduleView {
	t.Helper()
	sv, err := env.Scheduler.Create(context.Background(), defense.NewSchedule{
		PanelID:     panelID,
		StudentIDs:  studentIDs,
		GroupIDs:    groupIDs,
		DefenseDate: date,
		TimeSlots:   slots,
	}, Coordinator)
	if err != nil {
		t.Fatalf("CreateSchedule(): %v", err)
	}
	return sv
}
