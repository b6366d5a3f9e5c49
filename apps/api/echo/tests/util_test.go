package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	. "github.com/Joeboy77/dms-backend-sub000/apps/api/echo"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	"github.com/Joeboy77/dms-backend-sub000/tests"
)

var (
	defenseDay = defense.NewDate(2030, time.June, 10)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// app is a server over the in-memory store, with lecturers L1 & L2 and students S1..S3 (supervised by L1).
type app struct {
	*testutil.Env
	server     *Server
	coordToken string
	userToken  string
}

func setup(t *testing.T) *app {
	env := testutil.NewEnv(t)
	env.AddLecturer("L1", "Dr.", "Mensah", "Kofi")
	env.AddLecturer("L2", "Prof.", "Owusu", "Ama")
	env.AddStudent("S1", "Asante", "L1", "")
	env.AddStudent("S2", "Boateng", "L1", "")
	env.AddStudent("S3", "Darko", "L1", "")

	conf := testutil.NewConfig()
	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     env.Logger,
		Panels:     env.Panels,
		Scheduler:  env.Scheduler,
		Calendar:   env.Calendar,
		Candidates: env.Candidates,
		Validate:   env.Validate,
		Translator: env.Translator,
	})

	coord := testutil.Coordinator
	return &app{
		Env:        env,
		server:     server,
		coordToken: getToken(t, NewClaims(conf, coord.ID, coord.Name, "coord@univ.test", RoleCoordinator)),
		userToken:  getToken(t, NewClaims(conf, "student-1", "Student", "s1@univ.test", "student")),
	}
}

func (a *app) do(req *http.Request, rec *httptest.ResponseRecorder) {
	a.server.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, claims *Claims) string {
	token, err := GenerateToken(testutil.NewConfig(), claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchall(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, a *app, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			a.do(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
