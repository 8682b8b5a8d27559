package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/ekipa/apps/api/echo"
	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
	emailsvc "github.com/trezcool/ekipa/services/email"
	logsvc "github.com/trezcool/ekipa/services/logger"
	inmemdb "github.com/trezcool/ekipa/storage/database/inmem"
)

var (
	usrRepo   user.Repository
	teamRepo  team.Repository
	eventRepo event.Repository
	rideRepo  ride.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) Server {
	t.Helper()

	core.Conf.Debug = false
	core.Conf.TestMode = true

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed, %v", err)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	teamRepo = inmemdb.NewTeamRepository(db)
	eventRepo = inmemdb.NewEventRepository(db)
	rideRepo = inmemdb.NewRideRepository(db)

	// set up services
	emailsvc.SentMessages = nil
	mailSvc := emailsvc.NewConsoleServiceMock()
	logger := logsvc.NewStdLogger(log.New(io.Discard, "", 0))
	usrSvc := user.NewServiceMock(usrRepo, mailSvc)
	teamSvc := team.NewService(teamRepo, usrRepo)
	eventSvc := event.NewService(eventRepo, teamRepo, usrRepo, rideRepo, mailSvc, logger)
	rideSvc := ride.NewService(rideRepo, eventRepo, teamRepo, usrRepo)

	// set up server
	return NewServer(
		&Options{
			DisableReqLogs: true,
			Logger:         logger,
			UserSvc:        usrSvc,
			TeamSvc:        teamSvc,
			EventSvc:       eventSvc,
			RideSvc:        rideSvc,
		},
	)
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
	extra    interface{}
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
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

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// fixtures

func createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	usr := user.User{Name: name, Username: uname, Email: email, IsActive: isActive, Roles: roles}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("SetPassword() failed, %v", err)
		}
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

func createTeam(t *testing.T, name string, coachIDs ...string) team.Team {
	t.Helper()
	ctx := context.Background()

	tm, err := teamRepo.CreateTeam(ctx, team.Team{Name: name, Season: "2026-2027"})
	if err != nil {
		t.Fatalf("CreateTeam() failed, %v", err)
	}
	for _, id := range coachIDs {
		if err = teamRepo.AddCoach(ctx, tm.ID, id); err != nil {
			t.Fatalf("AddCoach() failed, %v", err)
		}
	}
	return tm
}

func createPlayer(t *testing.T, teamID, guardianID, first, last string) team.Player {
	t.Helper()

	p, err := teamRepo.CreatePlayer(context.Background(), team.Player{
		TeamID:     teamID,
		GuardianID: guardianID,
		FirstName:  first,
		LastName:   last,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("CreatePlayer() failed, %v", err)
	}
	return p
}

func setAttendance(t *testing.T, eventID, personID string, status event.Status) {
	t.Helper()

	err := eventRepo.UpsertAttendance(context.Background(), event.Attendance{
		EventID:    eventID,
		PersonID:   personID,
		Status:     status,
		IsConvoked: true,
	})
	if err != nil {
		t.Fatalf("UpsertAttendance() failed, %v", err)
	}
}
