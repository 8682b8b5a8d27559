package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/user"
)

func Test_eventApi_create(t *testing.T) {
	app := setup(t)

	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	tm := createTeam(t, "U13 A", coach.ID)
	p1 := createPlayer(t, tm.ID, guardian.ID, "Alice", "One")

	starts := time.Now().UTC().AddDate(0, 0, 2).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(
		`{"team_id": %q, "type": "TRAINING", "starts_at": %q, "location": "Main Hall", "convoked_ids": [%q]}`,
		tm.ID, starts, p1.ID,
	))

	tests := []httpTest{
		{name: "auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "staff required", body: body, token: getToken(t, guardian), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "type is checked", token: getToken(t, coach), wantCode: http.StatusBadRequest,
			body: []byte(fmt.Sprintf(`{"team_id": %q, "type": "PARTY", "starts_at": %q}`, tm.ID, starts)),
		},
		{name: "create", body: body, token: getToken(t, coach), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/events", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var evt event.Event
				if err := json.Unmarshal(rec.Body.Bytes(), &evt); err != nil {
					t.Fatalf("json.Unmarshal() failed, %v", err)
				}
				if evt.Type != event.TypeTraining || evt.Visibility != event.VisibilityPublic {
					t.Errorf("event = %+v, want a public training", evt)
				}
				if len(evt.Attendance) != 1 || !evt.Attendance[0].IsConvoked {
					t.Errorf("attendance = %+v, want p1 convoked", evt.Attendance)
				}
			}
		})
	}
}

func Test_eventApi_convocations(t *testing.T) {
	app := setup(t)

	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	tm := createTeam(t, "U13 A", coach.ID)
	p1 := createPlayer(t, tm.ID, guardian.ID, "Alice", "One")
	p2 := createPlayer(t, tm.ID, guardian.ID, "Bob", "One")
	coachToken := getToken(t, coach)

	// create the event over the API
	starts := time.Now().UTC().AddDate(0, 0, 2).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(
		`{"team_id": %q, "type": "MATCH", "starts_at": %q, "match_location": "HOME", "convoked_ids": [%q]}`,
		tm.ID, starts, p1.ID,
	))
	req, rec := newAuthRequest(http.MethodPost, "/v1/events", coachToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("event creation failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var evt event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evt); err != nil {
		t.Fatalf("json.Unmarshal() failed, %v", err)
	}

	// guardian records p1's status before the roster changes
	attBody := []byte(fmt.Sprintf(`{"user_id": %q, "status": "PRESENT"}`, p1.ID))
	req, rec = newAuthRequest(http.MethodPut, "/v1/events/"+evt.ID+"/attendance", getToken(t, guardian), attBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("setting attendance failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}

	// full replacement: p1 out, p2 in; p1 keeps the recorded status
	convBody := []byte(fmt.Sprintf(
		`{"updates": [{"user_id": %q, "is_convoked": false}, {"user_id": %q, "is_convoked": true}]}`,
		p1.ID, p2.ID,
	))
	req, rec = newAuthRequest(http.MethodPost, "/v1/events/"+evt.ID+"/convocations", coachToken, convBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconciling convocations failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []event.Attendance
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("json.Unmarshal() failed, %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	for _, row := range rows {
		switch row.PersonID {
		case p1.ID:
			if row.IsConvoked || row.Status != event.StatusPresent {
				t.Errorf("p1 row = %+v, want un-convoked with status kept", row)
			}
		case p2.ID:
			if !row.IsConvoked || row.Status != event.StatusUnknown {
				t.Errorf("p2 row = %+v, want freshly convoked", row)
			}
		default:
			t.Errorf("unexpected row %+v", row)
		}
	}

	// guardians may not touch convocations
	req, rec = newAuthRequest(http.MethodPost, "/v1/events/"+evt.ID+"/convocations", getToken(t, guardian), convBody)
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
	checkCodeAndData(t, tt, rec)
}

func Test_eventApi_attendance(t *testing.T) {
	app := setup(t)

	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	guardian1 := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	guardian2 := createUser(t, "Guardian Two", "g2", "g2@test.cd", "", user.GuardianRoles, true)
	tm := createTeam(t, "U13 A", coach.ID)
	p1 := createPlayer(t, tm.ID, guardian1.ID, "Alice", "One")

	starts := time.Now().UTC().AddDate(0, 0, 2).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"team_id": %q, "type": "TRAINING", "starts_at": %q, "convoked_ids": [%q]}`, tm.ID, starts, p1.ID))
	req, rec := newAuthRequest(http.MethodPost, "/v1/events", getToken(t, coach), body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("event creation failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var evt event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evt); err != nil {
		t.Fatalf("json.Unmarshal() failed, %v", err)
	}

	path := "/v1/events/" + evt.ID + "/attendance"
	attBody := func(personID string, status event.Status) []byte {
		return []byte(fmt.Sprintf(`{"user_id": %q, "status": %q}`, personID, status))
	}

	tests := []httpTest{
		{name: "auth required", body: attBody(p1.ID, event.StatusPresent), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bad status", body: attBody(p1.ID, "PARTYING"), token: getToken(t, guardian1), wantCode: http.StatusBadRequest},
		{
			name: "guardian of another player", body: attBody(p1.ID, event.StatusPresent), token: getToken(t, guardian2),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "not a guardian of this player"}),
		},
		{name: "guardian reports own player", body: attBody(p1.ID, event.StatusPresent), token: getToken(t, guardian1), wantCode: http.StatusOK},
		{name: "coach overrides", body: attBody(p1.ID, event.StatusLate), token: getToken(t, coach), wantCode: http.StatusOK},
		{name: "coach self-report", body: attBody(coach.ID, event.StatusPresent), token: getToken(t, coach), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.name == "coach overrides" {
				var att event.Attendance
				if err := json.Unmarshal(rec.Body.Bytes(), &att); err != nil {
					t.Fatalf("json.Unmarshal() failed, %v", err)
				}
				if !att.IsLocked {
					t.Errorf("row = %+v, want locked", att)
				}
			}
		})
	}
}

func Test_eventApi_query(t *testing.T) {
	app := setup(t)

	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	guardian2 := createUser(t, "Guardian Two", "g2", "g2@test.cd", "", user.GuardianRoles, true)
	tm := createTeam(t, "U13 A", coach.ID)
	p1 := createPlayer(t, tm.ID, guardian.ID, "Alice", "One")
	coachToken := getToken(t, coach)

	starts := time.Now().UTC().AddDate(0, 0, 2).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(
		`{"team_id": %q, "type": "TRAINING", "starts_at": %q, "visibility": "PRIVATE", "convoked_ids": [%q]}`,
		tm.ID, starts, p1.ID,
	))
	req, rec := newAuthRequest(http.MethodPost, "/v1/events", coachToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("event creation failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/events?team_id=" + tm.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "team_id must be a uuid", path: "/v1/events?team_id=nope", token: coachToken,
			wantCode: http.StatusBadRequest,
		},
		{name: "coach sees the event", path: "/v1/events?team_id=" + tm.ID, token: coachToken, wantCode: http.StatusOK, extra: 1},
		{name: "involved guardian sees it", path: "/v1/events?team_id=" + tm.ID, token: getToken(t, guardian), wantCode: http.StatusOK, extra: 1},
		{name: "uninvolved guardian does not", path: "/v1/events?team_id=" + tm.ID, token: getToken(t, guardian2), wantCode: http.StatusOK, extra: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if wantLen, ok := tt.extra.(int); ok {
				var events []event.Event
				if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
					t.Fatalf("json.Unmarshal() failed, %v", err)
				}
				if len(events) != wantLen {
					t.Errorf("len(events) = %d, want %d", len(events), wantLen)
				}
			}
		})
	}
}

func Test_eventApi_generateRecurringAndCleanup(t *testing.T) {
	app := setup(t)

	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	tm := createTeam(t, "U13 A", coach.ID)
	coachToken := getToken(t, coach)

	starts := time.Now().UTC().AddDate(0, 0, 2).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"team_id": %q, "type": "TRAINING", "starts_at": %q, "is_recurring": true}`, tm.ID, starts))
	req, rec := newAuthRequest(http.MethodPost, "/v1/events", coachToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("event creation failed, code = %d, body = %s", rec.Code, rec.Body.String())
	}

	scope := []byte(fmt.Sprintf(`{"team_id": %q}`, tm.ID))
	tests := []httpTest{
		{
			name: "generate", method: http.MethodPost, path: "/v1/events/generate-recurring", body: scope,
			token: coachToken, wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"count": 1}),
		},
		{
			name: "generate again is a no-op", method: http.MethodPost, path: "/v1/events/generate-recurring", body: scope,
			token: coachToken, wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"count": 0}),
		},
		{
			name: "cleanup has nothing to do", method: http.MethodDelete, path: "/v1/events/cleanup?team_id=" + tm.ID,
			token: coachToken, wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"count": 0}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
