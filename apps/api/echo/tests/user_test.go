package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/ekipa/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	usr := createUser(t, "Guardian One", "g1", "g1@test.cd", "LeTest123", user.GuardianRoles, true)
	createUser(t, "Sleeper", "zzz", "zzz@test.cd", "LeTest123", user.GuardianRoles, false)
	_ = usr

	tests := []httpTest{
		{
			name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: []byte(`{"username": "lol", "password": "lol"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: []byte(`{"username": "g1", "password": "lol"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: []byte(`{"username": "zzz", "password": "LeTest123"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "login with username", body: []byte(`{"username": "g1", "password": "LeTest123"}`), wantCode: http.StatusOK},
		{name: "login with email", body: []byte(`{"username": "g1@test.cd", "password": "LeTest123"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("json.Unmarshal() failed, %v", err)
				}
				if resp.Token == "" {
					t.Error("expected a token in the response")
				}
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	coach := createUser(t, "Coach Carter", "coach", "coach@test.cd", "", user.CoachRoles, true)
	admin := createUser(t, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, guardian),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "get all", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, guardian, coach, admin)},
		{name: "search", path: "/v1/users?search=carter", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, coach)},
		{name: "filter by role", path: "/v1/users?role=guardian:", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, guardian)},
		{name: "unknown role", path: "/v1/users?role=lol", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	app := setup(t)

	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	other := createUser(t, "Guardian Two", "g2", "g2@test.cd", "", user.GuardianRoles, true)
	admin := createUser(t, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users/" + guardian.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "own account", path: "/v1/users/" + guardian.ID, token: getToken(t, guardian),
			wantCode: http.StatusOK, wantData: marchallObj(t, guardian),
		},
		{
			name: "someone else's account is not found", path: "/v1/users/" + other.ID, token: getToken(t, guardian),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "admin sees any account", path: "/v1/users/" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)

	guardian := createUser(t, "Guardian One", "g1", "g1@test.cd", "", user.GuardianRoles, true)
	admin := createUser(t, "Admin", "admin", "admin@test.cd", "", user.AdminRoles, true)

	body := []byte(`{"name": "New Coach", "username": "newcoach", "email": "newcoach@test.cd",` +
		` "password": "LeTest123!", "password_confirm": "LeTest123!", "roles": ["coach:"]}`)

	tests := []httpTest{
		{name: "auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", body: body, token: getToken(t, guardian), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "create", body: body, token: getToken(t, admin), wantCode: http.StatusCreated},
		{
			name: "duplicate username", body: body, token: getToken(t, admin), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal() failed, %v", err)
				}
				if usr.Username != "newcoach" || !usr.IsCoach() {
					t.Errorf("user = %+v, want a coach named newcoach", usr)
				}
			}
		})
	}
}
