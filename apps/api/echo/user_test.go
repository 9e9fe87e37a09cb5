package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/user"
	dummydb "github.com/insightlab/insightlab/storage/database/dummy"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewUserRepository(db)
	svc := user.NewService(repo)
	return svc, repo
}

func testConfig() *core.Config {
	return &core.Config{
		AppName:                   "InsightLab",
		SecretKey:                 "test-secret",
		JWTExpirationDelta:        time.Hour,
		JWTRefreshExpirationDelta: time.Hour,
	}
}

func newRequest(e *echo.Echo, method, path string, data ...[]byte) (echo.Context, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	return ctx, rec
}

func createUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func marshallUsers(t *testing.T, users ...user.User) []byte {
	data, err := json.Marshal(users)
	if err != nil {
		t.Fatalf("marshallUsers() failed: %v", err)
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
	return assert.ElementsMatch(t, j1, j2), nil
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	wantErr  error
}

func Test_userApi_query(t *testing.T) {
	svc, repo := setup(t)
	api := &userApi{
		conf: testConfig(),
		svc:  svc,
	}
	e := echo.New()

	path := func(search, role string, isActive *bool, createdFrom, createdTo time.Time) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		if !createdFrom.IsZero() {
			v.Add("created_from", createdFrom.Format(time.RFC3339))
		}
		if !createdTo.IsZero() {
			v.Add("created_to", createdTo.Format(time.RFC3339))
		}
		return "/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	t1 := now.Add(1 * time.Hour).Truncate(time.Second)
	t2 := now.Add(2 * time.Hour).Truncate(time.Second)
	t4 := now.Add(4 * time.Hour).Truncate(time.Second)
	t5 := now.Add(5 * time.Hour).Truncate(time.Second)

	grace := createUser(t, repo, "Grace", "grace1", "grace@test.cd", "", user.RoleResearcher, true, t1)
	alan := createUser(t, repo, "Alan", "alan42", "alan@test.cd", "", user.RoleParticipant, true)
	rob := createUser(t, repo, "Rob", "robpike", "rob@test.cd", "", user.RoleReviewer, true, t2)
	admin := createUser(t, repo, "Admin", "admin1", "admin@test.cd", "", user.RoleAdmin, true)
	naughty := createUser(t, repo, "N Dog", "ndog42", "ndog@test.cd", "", user.RoleParticipant, false)
	empty := marshallUsers(t)

	tests := []httpTest{
		{name: "Get all", path: "/users", wantData: marshallUsers(t, grace, alan, rob, admin, naughty)},
		{name: "search (unknown)", path: path("lol", "", nil, time.Time{}, time.Time{}), wantData: empty},
		{name: "search=AL", path: path("AL", "", nil, time.Time{}, time.Time{}), wantData: marshallUsers(t, alan)},
		{name: "role (unknown)", path: path("", "lol", nil, time.Time{}, time.Time{}), wantData: empty},
		{name: "role=participant", path: path("", user.RoleParticipant, nil, time.Time{}, time.Time{}), wantData: marshallUsers(t, alan, naughty)},
		{name: "role=admin", path: path("", user.RoleAdmin, nil, time.Time{}, time.Time{}), wantData: marshallUsers(t, admin)},
		{name: "is_active=true", path: path("", "", bPtr(true), time.Time{}, time.Time{}), wantData: marshallUsers(t, grace, alan, rob, admin)},
		{name: "is_active=false", path: path("", "", bPtr(false), time.Time{}, time.Time{}), wantData: marshallUsers(t, naughty)},
		{name: "created_from", path: path("", "", nil, t1, time.Time{}), wantData: marshallUsers(t, grace, rob)},
		{name: "created_from - created_to (empty)", path: path("", "", nil, t4, t5), wantData: empty},
		{name: "created_from - created_to (found)", path: path("", "", nil, t1, t2), wantData: marshallUsers(t, grace, rob)},
		{name: "all combo (empty)", path: path("grace", user.RoleReviewer, bPtr(true), t1, t5), wantData: empty},
		{name: "all combo (found)", path: path("rob", user.RoleReviewer, bPtr(true), t1, t5), wantData: marshallUsers(t, rob)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.wantCode = http.StatusOK

		t.Run(tt.name, func(t *testing.T) {
			ctx, rec := newRequest(e, tt.method, tt.path, tt.body)
			if err := api.query(ctx); err != tt.wantErr {
				t.Errorf("query() error = %v; wantErr %v", err, tt.wantErr)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("query() code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
			if err != nil {
				t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
			}
			if !ok {
				t.Errorf("query() data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	svc, repo := setup(t)
	api := &userApi{
		conf: testConfig(),
		svc:  svc,
	}
	e := echo.New()

	createUser(t, repo, "Grace", "grace1", "grace@test.cd", "LanguagesRock!", user.RoleResearcher, true)
	createUser(t, repo, "Idle", "idle42", "idle@test.cd", "Zzzz1234", user.RoleParticipant, false)

	marshall := func(uname, pwd string) []byte {
		data, err := json.Marshal(LoginRequest{Username: uname, Password: pwd})
		if err != nil {
			t.Fatalf("marshalling LoginRequest: %v", err)
		}
		return data
	}

	tests := []httpTest{
		{name: "by username", body: marshall("grace1", "LanguagesRock!"), wantCode: http.StatusOK},
		{name: "by email", body: marshall("grace@test.cd", "LanguagesRock!"), wantCode: http.StatusOK},
		{name: "username is case-insensitive", body: marshall("GRACE1", "LanguagesRock!"), wantCode: http.StatusOK},
		{name: "unknown user", body: marshall("nobody", "LanguagesRock!"), wantErr: errAuthenticationFailed},
		{name: "wrong password", body: marshall("grace1", "languagesrock!"), wantErr: errAuthenticationFailed},
		{name: "deactivated account", body: marshall("idle42", "Zzzz1234"), wantErr: errAccountDeactivated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, rec := newRequest(e, http.MethodPost, "/users/login", tt.body)
			err := api.login(ctx)
			if err != tt.wantErr {
				t.Fatalf("login() error = %v; wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if rec.Code != tt.wantCode {
				t.Errorf("login() code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			var resp LoginResponse
			if err = json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshalling LoginResponse: %v", err)
			}
			assert.NotEmpty(t, resp.Token)
		})
	}
}
