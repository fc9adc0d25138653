package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Keep Gin quiet during tests.

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUsersRepo implements handlers.UserStore and handlers.UserDirectory.

type fakeUsersRepo struct {
	getByEmailFn  func(ctx context.Context, email string) (user.User, error)
	getByIDFn     func(ctx context.Context, id string) (user.User, error)
	listFn        func(ctx context.Context) ([]user.WithCity, error)
	createFn      func(ctx context.Context, u user.User) (user.User, error)
	updateFn      func(ctx context.Context, id string, params user.UpdateParams) (user.User, error)
	deleteFn      func(ctx context.Context, id string) error
	groupByCityFn func(ctx context.Context) ([]user.CityGroup, error)
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) ListWithCity(ctx context.Context) ([]user.WithCity, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.WithCity{}, nil
}

func (f *fakeUsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return u, nil
}

func (f *fakeUsersRepo) Update(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, params)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeUsersRepo) GroupByCity(ctx context.Context) ([]user.CityGroup, error) {
	if f.groupByCityFn != nil {
		return f.groupByCityFn(ctx)
	}
	return []user.CityGroup{}, nil
}

var testJWT = auth.NewManager("test-secret", time.Hour)

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()

	tok, err := testJWT.GenerateToken(userID, role)

	if err != nil {
		t.Fatalf("token: %v", err)
	}

	return tok
}

// setupUsersRouter mirrors the real route policies for /api/users.
func setupUsersRouter(repo *fakeUsersRepo) *gin.Engine {
	r := gin.New()

	authMw := middlewares.NewAuthMiddleware(testJWT)
	h := handlers.NewUsersHandler(repo)

	var (
		anyRole      = middlewares.Policy{Roles: []string{user.RoleAdmin, user.RoleUser}}
		adminOnly    = middlewares.Policy{Roles: []string{user.RoleAdmin}}
		ownerOrAdmin = middlewares.Policy{Roles: []string{user.RoleAdmin, user.RoleUser}, OwnerParam: "id"}
	)

	g := r.Group("/api/users")
	g.Use(authMw.RequireAuth())
	{
		g.GET("/", authMw.Require(anyRole), h.ListUsers)
		g.GET("/users-by-city", authMw.Require(anyRole), h.UsersByCity)
		g.GET("/:id", authMw.Require(anyRole), h.GetUserByID)
		g.POST("/", authMw.Require(adminOnly), h.CreateUser)
		g.PUT("/:id", authMw.Require(ownerOrAdmin), h.UpdateUser)
		g.DELETE("/:id", authMw.Require(adminOnly), h.DeleteUser)
	}

	return r
}

func doJSON(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer

	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestListUsersAuth(t *testing.T) {
	cityID := uuid.NewString()

	repo := &fakeUsersRepo{
		listFn: func(ctx context.Context) ([]user.WithCity, error) {
			return []user.WithCity{
				{
					User: user.User{ID: uuid.NewString(), Name: "Ada", Email: "ada@example.com", Role: "user", Age: 36, PasswordHash: "secret-hash"},
					City: user.CityRef{ID: cityID, Name: "Toronto"},
				},
			}, nil
		},
	}

	r := setupUsersRouter(repo)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "no_token", token: "", wantStatus: http.StatusUnauthorized},
		{name: "user_role", token: tokenFor(t, uuid.NewString(), "user"), wantStatus: http.StatusOK},
		{name: "admin_role", token: tokenFor(t, uuid.NewString(), "admin"), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, "/api/users/", tt.token, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus != http.StatusOK {
				return
			}

			body := w.Body.String()

			if strings.Contains(body, "secret-hash") || strings.Contains(body, "password") {
				t.Errorf("password material leaked in response: %s", body)
			}

			if !strings.Contains(body, "Toronto") {
				t.Errorf("city not resolved in response: %s", body)
			}
		})
	}
}

func TestGetUserByID(t *testing.T) {
	known := uuid.NewString()

	repo := &fakeUsersRepo{
		getByIDFn: func(ctx context.Context, id string) (user.User, error) {
			if id == known {
				return user.User{ID: known, Name: "Ada", Email: "ada@example.com", Role: "user", Age: 36}, nil
			}
			return user.User{}, user.ErrNotFound
		},
	}

	r := setupUsersRouter(repo)
	token := tokenFor(t, uuid.NewString(), "user")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "found", path: "/api/users/" + known, wantStatus: http.StatusOK},
		{name: "missing", path: "/api/users/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "bad_id", path: "/api/users/not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, tt.path, token, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	repo := &fakeUsersRepo{}
	r := setupUsersRouter(repo)

	body := `{
		"name": "Ada Lovelace",
		"email": "ada@example.com",
		"password": "secret6",
		"age": 36,
		"city": "` + uuid.NewString() + `"
	}`

	w := doJSON(r, http.MethodPost, "/api/users/", tokenFor(t, uuid.NewString(), "user"), body)

	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: got status %d, want 403", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/users/", tokenFor(t, uuid.NewString(), "admin"), body)

	if w.Code != http.StatusOK {
		t.Fatalf("admin create: got status %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateUserPartialPayload(t *testing.T) {
	targetID := uuid.NewString()

	var captured user.UpdateParams

	repo := &fakeUsersRepo{
		updateFn: func(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
			captured = params
			return user.User{ID: id, Name: "Ada", Email: "ada@example.com", Role: "user", Age: 31}, nil
		},
	}

	r := setupUsersRouter(repo)

	w := doJSON(r, http.MethodPut, "/api/users/"+targetID, tokenFor(t, uuid.NewString(), "admin"), `{"age": 31}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	if captured.Age == nil || *captured.Age != 31 {
		t.Errorf("age not applied: %+v", captured)
	}

	if captured.Name != nil || captured.Email != nil || captured.CityID != nil || captured.Role != nil {
		t.Errorf("unexpected fields in partial update: %+v", captured)
	}
}

func TestUpdateUserRoleFieldGating(t *testing.T) {
	selfID := uuid.NewString()

	tests := []struct {
		name     string
		callerID string
		role     string
		wantRole bool
	}{
		{name: "admin_sets_role", callerID: uuid.NewString(), role: "admin", wantRole: true},
		{name: "non_admin_role_silently_dropped", callerID: selfID, role: "user", wantRole: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured user.UpdateParams

			repo := &fakeUsersRepo{
				updateFn: func(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
					captured = params
					return user.User{ID: id, Role: "user"}, nil
				},
			}

			r := setupUsersRouter(repo)

			w := doJSON(r, http.MethodPut, "/api/users/"+selfID, tokenFor(t, tt.callerID, tt.role), `{"role": "admin"}`)

			if w.Code != http.StatusOK {
				t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
			}

			if tt.wantRole && captured.Role == nil {
				t.Error("admin role change was dropped")
			}

			if !tt.wantRole && captured.Role != nil {
				t.Error("non-admin role change was applied")
			}
		})
	}
}

func TestUpdateUserOwnership(t *testing.T) {
	selfID := uuid.NewString()
	otherID := uuid.NewString()

	called := false

	repo := &fakeUsersRepo{
		updateFn: func(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
			called = true
			return user.User{ID: id}, nil
		},
	}

	r := setupUsersRouter(repo)

	w := doJSON(r, http.MethodPut, "/api/users/"+otherID, tokenFor(t, selfID, "user"), `{"age": 40}`)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403, body=%s", w.Code, w.Body.String())
	}

	if called {
		t.Error("repo reached despite ownership violation")
	}
}

func TestUpdateUserErrors(t *testing.T) {
	tests := []struct {
		name       string
		repoErr    error
		wantStatus int
	}{
		{name: "not_found", repoErr: user.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "duplicate_email", repoErr: user.ErrEmailTaken, wantStatus: http.StatusConflict},
		{name: "bad_city", repoErr: user.ErrCityNotFound, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsersRepo{
				updateFn: func(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
					return user.User{}, tt.repoErr
				},
			}

			r := setupUsersRouter(repo)

			w := doJSON(r, http.MethodPut, "/api/users/"+uuid.NewString(), tokenFor(t, uuid.NewString(), "admin"), `{"email": "taken@example.com"}`)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestDeleteUser(t *testing.T) {
	repo := &fakeUsersRepo{}
	r := setupUsersRouter(repo)

	// delete is admin-only
	w := doJSON(r, http.MethodDelete, "/api/users/"+uuid.NewString(), tokenFor(t, uuid.NewString(), "user"), "")

	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin delete: got status %d, want 403", w.Code)
	}

	// deleting an unknown id is still a success
	w = doJSON(r, http.MethodDelete, "/api/users/"+uuid.NewString(), tokenFor(t, uuid.NewString(), "admin"), "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: got status %d, want 204, body=%s", w.Code, w.Body.String())
	}
}

func TestUsersByCityAggregate(t *testing.T) {
	repo := &fakeUsersRepo{
		groupByCityFn: func(ctx context.Context) ([]user.CityGroup, error) {
			return []user.CityGroup{
				{City: "CityA", Users: []user.GroupMember{
					{ID: "u1", Name: "U1", Email: "u1@example.com", Age: 20},
					{ID: "u2", Name: "U2", Email: "u2@example.com", Age: 30},
				}},
				{City: "CityB", Users: []user.GroupMember{
					{ID: "u3", Name: "U3", Email: "u3@example.com", Age: 40},
				}},
			}, nil
		},
	}

	r := setupUsersRouter(repo)

	w := doJSON(r, http.MethodGet, "/api/users/users-by-city", tokenFor(t, uuid.NewString(), "user"), "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var groups []user.CityGroup

	if err := json.Unmarshal(w.Body.Bytes(), &groups); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	if groups[0].City != "CityA" || len(groups[0].Users) != 2 {
		t.Errorf("unexpected first group: %+v", groups[0])
	}

	if groups[1].City != "CityB" || len(groups[1].Users) != 1 {
		t.Errorf("unexpected second group: %+v", groups[1])
	}
}
