package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/railyard/railyard-api/internal/authz"
	"github.com/railyard/railyard-api/internal/config"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeUserRepo lets each test plug in just the calls it cares about.
type fakeUserRepo struct {
	createUserFunc   func(ctx context.Context, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	authenticateFunc func(ctx context.Context, email, password string) (models.User, error)
	countUsersFunc   func(ctx context.Context) (int, error)
	listUsersFunc    func(ctx context.Context) ([]models.User, error)
	updateRolesFunc  func(ctx context.Context, userID string, roles []models.UserRole) (models.User, error)
	deleteUserFunc   func(ctx context.Context, userID string) error
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	if f.createUserFunc != nil {
		return f.createUserFunc(ctx, email, password, firstName, lastName, roles)
	}
	return models.User{}, nil
}

func (f *fakeUserRepo) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if f.authenticateFunc != nil {
		return f.authenticateFunc(ctx, email, password)
	}
	return models.User{}, repository.ErrInvalidCredentials
}

func (f *fakeUserRepo) GetUserByEmail(context.Context, string) (models.User, error) {
	return models.User{}, nil
}

func (f *fakeUserRepo) GetUserByID(context.Context, string) (models.User, error) {
	return models.User{}, nil
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	if f.listUsersFunc != nil {
		return f.listUsersFunc(ctx)
	}
	return nil, nil
}

func (f *fakeUserRepo) UpdateUserRoles(ctx context.Context, userID string, roles []models.UserRole) (models.User, error) {
	if f.updateRolesFunc != nil {
		return f.updateRolesFunc(ctx, userID, roles)
	}
	return models.User{}, nil
}

func (f *fakeUserRepo) DeleteUser(ctx context.Context, userID string) error {
	if f.deleteUserFunc != nil {
		return f.deleteUserFunc(ctx, userID)
	}
	return nil
}

func (f *fakeUserRepo) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFunc != nil {
		return f.countUsersFunc(ctx)
	}
	return 1, nil
}

func newAuthHandler(users repository.UserRepository) *AuthHandler {
	cfg := config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour}
	return NewAuthHandler(users, cfg, zerolog.Nop())
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthSignUp_FirstUserBecomesAdmin(t *testing.T) {
	t.Parallel()
	var gotRoles []models.UserRole
	users := &fakeUserRepo{
		countUsersFunc: func(context.Context) (int, error) { return 0, nil },
		createUserFunc: func(_ context.Context, email, _, _, _ string, roles []models.UserRole) (models.User, error) {
			gotRoles = roles
			return models.User{ID: "user-1", Email: email, Roles: roles, IsActive: true}, nil
		},
	}
	h := newAuthHandler(users)

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"email":"admin@example.com","password":"longenough","first_name":"Ada","last_name":"Ops"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, gotRoles)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "admin@example.com", user.Email)
}

func TestAuthSignUp_LaterUsersStartAsViewer(t *testing.T) {
	t.Parallel()
	var gotRoles []models.UserRole
	users := &fakeUserRepo{
		countUsersFunc: func(context.Context) (int, error) { return 3, nil },
		createUserFunc: func(_ context.Context, email, _, _, _ string, roles []models.UserRole) (models.User, error) {
			gotRoles = roles
			return models.User{ID: "user-4", Email: email, Roles: roles}, nil
		},
	}
	h := newAuthHandler(users)

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"email":"new@example.com","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []models.UserRole{models.RoleViewer}, gotRoles)
}

func TestAuthSignUp_RejectsShortPassword(t *testing.T) {
	t.Parallel()
	h := newAuthHandler(&fakeUserRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"email":"a@example.com","password":"short"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 8 characters")
}

func TestAuthSignUp_RejectsMissingEmail(t *testing.T) {
	t.Parallel()
	h := newAuthHandler(&fakeUserRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email is required")
}

func TestAuthSignUp_DuplicateEmailConflicts(t *testing.T) {
	t.Parallel()
	users := &fakeUserRepo{
		countUsersFunc: func(context.Context) (int, error) { return 1, nil },
		createUserFunc: func(context.Context, string, string, string, string, []models.UserRole) (models.User, error) {
			return models.User{}, repository.ErrEmailTaken
		},
	}
	h := newAuthHandler(users)

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"email":"taken@example.com","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthLogin_IssuesToken(t *testing.T) {
	t.Parallel()
	users := &fakeUserRepo{
		authenticateFunc: func(_ context.Context, email, password string) (models.User, error) {
			require.Equal(t, "ops@example.com", email)
			require.Equal(t, "longenough", password)
			return models.User{ID: "user-1", Email: email, Roles: []models.UserRole{models.RoleViewer, models.RoleAdmin}}, nil
		},
	}
	h := newAuthHandler(users)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"ops@example.com","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["token"])

	token, err := jwt.Parse(body["token"], func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "admin", claims["role"])
	assert.ElementsMatch(t, []interface{}{"viewer", "admin"}, claims["roles"])
}

func TestAuthLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	h := newAuthHandler(&fakeUserRepo{
		authenticateFunc: func(context.Context, string, string) (models.User, error) {
			return models.User{}, repository.ErrInvalidCredentials
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"ops@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthLogin_InactiveUser(t *testing.T) {
	t.Parallel()
	h := newAuthHandler(&fakeUserRepo{
		authenticateFunc: func(context.Context, string, string) (models.User, error) {
			return models.User{}, repository.ErrUserInactive
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"gone@example.com","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func protectedProbe(t *testing.T, h *AuthHandler, authorization string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	var captured *http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.JWTMiddleware(next).ServeHTTP(rec, req)
	return rec, captured
}

func TestJWTMiddleware_RejectsMissingHeader(t *testing.T) {
	t.Parallel()
	rec, _ := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddleware_RejectsNonBearerScheme(t *testing.T) {
	t.Parallel()
	rec, _ := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddleware_RejectsForeignSignature(t *testing.T) {
	t.Parallel()
	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub":   "user-1",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	rec, _ := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddleware_RejectsExpiredToken(t *testing.T) {
	t.Parallel()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-1",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	rec, _ := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddleware_PassesIdentityDownstream(t *testing.T) {
	t.Parallel()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-1",
		"roles": []string{"operator"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	rec, captured := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)

	userID, ok := authz.UserIDFromRequest(captured)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)

	roles, ok := authz.RolesFromRequest(captured)
	require.True(t, ok)
	assert.True(t, models.HasAtLeast(roles, models.RoleOperator))
	assert.False(t, models.HasAtLeast(roles, models.RoleAdmin))
}

func TestJWTMiddleware_AcceptsSingleRoleClaim(t *testing.T) {
	t.Parallel()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	rec, captured := protectedProbe(t, newAuthHandler(&fakeUserRepo{}), "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	roles, ok := authz.RolesFromRequest(captured)
	require.True(t, ok)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, roles)
}
