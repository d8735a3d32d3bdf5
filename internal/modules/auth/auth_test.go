package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"family-booking/internal/httpx"
	"family-booking/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	accounts map[string]*models.Account
}

func (f *fakeRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, ok := f.accounts[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) Create(ctx context.Context, a *models.Account) error {
	if _, ok := f.accounts[a.Email]; ok {
		return models.ErrConflict
	}
	a.ID = "acc-" + a.Email
	f.accounts[a.Email] = a
	return nil
}

const secret = "test-secret"

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(&fakeRepo{accounts: map[string]*models.Account{}}, secret, time.Hour, logrus.NewEntry(logrus.New()))
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	pid := "p1"
	_, err := svc.CreateAccount(context.Background(), "Pro@Example.com", "correct-horse", models.RoleProvider, &pid)
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "pro@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProvider, resp.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "pro@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestCreateAccountValidation(t *testing.T) {
	svc := newService(t)
	_, err := svc.CreateAccount(context.Background(), "p@example.com", "long-enough", models.RoleProvider, nil)
	assert.Error(t, err)
	_, err = svc.CreateAccount(context.Background(), "a@example.com", "short", models.RoleAdmin, nil)
	assert.Error(t, err)
	_, err = svc.CreateAccount(context.Background(), "a@example.com", "long-enough", "root", nil)
	assert.Error(t, err)

	pid := "p1"
	a, err := svc.CreateAccount(context.Background(), "c@example.com", "long-enough", models.RoleClient, &pid)
	require.NoError(t, err)
	assert.Nil(t, a.ProviderID, "only provider accounts carry a provider id")
	_, err = svc.CreateAccount(context.Background(), "c@example.com", "long-enough", models.RoleClient, nil)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func protected(t *testing.T, roles ...string) *echo.Echo {
	t.Helper()
	e := echo.New()
	g := e.Group("/api", JWT(secret), RequireRole(roles...))
	g.GET("/me", func(c echo.Context) error {
		a := httpx.Actor(c)
		pid := ""
		if a.ProviderID != nil {
			pid = *a.ProviderID
		}
		return c.String(http.StatusOK, a.ID+"|"+a.Role+"|"+pid)
	})
	return e
}

func get(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareSetsActor(t *testing.T) {
	svc := newService(t)
	pid := "p1"
	token, err := svc.IssueToken(&models.Account{ID: "u1", Role: models.RoleProvider, ProviderID: &pid})
	require.NoError(t, err)

	rec := get(protected(t, models.RoleProvider), token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1|provider|p1", rec.Body.String())

	rec = get(protected(t, models.RoleAdmin), token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(protected(t, models.RoleProvider), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newService(t)
	svc.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := svc.IssueToken(&models.Account{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protected(t, models.RoleAdmin), expired).Code)

	other := NewService(&fakeRepo{accounts: map[string]*models.Account{}}, "another-secret", time.Hour, logrus.NewEntry(logrus.New()))
	foreign, err := other.IssueToken(&models.Account{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(protected(t, models.RoleAdmin), foreign).Code)
}

func TestLoginHandler(t *testing.T) {
	svc := newService(t)
	_, err := svc.CreateAccount(context.Background(), "admin@example.com", "long-enough", models.RoleAdmin, nil)
	require.NoError(t, err)

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/auth"))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, post(`{"email":"admin@example.com","password":"long-enough"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"admin@example.com","password":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"email":"not-an-email","password":"x"}`).Code)
}
