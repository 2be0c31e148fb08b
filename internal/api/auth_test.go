package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5_backoffice/internal/auth"
	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *auth.Service, *storage.Storage) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.NewStorage(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	authService := auth.NewService("test-secret", time.Hour)

	// Шлюзовые зависимости не нужны для auth маршрутов
	return New(db, authService, nil, nil, nil, nil, logger), authService, db
}

func createUser(t *testing.T, h *Handler, db *storage.Storage, email, password, role string) *models.User {
	t.Helper()

	hash, err := h.authService.HashPassword(password)
	require.NoError(t, err)

	user, err := db.CreateUser(email, hash, role, "Test User")
	require.NoError(t, err)

	return user
}

func TestLoginSuccess(t *testing.T) {
	h, _, db := newTestHandler(t)
	createUser(t, h, db, "admin@example.com", "secret123", models.RoleAdmin)

	body, _ := json.Marshal(models.LoginRequest{Email: "admin@example.com", Password: "secret123"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.LoginResponse `json:"data"`
	}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Token)
	assert.Equal(t, models.RoleAdmin, resp.Data.User.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	h, _, db := newTestHandler(t)
	createUser(t, h, db, "admin@example.com", "secret123", models.RoleAdmin)

	body, _ := json.Marshal(models.LoginRequest{Email: "admin@example.com", Password: "wrong"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body, _ := json.Marshal(models.LoginRequest{Email: "ghost@example.com", Password: "x"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleEnforcementOnProtectedRoutes(t *testing.T) {
	h, authService, db := newTestHandler(t)

	viewer := createUser(t, h, db, "viewer@example.com", "secret123", models.RoleViewer)
	admin := createUser(t, h, db, "admin@example.com", "secret123", models.RoleAdmin)

	router := h.SetupRouter()

	register := func(token string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(models.RegisterRequest{
			Email:    "new@example.com",
			Password: "secret123",
			Role:     models.RoleSupport,
		})

		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	// Без токена
	reqNoToken := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader([]byte("{}")))
	recNoToken := httptest.NewRecorder()
	router.ServeHTTP(recNoToken, reqNoToken)
	assert.Equal(t, http.StatusUnauthorized, recNoToken.Code)

	// Viewer не может регистрировать пользователей
	viewerToken, err := authService.GenerateToken(viewer.ID, viewer.Email, viewer.Role)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, register(viewerToken).Code)

	// Админ может
	adminToken, err := authService.GenerateToken(admin.ID, admin.Email, admin.Role)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, register(adminToken).Code)

	created, err := db.GetUserByEmail("new@example.com")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.RoleSupport, created.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _, db := newTestHandler(t)
	createUser(t, h, db, "dup@example.com", "secret123", models.RoleViewer)

	body, _ := json.Marshal(models.RegisterRequest{Email: "dup@example.com", Password: "secret123"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleRegister(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
