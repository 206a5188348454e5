package middleware_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"
	"exam-engine/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	if err := logger.Initialize(config.LoggerConfig{Env: "test", Level: "debug"}); err != nil {
		panic("Failed to initialize logger for tests: " + err.Error())
	}
	exitVal := m.Run()
	_ = logger.Sync()
	os.Exit(exitVal)
}

func signToken(t *testing.T, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	claims := dto.AuthClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func localsEcho(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"userId": middleware.UserID(c), "role": c.Locals(middleware.RoleKey)})
}

func TestProtected(t *testing.T) {
	verifier := middleware.NewJWTVerifier(testSecret, "auth-service")
	app := fiber.New()
	app.Get("/me", middleware.Protected(verifier), localsEcho)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantCode   string
		wantUser   string
	}{
		{name: "no header", wantStatus: fiber.StatusUnauthorized, wantCode: "MISSING_AUTH_HEADER"},
		{name: "basic scheme", authHeader: "Basic abc", wantStatus: fiber.StatusUnauthorized, wantCode: "INVALID_AUTH_SCHEME"},
		{name: "empty token", authHeader: "Bearer ", wantStatus: fiber.StatusUnauthorized, wantCode: "EMPTY_TOKEN"},
		{name: "wrong secret", authHeader: "Bearer " + signToken(t, "other", "u1", "USER", time.Hour), wantStatus: fiber.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "expired", authHeader: "Bearer " + signToken(t, testSecret, "u1", "USER", -time.Minute), wantStatus: fiber.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "no user id", authHeader: "Bearer " + signToken(t, testSecret, "", "USER", time.Hour), wantStatus: fiber.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "valid", authHeader: "Bearer " + signToken(t, testSecret, "u1", "USER", time.Hour), wantStatus: fiber.StatusOK, wantUser: "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.authHeader != "" {
				req.Header.Set(middleware.AuthorizationHeader, tt.authHeader)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			if tt.wantCode != "" {
				var errResp middleware.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &errResp))
				assert.Equal(t, tt.wantCode, errResp.Code)
				return
			}
			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.wantUser, got["userId"])
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	verifier := middleware.NewJWTVerifier(testSecret, "")
	app := fiber.New()
	app.Get("/exams", middleware.OptionalAuth(verifier), localsEcho)

	tests := []struct {
		name       string
		authHeader string
		wantUser   string
	}{
		{name: "anonymous"},
		{name: "garbage token", authHeader: "Bearer nope"},
		{name: "other scheme", authHeader: "Token abc"},
		{name: "valid token", authHeader: "Bearer " + signToken(t, testSecret, "u7", "USER", time.Hour), wantUser: "u7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/exams", nil)
			if tt.authHeader != "" {
				req.Header.Set(middleware.AuthorizationHeader, tt.authHeader)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			var got map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.wantUser, got["userId"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	verifier := middleware.NewJWTVerifier(testSecret, "")
	app := fiber.New()
	app.Get("/admin", middleware.Protected(verifier), middleware.RequireRole(middleware.RoleAdmin), localsEcho)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set(middleware.AuthorizationHeader, "Bearer "+signToken(t, testSecret, "u1", "USER", time.Hour))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set(middleware.AuthorizationHeader, "Bearer "+signToken(t, testSecret, "root", "admin", time.Hour))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Get("/incomplete", func(c *fiber.Ctx) error {
		return domain.NewAttemptIncompleteError([]int64{3})
	})
	app.Get("/owner", func(c *fiber.Ctx) error { return domain.NewNotAttemptOwnerError(1) })
	app.Get("/missing", func(c *fiber.Ctx) error { return domain.NewExamNotFoundError(9) })
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return domain.ValidationErrors{domain.NewMissingFieldError("sectionId")}
	})
	app.Get("/boom", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/incomplete", fiber.StatusConflict, string(domain.ErrAttemptIncomplete)},
		{"/owner", fiber.StatusForbidden, string(domain.ErrNotAttemptOwner)},
		{"/missing", fiber.StatusNotFound, string(domain.ErrExamNotFound)},
		{"/invalid", fiber.StatusBadRequest, string(domain.ErrValidation)},
		{"/boom", fiber.StatusInternalServerError, string(domain.ErrInternal)},
		{"/nowhere", fiber.StatusNotFound, "HTTP_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body middleware.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantStatus, body.Status)
			if tt.path == "/incomplete" {
				assert.Equal(t, []interface{}{float64(3)}, body.Details["missingSectionIds"])
			}
		})
	}
}

func TestValidateIDParams(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Get("/exams/:examId/sections/:sectionId", middleware.ValidateIDParams("examId", "sectionId"), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sum": middleware.IDParam(c, "examId") + middleware.IDParam(c, "sectionId")})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/exams/4/sections/5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(9), got["sum"])

	for _, path := range []string{"/exams/abc/sections/5", "/exams/4/sections/0", "/exams/-1/sections/2"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestRequestLogger(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestLogger())
	app.Get("/fail", func(c *fiber.Ctx) error { return domain.NewAttemptNotFoundError(1) })

	req := httptest.NewRequest("GET", "/fail", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(middleware.RequestIDHeader))

	resp, err = app.Test(httptest.NewRequest("GET", "/fail", nil), -1)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}
