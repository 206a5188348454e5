package middleware

import (
	"errors"
	"fmt"
	"strings"

	"exam-engine/internal/dto"
	"exam-engine/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	AuthorizationHeader = "Authorization"
	BearerSchema        = "Bearer "
	UserIDKey           = "userID" // Key for storing UserID in fiber.Ctx locals
	RoleKey             = "role"

	RoleAdmin = "ADMIN"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier checks access tokens issued by the external auth service.
type TokenVerifier interface {
	Verify(tokenString string) (*dto.AuthClaims, error)
}

type jwtVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier verifies HS256 tokens signed with secret. An empty issuer
// accepts any issuer.
func NewJWTVerifier(secret, issuer string) TokenVerifier {
	return &jwtVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *jwtVerifier) Verify(tokenString string) (*dto.AuthClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &dto.AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			logger.Get().Debug("JWT token expired", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*dto.AuthClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func unauthorized(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Code:    code,
		Message: message,
		Status:  fiber.StatusUnauthorized,
	})
}

// bearerToken returns the token of an "Authorization: Bearer" header, or "".
func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerSchema) {
		return "", authHeader != ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerSchema)), true
}

// Protected requires a valid access token and stores its user id and role in
// the request locals.
func Protected(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := strings.TrimSpace(c.Get(AuthorizationHeader))
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTH_HEADER", "Authorization header is missing")
		}
		if authHeader == strings.TrimSpace(BearerSchema) {
			return unauthorized(c, "EMPTY_TOKEN", "Token is empty")
		}
		if !strings.HasPrefix(authHeader, BearerSchema) {
			return unauthorized(c, "INVALID_AUTH_SCHEME", "Authorization scheme is not Bearer")
		}
		tokenString, _ := bearerToken(c)
		if tokenString == "" {
			return unauthorized(c, "EMPTY_TOKEN", "Token is empty")
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			return unauthorized(c, "INVALID_TOKEN", err.Error())
		}

		c.Locals(UserIDKey, claims.UserID)
		c.Locals(RoleKey, claims.Role)
		return c.Next()
	}
}

// OptionalAuth sets the user id when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, present := bearerToken(c)
		if tokenString == "" {
			if present {
				logger.Get().Debug("OptionalAuth: unusable Authorization header, proceeding as anonymous.")
			}
			return c.Next()
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Get().Debug("OptionalAuth: JWT validation failed, proceeding as anonymous.", zap.Error(err))
			return c.Next()
		}

		c.Locals(UserIDKey, claims.UserID)
		c.Locals(RoleKey, claims.Role)
		return c.Next()
	}
}

// RequireRole must run after Protected.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals(RoleKey).(string); !strings.EqualFold(got, role) {
			return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
				Code:    "FORBIDDEN",
				Message: fmt.Sprintf("%s role required", role),
				Status:  fiber.StatusForbidden,
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}
