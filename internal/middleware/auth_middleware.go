package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/resumeforge/payment-service/internal/config"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ для хранения ID пользователя в контексте.
	ContextUserIDKey ContextKey = "userID"
	authHeaderPrefix            = "Bearer "
)

// TokenValidator проверяет bearer токен и возвращает его claims
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims claims токена аутентификации
type TokenClaims struct {
	UserEmail string `json:"email"`
	jwt.RegisteredClaims
}

// JWTMiddleware middleware аутентификации по JWT
type JWTMiddleware struct {
	cfg       *config.Config
	log       *logger.Logger
	validator TokenValidator
}

// NewJWTMiddleware создает новый middleware аутентификации
func NewJWTMiddleware(cfg *config.Config, log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		cfg:       cfg,
		log:       log,
		validator: validator,
	}
}

// RequireAuth требует валидный bearer токен со стабильным ID пользователя
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, authHeaderPrefix)
		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		userID := claims.Subject
		if userID == "" {
			m.handleAuthError(c, "User ID (sub) missing in token")
			return
		}

		c.Set(string(ContextUserIDKey), userID)
		m.log.Debugw("User authenticated via HTTP", "userID", userID)
		c.Next()
	}
}

// UserID извлекает ID аутентифицированного пользователя из контекста Gin
func UserID(c *gin.Context) string {
	return c.GetString(string(ContextUserIDKey))
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "error", message)
	c.JSON(http.StatusUnauthorized, gin.H{"error": message})
	c.Abort()
}

// DefaultTokenValidator - реализация валидатора по умолчанию.
type DefaultTokenValidator struct {
	Secret []byte
}

// Validate разбирает и проверяет JWT токен
func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, errors.New("malformed token")
		} else if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		} else if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, errors.New("token expired")
		} else {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
