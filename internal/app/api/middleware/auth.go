package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/response"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	claimsKey = "session_claims"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid session token")
	ErrNoSecret     = errors.New("auth: session secret is not configured")
)

// SessionClaims is the HS256 session token issued by the web app.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.StandardClaims
}

// IssueToken signs a session token for userID.
func IssueToken(secret, userID, email, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := &SessionClaims{
		Email: email,
		Role:  role,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates signature, algorithm and expiry. An empty secret
// rejects every token, since HMAC accepts an empty key.
func ParseToken(secret, token string) (*SessionClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoSecret)
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func attachClaims(c *gin.Context, claims *SessionClaims) {
	c.Set(claimsKey, claims)
	c.Set(logctx.UserIDKey, claims.Subject)
	//nolint:staticcheck // string key shared with gin.Context
	ctx := context.WithValue(c.Request.Context(), logctx.UserIDKey, claims.Subject)
	if v, ok := c.Get(logctx.LoggerKey); ok {
		if lg, ok := v.(*zap.SugaredLogger); ok && lg != nil {
			lg = lg.With("user_id", claims.Subject)
			c.Set(logctx.LoggerKey, lg)
			ctx = logctx.WithLogger(ctx, lg)
		}
	}
	c.Request = c.Request.WithContext(ctx)
}

// Claims returns the session of the caller, nil when anonymous.
func Claims(c *gin.Context) *SessionClaims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*SessionClaims); ok {
			return claims
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
}

// OptionalAuth attaches the session when a valid token is present. An invalid
// token is rejected rather than silently downgraded to anonymous.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}
		attachClaims(c, claims)
		c.Next()
	}
}

// RequireAuth rejects requests without a valid session.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, ErrMissingToken)
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}
		attachClaims(c, claims)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			abortUnauthorized(c, ErrMissingToken)
			return
		}
		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, "role "+role+" required"))
			return
		}
		c.Next()
	}
}

// CronAuth compares the bearer token with the shared cron secret. An empty
// secret disables the endpoint.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			abortUnauthorized(c, errors.New("invalid cron secret"))
			return
		}
		c.Next()
	}
}
