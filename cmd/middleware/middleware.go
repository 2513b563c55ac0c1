package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"confdesk/internal/dto"
)

const (
	RoleDelegate = "delegate"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

const RequestIDHeader = "X-Request-ID"

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)
		c.Next()
		ev := zlog.Logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = zlog.Logger.Error()
		}
		ev.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", reqID).
			Str("user_id", c.GetString(dto.CtxUserID)).
			Msg("request")
	}
}

// Claims are the bearer token claims: sub is the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Auth accepts HS256 bearer tokens signed with secret and stores the caller
// in the context.
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			dto.ErrorResponse(c, http.StatusUnauthorized, dto.Unauthorized, "Bearer token required")
			return
		}
		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return secret, nil })
		if err != nil {
			desc := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				desc = "Token expired"
			}
			dto.ErrorResponse(c, http.StatusUnauthorized, dto.Unauthorized, desc)
			return
		}
		if claims.Subject == "" {
			dto.ErrorResponse(c, http.StatusUnauthorized, dto.Unauthorized, "Token has no subject")
			return
		}
		role := claims.Role
		if role == "" {
			role = RoleDelegate
		}
		c.Set(dto.CtxUserID, claims.Subject)
		c.Set(dto.CtxEmail, claims.Email)
		c.Set(dto.CtxRole, role)
		c.Next()
	}
}

// RequireRole lets the request through only for one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(dto.CtxRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		dto.ErrorResponse(c, http.StatusForbidden, dto.Forbidden, "Insufficient role")
	}
}

// Token signs an HS256 token for sub; used by tests and local tooling.
func Token(secret []byte, sub, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
