package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/esante/rdv-service/internal/handler"
	"github.com/esante/rdv-service/internal/model"
)

// Claims carried by tokens issued by the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte

	// Parsed-claims memoization. Signature verification dominates the
	// hot path, so validated tokens are kept until shortly before they
	// would expire anyway.
	claims *gocache.Cache
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		claims: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Authenticate verifies the bearer token and sets the caller's identity
// in the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token subject"))
			c.Abort()
			return
		}

		c.Set(handler.ContextUserID, userID)
		c.Set(handler.ContextRole, model.Actor(claims.Role))
		c.Next()
	}
}

// RequireRole gates a route to the given roles. Must run after
// Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := handler.CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient permissions"))
		c.Abort()
	}
}

func (m *AuthMiddleware) validateToken(token string) (*Claims, error) {
	if cached, ok := m.claims.Get(token); ok {
		claims := cached.(*Claims)
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			m.claims.Delete(token)
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	ttl := gocache.DefaultExpiration
	if claims.ExpiresAt != nil {
		if until := time.Until(claims.ExpiresAt.Time); until < 5*time.Minute {
			ttl = until
		}
	}
	m.claims.Set(token, claims, ttl)
	return claims, nil
}
