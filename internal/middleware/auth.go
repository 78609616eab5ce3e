package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

const (
	userKey  = "user"
	rolesKey = "roles"

	RoleAdmin = "admin"
)

// AuthMiddleware verifies an HS256 bearer token issued by the account service and loads
// the user named by its username claim.
func AuthMiddleware(secret []byte, users interfaces.UserRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		scheme, tokenStr, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
			abortUnauthorized(c, "Authorization token not provided")
			return
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c, "Invalid token claims")
			return
		}
		username, _ := claims["username"].(string)
		if username == "" {
			abortUnauthorized(c, "Invalid token claims")
			return
		}

		user, err := users.FindByUsername(c.Request.Context(), username)
		if err != nil {
			if !errors.Is(err, models.ErrUserNotFound) {
				logger.Error("Failed to load authenticated user", zap.String("username", username), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"id": "InternalServerError", "message": "Internal server error"})
				return
			}
			abortUnauthorized(c, "User from token not found")
			return
		}

		c.Set(userKey, user)
		c.Set(rolesKey, rolesClaim(claims))
		c.Next()
	}
}

// RequireRole lets through only callers whose token carries role in its roles claim.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Get(rolesKey)
		userRoles, _ := roles.([]string)
		for _, r := range userRoles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"id": "ForbiddenError", "message": "Permission denied"})
	}
}

func rolesClaim(claims jwt.MapClaims) []string {
	raw, _ := claims["roles"].([]interface{})
	roles := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// CurrentUser returns the user loaded by AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"id": "UnauthorizedError", "message": message})
}
