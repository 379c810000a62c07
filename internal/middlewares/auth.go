package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Registrar 认证通过后登记用户, 以便按邮箱查找和统计配额
type Registrar interface {
	Register(ctx context.Context, id *identity.Identity) error
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	// Token 格式通常是 "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func authenticate(c *gin.Context, oracle identity.Oracle, registrar Registrar, token string) bool {
	id, err := oracle.Authenticate(c.Request.Context(), token)
	if err != nil {
		xerr.Fail(c, err)
		return false
	}
	if err := registrar.Register(c.Request.Context(), id); err != nil {
		logger.Error("register identity failed", zap.String("user_id", id.ID), zap.Error(err))
		xerr.Fail(c, err)
		return false
	}
	utils.SetIdentity(c, id)
	return true
}

// AuthMiddleware 要求携带有效的 bearer 令牌
func AuthMiddleware(oracle identity.Oracle, registrar Registrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}
		if !authenticate(c, oracle, registrar, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth 匿名访问放行, 携带了令牌则必须有效
func OptionalAuth(oracle identity.Oracle, registrar Registrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			if c.GetHeader("Authorization") != "" {
				xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid Authorization header format")
				return
			}
			c.Next()
			return
		}
		if !authenticate(c, oracle, registrar, token) {
			return
		}
		c.Next()
	}
}

// RequireAdmin 必须在 AuthMiddleware 之后使用
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.GetIdentityFromContext(c)
		if !ok || !id.IsAdmin() {
			xerr.Fail(c, xerr.ErrPermissionDenied)
			return
		}
		c.Next()
	}
}
