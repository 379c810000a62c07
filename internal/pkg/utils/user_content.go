package utils

import (
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// SetIdentity 由认证中间件写入
func SetIdentity(c *gin.Context, id *identity.Identity) {
	c.Set(identityKey, id)
}

// GetIdentityFromContext 从 Gin 上下文中获取当前身份, 匿名访问返回 nil, false
func GetIdentityFromContext(c *gin.Context) (*identity.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok && id != nil
}
