package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/gin-gonic/gin"
)

// 分享访问令牌放在请求头里, 不进入 URL
const shareAccessHeader = "X-Share-Access-Token"

// 链接下载时返回 base64 编码的文件密钥
const fileKeyHeader = "X-File-Key"

// currentIdentity 认证中间件之后一定存在, 缺失时直接 401
func currentIdentity(c *gin.Context) (*identity.Identity, bool) {
	id, ok := utils.GetIdentityFromContext(c)
	if !ok {
		xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, xerr.ErrUnauthorized.Error())
		return nil, false
	}
	return id, true
}

func optionalIdentity(c *gin.Context) *identity.Identity {
	id, _ := utils.GetIdentityFromContext(c)
	return id
}

func clientInfo(c *gin.Context) ledger.Client {
	return ledger.Client{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		xerr.Fail(c, fmt.Errorf("%w: %s", xerr.ErrInvalidParams, name))
		return 0, false
	}
	return v, true
}

func queryDays(c *gin.Context) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return ledger.DefaultHistoryDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		xerr.Fail(c, fmt.Errorf("%w: days", xerr.ErrInvalidParams))
		return 0, false
	}
	return days, true
}

// writeContent 以附件或内联方式返回明文
func writeContent(c *gin.Context, name, mimeType string, data []byte, attachment bool) {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	c.Header("X-Content-Type-Options", "nosniff")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Data(http.StatusOK, mimeType, data)
}
