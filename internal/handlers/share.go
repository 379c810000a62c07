package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/share"
	"github.com/gin-gonic/gin"
)

type ShareHandler struct {
	shareService share.ShareService
	cfg          *config.ServerConfig
}

func NewShareHandler(shareService share.ShareService, cfg *config.ServerConfig) *ShareHandler {
	return &ShareHandler{shareService: shareService, cfg: cfg}
}

type CreateShareRequest struct {
	FileID         string `json:"file_id" binding:"required"`
	ExpiryHours    int    `json:"expiry_hours"`
	Password       string `json:"password"`
	MaxAccessCount *int64 `json:"max_access_count"`
}

type SharePasswordRequest struct {
	Password string `json:"password"`
}

type shareLinkResponse struct {
	models.ShareLink
	URL string `json:"url"`
}

func (h *ShareHandler) linkURL(token string) string {
	return fmt.Sprintf("%s/s/%s", strings.TrimRight(h.cfg.BaseURL, "/"), token)
}

// CreateShare handles creation of a new share link.
// @Summary 创建分享链接
// @Description 为指定文件创建可分享链接，可设置密码、有效期和最大访问次数
// @Tags 分享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateShareRequest true "分享链接信息"
// @Success 201 {object} xerr.Response "分享链接创建成功"
// @Failure 400 {object} xerr.Response "请求参数无效"
// @Failure 403 {object} xerr.Response "无权操作或链接数量已达上限"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/shares [post]
func (h *ShareHandler) CreateShare(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	link, err := h.shareService.CreateLink(c.Request.Context(), actor, share.CreateLinkInput{
		FileID:         req.FileID,
		ExpiryHours:    req.ExpiryHours,
		Password:       req.Password,
		MaxAccessCount: req.MaxAccessCount,
	})
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusCreated, "分享链接创建成功", shareLinkResponse{ShareLink: *link, URL: h.linkURL(link.Token)})
}

// ListShares handles listing the caller's share links.
// @Summary 分享链接列表
// @Description 列出当前用户创建的全部分享链接, 包括已过期的
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "分享链接列表"
// @Failure 401 {object} xerr.Response "未认证"
// @Router /api/v1/shares [get]
func (h *ShareHandler) ListShares(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	links, err := h.shareService.ListLinks(c.Request.Context(), actor)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	resp := make([]shareLinkResponse, 0, len(links))
	for _, l := range links {
		resp = append(resp, shareLinkResponse{ShareLink: l, URL: h.linkURL(l.Token)})
	}
	xerr.Success(c, http.StatusOK, "ok", resp)
}

// RevokeShare handles revoking a share link.
// @Summary 撤销分享链接
// @Description 链接立即过期, 访问记录保留
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param link_id path int true "分享链接ID"
// @Success 200 {object} xerr.Response "分享链接已撤销"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Router /api/v1/shares/{link_id} [delete]
func (h *ShareHandler) RevokeShare(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	linkID, ok := parseUintParam(c, "link_id")
	if !ok {
		return
	}
	if err := h.shareService.RevokeLink(c.Request.Context(), actor, linkID); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享链接已撤销", nil)
}

// SetPassword handles setting or clearing a share link password.
// @Summary 设置分享密码
// @Description 密码为空时取消密码, 已签发的访问令牌随之失效
// @Tags 分享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param link_id path int true "分享链接ID"
// @Param request body SharePasswordRequest true "新密码"
// @Success 200 {object} xerr.Response "分享密码已更新"
// @Failure 400 {object} xerr.Response "请求参数无效"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Router /api/v1/shares/{link_id}/password [put]
func (h *ShareHandler) SetPassword(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	linkID, ok := parseUintParam(c, "link_id")
	if !ok {
		return
	}
	var req SharePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}
	if err := h.shareService.SetLinkPassword(c.Request.Context(), actor, linkID, req.Password); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享密码已更新", nil)
}

// GetSharedFile handles retrieving details of a share link.
// @Summary 获取分享链接详情
// @Description 返回文件名、大小和剩余次数，不消耗访问次数
// @Tags 分享
// @Produce json
// @Param token path string true "分享令牌"
// @Success 200 {object} xerr.Response "分享链接详情"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Failure 410 {object} xerr.Response "分享链接已过期或次数已用完"
// @Router /s/{token} [get]
func (h *ShareHandler) GetSharedFile(c *gin.Context) {
	view, err := h.shareService.GetSharedFile(c.Request.Context(), c.Param("token"), optionalIdentity(c), clientInfo(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", view)
}

// VerifyPassword handles password verification for a share link.
// @Summary 校验分享密码
// @Description 密码正确时签发短期访问令牌, 下载时放在 X-Share-Access-Token 请求头中
// @Tags 分享
// @Accept json
// @Produce json
// @Param token path string true "分享令牌"
// @Param request body SharePasswordRequest true "分享密码"
// @Success 200 {object} xerr.Response "密码验证成功"
// @Failure 400 {object} xerr.Response "密码为空或链接无需密码"
// @Failure 401 {object} xerr.Response "密码错误"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Failure 410 {object} xerr.Response "分享链接已过期或次数已用完"
// @Router /s/{token}/verify [post]
func (h *ShareHandler) VerifyPassword(c *gin.Context) {
	var req SharePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "密码不能为空")
		return
	}
	grant, err := h.shareService.VerifyPassword(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "密码验证成功", grant)
}

// Download handles downloading a shared file.
// @Summary 下载分享文件
// @Description 消耗一次访问次数, 返回明文, 文件密钥放在 X-File-Key 响应头中
// @Tags 分享
// @Produce octet-stream
// @Param token path string true "分享令牌"
// @Param X-Share-Access-Token header string false "密码校验后获得的访问令牌"
// @Success 200 {file} file "文件内容"
// @Failure 401 {object} xerr.Response "缺少或无效的访问令牌"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Failure 410 {object} xerr.Response "分享链接已过期或次数已用完"
// @Router /s/{token}/download [get]
func (h *ShareHandler) Download(c *gin.Context) {
	dl, err := h.shareService.DownloadSharedFile(c.Request.Context(), c.Param("token"), c.GetHeader(shareAccessHeader), optionalIdentity(c), clientInfo(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	c.Header(fileKeyHeader, dl.Key)
	c.Header("Cache-Control", "no-store")
	writeContent(c, dl.File.FileName, dl.File.MimeType, dl.Data, true)
}
