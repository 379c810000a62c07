package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/share"
	"github.com/gin-gonic/gin"
)

type GrantHandler struct {
	directService share.DirectShareService
}

func NewGrantHandler(directService share.DirectShareService) *GrantHandler {
	return &GrantHandler{directService: directService}
}

type GrantRequest struct {
	Email      string            `json:"email" binding:"required"`
	Permission models.Permission `json:"permission" binding:"required"`
}

// Grant handles sharing a file with a registered user.
// @Summary 定向分享文件
// @Description 按邮箱把文件分享给已登记用户, 重复授权会更新权限
// @Tags 定向分享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Param request body GrantRequest true "接收者邮箱和权限"
// @Success 200 {object} xerr.Response "分享成功"
// @Failure 400 {object} xerr.Response "请求参数无效"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "文件或用户不存在"
// @Router /api/v1/files/{file_id}/grants [post]
func (h *GrantHandler) Grant(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}
	grant, err := h.directService.Grant(c.Request.Context(), actor, c.Param("file_id"), req.Email, req.Permission)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享成功", grant)
}

// Revoke handles removing a direct share.
// @Summary 取消定向分享
// @Tags 定向分享
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Param recipient_id path string true "接收者ID"
// @Success 200 {object} xerr.Response "已取消分享"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "分享不存在"
// @Router /api/v1/files/{file_id}/grants/{recipient_id} [delete]
func (h *GrantHandler) Revoke(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	if err := h.directService.Revoke(c.Request.Context(), actor, c.Param("file_id"), c.Param("recipient_id")); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "已取消分享", nil)
}

// ListForFile handles listing direct shares of a file.
// @Summary 文件的定向分享列表
// @Tags 定向分享
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Success 200 {object} xerr.Response "定向分享列表"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{file_id}/grants [get]
func (h *GrantHandler) ListForFile(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	grants, err := h.directService.ListForFile(c.Request.Context(), actor, c.Param("file_id"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", grants)
}

// Received handles listing files shared with the caller.
// @Summary 分享给我的文件
// @Tags 定向分享
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "定向分享列表"
// @Failure 401 {object} xerr.Response "未认证"
// @Router /api/v1/grants/received [get]
func (h *GrantHandler) Received(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	grants, err := h.directService.ListForRecipient(c.Request.Context(), actor)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", grants)
}
