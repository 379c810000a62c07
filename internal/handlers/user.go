package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/admin"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService admin.UserService
}

func NewUserHandler(userService admin.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetUserProfile 处理获取已认证用户资料的请求。
// @Summary 获取当前用户资料
// @Description 返回身份信息与配额使用情况。
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "用户资料检索成功"
// @Failure 401 {object} xerr.Response "未授权"
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	profile, err := h.userService.GetUserProfile(c.Request.Context(), actor)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "成功获取用户资料", profile)
}

type ReconcileRequest struct {
	UserID string `json:"user_id"`
}

// ReconcileQuota handles a manual quota reconciliation.
// @Summary 校正配额
// @Description 管理员按文件实际大小重新计算已用空间, user_id 为空时校正全部用户
// @Tags User
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ReconcileRequest false "目标用户"
// @Success 200 {object} xerr.Response "配额已校正"
// @Failure 403 {object} xerr.Response "需要管理员权限"
// @Failure 404 {object} xerr.Response "用户不存在"
// @Router /api/v1/admin/quota/reconcile [post]
func (h *UserHandler) ReconcileQuota(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	var req ReconcileRequest
	// 请求体可以为空
	_ = c.ShouldBindJSON(&req)
	results, err := h.userService.ReconcileQuota(c.Request.Context(), actor, req.UserID)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "配额已校正", results)
}
