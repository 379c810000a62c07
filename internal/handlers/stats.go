package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	statsService ledger.StatsService
}

func NewStatsHandler(statsService ledger.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// FileStats handles retrieving access statistics of a file.
// @Summary 文件访问统计
// @Description 浏览、下载、独立访客和分享数量, 所有者或管理员可查看
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Success 200 {object} xerr.Response "文件统计"
// @Failure 403 {object} xerr.Response "无权查看"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{file_id}/stats [get]
func (h *StatsHandler) FileStats(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	stats, err := h.statsService.FileStats(c.Request.Context(), actor, c.Param("file_id"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", stats)
}

// OwnerStats handles retrieving the caller's usage summary.
// @Summary 用户使用统计
// @Description 存储与链接配额使用情况及访问汇总
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "用户统计"
// @Failure 401 {object} xerr.Response "未认证"
// @Router /api/v1/users/me/stats [get]
func (h *StatsHandler) OwnerStats(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	stats, err := h.statsService.OwnerStats(c.Request.Context(), actor)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", stats)
}

// AccessHistory handles listing recent access events of a file.
// @Summary 文件访问记录
// @Description 最近若干天的访问记录, 默认 30 天
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Param days query int false "天数"
// @Success 200 {object} xerr.Response "访问记录"
// @Failure 400 {object} xerr.Response "天数无效"
// @Failure 403 {object} xerr.Response "无权查看"
// @Router /api/v1/files/{file_id}/history [get]
func (h *StatsHandler) AccessHistory(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	days, ok := queryDays(c)
	if !ok {
		return
	}
	events, err := h.statsService.AccessHistory(c.Request.Context(), actor, c.Param("file_id"), days)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", events)
}

// DailyBreakdown handles per-day access counts of a file.
// @Summary 文件每日访问统计
// @Description 按 UTC 日期分组的浏览和下载次数
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Param days query int false "天数"
// @Success 200 {object} xerr.Response "每日统计"
// @Failure 400 {object} xerr.Response "天数无效"
// @Failure 403 {object} xerr.Response "无权查看"
// @Router /api/v1/files/{file_id}/daily [get]
func (h *StatsHandler) DailyBreakdown(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	days, ok := queryDays(c)
	if !ok {
		return
	}
	daily, err := h.statsService.DailyBreakdown(c.Request.Context(), actor, c.Param("file_id"), days)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", daily)
}
