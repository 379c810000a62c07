package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipart 表单的额外开销
const multipartOverhead = 1 << 20

type FileHandler struct {
	fileService explorer.FileService
	cfg         *config.QuotaConfig
}

func NewFileHandler(fileService explorer.FileService, cfg *config.QuotaConfig) *FileHandler {
	return &FileHandler{fileService: fileService, cfg: cfg}
}

// Upload handles encrypted file upload.
// @Summary 上传文件
// @Description 文件在服务端加密后写入对象存储, 计入用户配额
// @Tags 文件
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "上传的文件"
// @Success 201 {object} xerr.Response "上传成功"
// @Failure 403 {object} xerr.Response "配额不足或访客无权上传"
// @Failure 413 {object} xerr.Response "文件过大"
// @Router /api/v1/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	limit := int64(h.cfg.MaxUploadBytes)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			xerr.Fail(c, xerr.ErrFileTooLarge)
			return
		}
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "获取上传文件失败")
		return
	}
	if fileHeader.Size > limit {
		xerr.Fail(c, xerr.ErrFileTooLarge)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		logger.Error("open uploaded file failed", zap.Error(err))
		xerr.Fail(c, err)
		return
	}
	defer src.Close()
	content, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		logger.Error("read uploaded file failed", zap.Error(err))
		xerr.Fail(c, err)
		return
	}

	file, err := h.fileService.Upload(c.Request.Context(), actor, explorer.UploadInput{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  content,
	})
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusCreated, "文件上传成功", file)
}

func listQuery(c *gin.Context) explorer.ListFilesQuery {
	return explorer.ListFilesQuery{
		Search:    c.Query("search"),
		DateRange: c.DefaultQuery("date_range", "all"),
		FileType:  c.DefaultQuery("file_type", "all"),
		SortBy:    c.DefaultQuery("sort_by", "uploaded_at"),
		Order:     c.DefaultQuery("order", "desc"),
	}
}

// ListFiles handles listing the caller's files.
// @Summary 文件列表
// @Description 列出当前用户的文件, 支持按名称或类型搜索、上传时间区间、文件类型过滤和排序
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param search query string false "文件名或 MIME 类型关键字"
// @Param date_range query string false "上传时间区间" Enums(7days, 30days, 90days, all)
// @Param file_type query string false "文件类型" Enums(document, image, other, all)
// @Param sort_by query string false "排序字段" Enums(name, size, uploaded_at, type)
// @Param order query string false "排序方向" Enums(asc, desc)
// @Success 200 {object} xerr.Response "文件列表"
// @Failure 401 {object} xerr.Response "未认证"
// @Router /api/v1/files [get]
func (h *FileHandler) ListFiles(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	files, err := h.fileService.ListFiles(c.Request.Context(), actor, listQuery(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "Files listed successfully", files)
}

// RecentFiles handles listing files uploaded in the last 7 days.
// @Summary 最近上传的文件
// @Description 列出当前用户最近 7 天上传的文件
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param sort_by query string false "排序字段" Enums(name, size, uploaded_at, type)
// @Param order query string false "排序方向" Enums(asc, desc)
// @Success 200 {object} xerr.Response "文件列表"
// @Failure 401 {object} xerr.Response "未认证"
// @Router /api/v1/files/recent [get]
func (h *FileHandler) RecentFiles(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	files, err := h.fileService.RecentFiles(c.Request.Context(), actor, listQuery(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "Recent files listed successfully", files)
}

// GetFile handles retrieving file metadata.
// @Summary 获取文件信息
// @Description 所有者或被定向分享的用户查看文件元数据
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Success 200 {object} xerr.Response "文件信息"
// @Failure 403 {object} xerr.Response "无权访问"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{file_id} [get]
func (h *FileHandler) GetFile(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	file, err := h.fileService.GetFile(c.Request.Context(), actor, c.Param("file_id"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", file)
}

// Content handles viewing or downloading a file.
// @Summary 读取文件内容
// @Description 所有者或被定向分享的用户读取解密后的内容, download=true 时需要下载权限
// @Tags 文件
// @Produce octet-stream
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Param download query bool false "是否作为附件下载"
// @Success 200 {file} file "文件内容"
// @Failure 403 {object} xerr.Response "无权访问"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Failure 500 {object} xerr.Response "文件完整性校验失败"
// @Router /api/v1/files/{file_id}/content [get]
func (h *FileHandler) Content(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	download, _ := strconv.ParseBool(c.Query("download"))
	content, err := h.fileService.GetFileContent(c.Request.Context(), actor, c.Param("file_id"), download, clientInfo(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	writeContent(c, content.File.FileName, content.File.MimeType, content.Data, download)
}

// ExportKey handles exporting the file key to its owner.
// @Summary 导出文件密钥
// @Description 返回 base64 编码的文件密钥, 仅所有者可用
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Success 200 {object} xerr.Response "文件密钥"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{file_id}/key [get]
func (h *FileHandler) ExportKey(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	key, err := h.fileService.ExportKey(c.Request.Context(), actor, c.Param("file_id"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"file_id": c.Param("file_id"), "key": key})
}

// Delete handles deleting a file.
// @Summary 删除文件
// @Description 删除文件及其分享链接和定向分享, 归还配额
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param file_id path string true "文件ID"
// @Success 200 {object} xerr.Response "文件已删除"
// @Failure 403 {object} xerr.Response "无权操作"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{file_id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	if err := h.fileService.DeleteFile(c.Request.Context(), actor, c.Param("file_id")); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件已删除", nil)
}
