package server

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"udg-chat/internal/httputil"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// presignUpload 發放一次性的附件上傳位置
func (a *API) presignUpload(c *gin.Context) {
	var req message.UploadTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}
	if err := message.ValidateFileName(req.Filename); err != nil {
		httputil.BadRequestWithCode(c, httputil.ErrorCodeInvalidFile, err.Error())
		return
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(req.Filename))
	}

	key, uploadURL, fileURL := a.uploads.issue(req.Filename, contentType)
	logger.Debug(c.Request.Context(), "發放上傳位置",
		logger.WithUserID(middleware.GetUserID(c)),
		logger.WithDetails(map[string]interface{}{"key": key, "content_type": contentType}))

	httputil.OK(c, httputil.DataCreated, message.UploadTarget{UploadURL: uploadURL, FileURL: fileURL})
}

// receiveUpload 接收 PUT 上傳的檔案內容（key 即授權）
func (a *API) receiveUpload(c *gin.Context) {
	size, err := a.uploads.accept(c.Param("key"), c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httputil.TooLarge(c, httputil.FileTooLarge)
		case errors.Is(err, errInvalidKey), errors.Is(err, errUnknownUpload):
			httputil.NotFoundError(c, httputil.NotFound)
		default:
			httputil.InternalServerError(c, err)
		}
		return
	}

	httputil.OK(c, httputil.FileUploaded, gin.H{"size": size})
}

// serveFile 提供已上傳的附件
func (a *API) serveFile(c *gin.Context) {
	path, contentType, err := a.uploads.path(c.Param("key"))
	if err != nil {
		if errors.Is(err, errInvalidKey) || errors.Is(err, os.ErrNotExist) {
			httputil.NotFoundError(c, httputil.NotFound)
			return
		}
		httputil.InternalServerError(c, err)
		return
	}

	c.Header("Content-Type", contentType)
	c.File(path)
}
