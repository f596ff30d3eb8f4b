package fileHandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/drive"
	"dataroom-service/internal/handler/response"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/service/auditService"
	"dataroom-service/internal/service/fileService"
	"dataroom-service/internal/service/importService"
	"dataroom-service/pkg/logger"
	"dataroom-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type FileService interface {
	ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*fileInfo.File, error)
	Open(ctx context.Context, userID, fileID uuid.UUID, rangeHeader string, event auditLog.AccessEvent, ac auditService.AccessContext) (*fileService.Content, error)
	Delete(ctx context.Context, userID, fileID uuid.UUID, ac auditService.AccessContext) error
	Verify(ctx context.Context, userID, fileID uuid.UUID) (*fileService.Verification, error)
}

type Importer interface {
	Reconcile(ctx context.Context, p importService.Principal, ids []string) (*importService.BatchResult, error)
}

type DriveLister interface {
	ListPage(ctx context.Context, ts oauth2.TokenSource, folderID, pageToken string, pageSize int) (*drive.Page, error)
}

// Credentials hands out the Drive token source of a signed-in user.
type Credentials interface {
	DriveTokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
}

type Handler struct {
	files    FileService
	importer Importer
	drive    DriveLister
	creds    Credentials
	auth     middleware.TokenValidator
}

func New(files FileService, importer Importer, lister DriveLister, creds Credentials, auth middleware.TokenValidator) *Handler {
	return &Handler{files: files, importer: importer, drive: lister, creds: creds, auth: auth}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/files", middleware.Auth(h.auth))
	g.GET("", h.list)
	g.GET("/drive", h.listDrive)
	g.POST("/import", h.importFiles)
	g.GET("/:id/view", h.view)
	g.GET("/:id/verify", h.verify)
	g.DELETE("/:id", h.delete)
}

type importRequest struct {
	FileIDs []string `json:"file_ids" binding:"required"`
}

func (h *Handler) list(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	allVersions, _ := strconv.ParseBool(c.DefaultQuery("all_versions", "false"))

	files, err := h.files.ListForUser(c.Request.Context(), uid, repository.ListOptions{IncludeAllVersions: allVersions})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) listDrive(c *gin.Context) {
	pageSize := drive.DefaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > drive.MaxPageSize {
			response.BadRequest(c, fmt.Sprintf("page_size must be between 1 and %d", drive.MaxPageSize))
			return
		}
		pageSize = n
	}

	ts, ok := h.tokenSource(c)
	if !ok {
		return
	}
	page, err := h.drive.ListPage(c.Request.Context(), ts, c.Query("folder_id"), c.Query("page_token"), pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) importFiles(c *gin.Context) {
	var req importRequest
	if !response.BindJSON(c, &req) {
		return
	}
	uid, _ := middleware.UserID(c)
	ts, ok := h.tokenSource(c)
	if !ok {
		return
	}

	res, err := h.importer.Reconcile(c.Request.Context(), importService.Principal{UserID: uid, Drive: ts}, req.FileIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) view(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	uid, _ := middleware.UserID(c)
	download := c.Query("download") == "1" || c.Query("download") == "true"
	event := auditLog.AccessView
	if download {
		event = auditLog.AccessDownload
	}

	content, err := h.files.Open(c.Request.Context(), uid, fileID, c.GetHeader("Range"), event, accessContext(c))
	if err != nil {
		if errors.Is(err, apperr.ErrRangeNotSatisfiable) && content != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", content.File.SizeBytes))
		}
		response.Error(c, err)
		return
	}
	defer content.Body.Close()

	file := content.File
	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.OriginalName}))
	c.Header("Accept-Ranges", "bytes")
	if file.Checksum != nil {
		c.Header("ETag", strconv.Quote(*file.Checksum))
	}

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	status, length := http.StatusOK, file.SizeBytes
	if content.Range != nil {
		status, length = http.StatusPartialContent, content.Range.Length()
		c.Header("Content-Range", content.Range.ContentRange(file.SizeBytes))
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Status(status)

	if _, err := io.Copy(c.Writer, content.Body); err != nil {
		logger.GetLogger(c.Request.Context()).Warn("file stream interrupted",
			zap.String("file_id", fileID.String()), zap.Error(err))
	}
}

func (h *Handler) verify(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	uid, _ := middleware.UserID(c)
	v, err := h.files.Verify(c.Request.Context(), uid, fileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) delete(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	uid, _ := middleware.UserID(c)
	if err := h.files.Delete(c.Request.Context(), uid, fileID, accessContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) tokenSource(c *gin.Context) (oauth2.TokenSource, bool) {
	uid, _ := middleware.UserID(c)
	ts, err := h.creds.DriveTokenSource(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return ts, true
}

func fileIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid file id")
		return uuid.Nil, false
	}
	return id, true
}

func accessContext(c *gin.Context) auditService.AccessContext {
	return auditService.AccessContext{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
