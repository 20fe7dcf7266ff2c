package documents

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"review-portal/review-portal-backend/internal/auth"
	"review-portal/review-portal-backend/pkg/export"
)

type Handler struct {
	service  Service
	exporter *AuditExporter
	logger   *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		exporter: NewAuditExporter(service),
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	{
		docs.POST("/upload", h.Upload)
		docs.POST("/upload-url", h.UploadURL)
		docs.GET("", h.List)
		docs.GET("/inbox", h.Inbox)
		docs.GET("/:id", h.Get)
		docs.GET("/:id/download", h.Download)
		docs.GET("/:id/download-url", h.DownloadURL)
		docs.GET("/:id/versions", h.ListVersions)
		docs.GET("/:id/versions/:version", h.GetVersion)
		docs.POST("/:id/reupload", h.Reupload)
		docs.POST("/:id/submit", h.Submit)
		docs.POST("/:id/open", h.Open)
		docs.POST("/:id/approve", h.Approve)
		docs.POST("/:id/reject", h.Reject)
		docs.GET("/:id/tracking", h.Tracking)
		docs.GET("/:id/export", h.Export)
	}
}

// statusFor maps a workflow error kind to its HTTP status
func statusFor(err error) int {
	var werr *WorkflowError
	if !errors.As(err, &werr) {
		return http.StatusInternalServerError
	}
	switch werr.Kind {
	case KindInvalidTransition, KindStaleState:
		return http.StatusConflict
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindEmptySelection, KindReasonRequired, KindInvalidChain:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Document request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	body := gin.H{"error": UserMessage(err)}
	var werr *WorkflowError
	if errors.As(err, &werr) {
		body["code"] = kindNames[werr.Kind]
	}
	c.JSON(status, body)
}

var kindNames = map[ErrorKind]string{
	KindInvalidTransition: "invalid_transition",
	KindNotAuthorized:     "not_authorized",
	KindEmptySelection:    "empty_selection",
	KindReasonRequired:    "reason_required",
	KindStaleState:        "stale_state",
	KindInvalidChain:      "invalid_chain",
	KindNotFound:          "not_found",
	KindInvalidInput:      "invalid_input",
}

func actorOrAbort(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// expectedRevision reads the revision the client last observed, from the
// body value or the If-Match header. A precondition that is present but
// unreadable is refused, never treated as absent.
func expectedRevision(c *gin.Context, fromBody int64) (int64, bool) {
	if fromBody != 0 {
		return fromBody, true
	}
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" {
		return 0, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	rev, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || rev < 1 {
		invalidInput(c, "If-Match must carry a document revision")
		return 0, false
	}
	return rev, true
}

// positiveParam parses an optional numeric value; absent reads as 0
func positiveParam(c *gin.Context, raw, name string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		invalidInput(c, name+" must be a positive number")
		return 0, false
	}
	return n, true
}

func invalidInput(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": kindNames[KindInvalidInput]})
}

func fileFromForm(c *gin.Context) (FileUpload, func(), bool) {
	upload := FileUpload{
		FileReference: c.PostForm("file_reference"),
		FileName:      c.PostForm("file_name"),
	}
	if text := c.PostForm("summary"); text != "" || c.PostForm("tags") != "" {
		var tags []string
		if raw := c.PostForm("tags"); raw != "" {
			tags = strings.Split(raw, ",")
		}
		upload.Summary = &Summary{
			Text:            text,
			Tags:            tags,
			IsSelfGenerated: c.PostForm("summary_self_generated") == "true",
		}
	}
	if upload.FileReference != "" {
		upload.FileSizeBytes, _ = strconv.ParseInt(c.PostForm("file_size"), 10, 64)
		return upload, func() {}, true
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return upload, nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return upload, nil, false
	}
	upload.FileName = file.Filename
	upload.FileSizeBytes = file.Size
	upload.Content = f
	return upload, func() { f.Close() }, true
}

func (h *Handler) Upload(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	upload, done, ok := fileFromForm(c)
	if !ok {
		return
	}
	defer done()

	doc, err := h.service.UploadDocument(c.Request.Context(), UploadRequest{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		OwnerID:     actor.ID,
		File:        upload,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewDocumentView(doc, actor.ID, time.Now()))
}

func (h *Handler) UploadURL(c *gin.Context) {
	if _, ok := actorOrAbort(c); !ok {
		return
	}
	var req struct {
		FileName string `json:"file_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	url, ref, err := h.service.RequestUploadURL(c.Request.Context(), req.FileName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url, "file_reference": ref})
}

// List returns the caller's own documents, optionally filtered by status
func (h *Handler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	filter := DocumentFilter{OwnerID: actor.ID}
	for _, s := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, DocumentStatus(strings.ToUpper(s)))
	}
	docs, err := h.service.ListDocuments(c.Request.Context(), filter, actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Inbox(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	docs, err := h.service.ListInbox(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	view, err := h.service.GetDocument(c.Request.Context(), id, actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(view.Revision, 10))
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	version, ok := positiveParam(c, c.Query("version"), "version")
	if !ok {
		return
	}
	reader, v, err := h.service.DownloadDocument(c.Request.Context(), id, int(version))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, v.FileSizeBytes, "application/octet-stream", reader, map[string]string{
		"Content-Disposition": `attachment; filename="` + v.FileName + `"`,
	})
}

// DownloadURL hands out a presigned GET so large files skip the API
func (h *Handler) DownloadURL(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	version, ok := positiveParam(c, c.Query("version"), "version")
	if !ok {
		return
	}
	url, v, err := h.service.RequestDownloadURL(c.Request.Context(), id, int(version))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"download_url":   url,
		"version_number": v.VersionNumber,
		"file_name":      v.FileName,
	})
}

func (h *Handler) ListVersions(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	versions, err := h.service.ListVersions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *Handler) GetVersion(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	versionNum, err := strconv.Atoi(c.Param("version"))
	if err != nil || versionNum < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	version, err := h.service.GetDocumentVersion(c.Request.Context(), id, versionNum)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

type submitBody struct {
	Chain            Chain       `json:"chain"`
	Candidates       []Candidate `json:"candidates"`
	SelectedIndex    *int        `json:"selected_index"`
	Version          int         `json:"version"`
	DueAt            *time.Time  `json:"due_at"`
	ExpectedRevision int64       `json:"expected_revision"`
}

func (h *Handler) Submit(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rev, ok := expectedRevision(c, body.ExpectedRevision)
	if !ok {
		return
	}

	doc, err := h.service.Submit(c.Request.Context(), SubmitRequest{
		DocumentID:       id,
		ActorID:          actor.ID,
		Chain:            body.Chain,
		Candidates:       body.Candidates,
		SelectedIndex:    body.SelectedIndex,
		Version:          body.Version,
		DueAt:            body.DueAt,
		ExpectedRevision: rev,
	})
	h.respond(c, doc, actor.ID, err)
}

type reviewBody struct {
	Reason           string `json:"reason"`
	ExpectedRevision int64  `json:"expected_revision"`
}

func (h *Handler) review(c *gin.Context, action func(*gin.Context, ReviewRequest) (*Document, error)) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body reviewBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	rev, ok := expectedRevision(c, body.ExpectedRevision)
	if !ok {
		return
	}
	doc, err := action(c, ReviewRequest{
		DocumentID:       id,
		ActorID:          actor.ID,
		Reason:           body.Reason,
		ExpectedRevision: rev,
	})
	h.respond(c, doc, actor.ID, err)
}

func (h *Handler) Open(c *gin.Context) {
	h.review(c, func(c *gin.Context, req ReviewRequest) (*Document, error) {
		return h.service.OpenReview(c.Request.Context(), req)
	})
}

func (h *Handler) Approve(c *gin.Context) {
	h.review(c, func(c *gin.Context, req ReviewRequest) (*Document, error) {
		return h.service.Approve(c.Request.Context(), req)
	})
}

func (h *Handler) Reject(c *gin.Context) {
	h.review(c, func(c *gin.Context, req ReviewRequest) (*Document, error) {
		return h.service.Reject(c.Request.Context(), req)
	})
}

func (h *Handler) Reupload(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	upload, done, ok := fileFromForm(c)
	if !ok {
		return
	}
	defer done()

	fromForm, ok := positiveParam(c, c.PostForm("expected_revision"), "expected_revision")
	if !ok {
		return
	}
	rev, ok := expectedRevision(c, fromForm)
	if !ok {
		return
	}
	doc, err := h.service.Reupload(c.Request.Context(), ReuploadRequest{
		DocumentID:       id,
		ActorID:          actor.ID,
		File:             upload,
		ExpectedRevision: rev,
	})
	h.respond(c, doc, actor.ID, err)
}

func (h *Handler) respond(c *gin.Context, doc *Document, actorID string, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(doc.Revision, 10))
	c.JSON(http.StatusOK, NewDocumentView(doc, actorID, time.Now()))
}

func (h *Handler) Tracking(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	report, err := h.service.GetTracking(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Export(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatPDF)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(c.Request.Context(), id, format, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="review-`+id.String()+"."+string(format)+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
