package rewrites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/ats"
	"resume-revamp/internal/extract"
	"resume-revamp/internal/llm/prompts"
	"resume-revamp/internal/packaging"
	"resume-revamp/internal/shared/server/middleware"
	"resume-revamp/internal/shared/server/respond"
	"resume-revamp/internal/usage"
)

// MaxUploadBytes bounds the résumé file.
const MaxUploadBytes = 10 << 20

// Handler wires HTTP handlers to the rewrite service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches rewrite routes. limit guards the endpoints that call the LLM.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limit ...gin.HandlerFunc) {
	rg.POST("/rewrite", append(limit, h.rewrite)...)
	rg.POST("/ats-audit", h.atsAudit)
	rg.GET("/rewrites", h.listRewrites)
	rg.GET("/rewrites/:id", h.getRewrite)
	rg.GET("/rewrites/:id/package", h.downloadPackage)
	rg.POST("/rewrites/:id/email", append(limit, h.emailPackage)...)
}

func (h *Handler) rewrite(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+1<<20)

	fh, err := c.FormFile("resume")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "resume file exceeds 10MB", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "resume file is required", []map[string]string{
			{"field": "resume", "issue": "required"},
		})
		return
	}
	if fh.Size > MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "resume file exceeds 10MB", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read resume file", nil)
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read resume file", nil)
		return
	}

	jobDesc := strings.TrimSpace(c.PostForm("job_desc"))
	if jobDesc == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job_desc is required", []map[string]string{
			{"field": "job_desc", "issue": "required"},
		})
		return
	}
	if _, err := prompts.ParseTone(c.PostForm("tone")); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
			{"field": "tone", "issue": "invalid"},
		})
		return
	}
	if raw := c.PostForm("prompt_version"); raw != "" {
		if _, err := prompts.ParseVersion(raw); err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_prompt_version", err.Error(), nil)
			return
		}
	}
	preview := false
	if raw := strings.TrimSpace(c.PostForm("preview")); raw != "" {
		preview, err = strconv.ParseBool(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "preview must be a boolean", nil)
			return
		}
	}
	emailTo := strings.TrimSpace(c.PostForm("email_to"))
	if emailTo != "" && !validEmail(emailTo) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email_to is not a valid address", []map[string]string{
			{"field": "email_to", "issue": "invalid"},
		})
		return
	}

	out, err := h.Svc.Rewrite(c.Request.Context(), Input{
		UserID:         middleware.UserIDFromContext(c),
		RequestID:      middleware.RequestIDFromContext(c),
		FileName:       fh.Filename,
		ContentType:    fh.Header.Get("Content-Type"),
		File:           data,
		JobDescription: jobDesc,
		Tone:           c.PostForm("tone"),
		PromptVersion:  c.PostForm("prompt_version"),
		CompanyName:    strings.TrimSpace(c.PostForm("company_name")),
		RecipientName:  strings.TrimSpace(c.PostForm("recipient_name")),
		SenderName:     strings.TrimSpace(c.PostForm("sender_name")),
		SenderEmail:    strings.TrimSpace(c.PostForm("sender_email")),
		SenderPhone:    strings.TrimSpace(c.PostForm("sender_phone")),
		EmailTo:        emailTo,
		Package:        !preview,
	})
	rewriteID := out.Rewrite.ID
	var stepErr *StepError
	if rewriteID == "" && errors.As(err, &stepErr) {
		rewriteID = stepErr.RewriteID
	}
	if rewriteID != "" {
		c.Set("rewriteId", rewriteID)
		c.Header("X-Rewrite-Id", rewriteID)
	}
	if err != nil {
		writeRewriteError(c, err, rewriteID)
		return
	}

	if preview {
		respond.OK(c, gin.H{
			"rewrite_id":   out.Rewrite.ID,
			"status":       out.Rewrite.Status,
			"resume":       out.Rewrite.Resume,
			"cover_letter": out.Rewrite.CoverLetter,
			"ats_audit":    out.Rewrite.Audit,
		})
		return
	}
	respond.Attachment(c, packaging.ContentType, packageFileName(out.Rewrite.ID), out.Package.Zip)
}

type auditRequest struct {
	Resume         json.RawMessage `json:"resume"`
	ResumeText     *string         `json:"resume_text"`
	JobDescription string          `json:"job_description"`
}

func (h *Handler) atsAudit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
		return
	}

	var result ats.Result
	switch {
	case len(req.Resume) > 0 && string(req.Resume) != "null":
		res, err := ats.AuditRecord(req.Resume, req.JobDescription)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_input_shape", err.Error(), nil)
			return
		}
		result = res
	case req.ResumeText != nil:
		result = ats.KeywordMatchScore(*req.ResumeText, req.JobDescription)
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "resume or resume_text is required", []map[string]string{
			{"field": "resume", "issue": "required"},
		})
		return
	}
	respond.OK(c, gin.H{"ats_audit": result})
}

func (h *Handler) listRewrites(c *gin.Context) {
	if !h.requireStableIdentity(c) {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		writeStoreError(c, err, "failed to list rewrites")
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, rw := range items {
		item := gin.H{
			"id":             rw.ID,
			"status":         rw.Status,
			"prompt_version": rw.PromptVersion,
			"tone":           rw.Tone,
			"file_name":      rw.FileName,
			"has_package":    rw.HasPackage(),
			"created_at":     rw.CreatedAt,
		}
		if rw.Audit != nil {
			item["ats_score"] = rw.Audit.Score
		}
		if rw.FailureCategory != "" {
			item["failure_category"] = rw.FailureCategory
		}
		resp = append(resp, item)
	}
	respond.OK(c, gin.H{"items": resp, "limit": ClampLimit(limit)})
}

func (h *Handler) getRewrite(c *gin.Context) {
	if !h.requireStableIdentity(c) {
		return
	}
	c.Set("rewriteId", c.Param("id"))
	rw, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeStoreError(c, err, "failed to fetch rewrite")
		return
	}
	resp := gin.H{"rewrite": rw, "has_package": rw.HasPackage()}
	respond.OK(c, resp)
}

func (h *Handler) downloadPackage(c *gin.Context) {
	if !h.requireStableIdentity(c) {
		return
	}
	id := c.Param("id")
	c.Set("rewriteId", id)
	rc, _, err := h.Svc.OpenPackage(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		writeStoreError(c, err, "failed to open package")
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, packaging.ContentType, rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + packageFileName(id) + `"`,
		"X-Rewrite-Id":        id,
	})
}

type emailRequest struct {
	EmailTo string `json:"email_to"`
}

func (h *Handler) emailPackage(c *gin.Context) {
	if !h.requireStableIdentity(c) {
		return
	}
	id := c.Param("id")
	c.Set("rewriteId", id)

	var req emailRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
			return
		}
	}
	emailTo := strings.TrimSpace(req.EmailTo)
	if emailTo == "" {
		emailTo = middleware.UserEmailFromContext(c)
	}
	if emailTo != "" && !validEmail(emailTo) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email_to is not a valid address", nil)
		return
	}

	rw, err := h.Svc.Resend(c.Request.Context(), middleware.UserIDFromContext(c), id, emailTo, middleware.RequestIDFromContext(c))
	if err != nil {
		writeStoreError(c, err, "failed to send package")
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"rewrite_id": rw.ID,
		"email_to":   rw.EmailTo,
		"status":     rw.Status,
	})
}

// requireStableIdentity keeps IP-derived identities away from stored history,
// since many callers can share one address.
func (h *Handler) requireStableIdentity(c *gin.Context) bool {
	if middleware.IdentityKindFromContext(c) == middleware.IdentityAnon {
		respond.Error(c, http.StatusUnauthorized, "identity_required", "Send a token or X-Guest-Id to access rewrite history", nil)
		return false
	}
	return true
}

func writeRewriteError(c *gin.Context, err error, rewriteID string) {
	var details any
	if rewriteID != "" {
		details = gin.H{"rewrite_id": rewriteID}
	}
	switch {
	case errors.Is(err, usage.ErrQuotaExceeded):
		respond.Error(c, http.StatusTooManyRequests, "quota_exceeded", "You've used all rewrites for this week.", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, extract.ErrUnsupportedType):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_file_type", "Upload a PDF, DOCX or plain text résumé", details)
	case errors.Is(err, extract.ErrEmptyText):
		respond.Error(c, http.StatusUnprocessableEntity, "empty_text", "No text could be extracted from the résumé", details)
	case errors.Is(err, ErrInvalidLLMOutput):
		respond.Error(c, http.StatusUnprocessableEntity, "invalid_llm_output", "The model did not return a usable résumé; try again or request a preview", details)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", details)
	default:
		switch CategoryOf(err) {
		case CategoryExtract:
			respond.Error(c, http.StatusUnprocessableEntity, CategoryExtract, "Could not read the résumé file", details)
		case CategoryLLM:
			respond.Error(c, http.StatusBadGateway, CategoryLLM, "The language model request failed", details)
		case CategoryRender:
			respond.Error(c, http.StatusInternalServerError, CategoryRender, "Could not render documents", details)
		case CategoryStorage:
			respond.Error(c, http.StatusInternalServerError, CategoryStorage, "Could not store results", details)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "rewrite failed", details)
		}
	}
}

func writeStoreError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "rewrite not found", nil)
	case errors.Is(err, ErrNoPackage):
		respond.Error(c, http.StatusNotFound, "package_not_found", "this rewrite has no stored package", nil)
	case errors.Is(err, ErrDeliveryUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "delivery_unavailable", "email delivery is not configured", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

func packageFileName(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("resume_revamp_%s.zip", short)
}
