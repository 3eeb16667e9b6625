package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sentinel-edge/logger"
	"sentinel-edge/models"
	"sentinel-edge/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnalysisHandler handles HTTP requests for document analyses
type AnalysisHandler struct {
	jobService  *service.JobService
	maxFileSize int64
	jobTimeout  time.Duration
	wg          sync.WaitGroup
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(jobService *service.JobService, maxFileSize int64, jobTimeout time.Duration) *AnalysisHandler {
	if maxFileSize <= 0 {
		maxFileSize = 20 << 20
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &AnalysisHandler{
		jobService:  jobService,
		maxFileSize: maxFileSize,
		jobTimeout:  jobTimeout,
	}
}

// Wait blocks until every background job started by Analyze has finished
func (h *AnalysisHandler) Wait() {
	h.wg.Wait()
}

// Analyze handles POST /api/analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	mode, err := models.ParseAnalysisMode(c.PostForm("selection"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_SELECTION", err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortError(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		abortError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortError(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	job, err := h.jobService.Submit(c.Request.Context(), service.SubmitRequest{
		Filename:   fileHeader.Filename,
		Mode:       mode,
		UserPrompt: c.PostForm("prompt"),
		Size:       fileHeader.Size,
		Data:       file,
		UserID:     userID(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFile):
			abortError(c, http.StatusBadRequest, "UNSUPPORTED_FILE", err.Error())
		case errors.Is(err, service.ErrUnknownMode):
			abortError(c, http.StatusBadRequest, "INVALID_SELECTION", err.Error())
		default:
			abortError(c, http.StatusInternalServerError, "SUBMIT_FAILED", err.Error())
		}
		return
	}

	// Run in background, the client polls status
	h.wg.Add(1)
	go func(jobID uuid.UUID) {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.jobTimeout)
		defer cancel()
		if err := h.jobService.Process(ctx, jobID); err != nil {
			logger.Log.WithField("job_id", jobID).Warnf("analysis job failed: %v", err)
		}
	}(job.ID)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.ID,
		"filename": job.Filename,
		"status":   job.Status,
	})
}

// Status handles GET /api/status/:id
func (h *AnalysisHandler) Status(c *gin.Context) {
	id, ok := parseID(c, "job")
	if !ok {
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), id)
	if err != nil {
		h.jobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       job.ID,
		"status":       job.Status,
		"progress":     job.Progress,
		"filename":     job.Filename,
		"selection":    job.Mode,
		"current_step": job.CurrentStep,
		"steps":        job.Steps,
		"error":        job.ErrorMessage,
	})
}

// Report handles GET /api/report/:id
func (h *AnalysisHandler) Report(c *gin.Context) {
	id, ok := parseID(c, "job")
	if !ok {
		return
	}

	report, err := h.jobService.Report(c.Request.Context(), id)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ReportHTML handles GET /api/report/:id/html
func (h *AnalysisHandler) ReportHTML(c *gin.Context) {
	id, ok := parseID(c, "job")
	if !ok {
		return
	}

	report, err := h.jobService.Report(c.Request.Context(), id)
	if errors.Is(err, service.ErrJobNotComplete) {
		c.Data(http.StatusAccepted, "text/html; charset=utf-8", []byte("<p>Not ready yet</p>"))
		return
	}
	if err != nil {
		h.jobError(c, err)
		return
	}

	page, err := service.RenderHTML(report)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "RENDER_FAILED", err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", report.Filename+".report.html"))
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// History handles GET /api/history
func (h *AnalysisHandler) History(c *gin.Context) {
	entries, err := h.jobService.History(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Delete handles DELETE /api/job/:id
func (h *AnalysisHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "job")
	if !ok {
		return
	}

	if err := h.jobService.Delete(c.Request.Context(), id); err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *AnalysisHandler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		abortError(c, http.StatusNotFound, "NOT_FOUND", "Job not found")
	case errors.Is(err, service.ErrJobNotComplete):
		abortError(c, http.StatusAccepted, "NOT_READY", "Analysis not complete yet")
	default:
		abortError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
