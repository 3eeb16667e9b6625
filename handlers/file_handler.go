package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"sentinel-edge/service"
	"sentinel-edge/storage"

	"github.com/gin-gonic/gin"
)

// FileHandler serves uploaded documents back to the client
type FileHandler struct {
	jobService *service.JobService
}

// NewFileHandler creates a new file handler
func NewFileHandler(jobService *service.JobService) *FileHandler {
	return &FileHandler{jobService: jobService}
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	id, ok := parseID(c, "file")
	if !ok {
		return
	}

	file, rc, err := h.jobService.OpenFile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortError(c, http.StatusNotFound, "NOT_FOUND", "File not found")
			return
		}
		abortError(c, http.StatusInternalServerError, "DOWNLOAD_FAILED", fmt.Sprintf("Failed to download file: %v", err))
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.Filename),
	})
}
