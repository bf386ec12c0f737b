package routes

import (
	"context"
	"errors"
	"io"
	"net/http"

	"llm-chatbot/internal/config"
	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/queue"
	"llm-chatbot/middleware"
	"llm-chatbot/models"
	"llm-chatbot/services"
	"llm-chatbot/utils"

	"github.com/gin-gonic/gin"
)

// Enqueuer hands documents to the background worker.
type Enqueuer interface {
	EnqueueIngest(ctx context.Context, filename string, content []byte) (string, error)
	TaskStatus(ctx context.Context, taskID string) (string, error)
}

// SetupDocumentRoutes registers the upload endpoints. They only exist in rag
// mode.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, ingester services.Ingester, enqueuer Enqueuer) {
	// Multipart framing adds a little on top of the file itself.
	limit := cfg.MaxFileSize + 1<<20

	router.POST("/upload_pdf", middleware.RequestSizeLimit(limit), handleUpload(cfg, ingester, enqueuer))
	router.GET("/upload_pdf/status/:task_id", handleUploadStatus(enqueuer))
}

func handleUpload(cfg *config.Config, ingester services.Ingester, enqueuer Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("pdf_file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "Request body exceeds maximum size", nil)
				return
			}
			utils.RespondWithAppError(c, utils.NewAppError(utils.KindInvalidInput, "No PDF file provided", err))
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "File size exceeds maximum limit",
				gin.H{"max_size": cfg.MaxFileSize})
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithAppError(c, utils.NewAppError(utils.KindInvalidInput, "Cannot read uploaded file", err))
			return
		}

		if c.Query("async") == "true" {
			if !cfg.AsyncIngestionEnabled() {
				utils.RespondWithAppError(c, utils.NewAppError(utils.KindQueueUnavailable, "Background ingestion is unavailable", queue.ErrQueueUnavailable))
				return
			}
			taskID, err := enqueuer.EnqueueIngest(c.Request.Context(), header.Filename, content)
			if err != nil {
				kind := utils.KindInternal
				if errors.Is(err, queue.ErrQueueUnavailable) {
					kind = utils.KindQueueUnavailable
				}
				logger.Error("Failed to enqueue PDF", "request_id", middleware.GetRequestID(c), "filename", header.Filename, "error", err)
				utils.RespondWithAppError(c, utils.NewAppError(kind, "Background ingestion is unavailable", err))
				return
			}
			c.JSON(http.StatusAccepted, models.AsyncUploadResponse{
				Message:  "PDF upload accepted for processing",
				TaskID:   taskID,
				Status:   models.PDFStatusQueued,
				Filename: header.Filename,
			})
			return
		}

		if err := ingester.Ingest(c.Request.Context(), content, header.Filename); err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.UploadResponse{Message: "PDF content indexed successfully"})
	}
}

func handleUploadStatus(enqueuer Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")
		status, err := enqueuer.TaskStatus(c.Request.Context(), taskID)
		switch {
		case errors.Is(err, queue.ErrTaskNotFound):
			utils.RespondWithError(c, http.StatusNotFound, "task_not_found", "Task not found", nil)
			return
		case errors.Is(err, queue.ErrQueueUnavailable):
			utils.RespondWithAppError(c, utils.NewAppError(utils.KindQueueUnavailable, "Background ingestion is unavailable", err))
			return
		case err != nil:
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": status})
	}
}
