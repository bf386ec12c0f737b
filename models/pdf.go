package models

// Ingestion task statuses reported to async callers.
const (
	PDFStatusQueued     = "queued"
	PDFStatusProcessing = "processing"
	PDFStatusCompleted  = "completed"
	PDFStatusFailed     = "failed"
)

type UploadResponse struct {
	Message string `json:"message"`
}

type AsyncUploadResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
}
