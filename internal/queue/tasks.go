package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"llm-chatbot/internal/logger"
	"llm-chatbot/models"
	"llm-chatbot/utils"

	"github.com/hibiken/asynq"
)

const (
	TaskIngestPDF = "pdf:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

// ErrQueueUnavailable is returned by a nil Client.
var ErrQueueUnavailable = errors.New("ingestion queue is not configured")

type IngestPayload struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// NewIngestTask builds a pdf:ingest task carrying the whole document.
func NewIngestTask(filename string, content []byte) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{Filename: filename, Content: content})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestPDF,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueCritical),
		asynq.Retention(24*time.Hour),
	), nil
}

// ErrTaskNotFound is returned for an unknown or expired task id.
var ErrTaskNotFound = errors.New("task not found")

// Client enqueues ingestion tasks and reports their state.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueIngest schedules filename for background ingestion and returns the
// task id.
func (c *Client) EnqueueIngest(ctx context.Context, filename string, content []byte) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrQueueUnavailable
	}
	task, err := NewIngestTask(filename, content)
	if err != nil {
		return "", fmt.Errorf("build ingest task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue ingest task: %w", err)
	}
	logger.Info("Enqueued PDF ingestion", "task_id", info.ID, "filename", filename, "queue", info.Queue)
	return info.ID, nil
}

// TaskStatus maps the asynq state of an ingest task to a PDF status.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (string, error) {
	if c == nil || c.inspector == nil {
		return "", ErrQueueUnavailable
	}
	info, err := c.inspector.GetTaskInfo(QueueCritical, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return "", ErrTaskNotFound
		}
		return "", err
	}
	return pdfStatus(info.State), nil
}

func pdfStatus(state asynq.TaskState) string {
	switch state {
	case asynq.TaskStateActive:
		return models.PDFStatusProcessing
	case asynq.TaskStateCompleted:
		return models.PDFStatusCompleted
	case asynq.TaskStateArchived:
		return models.PDFStatusFailed
	default:
		return models.PDFStatusQueued
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.inspector != nil {
		c.inspector.Close()
	}
	return c.client.Close()
}

// Ingester is the synchronous ingestion path the worker delegates to.
type Ingester interface {
	Ingest(ctx context.Context, content []byte, filename string) error
}

// TaskProcessor handles queued tasks.
type TaskProcessor struct {
	ingester Ingester
}

func NewTaskProcessor(ingester Ingester) *TaskProcessor {
	return &TaskProcessor{ingester: ingester}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing PDF", "filename", payload.Filename, "bytes", len(payload.Content))

	if err := p.ingester.Ingest(ctx, payload.Content, payload.Filename); err != nil {
		switch utils.KindOf(err) {
		case utils.KindInvalidDocument, utils.KindInvalidInput:
			// Retrying cannot fix the document itself.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("PDF processed successfully", "filename", payload.Filename)
	return nil
}

// Register installs the task handlers on mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestPDF, p.ProcessIngest)
}
