package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	GenerationDuration  metric.Float64Histogram
	PDFProcessingTime   metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
	ConversationEntries metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("llm-chatbot")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"model.generation.duration",
		metric.WithDescription("Model generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pdfProcessingTime, err := meter.Float64Histogram(
		"pdf.processing.duration",
		metric.WithDescription("PDF ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	conversationEntries, err := meter.Int64Counter(
		"conversation.entries.appended",
		metric.WithDescription("Conversation log entries appended"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		GenerationDuration:  generationDuration,
		PDFProcessingTime:   pdfProcessingTime,
		CircuitBreakerState: circuitBreakerState,
		ConversationEntries: conversationEntries,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordGeneration records one model generation call
func (m *Metrics) RecordGeneration(duration float64, model, status string) {
	if m == nil {
		return
	}
	m.GenerationDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.String("model.name", model),
		attribute.String("model.status", status),
	))
}

// RecordPDFProcessing records PDF processing metrics
func (m *Metrics) RecordPDFProcessing(duration float64, status string) {
	if m == nil {
		return
	}
	m.PDFProcessingTime.Record(context.Background(), duration, metric.WithAttributes(
		attribute.String("pdf.status", status),
		attribute.String("service", "pdf_ingestion"),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}

// RecordConversationEntry counts an appended log entry by role
func (m *Metrics) RecordConversationEntry(role string) {
	if m == nil {
		return
	}
	m.ConversationEntries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("conversation.role", role),
	))
}
