package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Generation length caps, counted in tokens over prompt plus continuation.
const (
	PlainMaxLength = 100
	RAGMaxLength   = 150
)

// Generator is what the chat service needs from a loaded model.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type GenerateOptions struct {
	MaxLength int
}

// Model is a loaded, immutable model handle shared by all requests.
type Model struct {
	Name      string
	Info      ModelInfo
	Tokenizer *Tokenizer
	Device    Device

	endpoint       string
	token          string
	returnFullText bool
	timeout        time.Duration
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	limiter        *rate.Limiter
	sem            *semaphore.Weighted
	metrics        *telemetry.Metrics
}

var _ Generator = (*Model)(nil)

func newModel(opts LoadOptions, info ModelInfo, tok *Tokenizer, device Device, client *http.Client) *Model {
	m := &Model{
		Name:           opts.Name,
		Info:           info,
		Tokenizer:      tok,
		Device:         device,
		endpoint:       fmt.Sprintf("%s/models/%s", strings.TrimRight(opts.InferenceURL, "/"), opts.Name),
		token:          opts.Token,
		returnFullText: opts.ReturnFullText,
		timeout:        opts.Timeout,
		client:         client,
		metrics:        opts.Metrics,
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ModelInference",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			m.metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	if opts.MaxConcurrency > 0 {
		m.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	return m
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
	Options    inferenceOptions    `json:"options"`
}

type inferenceParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
	DoSample       bool `json:"do_sample"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Generate runs greedy decoding for prompt, capped at MaxLength total tokens,
// and returns the decoded text with special tokens removed. With
// return_full_text on, the output starts with the echoed prompt.
func (m *Model) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	ctx, span := otel.Tracer("model-inference").Start(ctx, "model.generate")
	defer span.End()

	start := time.Now()
	promptTokens := EstimateTokens(prompt)
	maxNew := opts.MaxLength - promptTokens
	if maxNew < 1 {
		maxNew = 1
	}
	span.SetAttributes(
		attribute.String("model.name", m.Name),
		attribute.Int("model.max_length", opts.MaxLength),
		attribute.Int("model.prompt_tokens", promptTokens),
		attribute.Int("model.max_new_tokens", maxNew),
	)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("waiting for generation slot: %w", err)
		}
		defer m.sem.Release(1)
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			span.SetAttributes(attribute.Bool("model.rate_limited", true))
			return "", err
		}
	}

	result, err := m.breaker.Execute(func() (interface{}, error) {
		return m.infer(ctx, inferenceRequest{
			Inputs: prompt,
			Parameters: inferenceParameters{
				MaxNewTokens:   maxNew,
				ReturnFullText: m.returnFullText,
				DoSample:       false,
			},
			Options: inferenceOptions{WaitForModel: true, UseCache: true},
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("model.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		m.metrics.RecordGeneration(time.Since(start).Seconds(), m.Name, "error")
		return "", err
	}

	text := m.Tokenizer.StripSpecial(result.(string))
	m.metrics.RecordGeneration(time.Since(start).Seconds(), m.Name, "success")
	span.SetAttributes(attribute.Int("model.output_chars", len(text)))
	return text, nil
}

func (m *Model) infer(ctx context.Context, body inferenceRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference error (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	return decodeGeneration(respBody)
}

// decodeGeneration accepts the hosted API's list form and the single-object
// form returned by self-hosted text-generation servers.
func decodeGeneration(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []generation
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(out) == 0 {
			return "", errors.New("empty generation from inference api")
		}
		return out[0].GeneratedText, nil
	}

	var single struct {
		generation
		Error string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("inference api returned error: %s", single.Error)
	}
	return single.GeneratedText, nil
}
