package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrUnauthorized is returned when the hub rejects the access token.
var ErrUnauthorized = errors.New("model hub rejected the access token")

// ErrModelNotFound is returned when the hub has no model under the given name.
var ErrModelNotFound = errors.New("model not found on hub")

// ModelInfo is the subset of the hub's model metadata the service uses.
type ModelInfo struct {
	ID          string `json:"id"`
	SHA         string `json:"sha"`
	PipelineTag string `json:"pipeline_tag"`
	Private     bool   `json:"private"`
}

// LoadOptions configures model resolution and the generation client.
type LoadOptions struct {
	Name           string
	Token          string
	CacheDir       string
	HubURL         string
	InferenceURL   string
	Device         string
	ReturnFullText bool
	Timeout        time.Duration
	MaxConcurrency int
	RPS            float64
	HTTPClient     *http.Client
	Metrics        *telemetry.Metrics
}

// LoadModel resolves a model and its tokenizer from the hub, caching the
// downloaded files under CacheDir. Callers treat an error as "serve degraded".
func LoadModel(ctx context.Context, opts LoadOptions) (*Model, error) {
	ctx, span := otel.Tracer("model-hub").Start(ctx, "hub.load_model")
	defer span.End()
	span.SetAttributes(attribute.String("model.name", opts.Name))

	if opts.Name == "" {
		return nil, errors.New("model name is empty")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	hubURL := strings.TrimRight(opts.HubURL, "/")

	dir := ""
	if opts.CacheDir != "" {
		dir = filepath.Join(opts.CacheDir, strings.ReplaceAll(opts.Name, "/", "--"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cache dir")
			return nil, fmt.Errorf("failed to create model cache dir: %w", err)
		}
	}

	fetcher := hubFetcher{client: client, token: opts.Token, dir: dir}

	var info ModelInfo
	decodeInfo := func(data []byte) error {
		info = ModelInfo{}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("failed to decode model info: %w", err)
		}
		return nil
	}
	if err := fetcher.fetch(ctx, "model_info.json", fmt.Sprintf("%s/api/models/%s", hubURL, opts.Name), decodeInfo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model info")
		return nil, fmt.Errorf("failed to resolve model %s: %w", opts.Name, err)
	}

	var tokenizer *Tokenizer
	parseTokenizer := func(data []byte) (err error) {
		tokenizer, err = ParseTokenizerConfig(data)
		return err
	}
	if err := fetcher.fetch(ctx, "tokenizer_config.json",
		fmt.Sprintf("%s/%s/resolve/main/tokenizer_config.json", hubURL, opts.Name), parseTokenizer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tokenizer")
		return nil, fmt.Errorf("failed to load tokenizer for %s: %w", opts.Name, err)
	}

	device := ResolveDevice(opts.Device)
	span.SetAttributes(
		attribute.String("model.sha", info.SHA),
		attribute.String("model.device", string(device)),
		attribute.String("model.dtype", device.DType()),
	)

	logger.Info("Model loaded successfully",
		"model", opts.Name,
		"sha", info.SHA,
		"pipeline", info.PipelineTag,
		"device", device,
		"dtype", device.DType(),
		"special_tokens", len(tokenizer.special),
	)

	return newModel(opts, info, tokenizer, device, client), nil
}

// hubFetcher downloads hub files once and serves later loads from disk. Only
// bytes that pass decode are ever written to the cache.
type hubFetcher struct {
	client *http.Client
	token  string
	dir    string
}

func (f hubFetcher) fetch(ctx context.Context, name, url string, decode func([]byte) error) error {
	path := ""
	if f.dir != "" {
		path = filepath.Join(f.dir, name)
		if data, err := os.ReadFile(path); err == nil {
			decodeErr := decode(data)
			if decodeErr == nil {
				logger.Debug("Using cached hub file", "path", path)
				return nil
			}
			logger.Warn("Discarding unreadable cached hub file", "path", path, "error", decodeErr)
			_ = os.Remove(path)
		}
	}

	body, err := f.download(ctx, url)
	if err != nil {
		return err
	}
	if err := decode(body); err != nil {
		return err
	}

	if path != "" {
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("failed to cache %s: %w", name, err)
		}
	}
	return nil
}

func (f hubFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hub response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrModelNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("hub error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
