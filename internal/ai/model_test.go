package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"llm-chatbot/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenizerConfig = `{
  "bos_token": {"content": "<｜begin▁of▁sentence｜>", "special": true},
  "eos_token": "<｜end▁of▁sentence｜>",
  "pad_token": null,
  "added_tokens_decoder": {
    "151643": {"content": "<｜end▁of▁sentence｜>", "special": true},
    "151648": {"content": "<think>", "special": false}
  }
}`

type fakeHub struct {
	srv           *httptest.Server
	infoCalls     atomic.Int32
	lastInference atomic.Value
	generatedText string
	inferenceCode int
}

func newFakeHub(t *testing.T, token string) *fakeHub {
	t.Helper()
	h := &fakeHub{generatedText: "<｜begin▁of▁sentence｜>Hello there, friend", inferenceCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny-lm", func(w http.ResponseWriter, r *http.Request) {
		h.infoCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(ModelInfo{ID: "acme/tiny-lm", SHA: "abc123", PipelineTag: "text-generation"}) //nolint:errcheck
	})
	mux.HandleFunc("/acme/tiny-lm/resolve/main/tokenizer_config.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testTokenizerConfig)) //nolint:errcheck
	})
	mux.HandleFunc("/models/acme/tiny-lm", func(w http.ResponseWriter, r *http.Request) {
		var req inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.lastInference.Store(req)
		if h.inferenceCode != http.StatusOK {
			http.Error(w, `{"error":"model overloaded"}`, h.inferenceCode)
			return
		}
		json.NewEncoder(w).Encode([]generation{{GeneratedText: h.generatedText}}) //nolint:errcheck
	})
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHub) options(t *testing.T, token string) LoadOptions {
	return LoadOptions{
		Name:           "acme/tiny-lm",
		Token:          token,
		CacheDir:       t.TempDir(),
		HubURL:         h.srv.URL,
		InferenceURL:   h.srv.URL,
		Device:         "cpu",
		ReturnFullText: true,
	}
}

func TestLoadModel_Success(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")

	m, err := LoadModel(context.Background(), hub.options(t, "hf_ok"))
	require.NoError(t, err)

	assert.Equal(t, "acme/tiny-lm", m.Name)
	assert.Equal(t, "abc123", m.Info.SHA)
	assert.Equal(t, DeviceCPU, m.Device)
	assert.Equal(t, "<｜end▁of▁sentence｜>", m.Tokenizer.EOS)
	assert.NotContains(t, m.Tokenizer.SpecialTokens(), "<think>")
}

func TestLoadModel_AuthRejected(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")

	m, err := LoadModel(context.Background(), hub.options(t, "hf_wrong"))
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestLoadModel_UnknownModel(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	opts := hub.options(t, "hf_ok")
	opts.Name = "acme/missing"

	_, err := LoadModel(context.Background(), opts)
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestLoadModel_ReusesCache(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	opts := hub.options(t, "hf_ok")

	_, err := LoadModel(context.Background(), opts)
	require.NoError(t, err)
	_, err = LoadModel(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hub.infoCalls.Load())
	_, statErr := os.Stat(filepath.Join(opts.CacheDir, "acme--tiny-lm", "tokenizer_config.json"))
	assert.NoError(t, statErr)
}

func TestModel_Generate_StripsSpecialTokensAndIsGreedy(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	m, err := LoadModel(context.Background(), hub.options(t, "hf_ok"))
	require.NoError(t, err)

	first, err := m.Generate(context.Background(), "Hello", GenerateOptions{MaxLength: PlainMaxLength})
	require.NoError(t, err)
	second, err := m.Generate(context.Background(), "Hello", GenerateOptions{MaxLength: PlainMaxLength})
	require.NoError(t, err)

	assert.Equal(t, "Hello there, friend", first)
	assert.Equal(t, first, second)

	req := hub.lastInference.Load().(inferenceRequest)
	assert.Equal(t, "Hello", req.Inputs)
	assert.False(t, req.Parameters.DoSample)
	assert.True(t, req.Parameters.ReturnFullText)
	assert.Equal(t, PlainMaxLength-EstimateTokens("Hello"), req.Parameters.MaxNewTokens)
}

func TestModel_Generate_LongPromptStillAsksForOneToken(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	m, err := LoadModel(context.Background(), hub.options(t, "hf_ok"))
	require.NoError(t, err)

	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'a'
	}
	_, err = m.Generate(context.Background(), string(long), GenerateOptions{MaxLength: RAGMaxLength})
	require.NoError(t, err)

	req := hub.lastInference.Load().(inferenceRequest)
	assert.Equal(t, 1, req.Parameters.MaxNewTokens)
}

func TestModel_Generate_ServerError(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	hub.inferenceCode = http.StatusServiceUnavailable
	m, err := LoadModel(context.Background(), hub.options(t, "hf_ok"))
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), "Hello", GenerateOptions{MaxLength: PlainMaxLength})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestDecodeGeneration(t *testing.T) {
	text, err := decodeGeneration([]byte(`[{"generated_text":"a b"}]`))
	require.NoError(t, err)
	assert.Equal(t, "a b", text)

	text, err = decodeGeneration([]byte(`{"generated_text":"single"}`))
	require.NoError(t, err)
	assert.Equal(t, "single", text)

	_, err = decodeGeneration([]byte(`[]`))
	assert.Error(t, err)

	_, err = decodeGeneration([]byte(`{"error":"loading"}`))
	assert.Error(t, err)
}

func TestResolveDevice(t *testing.T) {
	orig := gpuProbe
	t.Cleanup(func() { gpuProbe = orig })

	gpuProbe = func() bool { return true }
	assert.Equal(t, DeviceCUDA, ResolveDevice("auto"))
	assert.Equal(t, DeviceCPU, ResolveDevice("cpu"))
	assert.Equal(t, "float16", DeviceCUDA.DType())

	gpuProbe = func() bool { return false }
	assert.Equal(t, DeviceCPU, ResolveDevice(""))
	assert.Equal(t, DeviceCUDA, ResolveDevice("cuda"))
	assert.Equal(t, "float32", DeviceCPU.DType())
}

func TestTokenizer_StripSpecialLongestFirst(t *testing.T) {
	tok, err := ParseTokenizerConfig([]byte(`{"bos_token":"<s>","eos_token":"</s>","additional_special_tokens":["<s>x"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"</s>", "<s>x", "<s>"}, tok.SpecialTokens())
	assert.Equal(t, "hi there", tok.StripSpecial("<s>xhi there</s>"))

	var nilTok *Tokenizer
	assert.Equal(t, "keep", nilTok.StripSpecial("keep"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("Hi"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}

func TestLoadModel_NoTimeoutsConfigured(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	opts := hub.options(t, "hf_ok")
	opts.Timeout = 0

	ctx, cancel := utils.WithOptionalTimeout(context.Background(), 0)
	defer cancel()

	m, err := LoadModel(ctx, opts)
	require.NoError(t, err)

	out, err := m.Generate(ctx, "Hello", GenerateOptions{MaxLength: PlainMaxLength})
	require.NoError(t, err)
	assert.Equal(t, "Hello there, friend", out)
}

func TestLoadModel_DoesNotCacheUndecodableResponse(t *testing.T) {
	var healthy atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny-lm", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.Write([]byte("<html>gateway error</html>")) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(ModelInfo{ID: "acme/tiny-lm", SHA: "abc123"}) //nolint:errcheck
	})
	mux.HandleFunc("/acme/tiny-lm/resolve/main/tokenizer_config.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testTokenizerConfig)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := LoadOptions{Name: "acme/tiny-lm", Token: "hf_ok", CacheDir: t.TempDir(), HubURL: srv.URL, InferenceURL: srv.URL, Device: "cpu"}
	infoPath := filepath.Join(opts.CacheDir, "acme--tiny-lm", "model_info.json")

	_, err := LoadModel(context.Background(), opts)
	require.Error(t, err)
	_, statErr := os.Stat(infoPath)
	assert.True(t, os.IsNotExist(statErr))

	healthy.Store(true)
	m, err := LoadModel(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "abc123", m.Info.SHA)
	_, statErr = os.Stat(infoPath)
	assert.NoError(t, statErr)
}

func TestLoadModel_ReplacesCorruptCacheFile(t *testing.T) {
	hub := newFakeHub(t, "hf_ok")
	opts := hub.options(t, "hf_ok")
	dir := filepath.Join(opts.CacheDir, "acme--tiny-lm")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_info.json"), []byte("<html>"), 0o644))

	m, err := LoadModel(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "abc123", m.Info.SHA)
	assert.Equal(t, int32(1), hub.infoCalls.Load())

	cached, err := os.ReadFile(filepath.Join(dir, "model_info.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cached), "abc123")
}
