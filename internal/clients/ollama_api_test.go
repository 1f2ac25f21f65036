package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianHagen/chat-ollama/internal/config"
)

// fakeOllama is a minimal stand-in for the Ollama HTTP API.
type fakeOllama struct {
	local     map[string]bool
	remote    map[string]bool
	down      bool
	pullCalls atomic.Int32

	chatReply string
	chatFails bool
	chatCalls atomic.Int32

	mu       sync.Mutex
	lastChat chatRequest
}

func (f *fakeOllama) lastChatRequest() chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChat
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, _ *http.Request) {
		if f.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"version": "0.6.2"})
	})

	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		models := []map[string]any{}
		for name := range f.local {
			models = append(models, map[string]any{
				"name":        name,
				"model":       name,
				"size":        8149190253,
				"modified_at": "2025-03-18T10:01:02Z",
			})
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"models": models})
	})

	mux.HandleFunc("POST /api/show", func(w http.ResponseWriter, r *http.Request) {
		var req modelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !f.local[req.Model] {
			writeJSON(t, w, http.StatusNotFound, map[string]string{"error": "model '" + req.Model + "' not found"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"modelfile": "FROM " + req.Model})
	})

	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		f.pullCalls.Add(1)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		name, _ := req["model"].(string)
		if !f.remote[name] {
			writeJSON(t, w, http.StatusInternalServerError, map[string]string{"error": "pull model manifest: file does not exist"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "success"})
	})

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls.Add(1)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.lastChat = req
		f.mu.Unlock()
		if f.chatFails {
			writeJSON(t, w, http.StatusNotFound, map[string]string{"error": "model not found"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": f.chatReply},
			"done":    true,
		})
	})

	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, code int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestAPI(t *testing.T, f *fakeOllama) *OllamaAPI {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewOllamaAPI(config.OllamaConfig{Host: srv.URL, RequestTimeout: 2 * time.Second}, NewCircuitBreaker("ollama-api-test-"+t.Name()))
}

func TestOllamaAPIProbe(t *testing.T) {
	t.Parallel()

	t.Run("server up", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeOllama{})

		result := api.Probe(context.Background())
		assert.True(t, result.OK)
		assert.Equal(t, ollamaAPIProbeName, result.Name)
		assert.Empty(t, result.Error)
	})

	t.Run("server answers 503", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeOllama{down: true})

		result := api.Probe(context.Background())
		assert.False(t, result.OK)
		assert.Contains(t, result.Error, "503")
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		api := NewOllamaAPI(config.OllamaConfig{Host: "http://127.0.0.1:1", RequestTimeout: time.Second}, NewCircuitBreaker("ollama-api-closed"))

		result := api.Probe(context.Background())
		assert.False(t, result.OK)
		assert.NotEmpty(t, result.Error)
	})
}

func TestOllamaAPIListModels(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, &fakeOllama{local: map[string]bool{"gemma3:12b": true}})

	models, err := api.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gemma3:12b", models[0].Name)
	assert.Equal(t, int64(8149190253), models[0].Size)
	assert.Equal(t, 2025, models[0].ModifiedAt.Year())
}

func TestOllamaAPIShowModel(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, &fakeOllama{local: map[string]bool{"gemma3:12b": true}})

	require.NoError(t, api.ShowModel(context.Background(), "gemma3:12b"))

	err := api.ShowModel(context.Background(), "llama2")
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestOllamaAPIPullModel(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, &fakeOllama{remote: map[string]bool{"llama2": true}})

	require.NoError(t, api.PullModel(context.Background(), "llama2"))

	err := api.PullModel(context.Background(), "no-such-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file does not exist")
}

func TestOllamaAPIEnsureModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fake      *fakeOllama
		model     string
		wantOut   string
		wantPulls int32
	}{
		{
			name:      "already local",
			fake:      &fakeOllama{local: map[string]bool{"gemma3:12b": true}},
			model:     "gemma3:12b",
			wantOut:   "Model gemma3:12b already pulled.\n",
			wantPulls: 0,
		},
		{
			name:      "pulled from registry",
			fake:      &fakeOllama{remote: map[string]bool{"llama2": true}},
			model:     "llama2",
			wantOut:   "Model llama2 not found locally.\nPulling llama2 from ollama.\n",
			wantPulls: 1,
		},
		{
			name:      "unknown everywhere",
			fake:      &fakeOllama{},
			model:     "nope",
			wantOut:   "Model nope not found locally.\nModel nope not found on ollama, please use a different model\n",
			wantPulls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newTestAPI(t, tc.fake)
			var out bytes.Buffer
			api.EnsureModel(context.Background(), tc.model, &out)

			assert.Equal(t, tc.wantOut, out.String())
			assert.Equal(t, tc.wantPulls, tc.fake.pullCalls.Load())
		})
	}
}

func TestOllamaAPIGenerateTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		message   string
		reply     string
		fails     bool
		want      string
		wantCalls int32
	}{
		{
			name:      "three word reply",
			message:   "How do I sort a list in Python?",
			reply:     "Python List Sorting",
			want:      "Python List Sorting",
			wantCalls: 1,
		},
		{
			name:      "punctuation stripped and trimmed to three words",
			message:   "What is machine learning?",
			reply:     "  Machine Learning Basics! Explained.\n",
			want:      "Machine Learning Basics",
			wantCalls: 1,
		},
		{
			name:      "short reply kept",
			message:   "hi",
			reply:     "Greeting?",
			want:      "Greeting",
			wantCalls: 1,
		},
		{
			name:      "empty reply",
			message:   "hi there",
			reply:     " ... ",
			want:      DefaultChatTitle,
			wantCalls: 1,
		},
		{
			name:      "empty message skips the model",
			message:   "   ",
			want:      DefaultChatTitle,
			wantCalls: 0,
		},
		{
			name:      "api error falls back to first words",
			message:   "Explain goroutines and channels please",
			fails:     true,
			want:      "Explain goroutines and",
			wantCalls: 1,
		},
		{
			name:      "api error with short message",
			message:   "Goroutines?",
			fails:     true,
			want:      "Goroutines?",
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := &fakeOllama{chatReply: tc.reply, chatFails: tc.fails}
			api := newTestAPI(t, f)

			got := api.GenerateTitle(context.Background(), tc.message, "llama3.2")
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantCalls, f.chatCalls.Load())
			if tc.wantCalls > 0 {
				req := f.lastChatRequest()
				assert.Equal(t, "llama3.2", req.Model)
				assert.False(t, req.Stream)
				require.Len(t, req.Messages, 2)
				assert.Equal(t, "system", req.Messages[0].Role)
				assert.Contains(t, req.Messages[1].Content, tc.message)
			}
		})
	}
}

func TestOllamaAPIGenerateTitle_ServerUnreachable(t *testing.T) {
	t.Parallel()

	api := NewOllamaAPI(config.OllamaConfig{Host: "http://127.0.0.1:1", RequestTimeout: time.Second}, NewCircuitBreaker("test"))
	assert.Equal(t, "Tell me about", api.GenerateTitle(context.Background(), "Tell me about Go generics", "llama3.2"))
}
