package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/AdrianHagen/chat-ollama/internal/config"
	"github.com/AdrianHagen/chat-ollama/internal/sequencer"
)

const ollamaAPIProbeName = "ollama-api"

// ErrModelNotFound is returned by ShowModel when the model is not available
// locally.
var ErrModelNotFound = errors.New("model not found")

// Model is a locally available model as reported by /api/tags.
type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type modelRequest struct {
	Model  string `json:"model"`
	Stream *bool  `json:"stream,omitempty"`
}

type pullResponse struct {
	Status string `json:"status"`
}

type apiError struct {
	Error string `json:"error"`
}

// OllamaAPI talks to the Ollama HTTP API. Probe and ListModels go through the
// circuit breaker; model management calls do not, since they are user-driven
// one-shots.
type OllamaAPI struct {
	client     *resty.Client
	pullClient *resty.Client
	cb         *gobreaker.CircuitBreaker
}

// NewOllamaAPI constructs an OllamaAPI for cfg.Host. Pulls are not bounded by
// cfg.RequestTimeout since downloading a model can take minutes.
func NewOllamaAPI(cfg config.OllamaConfig, cb *gobreaker.CircuitBreaker) *OllamaAPI {
	return &OllamaAPI{
		client:     newRestyClient(cfg.Host, cfg.RequestTimeout),
		pullClient: newRestyClient(cfg.Host, 0),
		cb:         cb,
	}
}

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

// Probe asks the server for its version. Any transport error or non-2xx
// response is reported as not OK.
func (c *OllamaAPI) Probe(ctx context.Context) sequencer.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		var out versionResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/api/version")
		if err != nil {
			return nil, fmt.Errorf("get version: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("get version: unexpected status %d", resp.StatusCode())
		}
		return out.Version, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		return sequencer.ProbeResult{
			Name:      ollamaAPIProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     breakerError(err),
		}
	}

	return sequencer.ProbeResult{
		Name:      ollamaAPIProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// ListModels returns the models available locally.
func (c *OllamaAPI) ListModels(ctx context.Context) ([]Model, error) {
	res, err := c.cb.Execute(func() (any, error) {
		var out tagsResponse
		var apiErr apiError
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&apiErr).
			Get("/api/tags")
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return out.Models, nil
	})
	if err != nil {
		return nil, err
	}

	models, _ := res.([]Model)
	return models, nil
}

// ShowModel checks whether model is available locally. It returns
// ErrModelNotFound when the server answers 404.
func (c *OllamaAPI) ShowModel(ctx context.Context, model string) error {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(modelRequest{Model: model}).
		SetError(&apiErr).
		Post("/api/show")
	if err != nil {
		return fmt.Errorf("show model %s: %w", model, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("show model %s: %w", model, ErrModelNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("show model %s: status %d: %s", model, resp.StatusCode(), apiErr.Error)
	}
	return nil
}

// PullModel downloads model and blocks until the server reports success.
func (c *OllamaAPI) PullModel(ctx context.Context, model string) error {
	stream := false
	var out pullResponse
	var apiErr apiError
	resp, err := c.pullClient.R().
		SetContext(ctx).
		SetBody(modelRequest{Model: model, Stream: &stream}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/pull")
	if err != nil {
		return fmt.Errorf("pull model %s: %w", model, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pull model %s: status %d: %s", model, resp.StatusCode(), apiErr.Error)
	}
	if out.Status != "success" {
		return fmt.Errorf("pull model %s: unexpected status %q", model, out.Status)
	}
	return nil
}

// EnsureModel makes sure model is available locally, pulling it when needed,
// and writes human-readable progress lines to out. Failures are reported on
// out and never returned; callers needing a hard guarantee should call
// ShowModel afterwards.
func (c *OllamaAPI) EnsureModel(ctx context.Context, model string, out io.Writer) {
	err := c.ShowModel(ctx, model)
	if err == nil {
		fmt.Fprintf(out, "Model %s already pulled.\n", model)
		return
	}
	slog.DebugContext(ctx, "show model failed", "model", model, "error", err)
	fmt.Fprintf(out, "Model %s not found locally.\n", model)

	if err := c.PullModel(ctx, model); err != nil {
		slog.WarnContext(ctx, "pull model failed", "model", model, "error", err)
		fmt.Fprintf(out, "Model %s not found on ollama, please use a different model\n", model)
		return
	}
	fmt.Fprintf(out, "Pulling %s from ollama.\n", model)
}

// DefaultChatTitle is used when there is nothing to derive a title from.
const DefaultChatTitle = "New Chat"

const titleWords = 3

const titleSystemPrompt = "You are a helpful assistant that creates concise chat titles for a chat history sidebar. " +
	"Users will see these titles as buttons to identify and select their past conversations. " +
	"The title should clearly describe the main topic or question. " +
	"Respond with EXACTLY 3 words, nothing else. No punctuation, no explanation, no extra text."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// GenerateTitle asks model for a three-word title summarising firstMessage.
// It never fails: an empty message yields DefaultChatTitle, and any API error
// falls back to the first three words of the message.
func (c *OllamaAPI) GenerateTitle(ctx context.Context, firstMessage, model string) string {
	if strings.TrimSpace(firstMessage) == "" {
		return DefaultChatTitle
	}

	reply, err := c.chat(ctx, model, []chatMessage{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Create a clear 3-word title that describes this conversation topic: %q\n\n"+
				"The title will be displayed as a button label in a chat history list. "+
				"Make it descriptive and easy to understand at a glance.", firstMessage)},
	})
	if err != nil {
		slog.WarnContext(ctx, "generating chat title failed", "model", model, "error", err)
		return firstWords(firstMessage)
	}
	return cleanTitle(reply)
}

// chat sends a single non-streaming chat request and returns the reply text.
func (c *OllamaAPI) chat(ctx context.Context, model string, messages []chatMessage) (string, error) {
	var out chatResponse
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: model, Messages: messages, Stream: false}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("chat with %s: %w", model, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chat with %s: status %d: %s", model, resp.StatusCode(), apiErr.Error)
	}
	return out.Message.Content, nil
}

// cleanTitle drops sentence punctuation and keeps at most three words.
func cleanTitle(reply string) string {
	return firstWords(strings.NewReplacer(".", "", "!", "", "?", "").Replace(reply))
}

func firstWords(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return DefaultChatTitle
	}
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return strings.Join(words, " ")
}
