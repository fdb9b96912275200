// Package chat proxies chat completions to a Gradient serverless inference
// endpoint, which speaks the OpenAI chat-completions dialect.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/betterocean/betterocean/api-service/internal/config"
)

// ErrNotConfigured is returned when the Gradient endpoint or key is unset.
// The relay maps it to HTTP 503.
var ErrNotConfigured = errors.New("Gradient AI is not configured. Missing endpoint or key.")

// Message is one chat turn as sent by the browser.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service forwards message arrays to the completion endpoint and extracts
// the assistant reply. The LLM itself is a black box to this relay.
type Service struct {
	client  openai.Client
	model   string
	enabled bool
}

func NewService(cfg config.GradientConfig) *Service {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return &Service{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	// Gradient deployments expose the API either at the root or already
	// under /v1; normalize so the SDK always hits <base>/v1/chat/completions.
	base := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.Contains(base, "/v1") {
		base += "/v1"
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.Key),
		option.WithBaseURL(base+"/"),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		// a single hard call keeps relay latency bounded; the browser retries
		option.WithMaxRetries(0),
	)
	return &Service{client: client, model: cfg.Model, enabled: true}
}

// Enabled reports whether the upstream endpoint is configured.
func (s *Service) Enabled() bool { return s.enabled }

// Complete forwards the conversation and returns the assistant reply text.
func (s *Service) Complete(ctx context.Context, messages []Message) (string, error) {
	if !s.enabled {
		return "", ErrNotConfigured
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// UpstreamStatus extracts the HTTP status and message from an upstream API
// error so the relay can mirror them. ok is false for transport failures.
func UpstreamStatus(err error) (status int, message string, ok bool) {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return 0, "", false
	}
	message = apierr.Message
	if message == "" {
		message = "Gradient returned status " + http.StatusText(apierr.StatusCode)
	}
	return apierr.StatusCode, message, true
}
