package answer

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	Model string

	// BaseURL points at any OpenAI-compatible endpoint. Empty uses the
	// public API.
	BaseURL string

	// APIKey takes precedence over APIKeyEnv.
	APIKey    string
	APIKeyEnv string

	Retry errors.RetryConfig
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	retry  errors.RetryConfig
}

// NewOpenAIGenerator creates a generator. A missing API key is a config
// error unless BaseURL is set, since local servers often need none.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, errors.ConfigError(fmt.Sprintf("no API key: set %s", cfg.APIKeyEnv), nil).
			WithSuggestion("export the key or point answer.base_url at a local OpenAI-compatible server")
	}
	if cfg.Model == "" {
		return nil, errors.ConfigError("answer.model is empty", nil)
	}

	// Retries are handled by errors.Retry so they are classified and logged
	// the same way as other operations.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		retry:  cfg.Retry,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	}

	return errors.Retry(ctx, g.retry, func(ctx context.Context) (string, error) {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", classify(err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New(errors.ErrCodeAnswerFailed, "model returned no choices", nil)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// classify maps API failures onto error codes. Rate limits, server errors
// and transport failures are retryable.
func classify(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return errors.NetworkError(fmt.Sprintf("model endpoint returned %d", apiErr.StatusCode), err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return errors.ConfigError("model endpoint rejected the API key", err)
		default:
			return errors.New(errors.ErrCodeAnswerFailed, fmt.Sprintf("model endpoint returned %d", apiErr.StatusCode), err)
		}
	}
	return errors.NetworkError("model endpoint unreachable", err)
}
