package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/extrato-ai/extrato/schema"
)

// DefaultModel is the extraction model used when none is configured.
const DefaultModel = openai.GPT4oMini

// OpenAIExtractor is the production Extractor built on the OpenAI chat
// completions API with JSON response format.
type OpenAIExtractor struct {
	client          *openai.Client
	model           string
	logger          *slog.Logger
	timeout         time.Duration
	maxRetries      int
	maxPromptTokens int
}

// OpenAIOption configures an OpenAIExtractor.
type OpenAIOption func(*OpenAIExtractor)

// WithModel sets the model name.
func WithModel(model string) OpenAIOption {
	return func(x *OpenAIExtractor) { x.model = model }
}

// WithClient sets a pre-built API client.
func WithClient(client *openai.Client) OpenAIOption {
	return func(x *OpenAIExtractor) { x.client = client }
}

// WithTimeout overrides the per-attempt timeout (default 120s).
func WithTimeout(d time.Duration) OpenAIOption {
	return func(x *OpenAIExtractor) { x.timeout = d }
}

// WithMaxRetries overrides the retry count (default 1).
func WithMaxRetries(n int) OpenAIOption {
	return func(x *OpenAIExtractor) { x.maxRetries = n }
}

// WithMaxPromptTokens overrides the prompt token budget.
func WithMaxPromptTokens(n int) OpenAIOption {
	return func(x *OpenAIExtractor) { x.maxPromptTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(x *OpenAIExtractor) { x.logger = l }
}

// NewOpenAIExtractor creates an extractor. Without WithClient the API
// key is read from OPENAI_API_KEY.
func NewOpenAIExtractor(opts ...OpenAIOption) *OpenAIExtractor {
	x := &OpenAIExtractor{
		model:           DefaultModel,
		logger:          slog.Default(),
		timeout:         DefaultTimeout,
		maxRetries:      DefaultMaxRetries,
		maxPromptTokens: DefaultMaxPromptTokens,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.client == nil {
		x.client = openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	}
	return x
}

// Extract sends the document text to the model and decodes the JSON it
// returns against the schema. Transient failures are retried with
// exponential backoff.
func (x *OpenAIExtractor) Extract(ctx context.Context, label, documentText string, sch schema.Schema) (*Extraction, error) {
	prompt := BuildPrompt(label, sch, TruncateToTokenBudget(documentText, x.maxPromptTokens))

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= x.maxRetries; attempt++ {
		if attempt > 0 {
			x.logger.Warn("retrying llm extraction",
				"label", label, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, NewExtractorError("extraction cancelled", ctx.Err())
			}
			backoff *= 2
		}

		data, err := x.extractOnce(ctx, prompt, sch)
		if err != nil {
			lastErr = err
			continue
		}
		return &Extraction{Data: data, Retries: attempt}, nil
	}
	return nil, NewExtractorError("extraction failed after retries", lastErr)
}

func (x *OpenAIExtractor) extractOnce(ctx context.Context, prompt string, sch schema.Schema) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	resp, err := x.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: x.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, NewExtractorError("completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewExtractorError("model returned no choices", nil)
	}

	x.logger.Info("llm extraction complete",
		"model", x.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_s", time.Since(start).Seconds())

	return DecodeResponse(resp.Choices[0].Message.Content, sch)
}

// DecodeResponse parses the model's reply into the schema's key set:
// missing fields become nil, extra fields are dropped.
func DecodeResponse(content string, sch schema.Schema) (map[string]any, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return nil, NewExtractorError("no JSON found in response", nil)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, NewExtractorError("invalid JSON in response", err)
	}

	data := make(map[string]any, len(sch))
	for _, f := range sch {
		if v, ok := raw[f.Name]; ok {
			data[f.Name] = v
		} else {
			data[f.Name] = nil
		}
	}
	return data, nil
}

var _ Extractor = (*OpenAIExtractor)(nil)
