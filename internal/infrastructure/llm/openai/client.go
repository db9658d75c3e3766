package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/cv-shortlist/internal/infrastructure/resilience"
)

type Options struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbedModel         string
	Temperature        float64
	EmbedBatchSize     int
	ResilienceExecutor *resilience.Executor
}

// Client wraps a langchaingo OpenAI LLM for both chat and embeddings.
type Client struct {
	llm         *lcopenai.LLM
	chatModel   string
	embedModel  string
	temperature float64
	batchSize   int
	executor    *resilience.Executor
}

func New(options Options) (*Client, error) {
	if strings.TrimSpace(options.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if options.EmbedBatchSize <= 0 {
		options.EmbedBatchSize = 64
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(options.APIKey),
	}
	if options.ChatModel != "" {
		opts = append(opts, lcopenai.WithModel(options.ChatModel))
	}
	if options.EmbedModel != "" {
		opts = append(opts, lcopenai.WithEmbeddingModel(options.EmbedModel))
	}
	if options.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(strings.TrimRight(options.BaseURL, "/")))
	}

	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return &Client{
		llm:         llm,
		chatModel:   options.ChatModel,
		embedModel:  options.EmbedModel,
		temperature: options.Temperature,
		batchSize:   options.EmbedBatchSize,
		executor:    options.ResilienceExecutor,
	}, nil
}

type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) ModelName() string {
	return m.client.chatModel
}

func (m *ChatModel) Chat(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := resilience.Call(ctx, m.client.executor, "openai.chat", func(ctx context.Context) (*llms.ContentResponse, error) {
		return m.client.llm.GenerateContent(ctx, messages, llms.WithTemperature(m.client.temperature))
	}, classifyOpenAIError)
	if err != nil {
		return "", resilience.WrapTemporary("openai chat", fmt.Errorf("openai chat: %w", err), classifyOpenAIError)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openai chat returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Embedder batches inputs through langchaingo's embeddings helper.
type Embedder struct {
	client *Client
	impl   *embeddings.EmbedderImpl
}

func NewEmbedder(client *Client) (*Embedder, error) {
	impl, err := embeddings.NewEmbedder(client.llm,
		embeddings.WithBatchSize(client.batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("init openai embedder: %w", err)
	}
	return &Embedder{client: client, impl: impl}, nil
}

func (e *Embedder) ModelName() string {
	return e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) ([][]float32, error) {
		return e.impl.EmbedDocuments(ctx, texts)
	}, classifyOpenAIError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai embed", fmt.Errorf("openai embed: %w", err), classifyOpenAIError)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 408, code == 429, code >= 500:
			return resilience.Transient
		default:
			return resilience.Ignored
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient
	}
	return resilience.Permanent
}
