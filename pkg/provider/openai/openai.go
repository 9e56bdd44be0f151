package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"warden/pkg/config"
	"warden/pkg/transport"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const defaultModel = "gpt-5-mini"

// instructions keep replies short and in Nairobi street slang.
const instructions = "You are a witty friend in a group chat who replies only in Sheng, " +
	"the Swahili-English street slang of Nairobi. Keep every reply to one or two short sentences. " +
	"Never explain that you are speaking Sheng and never switch to formal English."

// Client answers sheng chat messages through the Responses API, keeping one
// conversation per chat so replies follow the thread.
type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration

	mu            sync.Mutex
	conversations map[transport.Identity]string
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model := cfg.Builtins.Sheng.Model
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	normalizedModel, err := normalizeModel(model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          normalizedModel,
		requestTimeout: requestTimeout,
		conversations:  make(map[transport.Identity]string),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Respond produces a sheng reply to text within chat's conversation.
func (c *Client) Respond(ctx context.Context, chat transport.Identity, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("text is required")
	}

	conversationID, err := c.conversation(ctx, chat)
	if err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "respond")
	startedAt := time.Now()
	log.Debug("provider request started", "chat_id", chat, "model", c.model, "prompt_length", len(text))

	response, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        c.model,
		Instructions: osdk.String(instructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(text)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("respond failed: %w", err)
	}

	reply := strings.TrimSpace(response.OutputText())
	if reply == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return "", errors.New("respond succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(reply))

	return reply, nil
}

// conversation returns the chat's conversation, creating it on first use.
func (c *Client) conversation(ctx context.Context, chat transport.Identity) (string, error) {
	c.mu.Lock()
	id, ok := c.conversations[chat]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "create_conversation")
	startedAt := time.Now()

	conversation, err := c.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	if conversation == nil || strings.TrimSpace(conversation.ID) == "" {
		return "", errors.New("create conversation returned empty id")
	}
	id = strings.TrimSpace(conversation.ID)
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "chat_id", chat, "conversation_id", id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.conversations[chat]; ok {
		return existing, nil
	}
	c.conversations[chat] = id
	return id, nil
}

// Forget drops the conversation kept for chat.
func (c *Client) Forget(chat transport.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, chat)
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by openai provider", providerID)
	}

	return modelID, nil
}
