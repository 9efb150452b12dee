// Package cliffnotes turns a session summary into condensed cliff notes with a chat model.
package cliffnotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates a blank summary text.
	ErrEmptyInput = errors.New("cliffnotes: summary text is empty")
	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("cliffnotes: model returned empty text")
	// ErrNotConfigured indicates missing model credentials.
	ErrNotConfigured = errors.New("cliffnotes: chat model is not configured")
)

// ChatModel is the subset of an eino chat model used for generation.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ModelConfig configures the ark chat model.
type ModelConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Region      string
	MaxTokens   int
	Temperature float32
}

// Enabled reports whether credentials and a model are present.
func (c ModelConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

// NewArkChatModel constructs the ark-backed chat model.
func NewArkChatModel(ctx context.Context, cfg ModelConfig) (ChatModel, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	arkConfig := &ark.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Region:  cfg.Region,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		arkConfig.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := cfg.Temperature
		arkConfig.Temperature = &temperature
	}
	chatModel, err := ark.NewChatModel(ctx, arkConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return chatModel, nil
}

// Generator produces cleaned cliff notes.
type Generator struct {
	model  ChatModel
	logger *zap.Logger
}

// NewGenerator wraps a chat model.
func NewGenerator(chatModel ChatModel, logger *zap.Logger) (*Generator, error) {
	if chatModel == nil {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{model: chatModel, logger: logger}, nil
}

// GenerateText builds the prompt, invokes the model and cleans its reply.
func (g *Generator) GenerateText(ctx context.Context, summaryText string, rules string) (string, error) {
	trimmed := strings.TrimSpace(summaryText)
	if trimmed == "" {
		return "", ErrEmptyInput
	}
	if len([]rune(trimmed)) > MaxInputRunes {
		g.logger.Warn("summary text truncated for cliff notes", zap.Int("limit", MaxInputRunes))
	}

	response, err := g.model.Generate(ctx, BuildMessages(trimmed, rules))
	if err != nil {
		return "", fmt.Errorf("failed to generate cliff notes: %w", err)
	}
	if response == nil {
		return "", ErrEmptyResponse
	}
	cleaned := Clean(response.Content)
	if cleaned == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("cliff notes generated", zap.Int("length", len(cleaned)))
	return cleaned, nil
}
