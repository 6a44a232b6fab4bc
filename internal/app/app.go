// Package app assembles the conversation service from its collaborators. It
// is shared by the Lambda entrypoint and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"event-coordinator/internal/agents"
	"event-coordinator/internal/coordinator"
	"event-coordinator/internal/integrations/anthropic"
	"event-coordinator/internal/integrations/gemini"
	"event-coordinator/internal/integrations/openai"
	"event-coordinator/internal/llm"
	"event-coordinator/internal/statestore"
	"event-coordinator/internal/usecase"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Params is the parameter store surface the service needs: single reads for
// provider tokens and batch reads for model configuration.
type Params interface {
	GetParameter(ctx context.Context, name string) (string, error)
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

type Config struct {
	ParamPrefix      string
	Provider         string
	FlushInterval    time.Duration
	TenantID         *int64
	MaxMessageLength int
	Logger           *slog.Logger
}

type Service struct {
	Conversations *usecase.ConversationService
	Store         *statestore.Store
}

// Build loads the state store from records and wires the coordinator, the
// task handlers and the configured chat provider behind the use case.
func Build(ctx context.Context, cfg Config, records statestore.RecordStore, params Params) (*Service, error) {
	if records == nil {
		return nil, errors.New("app: record store must not be nil")
	}
	if params == nil {
		return nil, errors.New("app: params must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storeOpts := []statestore.Option{statestore.WithLogger(logger)}
	if cfg.FlushInterval > 0 {
		storeOpts = append(storeOpts, statestore.WithFlushInterval(cfg.FlushInterval))
	}
	if cfg.TenantID != nil {
		storeOpts = append(storeOpts, statestore.WithTenant(*cfg.TenantID))
	}
	store, err := statestore.New(ctx, records, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: state store: %w", err)
	}

	chat, moderator, err := newChatClient(cfg.Provider, params, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}
	model, err := llm.New(params, chat, cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: model: %w", err)
	}
	handlers, err := agents.NewDefaultRegistry(model)
	if err != nil {
		return nil, fmt.Errorf("app: task handlers: %w", err)
	}
	coord, err := coordinator.New(model, handlers, coordinator.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: coordinator: %w", err)
	}

	ucOpts := []usecase.Option{usecase.WithLogger(logger)}
	if cfg.MaxMessageLength > 0 {
		ucOpts = append(ucOpts, usecase.WithMaxMessageLength(cfg.MaxMessageLength))
	}
	if moderator != nil {
		ucOpts = append(ucOpts, usecase.WithModerator(moderator))
	}
	svc, err := usecase.NewConversationService(store, coord, ucOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: conversation service: %w", err)
	}
	return &Service{Conversations: svc, Store: store}, nil
}

// newChatClient returns the provider's chat client. Only the OpenAI provider
// also moderates user input.
func newChatClient(provider string, params Params, prefix string) (llm.ChatClient, usecase.Moderator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderOpenAI:
		c, err := openai.NewClient(params, prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("app: openai: %w", err)
		}
		return c, c, nil
	case ProviderAnthropic:
		c, err := anthropic.NewClient(params, prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("app: anthropic: %w", err)
		}
		return c, nil, nil
	case ProviderGemini:
		c, err := gemini.NewClient(params, prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("app: gemini: %w", err)
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown LLM provider %q", provider)
	}
}
