// Package llm binds a chat provider to the model configuration kept in SSM
// and exposes the single call the coordinator and task handlers need.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"event-coordinator/internal/domain"
)

type ChatClient interface {
	Chat(ctx context.Context, req domain.ChatRequest) (string, error)
}

type ParamBatchGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Model resolves the model name and the pinned persona prompt on first use and
// prepends them to every call. A failed load is retried on the next call.
type Model struct {
	params      ParamBatchGetter
	chat        ChatClient
	paramPrefix string

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	modelName    string
	pinnedPrompt string
}

func New(params ParamBatchGetter, chat ChatClient, paramPrefix string) (*Model, error) {
	if params == nil {
		return nil, errors.New("llm: param getter must not be nil")
	}
	if chat == nil {
		return nil, errors.New("llm: chat client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("llm: parameter prefix must not be empty")
	}
	return &Model{params: params, chat: chat, paramPrefix: paramPrefix}, nil
}

// Invoke sends systemPrompt followed by messages and returns the reply text.
func (m *Model) Invoke(ctx context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error) {
	return m.call(ctx, systemPrompt, messages, false)
}

// InvokeJSON is Invoke for prompts that expect a single JSON object back. The
// provider is asked for its JSON mode when it has one.
func (m *Model) InvokeJSON(ctx context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error) {
	return m.call(ctx, systemPrompt, messages, true)
}

func (m *Model) call(ctx context.Context, systemPrompt string, messages []domain.ChatMessage, jsonMode bool) (string, error) {
	if err := m.ensureConfig(ctx); err != nil {
		return "", err
	}

	m.cacheMu.RLock()
	model, pinned := m.modelName, m.pinnedPrompt
	m.cacheMu.RUnlock()

	out := make([]domain.ChatMessage, 0, len(messages)+1)
	if sys := joinPrompts(pinned, systemPrompt); sys != "" {
		out = append(out, domain.ChatMessage{Role: string(domain.RoleSystem), Content: sys})
	}
	out = append(out, messages...)

	reply, err := m.chat.Chat(ctx, domain.ChatRequest{Model: model, Messages: out, JSON: jsonMode})
	if err != nil {
		return "", fmt.Errorf("llm: chat: %w", err)
	}
	return reply, nil
}

func (m *Model) ensureConfig(ctx context.Context) error {
	m.cacheMu.RLock()
	if m.cacheLoaded {
		m.cacheMu.RUnlock()
		return nil
	}
	m.cacheMu.RUnlock()

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.cacheLoaded {
		return nil
	}

	modelKey := m.paramPrefix + "/config/llm_model"
	promptKey := m.paramPrefix + "/pinned_prompt"
	vals, err := m.params.GetParameters(ctx, modelKey, promptKey)
	if err != nil {
		return fmt.Errorf("llm: load config: %w", err)
	}
	model := strings.TrimSpace(vals[modelKey])
	if model == "" {
		return errors.New("llm: load config: model name is empty")
	}

	m.modelName = model
	m.pinnedPrompt = strings.TrimSpace(vals[promptKey])
	m.cacheLoaded = true
	return nil
}

func joinPrompts(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
