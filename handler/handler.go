package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/statestore"
	"event-coordinator/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerTenantID      = "X-Tenant-Id"
)

// UseCase is the set of conversation operations exposed over HTTP.
type UseCase interface {
	ProcessTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	GetHistory(ctx context.Context, conversationID string, tenantID *int64) ([]domain.Message, error)
	ListConversations(ctx context.Context, tenantID *int64, limit, offset int) ([]statestore.Summary, error)
	DeleteConversation(ctx context.Context, conversationID string, tenantID *int64) (bool, error)
	SyncAll(ctx context.Context) error
}

type Handler struct {
	uc     UseCase
	logger *slog.Logger
}

type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type turnResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId"`
}

type messageDTO struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type historyResponse struct {
	ConversationID string       `json:"conversationId"`
	Messages       []messageDTO `json:"messages"`
}

type listResponse struct {
	Conversations []statestore.Summary `json:"conversations"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(uc UseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: slog.Default()}, nil
}

// Handle routes an API Gateway proxy request:
//
//	POST   /conversations                  start a conversation
//	POST   /conversations/{id}/messages    send a message
//	GET    /conversations/{id}/messages    visible history
//	GET    /conversations?limit=&offset=   list conversations
//	DELETE /conversations/{id}             delete a conversation
//	POST   /sync                           checkpoint every conversation
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	tenantID, err := parseTenant(header(req.Headers, headerTenantID))
	if err != nil {
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_tenant_id", Err: err}), nil
	}

	segments := splitPath(req.Path)
	switch {
	case req.HTTPMethod == http.MethodPost && len(segments) == 1 && segments[0] == "conversations":
		return h.postMessage(ctx, log, correlationID, "", tenantID, req.Body), nil
	case req.HTTPMethod == http.MethodPost && len(segments) == 3 && segments[0] == "conversations" && segments[2] == "messages":
		return h.postMessage(ctx, log, correlationID, segments[1], tenantID, req.Body), nil
	case req.HTTPMethod == http.MethodGet && len(segments) == 3 && segments[0] == "conversations" && segments[2] == "messages":
		return h.getHistory(ctx, log, correlationID, segments[1], tenantID), nil
	case req.HTTPMethod == http.MethodGet && len(segments) == 1 && segments[0] == "conversations":
		return h.list(ctx, log, correlationID, tenantID, req.QueryStringParameters), nil
	case req.HTTPMethod == http.MethodDelete && len(segments) == 2 && segments[0] == "conversations":
		return h.delete(ctx, log, correlationID, segments[1], tenantID), nil
	case req.HTTPMethod == http.MethodPost && len(segments) == 1 && segments[0] == "sync":
		if err := h.uc.SyncAll(ctx); err != nil {
			return h.fail(log, correlationID, err), nil
		}
		return respond(http.StatusNoContent, correlationID, nil), nil
	}

	return respond(http.StatusNotFound, correlationID, errorResponse{Error: string(usecase.ErrorNotFound)}), nil
}

func (h *Handler) postMessage(ctx context.Context, log *slog.Logger, correlationID, conversationID string, tenantID *int64, body string) events.APIGatewayProxyResponse {
	var req messageRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
	}
	if conversationID == "" {
		conversationID = req.ConversationID
	}

	out, err := h.uc.ProcessTurn(ctx, usecase.TurnInput{
		ConversationID: conversationID,
		TenantID:       tenantID,
		Message:        req.Message,
	})
	if err != nil {
		return h.fail(log, correlationID, err)
	}
	return respond(http.StatusOK, correlationID, turnResponse{Reply: out.AssistantText, ConversationID: out.ConversationID})
}

func (h *Handler) getHistory(ctx context.Context, log *slog.Logger, correlationID, conversationID string, tenantID *int64) events.APIGatewayProxyResponse {
	msgs, err := h.uc.GetHistory(ctx, conversationID, tenantID)
	if err != nil {
		return h.fail(log, correlationID, err)
	}
	out := historyResponse{ConversationID: conversationID, Messages: make([]messageDTO, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageDTO{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return respond(http.StatusOK, correlationID, out)
}

func (h *Handler) list(ctx context.Context, log *slog.Logger, correlationID string, tenantID *int64, query map[string]string) events.APIGatewayProxyResponse {
	limit, err := queryInt(query, "limit")
	if err != nil {
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_limit", Err: err})
	}
	offset, err := queryInt(query, "offset")
	if err != nil {
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_offset", Err: err})
	}

	summaries, err := h.uc.ListConversations(ctx, tenantID, limit, offset)
	if err != nil {
		return h.fail(log, correlationID, err)
	}
	return respond(http.StatusOK, correlationID, listResponse{Conversations: summaries, Limit: limit, Offset: offset})
}

func (h *Handler) delete(ctx context.Context, log *slog.Logger, correlationID, conversationID string, tenantID *int64) events.APIGatewayProxyResponse {
	deleted, err := h.uc.DeleteConversation(ctx, conversationID, tenantID)
	if err != nil {
		return h.fail(log, correlationID, err)
	}
	if !deleted {
		return respond(http.StatusNotFound, correlationID, errorResponse{Error: string(usecase.ErrorNotFound)})
	}
	return respond(http.StatusNoContent, correlationID, nil)
}

func (h *Handler) fail(log *slog.Logger, correlationID string, err error) events.APIGatewayProxyResponse {
	code := usecase.ErrorInternal
	reason := "unexpected_error"
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code = ucErr.Code
		reason = ucErr.Reason
	}

	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", code, "reason", reason, "err", err)
	} else {
		log.Warn("request rejected", "code", code, "reason", reason)
	}
	return respond(status, correlationID, errorResponse{Error: string(code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest
	case usecase.ErrorNotAuthorizedForTenant:
		return http.StatusForbidden
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
	}
	if body == nil {
		return resp
	}
	buf, err := json.Marshal(body)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		resp.Body = `{"error":"INTERNAL_ERROR"}`
		return resp
	}
	resp.Body = string(buf)
	return resp
}

// header looks a header up case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseTenant(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func queryInt(query map[string]string, key string) (int, error) {
	raw := strings.TrimSpace(query[key])
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
