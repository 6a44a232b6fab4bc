package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// coordinator, the task handlers and the LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion call. JSON asks the provider to constrain the
// reply to a single JSON object where it supports that.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	JSON     bool
}
