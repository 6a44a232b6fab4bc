package domain

import "time"

// Record is one durable row holding a serialized conversation state.
type Record struct {
	ID        int64
	TenantID  *int64
	Title     string
	AgentType string
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
