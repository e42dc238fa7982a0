package worker

import "context"

// ChatMessage is one turn of a Provider conversation.
type ChatMessage struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// ChatOptions configures a single Chat call.
type ChatOptions struct {
	Model         string
	MaxTokens     int64
	Temperature   float64
	SystemPrompt  string
	ToolChoice    string // "" (none), "auto", "required" — used by the model-health probe
	Tools         []string
}

// Usage reports token/cost accounting for a single Chat call, per the
// consumed provider contract (§6).
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	Cost            float64
	CacheReadTokens int64
}

// RateLimitInfo mirrors throttle.RateLimitInfo so a Provider response can
// feed the throttle without this package importing it for just one type.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	ResetSeconds      int
}

// ChatResponse is what a Provider call returns.
type ChatResponse struct {
	Content       string
	ToolCalls     int
	Usage         Usage
	StopReason    string
	Thinking      string
	RateLimitInfo *RateLimitInfo
}

// Provider is the consumed contract (§6) for every orchestrator-internal LLM
// call: decomposition, planning, review, verification, judging, and the
// model-health probe. Worker dispatch itself goes through Spawner, not this
// interface — dispatch is a black-box spawnAgent call, not a raw chat turn.
type Provider interface {
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error)
}
