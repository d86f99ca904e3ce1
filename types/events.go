package types

// ProviderEventKind enumerates the fixed event vocabulary of an LLM provider
// stream. The engine treats this vocabulary as a contract; it does not define
// model selection, token limits, or sampling parameters.
type ProviderEventKind string

const (
	// EventContentDelta carries plain assistant text. Ignored by the
	// streaming assembler.
	EventContentDelta ProviderEventKind = "content_delta"

	// EventToolCallDelta carries a fragment of tool-call arguments keyed by
	// call identity. Fragments for different call ids may interleave.
	EventToolCallDelta ProviderEventKind = "tool_call_delta"

	// EventToolCallComplete marks the arguments for one call id as complete.
	EventToolCallComplete ProviderEventKind = "tool_call_complete"

	// EventResponseComplete terminates a stream successfully.
	EventResponseComplete ProviderEventKind = "response_complete"

	// EventResponseError terminates a stream with a provider-side failure.
	EventResponseError ProviderEventKind = "response_error"
)

// ProviderEvent is one tagged event from a provider stream.
type ProviderEvent struct {
	Kind     ProviderEventKind `json:"kind"`
	CallID   string            `json:"call_id,omitempty"`
	Fragment string            `json:"fragment,omitempty"`
	Err      *Error            `json:"error,omitempty"`
}
