package generation

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/metrics"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// NotificationKind tags a progress notification from the assembler.
type NotificationKind string

const (
	// NotificationSection fires each time one section's HTML is written into
	// the accumulating document.
	NotificationSection NotificationKind = "section"
	// NotificationComplete fires exactly once, with the final pruned
	// document, when the stream terminates successfully.
	NotificationComplete NotificationKind = "complete"
	// NotificationError fires exactly once when the stream terminates with a
	// failure, a timeout, or a premature close.
	NotificationError NotificationKind = "error"
)

// Notification is one progress event emitted while a generation stream is
// assembled. Exactly one terminal notification (complete or error) is emitted
// per run.
type Notification struct {
	Kind     NotificationKind
	Key      string
	HTML     string
	Document *types.StructuredDocument
	Err      error
}

// sectionPayload is the decoded argument shape of one emit_section tool call.
type sectionPayload struct {
	Key  string `json:"key"`
	HTML string `json:"html"`
}

// Assembler turns an interleaved provider event stream into one order-stable
// structured document. One assembler instance serves one stream; instances
// share no state and may run fully in parallel.
type Assembler struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewAssembler wires a streaming assembler.
func NewAssembler(collector *metrics.Collector, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector("ipse", nil)
	}
	return &Assembler{
		logger:  logger.With(zap.String("component", "assembler")),
		metrics: collector,
	}
}

// Run consumes the event stream to its terminal event and returns the
// assembled document. notify, when non-nil, receives a section notification
// for each assembled section and exactly one terminal notification.
//
// A malformed or unrecognized tool-call payload is logged and dropped, never
// fatal. A closed channel without a terminal event, a context cancellation,
// and a response_error event all terminate the run with an error; a partial
// document is never treated as final.
func (a *Assembler) Run(ctx context.Context, events <-chan types.ProviderEvent, notify func(Notification)) (*types.StructuredDocument, error) {
	emit := func(n Notification) {
		if notify != nil {
			notify(n)
		}
	}

	buffers := make(map[string]*strings.Builder)
	doc := &types.StructuredDocument{}

	for {
		select {
		case <-ctx.Done():
			err := types.NewError(types.ErrUpstream, "generation cancelled: "+ctx.Err().Error()).
				WithCause(ctx.Err()).WithRetryable(true)
			emit(Notification{Kind: NotificationError, Err: err})
			return nil, err

		case ev, ok := <-events:
			if !ok {
				err := types.NewError(types.ErrUpstream, "provider stream closed before completion").
					WithRetryable(true)
				emit(Notification{Kind: NotificationError, Err: err})
				return nil, err
			}

			switch ev.Kind {
			case types.EventContentDelta:
				// Plain assistant text carries no section payload.

			case types.EventToolCallDelta:
				buf, exists := buffers[ev.CallID]
				if !exists {
					buf = &strings.Builder{}
					buffers[ev.CallID] = buf
				}
				buf.WriteString(ev.Fragment)

			case types.EventToolCallComplete:
				buf, exists := buffers[ev.CallID]
				if !exists {
					a.dropCall(ev.CallID, "tool call completed with no buffered arguments")
					continue
				}
				delete(buffers, ev.CallID)
				a.applyCall(doc, ev.CallID, buf.String(), emit)

			case types.EventResponseComplete:
				final := pruneDocument(doc)
				emit(Notification{Kind: NotificationComplete, Document: final})
				return final, nil

			case types.EventResponseError:
				var err error
				if ev.Err != nil {
					err = ev.Err
				} else {
					err = types.NewError(types.ErrUpstream, "provider reported an unspecified error").
						WithRetryable(true)
				}
				emit(Notification{Kind: NotificationError, Err: err})
				return nil, err

			default:
				a.logger.Debug("ignoring unknown provider event",
					zap.String("kind", string(ev.Kind)))
			}
		}
	}
}

// applyCall decodes one completed tool call and writes it into the document.
func (a *Assembler) applyCall(doc *types.StructuredDocument, callID, raw string, emit func(Notification)) {
	var payload sectionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		a.dropCall(callID, "undecodable tool-call arguments")
		return
	}
	if payload.Key == "" {
		a.dropCall(callID, "tool call without a section key")
		return
	}

	// Legacy top-level template keys are not part of the streaming
	// vocabulary; the embedded template block inside toolsHtml is the only
	// permitted form.
	if strings.HasPrefix(payload.Key, "template.") {
		a.logger.Debug("ignoring legacy template key in stream",
			zap.String("call_id", callID), zap.String("key", payload.Key))
		return
	}

	if err := doc.SetSection(payload.Key, payload.HTML); err != nil {
		a.dropCall(callID, "unrecognized section key "+payload.Key)
		return
	}
	a.metrics.SectionAssembled(payload.Key)
	emit(Notification{Kind: NotificationSection, Key: payload.Key, HTML: payload.HTML})
}

func (a *Assembler) dropCall(callID, reason string) {
	a.metrics.MalformedToolCall()
	a.logger.Debug("dropping malformed tool call",
		zap.String("call_id", callID), zap.String("reason", reason))
}

// pruneDocument snapshots the accumulator. The struct is already
// order-stable; empty sections stay absent through the document's JSON codec,
// so the snapshot is a plain deep copy.
func pruneDocument(doc *types.StructuredDocument) *types.StructuredDocument {
	cp := *doc
	return &cp
}
