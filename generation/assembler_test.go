package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func sendEvents(events []types.ProviderEvent) <-chan types.ProviderEvent {
	ch := make(chan types.ProviderEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func sectionCall(callID, key, html string) []types.ProviderEvent {
	// Split the payload across two deltas to exercise fragment buffering.
	payload := `{"key":"` + key + `","html":"` + html + `"}`
	mid := len(payload) / 2
	return []types.ProviderEvent{
		{Kind: types.EventToolCallDelta, CallID: callID, Fragment: payload[:mid]},
		{Kind: types.EventToolCallDelta, CallID: callID, Fragment: payload[mid:]},
		{Kind: types.EventToolCallComplete, CallID: callID},
	}
}

func TestAssembler_InterleavedCalls(t *testing.T) {
	t.Parallel()

	// Two calls interleave their argument deltas; both must assemble.
	events := []types.ProviderEvent{
		{Kind: types.EventContentDelta, Fragment: "thinking..."},
		{Kind: types.EventToolCallDelta, CallID: "a", Fragment: `{"key":"instructionsHtml",`},
		{Kind: types.EventToolCallDelta, CallID: "b", Fragment: `{"key":"promptsHtml",`},
		{Kind: types.EventToolCallDelta, CallID: "a", Fragment: `"html":"<p>read</p>"}`},
		{Kind: types.EventToolCallDelta, CallID: "b", Fragment: `"html":"<p>ask</p>"}`},
		{Kind: types.EventToolCallComplete, CallID: "b"},
		{Kind: types.EventToolCallComplete, CallID: "a"},
		{Kind: types.EventResponseComplete},
	}

	var notifications []Notification
	asm := NewAssembler(nil, nil)
	doc, err := asm.Run(context.Background(), sendEvents(events), func(n Notification) {
		notifications = append(notifications, n)
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "<p>read</p>", doc.InstructionsHTML)
	assert.Equal(t, "<p>ask</p>", doc.PromptsHTML)

	var sections, completes, errors int
	for _, n := range notifications {
		switch n.Kind {
		case NotificationSection:
			sections++
		case NotificationComplete:
			completes++
			assert.Equal(t, doc, n.Document)
		case NotificationError:
			errors++
		}
	}
	assert.Equal(t, 2, sections)
	assert.Equal(t, 1, completes, "exactly one terminal complete notification")
	assert.Zero(t, errors)
}

func TestAssembler_NestedAndIgnoredKeys(t *testing.T) {
	t.Parallel()

	var events []types.ProviderEvent
	events = append(events, sectionCall("1", "supportTools.toolsHtml", "<ul><li>timer</li></ul>")...)
	events = append(events, sectionCall("2", "template.organizer", "<pre>legacy</pre>")...)
	events = append(events, sectionCall("3", "motivationalMessageHtml", "<p>go!</p>")...)
	events = append(events, types.ProviderEvent{Kind: types.EventResponseComplete})

	asm := NewAssembler(nil, nil)
	doc, err := asm.Run(context.Background(), sendEvents(events), nil)
	require.NoError(t, err)

	assert.Equal(t, "<ul><li>timer</li></ul>", doc.SupportTools.ToolsHTML)
	assert.Equal(t, "<p>go!</p>", doc.MotivationalMessageHTML)
	// Legacy template.* keys are dropped in streaming mode.
	assert.Empty(t, doc.InstructionsHTML)
}

func TestAssembler_MalformedCallIsNotFatal(t *testing.T) {
	t.Parallel()

	events := []types.ProviderEvent{
		{Kind: types.EventToolCallDelta, CallID: "bad", Fragment: `{"key": "instructionsHtml", truncated`},
		{Kind: types.EventToolCallComplete, CallID: "bad"},
		{Kind: types.EventToolCallDelta, CallID: "unknown", Fragment: `{"key":"bogusKey","html":"<p>x</p>"}`},
		{Kind: types.EventToolCallComplete, CallID: "unknown"},
	}
	events = append(events, sectionCall("good", "instructionsHtml", "<p>ok</p>")...)
	events = append(events, types.ProviderEvent{Kind: types.EventResponseComplete})

	asm := NewAssembler(nil, nil)
	doc, err := asm.Run(context.Background(), sendEvents(events), nil)
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", doc.InstructionsHTML)
}

func TestAssembler_PrematureCloseIsError(t *testing.T) {
	t.Parallel()

	events := sectionCall("1", "instructionsHtml", "<p>partial</p>")

	var terminal []Notification
	asm := NewAssembler(nil, nil)
	doc, err := asm.Run(context.Background(), sendEvents(events), func(n Notification) {
		if n.Kind == NotificationError || n.Kind == NotificationComplete {
			terminal = append(terminal, n)
		}
	})
	require.Error(t, err)
	assert.Nil(t, doc, "partial document is never final")
	assert.Equal(t, types.ErrUpstream, types.CodeOf(err))
	require.Len(t, terminal, 1)
	assert.Equal(t, NotificationError, terminal[0].Kind)
}

func TestAssembler_ResponseError(t *testing.T) {
	t.Parallel()

	providerErr := types.NewError(types.ErrUpstream, "model overloaded").WithRetryable(true)
	events := []types.ProviderEvent{
		{Kind: types.EventResponseError, Err: providerErr},
	}

	asm := NewAssembler(nil, nil)
	doc, err := asm.Run(context.Background(), sendEvents(events), nil)
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.True(t, types.IsRetryable(err))
}

func TestAssembler_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	blocked := make(chan types.ProviderEvent) // never delivers

	done := make(chan struct{})
	var runErr error
	asm := NewAssembler(nil, nil)
	go func() {
		defer close(done)
		_, runErr = asm.Run(ctx, blocked, nil)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("assembler did not stop on cancellation")
	}
	require.Error(t, runErr)
	assert.Equal(t, types.ErrUpstream, types.CodeOf(runErr))
}
