package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/generation"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

func TestWebSocketNotifier_ForwardsFrames(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)

		notifier := NewWebSocketNotifier(conn, nil)
		defer notifier.Close()

		notify := notifier.Notify(r.Context())
		notify(generation.Notification{Kind: generation.NotificationSection, Key: "instructionsHtml", HTML: "<p>go</p>"})
		notify(generation.Notification{
			Kind:     generation.NotificationComplete,
			Document: &types.StructuredDocument{InstructionsHTML: "<p>go</p>"},
		})
		close(done)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	readFrame := func() Frame {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	}

	section := readFrame()
	assert.Equal(t, "section", section.Kind)
	assert.Equal(t, "instructionsHtml", section.Key)
	assert.Equal(t, "<p>go</p>", section.HTML)

	complete := readFrame()
	assert.Equal(t, "complete", complete.Kind)
	var doc types.StructuredDocument
	require.NoError(t, json.Unmarshal(complete.Document, &doc))
	assert.Equal(t, "<p>go</p>", doc.InstructionsHTML)

	<-done
}

func TestWebSocketNotifier_ErrorFrameAndIdempotentClose(t *testing.T) {
	t.Parallel()

	received := make(chan Frame, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)

		notifier := NewWebSocketNotifier(conn, nil)
		notify := notifier.Notify(r.Context())
		notify(generation.Notification{
			Kind: generation.NotificationError,
			Err:  types.NewError(types.ErrUpstream, "stream failed"),
		})
		assert.NoError(t, notifier.Close())
		assert.NoError(t, notifier.Close(), "second close is a no-op")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if json.Unmarshal(data, &f) == nil {
			received <- f
		}
	}()

	select {
	case f := <-received:
		assert.Equal(t, "error", f.Kind)
		assert.Contains(t, f.Error, "stream failed")
	case <-time.After(5 * time.Second):
		t.Fatal("no error frame received")
	}
}
