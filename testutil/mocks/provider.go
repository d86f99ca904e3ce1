// Package mocks provides in-memory test doubles: a scripted LLM provider and
// fake record/profile/version stores with the same error and concurrency
// semantics as the real ones.
package mocks

import (
	"context"
	"sync"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/llm"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// ScriptedProvider replays a fixed event sequence for Stream and a fixed
// response for Completion. The zero value is usable.
type ScriptedProvider struct {
	// Events is replayed in order on Stream. The channel closes after the
	// last event, scripted terminal or not, so premature-close behavior can
	// be exercised by omitting the terminal event.
	Events []types.ProviderEvent

	// Response and CompletionErr drive Completion.
	Response      *llm.ChatResponse
	CompletionErr error

	// StreamErr, when set, fails Stream before any event is produced.
	StreamErr error

	mu       sync.Mutex
	Requests []*llm.ChatRequest
}

func (p *ScriptedProvider) Name() string { return "scripted" }

func (p *ScriptedProvider) record(req *llm.ChatRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
}

// LastRequest returns the most recent request, or nil.
func (p *ScriptedProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return nil
	}
	return p.Requests[len(p.Requests)-1]
}

func (p *ScriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.record(req)
	if p.CompletionErr != nil {
		return nil, p.CompletionErr
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.ChatResponse{Content: "{}"}, nil
}

func (p *ScriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan types.ProviderEvent, error) {
	p.record(req)
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	out := make(chan types.ProviderEvent)
	go func() {
		defer close(out)
		for _, ev := range p.Events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
