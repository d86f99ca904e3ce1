package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// OpenAICompatibleConfig configures a provider speaking the OpenAI
// chat-completions wire format.
type OpenAICompatibleConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAICompatibleProvider implements Provider against any endpoint
// exposing the OpenAI chat-completions API.
type OpenAICompatibleProvider struct {
	cfg    OpenAICompatibleConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatibleProvider creates a provider instance.
func NewOpenAICompatibleProvider(cfg OpenAICompatibleConfig, logger *zap.Logger) *OpenAICompatibleProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	return &OpenAICompatibleProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", cfg.Name)),
	}
}

func (p *OpenAICompatibleProvider) Name() string { return p.cfg.Name }

// Wire types for the OpenAI chat-completions format.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openAIFunction struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIDeltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openAIDelta struct {
	Content   string                `json:"content,omitempty"`
	ToolCalls []openAIDeltaToolCall `json:"tool_calls,omitempty"`
}

type openAIChoice struct {
	Index        int            `json:"index"`
	FinishReason string         `json:"finish_reason"`
	Message      *openAIMessage `json:"message,omitempty"`
	Delta        *openAIDelta   `json:"delta,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Created int64          `json:"created,omitempty"`
}

type openAIErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAICompatibleProvider) buildRequest(req *ChatRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	var tools []openAITool
	for _, t := range req.Tools {
		tools = append(tools, openAITool{
			Type:     "function",
			Function: openAIFunction{Name: t.Name, Parameters: t.Parameters},
		})
	}
	body := openAIRequest{
		Model:       model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.ToolChoice != "" {
		body.ToolChoice = req.ToolChoice
	}
	return body
}

func (p *OpenAICompatibleProvider) post(ctx context.Context, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return p.client.Do(httpReq)
}

func readErrMsg(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e openAIErrorResp
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// Completion issues a synchronous chat-completions request.
func (p *OpenAICompatibleProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, err.Error()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		e := types.Errorf(types.ErrUpstream, "%s completion failed: status=%d msg=%s", p.cfg.Name, resp.StatusCode, msg)
		return nil, e.WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	var oa openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return nil, types.NewError(types.ErrUpstream, "decode completion response: "+err.Error()).WithRetryable(true)
	}
	out := &ChatResponse{ID: oa.ID, Provider: p.cfg.Name, Model: oa.Model}
	if len(oa.Choices) > 0 && oa.Choices[0].Message != nil {
		out.Content = oa.Choices[0].Message.Content
	}
	if oa.Created != 0 {
		out.CreatedAt = time.Unix(oa.Created, 0)
	}
	return out, nil
}

// Stream issues a streaming request and converts SSE deltas into the engine's
// event vocabulary. Tool-call identity on the wire is positional; the stream
// keeps an index-to-id mapping and closes each call when a new index starts
// or the response finishes.
func (p *OpenAICompatibleProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan types.ProviderEvent, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, err.Error()).WithRetryable(true)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrMsg(resp.Body)
		e := types.Errorf(types.ErrUpstream, "%s stream failed: status=%d msg=%s", p.cfg.Name, resp.StatusCode, msg)
		return nil, e.WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	ch := make(chan types.ProviderEvent)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		callIDs := make(map[int]string)
		openCalls := make(map[int]bool)

		send := func(ev types.ProviderEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		closeCall := func(index int) bool {
			if !openCalls[index] {
				return true
			}
			openCalls[index] = false
			return send(types.ProviderEvent{Kind: types.EventToolCallComplete, CallID: callIDs[index]})
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					send(types.ProviderEvent{
						Kind: types.EventResponseError,
						Err:  types.NewError(types.ErrUpstream, err.Error()).WithRetryable(true),
					})
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				for index := range openCalls {
					if !closeCall(index) {
						return
					}
				}
				send(types.ProviderEvent{Kind: types.EventResponseComplete})
				return
			}

			var oa openAIResponse
			if err := json.Unmarshal([]byte(data), &oa); err != nil {
				send(types.ProviderEvent{
					Kind: types.EventResponseError,
					Err:  types.NewError(types.ErrUpstream, "decode stream chunk: "+err.Error()).WithRetryable(true),
				})
				return
			}
			for _, choice := range oa.Choices {
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					if !send(types.ProviderEvent{Kind: types.EventContentDelta, Fragment: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					if tc.ID != "" && callIDs[tc.Index] == "" {
						callIDs[tc.Index] = tc.ID
					} else if callIDs[tc.Index] == "" {
						callIDs[tc.Index] = fmt.Sprintf("call_%d", tc.Index)
					}
					if !openCalls[tc.Index] {
						openCalls[tc.Index] = true
					}
					if tc.Function.Arguments != "" {
						if !send(types.ProviderEvent{
							Kind:     types.EventToolCallDelta,
							CallID:   callIDs[tc.Index],
							Fragment: tc.Function.Arguments,
						}) {
							return
						}
					}
				}
				if choice.FinishReason != "" {
					for index := range openCalls {
						if !closeCall(index) {
							return
						}
					}
				}
			}
		}
	}()
	return ch, nil
}
