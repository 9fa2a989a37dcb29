package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIEngine runs turns against an OpenAI-compatible chat completions API
// (OpenAI, Groq, OpenRouter, DeepSeek, VLLM, etc.) with SSE streaming.
type OpenAIEngine struct {
	apiBase      string
	apiKey       string
	defaultModel string
	maxTokens    int
	temperature  float64
	client       *http.Client
}

// OpenAIConfig configures a new OpenAIEngine.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIEngine{
		apiBase:      strings.TrimRight(base, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.Model,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		// No client timeout: each turn's ctx carries its own deadline.
		client: &http.Client{},
	}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type oaiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Run executes one streamed turn. Text deltas are forwarded to sink as they
// arrive; the final result carries accumulated content and usage.
func (e *OpenAIEngine) Run(ctx context.Context, bot BotSpec, input string, sink func(Event)) (*Result, error) {
	model := bot.Model
	if model == "" {
		model = e.defaultModel
	}

	messages := []oaiMessage{}
	if bot.SystemPrompt != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: bot.SystemPrompt})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: input})

	reqBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"max_tokens":  e.maxTokens,
		"temperature": e.temperature,
		"stream":      true,
		"stream_options": map[string]interface{}{
			"include_usage": true,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("engine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.classifyHTTPError(resp)
	}

	result := &Result{}
	var content strings.Builder
	toolOpen := map[string]bool{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			result.Usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if sink != nil {
					sink(Event{Type: EventTextDelta, Text: choice.Delta.Content})
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				name := tc.Function.Name
				if name == "" {
					continue
				}
				if !toolOpen[name] {
					toolOpen[name] = true
					result.ToolCalls = append(result.ToolCalls, name)
					if sink != nil {
						sink(Event{Type: EventToolStart, Tool: name})
					}
				}
			}
			if choice.FinishReason != "" {
				for name := range toolOpen {
					if sink != nil {
						sink(Event{Type: EventToolEnd, Tool: name})
					}
					delete(toolOpen, name)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Context cancellation surfaces here as a read error; prefer the
		// ctx error so callers can classify cancelled vs timed out.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("engine: read stream: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result.Content = content.String()
	return result, nil
}

// classifyHTTPError maps non-200 responses onto the engine error taxonomy.
// 402 and quota-style error codes are budget conditions, not bugs.
func (e *OpenAIEngine) classifyHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errBody oaiErrorBody
	json.Unmarshal(body, &errBody)
	code := errBody.Error.Code
	msg := errBody.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	if resp.StatusCode == http.StatusPaymentRequired ||
		code == "insufficient_quota" ||
		errBody.Error.Type == "insufficient_quota" ||
		strings.Contains(strings.ToLower(msg), "budget") {
		return fmt.Errorf("%w: %s", ErrBudgetExceeded, msg)
	}
	return fmt.Errorf("engine: upstream %d: %s", resp.StatusCode, msg)
}
