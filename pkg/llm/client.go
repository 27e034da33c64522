// Package llm provides a client for interacting with Large Language Models.
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

	"scribo-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 描述一次模型调用：系统指令、历史消息与生成参数。
// MaxTokens 按调用类型设定（聊天回合较小，结构化抽取较大）。
type ChatRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// StreamChunk 是流式调用产出的一个文本分块。
// 首分块后发生的传输错误通过 Err 字段传递，通道随后关闭；
// 调用方（StreamRelay）决定如何向客户端呈现。
type StreamChunk struct {
	Content string
	Err     error
}

// InvocationError 表示模型端点的传输、认证或配额故障。
// 与抽取失败（extract.Error）可区分，便于上层按类型映射状态码。
type InvocationError struct {
	Status int
	Body   string
	cause  error
}

func (e *InvocationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("模型调用失败: %v", e.cause)
	}
	return fmt.Sprintf("模型端点返回非 200 状态: %d, body: %s", e.Status, e.Body)
}

func (e *InvocationError) Unwrap() error { return e.cause }

// Client 定义了生成式模型网关的接口。
type Client interface {
	// Invoke 同步调用，返回完整文本；失败返回 *InvocationError。
	Invoke(ctx context.Context, req ChatRequest) (string, error)
	// InvokeStream 流式调用，返回有序、有限的分块序列。
	// 首分块之前的失败通过返回值 error 报告，之后的失败随分块传递。
	InvokeStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient 创建一个面向 OpenAI 兼容端点的模型客户端。
func NewClient(cfg config.LLMConfig) Client {
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type syncResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// buildWireRequest 组装线上请求体。system 指令置于消息序列首位，
// 未显式传入的生成参数回退到配置默认值（零值视为未设置）。
func (c *openAIClient) buildWireRequest(req ChatRequest, stream bool) chatRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	wire := chatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if req.Temperature != nil {
		wire.Temperature = req.Temperature
	} else if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		wire.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		wire.TopP = &p
	}
	if req.MaxTokens > 0 {
		m := req.MaxTokens
		wire.MaxTokens = &m
	} else if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		wire.MaxTokens = &m
	}
	return wire
}

func (c *openAIClient) doRequest(ctx context.Context, wire chatRequest, accept string) (*http.Response, error) {
	reqBytes, err := json.Marshal(wire)
	if err != nil {
		return nil, &InvocationError{cause: fmt.Errorf("序列化请求失败: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &InvocationError{cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", accept)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &InvocationError{cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &InvocationError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}
	return resp, nil
}

// Invoke 同步调用模型端点并返回完整响应文本。
func (c *openAIClient) Invoke(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.doRequest(ctx, c.buildWireRequest(req, false), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &InvocationError{cause: fmt.Errorf("解析响应失败: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &InvocationError{cause: fmt.Errorf("模型未返回任何 choice")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// InvokeStream 以流式方式调用模型端点，返回文本分块通道。
// 序列不可重放，重试只能发起新的调用。
func (c *openAIClient) InvokeStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := c.doRequest(ctx, c.buildWireRequest(req, true), "text/event-stream")
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					ch <- StreamChunk{Err: &InvocationError{cause: fmt.Errorf("读取流失败: %w", err)}}
				}
				return
			}

			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				return
			}

			var chunk streamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// 跳过无法解析的心跳或注释行
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- StreamChunk{Content: chunk.Choices[0].Delta.Content}
			}
		}
	}()
	return ch, nil
}
