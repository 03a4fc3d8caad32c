package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// AIClient 封装多模态推理服务的 HTTP 客户端，提供统一的调用入口
type AIClient struct {
	cli *resty.Client
	log *slog.Logger
}

// NewAIClient 创建推理客户端实例
func NewAIClient(baseURL, apiKey string, timeout time.Duration) *AIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cli := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", apiKey)
	return &AIClient{cli: cli, log: slog.With("rpc", "ai")}
}

// Generate 发起一次 generateContent 调用，返回模型输出的文本
func (a *AIClient) Generate(ctx context.Context, model string, in *GenerateRequest) (string, error) {
	var out GenerateResponse
	var apiErr APIError
	resp, err := a.cli.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/" + url.PathEscape(model) + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return "", fmt.Errorf("generate content: status[%d] %s", resp.StatusCode(), msg)
	}
	a.log.DebugContext(ctx, "generate content",
		"model", model,
		"finish_reason", out.FinishReason(),
		"elapsed", resp.Time(),
	)
	return out.Text(), nil
}
