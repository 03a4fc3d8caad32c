// Package inference 调用外部多模态推理服务，并容错地解析其输出
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gowvp/vigil/internal/rpc"
	"github.com/gowvp/vigil/pkg/llmjson"
)

// Generator 推理服务
type Generator interface {
	Generate(ctx context.Context, model string, in *rpc.GenerateRequest) (string, error)
}

type Config struct {
	Model           string
	SegmentModel    string
	MaxVideoBytes   int64
	MaxImageBytes   int64
	MaxSegmentBytes int64
	Temperature     float64
	MaxOutputTokens int
}

// Payload 一次请求的输入，Video 与 Image 可以同时为空
type Payload struct {
	Video  []byte
	Image  []byte
	Prompt string
	// Model 为空时使用默认模型
	Model string
}

// Adapter 出错时不返回 error，而是返回符合 Contract 的合成 JSON
type Adapter struct {
	gen Generator
	cfg Config
	log *slog.Logger
}

func NewAdapter(gen Generator, cfg Config) *Adapter {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}
	return &Adapter{gen: gen, cfg: cfg, log: slog.With("core", "inference")}
}

// Analyze 发起一次推理，返回原始文本
// 超过大小限制的视频或图片不附带，请求照常发出
func (a *Adapter) Analyze(ctx context.Context, p Payload, c Contract) string {
	parts := make([]rpc.Part, 0, 3)
	if n := int64(len(p.Video)); n > 0 {
		if a.cfg.MaxVideoBytes > 0 && n > a.cfg.MaxVideoBytes {
			a.log.WarnContext(ctx, "video too large, skipped", "size", n, "limit", a.cfg.MaxVideoBytes)
		} else {
			parts = append(parts, rpc.BytesPart("video/mp4", p.Video))
		}
	}
	if n := int64(len(p.Image)); n > 0 {
		if a.cfg.MaxImageBytes > 0 && n > a.cfg.MaxImageBytes {
			a.log.WarnContext(ctx, "image too large, skipped", "size", n, "limit", a.cfg.MaxImageBytes)
		} else {
			parts = append(parts, rpc.BytesPart("image/jpeg", p.Image))
		}
	}
	if p.Prompt != "" {
		parts = append(parts, rpc.TextPart(p.Prompt))
	}

	temp := a.cfg.Temperature
	req := rpc.GenerateRequest{
		Contents: []rpc.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &rpc.GenerationConfig{
			Temperature:     &temp,
			MaxOutputTokens: a.cfg.MaxOutputTokens,
		},
	}
	if c.SystemInstruction != "" {
		req.SystemInstruction = &rpc.Content{Parts: []rpc.Part{rpc.TextPart(c.SystemInstruction)}}
	}
	if c.Schema != nil {
		req.GenerationConfig.ResponseMimeType = "application/json"
		req.GenerationConfig.ResponseSchema = c.Schema
		req.GenerationConfig.TopP = 0.95
		req.GenerationConfig.TopK = 40
	}

	model := p.Model
	if model == "" {
		model = a.cfg.Model
	}
	a.log.InfoContext(ctx, "sending inference request", "contract", c.Name, "model", model, "parts", len(parts))
	text, err := a.gen.Generate(ctx, model, &req)
	if err != nil {
		a.log.ErrorContext(ctx, "inference failed", "contract", c.Name, "err", err)
		return c.Fallback("Error connecting to inference service: " + err.Error())
	}
	if text == "" {
		return c.Fallback("No response received from inference service")
	}
	return text
}

// AnalyzeVideo 视频或音频问答
func (a *Adapter) AnalyzeVideo(ctx context.Context, path, question string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read video: %w", err)
	}
	return a.Analyze(ctx, Payload{Video: b, Prompt: question}, Describe), nil
}

// AnalyzeImage 截图问答
func (a *Adapter) AnalyzeImage(ctx context.Context, path, question string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return a.Analyze(ctx, Payload{Image: b, Prompt: question}, Describe), nil
}

// AnalyzeSegment 告警切片分析，超过 MaxSegmentBytes 的切片直接返回未检出
func (a *Adapter) AnalyzeSegment(ctx context.Context, path, prompt string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return Detect.Fallback("Analysis failed: " + err.Error())
	}
	if a.cfg.MaxSegmentBytes > 0 && fi.Size() > a.cfg.MaxSegmentBytes {
		a.log.WarnContext(ctx, "segment too large, skipped", "path", path, "size", fi.Size())
		return marshal(DetectResult{Summary: "Chunk too large to process", Answer: "File size exceeds limit"})
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Detect.Fallback("Analysis failed: " + err.Error())
	}
	a.log.InfoContext(ctx, "sending segment", "path", path, "size_mb", fmt.Sprintf("%.2f", float64(fi.Size())/(1<<20)))

	// 切片大小已经单独限制，不再受通用视频上限约束
	sub := *a
	sub.cfg.MaxVideoBytes = 0
	return sub.Analyze(ctx, Payload{Video: b, Prompt: prompt, Model: a.cfg.SegmentModel}, Detect)
}

// CleanJSON 容错恢复，结果总是合法 JSON
func CleanJSON(raw string) string {
	return llmjson.Clean(raw)
}

// Decode 容错恢复后解析
func Decode(raw string, v any) error {
	return llmjson.Decode(raw, v)
}

// Ping 检查推理服务连通性
func (a *Adapter) Ping(ctx context.Context) (string, error) {
	return a.gen.Generate(ctx, a.cfg.Model, &rpc.GenerateRequest{
		Contents: []rpc.Content{{Role: "user", Parts: []rpc.Part{rpc.TextPart("Say 'Hello, connection test successful!'")}}},
	})
}
