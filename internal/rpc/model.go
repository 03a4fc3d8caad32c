package rpc

import "encoding/base64"

type (
	// Blob 内联的二进制数据，data 为 base64
	Blob struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	Part struct {
		Text       string `json:"text,omitempty"`
		InlineData *Blob  `json:"inlineData,omitempty"`
	}
	Content struct {
		Role  string `json:"role,omitempty"`
		Parts []Part `json:"parts"`
	}
	GenerationConfig struct {
		ResponseMimeType string         `json:"responseMimeType,omitempty"`
		ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
		Temperature      *float64       `json:"temperature,omitempty"`
		MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
		TopP             float64        `json:"topP,omitempty"`
		TopK             int            `json:"topK,omitempty"`
	}
	GenerateRequest struct {
		Contents          []Content         `json:"contents"`
		SystemInstruction *Content          `json:"systemInstruction,omitempty"`
		GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	}
	Candidate struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	}
	GenerateResponse struct {
		Candidates []Candidate `json:"candidates"`
	}
	// APIError 服务端返回的错误结构
	APIError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
)

// TextPart 文本片段
func TextPart(s string) Part {
	return Part{Text: s}
}

// BytesPart 二进制片段，按 mime 类型内联上传
func BytesPart(mime string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}}
}

// Text 拼接第一个有内容的候选结果中的文本
func (r *GenerateResponse) Text() string {
	for _, c := range r.Candidates {
		var out string
		for _, p := range c.Content.Parts {
			if p.Text == "" {
				continue
			}
			if out != "" {
				out += " "
			}
			out += p.Text
		}
		if out != "" {
			return out
		}
	}
	return ""
}

// FinishReason 第一个候选结果的结束原因
func (r *GenerateResponse) FinishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}
