package inference

import "encoding/json"

// Contract 一类调用声明的输出结构
type Contract struct {
	Name              string
	SystemInstruction string
	// Schema 为空时只在提示词中要求 JSON
	Schema map[string]any
	// Fallback 服务无响应或出错时返回的合成结果
	Fallback func(reason string) string
}

const describeInstruction = `You are a video understanding AI that watches the complete video and extracts all details.

Give an exact audio transcript in audio_description with time stamps like 0:02:680.
Describe actions with time stamps like 0:02:680 in video_description, for example a hand moving or a fan spinning.
Give a complete summary in summary.
Answer the question in answer like a helpful assistant.`

// Describe 问答使用的结构
var Describe = Contract{
	Name:              "describe",
	SystemInstruction: describeInstruction,
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"video_description", "audio_description", "summary", "answer"},
		"properties": map[string]any{
			"video_description": map[string]string{"type": "string"},
			"audio_description": map[string]string{"type": "string"},
			"summary":           map[string]string{"type": "string"},
			"answer":            map[string]string{"type": "string"},
		},
	},
	Fallback: func(reason string) string {
		return marshal(DescribeResult{
			Answer:           reason,
			AudioDescription: "Unable to extract audio description",
			Summary:          "Unable to generate summary",
			VideoDescription: "Unable to extract video description",
		})
	},
}

// Detect 告警切片分析使用的结构，只在提示词中声明
var Detect = Contract{
	Name: "detect",
	Fallback: func(reason string) string {
		return marshal(DetectResult{Summary: reason, Answer: reason})
	},
}

// DescribeResult 问答结果
type DescribeResult struct {
	Answer           string `json:"answer"`
	AudioDescription string `json:"audio_description"`
	Summary          string `json:"summary"`
	VideoDescription string `json:"video_description"`
}

// DetectResult 切片分析结果
type DetectResult struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
	Answer     string  `json:"answer"`
}

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
