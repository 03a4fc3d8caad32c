// Package llmjson 从大模型返回的文本中尽力恢复出合法的 JSON
//
// 处理顺序固定: 去掉 markdown 代码块 -> 直接解析 -> 扫描第一个花括号对象 -> 兜底对象
// 任一阶段的输出都是合法 JSON，因此 Clean 可以重复调用而结果不变
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Fallback 所有解析都失败时返回的对象
const Fallback = `{"answer":"Failed to parse response","detected":false,"confidence":0.0,"summary":"JSON parsing error"}`

// objectPattern 匹配外层对象，最多容纳一层嵌套
var objectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// StripFence 提取 ``` 代码块中的内容，支持 ```json 语言标记
// 没有代码块时原样返回
func StripFence(s string) string {
	const fence = "```"
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	body := s[start+len(fence):]
	if strings.HasPrefix(body, "json") {
		body = body[len("json"):]
	}
	end := strings.Index(body, fence)
	if end < 0 {
		// 未闭合的代码块，保留开头之后的所有内容
		return body
	}
	return body[:end]
}

// ParseDirect 判断文本是否为合法 JSON
func ParseDirect(s string) bool {
	return s != "" && json.Valid([]byte(s))
}

// ScanObject 查找第一个花括号对象，并且该对象能被解析
func ScanObject(s string) (string, bool) {
	obj := objectPattern.FindString(s)
	if obj == "" || !json.Valid([]byte(obj)) {
		return "", false
	}
	return obj, true
}

// Clean 依次尝试各个恢复阶段，总是返回合法 JSON
func Clean(raw string) string {
	// 已经是合法 JSON 的文本不再拆解，字符串值中可能包含 ```
	if s := strings.TrimSpace(raw); ParseDirect(s) {
		return s
	}
	s := strings.TrimSpace(StripFence(raw))
	if ParseDirect(s) {
		return s
	}
	if obj, ok := ScanObject(s); ok {
		return obj
	}
	return Fallback
}

// Decode 清洗后解析到 v
func Decode(raw string, v any) error {
	return json.Unmarshal([]byte(Clean(raw)), v)
}
