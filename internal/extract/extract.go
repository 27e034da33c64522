// Package extract 从自由格式的模型输出中恢复单个 JSON 负载。
// 模型输出不保证格式良好：负载可能被围栏代码块包裹，也可能混杂在说明文字中。
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error 表示无法从模型输出中恢复结构化负载。
// Raw 保留完整原文，便于定位模型端的输出问题；
// 与 llm.InvocationError 可区分，调用方不会把抽取失败当作传输故障。
type Error struct {
	Raw string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("结构化抽取失败: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var errNoPayload = errors.New("文本中不存在 JSON 负载")

// strategy 从文本中定位一个候选 JSON 片段。定位不到返回 ok=false。
// 策略相互独立，按顺序尝试，便于追加新策略而不改动已有策略。
type strategy func(text string) (candidate string, ok bool)

var strategies = []strategy{
	fencedJSON,
	anyFenced,
	braceSpan,
}

// Payload 按策略顺序定位候选片段，第一个命中的策略决定候选；
// 随后仅解析一次，解析失败即报错，本层不做重试。
func Payload(text string) (json.RawMessage, error) {
	for _, s := range strategies {
		candidate, ok := s(text)
		if !ok {
			continue
		}
		var probe interface{}
		if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
			return nil, &Error{Raw: text, Err: err}
		}
		return json.RawMessage(candidate), nil
	}
	return nil, &Error{Raw: text, Err: errNoPayload}
}

// fencedJSON 使用显式标注为 json 的围栏代码块内容。
func fencedJSON(text string) (string, bool) {
	idx := strings.Index(text, "```json")
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len("```json"):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

// anyFenced 使用第一个围栏代码块的内容。
func anyFenced(text string) (string, bool) {
	idx := strings.Index(text, "```")
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len("```"):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

// braceSpan 取第一个 '{' 到最后一个 '}' 的子串。
func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
