// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。system 角色会被保留在存储中，但组装模型输入时被过滤。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 会话状态。
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// ChatMessage 代表会话文档中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProposalChapter 是论文骨子中的一章：章号、标题与有序的节列表。
type ProposalChapter struct {
	Chapter  string   `json:"chapter"`
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// Proposal 是根据面谈记录生成的论文设计书（骨子）。
// breakdown 的键固定为设问 A/B/C；module_map 引用准备モジュール的 ID。
type Proposal struct {
	Theme     string              `json:"theme"`
	Breakdown map[string]string   `json:"breakdown"`
	Structure []ProposalChapter   `json:"structure"`
	ModuleMap map[string][]string `json:"module_map"`
	Reasoning string              `json:"reasoning,omitempty"`
}

// InterviewSession 是按 (user_id, exam_id) 存储的会话文档。
// history 只追加；文档本身以无条件 upsert 写入，最后写入者胜出。
type InterviewSession struct {
	UserID          string        `json:"user_id"`
	ExamID          string        `json:"exam_id"`
	History         []ChatMessage `json:"history"`
	CurrentProposal *Proposal     `json:"current_proposal,omitempty"`
	Status          string        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
