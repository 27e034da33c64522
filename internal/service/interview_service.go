// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scribo-go/internal/config"
	"scribo-go/internal/extract"
	"scribo-go/internal/model"
	"scribo-go/internal/prompt"
	"scribo-go/internal/repository"
	"scribo-go/pkg/llm"
	"scribo-go/pkg/log"
)

// FragmentWriter 接收流式回合的一个文本分块。
// SSE 与 WebSocket 两种传输各自实现该接口。
type FragmentWriter interface {
	WriteFragment(text string) error
}

// InterviewService 定义了 AI 面谈相关的操作接口。
type InterviewService interface {
	// GetOrCreateSession 取得会话；键不存在时创建并播种问候语。
	GetOrCreateSession(ctx context.Context, userID, examID string) (*model.InterviewSession, error)
	// StreamChat 处理一个面谈回合：追加用户消息、流式转发模型输出、持久化助手消息。
	StreamChat(ctx context.Context, userID, examID, message string, w FragmentWriter) error
	// GenerateProposal 根据面谈记录生成论文骨子并挂到会话上。
	// 会话不存在时返回 repository.ErrSessionNotFound，不会隐式创建。
	GenerateProposal(ctx context.Context, userID, examID string) (*model.Proposal, error)
}

type interviewService struct {
	llmClient   llm.Client
	sessionRepo repository.SessionRepository
	cfg         config.InterviewConfig
}

// NewInterviewService 创建一个新的 InterviewService 实例。
func NewInterviewService(llmClient llm.Client, sessionRepo repository.SessionRepository, cfg config.InterviewConfig) InterviewService {
	return &interviewService{
		llmClient:   llmClient,
		sessionRepo: sessionRepo,
		cfg:         cfg,
	}
}

// GetOrCreateSession 取得会话。只有确定键不存在时才重建；
// 存储故障原样上抛，不会用新会话掩盖。
func (s *interviewService) GetOrCreateSession(ctx context.Context, userID, examID string) (*model.InterviewSession, error) {
	session, err := s.sessionRepo.Fetch(ctx, userID, examID)
	if err == repository.ErrSessionNotFound {
		return s.createSession(ctx, userID, examID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// createSession 创建新会话并播种一条助手问候消息。
func (s *interviewService) createSession(ctx context.Context, userID, examID string) (*model.InterviewSession, error) {
	now := time.Now()
	session := &model.InterviewSession{
		UserID: userID,
		ExamID: examID,
		History: []model.ChatMessage{
			{Role: model.RoleAssistant, Content: prompt.Greeting, Timestamp: now},
		},
		Status:    model.SessionActive,
		CreatedAt: now,
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// StreamChat 驱动一次流式面谈回合。
// 单次请求内保证因果顺序：用户消息落库先于模型调用，模型调用先于助手消息落库。
// 模型调用与最终落库使用后台上下文：客户端断开后推理与持久化仍会完成，
// 保证后续回合的上下文一致。
func (s *interviewService) StreamChat(ctx context.Context, userID, examID, message string, w FragmentWriter) error {
	session, err := s.GetOrCreateSession(ctx, userID, examID)
	if err != nil {
		return fmt.Errorf("获取会话失败: %w", err)
	}

	session.History = append(session.History, model.ChatMessage{
		Role:      model.RoleUser,
		Content:   message,
		Timestamp: time.Now(),
	})
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return fmt.Errorf("保存用户消息失败: %w", err)
	}

	req := prompt.ChatTurn(session.History, s.cfg.ChatMaxTokens)

	// 流式响应头一旦送出就无法改写状态码，
	// 之后的任何失败都降级为流内的可读错误文本。
	var full string
	clientGone := false
	write := func(text string) {
		if clientGone {
			return
		}
		if err := w.WriteFragment(text); err != nil {
			// 客户端断开：停止下发，但继续积累完整文本
			clientGone = true
			log.Warnf("下发分块失败，客户端可能已断开: %v", err)
		}
	}

	ch, err := s.llmClient.InvokeStream(context.Background(), req)
	if err != nil {
		log.Error("流式模型调用失败", err)
		full = inlineError(err)
		write(full)
	} else {
		for chunk := range ch {
			if chunk.Err != nil {
				log.Error("模型流中断", chunk.Err)
				errText := inlineError(chunk.Err)
				full += errText
				write(errText)
				continue
			}
			full += chunk.Content
			write(chunk.Content)
		}
	}

	// 持久化的记录必须与客户端观察到的内容一致，包括流内错误文本。
	session.History = append(session.History, model.ChatMessage{
		Role:      model.RoleAssistant,
		Content:   full,
		Timestamp: time.Now(),
	})
	if err := s.sessionRepo.Save(context.Background(), session); err != nil {
		log.Error("保存助手消息失败", err)
		return fmt.Errorf("保存助手消息失败: %w", err)
	}
	return nil
}

func inlineError(err error) string {
	return fmt.Sprintf("エラーが発生しました: %v", err)
}

// GenerateProposal 一次性（非流式）生成论文骨子。
func (s *interviewService) GenerateProposal(ctx context.Context, userID, examID string) (*model.Proposal, error) {
	session, err := s.sessionRepo.Fetch(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	req := prompt.ProposalRequest(session.History, s.cfg.GenerateMaxTokens, s.cfg.GenerateTemperature)
	raw, err := s.llmClient.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	proposal, err := parseProposal(raw)
	if err != nil {
		return nil, err
	}

	session.CurrentProposal = proposal
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("保存骨子失败: %w", err)
	}
	return proposal, nil
}

// parseProposal 从模型输出恢复 Proposal 并校验必须字段。
// 可选字段缺失时填充文档化的默认值（空串/空映射/空序列）。
func parseProposal(raw string) (*model.Proposal, error) {
	payload, err := extract.Payload(raw)
	if err != nil {
		return nil, err
	}

	var proposal model.Proposal
	if err := json.Unmarshal(payload, &proposal); err != nil {
		return nil, &extract.Error{Raw: raw, Err: err}
	}

	if proposal.Theme == "" {
		return nil, &extract.Error{Raw: raw, Err: fmt.Errorf("theme 字段缺失")}
	}
	if len(proposal.Breakdown) != 3 {
		return nil, &extract.Error{Raw: raw, Err: fmt.Errorf("breakdown 的键必须为 A/B/C")}
	}
	for _, k := range []string{"A", "B", "C"} {
		if _, ok := proposal.Breakdown[k]; !ok {
			return nil, &extract.Error{Raw: raw, Err: fmt.Errorf("breakdown 缺少键 %s", k)}
		}
	}
	if proposal.Structure == nil {
		proposal.Structure = []model.ProposalChapter{}
	}
	if proposal.ModuleMap == nil {
		proposal.ModuleMap = map[string][]string{}
	}
	return &proposal, nil
}
