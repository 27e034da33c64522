package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"scribo-go/internal/config"
	"scribo-go/internal/extract"
	"scribo-go/internal/model"
	"scribo-go/internal/repository"
	"scribo-go/pkg/llm"
	"scribo-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "json", "")
	os.Exit(m.Run())
}

// fakeLLM 返回预设的同步响应与分块序列。
type fakeLLM struct {
	invokeResp   string
	invokeErr    error
	streamChunks []llm.StreamChunk
	streamErr    error
	lastRequest  llm.ChatRequest
}

func (f *fakeLLM) Invoke(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.lastRequest = req
	return f.invokeResp, f.invokeErr
}

func (f *fakeLLM) InvokeStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	f.lastRequest = req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan llm.StreamChunk, len(f.streamChunks))
	for _, c := range f.streamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// fakeSessionRepo 以内存 map 模拟会话存储。
type fakeSessionRepo struct {
	sessions map[string]*model.InterviewSession
	fetchErr error
	saveErr  error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.InterviewSession)}
}

func (f *fakeSessionRepo) key(userID, examID string) string {
	return userID + ":" + examID
}

func (f *fakeSessionRepo) Fetch(ctx context.Context, userID, examID string) (*model.InterviewSession, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	s, ok := f.sessions[f.key(userID, examID)]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) Save(ctx context.Context, session *model.InterviewSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *session
	f.sessions[f.key(session.UserID, session.ExamID)] = &copied
	return nil
}

// collectWriter 收集写入的分块。
type collectWriter struct {
	fragments []string
	writeErr  error
}

func (w *collectWriter) WriteFragment(text string) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.fragments = append(w.fragments, text)
	return nil
}

func interviewCfg() config.InterviewConfig {
	return config.InterviewConfig{ChatMaxTokens: 1000, GenerateMaxTokens: 4000, GenerateTemperature: 0.5}
}

func TestGetOrCreateSessionSeedsGreeting(t *testing.T) {
	repo := newFakeSessionRepo()
	svc := NewInterviewService(&fakeLLM{}, repo, interviewCfg())

	session, err := svc.GetOrCreateSession(context.Background(), "demo-user", "exam-1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error: %v", err)
	}
	if len(session.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(session.History))
	}
	if session.History[0].Role != model.RoleAssistant {
		t.Errorf("greeting role = %s, want assistant", session.History[0].Role)
	}
	if session.Status != model.SessionActive {
		t.Errorf("Status = %s, want active", session.Status)
	}
	if _, ok := repo.sessions["demo-user:exam-1"]; !ok {
		t.Error("new session should be persisted")
	}
}

func TestGetOrCreateSessionDoesNotMaskStoreFailure(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.fetchErr = errors.New("connection refused")
	svc := NewInterviewService(&fakeLLM{}, repo, interviewCfg())

	_, err := svc.GetOrCreateSession(context.Background(), "demo-user", "exam-1")
	if err == nil {
		t.Fatal("store failure must not be masked by session creation")
	}
	if len(repo.sessions) != 0 {
		t.Error("no session should be created on store failure")
	}
}

func TestStreamChatAppendsBothMessages(t *testing.T) {
	repo := newFakeSessionRepo()
	gateway := &fakeLLM{streamChunks: []llm.StreamChunk{
		{Content: "なる"}, {Content: "ほど"}, {Content: "です"},
	}}
	svc := NewInterviewService(gateway, repo, interviewCfg())

	w := &collectWriter{}
	if err := svc.StreamChat(context.Background(), "demo-user", "exam-1", "物流のDXがテーマです", w); err != nil {
		t.Fatalf("StreamChat() error: %v", err)
	}

	if got := strings.Join(w.fragments, ""); got != "なるほどです" {
		t.Errorf("streamed text = %q, want %q", got, "なるほどです")
	}

	session := repo.sessions["demo-user:exam-1"]
	// 问候 + 用户消息 + 助手消息
	if len(session.History) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(session.History))
	}
	if session.History[1].Role != model.RoleUser || session.History[1].Content != "物流のDXがテーマです" {
		t.Errorf("user message = %+v", session.History[1])
	}
	if session.History[2].Role != model.RoleAssistant || session.History[2].Content != "なるほどです" {
		t.Errorf("assistant message = %+v", session.History[2])
	}
}

func TestStreamChatUpfrontFailureBecomesInlineText(t *testing.T) {
	repo := newFakeSessionRepo()
	gateway := &fakeLLM{streamErr: &llm.InvocationError{Status: 503, Body: "overloaded"}}
	svc := NewInterviewService(gateway, repo, interviewCfg())

	w := &collectWriter{}
	if err := svc.StreamChat(context.Background(), "demo-user", "exam-1", "こんにちは", w); err != nil {
		t.Fatalf("StreamChat() error: %v", err)
	}

	if len(w.fragments) != 1 || !strings.HasPrefix(w.fragments[0], "エラーが発生しました") {
		t.Errorf("fragments = %v, want single inline error text", w.fragments)
	}
	// 持久化内容与客户端观察到的一致
	session := repo.sessions["demo-user:exam-1"]
	last := session.History[len(session.History)-1]
	if last.Role != model.RoleAssistant || !strings.HasPrefix(last.Content, "エラーが発生しました") {
		t.Errorf("persisted assistant message = %+v, want inline error text", last)
	}
}

func TestStreamChatMidStreamFailureKeepsPrefix(t *testing.T) {
	repo := newFakeSessionRepo()
	gateway := &fakeLLM{streamChunks: []llm.StreamChunk{
		{Content: "前半"},
		{Err: &llm.InvocationError{Status: 500, Body: "stream cut"}},
	}}
	svc := NewInterviewService(gateway, repo, interviewCfg())

	w := &collectWriter{}
	if err := svc.StreamChat(context.Background(), "demo-user", "exam-1", "続けて", w); err != nil {
		t.Fatalf("StreamChat() error: %v", err)
	}

	full := strings.Join(w.fragments, "")
	if !strings.HasPrefix(full, "前半") || !strings.Contains(full, "エラーが発生しました") {
		t.Errorf("streamed text = %q, want prefix plus inline error", full)
	}
	session := repo.sessions["demo-user:exam-1"]
	last := session.History[len(session.History)-1]
	if last.Content != full {
		t.Errorf("persisted content %q differs from streamed %q", last.Content, full)
	}
}

func TestGenerateProposal(t *testing.T) {
	proposalJSON := "```json\n" + `{
  "theme": "クラウドERP導入による物流DX",
  "breakdown": {"A": "背景", "B": "施策", "C": "評価"},
  "structure": [{"chapter": "第1章", "title": "事業概要", "sections": ["1.1", "1.2"]}],
  "module_map": {"chapter1": ["mod-1"]},
  "reasoning": "会話履歴に基づく"
}` + "\n```"

	repo := newFakeSessionRepo()
	repo.sessions["demo-user:exam-1"] = &model.InterviewSession{
		UserID: "demo-user", ExamID: "exam-1",
		History: []model.ChatMessage{{Role: model.RoleUser, Content: "ERPの話"}},
		Status:  model.SessionActive,
	}
	gateway := &fakeLLM{invokeResp: proposalJSON}
	svc := NewInterviewService(gateway, repo, interviewCfg())

	proposal, err := svc.GenerateProposal(context.Background(), "demo-user", "exam-1")
	if err != nil {
		t.Fatalf("GenerateProposal() error: %v", err)
	}
	if proposal.Theme != "クラウドERP導入による物流DX" {
		t.Errorf("Theme = %q", proposal.Theme)
	}
	if gateway.lastRequest.Temperature == nil || *gateway.lastRequest.Temperature != 0.5 {
		t.Errorf("generation temperature = %v, want 0.5", gateway.lastRequest.Temperature)
	}
	// 骨子が会話文書に保存される
	saved := repo.sessions["demo-user:exam-1"]
	if saved.CurrentProposal == nil || saved.CurrentProposal.Theme != proposal.Theme {
		t.Error("proposal should be attached to the stored session")
	}
}

func TestGenerateProposalMissingSession(t *testing.T) {
	svc := NewInterviewService(&fakeLLM{}, newFakeSessionRepo(), interviewCfg())
	_, err := svc.GenerateProposal(context.Background(), "demo-user", "nope")
	if !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound (no implicit creation)", err)
	}
}

func TestGenerateProposalValidation(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"missing theme", `{"breakdown":{"A":"a","B":"b","C":"c"}}`},
		{"missing breakdown key", `{"theme":"t","breakdown":{"A":"a","B":"b"}}`},
		{"wrong breakdown keys", `{"theme":"t","breakdown":{"A":"a","B":"b","X":"x"}}`},
		{"no json at all", "すみません、もう一度お願いします。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSessionRepo()
			repo.sessions["demo-user:exam-1"] = &model.InterviewSession{
				UserID: "demo-user", ExamID: "exam-1", Status: model.SessionActive,
			}
			svc := NewInterviewService(&fakeLLM{invokeResp: tt.resp}, repo, interviewCfg())

			_, err := svc.GenerateProposal(context.Background(), "demo-user", "exam-1")
			var extractErr *extract.Error
			if !errors.As(err, &extractErr) {
				t.Fatalf("err = %v, want *extract.Error", err)
			}
			if extractErr.Raw == "" {
				t.Error("extract.Error should carry the raw model output")
			}
		})
	}
}

func TestGenerateProposalDefaultsOptionalFields(t *testing.T) {
	repo := newFakeSessionRepo()
	repo.sessions["demo-user:exam-1"] = &model.InterviewSession{
		UserID: "demo-user", ExamID: "exam-1", Status: model.SessionActive,
	}
	resp := `{"theme":"t","breakdown":{"A":"a","B":"b","C":"c"}}`
	svc := NewInterviewService(&fakeLLM{invokeResp: resp}, repo, interviewCfg())

	proposal, err := svc.GenerateProposal(context.Background(), "demo-user", "exam-1")
	if err != nil {
		t.Fatalf("GenerateProposal() error: %v", err)
	}
	if proposal.Structure == nil || proposal.ModuleMap == nil {
		t.Error("optional fields should default to empty, not nil")
	}
	if proposal.Reasoning != "" {
		t.Errorf("Reasoning = %q, want empty", proposal.Reasoning)
	}
}

func TestStreamChatClientDisconnectStillPersists(t *testing.T) {
	repo := newFakeSessionRepo()
	gateway := &fakeLLM{streamChunks: []llm.StreamChunk{{Content: "完全な応答"}}}
	svc := NewInterviewService(gateway, repo, interviewCfg())

	w := &collectWriter{writeErr: fmt.Errorf("broken pipe")}
	if err := svc.StreamChat(context.Background(), "demo-user", "exam-1", "質問", w); err != nil {
		t.Fatalf("StreamChat() error: %v", err)
	}

	session := repo.sessions["demo-user:exam-1"]
	last := session.History[len(session.History)-1]
	if last.Content != "完全な応答" {
		t.Errorf("persisted content = %q, want full response despite disconnect", last.Content)
	}
}
