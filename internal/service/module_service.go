package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribo-go/internal/model"
	"scribo-go/internal/prompt"
	"scribo-go/internal/repository"
	"scribo-go/pkg/llm"
)

// ModuleInput 是创建/更新准备模块时的入参。
// 更新时 nil 字段表示保持原值。
type ModuleInput struct {
	Title    *string
	Category *string
	Content  *string
	Tags     []string
}

// ModuleService 定义了准备模块（论文素材）的管理接口。
type ModuleService interface {
	List(ctx context.Context, userID string) ([]model.Module, error)
	Create(ctx context.Context, userID, title, category, content string, tags []string) (*model.Module, error)
	Get(ctx context.Context, userID, moduleID string) (*model.Module, error)
	Update(ctx context.Context, userID, moduleID string, in ModuleInput) (*model.Module, error)
	Delete(ctx context.Context, userID, moduleID string) error
	// Seed 为用户投入一套示例模块（背景/課題/解決策/効果各一条）。
	Seed(ctx context.Context, userID string) ([]model.Module, error)
	// Rewrite 用模型把素材文本改写成论文调。
	Rewrite(ctx context.Context, text, category string) (string, error)
}

type moduleService struct {
	moduleRepo repository.ModuleRepository
	llmClient  llm.Client
}

// NewModuleService 创建一个新的 ModuleService 实例。
func NewModuleService(moduleRepo repository.ModuleRepository, llmClient llm.Client) ModuleService {
	return &moduleService{moduleRepo: moduleRepo, llmClient: llmClient}
}

const (
	maxModuleTitle   = 100
	maxModuleContent = 2000
)

func validateModuleFields(title, category, content string) error {
	if title == "" || len([]rune(title)) > maxModuleTitle {
		return &ValidationError{Reason: fmt.Sprintf("标题长度必须在 1~%d 字之间", maxModuleTitle)}
	}
	if category == "" {
		return &ValidationError{Reason: "分类不能为空"}
	}
	if content == "" || len([]rune(content)) > maxModuleContent {
		return &ValidationError{Reason: fmt.Sprintf("内容长度必须在 1~%d 字之间", maxModuleContent)}
	}
	return nil
}

func (s *moduleService) List(ctx context.Context, userID string) ([]model.Module, error) {
	return s.moduleRepo.ListByUser(ctx, userID)
}

func (s *moduleService) Create(ctx context.Context, userID, title, category, content string, tags []string) (*model.Module, error) {
	if err := validateModuleFields(title, category, content); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("序列化标签失败: %w", err)
	}
	m := &model.Module{
		ModuleID: uuid.NewString(),
		UserID:   userID,
		Title:    title,
		Category: category,
		Content:  content,
		Tags:     string(tagsJSON),
	}
	if err := s.moduleRepo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *moduleService) Get(ctx context.Context, userID, moduleID string) (*model.Module, error) {
	return s.moduleRepo.FindByID(ctx, userID, moduleID)
}

func (s *moduleService) Update(ctx context.Context, userID, moduleID string, in ModuleInput) (*model.Module, error) {
	m, err := s.moduleRepo.FindByID(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		m.Title = *in.Title
	}
	if in.Category != nil {
		m.Category = *in.Category
	}
	if in.Content != nil {
		m.Content = *in.Content
	}
	if in.Tags != nil {
		tagsJSON, err := json.Marshal(in.Tags)
		if err != nil {
			return nil, fmt.Errorf("序列化标签失败: %w", err)
		}
		m.Tags = string(tagsJSON)
	}
	if err := validateModuleFields(m.Title, m.Category, m.Content); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now()
	if err := s.moduleRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *moduleService) Delete(ctx context.Context, userID, moduleID string) error {
	return s.moduleRepo.Delete(ctx, userID, moduleID)
}

// 示例素材：一套完整的 IT 战略案例，覆盖背景/課題/解決策/効果四类。
var seedModules = []struct {
	Title    string
	Category string
	Content  string
	Tags     []string
}{
	{
		Title:    "A社（中堅物流企業）の事業概要",
		Category: "背景",
		Content:  "A社は売上高500億円の中堅物流企業である。主要顧客は大手EC事業者であり、多品種少量の配送ニーズが急増している。しかし、倉庫内作業は人手に頼る部分が多く、労働力不足が深刻な課題となっている。経営戦略として「デジタル技術を活用した業務効率化と配送品質の向上」を掲げている。",
		Tags:     []string{"物流", "人手不足", "DX"},
	},
	{
		Title:    "レガシーシステムによるデータ連携の遅延",
		Category: "課題",
		Content:  "現行の在庫管理システムは20年前に構築されたオンプレミスのレガシーシステムであり、配送管理システムとのデータ連携がバッチ処理（1日1回）で行われている。このため、リアルタイムな在庫状況が把握できず、受注時の欠品や過剰在庫が発生している。また、システム保守の属人化も進んでおり、改修に多大な時間とコストを要している。",
		Tags:     []string{"レガシーシステム", "データ連携", "リアルタイム性"},
	},
	{
		Title:    "クラウドERP導入とAPI連携基盤の構築",
		Category: "解決策",
		Content:  "レガシーシステムを刷新し、クラウドベースのERPパッケージを導入することを提案した。同時に、各システム間を疎結合に連携させるためのAPI連携基盤を構築し、在庫情報のリアルタイム更新を実現するアーキテクチャを採用した。移行においては、業務への影響を最小限に抑えるため、段階的な移行計画（ストラングラーパターン）を策定した。",
		Tags:     []string{"クラウド移行", "ERP", "API連携", "段階的移行"},
	},
	{
		Title:    "在庫回転率の向上と顧客満足度の改善",
		Category: "効果",
		Content:  "新システムの導入により、在庫情報のリアルタイム可視化が実現し、在庫回転率が従来比で15%向上した。また、欠品による機会損失が大幅に減少し、顧客からのクレーム件数も30%削減された。さらに、システム保守コストも20%削減され、IT部門のリソースを戦略的なDX推進にシフトすることが可能となった。",
		Tags:     []string{"KPI達成", "コスト削減", "顧客満足度"},
	},
}

func (s *moduleService) Seed(ctx context.Context, userID string) ([]model.Module, error) {
	created := make([]model.Module, 0, len(seedModules))
	for _, tmpl := range seedModules {
		tagsJSON, err := json.Marshal(tmpl.Tags)
		if err != nil {
			return nil, fmt.Errorf("序列化标签失败: %w", err)
		}
		m := &model.Module{
			ModuleID: uuid.NewString(),
			UserID:   userID,
			Title:    tmpl.Title,
			Category: tmpl.Category,
			Content:  tmpl.Content,
			Tags:     string(tagsJSON),
		}
		if err := s.moduleRepo.Create(ctx, m); err != nil {
			return nil, err
		}
		created = append(created, *m)
	}
	return created, nil
}

func (s *moduleService) Rewrite(ctx context.Context, text, category string) (string, error) {
	if text == "" || len([]rune(text)) > maxModuleContent {
		return "", &ValidationError{Reason: fmt.Sprintf("待改写文本长度必须在 1~%d 字之间", maxModuleContent)}
	}
	if category == "" {
		return "", &ValidationError{Reason: "分类不能为空"}
	}
	req := prompt.RewriteRequest(text, category)
	out, err := s.llmClient.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
