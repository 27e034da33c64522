// Package prompt 根据会话与提出状态确定性地渲染模型请求。
// 这里的函数都是纯函数：相同输入产生相同的请求负载。
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"scribo-go/internal/model"
	"scribo-go/pkg/llm"
)

// Greeting 是新建会话时播种的助手问候语。
const Greeting = "こんにちは！Scribo AIインタビューへようこそ。\nまずは、この論文で取り組みたいテーマや、想定している業務背景について教えていただけますか？"

// interviewSystemPrompt 是面谈回合的固定系统指令：引导式导师，一次只问一个问题。
const interviewSystemPrompt = `あなたはIPA（情報処理推進機構）のITストラテジスト試験の論文対策を支援するAIメンターです。
ユーザー（受験者）との対話を通じて、合格レベルの論文設計（骨子）を作成することが目標です。

以下のステップで対話を進めてください：
1. **テーマ設定**: どのような業務、どのような課題、どのようなITソリューションを扱うかを確認する。
2. **状況把握**: 企業の概要、立場、具体的な課題の背景を深掘りする。
3. **施策検討**: 課題解決のためのIT戦略、導入プロセス、リスク対策などを具体化する。
4. **評価**: 施策の成果、残された課題、今後の展望を整理する。

**振る舞いのルール**:
- 一度に多くの質問をせず、1つずつ丁寧に掘り下げてください。
- ユーザーの回答が曖昧な場合は、具体例を挙げたり、選択肢を提示したりして誘導してください。
- 常に「ITストラテジスト」としての視点（経営への貢献、リーダーシップ）を意識させてください。
- 励ましつつも、論理的な矛盾や具体性不足には鋭く指摘してください。`

// proposalSystemPrompt 规定骨子生成的目标 JSON 模式。
const proposalSystemPrompt = `あなたはITストラテジスト試験の論文設計を支援するAIアシスタントです。
これまでの会話履歴に基づいて、論文の設計書（Design Proposal）を作成してください。

出力は以下のJSON形式のみとしてください。余計な説明は不要です。

{
    "theme": "論文のテーマ",
    "breakdown": {
        "A": "設問アの概要",
        "B": "設問イの概要",
        "C": "設問ウの概要"
    },
    "structure": [
        {
            "chapter": "第1章",
            "title": "章のタイトル",
            "sections": ["節1", "節2"]
        }
    ],
    "module_map": {
        "chapter1": ["module_id1", "module_id2"]
    },
    "reasoning": "この設計にした理由の簡単な説明"
}`

// Criterion 是一个固定的评价观点。8 个观点的权重合计为 1.0。
type Criterion struct {
	Name        string
	Weight      string
	Description string
}

// Criteria 是采点规约的 8 个固定评价观点。
var Criteria = []Criterion{
	{"充足度", "0.15", "設問の要求を満たしているか"},
	{"具体性", "0.15", "具体的な事例・数値が含まれているか"},
	{"妥当性", "0.15", "論理的に妥当な内容か"},
	{"一貫性", "0.10", "論文全体で一貫性があるか"},
	{"主張", "0.15", "明確な主張があるか"},
	{"洞察力-行動力", "0.10", "深い洞察と行動が示されているか"},
	{"独創性-先見性", "0.10", "独自の視点があるか"},
	{"表現力", "0.10", "分かりやすい表現か"},
}

// 設問の正準順序。採点プロンプトの決定性を保つ。
var questionOrder = []string{"設問ア", "設問イ", "設問ウ"}

// AnswerLength 返回回答的文字数：去除空格与换行后的 rune 数。
// 論文は分かち書きのない文字体系で書かれるため、単語数ではなく文字数を数える。
func AnswerLength(s string) int {
	stripped := strings.NewReplacer(" ", "", "\n", "").Replace(s)
	return utf8.RuneCountInString(stripped)
}

// ChatTurn 构建一次面谈回合的请求：固定系统指令 + 过滤 system 角色后的历史。
// 历史的最后一条应为本回合的用户消息。
func ChatTurn(history []model.ChatMessage, maxTokens int) llm.ChatRequest {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		// System ロールは履歴に残るが、モデル入力には含めない
		if m.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return llm.ChatRequest{
		System:    interviewSystemPrompt,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
}

// ProposalRequest 构建骨子生成的抽取请求：目标模式 + 序列化的会话记录。
func ProposalRequest(history []model.ChatMessage, maxTokens int, temperature float64) llm.ChatRequest {
	var transcript strings.Builder
	for _, m := range history {
		if m.Role == model.RoleSystem {
			continue
		}
		label := "Assistant"
		if m.Role == model.RoleUser {
			label = "User"
		}
		transcript.WriteString(fmt.Sprintf("%s: %s\n", label, m.Content))
	}

	userMsg := fmt.Sprintf(`以下の会話履歴に基づいて、論文設計書をJSON形式で出力してください。

--- 会話履歴 ---
%s----------------`, transcript.String())

	t := temperature
	return llm.ChatRequest{
		System:      proposalSystemPrompt,
		Messages:    []llm.Message{{Role: model.RoleUser, Content: userMsg}},
		MaxTokens:   maxTokens,
		Temperature: &t,
	}
}

// ScoringRequest 构建采点请求。每个设问段落前置本地计算的文字数；
// A〜D のランク基準はあくまで参考情報であり、ランクの再計算は行わない。
func ScoringRequest(answers map[string]string, maxTokens int) llm.ChatRequest {
	var sb strings.Builder
	sb.WriteString("あなたはIPA情報処理技術者試験の午後Ⅱ論述式問題の採点者です。\n")
	sb.WriteString("以下の回答を評価してください。\n\n")

	sb.WriteString("## 評価観点（各0-100点）\n")
	for i, c := range Criteria {
		sb.WriteString(fmt.Sprintf("%d. %s (weight: %s) - %s\n", i+1, c.Name, c.Weight, c.Description))
	}

	sb.WriteString("\n## ランク基準（参考）\n")
	sb.WriteString("A: 合格水準。論旨が一貫し、具体性と説得力がある\n")
	sb.WriteString("B: 合格水準に一歩届かない。部分的に具体性・一貫性を欠く\n")
	sb.WriteString("C: 内容が不十分。設問要求の一部にしか答えていない\n")
	sb.WriteString("D: 出題趣旨から逸脱している\n")

	sb.WriteString("\n## 回答内容\n")
	for _, q := range orderedQuestions(answers) {
		answer := answers[q]
		sb.WriteString(fmt.Sprintf("\n### %s（%d文字）\n%s\n", q, AnswerLength(answer), answer))
	}

	sb.WriteString("\n## 出力形式\n")
	sb.WriteString("JSON形式で以下の構造で出力してください：\n")
	sb.WriteString(`{
  "question_breakdown": {
    "設問ア": {
      "level": "A/B/C/D",
      "question_score": 0-100,
      "criteria_scores": [
        {"criterion": "充足度", "weight": 0.15, "points": 0-100, "comment": "..."}
      ]
    },
    "設問イ": { ... },
    "設問ウ": { ... }
  },
  "aggregate_score": 0-100,
  "final_rank": "A/B/C/D",
  "feedback": "全体的なフィードバック"
}`)
	sb.WriteString("\n")

	return llm.ChatRequest{
		Messages:  []llm.Message{{Role: model.RoleUser, Content: sb.String()}},
		MaxTokens: maxTokens,
	}
}

// RewriteRequest 构建モジュール内容的论文体改写请求。
func RewriteRequest(text, category string) llm.ChatRequest {
	content := fmt.Sprintf(`あなたはITストラテジスト試験の合格論文を書くプロフェッショナルです。
以下のテキストを、ITストラテジスト試験の論文としてふさわしい表現にリライトしてください。

【要件】
1. 「だ・である」調で統一すること。
2. 具体的かつ定量的な表現を用いること（数値や固有名詞を補完するプレースホルダーを含めても良い）。
3. 論理的で説得力のある文章にすること。
4. カテゴリ「%s」に適した文脈で書くこと。
5. 出力はリライト後のテキストのみとすること。

【元のテキスト】
%s`, category, text)

	return llm.ChatRequest{
		Messages:  []llm.Message{{Role: model.RoleUser, Content: content}},
		MaxTokens: 1000,
	}
}

// orderedQuestions 按正準順序（設問ア・イ・ウ）排列设问键，未知键按字典序排在其后。
func orderedQuestions(answers map[string]string) []string {
	ordered := make([]string, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	for _, q := range questionOrder {
		if _, ok := answers[q]; ok {
			ordered = append(ordered, q)
			seen[q] = true
		}
	}
	var rest []string
	for q := range answers {
		if !seen[q] {
			rest = append(rest, q)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}
