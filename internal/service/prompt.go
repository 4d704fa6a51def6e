package service

import (
	"fmt"
	"strings"

	"pseudo_practice_backend/internal/model"
)

const evaluationSystemPrompt = `你是一名编程课程助教，负责评阅学生提交的伪代码。
只输出一个 JSON 对象，不要输出任何其他文字，格式如下：
{
  "score": 0-100 的整数,
  "feedback": {
    "correctness": {"score": 0-100, "comment": "..."},
    "efficiency":  {"score": 0-100, "comment": "..."},
    "readability": {"score": 0-100, "comment": "..."},
    "summary": "..."
  },
  "requirementsMet": ["..."],
  "requirementsMissing": ["..."],
  "suggestions": ["..."]
}
requirementsMet 和 requirementsMissing 中的条目必须取自题目给出的要求列表。`

const hintSystemPrompt = `你是一名耐心的编程助教，帮助学生独立完成伪代码题目。
不要直接给出完整答案，每次只给一个方向性的提示。
只输出一个 JSON 对象：{"message": "提示内容"}`

func describeQuestion(b *strings.Builder, q *model.Question) {
	fmt.Fprintf(b, "题目: %s\n", q.Title)
	if q.Description != "" {
		fmt.Fprintf(b, "描述: %s\n", q.Description)
	}
	if len(q.Requirements) > 0 {
		b.WriteString("要求:\n")
		for i, r := range q.Requirements {
			fmt.Fprintf(b, "%d. %s\n", i+1, r)
		}
	}
}

func describeSolution(b *strings.Builder, solution []model.SolutionLine) {
	if len(solution) == 0 {
		b.WriteString("学生尚未提交伪代码。\n")
		return
	}
	b.WriteString("学生的伪代码:\n")
	for _, line := range solution {
		fmt.Fprintf(b, "%d: %s\n", line.LineNumber, line.Text)
	}
}

func buildEvaluationMessages(q *model.Question, solution []model.SolutionLine) []AIChatMessage {
	var b strings.Builder
	describeQuestion(&b, q)
	b.WriteString("\n")
	describeSolution(&b, solution)

	return []AIChatMessage{
		{Role: "system", Content: evaluationSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// buildHintMessages 历史对话按原顺序注入，learnerQuestion 为空时请求下一条提示
func buildHintMessages(q *model.Question, solution []model.SolutionLine, history []model.HintMessage, learnerQuestion string) []AIChatMessage {
	var b strings.Builder
	b.WriteString(hintSystemPrompt)
	b.WriteString("\n\n")
	describeQuestion(&b, q)
	b.WriteString("\n")
	describeSolution(&b, solution)

	messages := make([]AIChatMessage, 0, len(history)+2)
	messages = append(messages, AIChatMessage{Role: "system", Content: b.String()})
	for _, h := range history {
		role := "user"
		if h.From == model.SenderAssistant {
			role = "assistant"
		}
		messages = append(messages, AIChatMessage{Role: role, Content: h.Message})
	}

	if learnerQuestion == "" {
		learnerQuestion = "请给我下一条提示。"
	}
	messages = append(messages, AIChatMessage{Role: "user", Content: learnerQuestion})
	return messages
}

// stripCodeFence 去掉模型偶尔包裹在 JSON 外面的 ``` 代码块
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
