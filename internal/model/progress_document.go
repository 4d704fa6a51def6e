package model

import (
	"strings"
	"time"
)

type MessageSender string

const (
	SenderUser      MessageSender = "user"
	SenderAssistant MessageSender = "assistant"
)

// SolutionLine 伪代码中的一行
type SolutionLine struct {
	LineNumber int    `json:"lineNumber" binding:"gte=0"`
	Text       string `json:"text"`
}

type Submission struct {
	Solution  []SolutionLine `json:"solution"`
	Timestamp time.Time      `json:"timestamp"`
}

type FeedbackItem struct {
	Score   int    `json:"score" validate:"gte=0,lte=100"`
	Comment string `json:"comment" validate:"required"`
}

type Feedback struct {
	Correctness FeedbackItem `json:"correctness"`
	Efficiency  FeedbackItem `json:"efficiency"`
	Readability FeedbackItem `json:"readability"`
	Summary     string       `json:"summary" validate:"required"`
}

// Evaluation 一次成功评测的结构化结果
type Evaluation struct {
	Score               int      `json:"score" validate:"gte=0,lte=100"`
	Feedback            Feedback `json:"feedback"`
	RequirementsMet     []string `json:"requirementsMet" validate:"required"`
	RequirementsMissing []string `json:"requirementsMissing" validate:"required"`
	Suggestions         []string `json:"suggestions" validate:"required"`
}

type HintMessage struct {
	From      MessageSender `json:"from"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProgressDocument 以 attemptId 为键存放在对象存储中的作答文档
type ProgressDocument struct {
	AttemptID   string        `json:"attemptId"`
	UserID      uint          `json:"userId"`
	QuestionID  string        `json:"questionId"`
	Revision    int           `json:"revision"`
	Submission  *Submission   `json:"submission,omitempty"`
	Evaluation  *Evaluation   `json:"evaluation,omitempty"`
	HintHistory []HintMessage `json:"hintHistory"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func NewProgressDocument(attemptID string, userID uint, questionID string, now time.Time) *ProgressDocument {
	return &ProgressDocument{
		AttemptID:   attemptID,
		UserID:      userID,
		QuestionID:  questionID,
		HintHistory: []HintMessage{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone 深拷贝，合并写入前使用，避免调用方看到中间状态
func (d *ProgressDocument) Clone() *ProgressDocument {
	out := *d
	if d.Submission != nil {
		s := *d.Submission
		if d.Submission.Solution != nil {
			s.Solution = append(make([]SolutionLine, 0, len(d.Submission.Solution)), d.Submission.Solution...)
		}
		out.Submission = &s
	}
	if d.Evaluation != nil {
		e := *d.Evaluation
		e.RequirementsMet = cloneStrings(d.Evaluation.RequirementsMet)
		e.RequirementsMissing = cloneStrings(d.Evaluation.RequirementsMissing)
		e.Suggestions = cloneStrings(d.Evaluation.Suggestions)
		out.Evaluation = &e
	}
	out.HintHistory = append(make([]HintMessage, 0, len(d.HintHistory)), d.HintHistory...)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

// HasContent 至少一行非空白
func HasContent(lines []SolutionLine) bool {
	for _, l := range lines {
		if strings.TrimSpace(l.Text) != "" {
			return true
		}
	}
	return false
}
