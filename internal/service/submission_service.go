package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/logger"
	"pseudo_practice_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const defaultMarkSolvedTimeout = 5 * time.Second

type ProgressRecordStore interface {
	GetOrCreate(ctx context.Context, userID uint, questionID string) (*model.ProgressRecord, bool, error)
	FindByAttemptID(ctx context.Context, attemptID string) (*model.ProgressRecord, error)
	MarkSolved(ctx context.Context, attemptID string) (bool, error)
	Restore(ctx context.Context, record *model.ProgressRecord) error
	ListUnsolved(ctx context.Context, afterAttemptID string, limit int) ([]model.ProgressRecord, error)
}

type ProgressDocumentStore interface {
	Get(ctx context.Context, attemptID string) (*model.ProgressDocument, error)
	Put(ctx context.Context, attemptID string, doc *model.ProgressDocument) error
	CreateEmpty(ctx context.Context, attemptID string, userID uint, questionID string) (*model.ProgressDocument, error)
}

type QuestionStore interface {
	FindByID(ctx context.Context, id string) (*model.Question, error)
}

type SolutionEvaluator interface {
	Evaluate(ctx context.Context, q *model.Question, solution []model.SolutionLine) (*model.Evaluation, error)
	Hint(ctx context.Context, q *model.Question, solution []model.SolutionLine, history []model.HintMessage, learnerQuestion string) (string, error)
}

// SubmissionService 提交/提示流程的协调者。
// 两个存储之间没有事务：先写文档再写 solved 标记，
// 唯一允许的不一致是“文档比记录新”，由读取时或后台对账修复。
type SubmissionService struct {
	records   ProgressRecordStore
	documents ProgressDocumentStore
	questions QuestionStore
	evaluator SolutionEvaluator

	MarkSolvedTimeout time.Duration
	now               func() time.Time
}

func NewSubmissionService(records ProgressRecordStore, documents ProgressDocumentStore, questions QuestionStore, evaluator SolutionEvaluator) *SubmissionService {
	return &SubmissionService{
		records:           records,
		documents:         documents,
		questions:         questions,
		evaluator:         evaluator,
		MarkSolvedTimeout: defaultMarkSolvedTimeout,
		now:               time.Now,
	}
}

// SubmitSolution 评测一次提交并把 submission/evaluation 合并进文档。
// 推理失败时两个存储都保持调用前的状态。
func (s *SubmissionService) SubmitSolution(ctx context.Context, userID uint, questionID string, solution []model.SolutionLine) (*model.ProgressDocument, error) {
	if !model.HasContent(solution) {
		return nil, fmt.Errorf("%w: solution must contain at least one non-blank line", util.ErrValidation)
	}

	question, err := s.questions.FindByID(ctx, questionID)
	if err != nil {
		return nil, err
	}

	record, doc, err := s.loadAttempt(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}
	s.reconcileSolved(ctx, record, doc)

	evaluation, err := s.evaluator.Evaluate(ctx, question, solution)
	if err != nil {
		logger.Ctx(ctx).Info("solution evaluation failed",
			zap.String("attemptId", record.AttemptID),
			zap.String("kind", util.ErrorKind(err)),
			zap.Error(err))
		return nil, err
	}

	isNowSolved := evaluation != nil && !record.Solved

	now := s.now()
	merged := doc.Clone()
	merged.Submission = &model.Submission{
		Solution:  append([]model.SolutionLine(nil), solution...),
		Timestamp: now,
	}
	merged.Evaluation = evaluation
	merged.Revision++
	merged.UpdatedAt = now

	if err := s.documents.Put(ctx, record.AttemptID, merged); err != nil {
		return nil, err
	}

	if isNowSolved {
		// 失败时文档已领先于记录，交给对账处理，本次提交仍然成功
		_ = s.markSolved(ctx, record.AttemptID, "submission")
	}

	return merged, nil
}

// RequestHint 带着完整的提示历史请求下一条提示，结果追加到 hintHistory。
// 不修改 submission/evaluation，也不触碰 solved 标记。
func (s *SubmissionService) RequestHint(ctx context.Context, userID uint, questionID string, message string) ([]model.HintMessage, error) {
	question, err := s.questions.FindByID(ctx, questionID)
	if err != nil {
		return nil, err
	}

	record, doc, err := s.loadAttempt(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}

	var solution []model.SolutionLine
	if doc.Submission != nil {
		solution = doc.Submission.Solution
	}

	learnerQuestion := strings.TrimSpace(message)
	reply, err := s.evaluator.Hint(ctx, question, solution, doc.HintHistory, learnerQuestion)
	if err != nil {
		logger.Ctx(ctx).Info("hint request failed",
			zap.String("attemptId", record.AttemptID),
			zap.String("kind", util.ErrorKind(err)),
			zap.Error(err))
		return nil, err
	}

	now := s.now()
	merged := doc.Clone()
	if learnerQuestion != "" {
		merged.HintHistory = append(merged.HintHistory, model.HintMessage{
			From:      model.SenderUser,
			Message:   learnerQuestion,
			Timestamp: now,
		})
	}
	merged.HintHistory = append(merged.HintHistory, model.HintMessage{
		From:      model.SenderAssistant,
		Message:   reply,
		Timestamp: now,
	})
	merged.Revision++
	merged.UpdatedAt = now

	if err := s.documents.Put(ctx, record.AttemptID, merged); err != nil {
		return nil, err
	}
	return merged.HintHistory, nil
}

// GetProgress 读取某次作答的文档，只有作答所有者可以读取
func (s *SubmissionService) GetProgress(ctx context.Context, userID uint, attemptID string) (*model.ProgressDocument, error) {
	if strings.TrimSpace(attemptID) == "" {
		return nil, fmt.Errorf("%w: attemptId is required", util.ErrValidation)
	}

	record, err := s.records.FindByAttemptID(ctx, attemptID)
	if errors.Is(err, util.ErrNotFound) {
		return s.restoreFromDocument(ctx, userID, attemptID)
	}
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, fmt.Errorf("%w: attempt %s", util.ErrNotFound, attemptID)
	}

	doc, err := s.loadDocument(ctx, record)
	if err != nil {
		return nil, err
	}
	s.reconcileSolved(ctx, record, doc)
	return doc, nil
}

// loadAttempt 查找或创建记录，并保证记录总有对应的文档
func (s *SubmissionService) loadAttempt(ctx context.Context, userID uint, questionID string) (*model.ProgressRecord, *model.ProgressDocument, error) {
	record, created, err := s.records.GetOrCreate(ctx, userID, questionID)
	if err != nil {
		return nil, nil, err
	}

	if created {
		doc, err := s.documents.CreateEmpty(ctx, record.AttemptID, userID, questionID)
		if err != nil {
			return nil, nil, err
		}
		return record, doc, nil
	}

	doc, err := s.loadDocument(ctx, record)
	if err != nil {
		return nil, nil, err
	}
	return record, doc, nil
}

func (s *SubmissionService) loadDocument(ctx context.Context, record *model.ProgressRecord) (*model.ProgressDocument, error) {
	doc, err := s.documents.Get(ctx, record.AttemptID)
	if errors.Is(err, util.ErrNotFound) {
		// 记录存在而文档缺失：以记录为准重建空文档
		logger.Log.Warn("progress document missing, recreating",
			zap.String("attemptId", record.AttemptID),
			zap.Uint("userId", record.UserID),
			zap.String("questionId", record.QuestionID),
			zap.Bool("solved", record.Solved))
		return s.documents.CreateEmpty(ctx, record.AttemptID, record.UserID, record.QuestionID)
	}
	if err != nil {
		return nil, err
	}

	if doc.UserID != record.UserID || doc.QuestionID != record.QuestionID {
		logger.Log.Error("progress document does not match its record",
			zap.String("attemptId", record.AttemptID),
			zap.Uint("recordUserId", record.UserID),
			zap.Uint("documentUserId", doc.UserID),
			zap.String("recordQuestionId", record.QuestionID),
			zap.String("documentQuestionId", doc.QuestionID))
		return nil, fmt.Errorf("%w: document owner mismatch for attempt %s", util.ErrInconsistentState, record.AttemptID)
	}
	return doc, nil
}

// restoreFromDocument 文档存在而记录缺失：按文档重建记录，solved 由是否有评测结果推导
func (s *SubmissionService) restoreFromDocument(ctx context.Context, userID uint, attemptID string) (*model.ProgressDocument, error) {
	doc, err := s.documents.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("%w: attempt %s", util.ErrNotFound, attemptID)
	}

	record := &model.ProgressRecord{
		AttemptID:  attemptID,
		UserID:     doc.UserID,
		QuestionID: doc.QuestionID,
		Solved:     doc.Evaluation != nil,
	}
	if record.Solved {
		solvedAt := doc.UpdatedAt
		record.SolvedAt = &solvedAt
	}

	logger.Log.Warn("progress record missing, restoring from document",
		zap.String("attemptId", attemptID),
		zap.Uint("userId", doc.UserID),
		zap.String("questionId", doc.QuestionID),
		zap.Bool("solved", record.Solved))
	if err := s.records.Restore(ctx, record); err != nil {
		logger.Log.Error("failed to restore progress record", zap.String("attemptId", attemptID), zap.Error(err))
	}
	return doc, nil
}

// reconcileSolved 文档已有评测结果但记录仍未解决时补写 solved
func (s *SubmissionService) reconcileSolved(ctx context.Context, record *model.ProgressRecord, doc *model.ProgressDocument) {
	if record.Solved || doc.Evaluation == nil {
		return
	}
	logger.Log.Warn("progress record behind its document, marking solved", zap.String("attemptId", record.AttemptID))
	if err := s.markSolved(ctx, record.AttemptID, "read_repair"); err == nil {
		record.Solved = true
	}
}

// markSolved 文档写入成功后执行，不随调用方取消而中断
func (s *SubmissionService) markSolved(ctx context.Context, attemptID, source string) error {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.MarkSolvedTimeout)
	defer cancel()

	transitioned, err := s.records.MarkSolved(mctx, attemptID)
	if err != nil {
		logger.Log.Error("failed to mark attempt solved",
			zap.String("attemptId", attemptID),
			zap.String("source", source),
			zap.Error(err))
		return err
	}
	if transitioned {
		monitoring.SolvedTransitions.WithLabelValues(source).Inc()
	}
	return nil
}
