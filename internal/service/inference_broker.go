package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/logger"
	"pseudo_practice_backend/pkg/monitoring"
	"pseudo_practice_backend/pkg/tracing"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	opEvaluate = "evaluate"
	opHint     = "hint"
)

// ChatCompleter 对推理服务的一次请求/响应调用
type ChatCompleter interface {
	Complete(ctx context.Context, messages []AIChatMessage, jsonMode bool) (string, error)
}

type BrokerOptions struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// InferenceBroker 评测与提示调用的唯一出口：准入控制、单次超时、
// 仅针对网络/超时的有限重试，以及失败分类。
type InferenceBroker struct {
	client   ChatCompleter
	admitter Admitter
	opts     BrokerOptions
	validate *validator.Validate
	now      func() time.Time
}

func NewInferenceBroker(client ChatCompleter, admitter Admitter, opts BrokerOptions) *InferenceBroker {
	return &InferenceBroker{
		client:   client,
		admitter: admitter,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// UpdateLimits 配置热更新时调整准入上限
func (b *InferenceBroker) UpdateLimits(limits AdmissionLimits) {
	b.admitter.SetLimits(limits)
	logger.Log.Info("inference admission limits updated",
		zap.Int("maxConcurrent", limits.MaxConcurrent),
		zap.Int("maxRequests", limits.MaxRequests),
		zap.Duration("timeWindow", limits.TimeWindow))
}

type evaluationPayload struct {
	Score               *int            `json:"score" validate:"required,gte=0,lte=100"`
	Feedback            *model.Feedback `json:"feedback" validate:"required"`
	RequirementsMet     []string        `json:"requirementsMet" validate:"required"`
	RequirementsMissing []string        `json:"requirementsMissing" validate:"required"`
	Suggestions         []string        `json:"suggestions" validate:"required"`
}

type hintPayload struct {
	Message string `json:"message" validate:"required"`
}

func (b *InferenceBroker) Evaluate(ctx context.Context, q *model.Question, solution []model.SolutionLine) (*model.Evaluation, error) {
	ctx, span := tracing.Tracer.Start(ctx, "inference.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("question.id", q.ID), attribute.Int("solution.lines", len(solution)))

	start := b.now()
	content, err := b.call(ctx, opEvaluate, buildEvaluationMessages(q, solution))
	var eval *model.Evaluation
	if err == nil {
		eval, err = b.parseEvaluation(content)
	}
	b.observe(span, opEvaluate, start, err)
	if err != nil {
		return nil, err
	}
	return eval, nil
}

func (b *InferenceBroker) Hint(ctx context.Context, q *model.Question, solution []model.SolutionLine, history []model.HintMessage, learnerQuestion string) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "inference.hint")
	defer span.End()
	span.SetAttributes(attribute.String("question.id", q.ID), attribute.Int("hint.history", len(history)))

	start := b.now()
	content, err := b.call(ctx, opHint, buildHintMessages(q, solution, history, learnerQuestion))
	var message string
	if err == nil {
		message, err = b.parseHint(content)
	}
	b.observe(span, opHint, start, err)
	if err != nil {
		return "", err
	}
	return message, nil
}

func (b *InferenceBroker) call(ctx context.Context, op string, messages []AIChatMessage) (string, error) {
	if !b.admitter.TryAdmit(ctx, b.now()) {
		logger.Ctx(ctx).Warn("inference call rejected by admission control", zap.String("operation", op))
		return "", fmt.Errorf("%w: %s", util.ErrRateLimited, op)
	}

	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := b.opts.RetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", callerGone(ctx)
			case <-time.After(backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
		content, err := b.client.Complete(attemptCtx, messages, true)
		attemptTimedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", callerGone(ctx)
		}

		classified, retry := classifyCallError(err, attemptTimedOut)
		if !retry {
			return "", classified
		}
		lastErr = classified
		logger.Ctx(ctx).Warn("inference transport failure",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", b.opts.MaxRetries+1),
			zap.Error(err))
	}
	return "", lastErr
}

// callerGone 调用方取消或截止时间已到
func callerGone(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", util.ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %w", util.ErrProviderError, ctx.Err())
}

// classifyCallError 返回分类后的错误以及是否值得在传输层重试。
// 只有超时和网络错误会重试；内容错误和远端状态码都是终态。
func classifyCallError(err error, attemptTimedOut bool) (error, bool) {
	var statusErr *ProviderStatusError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.Is(err, util.ErrEmptyOrMalformedResponse):
		return err, false
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusTooManyRequests {
			if statusErr.QuotaExceeded() {
				return fmt.Errorf("%w: %v", util.ErrQuotaExceeded, err), false
			}
			return fmt.Errorf("%w: %v", util.ErrProviderRateLimited, err), false
		}
		return fmt.Errorf("%w: %v", util.ErrProviderError, err), false
	case attemptTimedOut, errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", util.ErrTimeout, err), true
	case errors.As(err, &urlErr):
		return fmt.Errorf("%w: %v", util.ErrProviderError, err), true
	default:
		return fmt.Errorf("%w: %v", util.ErrProviderError, err), false
	}
}

func (b *InferenceBroker) parseEvaluation(content string) (*model.Evaluation, error) {
	raw := stripCodeFence(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty evaluation", util.ErrEmptyOrMalformedResponse)
	}

	var p evaluationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: decoding evaluation: %v", util.ErrEmptyOrMalformedResponse, err)
	}
	if err := b.validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: invalid evaluation: %v", util.ErrEmptyOrMalformedResponse, err)
	}

	return &model.Evaluation{
		Score:               *p.Score,
		Feedback:            *p.Feedback,
		RequirementsMet:     p.RequirementsMet,
		RequirementsMissing: p.RequirementsMissing,
		Suggestions:         p.Suggestions,
	}, nil
}

func (b *InferenceBroker) parseHint(content string) (string, error) {
	raw := stripCodeFence(content)
	if raw == "" {
		return "", fmt.Errorf("%w: empty hint", util.ErrEmptyOrMalformedResponse)
	}

	var p hintPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("%w: decoding hint: %v", util.ErrEmptyOrMalformedResponse, err)
	}
	p.Message = strings.TrimSpace(p.Message)
	if err := b.validate.Struct(&p); err != nil {
		return "", fmt.Errorf("%w: invalid hint: %v", util.ErrEmptyOrMalformedResponse, err)
	}
	return p.Message, nil
}

func (b *InferenceBroker) observe(span trace.Span, op string, start time.Time, err error) {
	monitoring.InferenceDuration.WithLabelValues(op).Observe(b.now().Sub(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = util.ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("inference.outcome", outcome))
	monitoring.InferenceCalls.WithLabelValues(op, outcome).Inc()
}
