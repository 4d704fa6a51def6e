package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/util"
)

// AIService OpenAI 兼容的 /chat/completions 客户端，只负责一次请求/响应，
// 准入、超时和重试由 InferenceBroker 控制。
type AIService struct {
	config     config.AIConfig
	httpClient *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		// 超时由调用方的 context 控制
		httpClient: &http.Client{},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ProviderStatusError 推理服务返回的非 200 响应
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("AI API error (status %d): %s", e.StatusCode, e.Body)
}

// QuotaExceeded 429 且响应体带有额度耗尽标识（insufficient_quota / RESOURCE_EXHAUSTED quota ...）
func (e *ProviderStatusError) QuotaExceeded() bool {
	return e.StatusCode == http.StatusTooManyRequests && strings.Contains(strings.ToLower(e.Body), "quota")
}

// Complete 发送一次非流式请求并返回第一个 choice 的内容
func (s *AIService) Complete(ctx context.Context, messages []AIChatMessage, jsonMode bool) (string, error) {
	reqBody := ChatCompletionRequest{
		Model:    s.config.Model,
		Messages: messages,
	}
	if jsonMode {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decoding completion: %v", util.ErrEmptyOrMalformedResponse, err)
	}
	if result.Error != nil {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Body: result.Error.Message}
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: AI returned no choices", util.ErrEmptyOrMalformedResponse)
	}
	return result.Choices[0].Message.Content, nil
}
