package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/controller"
	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/database"
	"pseudo_practice_backend/pkg/storage"

	"github.com/gin-gonic/gin"
)

const evaluationJSON = `{"score":85,"feedback":{"correctness":{"score":90,"comment":"正确"},"efficiency":{"score":80,"comment":"O(n)"},"readability":{"score":85,"comment":"清晰"},"summary":"很好"},"requirementsMet":["原地反转"],"requirementsMissing":[],"suggestions":["说明空数组的情况"]}`

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
	hits   *atomic.Int32
}

// newTestServer handler 为 nil 时评测返回 evaluationJSON，提示返回固定文本
func newTestServer(t *testing.T, handler http.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hits := &atomic.Int32{}
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "requirementsMet") {
				fmt.Fprint(w, chatBody(evaluationJSON))
				return
			}
			fmt.Fprint(w, chatBody(`{"message":"试试两个指针"}`))
		}
	}
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ai.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: "test"},
		Database: config.DatabaseConfig{Driver: util.DriverSQLite, Path: filepath.Join(dir, "practice.db")},
		JWT:      config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
		Storage:  config.StorageConfig{Type: util.StorageLocal, LocalPath: filepath.Join(dir, "documents"), DocumentPrefix: "progress"},
		AI:       config.AIConfig{BaseURL: ai.URL, APIKey: "sk-test", Model: "test-model"},
		Inference: config.InferenceConfig{
			MaxConcurrent:     3,
			MaxRequests:       60,
			TimeWindowSeconds: 60,
			TimeoutSeconds:    5,
			MaxRetries:        0,
			AdmissionBackend:  util.AdmissionMemory,
		},
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	provider, err := storage.NewStorageProvider(&cfg.Storage)
	if err != nil {
		t.Fatalf("NewStorageProvider: %v", err)
	}

	app := Build(cfg, db, nil, provider)
	return &testServer{router: app.Router, cfg: cfg, hits: hits}
}

func (s *testServer) do(t *testing.T, method, path string, userID uint, body any) (*httptest.ResponseRecorder, util.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := util.GenerateJWT(userID, "student", s.cfg.JWT.Secret, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp util.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func decodeData[T any](t *testing.T, resp util.Response) T {
	t.Helper()
	var out T
	b, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

var solutionBody = map[string]any{
	"solution": []model.SolutionLine{
		{LineNumber: 1, Text: "i = 0, j = n - 1"},
		{LineNumber: 2, Text: "while i < j: swap a[i], a[j]"},
	},
}

func TestPracticeFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodPost, "/api/questions/reverse-array/hints", 7, map[string]string{"message": "从哪里开始？"})
	if w.Code != http.StatusOK {
		t.Fatalf("hint status = %d: %s", w.Code, w.Body.String())
	}
	hints := decodeData[controller.HintResponse](t, resp).HintHistory
	if len(hints) != 2 || hints[0].From != model.SenderUser || hints[1].Message != "试试两个指针" {
		t.Fatalf("unexpected hint history: %+v", hints)
	}

	w, resp = s.do(t, http.MethodPost, "/api/questions/reverse-array/submissions", 7, solutionBody)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}
	doc := decodeData[model.ProgressDocument](t, resp)
	if doc.Evaluation == nil || doc.Evaluation.Score != 85 {
		t.Fatalf("unexpected evaluation: %+v", doc.Evaluation)
	}
	if doc.Submission == nil || len(doc.Submission.Solution) != 2 {
		t.Errorf("unexpected submission: %+v", doc.Submission)
	}
	if len(doc.HintHistory) != 2 {
		t.Errorf("hint history lost: %d entries", len(doc.HintHistory))
	}

	w, resp = s.do(t, http.MethodGet, "/api/progress/"+doc.AttemptID, 7, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("progress status = %d: %s", w.Code, w.Body.String())
	}
	progress := decodeData[model.ProgressDocument](t, resp)
	if progress.Evaluation == nil || progress.Revision != doc.Revision {
		t.Errorf("progress = %+v, want revision %d", progress, doc.Revision)
	}

	// 其他用户看不到这份进度
	w, _ = s.do(t, http.MethodGet, "/api/progress/"+doc.AttemptID, 8, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign progress status = %d, want 404", w.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		user   uint
		body   any
		status int
	}{
		{"no token", "/api/questions/reverse-array/submissions", 0, solutionBody, http.StatusUnauthorized},
		{"empty solution", "/api/questions/reverse-array/submissions", 7, map[string]any{"solution": []model.SolutionLine{}}, http.StatusBadRequest},
		{"blank lines", "/api/questions/reverse-array/submissions", 7, map[string]any{"solution": []model.SolutionLine{{LineNumber: 1, Text: "   "}}}, http.StatusBadRequest},
		{"missing body", "/api/questions/reverse-array/submissions", 7, nil, http.StatusBadRequest},
		{"unknown question", "/api/questions/nope/submissions", 7, solutionBody, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
		})
	}

	if n := s.hits.Load(); n != 0 {
		t.Errorf("inference called %d times for rejected requests", n)
	}
}

func TestSubmitQuotaExceeded(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"insufficient_quota","message":"You exceeded your current quota"}}`)
	})

	w, resp := s.do(t, http.MethodPost, "/api/questions/reverse-array/submissions", 7, solutionBody)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %s", w.Code, w.Body.String())
	}
	if resp.Error != "quota_exceeded" {
		t.Errorf("error kind = %q", resp.Error)
	}
	if w.Header().Get("Retry-After") != "" {
		t.Error("quota exhaustion is not retryable")
	}
	if n := s.hits.Load(); n != 1 {
		t.Errorf("provider hits = %d, want 1", n)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/api/health", 0, nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d: %s", w.Code, w.Body.String())
	}
}
