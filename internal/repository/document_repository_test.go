package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/storage"
)

func newTestDocuments(t *testing.T) (*DocumentRepository, string) {
	t.Helper()
	root := t.TempDir()
	return NewDocumentRepository(&storage.LocalStorageProvider{Root: root}, "progress"), root
}

func TestDocumentRepository_RoundTrip(t *testing.T) {
	repo, root := newTestDocuments(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.UTC)

	doc := model.NewProgressDocument("attempt-1", 7, "reverse-array", now)
	doc.Revision = 3
	doc.Submission = &model.Submission{
		Solution:  []model.SolutionLine{{LineNumber: 1, Text: "i = 0"}, {LineNumber: 2, Text: ""}},
		Timestamp: now,
	}
	doc.Evaluation = &model.Evaluation{
		Score: 72,
		Feedback: model.Feedback{
			Correctness: model.FeedbackItem{Score: 80, Comment: "基本正确"},
			Efficiency:  model.FeedbackItem{Score: 70, Comment: "O(n)"},
			Readability: model.FeedbackItem{Score: 65, Comment: "变量名可以更清晰"},
			Summary:     "不错",
		},
		RequirementsMet:     []string{"原地反转"},
		RequirementsMissing: []string{},
		Suggestions:         []string{"说明空数组"},
	}
	doc.HintHistory = []model.HintMessage{
		{From: model.SenderUser, Message: "怎么开始？", Timestamp: now},
		{From: model.SenderAssistant, Message: "从两端开始", Timestamp: now},
	}

	if err := repo.Put(ctx, doc.AttemptID, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "progress", "attempt-1.json")); err != nil {
		t.Errorf("expected blob at <prefix>/<attemptId>.json: %v", err)
	}

	got, err := repo.Get(ctx, doc.AttemptID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	want, _ := json.Marshal(doc)
	have, _ := json.Marshal(got)
	if !bytes.Equal(want, have) {
		t.Errorf("round trip mismatch:\nwant %s\n got %s", want, have)
	}
}

func TestDocumentRepository_NotFound(t *testing.T) {
	repo, _ := newTestDocuments(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, util.ErrStoreUnavailable) {
		t.Error("not found must be distinguishable from store failures")
	}
}

func TestDocumentRepository_CorruptDocument(t *testing.T) {
	repo, root := newTestDocuments(t)
	dir := filepath.Join(root, "progress")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Get(context.Background(), "bad"); !errors.Is(err, util.ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}
}

type failingProvider struct{ err error }

func (p failingProvider) Get(context.Context, string) ([]byte, error) {
	return nil, p.err
}

func (p failingProvider) Put(context.Context, string, []byte, string) error {
	return p.err
}

func TestDocumentRepository_StoreUnavailable(t *testing.T) {
	cause := errors.New("access denied")
	repo := NewDocumentRepository(failingProvider{err: cause}, "progress")
	ctx := context.Background()

	_, err := repo.Get(ctx, "a")
	if !errors.Is(err, util.ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Errorf("Get err = %v, want ErrStoreUnavailable wrapping cause", err)
	}

	err = repo.Put(ctx, "a", model.NewProgressDocument("a", 1, "q", time.Now()))
	if !errors.Is(err, util.ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Errorf("Put err = %v, want ErrStoreUnavailable wrapping cause", err)
	}
}

func TestDocumentRepository_CreateEmpty(t *testing.T) {
	repo, _ := newTestDocuments(t)

	doc, err := repo.CreateEmpty(context.Background(), "attempt-9", 4, "binary-search")
	if err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	got, err := repo.Get(context.Background(), "attempt-9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != 4 || got.QuestionID != "binary-search" || got.Submission != nil || got.Evaluation != nil {
		t.Errorf("unexpected empty document: %+v", got)
	}
	if got.HintHistory == nil || len(got.HintHistory) != 0 {
		t.Errorf("hint history should be an empty list, got %v", got.HintHistory)
	}
	if doc.AttemptID != "attempt-9" {
		t.Errorf("attempt id = %s", doc.AttemptID)
	}
}
