package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/storage"
)

// DocumentRepository 作答文档的对象存储读写。
// 整篇覆盖写，后写者胜出；存储端只看到不透明的 JSON 字节。
type DocumentRepository struct {
	Provider storage.StorageProvider
	Prefix   string
}

func NewDocumentRepository(provider storage.StorageProvider, prefix string) *DocumentRepository {
	return &DocumentRepository{Provider: provider, Prefix: prefix}
}

func (r *DocumentRepository) key(attemptID string) string {
	return path.Join(r.Prefix, attemptID+".json")
}

// Get 文档不存在时返回 util.ErrNotFound，其他存储故障返回 util.ErrStoreUnavailable
func (r *DocumentRepository) Get(ctx context.Context, attemptID string) (*model.ProgressDocument, error) {
	data, err := r.Provider.Get(ctx, r.key(attemptID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: progress document %s", util.ErrNotFound, attemptID)
		}
		return nil, fmt.Errorf("%w: read progress document %s: %w", util.ErrStoreUnavailable, attemptID, err)
	}

	var doc model.ProgressDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode progress document %s: %v", util.ErrInconsistentState, attemptID, err)
	}
	if doc.HintHistory == nil {
		doc.HintHistory = []model.HintMessage{}
	}
	return &doc, nil
}

func (r *DocumentRepository) Put(ctx context.Context, attemptID string, doc *model.ProgressDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode progress document %s: %w", attemptID, err)
	}
	if err := r.Provider.Put(ctx, r.key(attemptID), data, util.MimeJSON); err != nil {
		return fmt.Errorf("%w: write progress document %s: %w", util.ErrStoreUnavailable, attemptID, err)
	}
	return nil
}

// CreateEmpty 首次访问时写入空文档（无提交、空提示历史）
func (r *DocumentRepository) CreateEmpty(ctx context.Context, attemptID string, userID uint, questionID string) (*model.ProgressDocument, error) {
	doc := model.NewProgressDocument(attemptID, userID, questionID, time.Now().UTC())
	if err := r.Put(ctx, attemptID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
