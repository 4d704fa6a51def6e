package storage

import (
	"context"
	"errors"
	"fmt"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/util"
)

var (
	// ErrObjectNotFound 对象不存在，与权限/网络错误区分
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoCallerCredential web_identity 模式下请求上下文中没有调用方令牌
	ErrNoCallerCredential = errors.New("no caller credential in context")
)

// StorageProvider 定义通用对象存储接口，按 key 读写字节
type StorageProvider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type callerTokenKey struct{}

// WithCallerToken 将发起请求的用户令牌带入上下文，供存储后端按调用方身份鉴权
func WithCallerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, callerTokenKey{}, token)
}

func CallerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(callerTokenKey{}).(string)
	return token, ok && token != ""
}

// NewStorageProvider 按配置选择存储实现
func NewStorageProvider(cfg *config.StorageConfig) (StorageProvider, error) {
	switch cfg.Type {
	case util.StorageMinio:
		return NewMinioStorageProvider(cfg)
	case util.StorageOSS:
		return NewOSSStorageProvider(cfg)
	case util.StorageLocal, "":
		return &LocalStorageProvider{Root: cfg.LocalPath}, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
