package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorageProvider MinIO存储实现
//
// static 模式使用服务凭证；web_identity 模式用调用方的 JWT 换取临时凭证，
// 存储端的访问策略按调用方身份生效。每个令牌对应的客户端缓存在 LRU 中。
type MinioStorageProvider struct {
	Config  *config.StorageConfig
	Client  *minio.Client
	clients *lru.Cache[string, *minio.Client]
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	p := &MinioStorageProvider{Config: cfg}

	if cfg.CredentialMode == util.CredentialWebIdentity {
		size := cfg.ClientCacheSize
		if size <= 0 {
			size = 256
		}
		cache, err := lru.New[string, *minio.Client](size)
		if err != nil {
			return nil, err
		}
		p.clients = cache
		return p, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	p.Client = client
	return p, nil
}

func (p *MinioStorageProvider) client(ctx context.Context) (*minio.Client, error) {
	if p.clients == nil {
		return p.Client, nil
	}

	token, ok := CallerToken(ctx)
	if !ok {
		return nil, ErrNoCallerCredential
	}

	sum := sha256.Sum256([]byte(token))
	cacheKey := hex.EncodeToString(sum[:])
	if c, ok := p.clients.Get(cacheKey); ok {
		return c, nil
	}

	creds, err := credentials.NewSTSWebIdentity(p.Config.STSEndpoint, func() (*credentials.WebIdentityToken, error) {
		return &credentials.WebIdentityToken{Token: token}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating web identity credentials: %w", err)
	}

	c, err := minio.New(p.Config.MinioEndpoint, &minio.Options{
		Creds:  creds,
		Secure: p.Config.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	p.clients.Add(cacheKey, c)
	return c, nil
}

func (p *MinioStorageProvider) Get(ctx context.Context, key string) ([]byte, error) {
	c, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	obj, err := c.GetObject(ctx, p.Config.MinioBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err, key)
	}
	defer obj.Close()

	// GetObject 是惰性的，NoSuchKey 在第一次读取时才返回
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioError(err, key)
	}
	return data, nil
}

func (p *MinioStorageProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	c, err := p.client(ctx)
	if err != nil {
		return err
	}

	_, err = c.PutObject(ctx, p.Config.MinioBucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func translateMinioError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return err
}
