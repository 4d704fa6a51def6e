package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pseudo_practice_backend/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Get(ctx context.Context, key string) ([]byte, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}

	body, err := bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		return nil, translateOSSError(err, key)
	}
	defer body.Close()

	return io.ReadAll(body)
}

func (p *OSSStorageProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType), oss.WithContext(ctx))
}

func translateOSSError(err error, key string) error {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && (svcErr.Code == "NoSuchKey" || svcErr.StatusCode == http.StatusNotFound) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return err
}
