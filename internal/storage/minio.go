package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"talent-match-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口，用于匹配结果审计归档
type ObjectStorage interface {
	// ArchiveMatchResult 归档一次匹配评估的完整结果JSON
	ArchiveMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON []byte) (string, error)

	// GetArchivedMatchResult 读取归档的匹配结果
	GetArchivedMatchResult(ctx context.Context, objectKey string) ([]byte, error)

	// GetPresignedURL 获取预签名URL，供外部审计系统直读
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// 关闭（MinIO客户端无需显式关闭，保留接口对称性）
	Close() error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供匹配结果的对象存储归档
type MinIO struct {
	client      *minio.Client
	cfg         *config.MinIOConfig
	auditBucket string
	logger      *log.Logger
}

// NewMinIO 创建MinIO客户端并确保审计归档桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	auditBucket := cfg.AuditBucket
	if auditBucket == "" {
		auditBucket = "match-audit"
	}

	m := &MinIO{
		client:      client,
		cfg:         cfg,
		auditBucket: auditBucket,
		logger:      logger,
	}

	if err := m.ensureBucketExists(auditBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保审计归档存储桶 %s 存在失败: %w", auditBucket, err)
	}

	// 设置生命周期规则，归档对象到期自动清理
	if cfg.AuditExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), auditBucket, "expire-match-audit", cfg.AuditExpireDays); err != nil {
			logger.Printf("[MinIO] Warning: failed to set lifecycle for bucket %s: %v", auditBucket, err)
		}
	}

	logger.Printf("[MinIO] Client initialized for endpoint: %s, auditBucket: %s", cfg.Endpoint, auditBucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created.", bucketName)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// MatchArchiveKey 构建归档对象键: matches/{engineVersion}/{candidateID}/{jobID}.json
func MatchArchiveKey(engineVersion, candidateID, jobID string) string {
	return fmt.Sprintf("matches/%s/%s/%s.json", engineVersion, candidateID, jobID)
}

// ArchiveMatchResult 归档匹配结果JSON，同版本同对的重复归档直接覆盖
func (m *MinIO) ArchiveMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON []byte) (string, error) {
	objectKey := MatchArchiveKey(engineVersion, candidateID, jobID)

	_, err := m.client.PutObject(ctx, m.auditBucket, objectKey, bytes.NewReader(resultJSON),
		int64(len(resultJSON)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("归档匹配结果 %s 到存储桶 %s 失败: %w", objectKey, m.auditBucket, err)
	}
	return objectKey, nil
}

// GetArchivedMatchResult 读取归档的匹配结果
func (m *MinIO) GetArchivedMatchResult(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.auditBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取归档对象 %s/%s 失败: %w", m.auditBucket, objectKey, err)
	}
	defer obj.Close()

	// Stat确认对象存在，GetObject本身是惰性的
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("归档对象 %s/%s 不存在: %w", m.auditBucket, objectKey, ErrNotFound)
		}
		return nil, fmt.Errorf("获取归档对象 %s/%s 状态失败: %w", m.auditBucket, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取归档对象 %s/%s 数据失败: %w", m.auditBucket, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取归档对象的预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.auditBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// Close MinIO客户端无需显式关闭
func (m *MinIO) Close() error {
	return nil
}
