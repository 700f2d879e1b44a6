package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"talent-match-go/internal/config"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 对象存储（审计归档）
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器
// 单个组件初始化失败只记录警告，全部失败才返回错误，
// 便于本地开发时仅启动部分依赖。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	// debug级别时输出MinIO详细日志
	var minioLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
	} else {
		minioLogger = log.New(io.Discard, "", 0)
	}

	// 初始化MinIO
	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			log.Printf("警告: 初始化MinIO失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			log.Println("MinIO客户端初始化成功")
		}
	}

	// 初始化RabbitMQ（如果配置了）
	if cfg.RabbitMQ.URL != "" {
		log.Printf("初始化RabbitMQ...")
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else if err := storage.RabbitMQ.EnsureMatchTopology(); err != nil {
			log.Printf("警告: 声明匹配事件拓扑失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ topology: %v", err))
		}
	}

	// 初始化MySQL（如果配置了）
	if cfg.MySQL.Host != "" {
		log.Printf("初始化MySQL...")
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			log.Printf("警告: 初始化MySQL失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	// 初始化Redis (如果配置了)
	if cfg.Redis.Address != "" {
		log.Printf("初始化Redis at %s...", cfg.Redis.Address)
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Printf("警告: 初始化Redis失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	} else {
		log.Printf("Redis未配置, 跳过初始化.")
	}

	// 检查是否所有组件都初始化失败
	if storage.MinIO == nil && storage.RabbitMQ == nil && storage.MySQL == nil && storage.Redis == nil {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}

	if len(initErrors) > 0 {
		log.Printf("警告: 以下存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}

	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	// MinIO客户端无需显式关闭
}
