package storage

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9" // Redis OpenTelemetry钩子包
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("talent-match-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	"app:match:result:": 0.05, // 匹配结果缓存采样5%
	"app:match:lock:":   0.5,  // 锁操作采样50%
	"app:config:":       0.25, // 配置缓存采样25%
	"app:taxonomy:":     0.1,  // 迁移索引缓存采样10%
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	// key为空一定不采样
	if key == "" {
		return false
	}

	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}

	// 默认采样率5%
	return randFloat() < 0.05
}

// 生成0-1之间的随机数
func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// FormatKey 按常量模板格式化Redis键
func (r *Redis) FormatKey(keyFormat string, parts ...interface{}) string {
	if len(parts) == 0 {
		return keyFormat
	}
	return fmt.Sprintf(keyFormat, parts...)
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	// 使用扩展的配置选项
	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,     // 默认10
		MinIdleConns: cfg.MinIdleConns, // 默认2

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetMatchResultExpireDuration 返回配置的匹配结果缓存过期时间
func (r *Redis) GetMatchResultExpireDuration() time.Duration {
	minutes := r.config.MatchResultExpireMinutes
	if minutes <= 0 {
		return constants.MatchResultCacheDuration
	}
	return time.Duration(minutes) * time.Minute
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	// 根据key前缀决定是否创建span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			// 设置标志位，表示不要在子span中传播，避免与redisotel hook产生的span重复
			attribute.Bool("otel.propagate_to_child", false),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	// 如果span被创建，则记录结果
	if span != nil {
		if err != nil {
			// 对于key不存在的情况，不应该算作错误
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			}
			return "", err
		}

		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
			attribute.Bool("otel.propagate_to_child", false),
		)

		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return err
		}
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// CacheMatchResult 缓存一份序列化后的匹配结果
// 键中带引擎版本，配置或引擎升级后旧缓存自然失效。
func (r *Redis) CacheMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON string) error {
	key := r.FormatKey(constants.KeyMatchResult, engineVersion, candidateID, jobID)
	return r.Set(ctx, key, resultJSON, r.GetMatchResultExpireDuration())
}

// GetCachedMatchResult 读取缓存的匹配结果；未命中返回包装后的 ErrNotFound
func (r *Redis) GetCachedMatchResult(ctx context.Context, engineVersion, candidateID, jobID string) (string, error) {
	key := r.FormatKey(constants.KeyMatchResult, engineVersion, candidateID, jobID)
	val, err := r.Get(ctx, key)
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("匹配结果缓存 %s/%s: %w", candidateID, jobID, ErrNotFound)
		}
		return "", err
	}
	return val, nil
}

// InvalidateMatchResult 删除指定组合的匹配结果缓存
func (r *Redis) InvalidateMatchResult(ctx context.Context, engineVersion, candidateID, jobID string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	key := r.FormatKey(constants.KeyMatchResult, engineVersion, candidateID, jobID)
	return r.Client.Del(ctx, key).Err()
}

// CacheActiveConfig 缓存激活的引擎配置JSON
func (r *Redis) CacheActiveConfig(ctx context.Context, payloadJSON string) error {
	return r.Set(ctx, constants.KeyActiveMatchingConfig, payloadJSON, constants.ActiveConfigCacheDuration)
}

// GetCachedActiveConfig 读取缓存的激活配置；未命中返回包装后的 ErrNotFound
func (r *Redis) GetCachedActiveConfig(ctx context.Context) (string, error) {
	val, err := r.Get(ctx, constants.KeyActiveMatchingConfig)
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("激活配置缓存: %w", ErrNotFound)
		}
		return "", err
	}
	return val, nil
}

// CacheSkillTaxonomy 缓存序列化后的技能迁移词条列表
func (r *Redis) CacheSkillTaxonomy(ctx context.Context, entriesJSON string) error {
	return r.Set(ctx, constants.KeySkillTaxonomy, entriesJSON, constants.SkillTaxonomyCacheDuration)
}

// GetCachedSkillTaxonomy 读取缓存的技能迁移词条；未命中返回包装后的 ErrNotFound
func (r *Redis) GetCachedSkillTaxonomy(ctx context.Context) (string, error) {
	val, err := r.Get(ctx, constants.KeySkillTaxonomy)
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("技能迁移缓存: %w", ErrNotFound)
		}
		return "", err
	}
	return val, nil
}

// AcquireRecomputeLock 尝试获取指定岗位的批量重算锁
func (r *Redis) AcquireRecomputeLock(ctx context.Context, jobID string, expiration time.Duration) (string, error) {
	ctx, span := redisTracer.Start(ctx, "Redis.AcquireRecomputeLock",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := r.FormatKey(constants.KeyRecomputeLock, jobID)
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "SETNX"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	)

	token, err := r.AcquireLock(ctx, key, expiration)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", err
	}
	span.SetAttributes(attribute.Bool("lock.acquired", token != ""))
	span.SetStatus(codes.Ok, "")
	return token, nil
}

// ReleaseRecomputeLock 释放指定岗位的批量重算锁
func (r *Redis) ReleaseRecomputeLock(ctx context.Context, jobID string, token string) (bool, error) {
	key := r.FormatKey(constants.KeyRecomputeLock, jobID)
	return r.ReleaseLock(ctx, key, token)
}

// AcquireLock 尝试获取一个分布式锁
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	// 生成一个随机值作为锁的持有者标识
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	// 尝试设置一个带过期时间的key，NX保证了原子性
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		// 成功获取锁
		return lockValue, nil
	}
	// 未能获取锁
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// Lua脚本: 如果key存在且值匹配，则删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil // 成功释放
	}

	return false, nil // 锁不存在或不属于当前持有者
}
