package outbox // 定义了发件箱模式（Outbox Pattern）的实现

import (
	"context"
	"log"
	"time"

	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询数据库中 outbox 表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息批量大小
	maxRetryCount          = 5               // 消息发布失败的最大重试次数
)

// MessageRelay 轮询 outbox 表并将匹配完成等事件发布到消息代理。
// 事件与匹配结果在同一数据库事务中落库，由中继异步投递，
// 保证结果写入与事件发布的最终一致。
type MessageRelay struct {
	db              *gorm.DB          // GORM数据库连接实例
	publisher       *storage.RabbitMQ // 使用现有的RabbitMQ客户端作为消息发布器
	logger          *log.Logger       // 中继服务自身的日志记录器
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{} // 用于优雅地停止服务的通道
	tracer          trace.Tracer
}

// NewMessageRelay 创建一个新的 MessageRelay 实例。
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, logger *log.Logger) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
}

// Start 开始消息中继的轮询过程。
func (r *MessageRelay) Start() {
	r.logger.Println("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Println("MessageRelay stopped.")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Printf("Error processing pending messages: %v", err)
				}
			}
		}
	}()
}

// Stop 优雅地停止消息中继服务。
func (r *MessageRelay) Stop() {
	r.logger.Println("MessageRelay stopping...")
	close(r.done)
}

// processPendingMessages 获取并处理一批来自 outbox 表的待处理消息。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	// 启动一个数据库事务，以确保获取和更新消息的原子性。
	// 注意：这里的查询没有包含在追踪Span内，这是故意的，以避免为空轮询创建Span。
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback() // 事务提交后回滚是无操作的

	// 获取一批待处理的消息，并使用数据库锁来防止其他实例处理相同的消息。
	// `FOR UPDATE SKIP LOCKED` 对于水平扩展至关重要，它会跳过已被其他事务锁定的行。
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc"). // 先进先出
		Limit(r.batchSize).
		Find(&messages).Error

	if err != nil {
		r.logger.Printf("Failed to fetch pending outbox messages: %v", err)
		return err
	}

	// 只有在找到要处理的消息时，才开始追踪
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	r.logger.Printf("Fetched %d pending messages to process.", len(messages))

	for _, msg := range messages {
		err := r.publisher.PublishMessage(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true, // 持久化
		)

		if err != nil {
			r.logger.Printf("Failed to publish message ID %d (AggregateID: %s): %v. Retries: %d", msg.ID, msg.AggregateID, err, msg.RetryCount+1)
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
		} else {
			msg.Status = "SENT"
			now := time.Now()
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 在事务中更新消息状态；更新失败则整个事务回滚，
		// 消息保持原状态，下一次轮询会重新拾取。
		if err := tx.Save(&msg).Error; err != nil {
			r.logger.Printf("Failed to update outbox message ID %d: %v", msg.ID, err)
			return err
		}
	}

	return tx.Commit().Error
}
