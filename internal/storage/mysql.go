package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("talent-match-go/storage/mysql")

// ErrNotFound 统一的"记录不存在"错误，屏蔽底层驱动差异
var ErrNotFound = errors.New("record not found")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	// 为各种操作类型注册回调
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		// 从DB获取上下文
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		// 获取操作表名，如果为空则使用"unknown"
		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		// 创建一个新的span
		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		// 获取SQL语句（如果有）
		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		// 从DB上下文中获取span
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// 记录错误（如果有），但正确处理ErrRecordNotFound
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// Database 关系数据库接口
type Database interface {
	// DB 返回GORM数据库连接实例
	DB() *gorm.DB

	// Close 关闭数据库连接
	Close() error
}

// 确保MySQL实现了Database接口
var _ Database = (*MySQL)(nil)

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info // 默认Info级别
	}

	// GORM配置增强
	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,                             // 禁用自动外键创建
		Logger:                                   logger.Default.LogMode(logLevel), // 设置日志级别
		PrepareStmt:                              true,                             // 开启预编译语句缓存
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	// 使用 GORM 的 AutoMigrate 功能自动迁移表结构
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	// 保存当前的日志级别
	currentLogger := m.db.Logger

	// 创建一个静默的logger以关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// 创建一个使用静默日志记录器的DB会话
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	// 列出所有需要迁移的模型
	err := silentDB.AutoMigrate(
		&models.Candidate{},
		&models.Job{},
		&models.SkillTransfer{},
		&models.MatchingConfig{},
		&models.Submission{},
		&models.CandidateJobMatch{},
		&models.MatchOutcome{},
		&models.OutboxMessage{},
	)

	// 恢复原来的日志记录器
	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// GetCandidateByID 通过 CandidateID 获取候选人记录
func (m *MySQL) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var candidate models.Candidate
	err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("候选人 %s: %w", candidateID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return &candidate, nil
}

// GetJobByID 通过 JobID 获取岗位记录
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("岗位 %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// ListSkillTransfers 列出全部技能迁移词条，按 Skill 排序以保证结果稳定
func (m *MySQL) ListSkillTransfers(ctx context.Context) ([]models.SkillTransfer, error) {
	var transfers []models.SkillTransfer
	err := m.db.WithContext(ctx).Order("skill asc").Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("查询技能迁移词条失败: %w", err)
	}
	return transfers, nil
}

// GetActiveMatchingConfig 获取当前激活的引擎配置
// 不存在激活配置时返回包装后的 ErrNotFound，由调用方回退到内置默认配置。
func (m *MySQL) GetActiveMatchingConfig(ctx context.Context) (*models.MatchingConfig, error) {
	var cfg models.MatchingConfig
	err := m.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("updated_at desc").
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("激活配置: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("查询激活配置失败: %w", err)
	}
	return &cfg, nil
}

// UpsertCandidateJobMatch 幂等写入匹配结果
// 以 (candidate_id, job_id, engine_version) 唯一键做 ON DUPLICATE KEY UPDATE，
// 重复评估覆盖旧分数而不产生第二行。
func (m *MySQL) UpsertCandidateJobMatch(ctx context.Context, match *models.CandidateJobMatch) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertCandidateJobMatch",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("db.operation", "INSERT_ON_DUPLICATE"),
		attribute.String("db.sql.table", "candidate_job_matches"),
		attribute.String("match.candidate_id", match.CandidateID),
		attribute.String("match.job_id", match.JobID),
	)

	err := m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{
				{Name: "candidate_id"}, {Name: "job_id"}, {Name: "engine_version"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"overall_gate", "fit_score", "constraint_score",
				"overall_match", "deal_probability", "result_json", "evaluated_at",
			}),
		}).Create(match).Error

	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("写入匹配结果失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetMatchByCandidateJob 查询指定引擎版本下的匹配结果
func (m *MySQL) GetMatchByCandidateJob(ctx context.Context, candidateID, jobID, engineVersion string) (*models.CandidateJobMatch, error) {
	var match models.CandidateJobMatch
	err := m.db.WithContext(ctx).
		Where("candidate_id = ? AND job_id = ? AND engine_version = ?", candidateID, jobID, engineVersion).
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("匹配结果 %s/%s: %w", candidateID, jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询匹配结果失败: %w", err)
	}
	return &match, nil
}

// GetSubmissionByUUID 通过 SubmissionUUID 获取投递记录
func (m *MySQL) GetSubmissionByUUID(ctx context.Context, submissionUUID string) (*models.Submission, error) {
	var submission models.Submission
	err := m.db.WithContext(ctx).Where("submission_uuid = ?", submissionUUID).First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("投递 %s: %w", submissionUUID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询投递记录失败: %w", err)
	}
	return &submission, nil
}

// ListActiveSubmissionsByJob 列出指定岗位下仍在流程中的投递
func (m *MySQL) ListActiveSubmissionsByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	var submissions []models.Submission
	err := m.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, "ACTIVE").
		Order("submission_timestamp asc").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位投递列表失败: %w", err)
	}
	return submissions, nil
}

// UpsertMatchOutcome 幂等回流成交结果到校准行
// 冲突时只覆盖结果列，评估时写入的预测快照保持不变。
func (m *MySQL) UpsertMatchOutcome(ctx context.Context, outcome *models.MatchOutcome) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertMatchOutcome",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("db.operation", "INSERT_ON_DUPLICATE"),
		attribute.String("db.sql.table", "match_outcomes"),
		attribute.String("outcome.submission_uuid", outcome.SubmissionUUID),
	)

	err := m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"outcome", "notes", "outcome_at",
			}),
		}).Create(outcome).Error

	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("写入成交结果失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateSubmissionStatus 更新投递状态
func (m *MySQL) UpdateSubmissionStatus(ctx context.Context, submissionUUID string, status string) error {
	return m.db.WithContext(ctx).Model(&models.Submission{}).
		Where("submission_uuid = ?", submissionUUID).
		Update("status", status).Error
}

// CreateOutboxMessage 在事务中写入待发布的outbox消息
func (m *MySQL) CreateOutboxMessage(tx *gorm.DB, msg *models.OutboxMessage) error {
	db := m.db
	if tx != nil {
		db = tx
	}
	return db.Create(msg).Error
}

// SaveMatchResult 在同一事务中写入匹配结果、投递维度的校准快照和outbox事件
// 校准行按 submission_uuid 幂等覆盖预测列，已回流的真实结果不受重算影响；
// 结果落库与事件发布保持最终一致：事件由MessageRelay异步投递。
func (m *MySQL) SaveMatchResult(ctx context.Context, match *models.CandidateJobMatch, calibration *models.MatchOutcome, event *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(
			clause.OnConflict{
				Columns: []clause.Column{
					{Name: "candidate_id"}, {Name: "job_id"}, {Name: "engine_version"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"overall_gate", "fit_score", "constraint_score",
					"overall_match", "deal_probability", "result_json", "evaluated_at",
				}),
			}).Create(match).Error; err != nil {
			return fmt.Errorf("写入匹配结果失败: %w", err)
		}
		if calibration != nil {
			if err := tx.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "submission_uuid"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"candidate_id", "job_id", "engine_version",
						"predicted_fit_score", "predicted_constraint_score",
						"predicted_overall_match", "predicted_probability",
						"gates_json", "evaluated_at",
					}),
				}).Create(calibration).Error; err != nil {
				return fmt.Errorf("写入校准快照失败: %w", err)
			}
		}
		if event != nil {
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("写入outbox事件失败: %w", err)
			}
		}
		return nil
	})
}
