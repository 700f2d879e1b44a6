package processor // 候选人-岗位匹配流程的核心处理逻辑

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/matching"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("processor")

// Components 聚合匹配流程的全部依赖，便于集中管理和测试替换
type Components struct {
	Store     MatchStore     // 数据库操作
	Cache     ResultCache    // 结果/配置缓存，可为nil
	Archiver  ResultArchiver // 审计归档，可为nil
	Publisher EventPublisher // 消息发布，可为nil
}

// Settings 纯配置项，不包含任何业务组件
type Settings struct {
	RabbitMQ       *config.RabbitMQConfig // 事件交换机与路由键
	EngineDefaults *matching.Config       // 无激活配置行时的兜底引擎配置，nil 时使用内置默认值
	Debug          bool
	Logger         *log.Logger
	Clock          func() time.Time // 评估用时钟，nil 时使用 time.Now
}

// MatchProcessor 串联 加载输入 -> 引擎评估 -> 落库 -> 缓存 -> 归档 的完整流程
// 引擎本身保持纯函数，所有IO都在这一层完成。
type MatchProcessor struct {
	store     MatchStore
	cache     ResultCache
	archiver  ResultArchiver
	publisher EventPublisher

	rabbitCfg  *config.RabbitMQConfig
	defaultCfg matching.Config
	logger     *log.Logger
	debug      bool
	clock      func() time.Time
}

// NewMatchProcessor 创建匹配处理器
func NewMatchProcessor(comp *Components, set *Settings) (*MatchProcessor, error) {
	if comp == nil || comp.Store == nil {
		return nil, fmt.Errorf("MatchProcessor 需要 Store 依赖")
	}
	if set == nil {
		set = &Settings{}
	}
	if set.Logger == nil {
		set.Logger = log.New(os.Stdout, "[Matcher] ", log.LstdFlags)
	}
	if set.Clock == nil {
		set.Clock = time.Now
	}
	defaultCfg := matching.DefaultConfig()
	if set.EngineDefaults != nil {
		defaultCfg = *set.EngineDefaults
	}

	p := &MatchProcessor{
		store:      comp.Store,
		cache:      comp.Cache,
		archiver:   comp.Archiver,
		publisher:  comp.Publisher,
		rabbitCfg:  set.RabbitMQ,
		defaultCfg: defaultCfg,
		logger:     set.Logger,
		debug:      set.Debug,
		clock:      set.Clock,
	}

	if p.cache == nil {
		p.logger.Println("警告: MatchProcessor 的缓存未注入，匹配结果将不进缓存。")
	}
	return p, nil
}

func (p *MatchProcessor) logDebug(format string, v ...interface{}) {
	if p.debug {
		p.logger.Printf(format, v...)
	}
}

// EvaluatePair 对一对 候选人/岗位 执行完整的评估流程
// submissionUUID 非空时同时写入该投递的校准快照（预测分值+闸门快照，真实结果后续回流补齐）。
// 结果落库与 match.completed 事件写入同一事务；缓存和归档失败只告警不回滚。
func (p *MatchProcessor) EvaluatePair(ctx context.Context, candidateID, jobID, submissionUUID, trigger string) (*matching.Result, error) {
	ctx, span := tracer.Start(ctx, "MatchProcessor.EvaluatePair",
		trace.WithAttributes(
			attribute.String("match.candidate_id", candidateID),
			attribute.String("match.job_id", jobID),
			attribute.String("match.trigger", trigger),
		),
	)
	defer span.End()

	// 1. 加载候选人与岗位
	candidate, err := p.store.GetCandidateByID(ctx, candidateID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewLoadCandidateError(candidateID, jobID, err)
	}
	job, err := p.store.GetJobByID(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewLoadJobError(candidateID, jobID, err)
	}

	// 2. 加载评分配置与技能迁移表（缓存优先，失败降级到默认值）
	engineCfg := p.loadEngineConfig(ctx)
	taxonomy := p.loadTaxonomy(ctx)

	// 3. 执行纯函数评估
	engine := matching.NewEngine(engineCfg,
		matching.WithTaxonomy(taxonomy),
		matching.WithClock(p.clock),
	)
	result := engine.Evaluate(candidate.ToProfile(), job.ToPosting())
	span.AddEvent("evaluation completed")
	span.SetAttributes(
		attribute.String("match.overall_gate", string(result.Gates.OverallGate)),
		attribute.Int("match.overall_match", result.OverallMatch),
		attribute.Int("match.deal_probability", result.DealProbability),
	)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("序列化匹配结果失败: %w", err)
	}

	// 4. 落库：结果 + outbox 事件在同一事务
	evaluatedAt := p.clock().UTC()
	match := &models.CandidateJobMatch{
		CandidateID:     candidateID,
		JobID:           jobID,
		EngineVersion:   result.Version,
		OverallGate:     string(result.Gates.OverallGate),
		FitScore:        result.FitScore,
		ConstraintScore: result.ConstraintScore,
		OverallMatch:    result.OverallMatch,
		DealProbability: result.DealProbability,
		ResultJSON:      datatypes.JSON(resultJSON),
		EvaluatedAt:     evaluatedAt,
	}

	calibration := p.buildCalibrationRow(result, submissionUUID, candidateID, jobID, evaluatedAt)

	event, err := p.buildCompletedEvent(result, evaluatedAt)
	if err != nil {
		p.logger.Printf("构建 match.completed 事件失败 (%s/%s): %v", candidateID, jobID, err)
		event = nil // 事件构建失败不阻塞结果落库
	}

	if err := p.store.SaveMatchResult(ctx, match, calibration, event); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		// 结果已经算出来了，持久化失败时连同结果一起返回，由调用方决定降级或重试
		return result, NewPersistError(candidateID, jobID, err)
	}
	span.AddEvent("result persisted")

	// 5. 缓存结果，失败仅告警
	if p.cache != nil {
		if err := p.cache.CacheMatchResult(ctx, result.Version, candidateID, jobID, string(resultJSON)); err != nil {
			p.logger.Printf("缓存匹配结果失败 (%s/%s): %v", candidateID, jobID, err)
		}
	}

	// 6. 审计归档，失败仅告警
	if p.archiver != nil {
		if _, err := p.archiver.ArchiveMatchResult(ctx, result.Version, candidateID, jobID, resultJSON); err != nil {
			p.logger.Printf("归档匹配结果失败 (%s/%s): %v", candidateID, jobID, err)
		}
	}

	p.logDebug("评估完成 %s/%s: gate=%s overall=%d probability=%d",
		candidateID, jobID, result.Gates.OverallGate, result.OverallMatch, result.DealProbability)
	return result, nil
}

// PreviewPair 只计算不落库：加载输入、执行评估并返回结果，
// 不写数据库、不发事件、不进缓存。
func (p *MatchProcessor) PreviewPair(ctx context.Context, candidateID, jobID string) (*matching.Result, error) {
	ctx, span := tracer.Start(ctx, "MatchProcessor.PreviewPair",
		trace.WithAttributes(
			attribute.String("match.candidate_id", candidateID),
			attribute.String("match.job_id", jobID),
		),
	)
	defer span.End()

	candidate, err := p.store.GetCandidateByID(ctx, candidateID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewLoadCandidateError(candidateID, jobID, err)
	}
	job, err := p.store.GetJobByID(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewLoadJobError(candidateID, jobID, err)
	}

	engine := matching.NewEngine(p.loadEngineConfig(ctx),
		matching.WithTaxonomy(p.loadTaxonomy(ctx)),
		matching.WithClock(p.clock),
	)
	result := engine.Evaluate(candidate.ToProfile(), job.ToPosting())
	span.SetAttributes(
		attribute.String("match.overall_gate", string(result.Gates.OverallGate)),
		attribute.Int("match.overall_match", result.OverallMatch),
	)
	return result, nil
}

// buildCalibrationRow 构建投递维度的校准快照，submissionUUID为空时返回nil
func (p *MatchProcessor) buildCalibrationRow(result *matching.Result, submissionUUID, candidateID, jobID string, evaluatedAt time.Time) *models.MatchOutcome {
	if submissionUUID == "" {
		return nil
	}
	row := &models.MatchOutcome{
		SubmissionUUID:           submissionUUID,
		CandidateID:              candidateID,
		JobID:                    jobID,
		EngineVersion:            result.Version,
		PredictedFitScore:        result.FitScore,
		PredictedConstraintScore: result.ConstraintScore,
		PredictedOverallMatch:    result.OverallMatch,
		PredictedProbability:     result.DealProbability,
		EvaluatedAt:              &evaluatedAt,
	}
	if gatesJSON, err := json.Marshal(result.Gates); err == nil {
		row.GatesJSON = datatypes.JSON(gatesJSON)
	} else {
		p.logger.Printf("序列化闸门快照失败 (%s): %v", submissionUUID, err)
	}
	return row
}

// buildCompletedEvent 构建写入outbox的 match.completed 事件
func (p *MatchProcessor) buildCompletedEvent(result *matching.Result, evaluatedAt time.Time) (*models.OutboxMessage, error) {
	if p.rabbitCfg == nil || p.rabbitCfg.MatchEventsExchange == "" {
		return nil, nil // 未配置消息代理时跳过事件
	}

	eventID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("生成事件ID失败: %w", err)
	}

	payload := storage.MatchCompletedMessage{
		EventID:         eventID.String(),
		CandidateID:     result.CandidateID,
		JobID:           result.JobID,
		EngineVersion:   result.Version,
		OverallGate:     string(result.Gates.OverallGate),
		OverallMatch:    result.OverallMatch,
		DealProbability: result.DealProbability,
		EvaluatedAt:     evaluatedAt,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}

	return &models.OutboxMessage{
		EventID:          eventID.String(),
		AggregateID:      result.CandidateID,
		EventType:        "match.completed",
		Payload:          string(payloadBytes),
		TargetExchange:   p.rabbitCfg.MatchEventsExchange,
		TargetRoutingKey: p.rabbitCfg.MatchCompletedRoutingKey,
	}, nil
}

// loadEngineConfig 按 缓存 -> 数据库 -> 默认值 的顺序加载评分配置
func (p *MatchProcessor) loadEngineConfig(ctx context.Context) matching.Config {
	if p.cache != nil {
		if payload, err := p.cache.GetCachedActiveConfig(ctx); err == nil && payload != "" {
			var cfg matching.Config
			if err := json.Unmarshal([]byte(payload), &cfg); err == nil {
				return cfg
			}
			p.logger.Printf("缓存的评分配置损坏，回源数据库: %v", err)
		}
	}

	dbCfg, err := p.store.GetActiveMatchingConfig(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Printf("加载激活评分配置失败，使用兜底配置: %v", err)
		}
		return p.defaultCfg
	}

	if p.cache != nil {
		if err := p.cache.CacheActiveConfig(ctx, string(dbCfg.PayloadJSON)); err != nil {
			p.logDebug("回填评分配置缓存失败: %v", err)
		}
	}
	return dbCfg.ToEngineConfig()
}

// loadTaxonomy 按 缓存 -> 数据库 的顺序加载技能迁移索引，加载失败返回nil（引擎按无迁移处理）
func (p *MatchProcessor) loadTaxonomy(ctx context.Context) *matching.TaxonomyIndex {
	if p.cache != nil {
		if payload, err := p.cache.GetCachedSkillTaxonomy(ctx); err == nil && payload != "" {
			var entries []matching.TransferEntry
			if err := json.Unmarshal([]byte(payload), &entries); err == nil {
				return matching.NewTaxonomyIndex(entries)
			}
			p.logger.Printf("缓存的技能迁移表损坏，回源数据库: %v", err)
		}
	}

	rows, err := p.store.ListSkillTransfers(ctx)
	if err != nil {
		p.logger.Printf("加载技能迁移表失败，本次评估不应用迁移加分: %v", err)
		return nil
	}
	entries := make([]matching.TransferEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToEntry())
	}

	if p.cache != nil {
		if payloadBytes, err := json.Marshal(entries); err == nil {
			if err := p.cache.CacheSkillTaxonomy(ctx, string(payloadBytes)); err != nil {
				p.logDebug("回填技能迁移表缓存失败: %v", err)
			}
		}
	}
	return matching.NewTaxonomyIndex(entries)
}

// GetMatchForSubmission 获取某次投递对应的匹配结果
// 优先读缓存，其次读库，两者都没有时现场评估一次。
func (p *MatchProcessor) GetMatchForSubmission(ctx context.Context, submissionUUID string) (*matching.Result, error) {
	ctx, span := tracer.Start(ctx, "MatchProcessor.GetMatchForSubmission",
		trace.WithAttributes(attribute.String("submission_uuid", submissionUUID)),
	)
	defer span.End()

	submission, err := p.store.GetSubmissionByUUID(ctx, submissionUUID)
	if err != nil {
		return nil, err
	}
	if submission.CandidateID == nil || submission.JobID == nil {
		return nil, fmt.Errorf("投递 %s 缺少候选人或岗位关联: %w", submissionUUID, storage.ErrNotFound)
	}
	candidateID, jobID := *submission.CandidateID, *submission.JobID

	if p.cache != nil {
		if cached, err := p.cache.GetCachedMatchResult(ctx, matching.EngineVersion, candidateID, jobID); err == nil && cached != "" {
			var result matching.Result
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				span.AddEvent("cache hit")
				return &result, nil
			}
		}
	}

	match, err := p.store.GetMatchByCandidateJob(ctx, candidateID, jobID, matching.EngineVersion)
	if err == nil {
		var result matching.Result
		if err := json.Unmarshal(match.ResultJSON, &result); err != nil {
			return nil, fmt.Errorf("反序列化存储的匹配结果失败: %w", err)
		}
		if p.cache != nil {
			if err := p.cache.CacheMatchResult(ctx, result.Version, candidateID, jobID, string(match.ResultJSON)); err != nil {
				p.logDebug("回填匹配结果缓存失败: %v", err)
			}
		}
		return &result, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// 尚未评估过，现场评估一次
	span.AddEvent("no stored result, evaluating on demand")
	return p.EvaluatePair(ctx, candidateID, jobID, submissionUUID, storage.TriggerSubmissionCreated)
}

// EnqueueJobRecompute 为岗位下所有活跃投递投递 match.needed 事件，返回入队数量
// 实际评估由消费端逐条执行，便于横向扩展和削峰。
func (p *MatchProcessor) EnqueueJobRecompute(ctx context.Context, jobID string) (int, error) {
	ctx, span := tracer.Start(ctx, "MatchProcessor.EnqueueJobRecompute",
		trace.WithAttributes(attribute.String("match.job_id", jobID)),
	)
	defer span.End()

	if p.publisher == nil || p.rabbitCfg == nil {
		return 0, NewPublishError("", jobID, fmt.Errorf("消息发布器未初始化"))
	}

	submissions, err := p.store.ListActiveSubmissionsByJob(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return 0, err
	}

	enqueued := 0
	for i := range submissions {
		sub := &submissions[i]
		if sub.CandidateID == nil {
			continue
		}
		eventID, err := uuid.NewV4()
		if err != nil {
			return enqueued, fmt.Errorf("生成事件ID失败: %w", err)
		}
		msg := storage.MatchNeededMessage{
			EventID:        eventID.String(),
			Trigger:        storage.TriggerRecompute,
			CandidateID:    *sub.CandidateID,
			JobID:          jobID,
			RequestedAt:    p.clock().UTC(),
			SubmissionUUID: sub.SubmissionUUID,
		}
		if err := p.publisher.PublishJSON(ctx, p.rabbitCfg.MatchEventsExchange, p.rabbitCfg.MatchNeededRoutingKey, msg, true); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
			return enqueued, NewPublishError(*sub.CandidateID, jobID, err)
		}
		enqueued++
	}

	span.SetAttributes(attribute.Int("match.enqueued_count", enqueued))
	p.logDebug("岗位 %s 重算入队 %d 条", jobID, enqueued)
	return enqueued, nil
}

// HandleMatchNeededMessage 消费 match.needed 消息
// 返回true表示ack；输入数据损坏也ack（重投不会修复），处理失败返回false触发nack重投。
func (p *MatchProcessor) HandleMatchNeededMessage(ctx context.Context, body []byte) bool {
	var msg storage.MatchNeededMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		p.logger.Printf("match.needed 消息解析失败，丢弃: %v", err)
		return true
	}
	if msg.CandidateID == "" || msg.JobID == "" {
		p.logger.Printf("match.needed 消息缺少候选人或岗位ID，丢弃 (event_id=%s)", msg.EventID)
		return true
	}

	_, err := p.EvaluatePair(ctx, msg.CandidateID, msg.JobID, msg.SubmissionUUID, msg.Trigger)
	if err != nil {
		// 候选人或岗位已不存在时重投无意义，直接ack
		if errors.Is(err, storage.ErrNotFound) {
			p.logger.Printf("评估输入已不存在，丢弃消息 (event_id=%s): %v", msg.EventID, err)
			return true
		}
		p.logger.Printf("处理 match.needed 失败，将重投 (event_id=%s): %v", msg.EventID, err)
		return false
	}
	return true
}
