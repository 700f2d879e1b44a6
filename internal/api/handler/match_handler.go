package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/logger"
	"talent-match-go/internal/matching"
	"talent-match-go/internal/processor"
	storage2 "talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
)

// 对外暴露的业务错误，由路由层映射成HTTP状态码
var (
	ErrRecomputeInProgress = errors.New("该岗位的重算已在进行中")
	ErrInvalidOutcome      = errors.New("无效的成交结果")
	ErrSubmissionMismatch  = errors.New("投递记录与给定的候选人/岗位不一致")
	ErrAuditDisabled       = errors.New("审计归档存储未启用")
)

// 归档预签名URL的有效期
const auditURLExpiry = 15 * time.Minute

// 允许回流的成交结果取值
var allowedOutcomes = map[string]string{
	"hired":          "HIRED",
	"rejected":       "REJECTED",
	"withdrawn":      "WITHDRAWN",
	"offer_declined": "OFFER_DECLINED",
}

// MatchHandler 匹配服务的HTTP入口，负责协调评估、重算与结果回流
type MatchHandler struct {
	cfg     *config.Config
	storage *storage2.Storage
	matcher *processor.MatchProcessor
}

// NewMatchHandler 创建一个新的匹配处理器
func NewMatchHandler(
	cfg *config.Config,
	storage *storage2.Storage,
	matcher *processor.MatchProcessor,
) *MatchHandler {
	return &MatchHandler{
		cfg:     cfg,
		storage: storage,
		matcher: matcher,
	}
}

// RecomputeResponse 岗位重算响应
type RecomputeResponse struct {
	JobID    string `json:"job_id"`
	Enqueued int    `json:"enqueued"`
	Status   string `json:"status"`
}

// AuditResponse 归档审计读取响应
type AuditResponse struct {
	CandidateID string          `json:"candidate_id"`
	JobID       string          `json:"job_id"`
	ObjectKey   string          `json:"object_key"`
	DownloadURL string          `json:"download_url,omitempty"`
	Result      json.RawMessage `json:"result"`
}

// OutcomeResponse 成交结果回流响应
type OutcomeResponse struct {
	SubmissionUUID       string `json:"submission_uuid"`
	Outcome              string `json:"outcome"`
	PredictedProbability int    `json:"predicted_probability"`
	EngineVersion        string `json:"engine_version"`
}

// HandleEvaluateMatch 同步评估一对 候选人/岗位 并返回完整结果。
// submissionUUID 为空时只计算不落库；给定时校验投递记录并走完整的
// 落库+事件流程。返回的 persisted 标记落库是否成功：评估结果已经算
// 出来时，落库失败只记录日志，不作为请求失败返回。
func (h *MatchHandler) HandleEvaluateMatch(ctx context.Context, candidateID, jobID, submissionUUID string) (*matching.Result, bool, error) {
	if candidateID == "" || jobID == "" {
		return nil, false, fmt.Errorf("candidate_id 和 job_id 不能为空")
	}

	if submissionUUID == "" {
		result, err := h.matcher.PreviewPair(ctx, candidateID, jobID)
		return result, false, err
	}

	submission, err := h.storage.MySQL.GetSubmissionByUUID(ctx, submissionUUID)
	if err != nil {
		return nil, false, fmt.Errorf("查询投递记录失败: %w", err)
	}
	if submission.CandidateID == nil || *submission.CandidateID != candidateID ||
		submission.JobID == nil || *submission.JobID != jobID {
		return nil, false, ErrSubmissionMismatch
	}

	result, err := h.matcher.EvaluatePair(ctx, candidateID, jobID, submissionUUID, storage2.TriggerSubmissionCreated)
	if err != nil {
		if result != nil && errors.Is(err, processor.ErrPersistResultFailed) {
			logger.Warn().
				Err(err).
				Str("candidate_id", candidateID).
				Str("job_id", jobID).
				Msg("匹配结果落库失败，仅返回计算结果")
			return result, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// HandleGetSubmissionMatch 获取某次投递对应的匹配结果
func (h *MatchHandler) HandleGetSubmissionMatch(ctx context.Context, submissionUUID string) (*matching.Result, error) {
	if submissionUUID == "" {
		return nil, fmt.Errorf("submission_uuid 不能为空")
	}
	result, err := h.matcher.GetMatchForSubmission(ctx, submissionUUID)
	if err != nil && result != nil && errors.Is(err, processor.ErrPersistResultFailed) {
		// 按需评估成功但落库失败时仍返回结果
		logger.Warn().
			Err(err).
			Str("submission_uuid", submissionUUID).
			Msg("按需评估结果落库失败，仅返回计算结果")
		return result, nil
	}
	return result, err
}

// HandleRecomputeJobMatches 触发岗位级重算
// 通过Redis锁避免同一岗位的并发重算风暴，实际评估由消费端异步执行。
func (h *MatchHandler) HandleRecomputeJobMatches(ctx context.Context, jobID string) (*RecomputeResponse, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job_id 不能为空")
	}

	// 岗位必须存在，避免给幽灵岗位排队
	if _, err := h.storage.MySQL.GetJobByID(ctx, jobID); err != nil {
		return nil, err
	}

	token, err := h.storage.Redis.AcquireRecomputeLock(ctx, jobID, constants.RecomputeLockDuration)
	if err != nil {
		return nil, fmt.Errorf("获取重算锁失败: %w", err)
	}
	if token == "" {
		return nil, ErrRecomputeInProgress
	}
	defer func() {
		if _, err := h.storage.Redis.ReleaseRecomputeLock(ctx, jobID, token); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("释放重算锁失败，锁将按TTL过期")
		}
	}()

	enqueued, err := h.matcher.EnqueueJobRecompute(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("job_id", jobID).
		Int("enqueued", enqueued).
		Msg("岗位重算已入队")

	return &RecomputeResponse{
		JobID:    jobID,
		Enqueued: enqueued,
		Status:   "RECOMPUTE_ENQUEUED",
	}, nil
}

// HandleRecordOutcome 回流一次投递的最终成交结果，用于后续概率校准
// 同一投递重复上报覆盖旧记录，记录当时预测的成单概率与引擎版本。
func (h *MatchHandler) HandleRecordOutcome(ctx context.Context, submissionUUID, outcome, notes string) (*OutcomeResponse, error) {
	if submissionUUID == "" {
		return nil, fmt.Errorf("submission_uuid 不能为空")
	}
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	submissionStatus, ok := allowedOutcomes[outcome]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	submission, err := h.storage.MySQL.GetSubmissionByUUID(ctx, submissionUUID)
	if err != nil {
		return nil, err
	}
	if submission.CandidateID == nil || submission.JobID == nil {
		return nil, fmt.Errorf("投递 %s 缺少候选人或岗位关联: %w", submissionUUID, storage2.ErrNotFound)
	}
	candidateID, jobID := *submission.CandidateID, *submission.JobID

	// 校准行通常在评估时已写入预测快照，这里只补真实结果；
	// 评估前先回流的罕见情况下，用已存的匹配结果兜底填一份快照。
	now := time.Now().UTC()
	record := &models.MatchOutcome{
		SubmissionUUID: submissionUUID,
		CandidateID:    candidateID,
		JobID:          jobID,
		EngineVersion:  matching.EngineVersion,
		Outcome:        outcome,
		Notes:          notes,
		OutcomeAt:      &now,
	}
	predicted := 0
	match, err := h.storage.MySQL.GetMatchByCandidateJob(ctx, candidateID, jobID, matching.EngineVersion)
	if err == nil {
		predicted = match.DealProbability
		record.EngineVersion = match.EngineVersion
		record.PredictedFitScore = match.FitScore
		record.PredictedConstraintScore = match.ConstraintScore
		record.PredictedOverallMatch = match.OverallMatch
		record.PredictedProbability = match.DealProbability
		record.EvaluatedAt = &match.EvaluatedAt
	} else if !errors.Is(err, storage2.ErrNotFound) {
		return nil, err
	}
	if err := h.storage.MySQL.UpsertMatchOutcome(ctx, record); err != nil {
		return nil, err
	}

	// 投递状态跟随终态，失败只告警不回滚回流记录
	if err := h.storage.MySQL.UpdateSubmissionStatus(ctx, submissionUUID, submissionStatus); err != nil {
		logger.Warn().
			Err(err).
			Str("submission_uuid", submissionUUID).
			Str("status", submissionStatus).
			Msg("更新投递状态失败")
	}

	logger.Info().
		Str("submission_uuid", submissionUUID).
		Str("outcome", outcome).
		Int("predicted_probability", predicted).
		Msg("成交结果已回流")

	return &OutcomeResponse{
		SubmissionUUID:       submissionUUID,
		Outcome:              outcome,
		PredictedProbability: predicted,
		EngineVersion:        record.EngineVersion,
	}, nil
}

// HandleGetMatchAudit 读取一对 候选人/岗位 的归档评估快照
// 附带短时效的预签名URL，供审计方直接下载原始对象。
func (h *MatchHandler) HandleGetMatchAudit(ctx context.Context, candidateID, jobID string) (*AuditResponse, error) {
	if candidateID == "" || jobID == "" {
		return nil, fmt.Errorf("candidate_id 和 job_id 不能为空")
	}
	if h.storage.MinIO == nil {
		return nil, ErrAuditDisabled
	}

	objectKey := storage2.MatchArchiveKey(matching.EngineVersion, candidateID, jobID)
	data, err := h.storage.MinIO.GetArchivedMatchResult(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	resp := &AuditResponse{
		CandidateID: candidateID,
		JobID:       jobID,
		ObjectKey:   objectKey,
		Result:      json.RawMessage(data),
	}
	// 预签名失败不影响归档内容的返回
	url, err := h.storage.MinIO.GetPresignedURL(ctx, objectKey, auditURLExpiry)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("object_key", objectKey).
			Msg("生成归档预签名URL失败")
	} else {
		resp.DownloadURL = url
	}
	return resp, nil
}

// StartMatchConsumer 启动 match.needed 消费者
func (h *MatchHandler) StartMatchConsumer(ctx context.Context, prefetchCount int) error {
	logger.Info().
		Str("exchange", h.cfg.RabbitMQ.MatchEventsExchange).
		Str("routing_key", h.cfg.RabbitMQ.MatchNeededRoutingKey).
		Str("queue", h.cfg.RabbitMQ.MatchNeededQueue).
		Msg("初始化匹配事件拓扑")

	if err := h.storage.RabbitMQ.EnsureMatchTopology(); err != nil {
		return err
	}

	_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.MatchNeededQueue, prefetchCount, func(data []byte) bool {
		return h.matcher.HandleMatchNeededMessage(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("启动匹配消费者失败: %w", err)
	}

	logger.Info().
		Str("queue", h.cfg.RabbitMQ.MatchNeededQueue).
		Int("prefetch", prefetchCount).
		Msg("匹配消费者就绪")
	return nil
}
