package processor

import (
	"context"

	"talent-match-go/internal/storage/models"
)

//
// 数据读写相关接口
//

// MatchStore 匹配流程依赖的数据库操作集合
type MatchStore interface {
	// GetCandidateByID 获取候选人画像
	GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error)

	// GetJobByID 获取岗位信息
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)

	// ListSkillTransfers 列出全部技能迁移映射
	ListSkillTransfers(ctx context.Context) ([]models.SkillTransfer, error)

	// GetActiveMatchingConfig 获取当前激活的评分配置
	GetActiveMatchingConfig(ctx context.Context) (*models.MatchingConfig, error)

	// SaveMatchResult 在同一事务中写入匹配结果、投递维度校准快照与outbox事件
	SaveMatchResult(ctx context.Context, match *models.CandidateJobMatch, calibration *models.MatchOutcome, event *models.OutboxMessage) error

	// GetMatchByCandidateJob 查询已有的匹配结果
	GetMatchByCandidateJob(ctx context.Context, candidateID, jobID, engineVersion string) (*models.CandidateJobMatch, error)

	// GetSubmissionByUUID 获取投递记录
	GetSubmissionByUUID(ctx context.Context, submissionUUID string) (*models.Submission, error)

	// ListActiveSubmissionsByJob 列出岗位下仍在流程中的投递
	ListActiveSubmissionsByJob(ctx context.Context, jobID string) ([]models.Submission, error)
}

//
// 缓存相关接口
//

// ResultCache 匹配结果与配置的缓存层
type ResultCache interface {
	CacheMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON string) error
	GetCachedMatchResult(ctx context.Context, engineVersion, candidateID, jobID string) (string, error)

	CacheActiveConfig(ctx context.Context, payloadJSON string) error
	GetCachedActiveConfig(ctx context.Context) (string, error)

	CacheSkillTaxonomy(ctx context.Context, entriesJSON string) error
	GetCachedSkillTaxonomy(ctx context.Context) (string, error)
}

//
// 审计归档相关接口
//

// ResultArchiver 匹配结果的对象存储归档
type ResultArchiver interface {
	// ArchiveMatchResult 归档完整结果JSON，返回对象键
	ArchiveMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON []byte) (string, error)
}

//
// 消息发布相关接口
//

// EventPublisher 向消息代理发布事件
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}
