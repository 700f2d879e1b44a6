package storage

import "time"

// 匹配事件触发来源
const (
	TriggerCandidateUpdated  = "candidate_updated"
	TriggerJobUpdated        = "job_updated"
	TriggerSubmissionCreated = "submission_created"
	TriggerRecompute         = "recompute"
)

// MatchNeededMessage 匹配重算消息
type MatchNeededMessage struct {
	EventID     string    `json:"event_id"`     // 事件UUID，消费端幂等去重用
	Trigger     string    `json:"trigger"`      // 触发来源
	CandidateID string    `json:"candidate_id"` // 候选人ID
	JobID       string    `json:"job_id"`       // 岗位ID
	RequestedAt time.Time `json:"requested_at"` // 事件生成时间

	// 由投递创建触发时携带，便于下游直接关联投递记录
	SubmissionUUID string `json:"submission_uuid,omitempty"`
}

// MatchCompletedMessage 匹配完成消息，经outbox中继发布
type MatchCompletedMessage struct {
	EventID         string    `json:"event_id"`         // 事件UUID
	CandidateID     string    `json:"candidate_id"`     // 候选人ID
	JobID           string    `json:"job_id"`           // 岗位ID
	EngineVersion   string    `json:"engine_version"`   // 评分引擎版本
	OverallGate     string    `json:"overall_gate"`     // pass/warn/fail
	OverallMatch    int       `json:"overall_match"`    // 综合匹配分 0-100
	DealProbability int       `json:"deal_probability"` // 成单概率 5-95
	EvaluatedAt     time.Time `json:"evaluated_at"`     // 评估时间
}
