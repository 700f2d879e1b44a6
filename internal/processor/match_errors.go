package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrLoadCandidateFailed = errors.New("加载候选人画像失败")
	ErrLoadJobFailed       = errors.New("加载岗位信息失败")
	ErrPersistResultFailed = errors.New("持久化匹配结果失败")
	ErrPublishEventFailed  = errors.New("发布匹配事件失败")
)

// MatchProcessError 包含详细错误信息的自定义错误
// Cause 保留底层错误链，便于上层用 errors.Is 区分"记录不存在"和瞬时故障。
type MatchProcessError struct {
	CandidateID string
	JobID       string
	Op          string
	BaseErr     error
	Cause       error
}

func (e *MatchProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (操作:%s, 候选人:%s, 岗位:%s): %v", e.BaseErr, e.Op, e.CandidateID, e.JobID, e.Cause)
	}
	return fmt.Sprintf("%s (操作:%s, 候选人:%s, 岗位:%s)", e.BaseErr, e.Op, e.CandidateID, e.JobID)
}

// Unwrap 同时暴露分类错误和底层原因
func (e *MatchProcessError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.BaseErr, e.Cause}
	}
	return []error{e.BaseErr}
}

// 错误构造函数
func NewLoadCandidateError(candidateID, jobID string, cause error) error {
	return &MatchProcessError{
		CandidateID: candidateID,
		JobID:       jobID,
		Op:          "load_candidate",
		BaseErr:     ErrLoadCandidateFailed,
		Cause:       cause,
	}
}

func NewLoadJobError(candidateID, jobID string, cause error) error {
	return &MatchProcessError{
		CandidateID: candidateID,
		JobID:       jobID,
		Op:          "load_job",
		BaseErr:     ErrLoadJobFailed,
		Cause:       cause,
	}
}

func NewPersistError(candidateID, jobID string, cause error) error {
	return &MatchProcessError{
		CandidateID: candidateID,
		JobID:       jobID,
		Op:          "persist",
		BaseErr:     ErrPersistResultFailed,
		Cause:       cause,
	}
}

func NewPublishError(candidateID, jobID string, cause error) error {
	return &MatchProcessError{
		CandidateID: candidateID,
		JobID:       jobID,
		Op:          "publish",
		BaseErr:     ErrPublishEventFailed,
		Cause:       cause,
	}
}
