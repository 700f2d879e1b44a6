package router

import (
	"context"
	"errors"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/config"
	"talent-match-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// evaluateRequest 同步评估请求体
type evaluateRequest struct {
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id"`
	// 可选；给定时结果会挂到投递记录并落库，缺省时只计算不落库
	SubmissionUUID string `json:"submission_uuid"`
}

// outcomeRequest 成交结果回流请求体
type outcomeRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, matchHandler *handler.MatchHandler) {
	// 健康检查不走鉴权
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")

	// 配置了API Key时启用请求头鉴权
	if len(cfg.APIKeys) > 0 {
		allowed := make(map[string]struct{}, len(cfg.APIKeys))
		for _, key := range cfg.APIKeys {
			allowed[key] = struct{}{}
		}
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				_, ok := allowed[key]
				return ok, nil
			}),
		))
	}

	// 同步评估一对 候选人/岗位
	api.POST("/matches/evaluate", func(c context.Context, ctx *app.RequestContext) {
		var req evaluateRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		if req.CandidateID == "" || req.JobID == "" {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "candidate_id 和 job_id 不能为空"})
			return
		}

		result, persisted, err := matchHandler.HandleEvaluateMatch(c, req.CandidateID, req.JobID, req.SubmissionUUID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"persisted": persisted,
			"result":    result,
		})
	})

	// 查询某次投递的匹配结果
	api.GET("/submissions/:submission_uuid/match", func(c context.Context, ctx *app.RequestContext) {
		submissionUUID := ctx.Param("submission_uuid")

		result, err := matchHandler.HandleGetSubmissionMatch(c, submissionUUID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	// 读取归档的评估快照，供审计回查
	api.GET("/matches/:candidate_id/:job_id/audit", func(c context.Context, ctx *app.RequestContext) {
		resp, err := matchHandler.HandleGetMatchAudit(c, ctx.Param("candidate_id"), ctx.Param("job_id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 触发岗位级重算
	api.POST("/jobs/:job_id/matches/recompute", func(c context.Context, ctx *app.RequestContext) {
		jobID := ctx.Param("job_id")

		resp, err := matchHandler.HandleRecomputeJobMatches(c, jobID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	// 回流投递的最终成交结果
	api.PUT("/submissions/:submission_uuid/outcome", func(c context.Context, ctx *app.RequestContext) {
		submissionUUID := ctx.Param("submission_uuid")

		var req outcomeRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}

		resp, err := matchHandler.HandleRecordOutcome(c, submissionUUID, req.Outcome, req.Notes)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

// writeError 把业务错误映射到HTTP状态码
func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrRecomputeInProgress):
		ctx.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrInvalidOutcome),
		errors.Is(err, handler.ErrSubmissionMismatch):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrAuditDisabled):
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{"error": err.Error()})
	default:
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}
