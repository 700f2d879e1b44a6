package router

import (
	"bytes"
	"net/http"
	"testing"

	"talent-match-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 只注册路由，不接真实存储，验证鉴权与参数校验的前置拦截
func newTestEngine(apiKeys []string) *server.Hertz {
	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	cfg := &config.Config{APIKeys: apiKeys}
	RegisterRoutes(h, cfg, nil)
	return h
}

func TestHealthBypassesAuth(t *testing.T) {
	h := newTestEngine([]string{"secret-key"})

	resp := ut.PerformRequest(h.Engine, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.Code, "健康检查不应要求API Key")
	assert.Contains(t, resp.Body.String(), "ok")
}

func TestAPIKeyRequired(t *testing.T) {
	h := newTestEngine([]string{"secret-key"})

	// 缺少API Key
	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/jobs/job-1/matches/recompute", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code, "缺少API Key应返回401")

	// 错误的API Key
	resp = ut.PerformRequest(h.Engine, "POST", "/api/v1/jobs/job-1/matches/recompute", nil,
		ut.Header{Key: "X-API-Key", Value: "wrong-key"},
	)
	assert.Equal(t, http.StatusUnauthorized, resp.Code, "错误的API Key应返回401")
}

func TestEvaluateRejectsMalformedBody(t *testing.T) {
	h := newTestEngine([]string{"secret-key"})

	body := bytes.NewBufferString("{not json")
	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/matches/evaluate",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "X-API-Key", Value: "secret-key"},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "非法JSON应返回400")
}

func TestEvaluateRejectsMissingIDs(t *testing.T) {
	h := newTestEngine([]string{"secret-key"})

	body := bytes.NewBufferString(`{"candidate_id":"","job_id":""}`)
	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/matches/evaluate",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "X-API-Key", Value: "secret-key"},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "缺少ID应返回400")
	assert.Contains(t, resp.Body.String(), "candidate_id")
}

func TestRoutesWithoutConfiguredKeysSkipAuth(t *testing.T) {
	h := newTestEngine(nil)

	body := bytes.NewBufferString(`{"candidate_id":"","job_id":""}`)
	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/matches/evaluate",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	// 未配置API Key时直接进入参数校验
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
