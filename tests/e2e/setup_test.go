// 端到端环境：真实引擎与完整 HTTP 路由，只把 LLM 后端换成 mock。
//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow"
	"github.com/BaSui01/ticketflow/api"
	"github.com/BaSui01/ticketflow/api/handlers"
	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/dialogue"
	"github.com/BaSui01/ticketflow/testutil"
	"github.com/BaSui01/ticketflow/testutil/mocks"
)

// TestEnv 驱动一个进程内服务，路由与处理器按生产方式装配
type TestEnv struct {
	Provider *mocks.MockProvider
	Engine   *dialogue.Engine
	Server   *httptest.Server
}

// NewTestEnv 装配测试环境，随测试结束自动关闭服务
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	// CI 里可用环境变量覆盖默认配置
	if envCfg, err := config.LoadFromEnv(); err == nil {
		cfg = envCfg
	}

	provider := mocks.NewMockProvider()
	engine, err := ticketflow.NewFromConfig(cfg.Dialogue, provider, zap.NewNop())
	require.NoError(t, err)

	server := httptest.NewServer(newRouter(engine, provider))
	t.Cleanup(server.Close)

	return &TestEnv{Provider: provider, Engine: engine, Server: server}
}

// newRouter 挂载与生产入口一致的路由表
func newRouter(engine *dialogue.Engine, provider *mocks.MockProvider) http.Handler {
	logger := zap.NewNop()
	turns := handlers.NewTurnHandler(engine, nil, logger)
	health := handlers.NewHealthHandler(logger)
	health.RegisterCheck(handlers.NewProviderHealthCheck(provider))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/turns", turns.HandleTurn)
	mux.HandleFunc("POST /api/v1/sessions/{key}/reset", turns.HandleReset)
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/ready", health.HandleReady)
	return mux
}

// PostTurn 通过 HTTP 发起一轮对话，返回状态码与解析后的轮次响应。
// 错误响应只返回状态码。
func (e *TestEnv) PostTurn(t *testing.T, sessionKey, message string) (int, *api.TurnResponse) {
	t.Helper()

	payload := testutil.MustJSON(api.TurnRequest{SessionKey: sessionKey, Message: message})
	resp, err := http.Post(e.Server.URL+"/api/v1/turns", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if !envelope.Success {
		return resp.StatusCode, nil
	}

	// 信封里的 data 是 map，重序列化成目标类型
	var turn api.TurnResponse
	require.NoError(t, json.Unmarshal([]byte(testutil.MustJSON(envelope.Data)), &turn))
	return resp.StatusCode, &turn
}

// ResetSession 通过 HTTP 重置会话，返回状态码
func (e *TestEnv) ResetSession(t *testing.T, sessionKey string) int {
	t.Helper()

	resp, err := http.Post(e.Server.URL+"/api/v1/sessions/"+sessionKey+"/reset", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode
}
