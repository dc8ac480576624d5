package dialogue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/testutil"
	"github.com/BaSui01/ticketflow/testutil/mocks"
	"github.com/BaSui01/ticketflow/types"
)

func newTestGateway(t *testing.T, provider llm.Provider, sleeper *mocks.FakeSleeper) *Gateway {
	t.Helper()
	gw, err := NewGateway(provider, GatewayConfig{
		BaseDelay: 1 * time.Second,
		Sleeper:   sleeper,
	}, zap.NewNop())
	require.NoError(t, err)
	return gw
}

func testChatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []types.Message{
			types.NewSystemMessage("You are a support assistant."),
			types.NewUserMessage("my phone broke"),
		},
		MaxTokens:   400,
		Temperature: 0.3,
	}
}

func TestDefaultGatewayConfig(t *testing.T) {
	cfg := DefaultGatewayConfig()
	assert.Equal(t, 1*time.Second, cfg.BaseDelay)
	assert.Equal(t, int64(0), cfg.MaxInFlight)
}

func TestNewGateway_NilProvider(t *testing.T) {
	_, err := NewGateway(nil, DefaultGatewayConfig(), zap.NewNop())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestGateway_Call_Success(t *testing.T) {
	provider := mocks.NewSuccessProvider("hello there")
	gw := newTestGateway(t, provider, mocks.NewFakeSleeper())

	resp, err := gw.Call(context.Background(), testChatRequest(), 3, "turn")
	require.NoError(t, err)

	text, err := llm.FirstChoiceText(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, 30, resp.Usage.TotalTokens)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestGateway_Call_RateLimitedThenSuccess(t *testing.T) {
	provider := mocks.NewRateLimitedProvider(2, "recovered")
	sleeper := mocks.NewFakeSleeper()
	gw := newTestGateway(t, provider, sleeper)

	resp, err := gw.Call(context.Background(), testChatRequest(), 3, "turn")
	require.NoError(t, err)

	text, err := llm.FirstChoiceText(resp)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, provider.GetCallCount())

	// 线性退避：第一次重试等 1×，第二次等 2×
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.Delays())
}

func TestGateway_Call_RateLimitedExhaustion(t *testing.T) {
	provider := mocks.NewRateLimitedProvider(3, "never reached")
	sleeper := mocks.NewFakeSleeper()
	gw := newTestGateway(t, provider, sleeper)

	resp, err := gw.Call(context.Background(), testChatRequest(), 3, "turn")
	require.Error(t, err)
	assert.Nil(t, resp)

	// 预算耗尽映射为 BACKEND_UNAVAILABLE，原始限流错误保留在 Cause 链上
	var outer *types.Error
	require.ErrorAs(t, err, &outer)
	assert.Equal(t, types.ErrBackendUnavailable, outer.Code)
	var inner *types.Error
	require.True(t, errors.As(outer.Unwrap(), &inner))
	assert.Equal(t, types.ErrRateLimited, inner.Code)
	assert.Equal(t, 3, provider.GetCallCount())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.Delays())
}

func TestGateway_Call_OtherErrorsNotRetried(t *testing.T) {
	upstream := types.NewError(types.ErrUpstreamError, "model overloaded")
	provider := mocks.NewErrorProvider(upstream)
	sleeper := mocks.NewFakeSleeper()
	gw := newTestGateway(t, provider, sleeper)

	_, err := gw.Call(context.Background(), testChatRequest(), 3, "turn")
	require.Error(t, err)

	// 非限流错误原样上抛，不消耗重试预算
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.False(t, types.IsErrorCode(err, types.ErrBackendUnavailable))
	assert.Equal(t, 1, provider.GetCallCount())
	assert.Empty(t, sleeper.Delays())
}

func TestGateway_Call_UsageEstimatedWhenMissing(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithResponse("estimated reply text").
		WithTokenUsage(0, 0)
	gw := newTestGateway(t, provider, mocks.NewFakeSleeper())

	resp, err := gw.Call(context.Background(), testChatRequest(), 1, "turn")
	require.NoError(t, err)

	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestGateway_Call_NilRequest(t *testing.T) {
	provider := mocks.NewSuccessProvider("unused")
	gw := newTestGateway(t, provider, mocks.NewFakeSleeper())

	_, err := gw.Call(context.Background(), nil, 3, "turn")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestGateway_Call_RetryBudgetClamped(t *testing.T) {
	provider := mocks.NewRateLimitedProvider(5, "never")
	sleeper := mocks.NewFakeSleeper()
	gw := newTestGateway(t, provider, sleeper)

	// 预算 0 按 1 处理：一次尝试，零等待
	_, err := gw.Call(context.Background(), testChatRequest(), 0, "turn")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendUnavailable))
	assert.Equal(t, 1, provider.GetCallCount())
	assert.Empty(t, sleeper.Delays())
}

func TestGateway_Call_CanceledDuringBackoff(t *testing.T) {
	provider := mocks.NewRateLimitedProvider(5, "never")
	sleeper := mocks.NewFakeSleeper().WithError(context.Canceled)
	gw := newTestGateway(t, provider, sleeper)

	_, err := gw.Call(context.Background(), testChatRequest(), 3, "turn")
	require.Error(t, err)

	// 取消不是预算耗尽：不得映射为 BACKEND_UNAVAILABLE
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, types.IsErrorCode(err, types.ErrBackendUnavailable))
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestGateway_Call_CanceledBeforeDispatch(t *testing.T) {
	provider := mocks.NewSuccessProvider("never used")
	gw, err := NewGateway(provider, GatewayConfig{
		BaseDelay:   1 * time.Second,
		MaxInFlight: 1,
		Sleeper:     mocks.NewFakeSleeper(),
	}, zap.NewNop())
	require.NoError(t, err)

	// 已取消的上下文在并发闸门处直接失败，后端一次都不会被调
	_, err = gw.Call(testutil.CancelledContext(), testChatRequest(), 3, "turn")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestGateway_Call_MaxInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	provider := mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			cur := inFlight.Add(1)
			for {
				prev := peak.Load()
				if cur <= prev || peak.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &llm.ChatResponse{
				Model:   req.Model,
				Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage("ok")}},
				Usage:   types.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
			}, nil
		})

	gw, err := NewGateway(provider, GatewayConfig{
		BaseDelay:   1 * time.Second,
		MaxInFlight: 1,
		Sleeper:     mocks.NewFakeSleeper(),
	}, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, callErr := gw.Call(context.Background(), testChatRequest(), 1, "turn")
			assert.NoError(t, callErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 4, provider.GetCallCount())
}
