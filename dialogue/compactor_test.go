package dialogue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/testutil/mocks"
	"github.com/BaSui01/ticketflow/types"
)

func newTestCompactor(t *testing.T, provider llm.Provider, sleeper *mocks.FakeSleeper) (*Compactor, *MemoryStore) {
	t.Helper()
	store := newTestStore()
	gw, err := NewGateway(provider, GatewayConfig{
		BaseDelay: 1 * time.Second,
		Sleeper:   sleeper,
	}, zap.NewNop())
	require.NoError(t, err)

	cfg := DefaultCompactorConfig()
	cfg.Model = "gpt-4o-mini"
	c, err := NewCompactor(store, gw, cfg, zap.NewNop())
	require.NoError(t, err)
	return c, store
}

// seedHistory 填充 n 条交替的 user/assistant 消息
func seedHistory(store *MemoryStore, key string, n int) {
	store.GetOrCreate(key)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			store.Append(key, types.NewUserMessage(fmt.Sprintf("user message %d", i)))
		} else {
			store.Append(key, types.NewAssistantMessage(fmt.Sprintf("assistant message %d", i)))
		}
	}
}

func TestDefaultCompactorConfig(t *testing.T) {
	cfg := DefaultCompactorConfig()
	assert.Equal(t, 20, cfg.TriggerMessages)
	assert.Equal(t, 200, cfg.SummaryMaxTokens)
	assert.Equal(t, float32(0.2), cfg.SummaryTemperature)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.NotEmpty(t, cfg.SummaryPrompt)
}

func TestNewCompactor_Validation(t *testing.T) {
	provider := mocks.NewSuccessProvider("summary")
	gw, err := NewGateway(provider, DefaultGatewayConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = NewCompactor(nil, gw, DefaultCompactorConfig(), zap.NewNop())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = NewCompactor(newTestStore(), nil, DefaultCompactorConfig(), zap.NewNop())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestCompactor_BelowThreshold(t *testing.T) {
	provider := mocks.NewSuccessProvider("summary")
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	// 恰好 20 条非 system 消息：阈值是"超过"而非"达到"
	seedHistory(store, "user-1", 20)

	compacted, usage, err := c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Zero(t, usage.TotalTokens)
	assert.Equal(t, 0, provider.GetCallCount())

	sess, _ := store.Get("user-1")
	assert.Len(t, sess.Messages, 21)
}

func TestCompactor_AbsentSession(t *testing.T) {
	provider := mocks.NewSuccessProvider("summary")
	c, _ := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	compacted, _, err := c.MaybeCompact(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestCompactor_CompactsToTwoMessages(t *testing.T) {
	provider := mocks.NewSuccessProvider("Customer reports a cracked screen; warranty confirmed.")
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	seedHistory(store, "user-1", 21)

	compacted, usage, err := c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, compacted)

	// 摘要调用的用量向调用方上报
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 20, usage.CompletionTokens)
	assert.Equal(t, 30, usage.TotalTokens)

	sess, ok := store.Get("user-1")
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)

	// 首条仍是原 system 指令
	assert.Equal(t, types.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, testSystemPrompt, sess.Messages[0].Content)

	// 第二条是带固定前缀的摘要
	assert.Equal(t, types.RoleAssistant, sess.Messages[1].Role)
	assert.True(t, strings.HasPrefix(sess.Messages[1].Content, SummaryPrefix))
	assert.Contains(t, sess.Messages[1].Content, "cracked screen")
}

func TestCompactor_SummaryRequestShape(t *testing.T) {
	provider := mocks.NewSuccessProvider("short summary")
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	seedHistory(store, "user-1", 21)

	_, _, err := c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)

	call := provider.GetLastCall()
	require.NotNil(t, call)

	req := call.Request
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 200, req.MaxTokens)
	assert.Equal(t, float32(0.2), req.Temperature)

	// 摘要指令替换原 system 指令，其后是全部 21 条历史
	require.Len(t, req.Messages, 22)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.NotEqual(t, testSystemPrompt, req.Messages[0].Content)
	assert.Equal(t, "user message 0", req.Messages[1].Content)
}

func TestCompactor_FailureKeepsHistory(t *testing.T) {
	provider := mocks.NewErrorProvider(types.NewError(types.ErrUpstreamError, "model down"))
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	seedHistory(store, "user-1", 21)

	compacted, usage, err := c.MaybeCompact(context.Background(), "user-1")
	require.Error(t, err)
	assert.False(t, compacted)
	assert.Zero(t, usage.TotalTokens)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))

	// 失败时历史原封不动，不存在部分替换
	sess, _ := store.Get("user-1")
	assert.Len(t, sess.Messages, 22)
}

func TestCompactor_RateLimitRetryThenSuccess(t *testing.T) {
	provider := mocks.NewRateLimitedProvider(2, "resilient summary")
	sleeper := mocks.NewFakeSleeper()
	c, store := newTestCompactor(t, provider, sleeper)

	seedHistory(store, "user-1", 21)

	compacted, _, err := c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, compacted)
	assert.Equal(t, 3, provider.GetCallCount())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.Delays())
}

func TestCompactor_EmptyChoicesError(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{Model: req.Model}, nil
		})
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	seedHistory(store, "user-1", 21)

	compacted, _, err := c.MaybeCompact(context.Background(), "user-1")
	require.Error(t, err)
	assert.False(t, compacted)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))

	sess, _ := store.Get("user-1")
	assert.Len(t, sess.Messages, 22)
}

func TestCompactor_SecondPassNoOp(t *testing.T) {
	provider := mocks.NewSuccessProvider("summary")
	c, store := newTestCompactor(t, provider, mocks.NewFakeSleeper())

	seedHistory(store, "user-1", 21)

	compacted, _, err := c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, compacted)

	// 压缩后只剩 1 条非 system 消息，再压缩是空操作
	compacted, _, err = c.MaybeCompact(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestCompactor_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("any over-threshold history compacts to exactly two messages", prop.ForAll(
		func(n int) bool {
			provider := mocks.NewSuccessProvider("summary text")
			c, store := newTestCompactorForProp(provider)
			seedHistory(store, "user-1", n)

			compacted, _, err := c.MaybeCompact(context.Background(), "user-1")
			if err != nil || !compacted {
				return false
			}

			sess, ok := store.Get("user-1")
			if !ok || len(sess.Messages) != 2 {
				return false
			}
			return sess.Messages[0].Role == types.RoleSystem &&
				strings.HasPrefix(sess.Messages[1].Content, SummaryPrefix)
		},
		gen.IntRange(21, 60),
	))

	properties.TestingRun(t)
}

// newTestCompactorForProp 是属性测试用的无 *testing.T 版本
func newTestCompactorForProp(provider llm.Provider) (*Compactor, *MemoryStore) {
	store := newTestStore()
	gw, _ := NewGateway(provider, GatewayConfig{
		BaseDelay: 1 * time.Second,
		Sleeper:   mocks.NewFakeSleeper(),
	}, zap.NewNop())

	cfg := DefaultCompactorConfig()
	cfg.Model = "gpt-4o-mini"
	c, _ := NewCompactor(store, gw, cfg, zap.NewNop())
	return c, store
}
