// =============================================================================
// 🧪 测试辅助
// =============================================================================
// 对话引擎测试共用的上下文、断言与基准辅助。
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertConversationShape(t, msgs, types.RoleSystem, types.RoleUser)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/ticketflow/types"
)

// pollInterval 轮询型断言的检查间隔
const pollInterval = 20 * time.Millisecond

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回 30 秒超时的测试上下文，随测试结束自动取消
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文，用于验证取消传播路径
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言与等待
// =============================================================================

// AssertMessagesEqual 断言两个消息序列的角色与内容逐条相等
func AssertMessagesEqual(t *testing.T, expected, actual []types.Message) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("message count: want %d, got %d", len(expected), len(actual))
		return
	}
	for i, want := range expected {
		got := actual[i]
		if want.Role != got.Role || want.Content != got.Content {
			t.Errorf("message[%d]: want {%s %q}, got {%s %q}",
				i, want.Role, want.Content, got.Role, got.Content)
		}
	}
}

// AssertConversationShape 断言会话历史的角色序列。
// 压缩与重置类测试只关心形状（system+summary、system+user+assistant），
// 不关心具体文本。
func AssertConversationShape(t *testing.T, msgs []types.Message, roles ...types.Role) {
	t.Helper()

	if len(msgs) != len(roles) {
		t.Fatalf("conversation length: want %d messages, got %d", len(roles), len(msgs))
	}
	for i, role := range roles {
		if msgs[i].Role != role {
			t.Errorf("message[%d] role: want %s, got %s", i, role, msgs[i].Role)
		}
	}
}

// WaitFor 轮询条件直到满足或超时，返回是否在超时前满足
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// AssertEventuallyTrue 轮询直到条件为真，超时则判失败
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition not met within %v", timeout)
	}
}

// =============================================================================
// 🔧 JSON 辅助
// =============================================================================

// MustJSON 序列化为 JSON 字符串，失败即 panic（仅测试用）
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// =============================================================================
// 📊 基准测试辅助
// =============================================================================

// BenchmarkHelper 包装 *testing.B 的常用操作
type BenchmarkHelper struct {
	b *testing.B
}

func NewBenchmarkHelper(b *testing.B) *BenchmarkHelper {
	return &BenchmarkHelper{b: b}
}

func (h *BenchmarkHelper) ResetTimer() { h.b.ResetTimer() }

func (h *BenchmarkHelper) ReportAllocs() { h.b.ReportAllocs() }

// RunParallel 以 GOMAXPROCS 个 goroutine 并行执行 body
func (h *BenchmarkHelper) RunParallel(body func()) {
	h.b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			body()
		}
	})
}
