// =============================================================================
// 🚀 TicketFlow 性能基准测试
// =============================================================================
// 覆盖关键路径的性能测试，包括：
// - 协议分析（终态检测 / 字段提取 / 回复清洗）
// - 会话存储（追加 / 读取 / 并发访问）
// - Token 估算
// - 完整轮次处理（mock 后端）
//
// 运行方式:
//   go test -bench=. -benchmem ./tests/benchmark/...
//   go test -bench=BenchmarkAnalyzer -benchmem ./tests/benchmark/...
// =============================================================================

package benchmark

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/dialogue"
	"github.com/BaSui01/ticketflow/llm/tokenizer"
	"github.com/BaSui01/ticketflow/testutil"
	"github.com/BaSui01/ticketflow/testutil/fixtures"
	"github.com/BaSui01/ticketflow/testutil/mocks"
	"github.com/BaSui01/ticketflow/types"
)

// =============================================================================
// 🔍 协议分析基准
// =============================================================================

// BenchmarkAnalyzer_IsTerminal 测试终态检测性能
func BenchmarkAnalyzer_IsTerminal(b *testing.B) {
	analyzer := dialogue.NewTagAnalyzer()
	reply := fixtures.TerminalReply(
		"Got it, filing the ticket now.",
		"Laptop screen black after update",
		"ThinkPad X1 Carbon shows a black screen after the latest update.",
		"hardware",
	)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		analyzer.IsTerminal(reply)
	}
}

// BenchmarkAnalyzer_ExtractFields 测试字段提取性能
func BenchmarkAnalyzer_ExtractFields(b *testing.B) {
	analyzer := dialogue.NewTagAnalyzer()
	reply := fixtures.TerminalReply(
		"Got it, filing the ticket now.",
		"Laptop screen black after update",
		"ThinkPad X1 Carbon shows a black screen after the latest update.",
		"hardware",
	)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		analyzer.ExtractFields(reply)
	}
}

// BenchmarkAnalyzer_Sanitize 测试回复清洗性能
func BenchmarkAnalyzer_Sanitize(b *testing.B) {
	analyzer := dialogue.NewTagAnalyzer()
	reply := fixtures.TerminalReply(
		"Got it, filing the ticket now.",
		"Laptop screen black after update",
		"ThinkPad X1 Carbon shows a black screen after the latest update.",
		"hardware",
	)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		analyzer.Sanitize(reply)
	}
}

// =============================================================================
// 💾 会话存储基准
// =============================================================================

// BenchmarkMemoryStore_Append 测试消息追加性能
func BenchmarkMemoryStore_Append(b *testing.B) {
	store := dialogue.NewMemoryStore("system prompt", zap.NewNop())
	msg := types.NewUserMessage("My laptop is broken again.")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// 轮转会话键以限制单会话历史长度
		key := fmt.Sprintf("bench-%d", i%128)
		store.Append(key, msg)
	}
}

// BenchmarkMemoryStore_Get 测试会话读取性能
func BenchmarkMemoryStore_Get(b *testing.B) {
	store := dialogue.NewMemoryStore("system prompt", zap.NewNop())
	for i := 0; i < 128; i++ {
		key := fmt.Sprintf("bench-%d", i)
		store.GetOrCreate(key)
		store.Append(key, types.NewUserMessage("hello"), types.NewAssistantMessage("hi"))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Get(fmt.Sprintf("bench-%d", i%128))
	}
}

// BenchmarkMemoryStore_ParallelGet 测试并发读取性能
func BenchmarkMemoryStore_ParallelGet(b *testing.B) {
	store := dialogue.NewMemoryStore("system prompt", zap.NewNop())
	for i := 0; i < 128; i++ {
		key := fmt.Sprintf("bench-%d", i)
		store.GetOrCreate(key)
	}

	helper := testutil.NewBenchmarkHelper(b)
	helper.ResetTimer()
	helper.ReportAllocs()

	var n atomic.Int64
	helper.RunParallel(func() {
		i := n.Add(1)
		store.Get(fmt.Sprintf("bench-%d", i%128))
	})
}

// =============================================================================
// 🔢 Token 估算基准
// =============================================================================

// BenchmarkTokenizer_EstimatorCountMessages 测试启发式估算性能
func BenchmarkTokenizer_EstimatorCountMessages(b *testing.B) {
	tok := tokenizer.NewEstimatorTokenizer("bench-model", 8192)
	messages := []types.Message{
		types.NewSystemMessage("You are a support ticket assistant."),
		types.NewUserMessage("My laptop screen went black after the latest update."),
		types.NewAssistantMessage("Sorry to hear that. Which model are you using?"),
		types.NewUserMessage("It's a ThinkPad X1 Carbon, power light is still on."),
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := tok.CountMessages(messages); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// 🔄 完整轮次基准
// =============================================================================

// BenchmarkEngine_ProcessTurn 测试完整轮次处理性能（mock 后端）
func BenchmarkEngine_ProcessTurn(b *testing.B) {
	logger := zap.NewNop()
	provider := mocks.NewMockProvider().WithResponse("Tell me more.")

	store := dialogue.NewMemoryStore("system prompt", logger)
	gateway, err := dialogue.NewGateway(provider, dialogue.DefaultGatewayConfig(), logger)
	if err != nil {
		b.Fatal(err)
	}
	// 阈值调高，压缩路径不进入本基准
	compactorCfg := dialogue.DefaultCompactorConfig()
	compactorCfg.TriggerMessages = 1 << 20
	compactor, err := dialogue.NewCompactor(store, gateway, compactorCfg, logger)
	if err != nil {
		b.Fatal(err)
	}
	engine, err := dialogue.NewEngine(store, gateway, compactor, nil, dialogue.DefaultEngineConfig(), logger)
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench-%d", i%256)
		if _, err := engine.ProcessTurn(ctx, "Still broken.", key); err != nil {
			b.Fatal(err)
		}
	}
}
