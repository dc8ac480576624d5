// =============================================================================
// 📦 测试数据工厂 - 多轮工单对话脚本
// =============================================================================
// 提供预置的用户消息与助手回复序列，用于驱动 MockProvider.WithSteps
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/ticketflow/testutil/mocks"
)

// LaptopTicketUserMessages 返回一段笔记本故障工单对话的用户消息序列
func LaptopTicketUserMessages() []string {
	return []string{
		"Hi, my laptop screen went black after the latest update.",
		"It's a ThinkPad X1 Carbon, the power light is still on.",
		"Yes, I rebooted twice already. Please just open a ticket.",
	}
}

// LaptopTicketSteps 返回与 LaptopTicketUserMessages 配套的助手回复序列，
// 最后一步到达终态并携带完整工单标签
func LaptopTicketSteps() []mocks.Step {
	return []mocks.Step{
		{Response: "Sorry to hear that. Which laptop model are you using?"},
		{Response: "Thanks. Did you already try rebooting the machine?"},
		{Response: TerminalReply(
			"Got it, I'm opening a ticket for you now.",
			"Laptop screen black after update",
			"ThinkPad X1 Carbon shows a black screen after the latest system update. Power light on, two reboots did not help.",
			"hardware",
		)},
	}
}

// PrinterTicketSteps 返回一段打印机故障对话的助手回复序列，
// 终态回复缺少分类标签，用于残缺提取场景
func PrinterTicketSteps() []mocks.Step {
	return []mocks.Step{
		{Response: "Is the printer showing any error code on its display?"},
		{Response: PartialTerminalReply(
			"Understood, filing the ticket.",
			"Printer permanently offline",
		)},
	}
}

// FlakyBackendSteps 返回先限流后成功的回复序列，用于重试路径
func FlakyBackendSteps(finalReply string) []mocks.Step {
	return []mocks.Step{
		{Err: RateLimitedError()},
		{Response: finalReply},
	}
}
