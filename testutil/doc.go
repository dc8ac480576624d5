// Copyright 2026 TicketFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package testutil 提供 TicketFlow 测试共用的辅助能力。

# 概述

各包的单元测试、集成测试与基准测试都从这里取用上下文构造、
断言与轮询等待，测试基础设施只实现一次，不在各包里重复。

# 核心能力

  - 上下文: TestContext / TestContextWithTimeout 随测试结束自动取消，
    CancelledContext 用于验证取消传播路径
  - 消息断言: AssertMessagesEqual 逐条比较角色与内容；
    AssertConversationShape 只看历史的角色序列，适合压缩与重置类测试
  - 轮询等待: WaitFor 返回条件是否在超时前满足，
    AssertEventuallyTrue 超时后直接判失败
  - JSON: MustJSON 把样例数据一行序列化
  - 基准: BenchmarkHelper 包装 testing.B 的计时与并行控制

# 子包

  - testutil/mocks: MockProvider（可编排的生成式后端）与
    FakeSleeper（可控退避时钟），支持 Builder 式组装与错误注入
  - testutil/fixtures: 预置的 ChatResponse、终态回复与多轮工单对话脚本

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse("hello")
	resp, err := provider.Completion(ctx, req)
	require.NoError(t, err)
*/
package testutil
