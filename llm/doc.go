// 版权所有 2026 TicketFlow Authors。
// 本源代码的使用以项目许可为准。

/*
包 llm 提供统一的生成式后端接入层。

# 概述

本包目标是屏蔽不同模型服务商在接口、鉴权和错误语义上的差异，
对上层 dialogue 包暴露一致的请求与响应模型。重试、退避与用量
统计不在本包内实现，由 dialogue.Gateway 基于 llm/retry 组合完成。

# 核心接口

  - [Provider]：后端提供者接口，提供 Completion / HealthCheck / Name

# 核心类型

  - [ChatRequest] / [ChatResponse]：补全请求与响应
  - [HealthStatus]：健康检查状态

错误统一使用 types.Error：限流错误携带 types.ErrRateLimited 且
Retryable=true，其余按语义映射 HTTP 状态与错误码。

# 子包

  - llm/retry：可注入时钟的线性退避重试组合器
  - llm/tokenizer：Token 计数（tiktoken 精确计数 + 字符估算回退）
  - llm/providers/openaicompat：OpenAI 兼容 HTTP 后端实现
*/
package llm
