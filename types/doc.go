// Copyright (c) TicketFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ticketflow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 dialogue、llm、config
等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和错误码均定义
于此，以避免循环依赖。

# 核心类型

  - Message / Role    — 对话消息（system / user / assistant）
  - TokenUsage        — 后端调用的 Token 用量统计，Add 支持跨调用累加
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewRateLimitedError / NewBackendUnavailableError
  - 消息复制：CloneMessages（会话存储对外只交出副本）
*/
package types
