// Copyright (c) TicketFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 TicketFlow HTTP API 的各端点处理器。

# 概述

覆盖对话轮次、会话重置、健康与就绪探针、版本信息几类端点，
处理器都是标准 net/http 形态，接口文档经 Swagger 注解生成。
成功与失败统一走信封结构：success 标志位、data 或 error 二选一、
时间戳，外加中间件分配的 request_id 回显。

# 核心类型

  - TurnHandler    — POST /api/v1/turns 与会话重置
  - HealthHandler  — /health /healthz /ready /readyz /version，
    就绪检查经 RegisterCheck 插拔（如后端连通性探测）
  - Response / ErrorInfo — 响应信封与结构化错误体
  - ResponseWriter — 包装 http.ResponseWriter 捕获状态码，供
    日志与指标中间件使用

# 行为要点

  - DecodeJSONBody 限制请求体 1 MB 并拒绝未知字段；超限返回 413，
    其余解码失败返回 400
  - 错误码到 HTTP 状态的映射集中在一张表里，ErrorInfo 的显式
    HTTPStatus 优先于映射
  - 轮次处理经 internal/metrics 记录请求量、时延、Token 用量与
    活跃会话数
*/
package handlers
