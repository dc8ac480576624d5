// Copyright (c) TicketFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TicketFlow 服务端程序入口。

# 概述

cmd/ticketflow 是 TicketFlow 工单对话服务的可执行入口，提供 HTTP API、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、结构化日志
（zap）、Prometheus 指标采集以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server           — 主服务器，组装对话引擎、HTTP 服务与优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - countingWriter    — 包装 http.ResponseWriter，记录状态码与响应字节数

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing（可选）、CORS、RateLimiter（基于 IP）
  - 单端口暴露：/api/v1/* 业务接口、/health 探针族、/metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止限流清理 → 关闭 HTTP → 刷新遥测数据
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
