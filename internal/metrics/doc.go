// 版权所有 2026 TicketFlow Authors。
// 本源代码的使用以项目许可为准。

/*
包 metrics 提供基于 Prometheus 的服务端指标采集，覆盖 HTTP、
对话轮次与会话三个维度。

# 概述

Collector 在构造时一次性建好全部指标向量。NewCollector 注册到
默认 Registry，进程内同一 namespace 只能调用一次；NewCollectorWith
接受注入的 Registerer，测试用独立 Registry 互不串扰。指标全名以
namespace 为前缀，面板与告警按全名取数。

# 指标清单

  - HTTP：请求总数（method / path / 状态类 2xx-5xx）、耗时直方图、
    请求与响应体大小。
  - 轮次：轮次总数（model / status / terminal）、轮次耗时、
    Token 用量计数（prompt 与 completion 分开累计）。
  - 会话：活跃会话数 Gauge 与会话重置计数。
*/
package metrics
