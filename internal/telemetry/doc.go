// Package telemetry 负责 OpenTelemetry SDK 的装配：构建 OTLP gRPC
// 导出器、安装进程级 TracerProvider / MeterProvider 与 W3C 传播器。
// 配置未启用时全局维持 noop，进程不会发起任何外联。
package telemetry
