// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于会话压缩收益统计
// 与后端未返回用量时的兜底估算。
package tokenizer
