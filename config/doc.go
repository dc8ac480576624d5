// Package config 提供 TicketFlow 的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，优先级为
// 默认值 → 文件 → 环境变量，并提供加载后的整体校验。
package config
