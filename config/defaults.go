// =============================================================================
// 📦 TicketFlow 默认配置
// =============================================================================
// 每个配置段的出厂值，文件与环境变量在此基础上覆盖
// =============================================================================
package config

import "time"

// DefaultConfig 返回全部配置段的出厂值
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Dialogue:  DefaultDialogueConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认宿主配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		MaxConns:        1024,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLLMConfig 返回默认后端配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "openai",
		APIKey:   "",
		BaseURL:  "",
		Timeout:  2 * time.Minute,
	}
}

// DefaultDialogueConfig 返回默认对话引擎配置
func DefaultDialogueConfig() DialogueConfig {
	return DialogueConfig{
		SystemPrompt:     "",
		Model:            "gpt-4o-mini",
		MaxReplyTokens:   400,
		ReplyTemperature: 0.3,
		MaxRetries:       3,
		RetryBaseDelay:   1 * time.Second,
		MaxInFlight:      0,
		Compaction:       DefaultCompactionConfig(),
	}
}

// DefaultCompactionConfig 返回默认历史压缩配置
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		TriggerMessages:    20,
		SummaryMaxTokens:   200,
		SummaryTemperature: 0.2,
		SummaryPrompt:      "",
		MaxRetries:         3,
	}
}

// DefaultLogConfig 返回默认日志配置：info 级 JSON 输出到 stdout
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置，导出默认关闭
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ticketflow",
		SampleRate:   0.1,
	}
}
