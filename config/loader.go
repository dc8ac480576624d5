// =============================================================================
// 📦 TicketFlow 配置加载器
// =============================================================================
// 三层叠加的配置来源，后者覆盖前者: 默认值 → YAML 文件 → 环境变量
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TICKETFLOW").
//	    Load()
//
// 环境变量名由前缀和 env tag 逐级拼接，如 TICKETFLOW_DIALOGUE_MODEL。
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 TicketFlow 的完整配置，按子系统分段
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Dialogue  DialogueConfig  `yaml:"dialogue" env:"DIALOGUE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 宿主配置
type ServerConfig struct {
	// 监听地址，形如 ":8080"
	Addr string `yaml:"addr" env:"ADDR"`
	// 单个请求的读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 响应写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Keep-Alive 连接的空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 请求头大小上限
	MaxHeaderBytes int `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	// 并发连接数上限，0 表示不限制
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// 优雅关闭的等待上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，空列表拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// LLMConfig 生成式后端配置
type LLMConfig struct {
	// 后端适配器名称
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，空值使用适配器默认）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DialogueConfig 对话引擎配置
type DialogueConfig struct {
	// 系统提示词，空值使用内置默认
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 主回复模型
	Model string `yaml:"model" env:"MODEL"`
	// 主回复输出长度上限
	MaxReplyTokens int `yaml:"max_reply_tokens" env:"MAX_REPLY_TOKENS"`
	// 主回复温度
	ReplyTemperature float32 `yaml:"reply_temperature" env:"REPLY_TEMPERATURE"`
	// 重试预算（总尝试次数）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 线性退避基础延迟
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"`
	// 后端并发调用上限，0 表示不限制
	MaxInFlight int64 `yaml:"max_in_flight" env:"MAX_IN_FLIGHT"`
	// Compaction 历史压缩配置
	Compaction CompactionConfig `yaml:"compaction" env:"COMPACTION"`
}

// CompactionConfig 历史压缩配置
type CompactionConfig struct {
	// 触发阈值：非 system 消息数超过该值才压缩
	TriggerMessages int `yaml:"trigger_messages" env:"TRIGGER_MESSAGES"`
	// 摘要输出长度上限
	SummaryMaxTokens int `yaml:"summary_max_tokens" env:"SUMMARY_MAX_TOKENS"`
	// 摘要温度
	SummaryTemperature float32 `yaml:"summary_temperature" env:"SUMMARY_TEMPERATURE"`
	// 摘要指令，空值使用内置默认
	SummaryPrompt string `yaml:"summary_prompt" env:"SUMMARY_PROMPT"`
	// 摘要调用重试预算
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 最低输出级别，debug/info/warn/error 之一
	Level string `yaml:"level" env:"LEVEL"`
	// 编码格式，json 或 console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出目标，支持 stdout/stderr/文件路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 日志行携带调用位置
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// Error 级及以上附带堆栈
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 开启后才会创建 OTLP 导出器
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC collector 地址
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 上报用的服务名
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// trace 采样比例，0 到 1
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 按 Builder 模式组装的配置加载器
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建加载器，环境变量前缀默认 TICKETFLOW
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TICKETFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加一个配置验证器，Load 末尾依次执行
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次叠加默认值、YAML 文件、环境变量，然后跑验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.applyFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.overlayEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// MustLoad 加载配置，失败时 panic，适合 main 里一把梭
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 跳过文件，仅用默认值加环境变量
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// applyFile 把 YAML 文件内容叠加到 cfg 上。
// 文件不存在不算错误，保持默认值继续。
func (l *Loader) applyFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// =============================================================================
// 🔍 环境变量覆盖
// =============================================================================

var durationType = reflect.TypeOf(time.Duration(0))

// overlayEnv 按 env tag 递归遍历配置结构体，环境变量名逐级拼接前缀
func (l *Loader) overlayEnv(v reflect.Value, prefix string) error {
	for _, sf := range reflect.VisibleFields(v.Type()) {
		tag := sf.Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}

		key := prefix + "_" + tag
		field := v.FieldByIndex(sf.Index)

		// 嵌套结构体带着拼好的前缀继续下钻
		if field.Kind() == reflect.Struct {
			if err := l.overlayEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := assignField(field, raw); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// assignField 把环境变量字符串写进叶子字段
func assignField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	// time.Duration 按 "500ms" 这类字面量解析，不走普通整数路径
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(splitAndTrim(raw)))
		}
	}

	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// =============================================================================
// ✅ 配置校验
// =============================================================================

// Validate 聚合所有配置问题后一次性报告
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		problems = append(problems, "server addr is required")
	}
	if c.Server.RateLimitRPS < 0 {
		problems = append(problems, "rate_limit_rps must not be negative")
	}

	if c.Dialogue.MaxRetries < 1 {
		problems = append(problems, "dialogue max_retries must be at least 1")
	}
	if c.Dialogue.ReplyTemperature < 0 || c.Dialogue.ReplyTemperature > 2 {
		problems = append(problems, "reply_temperature must be between 0 and 2")
	}
	if c.Dialogue.Compaction.TriggerMessages < 1 {
		problems = append(problems, "compaction trigger_messages must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(problems, "; "))
	}

	return nil
}
