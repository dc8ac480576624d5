// =============================================================================
// TicketFlow 服务入口
// =============================================================================
// 子命令：
//
//	ticketflow serve [--config config.yaml]  启动 HTTP 服务
//	ticketflow health [--addr URL]           探测运行实例的 /health
//	ticketflow version                       打印构建版本
// =============================================================================

// @title TicketFlow API
// @version 1.0.0
// @description TicketFlow is a support-ticket dialogue service that drives multi-turn conversations against an OpenAI-compatible backend.
// @description
// @description ## Features
// @description - Multi-turn ticket dialogue with per-session history
// @description - Automatic history compaction for long conversations
// @description - Structured ticket draft extraction on completed dialogues
// @description - Health monitoring and Prometheus metrics

// @contact.name TicketFlow Team
// @contact.url https://github.com/BaSui01/ticketflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/internal/telemetry"
	"github.com/BaSui01/ticketflow/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

// run 分发子命令并返回进程退出码。
func run(command string, args []string) int {
	switch command {
	case "serve":
		return runServe(args)
	case "version":
		printVersion()
		return 0
	case "health":
		return runHealthCheck(args)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printUsage()
		return 2
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting ticketflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 遥测初始化失败不拦截启动，降级为 noop
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("server start failed", zap.Error(err))
		return 1
	}

	// 阻塞直到收到退出信号并完成优雅关闭
	srv.WaitForShutdown()

	logger.Info("ticketflow stopped")
	return 0
}

// loadConfig 读取并校验配置；path 为空时走默认查找顺序。
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

// runHealthCheck 请求运行实例的 /health，可用作容器健康探针。
func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := tlsutil.NewHTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("OK")
	return 0
}

// =============================================================================
// 📋 版本与帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ticketflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Println(`TicketFlow - 工单对话服务

用法:
  ticketflow <command> [options]

命令:
  serve     启动 HTTP 服务
  version   打印构建版本
  health    探测运行实例的健康状态
  help      显示本帮助

serve 选项:
  --config <path>   YAML 配置文件路径

示例:
  ticketflow serve
  ticketflow serve --config /etc/ticketflow/config.yaml
  ticketflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 按配置构建 zap logger，构建失败时退回生产默认配置。
func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"
	var encCfg zapcore.EncoderConfig
	if console {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if console {
		encoding = "console"
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed, falling back to defaults: %v\n", err)
		logger, _ = zap.NewProduction()
	}
	return logger
}
