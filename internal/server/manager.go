package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/BaSui01/ticketflow/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器生命周期
// =============================================================================

// Config 服务器配置
type Config struct {
	// 监听地址，形如 ":8080"
	Addr string `yaml:"addr" json:"addr"`

	// 单个请求的读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 响应写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// Keep-Alive 连接的空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 请求头大小上限
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 并发连接数上限，0 表示不限制
	MaxConns int `yaml:"max_conns" json:"max_conns"`

	// 优雅关闭的等待上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		MaxConns:        1024,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Manager 管理一个 http.Server 的完整生命周期：
// 监听（含连接数上限）、后台 serve、异步错误上报、信号驱动的优雅关闭。
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewManager 创建服务器管理器。TLS 配置取 tlsutil 的加固默认值，
// 仅在 StartTLS 路径生效。
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	return &Manager{
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
			TLSConfig:      tlsutil.Hardened(),
		},
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
	}
}

// Start 启动 HTTP 服务（非阻塞）。
func (m *Manager) Start() error {
	return m.start("http", func(l net.Listener) error {
		return m.server.Serve(l)
	})
}

// StartTLS 启动 HTTPS 服务（非阻塞）。
func (m *Manager) StartTLS(certFile, keyFile string) error {
	return m.start("https", func(l net.Listener) error {
		return m.server.ServeTLS(l, certFile, keyFile)
	})
}

// start 建立监听并在后台 goroutine 里运行 serveFn。
// Serve 的非正常退出进入 errCh，由 WaitForShutdown 或 Errors 消费。
func (m *Manager) start(scheme string, serveFn func(net.Listener) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return fmt.Errorf("server is closed")
	case m.listener != nil:
		return fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	if m.config.MaxConns > 0 {
		listener = netutil.LimitListener(listener, m.config.MaxConns)
		m.logger.Info("connection limit enabled", zap.Int("max_conns", m.config.MaxConns))
	}
	m.listener = listener

	m.logger.Info("starting server",
		zap.String("scheme", scheme),
		zap.String("addr", m.config.Addr),
	)

	go func() {
		if err := serveFn(listener); err != nil && err != http.ErrServerClosed {
			m.logger.Error("server failed", zap.String("scheme", scheme), zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown 优雅关闭，等待存量请求完成，超时由 ShutdownTimeout 限定。
// 重复调用是无害的空操作。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.logger.Info("shutting down server", zap.Duration("timeout", m.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.listener = nil

	m.logger.Info("server stopped")
	return nil
}

// WaitForShutdown 阻塞等待 SIGINT/SIGTERM 或 serve 异常退出，
// 然后执行优雅关闭。
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 返回异步 serve 错误通道。
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；尚未监听或已关闭时返回配置地址。
// 配置 ":0" 随机端口时，启动后由此取得真实端口。
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 报告服务器是否尚未关闭。
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
