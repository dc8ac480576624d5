package server

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/testutil"
)

// newTestManager 在随机端口上构造管理器，handler 为 nil 时回 200 ok。
func newTestManager(t *testing.T, handler http.Handler, mutate func(*Config)) *Manager {
	t.Helper()

	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
	}
	cfg := DefaultConfig()
	cfg.Addr = ":0"
	if mutate != nil {
		mutate(&cfg)
	}
	return NewManager(handler, cfg, zap.NewNop())
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 1024, cfg.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestNewManager(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), zap.NewNop())

	require.NotNil(t, m)
	assert.True(t, m.IsRunning(), "尚未关闭")
	assert.Equal(t, ":8080", m.Addr())
	assert.NotNil(t, m.server.TLSConfig, "TLS 配置应预置加固默认值")
}

func TestManager_Lifecycle(t *testing.T) {
	t.Run("start serves requests", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		require.NoError(t, m.Start())
		t.Cleanup(func() { m.Shutdown(context.Background()) })

		// ":0" 启动后 Addr 返回真实端口
		resp, err := http.Get("http://" + m.Addr() + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("double start fails", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		require.NoError(t, m.Start())
		t.Cleanup(func() { m.Shutdown(context.Background()) })

		err := m.Start()
		assert.ErrorContains(t, err, "already started")
	})

	t.Run("shutdown is idempotent", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		require.NoError(t, m.Start())

		require.NoError(t, m.Shutdown(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))
		assert.False(t, m.IsRunning())
	})

	t.Run("start after shutdown fails", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		require.NoError(t, m.Start())
		require.NoError(t, m.Shutdown(context.Background()))

		err := m.Start()
		assert.ErrorContains(t, err, "closed")
	})
}

func TestManager_IsRunning(t *testing.T) {
	m := newTestManager(t, nil, nil)

	assert.True(t, m.IsRunning())
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_Errors(t *testing.T) {
	t.Run("empty before any failure", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		select {
		case <-m.Errors():
			t.Fatal("不应收到错误")
		default:
		}
	})

	t.Run("tls serve failure is reported", func(t *testing.T) {
		m := newTestManager(t, nil, nil)
		require.NoError(t, m.StartTLS("no-such-cert.pem", "no-such-key.pem"))
		t.Cleanup(func() { m.Shutdown(context.Background()) })

		select {
		case err := <-m.Errors():
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("证书缺失的 ServeTLS 应上报错误")
		}
	})
}

func TestManager_WaitForShutdown_ServeFailure(t *testing.T) {
	m := newTestManager(t, nil, nil)
	require.NoError(t, m.StartTLS("no-such-cert.pem", "no-such-key.pem"))

	var done atomic.Bool
	go func() {
		m.WaitForShutdown()
		done.Store(true)
	}()

	// serve 失败进入错误通道，等待方解除阻塞并完成关闭
	testutil.AssertEventuallyTrue(t, done.Load, 2*time.Second)
	assert.False(t, m.IsRunning())
}

func TestManager_ConnLimit(t *testing.T) {
	m := newTestManager(t, nil, func(cfg *Config) {
		cfg.MaxConns = 2
	})
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	// 低于上限时受限 listener 照常服务
	addr := m.Addr()
	for i := 0; i < 5; i++ {
		resp, err := http.Get("http://" + addr + "/")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
