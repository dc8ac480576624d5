package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sleeper 抽象退避休眠，测试注入假时钟后退避逻辑可零耗时验证。
// Sleep 返回非 nil 错误时重试立即中止（通常为 context 取消）。
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper 真实休眠，同时监听 context 取消
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy 定义线性退避重试策略
type Policy struct {
	// MaxAttempts 总尝试次数（含首次），小于 1 时按 1 处理
	MaxAttempts int
	// BaseDelay 线性退避基础延迟：第 n 次重试（n 从 1 起）等待 n × BaseDelay
	BaseDelay time.Duration
	// RetryIf 判定错误是否可重试，nil 表示全部可重试
	RetryIf func(err error) bool
	// OnRetry 每次重试前回调
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleeper 注入的延迟实现，nil 使用真实休眠
	Sleeper Sleeper
}

// DefaultPolicy 返回默认重试策略
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// linearRetryer 基于线性退避的重试器实现
type linearRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// NewLinearRetryer 创建线性退避重试器
func NewLinearRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 1 * time.Second
	}
	if policy.Sleeper == nil {
		policy.Sleeper = realSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &linearRetryer{
		policy: policy,
		logger: logger,
	}
}

// Do 实现 Retryer.Do
func (r *linearRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
// 失败时按线性退避重试；不可重试错误与休眠中断原样向上传播，
// 重试耗尽时返回最后一次的错误，错误链不加包装。
func (r *linearRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if r.policy.RetryIf != nil && !r.policy.RetryIf(err) {
			return nil, err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * r.policy.BaseDelay
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if sleepErr := r.policy.Sleeper.Sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, lastErr
}
