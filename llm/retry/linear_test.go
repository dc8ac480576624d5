package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSleeper 记录延迟而不真实休眠
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func TestLinearRetryer_Success(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{}
	policy := &Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleeper:     sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
	assert.Empty(t, sleeper.delays, "成功路径不应休眠")
}

func TestLinearRetryer_RetryAndSuccess(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{}
	policy := &Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleeper:     sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	callCount := 0
	testErr := errors.New("temporary error")

	err := retryer.Do(ctx, func() error {
		callCount++
		if callCount < 3 {
			return testErr // 前两次失败
		}
		return nil // 第三次成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
	// 线性退避：第 n 次重试等待 n × BaseDelay
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
}

func TestLinearRetryer_AttemptsExhausted(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{}
	policy := &Policy{
		MaxAttempts: 2,
		BaseDelay:   10 * time.Millisecond,
		Sleeper:     sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	callCount := 0
	testErr := errors.New("persistent error")

	err := retryer.Do(ctx, func() error {
		callCount++
		return testErr
	})

	// 耗尽后返回最后一次的错误，不加包装
	require.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 2, callCount)
	assert.Len(t, sleeper.delays, 1)
}

func TestLinearRetryer_NonRetryableError(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{}
	retryable := errors.New("retryable")
	fatal := errors.New("fatal")

	policy := &Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		RetryIf: func(err error) bool {
			return errors.Is(err, retryable)
		},
		Sleeper: sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return fatal
	})

	// 不可重试错误立即返回
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, callCount)
	assert.Empty(t, sleeper.delays)
}

func TestLinearRetryer_SleeperError(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{err: context.Canceled}
	policy := &Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleeper:     sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return errors.New("boom")
	})

	// 休眠中断立即终止重试，返回休眠错误
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestLinearRetryer_OnRetryCallback(t *testing.T) {
	logger := zap.NewNop()
	sleeper := &recordingSleeper{}

	var attempts []int
	var delays []time.Duration
	policy := &Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
			delays = append(delays, delay)
		},
		Sleeper: sleeper,
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx := context.Background()

	_ = retryer.Do(ctx, func() error {
		return errors.New("always fails")
	})

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestLinearRetryer_NilPolicyDefaults(t *testing.T) {
	retryer := NewLinearRetryer(nil, nil)

	err := retryer.Do(context.Background(), func() error {
		return nil
	})

	assert.NoError(t, err)
}

func TestLinearRetryer_ContextCancelledDuringRealSleep(t *testing.T) {
	logger := zap.NewNop()
	policy := &Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second, // 真实休眠，由 context 提前打断
	}

	retryer := NewLinearRetryer(policy, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retryer.Do(ctx, func() error {
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 1*time.Second)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewLinearRetryer(&Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Sleeper:     &recordingSleeper{},
	}, zap.NewNop())

	ctx := context.Background()

	val, err := DoWithResultTyped[int](retryer, ctx, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	// 失败时返回零值
	str, err := DoWithResultTyped[string](retryer, ctx, func() (string, error) {
		return "partial", errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, "", str)
}
