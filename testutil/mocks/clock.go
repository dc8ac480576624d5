package mocks

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper 实现 retry.Sleeper：只记录延迟，不真实休眠。
// 退避逻辑因此可以在测试里零耗时验证。
type FakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

// NewFakeSleeper 创建假休眠器
func NewFakeSleeper() *FakeSleeper {
	return &FakeSleeper{}
}

// WithError 让后续 Sleep 返回指定错误，模拟 context 取消
func (s *FakeSleeper) WithError(err error) *FakeSleeper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Sleep 实现 retry.Sleeper.Sleep
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

// Delays 返回记录到的全部延迟
func (s *FakeSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.delays...)
}

// Reset 清空记录
func (s *FakeSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = nil
	s.err = nil
}
