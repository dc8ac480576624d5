package retry

import (
	"context"
	"errors"
)

// ErrResultType 表示执行函数返回值与声明的类型参数不符。
// 仅在自定义 Retryer 实现返回了其他类型时出现。
var ErrResultType = errors.New("retry: result does not match type parameter")

// DoWithResultTyped 是 Retryer.DoWithResult 的泛型封装，
// 调用方拿到具体类型的结果，省去 any 断言。
//
//	resp, err := retry.DoWithResultTyped[*llm.ChatResponse](r, ctx, call)
//
// 失败时返回 T 的零值与最后一次错误。
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrResultType
	}
	return typed, nil
}
