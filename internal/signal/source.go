// Package signal 提供 SignalBundle 的来源：本地技术指标打分或外部 HTTP 评分服务。
package signal

import (
	"context"
	"errors"

	"spotpilot/internal/types"
)

// ErrNotEnoughData 表示 K 线数量不足以计算指标。
var ErrNotEnoughData = errors.New("signal: not enough candles")

// ErrStaleData 表示最新已收盘 K 线过旧。
var ErrStaleData = errors.New("signal: stale candles")

// Source 为单个币种生成信号快照。
type Source interface {
	Produce(ctx context.Context, symbol string) (types.SignalBundle, error)
}

// SourceFunc 将函数适配为 Source。
type SourceFunc func(ctx context.Context, symbol string) (types.SignalBundle, error)

func (f SourceFunc) Produce(ctx context.Context, symbol string) (types.SignalBundle, error) {
	return f(ctx, symbol)
}

// Validated 包装 Source，对输出执行区间校验。
func Validated(src Source) Source {
	return SourceFunc(func(ctx context.Context, symbol string) (types.SignalBundle, error) {
		sig, err := src.Produce(ctx, symbol)
		if err != nil {
			return types.SignalBundle{}, err
		}
		if err := sig.Validate(); err != nil {
			return types.SignalBundle{}, err
		}
		return sig, nil
	})
}
