package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"momentum-alerts/internal/broker"
)

func newTestPolicy(maxAttempts int) (Policy, *[]time.Duration) {
	p := NewPolicy(maxAttempts, time.Second, zerolog.Nop())
	delays := []time.Duration{}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return p, &delays
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p, delays := newTestPolicy(5)

	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("最终成功不应报错: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("应在第 3 次成功, 实际 %d", attempts)
	}
	// Exponential backoff: 1s then 2s.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*delays) != len(want) || (*delays)[0] != want[0] || (*delays)[1] != want[1] {
		t.Fatalf("退避序列不正确: %v", *delays)
	}
}

func TestDoNonRetryableSurfacesImmediately(t *testing.T) {
	p, delays := newTestPolicy(5)

	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return broker.NewError(broker.NonRetryable, errors.New("unauthorized"))
	})
	if err == nil {
		t.Fatal("NonRetryable 应报错")
	}
	if attempts != 1 || len(*delays) != 0 {
		t.Fatalf("NonRetryable 不应重试: attempts=%d delays=%d", attempts, len(*delays))
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p, _ := newTestPolicy(3)

	attempts := 0
	wantErr := errors.New("still down")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("耗尽重试后应返回最后一次错误: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("应尝试 3 次, 实际 %d", attempts)
	}
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	p := NewPolicy(5, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("退避期间取消应返回 context.Canceled: %v", err)
	}
}
