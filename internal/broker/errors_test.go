package broker

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfTagged(t *testing.T) {
	for _, kind := range []Kind{Transient, NonRetryable, DataInvalid} {
		err := NewError(kind, errors.New("x"))
		if got := KindOf(err); got != kind {
			t.Fatalf("KindOf = %s, want %s", got, kind)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := NewError(NonRetryable, errors.New("denied"))
	wrapped := fmt.Errorf("refresh universe: %w", inner)
	if KindOf(wrapped) != NonRetryable {
		t.Fatal("包装后的错误应保留 kind 标签")
	}
	if IsRetryable(wrapped) {
		t.Fatal("NonRetryable 不应可重试")
	}
}

func TestKindOfUntaggedDefaultsTransient(t *testing.T) {
	if KindOf(errors.New("plain network error")) != Transient {
		t.Fatal("未标注的错误应默认 Transient")
	}
}
