package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/testutil/testlog"
)

func TestTranslate(t *testing.T) {
	testlog.Start(t)
	if translate("read header", deadline.Undefined, nil) != nil {
		t.Fatalf("nil should stay nil")
	}

	err := translate("read header", deadline.Millis(10), &transport.TimeoutError{Op: "read"})
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != deadline.Millis(10) {
		t.Fatalf("undefined transport timeout should keep the step timeout, got %v", err)
	}

	err = translate("read header", deadline.Undefined, &transport.TimeoutError{Op: "read", Timeout: deadline.Seconds(10)})
	if !errors.As(err, &te) || te.Timeout != deadline.Seconds(10) {
		t.Fatalf("resolved transport timeout should win, got %v", err)
	}

	wrapped := fmt.Errorf("wrapped: %w", &transport.TimeoutError{Op: "write"})
	if !errors.Is(translate("write payload", deadline.Millis(1), wrapped), ErrTimeout) {
		t.Fatalf("wrapped transport timeouts should be detected")
	}

	err = translate("write payload", deadline.Undefined, errors.New("reset"))
	var pe *Error
	if !errors.As(err, &pe) || errors.Is(err, ErrTimeout) {
		t.Fatalf("plain failures are protocol errors, got %v", err)
	}
}

func TestErrorKind(t *testing.T) {
	testlog.Start(t)
	cases := map[error]string{
		ErrClosed:                        "closed",
		&TimeoutError{Op: "read header"}: "timeout",
		&Error{Op: "read header"}:        "protocol",
		context.Canceled:                 "canceled",
		context.DeadlineExceeded:         "canceled",
		deadline.ErrNotStarted:           "protocol",
		&Error{Op: "x", Err: ErrClosed}:  "closed",
	}
	for err, want := range cases {
		if got := errorKind(err); got != want {
			t.Fatalf("errorKind(%v)=%q want %q", err, got, want)
		}
	}
	if !errors.Is(ErrTimeoutNotStarted, deadline.ErrNotStarted) || !errors.Is(ErrTimeoutNotStarted, ErrProtocol) {
		t.Fatalf("ErrTimeoutNotStarted should be the deadline sentinel and a protocol error")
	}
	if errors.Is(ErrTimeoutNotStarted, ErrTimeout) {
		t.Fatalf("ErrTimeoutNotStarted is not a timeout")
	}
	_, err := deadline.New(deadline.Seconds(1)).Remaining()
	if !errors.Is(err, ErrProtocol) || !errors.Is(err, ErrTimeoutNotStarted) || errorKind(err) != "protocol" {
		t.Fatalf("unstarted accessor error should match both sentinels: %v", err)
	}
}
