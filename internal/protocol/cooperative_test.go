package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/transport"
	"github.com/danmuck/adbtp/internal/protocol/wire"
	"github.com/danmuck/adbtp/internal/testutil/testlog"
)

func openCooperativePipe(t *testing.T) (*Cooperative, *Cooperative) {
	t.Helper()
	a, b := transport.Pipe()
	pa, err := OpenCooperative(a)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	pb, err := OpenCooperative(b)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	t.Cleanup(func() {
		_ = pa.Close()
		_ = pb.Close()
	})
	return pa, pb
}

func TestCooperativeRoundTripOverPipe(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	pa, pb := openCooperativePipe(t)
	for _, data := range [][]byte{nil, []byte("sync:")} {
		in := wire.NewMessage(wire.CommandWRTE, 11, 12, data)
		errCh := make(chan error, 1)
		go func() { errCh <- pa.Write(ctx, in, deadline.Seconds(2)) }()
		out, err := pb.Read(ctx, deadline.Seconds(2))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("write: %v", err)
		}
		if !sameMessage(in, out) {
			t.Fatalf("round-trip mismatch: %+v", out)
		}
	}
}

func TestCooperativeLockWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	pa, pb := openCooperativePipe(t)

	holderCtx, cancelHolder := context.WithCancel(context.Background())
	defer cancelHolder()
	holderErr := make(chan error, 1)
	go func() {
		_, err := pa.Read(holderCtx, deadline.Infinite())
		holderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelWait()
	_, err := pa.Read(waitCtx, deadline.Infinite())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the lock wait to end with the context, got %v", err)
	}
	if errors.Is(err, ErrProtocol) {
		t.Fatalf("a lock wait never reached the transport: %v", err)
	}

	cancelHolder()
	select {
	case err := <-holderErr:
		if !errors.Is(err, ErrProtocol) || !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled transport step should be a protocol error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("holder did not observe cancellation")
	}
	if pa.Closed() {
		t.Fatalf("cancellation must not close the protocol")
	}

	in := wire.NewMessage(wire.CommandOKAY, 1, 2, nil)
	go func() { _ = pb.Write(context.Background(), in, deadline.Seconds(2)) }()
	out, err := pa.Read(context.Background(), deadline.Seconds(2))
	if err != nil {
		t.Fatalf("read after cancellation: %v", err)
	}
	if !sameMessage(in, out) {
		t.Fatalf("unexpected message %+v", out)
	}
}

func TestCooperativeCancelledContextBeforeLock(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{}
	p, err := OpenCooperative(ft)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Write(ctx, wire.NewMessage(wire.CommandOKAY, 0, 0, nil), deadline.Seconds(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls := ft.snapshot(); len(calls) != 0 {
		t.Fatalf("transport touched: %+v", calls)
	}
}

func TestCooperativeCloseDoesNotWaitForLocks(t *testing.T) {
	testlog.Start(t)
	pa, _ := openCooperativePipe(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := pa.Read(context.Background(), deadline.Infinite())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- pa.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close waited on the read lock")
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("in-flight read: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not end after close")
	}
	if _, err := pa.Read(context.Background(), deadline.Seconds(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after close: %v", err)
	}
	if err := pa.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second close: %v", err)
	}
}

func TestCooperativeConcurrentWritesDoNotInterleave(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	for trial := 0; trial < 100; trial++ {
		ft, stream := recordingTransport()
		p, err := OpenCooperative(ft)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		msgs := randomMessages(3)
		var wg sync.WaitGroup
		for _, msg := range msgs {
			wg.Add(1)
			go func(msg wire.Message) {
				defer wg.Done()
				if err := p.Write(ctx, msg, deadline.Seconds(1)); err != nil {
					t.Errorf("write: %v", err)
				}
			}(msg)
		}
		wg.Wait()
		checkStream(t, stream, msgs)
	}
}

func TestCooperativeTimeoutTaxonomy(t *testing.T) {
	testlog.Start(t)
	pa, _ := openCooperativePipe(t)
	_, err := pa.Read(context.Background(), deadline.Millis(30))
	var te *TimeoutError
	if !errors.As(err, &te) || te.Op != "read header" || te.Timeout != deadline.Millis(30) {
		t.Fatalf("expected header timeout, got %v", err)
	}
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("timeout should also match ErrProtocol")
	}
}

func TestCooperativeExchange(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	pa, pb := openCooperativePipe(t)
	go func() {
		req, err := pb.Read(ctx, deadline.Seconds(2))
		if err != nil {
			return
		}
		_ = pb.Write(ctx, wire.NewMessage(wire.CommandOKAY, req.Header.Arg1, req.Header.Arg0, req.Data), deadline.Seconds(2))
	}()
	out, err := pa.Exchange(ctx, wire.NewMessage(wire.CommandWRTE, 1, 2, []byte("ping")), deadline.Seconds(2))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if out.Header.Command != wire.CommandOKAY || string(out.Data) != "ping" || out.Header.Arg0 != 2 {
		t.Fatalf("reply=%+v", out)
	}
}
