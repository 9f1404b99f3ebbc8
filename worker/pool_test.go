package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mini-rpc-server/rpccontext"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, 16, nil)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := p.Submit(RunnableFunc(func(slot *rpccontext.Slot) {
			defer wg.Done()
			ran.Add(1)
		}))
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if ran.Load() != 50 {
		t.Fatalf("expect 50 tasks to run, got %d", ran.Load())
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPoolResetsSlotAfterPanic(t *testing.T) {
	p := NewPool(1, 1, nil)
	defer p.Close(context.Background())

	p.Submit(RunnableFunc(func(slot *rpccontext.Slot) {
		slot.Current().SetResponseKV("leak", "yes")
		panic("boom")
	}))

	bound := make(chan bool, 1)
	p.Submit(RunnableFunc(func(slot *rpccontext.Slot) {
		bound <- slot.IsBound()
	}))

	select {
	case b := <-bound:
		if b {
			t.Fatal("next task must start with an unbound slot")
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(1, 1, nil)
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(RunnableFunc(func(*rpccontext.Slot) {})); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expect ErrPoolClosed, got %v", err)
	}
	// Closing twice is harmless.
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPoolCloseTimeout(t *testing.T) {
	p := NewPool(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(RunnableFunc(func(*rpccontext.Slot) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
	close(release)
}

func TestPoolCloseWithBlockedSubmit(t *testing.T) {
	p := NewPool(1, 0, nil)
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go p.Submit(RunnableFunc(func(*rpccontext.Slot) {
		close(started)
		<-release
	}))
	<-started

	// The only worker is busy and there is no queue, so this Submit blocks.
	submitted := make(chan error, 1)
	go func() {
		submitted <- p.Submit(RunnableFunc(func(*rpccontext.Slot) {}))
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	closed := make(chan error, 1)
	go func() { closed <- p.Close(ctx) }()

	select {
	case err := <-closed:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expect deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close ignored its deadline")
	}
	select {
	case err := <-submitted:
		if !errors.Is(err, ErrPoolClosed) {
			t.Fatalf("expect ErrPoolClosed for the blocked Submit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Submit was not released by Close")
	}
}
