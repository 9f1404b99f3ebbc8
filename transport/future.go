package transport

import "sync"

// WriteFuture is the pending result of an asynchronous write.
// It completes exactly once; listeners added after completion run immediately.
type WriteFuture struct {
	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	n         int
	err       error
	listeners []func(*WriteFuture)
}

// NewWriteFuture returns an incomplete future.
func NewWriteFuture() *WriteFuture {
	return &WriteFuture{done: make(chan struct{})}
}

// FailedFuture returns a future already completed with err.
func FailedFuture(err error) *WriteFuture {
	f := NewWriteFuture()
	f.Complete(0, err)
	return f
}

// Complete records the outcome and fires listeners. Later calls are ignored.
func (f *WriteFuture) Complete(n int, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.n, f.err = n, err
		listeners := f.listeners
		f.listeners = nil
		close(f.done)
		f.mu.Unlock()
		for _, fn := range listeners {
			fn(f)
		}
	})
}

// Done is closed once the write finished or failed.
func (f *WriteFuture) Done() <-chan struct{} {
	return f.done
}

// IsDone reports completion without blocking.
func (f *WriteFuture) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until completion.
func (f *WriteFuture) Wait() (int, error) {
	<-f.done
	return f.n, f.err
}

// N is the number of bytes written; zero until the future is done.
func (f *WriteFuture) N() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// Err is the write error; nil until the future is done.
func (f *WriteFuture) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// AddListener registers fn to run on completion, on the completing goroutine.
func (f *WriteFuture) AddListener(fn func(*WriteFuture)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f)
		return
	default:
	}
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}
