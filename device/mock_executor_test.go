package device

import (
	"context"
	"sync"
)

// fakeExec is a scriptable in-memory Executor for queue and controller tests.
type fakeExec struct {
	mu         sync.Mutex
	sent       []string
	closeCount int

	// script produces the Send result for each line. A nil script acknowledges
	// every line with "ok\n". Returning an empty reply with nil error mimics the
	// serial variant: the reply must then be fed through the data handler.
	script func(line string) (string, error)

	dataFn  func(string)
	closeFn func()
	errFn   func(error)
}

var _ Executor = (*fakeExec)(nil)

func (f *fakeExec) Send(ctx context.Context, line string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, line)
	script := f.script
	f.mu.Unlock()

	if script == nil {
		return "ok\n", nil
	}

	return script(line)
}

func (f *fakeExec) SetDataHandler(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataFn = fn
}

func (f *fakeExec) SetCloseHandler(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeFn = fn
}

func (f *fakeExec) SetErrorHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errFn = fn
}

func (f *fakeExec) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++

	return nil
}

// Feed delivers a line through the registered data handler, as the serial
// transport's read loop would.
func (f *fakeExec) Feed(line string) {
	f.mu.Lock()
	fn := f.dataFn
	f.mu.Unlock()

	if fn != nil {
		fn(line)
	}
}

// Sent returns a copy of all lines handed to Send so far.
func (f *fakeExec) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.sent))
	copy(out, f.sent)

	return out
}

func (f *fakeExec) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}
