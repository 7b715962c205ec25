package transport

import "sync"

// handlerSet holds the executor callback handlers. One handler per kind; the
// last registration wins. Embedded by every executor variant.
type handlerSet struct {
	mu      sync.Mutex
	dataFn  func(string)
	closeFn func()
	errFn   func(error)
}

func (h *handlerSet) SetDataHandler(fn func(line string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dataFn = fn
}

func (h *handlerSet) SetCloseHandler(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeFn = fn
}

func (h *handlerSet) SetErrorHandler(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errFn = fn
}

func (h *handlerSet) notifyData(line string) {
	h.mu.Lock()
	fn := h.dataFn
	h.mu.Unlock()

	if fn != nil {
		fn(line)
	}
}

func (h *handlerSet) notifyClose() {
	h.mu.Lock()
	fn := h.closeFn
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (h *handlerSet) notifyError(err error) {
	h.mu.Lock()
	fn := h.errFn
	h.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
