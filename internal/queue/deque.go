// Package queue provides the double-ended queue backing the per-device command queue.
package queue

// Deque is a slice-backed double-ended queue.
//
// It is not goroutine-safe; the owner must serialize access.
type Deque[T any] struct {
	items []T
}

// NewDeque creates a Deque with the given preallocated capacity.
func NewDeque[T any](prealloc int) *Deque[T] {
	return &Deque[T]{items: make([]T, 0, prealloc)}
}

// PushBack appends an item to the tail of the deque.
func (d *Deque[T]) PushBack(item T) {
	d.items = append(d.items, item)
}

// PushFront inserts an item at the head of the deque, ahead of all queued items.
func (d *Deque[T]) PushFront(item T) {
	d.items = append(d.items, item)
	copy(d.items[1:], d.items)
	d.items[0] = item
}

// PopFront removes and returns the item at the head of the deque.
// The second return value is false if the deque is empty.
func (d *Deque[T]) PopFront() (T, bool) {
	var zero T
	if len(d.items) == 0 {
		return zero, false
	}
	item := d.items[0]
	d.items[0] = zero // release the reference
	d.items = d.items[1:]

	return item, true
}

// Front returns the item at the head of the deque without removing it.
// The second return value is false if the deque is empty.
func (d *Deque[T]) Front() (T, bool) {
	var zero T
	if len(d.items) == 0 {
		return zero, false
	}

	return d.items[0], true
}

// Reset resets the deque to an empty state, reusing the underlying array.
func (d *Deque[T]) Reset() {
	var zero T
	for i := range d.items {
		d.items[i] = zero
	}
	d.items = d.items[:0]
}

// IsEmpty returns true if the deque holds no items.
func (d *Deque[T]) IsEmpty() bool {
	return len(d.items) == 0
}

// Len returns the number of items in the deque.
func (d *Deque[T]) Len() int {
	return len(d.items)
}
