// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sliceutils

import "container/heap"

// TopN retains the n greatest elements pushed into it, according to the
// given less function. It never holds more than n elements.
type TopN[T any] struct {
	n int
	h minHeap[T]
}

// NewTopN returns a new TopN retaining at most n elements.
func NewTopN[T any](n int, less func(a, b T) bool) *TopN[T] {
	capacity := n
	if capacity < 0 {
		capacity = 0
	}
	return &TopN[T]{
		n: n,
		h: minHeap[T]{
			items: make([]T, 0, capacity),
			less:  less,
		},
	}
}

// Push offers x to the collection. If the collection is full, x replaces
// the smallest retained element only if it is greater than it.
func (t *TopN[T]) Push(x T) {
	if t.n <= 0 {
		return
	}
	if t.h.Len() < t.n {
		heap.Push(&t.h, x)
		return
	}
	if t.h.less(t.h.items[0], x) {
		t.h.items[0] = x
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of retained elements.
func (t *TopN[T]) Len() int {
	return t.h.Len()
}

// Sorted drains the collection and returns the retained elements,
// greatest first.
func (t *TopN[T]) Sorted() []T {
	out := make([]T, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(T)
	}
	return out
}

// minHeap implements heap.Interface keeping the smallest element on top.
type minHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h minHeap[T]) Len() int           { return len(h.items) }
func (h minHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h minHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *minHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *minHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
