package cron

import "container/heap"

// jobHeap orders jobs by At, earliest first.
type jobHeap []Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *jobHeap, j Job) {
	heap.Push(h, j)
}

// heapPop removes the earliest job. It panics on an empty heap.
func heapPop(h *jobHeap) Job {
	return heap.Pop(h).(Job)
}

// heapRemove drops every job called name and reports whether any existed.
func heapRemove(h *jobHeap, name string) bool {
	found := false
	for i := 0; i < h.Len(); {
		if (*h)[i].Name == name {
			heap.Remove(h, i)
			found = true
			continue
		}
		i++
	}
	return found
}
