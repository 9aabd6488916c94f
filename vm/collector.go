package vm

import "time"

// ---------------------------------------------------------------------------
// Collector: stop-the-world mark, sweep and optional relocation
// ---------------------------------------------------------------------------

// CollectStats describes one collection cycle.
type CollectStats struct {
	Cycle      uint64
	Marked     int
	Swept      int
	SweptWords int64
	Relocated  int
	UsedWords  int64
	Duration   time.Duration
	Timestamp  time.Time
}

// markTask is one unit of marking work: a whole instance, or a slot range
// of a large reference array.
type markTask struct {
	obj    Object
	region bool
	start  int
	end    int
}

// Collect runs a full collection. Roots are the instances with at least
// one handle. Mutators are held at the safepoint for the whole cycle.
func (h *Heap) Collect() *CollectStats {
	h.safepoint.Lock()
	defer h.safepoint.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	stats := &CollectStats{Timestamp: start}

	marked := h.markLocked()
	stats.Marked = len(marked)

	for o, words := range h.objects {
		if marked[o] {
			continue
		}
		delete(h.objects, o)
		stats.Swept++
		stats.SweptWords += int64(words)
		if a, ok := o.(*ScalarArray); ok {
			h.recycleLocked(a.data)
			a.data = nil
		}
	}
	used := h.used.Add(-stats.SweptWords)

	if h.relocate {
		for o := range h.objects {
			if a, ok := o.(*ScalarArray); ok && len(a.data) > 0 {
				moved := make([]byte, len(a.data))
				copy(moved, a.data)
				h.recycleLocked(a.data)
				a.data = moved
				stats.Relocated++
			}
		}
	}

	stats.Cycle = h.cycles.Add(1)
	stats.UsedWords = used
	stats.Duration = time.Since(start)

	h.metrics.gcCycles.Inc()
	h.metrics.sweptWords.Add(float64(stats.SweptWords))
	h.metrics.relocations.Add(float64(stats.Relocated))
	h.metrics.usedWords.Set(float64(used))

	heapLog.Infof("heap %d: gc #%d marked %d, swept %d (%d words), relocated %d, %d/%d words used in %s",
		h.id, stats.Cycle, stats.Marked, stats.Swept, stats.SweptWords, stats.Relocated,
		used, h.capacity, stats.Duration)
	return stats
}

// markLocked traces from the handle set. Large reference arrays are split
// into regions; children are traced in reverse so the LIFO work stack
// visits them in slot order.
func (h *Heap) markLocked() map[Object]bool {
	marked := make(map[Object]bool, len(h.objects))
	var stack []markTask

	push := func(o Object) {
		if o != nil && !marked[o] {
			stack = append(stack, markTask{obj: o})
		}
	}
	for o := range h.handles {
		push(o)
	}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if task.region {
			h.tracer.TraceReferences(task.obj, push, WithRegion(task.start, task.end), Reversed())
			continue
		}
		if marked[task.obj] {
			continue
		}
		marked[task.obj] = true

		n := task.obj.Len()
		if task.obj.Descriptor().Kind() == ObjectArrayKind && n > h.markChunk {
			last := (n - 1) / h.markChunk * h.markChunk
			for s := last; s >= 0; s -= h.markChunk {
				stack = append(stack, markTask{obj: task.obj, region: true, start: s, end: min(s+h.markChunk, n)})
			}
			continue
		}
		h.tracer.TraceReferences(task.obj, push, Reversed())
	}
	return marked
}
