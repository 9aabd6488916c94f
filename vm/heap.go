package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff"
	"github.com/google/btree"
)

// ---------------------------------------------------------------------------
// Heap: word-accounted storage for array instances
// ---------------------------------------------------------------------------

// HeapOptions configures a Heap.
type HeapOptions struct {
	// CapacityWords is the total number of words that may be reserved.
	// Zero selects DefaultCapacityWords.
	CapacityWords int64

	// GCAttempts is how many collections an allocation may trigger before
	// it fails with ErrOutOfMemory. Values below 1 are raised to 1.
	GCAttempts int

	// Relocate makes every collection move surviving scalar content to
	// fresh buffers.
	Relocate bool

	// MarkChunk is the number of slots a reference array is split into
	// when marking. Zero selects DefaultMarkChunk.
	MarkChunk int
}

const (
	DefaultCapacityWords int64 = 64 << 20
	DefaultMarkChunk           = 512

	// maxRecycledBytes bounds the free-buffer index.
	maxRecycledBytes = 16 << 20
	freeIndexDegree  = 8
)

var heapIDs atomic.Uint32

// Heap owns every instance allocated through it. Mutators run on the read
// side of the safepoint lock; the collector stops the world by taking the
// write side, so a mutator that calls in during a collection blocks until
// the cycle finishes.
type Heap struct {
	id         uint32
	capacity   int64
	used       atomic.Int64
	gcAttempts int
	relocate   bool
	markChunk  int

	safepoint sync.RWMutex

	mu        sync.Mutex // guards objects, handles and the free index
	objects   map[Object]int
	handles   map[Object]int
	free      *btree.BTreeG[freeBuffer]
	freeSeq   uint64
	freeBytes int

	tracer  Tracer
	metrics *Metrics
	cycles  atomic.Uint64

	watch atomic.Pointer[pressureWatch]
}

// pressureWatch signals ch (without blocking) whenever a reservation
// leaves at least mark words in use.
type pressureWatch struct {
	ch   chan struct{}
	mark int64
}

// freeBuffer is a swept content buffer kept for reuse. Reused buffers are
// not cleared unless the allocation asks for zero fill.
type freeBuffer struct {
	size int
	seq  uint64
	buf  []byte
}

func freeBufferLess(a, b freeBuffer) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.seq < b.seq
}

// NewHeap creates an empty heap.
func NewHeap(opts HeapOptions) *Heap {
	if opts.CapacityWords <= 0 {
		opts.CapacityWords = DefaultCapacityWords
	}
	if opts.GCAttempts < 1 {
		opts.GCAttempts = 1
	}
	if opts.MarkChunk <= 0 {
		opts.MarkChunk = DefaultMarkChunk
	}
	return &Heap{
		id:         heapIDs.Add(1),
		capacity:   opts.CapacityWords,
		gcAttempts: opts.GCAttempts,
		relocate:   opts.Relocate,
		markChunk:  opts.MarkChunk,
		objects:    make(map[Object]int),
		handles:    make(map[Object]int),
		free:       btree.NewG[freeBuffer](freeIndexDegree, freeBufferLess),
		metrics:    newMetrics(),
	}
}

// Capacity returns the heap size in words.
func (h *Heap) Capacity() int64 { return h.capacity }

// Used returns the number of reserved words.
func (h *Heap) Used() int64 { return h.used.Load() }

// Cycles returns the number of completed collections.
func (h *Heap) Cycles() uint64 { return h.cycles.Load() }

// Metrics returns the heap's metric collectors.
func (h *Heap) Metrics() *Metrics { return h.metrics }

// LiveObjects returns the number of instances not yet swept.
func (h *Heap) LiveObjects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Contains reports whether o is a live instance of this heap.
func (h *Heap) Contains(o Object) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[o]
	return ok
}

// enter and leave bracket every mutator access to instance content.
func (h *Heap) enter() { h.safepoint.RLock() }
func (h *Heap) leave() { h.safepoint.RUnlock() }

// ---------------------------------------------------------------------------
// Handles
// ---------------------------------------------------------------------------

// Retain adds a handle to o, keeping it (and everything it references)
// alive across collections.
func (h *Heap) Retain(o Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.objects[o]; !ok {
		panic(fmt.Sprintf("vm: retain of %v not owned by heap %d", o, h.id))
	}
	h.handles[o]++
}

// Release drops one handle to o. Releasing an object without handles is a
// no-op.
func (h *Heap) Release(o Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch n := h.handles[o]; {
	case n > 1:
		h.handles[o] = n - 1
	case n == 1:
		delete(h.handles, o)
	}
}

// Handles returns the number of handles held on o.
func (h *Heap) Handles(o Object) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handles[o]
}

// ---------------------------------------------------------------------------
// Raw allocation capability
// ---------------------------------------------------------------------------

// rawAllocator is the low-level allocation capability. The heap hands one
// out only to the Allocator; nothing else reserves words or stamps headers.
type rawAllocator interface {
	reserve(words int) error
	newScalar(d *ScalarArrayType, length, words int, zero bool) *ScalarArray
	newRef(d *ObjectArrayType, length, words int) *RefArray
}

func (h *Heap) capability() rawAllocator { return h }

// reserve claims words, collecting up to gcAttempts times under pressure.
func (h *Heap) reserve(words int) error {
	if h.tryReserve(words) {
		return nil
	}

	op := func() error {
		h.Collect()
		if h.tryReserve(words) {
			return nil
		}
		return ErrOutOfMemory
	}
	if err := backoff.Retry(op, h.retryPolicy()); err != nil {
		h.metrics.outOfMemory.Inc()
		heapLog.Warningf("heap %d: cannot reserve %d words after %d collections (%d/%d used)",
			h.id, words, h.gcAttempts, h.used.Load(), h.capacity)
		return ErrOutOfMemory
	}
	return nil
}

// retryPolicy allows gcAttempts-1 retries after the first collection.
// WithMaxRetries treats zero as unlimited, so a single attempt stops
// outright.
func (h *Heap) retryPolicy() backoff.BackOff {
	if n := h.gcAttempts - 1; n > 0 {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(n))
	}
	return &backoff.StopBackOff{}
}

func (h *Heap) tryReserve(words int) bool {
	w := int64(words)
	for {
		used := h.used.Load()
		if used+w > h.capacity {
			return false
		}
		if h.used.CompareAndSwap(used, used+w) {
			h.metrics.usedWords.Set(float64(used + w))
			h.signalPressure(used + w)
			return true
		}
	}
}

func (h *Heap) signalPressure(used int64) {
	pw := h.watch.Load()
	if pw == nil || used < pw.mark {
		return
	}
	select {
	case pw.ch <- struct{}{}:
	default:
	}
}

func (h *Heap) newScalar(d *ScalarArrayType, length, words int, zero bool) *ScalarArray {
	a := &ScalarArray{
		hdr:  Header{Descriptor: d, Length: length},
		desc: d,
		heap: h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	a.data = h.takeBufferLocked(length*d.elementSize, zero)
	h.publishLocked(a, words)
	return a
}

func (h *Heap) newRef(d *ObjectArrayType, length, words int) *RefArray {
	r := &RefArray{
		hdr:   Header{Descriptor: d, Length: length},
		desc:  d,
		heap:  h,
		slots: make([]Object, length),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(r, words)
	return r
}

// publishLocked registers o with one handle owned by the caller.
func (h *Heap) publishLocked(o Object, words int) {
	h.objects[o] = words
	h.handles[o]++
	h.metrics.allocatedWords.Add(float64(words))
}

// takeBufferLocked returns an n-byte buffer, reusing a swept one when a
// close fit exists.
func (h *Heap) takeBufferLocked(n int, zero bool) []byte {
	if n == 0 {
		return []byte{}
	}
	var found freeBuffer
	ok := false
	h.free.AscendGreaterOrEqual(freeBuffer{size: n}, func(fb freeBuffer) bool {
		found, ok = fb, true
		return false
	})
	if !ok || found.size > 2*n {
		return make([]byte, n)
	}
	h.free.Delete(found)
	h.freeBytes -= found.size
	buf := found.buf[:n]
	if zero {
		clear(buf)
	}
	return buf
}

func (h *Heap) recycleLocked(buf []byte) {
	size := cap(buf)
	if size == 0 || h.freeBytes+size > maxRecycledBytes {
		return
	}
	h.freeSeq++
	h.free.ReplaceOrInsert(freeBuffer{size: size, seq: h.freeSeq, buf: buf[:size]})
	h.freeBytes += size
}
