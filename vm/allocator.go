package vm

import "fmt"

// ---------------------------------------------------------------------------
// Allocator: length validation, sizing and header stamping
// ---------------------------------------------------------------------------

// Allocator creates array instances. It is the only holder of the heap's
// raw allocation capability, and is safe for concurrent use.
type Allocator struct {
	raw     rawAllocator
	heap    *Heap
	loader  *Loader
	metrics *Metrics
}

// NewAllocator returns an allocator placing instances of l's descriptors
// in h.
func NewAllocator(h *Heap, l *Loader) *Allocator {
	return &Allocator{
		raw:     h.capability(),
		heap:    h,
		loader:  l,
		metrics: h.metrics,
	}
}

// Heap returns the heap instances are placed in.
func (a *Allocator) Heap() *Heap { return a.heap }

// Loader returns the loader descriptors are resolved from.
func (a *Allocator) Loader() *Loader { return a.loader }

// Allocate creates a scalar array of length elements. With zeroFill the
// content is zeroed; otherwise it is unspecified and the caller must
// overwrite every element before reading. The result holds one handle that
// the caller owns.
//
// May block at the heap safepoint and may trigger collections; fails with
// ErrOutOfMemory once the configured collections have not freed enough.
func (a *Allocator) Allocate(d *ScalarArrayType, length int, zeroFill bool) (*ScalarArray, error) {
	words, err := checkLength("allocate", d, length)
	if err != nil {
		return nil, err
	}
	if err := a.raw.reserve(words); err != nil {
		return nil, arrayError("allocate", d, err, "%d words", words)
	}
	arr := a.raw.newScalar(d, length, words, zeroFill)
	a.metrics.allocations.WithLabelValues(d.ExternalName()).Inc()
	return arr, nil
}

// AllocateKind resolves the descriptor for k and allocates from it.
func (a *Allocator) AllocateKind(k ScalarKind, length int, zeroFill bool) (*ScalarArray, error) {
	d, err := a.loader.ScalarArrayType(k)
	if err != nil {
		return nil, fmt.Errorf("allocate %s[]: %w", k, err)
	}
	return a.Allocate(d, length, zeroFill)
}

// NewReferenceArray creates a reference array with every slot nil. The
// Allocator is the default ReferenceArrayFactory.
func (a *Allocator) NewReferenceArray(d *ObjectArrayType, length int) (*RefArray, error) {
	words, err := checkLength("allocate", d, length)
	if err != nil {
		return nil, err
	}
	if err := a.raw.reserve(words); err != nil {
		return nil, arrayError("allocate", d, err, "%d words", words)
	}
	r := a.raw.newRef(d, length, words)
	a.metrics.allocations.WithLabelValues(d.ExternalName()).Inc()
	return r, nil
}

// checkLength validates length against d and returns the instance size.
func checkLength(op string, d ArrayType, length int) (int, error) {
	if length < 0 {
		return 0, arrayError(op, d, ErrIllegalLength, "length %d", length)
	}
	if length > d.MaxLength() {
		return 0, arrayError(op, d, ErrLengthExceedsMaximum, "length %d, maximum %d", length, d.MaxLength())
	}
	return d.SizeInWords(length), nil
}
