package vm

// ---------------------------------------------------------------------------
// MultiAllocator: rank-N arrays as nested (jagged) arrays
// ---------------------------------------------------------------------------

// ReferenceArrayFactory creates the outer arrays of multi-dimensional
// allocations. Returned arrays carry one caller-owned handle.
type ReferenceArrayFactory interface {
	NewReferenceArray(d *ObjectArrayType, length int) (*RefArray, error)
}

// MultiAllocator builds nested arrays from a scalar Allocator and a
// ReferenceArrayFactory.
type MultiAllocator struct {
	scalars *Allocator
	refs    ReferenceArrayFactory
}

// NewMultiAllocator returns a MultiAllocator. A nil refs uses scalars as
// the reference array factory.
func NewMultiAllocator(scalars *Allocator, refs ReferenceArrayFactory) *MultiAllocator {
	if refs == nil {
		refs = scalars
	}
	return &MultiAllocator{scalars: scalars, refs: refs}
}

// MultiAllocate allocates the first rank dimensions of d with the given
// sizes. Zero sizes yield zero-length arrays; slots below rank stay nil.
//
// Every size is validated before anything is allocated. If an inner
// allocation fails (out of memory), the outer array built so far is
// returned together with the error: slots not yet filled are nil, and the
// caller owns its handle exactly as on success.
func (m *MultiAllocator) MultiAllocate(d ArrayType, rank int, sizes []int) (Object, error) {
	if err := validateDimensions(d, rank, sizes); err != nil {
		return nil, err
	}
	obj, err := m.allocate(d, rank, sizes)
	if err != nil && obj != nil {
		allocLog.Warningf("multi-allocate %s %v: returning partial result: %v", d.ExternalName(), sizes, err)
	}
	return obj, err
}

func validateDimensions(d ArrayType, rank int, sizes []int) error {
	if rank < 1 || len(sizes) != rank {
		return arrayError("multi-allocate", d, ErrIllegalLength, "rank %d with %d sizes", rank, len(sizes))
	}
	if rank > d.Dimension() {
		return arrayError("multi-allocate", d, ErrIllegalLength, "rank %d exceeds dimension %d", rank, d.Dimension())
	}
	t := d
	for i, n := range sizes {
		if n < 0 {
			return arrayError("multi-allocate", d, ErrIllegalLength, "sizes[%d] = %d", i, n)
		}
		if n > t.MaxLength() {
			return arrayError("multi-allocate", d, ErrLengthExceedsMaximum,
				"sizes[%d] = %d, maximum %d", i, n, t.MaxLength())
		}
		if i+1 < rank {
			t = AsObjectArrayType(t).element
		}
	}
	return nil
}

func (m *MultiAllocator) allocate(d ArrayType, rank int, sizes []int) (Object, error) {
	if d.Kind() == ScalarArrayKind {
		a, err := m.scalars.Allocate(AsScalarArrayType(d), sizes[0], true)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	t := AsObjectArrayType(d)
	outer, err := m.refs.NewReferenceArray(t, sizes[0])
	if err != nil {
		return nil, err
	}
	if rank == 1 {
		return outer, nil
	}
	for i := 0; i < sizes[0]; i++ {
		inner, err := m.allocate(t.element, rank-1, sizes[1:])
		if err != nil {
			if inner != nil {
				inner.owner().Release(inner)
			}
			return outer, err
		}
		if err := outer.SetElement(i, inner); err != nil {
			inner.owner().Release(inner)
			return outer, err
		}
		// Reachable through outer from here on.
		inner.owner().Release(inner)
	}
	return outer, nil
}
