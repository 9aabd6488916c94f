package vm

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Length validation and sizing
// ---------------------------------------------------------------------------

func TestAllocateLengthAndDescriptor(t *testing.T) {
	v := newTestVM(t, Options{Loader: LoaderOptions{MaxObjectWords: 64}})

	for _, k := range ScalarKinds() {
		d, err := v.ScalarArrayType(k)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range []int{0, 1, 7, 8, 9, d.MaxLength() - 1, d.MaxLength()} {
			a, err := v.Allocator.Allocate(d, n, true)
			if err != nil {
				t.Fatalf("Allocate(%s, %d): %v", k, n, err)
			}
			if a.Len() != n {
				t.Errorf("%s: Len() = %d, want %d", k, a.Len(), n)
			}
			if a.Descriptor() != ArrayType(d) || a.Header().Descriptor != ArrayType(d) {
				t.Errorf("%s: instance is not linked to the singleton", k)
			}
			if a.Header().Length != n {
				t.Errorf("%s: header length = %d, want %d", k, a.Header().Length, n)
			}
			v.Heap.Release(a)
		}
	}
}

func TestAllocateRejectsBadLengths(t *testing.T) {
	v := newTestVM(t, Options{Loader: LoaderOptions{MaxObjectWords: 64}})

	for _, k := range ScalarKinds() {
		d, _ := v.ScalarArrayType(k)

		_, err := v.Allocator.Allocate(d, -1, true)
		expectErr(t, err, ErrIllegalLength)

		_, err = v.Allocator.Allocate(d, d.MaxLength()+1, true)
		expectErr(t, err, ErrLengthExceedsMaximum)

		var ae *ArrayError
		if !errors.As(err, &ae) || ae.Op != "allocate" || ae.Type != d.ExternalName() {
			t.Errorf("%s: error %v is not a descriptive ArrayError", k, err)
		}
	}
	if v.Heap.Used() != 0 || v.Heap.LiveObjects() != 0 {
		t.Errorf("rejected allocations reserved memory: used %d, live %d", v.Heap.Used(), v.Heap.LiveObjects())
	}
}

func TestInstanceSize(t *testing.T) {
	v := newTestVM(t, Options{})

	tests := []struct {
		kind   ScalarKind
		length int
		want   int
	}{
		{Bool, 0, 2},
		{Bool, 1, 3},
		{Bool, 8, 3},
		{Bool, 9, 4},
		{Int16, 5, 4},
		{Uint16, 4, 3},
		{Int32, 3, 4},
		{Float32, 2, 3},
		{Int64, 5, 7},
		{Float64, 1, 3},
		{Int8, 17, 5},
	}
	for _, tt := range tests {
		a := mustAllocate(t, v, tt.kind, tt.length)
		if got := v.Tracer.InstanceSize(a); got != tt.want {
			t.Errorf("InstanceSize(%s[%d]) = %d, want %d", tt.kind, tt.length, got, tt.want)
		}
		formula := HeaderWords + (tt.length*tt.kind.Size()+WordSize-1)/WordSize
		if formula != tt.want {
			t.Errorf("test table disagrees with the size formula for %s[%d]", tt.kind, tt.length)
		}
	}
}

func TestAllocateAccountsWords(t *testing.T) {
	v := newTestVM(t, Options{})
	a := mustAllocate(t, v, Int64, 10)
	if got, want := v.Heap.Used(), int64(HeaderWords+10); got != want {
		t.Errorf("Used() = %d, want %d", got, want)
	}
	if v.Heap.Handles(a) != 1 {
		t.Errorf("Handles() = %d, want 1", v.Heap.Handles(a))
	}
	if got := testutil.ToFloat64(v.Heap.metrics.allocations.WithLabelValues("int64[]")); got != 1 {
		t.Errorf("allocation counter = %v, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Zero fill
// ---------------------------------------------------------------------------

func TestZeroFillClearsRecycledContent(t *testing.T) {
	v := newTestVM(t, Options{})

	stale := mustAllocate(t, v, Int64, 4)
	for i := 0; i < 4; i++ {
		stale.SetInt64(i, -1)
	}
	v.Heap.Release(stale)
	v.Heap.Collect()

	a, err := v.Allocate(Int64, 4, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if a.Int64(i) != 0 {
			t.Fatalf("zero-filled element %d = %d", i, a.Int64(i))
		}
	}
}

func TestNoZeroFillReusesSweptBuffer(t *testing.T) {
	v := newTestVM(t, Options{})

	stale := mustAllocate(t, v, Int64, 4)
	for i := 0; i < 4; i++ {
		stale.SetInt64(i, int64(100+i))
	}
	v.Heap.Release(stale)
	v.Heap.Collect()

	// Content is unspecified without zero fill; here it is the swept
	// buffer's old bytes.
	a, err := v.Allocate(Int64, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if a.Int64(0) != 100 || a.Int64(3) != 103 {
		t.Errorf("expected recycled content, got %d..%d", a.Int64(0), a.Int64(3))
	}
	for i := 0; i < 4; i++ {
		a.SetInt64(i, 7)
	}
	if a.Int64(2) != 7 {
		t.Error("overwrite after non-zeroed allocation failed")
	}
}

// ---------------------------------------------------------------------------
// Out of memory
// ---------------------------------------------------------------------------

func TestOutOfMemoryAfterCollection(t *testing.T) {
	v := newTestVM(t, Options{Heap: HeapOptions{CapacityWords: 100, GCAttempts: 2}})

	big := mustAllocate(t, v, Int64, 90) // 92 words, retained
	_, err := v.Allocate(Int64, 10, true)
	expectErr(t, err, ErrOutOfMemory)

	if got := v.Heap.Cycles(); got != 2 {
		t.Errorf("Cycles() = %d, want 2 collections before failing", got)
	}
	if got := testutil.ToFloat64(v.Heap.metrics.outOfMemory); got != 1 {
		t.Errorf("out-of-memory counter = %v, want 1", got)
	}

	// Dropping the handle lets the next collection make room.
	v.Heap.Release(big)
	a, err := v.Allocate(Int64, 10, true)
	if err != nil {
		t.Fatalf("allocation after release: %v", err)
	}
	if v.Heap.Contains(big) {
		t.Error("released array survived the collection")
	}
	if !v.Heap.Contains(a) {
		t.Error("new array is not registered")
	}
}

func TestOutOfMemoryWithDefaultAttempts(t *testing.T) {
	v := newTestVM(t, Options{Heap: HeapOptions{CapacityWords: 16}})

	errc := make(chan error, 1)
	go func() {
		_, err := v.Allocate(Int8, 1000, true)
		errc <- err
	}()
	select {
	case err := <-errc:
		expectErr(t, err, ErrOutOfMemory)
	case <-time.After(5 * time.Second):
		t.Fatalf("allocation still collecting after %d cycles", v.Heap.Cycles())
	}
	if got := v.Heap.Cycles(); got != 1 {
		t.Errorf("Cycles() = %d, want exactly one collection", got)
	}
}

func TestRetryPolicyIsBounded(t *testing.T) {
	for _, attempts := range []int{0, 1, 2, 5} {
		h := NewHeap(HeapOptions{CapacityWords: 8, GCAttempts: attempts})
		if err := h.reserve(100); !errors.Is(err, ErrOutOfMemory) {
			t.Fatalf("GCAttempts %d: reserve = %v", attempts, err)
		}
		want := uint64(max(attempts, 1))
		if h.Cycles() != want {
			t.Errorf("GCAttempts %d: %d collections, want %d", attempts, h.Cycles(), want)
		}
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentAllocation(t *testing.T) {
	v := newTestVM(t, Options{Heap: HeapOptions{CapacityWords: 4096}})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				a, err := v.Allocate(Int32, 64, true)
				if err != nil {
					return err
				}
				a.SetInt32(63, int32(w))
				if a.Int32(63) != int32(w) {
					return errors.New("lost write")
				}
				v.Heap.Release(a)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent allocation: %v", err)
	}
	v.Heap.Collect()
	if v.Heap.Used() != 0 || v.Heap.LiveObjects() != 0 {
		t.Errorf("after final collection: used %d, live %d", v.Heap.Used(), v.Heap.LiveObjects())
	}
}

// ---------------------------------------------------------------------------
// Element access
// ---------------------------------------------------------------------------

func TestElementAccessors(t *testing.T) {
	v := newTestVM(t, Options{})

	b := mustAllocate(t, v, Bool, 2)
	b.SetBool(1, true)
	if b.Bool(0) || !b.Bool(1) {
		t.Error("bool accessors")
	}
	i8 := mustAllocate(t, v, Int8, 1)
	i8.SetInt8(0, -5)
	if i8.Int8(0) != -5 {
		t.Error("int8 accessors")
	}
	u16 := mustAllocate(t, v, Uint16, 1)
	u16.SetUint16(0, 0xBEEF)
	if u16.Uint16(0) != 0xBEEF {
		t.Error("uint16 accessors")
	}
	i16 := mustAllocate(t, v, Int16, 1)
	i16.SetInt16(0, -300)
	if i16.Int16(0) != -300 {
		t.Error("int16 accessors")
	}
	i64 := mustAllocate(t, v, Int64, 1)
	i64.SetInt64(0, -1<<40)
	if i64.Int64(0) != -1<<40 {
		t.Error("int64 accessors")
	}
	f32 := mustAllocate(t, v, Float32, 1)
	f32.SetFloat32(0, 1.25)
	if f32.Float32(0) != 1.25 {
		t.Error("float32 accessors")
	}
	f64 := mustAllocate(t, v, Float64, 1)
	f64.SetValue(0, 2.5)
	if f64.Float64(0) != 2.5 || f64.Value(0) != 2.5 {
		t.Error("float64 accessors")
	}

	mustPanic(t, "int32 access on an int64 array", func() { i64.Int32(0) })
	mustPanic(t, "index past the end", func() { i64.Int64(1) })
	mustPanic(t, "negative index", func() { b.SetBool(-1, true) })
}

func TestFillRequiresExactLength(t *testing.T) {
	v := newTestVM(t, Options{})
	a := mustAllocate(t, v, Int16, 2)
	expectErr(t, a.Fill([]byte{1, 2, 3}), ErrIndexOutOfBounds)
	if err := a.Fill([]byte{1, 0, 2, 0}); err != nil {
		t.Fatal(err)
	}
	if a.Int16(0) != 1 || a.Int16(1) != 2 {
		t.Errorf("Fill content = %d, %d", a.Int16(0), a.Int16(1))
	}
}
