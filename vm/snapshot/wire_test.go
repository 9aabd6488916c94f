package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/chazu/tarray/vm"
)

func newVM(t *testing.T) *vm.VM {
	t.Helper()
	v := vm.New(vm.Options{})
	t.Cleanup(v.Shutdown)
	return v
}

func TestArrayRoundTrip(t *testing.T) {
	v := newVM(t)
	a, err := v.Allocate(vm.Float32, 4, true)
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range []float32{1.5, -2, 0, 1e9} {
		a.SetFloat32(i, x)
	}

	data, err := MarshalArray(a)
	if err != nil {
		t.Fatal(err)
	}
	again, err := MarshalArray(a)
	if err != nil || !bytes.Equal(data, again) {
		t.Fatal("encoding is not deterministic")
	}

	b, err := UnmarshalArray(v.Allocator, data)
	if err != nil {
		t.Fatal(err)
	}
	if b == a || b.Type() != a.Type() {
		t.Error("decoded array should be a new instance of the same descriptor")
	}
	if diff := cmp.Diff(a.Bytes(), b.Bytes()); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if v.Heap.Handles(b) != 1 {
		t.Errorf("decoded array has %d handles, want 1", v.Heap.Handles(b))
	}
}

func TestUnmarshalArrayRejectsBadRecords(t *testing.T) {
	v := newVM(t)

	tests := []struct {
		name string
		rec  ArrayRecord
	}{
		{"unknown kind", ArrayRecord{Kind: "object", Length: 0}},
		{"short data", ArrayRecord{Kind: "int32", Length: 2, Data: make([]byte, 7)}},
		{"negative length", ArrayRecord{Kind: "int8", Length: -1}},
		{"overflowing length", ArrayRecord{Kind: "int64", Length: 1 << 61}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(&tt.rec)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := UnmarshalArray(v.Allocator, data); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := UnmarshalArray(v.Allocator, []byte{0xff}); err == nil {
		t.Error("garbage input decoded")
	}
	if v.Heap.LiveObjects() != 0 {
		t.Errorf("rejected records allocated %d arrays", v.Heap.LiveObjects())
	}
}

func TestUnmarshalArrayOverflowIsDecodeError(t *testing.T) {
	v := newVM(t)

	// 2^61 int64 elements is 2^64 bytes, which wraps to the empty payload.
	data, err := cbor.Marshal(&ArrayRecord{Kind: "int64", Length: 1 << 61})
	if err != nil {
		t.Fatal(err)
	}
	_, err = UnmarshalArray(v.Allocator, data)
	if err == nil {
		t.Fatal("overflowing record decoded")
	}
	if errors.Is(err, vm.ErrLengthExceedsMaximum) {
		t.Errorf("record reached the allocator: %v", err)
	}
	if v.Heap.Used() != 0 {
		t.Errorf("Used() = %d", v.Heap.Used())
	}
}

func TestDescriptorTable(t *testing.T) {
	v := newVM(t)
	if _, err := v.Loader.ArrayTypeOf(vm.Int16, 2); err != nil {
		t.Fatal(err)
	}

	data, err := MarshalDescriptors(v.Loader)
	if err != nil {
		t.Fatal(err)
	}
	table, err := UnmarshalDescriptors(data)
	if err != nil {
		t.Fatal(err)
	}
	if table.LoaderName != vm.DefaultLoaderName || table.LoaderID != v.Loader.ID().String() {
		t.Errorf("loader = %s %s", table.LoaderName, table.LoaderID)
	}

	var names []string
	for _, d := range table.Descriptors {
		names = append(names, d.ExternalName)
	}
	if diff := cmp.Diff([]string{"int16[]", "int16[][]"}, names); diff != "" {
		t.Errorf("descriptors (-want +got):\n%s", diff)
	}
	inner := table.Descriptors[0]
	if inner.Name != "[S" || inner.ElementSize != 2 || inner.Dimension != 1 {
		t.Errorf("inner record = %+v", inner)
	}
}
