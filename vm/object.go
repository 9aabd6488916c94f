package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Heap instances
// ---------------------------------------------------------------------------

// Header is the fixed prefix of every array instance. Descriptor is a
// non-owning back-reference set at allocation and never changed; the
// descriptor is owned by its Loader.
type Header struct {
	Descriptor ArrayType
	Length     int
}

// Object is an array instance owned by a Heap. Callers keep instances
// alive through handles (Heap.Retain / Heap.Release).
type Object interface {
	Header() Header
	Descriptor() ArrayType
	Len() int

	owner() *Heap
}

// ScalarArray is an instance of a ScalarArrayType. Element content lives in
// a byte buffer that the collector may relocate; every access goes through
// the heap's safepoint so it never observes a buffer mid-move.
type ScalarArray struct {
	hdr  Header
	desc *ScalarArrayType
	heap *Heap
	data []byte
}

func (a *ScalarArray) Header() Header         { return a.hdr }
func (a *ScalarArray) Descriptor() ArrayType  { return a.desc }
func (a *ScalarArray) Len() int               { return a.hdr.Length }
func (a *ScalarArray) owner() *Heap           { return a.heap }
func (a *ScalarArray) Type() *ScalarArrayType { return a.desc }
func (a *ScalarArray) ScalarKind() ScalarKind { return a.desc.kind }
func (a *ScalarArray) String() string         { return fmt.Sprintf("%s[%d]", a.desc.kind, a.hdr.Length) }

// offset validates kind and index and returns the byte offset of element i.
func (a *ScalarArray) offset(k ScalarKind, i int) int {
	if a.desc.kind != k {
		panic(fmt.Sprintf("vm: %s accessed as %s", a.desc.ExternalName(), k))
	}
	if i < 0 || i >= a.hdr.Length {
		panic(fmt.Sprintf("vm: index %d out of range [0, %d)", i, a.hdr.Length))
	}
	return i * a.desc.elementSize
}

// Bool returns element i of a bool array.
func (a *ScalarArray) Bool(i int) bool {
	off := a.offset(Bool, i)
	a.heap.enter()
	defer a.heap.leave()
	return a.data[off] != 0
}

// SetBool stores element i of a bool array.
func (a *ScalarArray) SetBool(i int, v bool) {
	off := a.offset(Bool, i)
	var b byte
	if v {
		b = 1
	}
	a.heap.enter()
	defer a.heap.leave()
	a.data[off] = b
}

func (a *ScalarArray) Int8(i int) int8 {
	off := a.offset(Int8, i)
	a.heap.enter()
	defer a.heap.leave()
	return int8(a.data[off])
}

func (a *ScalarArray) SetInt8(i int, v int8) {
	off := a.offset(Int8, i)
	a.heap.enter()
	defer a.heap.leave()
	a.data[off] = byte(v)
}

func (a *ScalarArray) Uint16(i int) uint16 {
	off := a.offset(Uint16, i)
	a.heap.enter()
	defer a.heap.leave()
	return binary.LittleEndian.Uint16(a.data[off:])
}

func (a *ScalarArray) SetUint16(i int, v uint16) {
	off := a.offset(Uint16, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint16(a.data[off:], v)
}

func (a *ScalarArray) Int16(i int) int16 {
	off := a.offset(Int16, i)
	a.heap.enter()
	defer a.heap.leave()
	return int16(binary.LittleEndian.Uint16(a.data[off:]))
}

func (a *ScalarArray) SetInt16(i int, v int16) {
	off := a.offset(Int16, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint16(a.data[off:], uint16(v))
}

func (a *ScalarArray) Int32(i int) int32 {
	off := a.offset(Int32, i)
	a.heap.enter()
	defer a.heap.leave()
	return int32(binary.LittleEndian.Uint32(a.data[off:]))
}

func (a *ScalarArray) SetInt32(i int, v int32) {
	off := a.offset(Int32, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint32(a.data[off:], uint32(v))
}

func (a *ScalarArray) Int64(i int) int64 {
	off := a.offset(Int64, i)
	a.heap.enter()
	defer a.heap.leave()
	return int64(binary.LittleEndian.Uint64(a.data[off:]))
}

func (a *ScalarArray) SetInt64(i int, v int64) {
	off := a.offset(Int64, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint64(a.data[off:], uint64(v))
}

func (a *ScalarArray) Float32(i int) float32 {
	off := a.offset(Float32, i)
	a.heap.enter()
	defer a.heap.leave()
	return math.Float32frombits(binary.LittleEndian.Uint32(a.data[off:]))
}

func (a *ScalarArray) SetFloat32(i int, v float32) {
	off := a.offset(Float32, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint32(a.data[off:], math.Float32bits(v))
}

func (a *ScalarArray) Float64(i int) float64 {
	off := a.offset(Float64, i)
	a.heap.enter()
	defer a.heap.leave()
	return math.Float64frombits(binary.LittleEndian.Uint64(a.data[off:]))
}

func (a *ScalarArray) SetFloat64(i int, v float64) {
	off := a.offset(Float64, i)
	a.heap.enter()
	defer a.heap.leave()
	binary.LittleEndian.PutUint64(a.data[off:], math.Float64bits(v))
}

// Value returns element i converted to float64, whatever the kind.
// Bool elements read as 0 or 1.
func (a *ScalarArray) Value(i int) float64 {
	switch a.desc.kind {
	case Bool:
		if a.Bool(i) {
			return 1
		}
		return 0
	case Int8:
		return float64(a.Int8(i))
	case Uint16:
		return float64(a.Uint16(i))
	case Int16:
		return float64(a.Int16(i))
	case Int32:
		return float64(a.Int32(i))
	case Int64:
		return float64(a.Int64(i))
	case Float32:
		return float64(a.Float32(i))
	default:
		return a.Float64(i)
	}
}

// SetValue stores v into element i, converting to the array's kind.
func (a *ScalarArray) SetValue(i int, v float64) {
	switch a.desc.kind {
	case Bool:
		a.SetBool(i, v != 0)
	case Int8:
		a.SetInt8(i, int8(v))
	case Uint16:
		a.SetUint16(i, uint16(v))
	case Int16:
		a.SetInt16(i, int16(v))
	case Int32:
		a.SetInt32(i, int32(v))
	case Int64:
		a.SetInt64(i, int64(v))
	case Float32:
		a.SetFloat32(i, float32(v))
	default:
		a.SetFloat64(i, v)
	}
}

// Bytes returns a copy of the raw little-endian element content.
func (a *ScalarArray) Bytes() []byte {
	a.heap.enter()
	defer a.heap.leave()
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Fill overwrites the whole content with raw little-endian bytes.
// len(raw) must equal Len() * element size.
func (a *ScalarArray) Fill(raw []byte) error {
	if len(raw) != a.hdr.Length*a.desc.elementSize {
		return arrayError("fill", a.desc, ErrIndexOutOfBounds,
			"have %d bytes, want %d", len(raw), a.hdr.Length*a.desc.elementSize)
	}
	a.heap.enter()
	defer a.heap.leave()
	copy(a.data, raw)
	return nil
}

// RefArray is an instance of an ObjectArrayType. Slots hold lower-dimension
// arrays or nil.
type RefArray struct {
	hdr   Header
	desc  *ObjectArrayType
	heap  *Heap
	slots []Object
}

func (r *RefArray) Header() Header         { return r.hdr }
func (r *RefArray) Descriptor() ArrayType  { return r.desc }
func (r *RefArray) Len() int               { return r.hdr.Length }
func (r *RefArray) owner() *Heap           { return r.heap }
func (r *RefArray) Type() *ObjectArrayType { return r.desc }
func (r *RefArray) String() string         { return fmt.Sprintf("%s[%d]", r.desc.element.ExternalName(), r.hdr.Length) }

func (r *RefArray) checkIndex(i int) {
	if i < 0 || i >= r.hdr.Length {
		panic(fmt.Sprintf("vm: index %d out of range [0, %d)", i, r.hdr.Length))
	}
}

// Element returns slot i, which may be nil.
func (r *RefArray) Element(i int) Object {
	r.checkIndex(i)
	r.heap.enter()
	defer r.heap.leave()
	return r.slots[i]
}

// SetElement stores v into slot i. v must be nil or an instance of the
// element descriptor owned by the same heap; a slot is only traced by its
// own heap's collector.
func (r *RefArray) SetElement(i int, v Object) error {
	r.checkIndex(i)
	if v != nil && v.Descriptor() != r.desc.element {
		return arrayError("store", r.desc, ErrTypeMismatch,
			"cannot store %s into %s", v.Descriptor().ExternalName(), r.desc.ExternalName())
	}
	if v != nil && v.owner() != r.heap {
		return arrayError("store", r.desc, ErrTypeMismatch,
			"element owned by heap %d, array by heap %d", v.owner().id, r.heap.id)
	}
	r.heap.enter()
	defer r.heap.leave()
	r.slots[i] = v
	return nil
}
