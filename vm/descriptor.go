package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Type descriptors: closed hierarchy dispatched on a kind tag
// ---------------------------------------------------------------------------

// TypeKind discriminates the three descriptor variants.
type TypeKind uint8

const (
	InstanceKind TypeKind = iota
	ObjectArrayKind
	ScalarArrayKind
)

func (k TypeKind) String() string {
	switch k {
	case InstanceKind:
		return "instance"
	case ObjectArrayKind:
		return "object-array"
	case ScalarArrayKind:
		return "scalar-array"
	default:
		return fmt.Sprintf("TypeKind(%d)", uint8(k))
	}
}

// ModifierFlags are access flags attached to a descriptor.
type ModifierFlags uint16

const (
	AccPublic   ModifierFlags = 0x0001
	AccFinal    ModifierFlags = 0x0010
	AccAbstract ModifierFlags = 0x0400
)

// arrayModifiers is the flag set shared by every array descriptor.
const arrayModifiers = AccPublic | AccFinal | AccAbstract

// TypeDescriptor is the shared, immutable metadata of a runtime type.
// The variant set is closed: *InstanceType, *ObjectArrayType and
// *ScalarArrayType.
type TypeDescriptor interface {
	ID() uint32
	Name() uint32 // interned symbol ID
	NameString() string
	ExternalName() string
	Modifiers() ModifierFlags
	HeaderWords() int
	Kind() TypeKind
	Super() TypeDescriptor
	Loader() *Loader

	sealed()
}

// ArrayType is a TypeDescriptor describing an array.
type ArrayType interface {
	TypeDescriptor
	Dimension() int
	// Element returns the descriptor of the elements, or nil for a
	// one-dimensional scalar array.
	Element() TypeDescriptor
	ElementSize() int
	MaxLength() int
	SizeInWords(length int) int
}

type typeBase struct {
	id          uint32
	name        uint32
	loader      *Loader
	modifiers   ModifierFlags
	headerWords int
	kind        TypeKind
	super       TypeDescriptor
}

func (t *typeBase) ID() uint32               { return t.id }
func (t *typeBase) Name() uint32             { return t.name }
func (t *typeBase) Modifiers() ModifierFlags { return t.modifiers }
func (t *typeBase) HeaderWords() int         { return t.headerWords }
func (t *typeBase) Kind() TypeKind           { return t.kind }
func (t *typeBase) Super() TypeDescriptor    { return t.super }
func (t *typeBase) Loader() *Loader          { return t.loader }
func (t *typeBase) sealed()                  {}

func (t *typeBase) NameString() string {
	return t.loader.symbols.Name(t.name)
}

// InstanceType describes a non-array type. Only the root type is modelled;
// it is the supertype of every array descriptor.
type InstanceType struct {
	typeBase
}

func (t *InstanceType) ExternalName() string {
	return t.NameString()
}

type arrayBase struct {
	typeBase
	dimension   int
	elementSize int
	maxLength   int
}

func (a *arrayBase) Dimension() int   { return a.dimension }
func (a *arrayBase) ElementSize() int { return a.elementSize }
func (a *arrayBase) MaxLength() int   { return a.maxLength }

// SizeInWords returns the word-aligned instance size for length elements.
func (a *arrayBase) SizeInWords(length int) int {
	return arraySizeInWords(length, a.elementSize)
}

// ObjectArrayType describes an array whose elements are references to
// lower-dimension arrays of a scalar kind.
type ObjectArrayType struct {
	arrayBase
	element ArrayType
	bottom  ScalarKind
}

func (t *ObjectArrayType) Element() TypeDescriptor { return t.element }

// ElementArrayType returns the element descriptor as an ArrayType.
func (t *ObjectArrayType) ElementArrayType() ArrayType { return t.element }

// BottomKind returns the scalar kind at the innermost dimension.
func (t *ObjectArrayType) BottomKind() ScalarKind { return t.bottom }

func (t *ObjectArrayType) ExternalName() string {
	return t.element.ExternalName() + "[]"
}

// ---------------------------------------------------------------------------
// Assertion-checked downcasts
// ---------------------------------------------------------------------------

// AsScalarArrayType downcasts d. Panics if d is not a scalar array descriptor.
func AsScalarArrayType(d TypeDescriptor) *ScalarArrayType {
	if d.Kind() != ScalarArrayKind {
		panic(fmt.Sprintf("vm: %s is a %s, not a scalar array type", d.ExternalName(), d.Kind()))
	}
	return d.(*ScalarArrayType)
}

// AsObjectArrayType downcasts d. Panics if d is not an object array descriptor.
func AsObjectArrayType(d TypeDescriptor) *ObjectArrayType {
	if d.Kind() != ObjectArrayKind {
		panic(fmt.Sprintf("vm: %s is a %s, not an object array type", d.ExternalName(), d.Kind()))
	}
	return d.(*ObjectArrayType)
}

// AsArrayType downcasts d. Panics if d describes an instance type.
func AsArrayType(d TypeDescriptor) ArrayType {
	switch d.Kind() {
	case ScalarArrayKind:
		return d.(*ScalarArrayType)
	case ObjectArrayKind:
		return d.(*ObjectArrayType)
	default:
		panic(fmt.Sprintf("vm: %s is not an array type", d.ExternalName()))
	}
}

// IsArrayType reports whether d describes an array.
func IsArrayType(d TypeDescriptor) bool {
	k := d.Kind()
	return k == ScalarArrayKind || k == ObjectArrayKind
}

// ---------------------------------------------------------------------------
// Sizing
// ---------------------------------------------------------------------------

// arraySizeInWords = header + ceil(length*elemSize / WordSize).
func arraySizeInWords(length, elemSize int) int {
	return HeaderWords + (length*elemSize+WordSize-1)/WordSize
}

// maxArrayLength is floor((maxObjectWords-HeaderWords)*WordSize/elemSize),
// capped at MaxInt32.
func maxArrayLength(maxObjectWords int64, elemSize int) int {
	words := maxObjectWords - HeaderWords
	if words <= 0 {
		return 0
	}
	if words > math.MaxInt64/WordSize {
		return math.MaxInt32
	}
	n := words * WordSize / int64(elemSize)
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}
