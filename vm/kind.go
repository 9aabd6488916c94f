package vm

import "fmt"

// ---------------------------------------------------------------------------
// ScalarKind: element kinds of reference-free arrays
// ---------------------------------------------------------------------------

// ScalarKind identifies the element type of a scalar array.
type ScalarKind uint8

const (
	Bool ScalarKind = iota
	Int8
	Uint16
	Int16
	Int32
	Int64
	Float32
	Float64

	numScalarKinds
)

// Machine layout constants shared by every descriptor.
const (
	// WordSize is the size of a heap word in bytes.
	WordSize = 8

	// HeaderWords is the size of an array header: one word for the
	// descriptor back-reference, one for the length.
	HeaderWords = 2
)

type kindInfo struct {
	name      string
	signature byte
	size      int
}

var kindTable = [numScalarKinds]kindInfo{
	Bool:    {"bool", 'Z', 1},
	Int8:    {"int8", 'B', 1},
	Uint16:  {"uint16", 'C', 2},
	Int16:   {"int16", 'S', 2},
	Int32:   {"int32", 'I', 4},
	Int64:   {"int64", 'J', 8},
	Float32: {"float32", 'F', 4},
	Float64: {"float64", 'D', 8},
}

// ScalarKinds returns every scalar kind in declaration order.
func ScalarKinds() []ScalarKind {
	kinds := make([]ScalarKind, numScalarKinds)
	for i := range kinds {
		kinds[i] = ScalarKind(i)
	}
	return kinds
}

// Valid reports whether k names a known scalar kind.
func (k ScalarKind) Valid() bool {
	return k < numScalarKinds
}

// Size returns the element size in bytes.
func (k ScalarKind) Size() int {
	return k.info().size
}

// Signature returns the one-character type signature (Z, B, C, S, I, J, F, D).
func (k ScalarKind) Signature() byte {
	return k.info().signature
}

func (k ScalarKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ScalarKind(%d)", uint8(k))
	}
	return k.info().name
}

func (k ScalarKind) info() kindInfo {
	if !k.Valid() {
		panic(fmt.Sprintf("vm: invalid scalar kind %d", uint8(k)))
	}
	return kindTable[k]
}

// ParseScalarKind resolves a kind from its name ("int32") or signature ("I").
func ParseScalarKind(s string) (ScalarKind, error) {
	for i, info := range kindTable {
		if s == info.name || (len(s) == 1 && s[0] == info.signature) {
			return ScalarKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scalar kind %q", s)
}
