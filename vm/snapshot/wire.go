// Package snapshot serializes scalar arrays and descriptor tables to CBOR.
package snapshot

import (
	"fmt"
	"math"

	"github.com/chazu/tarray/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal arrays encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ArrayRecord is the wire form of a scalar array. Data holds the
// little-endian element content.
type ArrayRecord struct {
	Kind   string `cbor:"1,keyasint"`
	Length int    `cbor:"2,keyasint"`
	Data   []byte `cbor:"3,keyasint"`
}

// DescriptorRecord is the wire form of one array descriptor.
type DescriptorRecord struct {
	ID           uint32 `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	ExternalName string `cbor:"3,keyasint"`
	Dimension    int    `cbor:"4,keyasint"`
	ElementSize  int    `cbor:"5,keyasint"`
	MaxLength    int    `cbor:"6,keyasint"`
	Modifiers    uint16 `cbor:"7,keyasint"`
}

// DescriptorTable lists the descriptors a loader has created.
type DescriptorTable struct {
	LoaderID    string             `cbor:"1,keyasint"`
	LoaderName  string             `cbor:"2,keyasint"`
	Descriptors []DescriptorRecord `cbor:"3,keyasint"`
}

// MarshalArray encodes a scalar array.
func MarshalArray(a *vm.ScalarArray) ([]byte, error) {
	rec := ArrayRecord{
		Kind:   a.ScalarKind().String(),
		Length: a.Len(),
		Data:   a.Bytes(),
	}
	return cborEncMode.Marshal(&rec)
}

// UnmarshalArray decodes an array and allocates it through alloc. The new
// instance is allocated without zero fill and then overwritten in full; the
// caller owns its handle.
func UnmarshalArray(alloc *vm.Allocator, data []byte) (*vm.ScalarArray, error) {
	var rec ArrayRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal array: %w", err)
	}
	k, err := vm.ParseScalarKind(rec.Kind)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if rec.Length < 0 || rec.Length > math.MaxInt/k.Size() || len(rec.Data) != rec.Length*k.Size() {
		return nil, fmt.Errorf("snapshot: %s[%d] record carries %d bytes", k, rec.Length, len(rec.Data))
	}

	a, err := alloc.AllocateKind(k, rec.Length, false)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if err := a.Fill(rec.Data); err != nil {
		alloc.Heap().Release(a)
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return a, nil
}

// MarshalDescriptors encodes the descriptor table of l.
func MarshalDescriptors(l *vm.Loader) ([]byte, error) {
	table := DescriptorTable{
		LoaderID:   l.ID().String(),
		LoaderName: l.Name(),
	}
	for _, d := range l.Descriptors() {
		table.Descriptors = append(table.Descriptors, DescriptorRecord{
			ID:           d.ID(),
			Name:         d.NameString(),
			ExternalName: d.ExternalName(),
			Dimension:    d.Dimension(),
			ElementSize:  d.ElementSize(),
			MaxLength:    d.MaxLength(),
			Modifiers:    uint16(d.Modifiers()),
		})
	}
	return cborEncMode.Marshal(&table)
}

// UnmarshalDescriptors decodes a descriptor table.
func UnmarshalDescriptors(data []byte) (*DescriptorTable, error) {
	var t DescriptorTable
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal descriptors: %w", err)
	}
	return &t, nil
}
