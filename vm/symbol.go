package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// SymbolTable: interned type names
// ---------------------------------------------------------------------------

// NoSymbol is the ID reserved for "no name".
const NoSymbol uint32 = 0

// SymbolTable maps type names ("Object", "[I", "[[F") to small stable IDs.
// Every loader of a VM shares one table and descriptors store only the ID.
// Lookups in both directions take no lock; only a new name does.
type SymbolTable struct {
	ids   sync.Map // string -> uint32
	mu    sync.Mutex
	names atomic.Pointer[[]string] // append-only, index is the ID
}

// NewSymbolTable creates a symbol table with NoSymbol reserved.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	names := make([]string, 1, 64)
	st.names.Store(&names)
	return st
}

// Intern returns the ID for name, assigning the next one on first use.
func (st *SymbolTable) Intern(name string) uint32 {
	if id, ok := st.ids.Load(name); ok {
		return id.(uint32)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.ids.Load(name); ok {
		return id.(uint32)
	}
	names := append(*st.names.Load(), name)
	id := uint32(len(names) - 1)
	// Publish the name before the ID so Name never misses a returned ID.
	st.names.Store(&names)
	st.ids.Store(name, id)
	return id
}

// ArrayOf interns the name of the array type whose elements are named by
// elem: "[I" gives "[[I".
func (st *SymbolTable) ArrayOf(elem uint32) uint32 {
	return st.Intern("[" + st.Name(elem))
}

// Lookup returns the ID for name without interning it.
func (st *SymbolTable) Lookup(name string) (uint32, bool) {
	id, ok := st.ids.Load(name)
	if !ok {
		return NoSymbol, false
	}
	return id.(uint32), true
}

// Name resolves an ID, or returns "" for NoSymbol and unknown IDs.
func (st *SymbolTable) Name(id uint32) string {
	names := *st.names.Load()
	if id == NoSymbol || int(id) >= len(names) {
		return ""
	}
	return names[id]
}

// Len returns the number of interned names.
func (st *SymbolTable) Len() int {
	return len(*st.names.Load()) - 1
}
