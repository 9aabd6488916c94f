package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Loader: per-loader descriptor registry
// ---------------------------------------------------------------------------

// DescriptorWords is the metadata-space cost of one descriptor.
const DescriptorWords = 8

// RootTypeName is the name of the instance type every array extends.
const RootTypeName = "Object"

// descriptorIDs hands out descriptor identities across all loaders.
var descriptorIDs atomic.Uint32

// Module is a named or unnamed module owned by a loader.
type Module struct {
	Name   string
	loader *Loader
}

// IsNamed reports whether the module has a name.
func (m *Module) IsNamed() bool { return m.Name != "" }

// Loader returns the owning loader.
func (m *Module) Loader() *Loader { return m.loader }

// LoaderOptions configures descriptor sizing and metadata space.
type LoaderOptions struct {
	// MaxObjectWords is the largest addressable object, in words.
	// Zero selects DefaultMaxObjectWords.
	MaxObjectWords int64

	// MetadataLimitWords bounds the metadata space available for
	// descriptors. Zero means unlimited.
	MetadataLimitWords int
}

// DefaultMaxObjectWords places every scalar kind at the MaxInt32 cap.
const DefaultMaxObjectWords int64 = 1 << 40

// Loader owns descriptors for its lifetime. Scalar array descriptors are
// created lazily, once per kind, and read lock-free afterwards.
type Loader struct {
	id             uuid.UUID
	name           string
	symbols        *SymbolTable
	root           *InstanceType
	unnamed        *Module
	maxObjectWords int64

	scalars [numScalarKinds]atomic.Pointer[ScalarArrayType]

	mu            sync.Mutex // guards creation, arrays and metadata accounting
	arrays        map[arrayKey]*ObjectArrayType
	metadataUsed  int
	metadataLimit int
}

type arrayKey struct {
	kind ScalarKind
	dims int
}

// NewLoader creates a loader that interns names in symbols.
func NewLoader(name string, symbols *SymbolTable, opts LoaderOptions) *Loader {
	if opts.MaxObjectWords <= 0 {
		opts.MaxObjectWords = DefaultMaxObjectWords
	}
	l := &Loader{
		id:             uuid.New(),
		name:           name,
		symbols:        symbols,
		maxObjectWords: opts.MaxObjectWords,
		arrays:         make(map[arrayKey]*ObjectArrayType),
		metadataLimit:  opts.MetadataLimitWords,
	}
	l.unnamed = &Module{loader: l}
	l.root = &InstanceType{typeBase{
		id:          descriptorIDs.Add(1),
		name:        symbols.Intern(RootTypeName),
		loader:      l,
		modifiers:   AccPublic,
		headerWords: 1,
		kind:        InstanceKind,
	}}
	return l
}

// ID returns the loader's unique identity.
func (l *Loader) ID() uuid.UUID { return l.id }

// Name returns the loader name.
func (l *Loader) Name() string { return l.name }

// Symbols returns the symbol table names are interned in.
func (l *Loader) Symbols() *SymbolTable { return l.symbols }

// Root returns the root instance type.
func (l *Loader) Root() *InstanceType { return l.root }

// UnnamedModule returns the loader's unnamed module.
func (l *Loader) UnnamedModule() *Module { return l.unnamed }

// MaxObjectWords returns the configured object size limit.
func (l *Loader) MaxObjectWords() int64 { return l.maxObjectWords }

// MetadataUsed returns the metadata words consumed by descriptors.
func (l *Loader) MetadataUsed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metadataUsed
}

// ScalarArrayType returns the singleton descriptor for k, creating it on
// first use. Concurrent callers observe the same pointer. A creation
// failure publishes nothing; a later call retries.
func (l *Loader) ScalarArrayType(k ScalarKind) (*ScalarArrayType, error) {
	if !k.Valid() {
		return nil, arrayError("create-descriptor", nil, ErrDescriptorCreation, "invalid scalar kind %d", uint8(k))
	}
	if t := l.scalars[k].Load(); t != nil {
		return t, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scalarLocked(k)
}

func (l *Loader) scalarLocked(k ScalarKind) (*ScalarArrayType, error) {
	if t := l.scalars[k].Load(); t != nil {
		return t, nil
	}
	if err := l.reserveMetadataLocked(); err != nil {
		loaderLog.Warningf("loader %s: cannot create %s[]: %v", l.name, k, err)
		return nil, arrayError("create-descriptor", nil, ErrDescriptorCreation,
			"%s[]: metadata space exhausted (%d/%d words)", k, l.metadataUsed, l.metadataLimit)
	}
	t := newScalarArrayType(l, descriptorIDs.Add(1), k)
	l.scalars[k].Store(t)
	loaderLog.Debugf("loader %s: created %s (id %d, max length %d)", l.name, t.ExternalName(), t.id, t.maxLength)
	return t, nil
}

// ArrayTypeOf returns the dims-dimensional array descriptor whose innermost
// elements are of kind k. dims == 1 yields the scalar array singleton.
func (l *Loader) ArrayTypeOf(k ScalarKind, dims int) (ArrayType, error) {
	if dims < 1 {
		return nil, arrayError("create-descriptor", nil, ErrIllegalLength, "dimension %d", dims)
	}
	if !k.Valid() {
		return nil, arrayError("create-descriptor", nil, ErrDescriptorCreation, "invalid scalar kind %d", uint8(k))
	}
	if dims == 1 {
		t, err := l.ScalarArrayType(k)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	base, err := l.scalarLocked(k)
	if err != nil {
		return nil, err
	}
	var elem ArrayType = base
	for d := 2; d <= dims; d++ {
		key := arrayKey{kind: k, dims: d}
		t, ok := l.arrays[key]
		if !ok {
			if err := l.reserveMetadataLocked(); err != nil {
				return nil, arrayError("create-descriptor", elem, ErrDescriptorCreation,
					"dimension %d: metadata space exhausted", d)
			}
			t = l.newObjectArrayType(elem, k, d)
			l.arrays[key] = t
		}
		elem = t
	}
	return elem, nil
}

func (l *Loader) newObjectArrayType(elem ArrayType, k ScalarKind, dims int) *ObjectArrayType {
	t := &ObjectArrayType{
		arrayBase: arrayBase{
			typeBase: typeBase{
				id:          descriptorIDs.Add(1),
				name:        l.symbols.ArrayOf(elem.Name()),
				loader:      l,
				modifiers:   arrayModifiers,
				headerWords: HeaderWords,
				kind:        ObjectArrayKind,
				super:       l.root,
			},
			dimension:   dims,
			elementSize: WordSize,
			maxLength:   maxArrayLength(l.maxObjectWords, WordSize),
		},
		element: elem,
		bottom:  k,
	}
	loaderLog.Debugf("loader %s: created %s (id %d)", l.name, t.ExternalName(), t.id)
	return t
}

func (l *Loader) reserveMetadataLocked() error {
	if l.metadataLimit > 0 && l.metadataUsed+DescriptorWords > l.metadataLimit {
		return ErrDescriptorCreation
	}
	l.metadataUsed += DescriptorWords
	return nil
}

// Descriptors returns every array descriptor created so far, ordered by ID.
func (l *Loader) Descriptors() []ArrayType {
	var out []ArrayType
	for i := range l.scalars {
		if t := l.scalars[i].Load(); t != nil {
			out = append(out, t)
		}
	}
	l.mu.Lock()
	for _, t := range l.arrays {
		out = append(out, t)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
