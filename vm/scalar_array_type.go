package vm

// ---------------------------------------------------------------------------
// ScalarArrayType: one singleton descriptor per scalar kind per loader
// ---------------------------------------------------------------------------

// ScalarArrayType describes a one-dimensional array of a scalar kind.
// Instances are created only by Loader.ScalarArrayType and never mutated.
type ScalarArrayType struct {
	arrayBase
	kind ScalarKind
}

// ScalarKind returns the element kind.
func (t *ScalarArrayType) ScalarKind() ScalarKind { return t.kind }

// Element returns nil: scalar elements have no descriptor.
func (t *ScalarArrayType) Element() TypeDescriptor { return nil }

// ExternalName returns the human-readable name, e.g. "int32[]".
func (t *ScalarArrayType) ExternalName() string {
	return t.kind.String() + "[]"
}

// Module returns the module the descriptor belongs to. Scalar arrays are
// not declared by any module, so this is the loader's unnamed module.
func (t *ScalarArrayType) Module() *Module {
	return t.loader.UnnamedModule()
}

// Package returns the package name, which is always empty for arrays.
func (t *ScalarArrayType) Package() string {
	return ""
}

func newScalarArrayType(l *Loader, id uint32, k ScalarKind) *ScalarArrayType {
	name := string([]byte{'[', k.Signature()})
	return &ScalarArrayType{
		arrayBase: arrayBase{
			typeBase: typeBase{
				id:          id,
				name:        l.symbols.Intern(name),
				loader:      l,
				modifiers:   arrayModifiers,
				headerWords: HeaderWords,
				kind:        ScalarArrayKind,
				super:       l.root,
			},
			dimension:   1,
			elementSize: k.Size(),
			maxLength:   maxArrayLength(l.maxObjectWords, k.Size()),
		},
		kind: k,
	}
}
