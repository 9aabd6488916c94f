package vm

import "time"

// Options configures a VM.
type Options struct {
	LoaderName string
	Loader     LoaderOptions
	Heap       HeapOptions

	// SweepInterval enables timed background collection when positive.
	SweepInterval time.Duration

	// SweepPressure enables a collection as soon as this fraction of the
	// heap is in use. See SweeperOptions.Pressure.
	SweepPressure float64
}

// DefaultLoaderName names the boot loader when Options.LoaderName is empty.
const DefaultLoaderName = "boot"

// VM wires the collaborators of the scalar-array subsystem together: one
// symbol table, one loader, one heap, and the engines operating on them.
type VM struct {
	Symbols   *SymbolTable
	Loader    *Loader
	Heap      *Heap
	Allocator *Allocator
	Multi     *MultiAllocator
	Copier    Copier
	Tracer    Tracer

	sweeper *Sweeper
}

// New creates a VM. The background sweeper starts only when
// opts.SweepInterval or opts.SweepPressure is positive.
func New(opts Options) *VM {
	if opts.LoaderName == "" {
		opts.LoaderName = DefaultLoaderName
	}
	symbols := NewSymbolTable()
	loader := NewLoader(opts.LoaderName, symbols, opts.Loader)
	heap := NewHeap(opts.Heap)
	alloc := NewAllocator(heap, loader)

	vm := &VM{
		Symbols:   symbols,
		Loader:    loader,
		Heap:      heap,
		Allocator: alloc,
		Multi:     NewMultiAllocator(alloc, nil),
	}
	if opts.SweepInterval > 0 || opts.SweepPressure > 0 {
		vm.sweeper = NewSweeper(heap, SweeperOptions{
			Interval: opts.SweepInterval,
			Pressure: opts.SweepPressure,
		})
		vm.sweeper.Start()
	}
	return vm
}

// Sweeper returns the background sweeper, or nil when disabled.
func (vm *VM) Sweeper() *Sweeper { return vm.sweeper }

// Shutdown stops background work. The VM must not be used afterwards.
func (vm *VM) Shutdown() {
	if vm.sweeper != nil {
		vm.sweeper.Stop()
	}
}

// ScalarArrayType is shorthand for vm.Loader.ScalarArrayType.
func (vm *VM) ScalarArrayType(k ScalarKind) (*ScalarArrayType, error) {
	return vm.Loader.ScalarArrayType(k)
}

// Allocate is shorthand for vm.Allocator.AllocateKind.
func (vm *VM) Allocate(k ScalarKind, length int, zeroFill bool) (*ScalarArray, error) {
	return vm.Allocator.AllocateKind(k, length, zeroFill)
}

// MultiAllocate allocates rank dimensions of the dims-dimensional array
// type of kind k.
func (vm *VM) MultiAllocate(k ScalarKind, dims, rank int, sizes []int) (Object, error) {
	d, err := vm.Loader.ArrayTypeOf(k, dims)
	if err != nil {
		return nil, err
	}
	return vm.Multi.MultiAllocate(d, rank, sizes)
}

// CopyArray is shorthand for vm.Copier.CopyArray.
func (vm *VM) CopyArray(src Object, srcPos int, dst Object, dstPos int, length int) error {
	return vm.Copier.CopyArray(src, srcPos, dst, dstPos, length)
}
