package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/spf13/cast"

	"github.com/chazu/tarray/vm"
)

// ---------------------------------------------------------------------------
// describe
// ---------------------------------------------------------------------------

type describeCmd struct {
	dims int
}

func (*describeCmd) Name() string     { return "describe" }
func (*describeCmd) Synopsis() string { return "print array descriptors" }
func (*describeCmd) Usage() string {
	return `describe [-dims n] [kind...]:
  Create (if needed) and print the descriptors for the given scalar kinds,
  or for every kind when none is given.
`
}

func (c *describeCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.dims, "dims", 1, "array dimension")
}

func (c *describeCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)
	kinds, err := parseKinds(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tKIND\tDIM\tELEM\tMAX LENGTH\tFLAGS")
	for _, k := range kinds {
		d, err := v.Loader.ArrayTypeOf(k, c.dims)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%#04x\n",
			d.ID(), d.NameString(), d.ExternalName(), d.Kind(),
			d.Dimension(), d.ElementSize(), d.MaxLength(), uint16(d.Modifiers()))
	}
	w.Flush()
	fmt.Printf("metadata: %d words, loader %s (%s)\n", v.Loader.MetadataUsed(), v.Loader.Name(), v.Loader.ID())
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// alloc
// ---------------------------------------------------------------------------

type allocCmd struct {
	zero bool
}

func (*allocCmd) Name() string     { return "alloc" }
func (*allocCmd) Synopsis() string { return "allocate a scalar array and report its size" }
func (*allocCmd) Usage() string {
	return `alloc [-zero=false] <kind> <length>:
  Allocate one array and print its header and size in words.
`
}

func (c *allocCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.zero, "zero", true, "zero-fill the content")
}

func (c *allocCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k, err := vm.ParseScalarKind(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	length, err := cast.ToIntE(f.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid length %q: %v\n", f.Arg(1), err)
		return subcommands.ExitUsageError
	}

	a, err := v.Allocate(k, length, c.zero)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer v.Heap.Release(a)

	d := a.Type()
	fmt.Printf("%s length=%d words=%d descriptor=#%d heap=%d/%d words\n",
		d.ExternalName(), a.Len(), v.Tracer.InstanceSize(a), d.ID(), v.Heap.Used(), v.Heap.Capacity())
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// multi
// ---------------------------------------------------------------------------

type multiCmd struct {
	dims int
}

func (*multiCmd) Name() string     { return "multi" }
func (*multiCmd) Synopsis() string { return "allocate a nested multi-dimensional array" }
func (*multiCmd) Usage() string {
	return `multi [-dims n] <kind> <size>...:
  Allocate the first len(sizes) dimensions of an n-dimensional array
  (n defaults to the number of sizes) and print its shape.
`
}

func (c *multiCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.dims, "dims", 0, "declared dimension (default: number of sizes)")
}

func (c *multiCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k, err := vm.ParseScalarKind(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	sizes, err := cast.ToIntSliceE(f.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid sizes: %v\n", err)
		return subcommands.ExitUsageError
	}
	dims := c.dims
	if dims == 0 {
		dims = len(sizes)
	}

	obj, err := v.MultiAllocate(k, dims, len(sizes), sizes)
	if obj != nil {
		defer v.Heap.Release(obj)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printShape(obj, 0)
	return subcommands.ExitSuccess
}

func printShape(o vm.Object, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s length=%d\n", indent, o.Descriptor().ExternalName(), o.Len())
	r, ok := o.(*vm.RefArray)
	if !ok || r.Len() == 0 {
		return
	}
	// Every slot has the same shape; print the first.
	if first := r.Element(0); first != nil {
		printShape(first, depth+1)
	} else {
		fmt.Printf("%s  <nil>\n", indent)
	}
}

// ---------------------------------------------------------------------------
// copy
// ---------------------------------------------------------------------------

type copyCmd struct {
	kind   string
	values string
}

func (*copyCmd) Name() string     { return "copy" }
func (*copyCmd) Synopsis() string { return "copy a range within one array" }
func (*copyCmd) Usage() string {
	return `copy [-kind int32] [-values 1,2,3,4,5] <srcPos> <dstPos> <length>:
  Build an array from -values, copy a range within it, print the result.
`
}

func (c *copyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "int32", "element kind")
	f.StringVar(&c.values, "values", "1,2,3,4,5", "comma-separated initial values")
}

func (c *copyCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)
	if f.NArg() != 3 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	pos, err := cast.ToIntSliceE(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid positions: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := buildArray(v, c.kind, c.values)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer v.Heap.Release(a)

	fmt.Printf("before: %v\n", values(a))
	if err := v.CopyArray(a, pos[0], a, pos[1], pos[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("after:  %v\n", values(a))
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseKinds(args []string) ([]vm.ScalarKind, error) {
	if len(args) == 0 {
		return vm.ScalarKinds(), nil
	}
	kinds := make([]vm.ScalarKind, 0, len(args))
	for _, s := range args {
		k, err := vm.ParseScalarKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// buildArray allocates an array of kind holding the comma-separated
// values. The content is written in full, so zero fill is skipped.
func buildArray(v *vm.VM, kind, list string) (*vm.ScalarArray, error) {
	k, err := vm.ParseScalarKind(kind)
	if err != nil {
		return nil, err
	}
	vals, err := parseValues(list)
	if err != nil {
		return nil, err
	}
	a, err := v.Allocate(k, len(vals), false)
	if err != nil {
		return nil, err
	}
	for i, x := range vals {
		a.SetValue(i, x)
	}
	return a, nil
}

func values(a *vm.ScalarArray) []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.Value(i)
	}
	return out
}
