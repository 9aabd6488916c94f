package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/chazu/tarray/vm"
	"github.com/chazu/tarray/vm/snapshot"
)

// ---------------------------------------------------------------------------
// snapshot
// ---------------------------------------------------------------------------

type snapshotCmd struct {
	kind        string
	values      string
	out         string
	descriptors bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "encode an array or the descriptor table as CBOR" }
func (*snapshotCmd) Usage() string {
	return `snapshot [-descriptors] [-kind k] [-values list] [-out file]:
  Encode an array built from -values (or, with -descriptors, the loader's
  descriptor table), decode it again and print the decoded form.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "float64", "element kind")
	f.StringVar(&c.values, "values", "1.5,2.5,3.5", "comma-separated values")
	f.StringVar(&c.out, "out", "", "write the encoding to this file")
	f.BoolVar(&c.descriptors, "descriptors", false, "encode the descriptor table instead of an array")
}

func (c *snapshotCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)

	var data []byte
	var err error
	if c.descriptors {
		for _, k := range vm.ScalarKinds() {
			if _, err := v.ScalarArrayType(k); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return subcommands.ExitFailure
			}
		}
		data, err = snapshot.MarshalDescriptors(v.Loader)
	} else {
		var a *vm.ScalarArray
		a, err = buildArray(v, c.kind, c.values)
		if err == nil {
			data, err = snapshot.MarshalArray(a)
			v.Heap.Release(a)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.out != "" {
		if err := os.WriteFile(c.out, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	fmt.Printf("encoded %d bytes\n", len(data))

	if c.descriptors {
		table, err := snapshot.UnmarshalDescriptors(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, d := range table.Descriptors {
			fmt.Printf("#%d %s %s max=%d\n", d.ID, d.Name, d.ExternalName, d.MaxLength)
		}
		return subcommands.ExitSuccess
	}

	a, err := snapshot.UnmarshalArray(v.Allocator, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer v.Heap.Release(a)
	fmt.Printf("decoded %s: %v\n", a, values(a))
	return subcommands.ExitSuccess
}
