package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/subcommands"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tarray/vm"
)

// ---------------------------------------------------------------------------
// stress
// ---------------------------------------------------------------------------

type stressCmd struct {
	goroutines int
	iterations int
	length     int
	kind       string
	metrics    bool
}

func (*stressCmd) Name() string     { return "stress" }
func (*stressCmd) Synopsis() string { return "allocate and copy from many goroutines" }
func (*stressCmd) Usage() string {
	return `stress [-goroutines n] [-iterations n] [-length n] [-kind k] [-metrics]:
  Run concurrent allocate/copy/release loops against the heap and report
  collector activity.
`
}

func (c *stressCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.goroutines, "goroutines", 8, "concurrent workers")
	f.IntVar(&c.iterations, "iterations", 1000, "iterations per worker")
	f.IntVar(&c.length, "length", 1024, "array length")
	f.StringVar(&c.kind, "kind", "int32", "element kind")
	f.BoolVar(&c.metrics, "metrics", false, "print heap metrics at the end")
}

func (c *stressCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	v := vmFrom(args)
	k, err := vm.ParseScalarKind(c.kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	start := time.Now()
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < c.goroutines; w++ {
		g.Go(func() error {
			for i := 0; i < c.iterations; i++ {
				if err := stressOnce(v, k, c.length, i%2 == 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	stats := v.Heap.Collect()

	fmt.Printf("%d workers x %d iterations in %s\n", c.goroutines, c.iterations, time.Since(start))
	fmt.Printf("gc cycles: %d, live objects: %d, used: %d/%d words\n",
		v.Heap.Cycles(), v.Heap.LiveObjects(), stats.UsedWords, v.Heap.Capacity())

	if c.metrics {
		if err := printMetrics(v.Heap.Metrics()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

func stressOnce(v *vm.VM, k vm.ScalarKind, length int, zero bool) error {
	src, err := v.Allocate(k, length, zero)
	if err != nil {
		return err
	}
	defer v.Heap.Release(src)
	dst, err := v.Allocate(k, length, true)
	if err != nil {
		return err
	}
	defer v.Heap.Release(dst)

	for i := 0; i < length; i++ {
		src.SetValue(i, float64(i))
	}
	if length > 1 {
		if err := v.CopyArray(src, 1, src, 0, length-1); err != nil {
			return err
		}
	}
	return v.CopyArray(src, 0, dst, 0, length)
}

func printMetrics(m *vm.Metrics) error {
	families, err := m.Registry().Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fmt.Printf("%s%s %g\n", mf.GetName(), labels(metric), metricValue(mf.GetType(), metric))
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	s := "{"
	for i, l := range m.GetLabel() {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return s + "}"
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
