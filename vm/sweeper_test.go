package vm

import (
	"testing"
	"time"
)

func TestSweeperDefaults(t *testing.T) {
	s := NewSweeper(NewHeap(HeapOptions{}), SweeperOptions{})
	if s.Interval() != DefaultSweepInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultSweepInterval)
	}
	if s.PressureMark() != 0 {
		t.Errorf("PressureMark() = %d without a pressure option", s.PressureMark())
	}
	if !s.IsEnabled() {
		t.Error("new sweeper is disabled")
	}
	if s.LastStats() != nil || s.SweepCount() != 0 {
		t.Error("new sweeper reports a sweep")
	}
	s.Stop() // never started
}

func TestSweepNow(t *testing.T) {
	v := newTestVM(t, Options{})
	s := NewSweeper(v.Heap, SweeperOptions{Interval: time.Hour})

	a := mustAllocate(t, v, Int32, 4)
	v.Heap.Release(a)

	stats := s.SweepNow()
	if stats.Swept != 1 {
		t.Errorf("Swept = %d, want 1", stats.Swept)
	}
	if s.SweepCount() != 1 || s.LastStats() != stats {
		t.Errorf("SweepCount() = %d, LastStats() = %+v", s.SweepCount(), s.LastStats())
	}
}

func TestSweeperCollectsOnTimer(t *testing.T) {
	v := newTestVM(t, Options{SweepInterval: 5 * time.Millisecond})
	s := v.Sweeper()
	s.Start() // already running; no second loop

	a := mustAllocate(t, v, Float64, 16)
	v.Heap.Release(a)

	waitFor(t, "timed sweep to reclaim the released array", func() bool { return !v.Heap.Contains(a) })
	if s.SweepCount() == 0 {
		t.Error("SweepCount() = 0 after a background sweep")
	}
}

func TestSweeperCollectsOnPressure(t *testing.T) {
	v := newTestVM(t, Options{
		Heap:          HeapOptions{CapacityWords: 100},
		SweepInterval: time.Hour,
		SweepPressure: 0.5,
	})
	s := v.Sweeper()
	if s.PressureMark() != 50 {
		t.Fatalf("PressureMark() = %d, want 50", s.PressureMark())
	}

	garbage := mustAllocate(t, v, Int64, 20) // 22 words, below the mark
	v.Heap.Release(garbage)
	if s.PressureSweeps() != 0 {
		t.Fatal("sweep triggered below the pressure mark")
	}

	mustAllocate(t, v, Int64, 30) // 54 words in use
	waitFor(t, "pressure sweep", func() bool { return s.PressureSweeps() > 0 })
	waitFor(t, "garbage to be reclaimed", func() bool { return !v.Heap.Contains(garbage) })
}

func TestSweeperStopUnsubscribes(t *testing.T) {
	v := newTestVM(t, Options{
		Heap:          HeapOptions{CapacityWords: 100},
		SweepInterval: time.Hour,
		SweepPressure: 0.1,
	})
	s := v.Sweeper()
	s.Stop()
	s.Stop()
	if v.Heap.watch.Load() != nil {
		t.Fatal("stopped sweeper still watches the heap")
	}

	mustAllocate(t, v, Int64, 60)
	time.Sleep(10 * time.Millisecond)
	if s.PressureSweeps() != 0 {
		t.Error("stopped sweeper collected")
	}
}

func TestSweeperDisabled(t *testing.T) {
	v := newTestVM(t, Options{SweepInterval: time.Millisecond})
	s := v.Sweeper()
	s.SetEnabled(false)
	// A tick in flight may still collect once.
	time.Sleep(5 * time.Millisecond)
	count := s.SweepCount()

	time.Sleep(20 * time.Millisecond)
	if s.SweepCount() != count {
		t.Errorf("disabled sweeper ran: %d -> %d", count, s.SweepCount())
	}
	s.SetEnabled(true)
	if !s.IsEnabled() {
		t.Error("SetEnabled(true) ignored")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
