package vm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Sweeper: background collection on a timer and on heap pressure
// ---------------------------------------------------------------------------

// DefaultSweepInterval is the default period between background collections.
const DefaultSweepInterval = 30 * time.Second

// SweeperOptions configures a Sweeper.
type SweeperOptions struct {
	// Interval between timed collections. Zero selects DefaultSweepInterval.
	Interval time.Duration

	// Pressure, when in (0, 1], requests an early collection as soon as an
	// allocation leaves that fraction of the heap in use. Zero disables
	// pressure-triggered sweeps.
	Pressure float64
}

// Sweeper collects a heap in the background so released arrays are
// reclaimed before allocations have to collect on their own.
type Sweeper struct {
	heap  *Heap
	opts  SweeperOptions
	watch *pressureWatch

	paused atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	timed    atomic.Uint64
	pressure atomic.Uint64
	last     atomic.Pointer[CollectStats]
}

// NewSweeper returns a stopped Sweeper for h.
func NewSweeper(h *Heap, opts SweeperOptions) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	s := &Sweeper{heap: h, opts: opts}
	if opts.Pressure > 0 && opts.Pressure <= 1 {
		s.watch = &pressureWatch{
			ch:   make(chan struct{}, 1),
			mark: int64(opts.Pressure * float64(h.capacity)),
		}
	}
	return s
}

// Start launches the background goroutine and, if configured, subscribes to
// heap pressure. Starting a running Sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	if s.watch != nil {
		s.heap.watch.Store(s.watch)
	}
	go s.run(ctx, s.done)
}

// Stop unsubscribes from the heap and waits for the goroutine to exit.
// Stopping a stopped Sweeper does nothing.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	if s.watch != nil {
		s.heap.watch.CompareAndSwap(s.watch, nil)
	}
	cancel()
	<-done
}

// SetEnabled pauses or resumes background collections. SweepNow is
// unaffected.
func (s *Sweeper) SetEnabled(enabled bool) { s.paused.Store(!enabled) }

// IsEnabled reports whether background collections run.
func (s *Sweeper) IsEnabled() bool { return !s.paused.Load() }

// Interval returns the timed collection period.
func (s *Sweeper) Interval() time.Duration { return s.opts.Interval }

// PressureMark returns the used-word count that triggers an early
// collection, or 0 when pressure sweeps are off.
func (s *Sweeper) PressureMark() int64 {
	if s.watch == nil {
		return 0
	}
	return s.watch.mark
}

// SweepCount returns the number of collections this Sweeper has run.
func (s *Sweeper) SweepCount() uint64 { return s.timed.Load() + s.pressure.Load() }

// PressureSweeps returns how many of those were triggered by heap pressure.
func (s *Sweeper) PressureSweeps() uint64 { return s.pressure.Load() }

// LastStats returns the statistics of the latest collection, or nil.
func (s *Sweeper) LastStats() *CollectStats { return s.last.Load() }

// SweepNow collects immediately, counted as a timed sweep.
func (s *Sweeper) SweepNow() *CollectStats {
	return s.collect(&s.timed)
}

func (s *Sweeper) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var kick <-chan struct{}
	if s.watch != nil {
		kick = s.watch.ch
	}
	tick := time.NewTicker(s.opts.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if s.IsEnabled() {
				s.collect(&s.timed)
			}
		case <-kick:
			if s.IsEnabled() {
				stats := s.collect(&s.pressure)
				heapLog.Debugf("heap %d: pressure sweep at mark %d freed %d words",
					s.heap.id, s.watch.mark, stats.SweptWords)
			}
		}
	}
}

func (s *Sweeper) collect(counter *atomic.Uint64) *CollectStats {
	stats := s.heap.Collect()
	counter.Add(1)
	s.last.Store(stats)
	return stats
}
