package vm

// ---------------------------------------------------------------------------
// Tracer: the collector's view of array instances
// ---------------------------------------------------------------------------

// Visitor receives each non-nil reference found while tracing.
type Visitor func(ref Object)

// TraceOption selects a traversal policy.
type TraceOption func(*traceConfig)

type traceConfig struct {
	bounded    bool
	start, end int
	reverse    bool
}

// WithRegion limits tracing to slots [start, end). The region is clipped to
// the instance.
func WithRegion(start, end int) TraceOption {
	return func(c *traceConfig) {
		c.bounded = true
		c.start, c.end = start, end
	}
}

// Reversed visits slots from last to first.
func Reversed() TraceOption {
	return func(c *traceConfig) { c.reverse = true }
}

// Tracer reports instance sizes and enumerates references. It keeps no
// state; callers must hold the safepoint (the collector does), and a single
// instance must not be traced by two goroutines at once.
type Tracer struct{}

// InstanceSize returns the instance size in words:
// HeaderWords + ceil(length*elementSize / WordSize).
func (Tracer) InstanceSize(o Object) int {
	return o.Descriptor().SizeInWords(o.Len())
}

// TraceReferences enumerates the references held by o and returns its size
// contribution. Scalar arrays hold no references, so visit is never called
// for them; the returned size is the same under every policy.
func (t Tracer) TraceReferences(o Object, visit Visitor, opts ...TraceOption) int {
	size := t.InstanceSize(o)

	switch o.Descriptor().Kind() {
	case ScalarArrayKind:
		return size
	case ObjectArrayKind:
		var cfg traceConfig
		for _, opt := range opts {
			opt(&cfg)
		}
		traceSlots(o.(*RefArray).slots, cfg, visit)
	}
	return size
}

func traceSlots(slots []Object, cfg traceConfig, visit Visitor) {
	lo, hi := 0, len(slots)
	if cfg.bounded {
		lo, hi = max(cfg.start, 0), min(cfg.end, len(slots))
	}
	if lo >= hi {
		return
	}
	if cfg.reverse {
		for i := hi - 1; i >= lo; i-- {
			if slots[i] != nil {
				visit(slots[i])
			}
		}
		return
	}
	for i := lo; i < hi; i++ {
		if slots[i] != nil {
			visit(slots[i])
		}
	}
}
