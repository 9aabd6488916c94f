package vm

// ---------------------------------------------------------------------------
// Copier: type-checked, overlap-safe element copy
// ---------------------------------------------------------------------------

// Copier copies element ranges between arrays.
type Copier struct{}

// CopyArray copies length elements from src[srcPos:] to dst[dstPos:]. The
// result equals copying through a temporary snapshot of the source range,
// so src and dst may be the same instance with overlapping ranges.
//
// Fails with ErrTypeMismatch when the element types differ or when
// reference arrays belong to different heaps (dst untouched), and with
// ErrIndexOutOfBounds for negative or overlong ranges. Both heaps
// are held at the safepoint for the duration, so neither instance can be
// relocated mid-copy.
func (Copier) CopyArray(src Object, srcPos int, dst Object, dstPos int, length int) error {
	sd, dd := src.Descriptor(), dst.Descriptor()
	if err := checkCopyTypes(sd, dd); err != nil {
		return err
	}
	if sd.Kind() == ObjectArrayKind && src.owner() != dst.owner() {
		return arrayError("copy", sd, ErrTypeMismatch,
			"references cannot move from heap %d to heap %d", src.owner().id, dst.owner().id)
	}
	if srcPos < 0 || dstPos < 0 || length < 0 ||
		srcPos > src.Len()-length || dstPos > dst.Len()-length {
		return arrayError("copy", sd, ErrIndexOutOfBounds,
			"src[%d:%d] of %d, dst[%d:%d] of %d",
			srcPos, srcPos+length, src.Len(), dstPos, dstPos+length, dst.Len())
	}
	if length == 0 {
		return nil
	}

	unlock := enterBoth(src.owner(), dst.owner())
	defer unlock()

	switch sd.Kind() {
	case ScalarArrayKind:
		s, d := src.(*ScalarArray), dst.(*ScalarArray)
		es := s.desc.elementSize
		copy(d.data[dstPos*es:(dstPos+length)*es], s.data[srcPos*es:(srcPos+length)*es])
	case ObjectArrayKind:
		s, d := src.(*RefArray), dst.(*RefArray)
		copy(d.slots[dstPos:dstPos+length], s.slots[srcPos:srcPos+length])
	}
	src.owner().metrics.copiedElements.WithLabelValues(sd.ExternalName()).Add(float64(length))
	return nil
}

// checkCopyTypes requires both arrays to share an element type: the same
// scalar kind, or identical element descriptors for reference arrays.
func checkCopyTypes(sd, dd ArrayType) error {
	if sd.Kind() != dd.Kind() {
		return arrayError("copy", sd, ErrTypeMismatch, "destination is %s", dd.ExternalName())
	}
	switch sd.Kind() {
	case ScalarArrayKind:
		if AsScalarArrayType(sd).kind != AsScalarArrayType(dd).kind {
			return arrayError("copy", sd, ErrTypeMismatch, "destination is %s", dd.ExternalName())
		}
	case ObjectArrayKind:
		if AsObjectArrayType(sd).element != AsObjectArrayType(dd).element {
			return arrayError("copy", sd, ErrTypeMismatch, "destination is %s", dd.ExternalName())
		}
	}
	return nil
}

// enterBoth enters the safepoint of one or two heaps in a fixed order.
func enterBoth(a, b *Heap) func() {
	if a == b {
		a.enter()
		return a.leave
	}
	if a.id > b.id {
		a, b = b, a
	}
	a.enter()
	b.enter()
	return func() {
		b.leave()
		a.leave()
	}
}
