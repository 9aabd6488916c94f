// Package vm implements the scalar-array core of the tarray runtime.
//
// This package contains:
//   - The type descriptor hierarchy (instance, object-array, scalar-array)
//   - Per-loader descriptor registry and symbol interning
//   - Word-accounted heap with safepoint, handles and a mark/sweep collector
//   - Scalar array allocation, multi-dimensional allocation and copy
//   - The GC trace adapter used by the collector
package vm
