// Package tensor provides a dense float32 tensor with an explicit shape,
// used as the in-memory and on-disk representation of per-utterance
// features (spectrograms, pitch curves, content embeddings, waveforms).
//
// The trailing axis is always the time axis. Operations that crop, pad or
// stack act on that axis only and never touch leading channel/feature
// dimensions.
package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when tensors that must agree on their
// non-time axes do not (e.g., stacking a batch with mixed mel bin counts).
var ErrShapeMismatch = errors.New("tensor: shape mismatch")

// Tensor is a dense float32 tensor in row-major layout. The last element
// of Shape is the time dimension. A zero-value Tensor is empty.
type Tensor struct {
	Shape []int     `msgpack:"shape" json:"shape"`
	Data  []float32 `msgpack:"data" json:"data"`
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// From1D wraps a sample sequence as a rank-1 tensor. The slice is not
// copied.
func From1D(data []float32) Tensor {
	return Tensor{Shape: []int{len(data)}, Data: data}
}

// From2D copies a [rows][cols] matrix into a rank-2 tensor.
// All rows must have the same length.
func From2D(rows [][]float32) (Tensor, error) {
	if len(rows) == 0 {
		return Tensor{Shape: []int{0, 0}}, nil
	}
	cols := len(rows[0])
	t := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return Tensor{}, fmt.Errorf("%w: row %d has %d cols, want %d", ErrShapeMismatch, i, len(r), cols)
		}
		copy(t.Data[i*cols:], r)
	}
	return t, nil
}

// Rank returns the number of axes.
func (t Tensor) Rank() int { return len(t.Shape) }

// Frames returns the size of the trailing time axis, or 0 for an empty
// tensor.
func (t Tensor) Frames() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[len(t.Shape)-1]
}

// rows returns the product of all leading (non-time) dimensions.
func (t Tensor) rows() int {
	n := 1
	for _, d := range t.Shape[:len(t.Shape)-1] {
		n *= d
	}
	return n
}

// leading returns the non-time dimensions.
func (t Tensor) leading() []int {
	if len(t.Shape) == 0 {
		return nil
	}
	return t.Shape[:len(t.Shape)-1]
}

// At returns the element at the given indices.
func (t Tensor) At(idx ...int) float32 {
	return t.Data[t.offset(idx)]
}

// Set assigns the element at the given indices.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.offset(idx)] = v
}

func (t Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank-%d tensor", len(idx), len(t.Shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d (size %d)", x, i, t.Shape[i]))
		}
		off = off*t.Shape[i] + x
	}
	return off
}

// CropTime returns a copy of t restricted to [start, end) on the time
// axis. Leading dimensions are unchanged.
func (t Tensor) CropTime(start, end int) Tensor {
	frames := t.Frames()
	if start < 0 || end < start || end > frames {
		panic(fmt.Sprintf("tensor: crop [%d, %d) out of range for %d frames", start, end, frames))
	}
	width := end - start
	shape := append(append([]int(nil), t.leading()...), width)
	out := New(shape...)
	rows := t.rows()
	for r := 0; r < rows; r++ {
		src := t.Data[r*frames+start : r*frames+end]
		copy(out.Data[r*width:], src)
	}
	return out
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// Equal reports whether two tensors have identical shape and data.
func (t Tensor) Equal(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if o.Shape[i] != d {
			return false
		}
	}
	for i, v := range t.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}

// sameLeading reports whether two tensors agree on rank and all non-time
// dimensions.
func sameLeading(a, b Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i, d := range a.leading() {
		if b.Shape[i] != d {
			return false
		}
	}
	return true
}

// PadStack right-pads every tensor with zeros on the time axis up to the
// longest tensor in ts, then stacks them along a new leading batch axis.
//
// All tensors must agree on rank and non-time dimensions; a violation is
// reported as [ErrShapeMismatch] since stacking cannot proceed. An empty
// input yields an empty rank-1 tensor.
func PadStack(ts []Tensor) (Tensor, error) {
	if len(ts) == 0 {
		return Tensor{Shape: []int{0}}, nil
	}
	maxFrames := 0
	for i, t := range ts {
		if !sameLeading(ts[0], t) {
			return Tensor{}, fmt.Errorf("%w: sample 0 has shape %v, sample %d has shape %v",
				ErrShapeMismatch, ts[0].Shape, i, t.Shape)
		}
		if f := t.Frames(); f > maxFrames {
			maxFrames = f
		}
	}
	shape := append([]int{len(ts)}, ts[0].leading()...)
	shape = append(shape, maxFrames)
	out := New(shape...)
	stride := ts[0].rows() * maxFrames
	for i, t := range ts {
		frames := t.Frames()
		rows := t.rows()
		base := i * stride
		for r := 0; r < rows; r++ {
			copy(out.Data[base+r*maxFrames:base+r*maxFrames+frames], t.Data[r*frames:(r+1)*frames])
		}
	}
	return out, nil
}
