package telemetry

import (
	"math"

	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// SpectrogramImage renders a [bins, frames] tensor as an RGB image for
// telemetry: one pixel per cell, frames on the x axis, bin 0 at the
// bottom row, values normalized to the tensor's own range and mapped
// through a dark-blue-to-yellow colormap.
func SpectrogramImage(t tensor.Tensor) Image {
	if t.Rank() != 2 || len(t.Data) == 0 {
		return Image{}
	}
	bins, frames := t.Shape[0], t.Shape[1]

	lo, hi := t.Data[0], t.Data[0]
	for _, v := range t.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := float32(1)
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	img := Image{Width: frames, Height: bins, Pix: make([]byte, frames*bins*3)}
	for b := 0; b < bins; b++ {
		// Low bins at the bottom of the image.
		y := bins - 1 - b
		for x := 0; x < frames; x++ {
			v := (t.At(b, x) - lo) * scale
			r, g, bl := heat(v)
			off := (y*frames + x) * 3
			img.Pix[off] = r
			img.Pix[off+1] = g
			img.Pix[off+2] = bl
		}
	}
	return img
}

// CurveImage renders one or more aligned series (e.g., target and
// predicted f0) as polylines on a white background. The image is
// 1000x200; series are scaled jointly so they stay comparable.
func CurveImage(series ...[]float32) Image {
	const width, height = 1000, 200
	img := Image{Width: width, Height: height, Pix: make([]byte, width*height*3)}
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	n := 0
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, s := range series {
		if len(s) > n {
			n = len(s)
		}
		for _, v := range s {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if n < 2 {
		return img
	}
	if hi <= lo {
		hi = lo + 1
	}

	// A small fixed palette; series beyond it wrap around.
	palette := [][3]byte{
		{0x1f, 0x77, 0xb4},
		{0xff, 0x7f, 0x0e},
		{0x2c, 0xa0, 0x2c},
	}
	for si, s := range series {
		col := palette[si%len(palette)]
		prevY := -1
		for i, v := range s {
			x := i * (width - 1) / (n - 1)
			y := height - 1 - int((v-lo)/(hi-lo)*float32(height-1))
			if prevY < 0 {
				prevY = y
			}
			// Fill the vertical span to the previous point so steep
			// curves stay connected.
			y0, y1 := y, prevY
			if y0 > y1 {
				y0, y1 = y1, y0
			}
			for yy := y0; yy <= y1; yy++ {
				off := (yy*width + x) * 3
				img.Pix[off] = col[0]
				img.Pix[off+1] = col[1]
				img.Pix[off+2] = col[2]
			}
			prevY = y
		}
	}
	return img
}

// heat maps a normalized value in [0, 1] to an RGB color running from
// dark blue through magenta to yellow.
func heat(v float32) (r, g, b byte) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r = byte(255 * clamp01(2*v))
	g = byte(255 * clamp01(2*v-1))
	b = byte(255 * clamp01(1-v) * 0.8)
	return r, g, b
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
